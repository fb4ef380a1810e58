package uploadsession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateGet(t *testing.T) {
	store := New(t.TempDir())

	sess, err := store.Create("ds1", "client1", "a/b.txt")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.UploadID)
	assert.Equal(t, "a/b.txt", sess.RelPath)

	got, err := store.Get("ds1", sess.UploadID)
	require.NoError(t, err)
	assert.Equal(t, sess.RelPath, got.RelPath)
	assert.Equal(t, "client1", got.ClientID)
}

func TestStore_GetNotFound(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.Get("ds1", "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetMismatch(t *testing.T) {
	store := New(t.TempDir())
	sess, err := store.Create("ds1", "client1", "a.txt")
	require.NoError(t, err)

	_, err = store.Get("other-dataset", sess.UploadID)
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestStore_CreateUniqueIDs(t *testing.T) {
	store := New(t.TempDir())
	s1, err := store.Create("ds1", "c1", "a.txt")
	require.NoError(t, err)
	s2, err := store.Create("ds1", "c1", "a.txt")
	require.NoError(t, err)
	assert.NotEqual(t, s1.UploadID, s2.UploadID)
}

func TestStore_Cleanup(t *testing.T) {
	store := New(t.TempDir())
	sess, err := store.Create("ds1", "c1", "a.txt")
	require.NoError(t, err)

	require.NoError(t, store.Cleanup("ds1", sess.UploadID))
	// idempotent
	require.NoError(t, store.Cleanup("ds1", sess.UploadID))

	_, err = store.Get("ds1", sess.UploadID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GC(t *testing.T) {
	store := New(t.TempDir())
	sess, err := store.Create("ds1", "c1", "a.txt")
	require.NoError(t, err)

	removed, err := store.GC(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	removed, err = store.GC(-time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get("ds1", sess.UploadID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_ChunkPath(t *testing.T) {
	store := New(t.TempDir())
	sess, err := store.Create("ds1", "c1", "a/b.txt")
	require.NoError(t, err)

	p0 := sess.ChunkPath(0)
	p1 := sess.ChunkPath(1)
	assert.NotEqual(t, p0, p1)
	assert.Contains(t, p0, "b.txt.chunk0")
}
