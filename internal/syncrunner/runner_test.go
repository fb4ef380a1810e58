package syncrunner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filemirrorsync/filemirrorsync/internal/protocol"
	"github.com/filemirrorsync/filemirrorsync/internal/statestore"
)

type fakeClient struct {
	mu sync.Mutex

	diffResp *protocol.DiffResponse

	chunksReceived  map[string][][]byte
	completed       []protocol.CompleteRequest
	deleted         *protocol.DeleteRequest
	failUploadChunk bool
}

func newFakeClient(resp *protocol.DiffResponse) *fakeClient {
	return &fakeClient{diffResp: resp, chunksReceived: make(map[string][][]byte)}
}

func (f *fakeClient) Manifest(ctx context.Context, req *protocol.ManifestRequest) (*protocol.DiffResponse, error) {
	return f.diffResp, nil
}

func (f *fakeClient) UploadChunk(ctx context.Context, datasetID, clientID, pathToken, uploadID string, index int, body []byte) error {
	if f.failUploadChunk {
		return assert.AnError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte{}, body...)
	f.chunksReceived[uploadID] = append(f.chunksReceived[uploadID], cp)
	return nil
}

func (f *fakeClient) CompleteUpload(ctx context.Context, pathToken, uploadID string, body *protocol.CompleteRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, *body)
	return nil
}

func (f *fakeClient) Delete(ctx context.Context, body *protocol.DeleteRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = body
	return nil
}

func writeSource(t *testing.T, root, relPath string, content []byte) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, content, 0o644))
}

func TestRunner_Run_UploadsAndPersistsState(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "a.txt", []byte("hello world"))

	client := newFakeClient(&protocol.DiffResponse{
		Upload: []protocol.UploadInstruction{{Path: "a.txt", UploadID: "u1"}},
	})

	statePath := filepath.Join(t.TempDir(), "state.json")
	r := New(Config{DatasetID: "ds1", ClientID: "c1", RootPath: root, ChunkSize: 4}, client, statestore.New(statePath))

	require.NoError(t, r.Run(context.Background()))

	require.Len(t, client.completed, 1)
	assert.Equal(t, int64(11), client.completed[0].ExpectedSize)
	assert.Equal(t, 3, client.completed[0].ChunkCount) // 4 + 4 + 3 bytes

	state, err := r.State.Load()
	require.NoError(t, err)
	assert.Contains(t, state.Files, "a.txt")
}

func TestRunner_Run_AbortsRoundOnUploadFailure(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "a.txt", []byte("hello"))

	client := newFakeClient(&protocol.DiffResponse{
		Upload: []protocol.UploadInstruction{{Path: "a.txt", UploadID: "u1"}},
	})
	client.failUploadChunk = true

	statePath := filepath.Join(t.TempDir(), "state.json")
	r := New(Config{DatasetID: "ds1", ClientID: "c1", RootPath: root}, client, statestore.New(statePath))

	err := r.Run(context.Background())
	require.Error(t, err)

	_, statErr := os.Stat(statePath)
	assert.True(t, os.IsNotExist(statErr), "state file must not be written on a failed round")
}

func TestRunner_Run_EmptyFileUploadsZeroChunks(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "empty.txt", []byte{})

	client := newFakeClient(&protocol.DiffResponse{
		Upload: []protocol.UploadInstruction{{Path: "empty.txt", UploadID: "u1"}},
	})

	statePath := filepath.Join(t.TempDir(), "state.json")
	r := New(Config{DatasetID: "ds1", ClientID: "c1", RootPath: root}, client, statestore.New(statePath))
	require.NoError(t, r.Run(context.Background()))

	require.Len(t, client.completed, 1)
	assert.Equal(t, int64(0), client.completed[0].ExpectedSize)
	assert.Equal(t, 0, client.completed[0].ChunkCount)
}

func TestRunner_Run_DeletePhaseSkippedWhenDisabled(t *testing.T) {
	root := t.TempDir()
	client := newFakeClient(&protocol.DiffResponse{Delete: []string{"old.txt"}})

	statePath := filepath.Join(t.TempDir(), "state.json")
	r := New(Config{DatasetID: "ds1", ClientID: "c1", RootPath: root, EnableDelete: false}, client, statestore.New(statePath))
	require.NoError(t, r.Run(context.Background()))

	assert.Nil(t, client.deleted)
}

func TestRunner_Run_DeletePhaseRunsWhenEnabled(t *testing.T) {
	root := t.TempDir()
	client := newFakeClient(&protocol.DiffResponse{Delete: []string{"old.txt"}})

	statePath := filepath.Join(t.TempDir(), "state.json")
	r := New(Config{DatasetID: "ds1", ClientID: "c1", RootPath: root, EnableDelete: true}, client, statestore.New(statePath))
	require.NoError(t, r.Run(context.Background()))

	require.NotNil(t, client.deleted)
	assert.Equal(t, []string{"old.txt"}, client.deleted.Paths)
	require.NotNil(t, client.deleted.DeletedAtUtc)

	parsed, err := protocol.ParseTime(*client.deleted.DeletedAtUtc)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), parsed, time.Minute)
}
