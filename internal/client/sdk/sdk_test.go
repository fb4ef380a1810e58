package sdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filemirrorsync/filemirrorsync/internal/protocol"
)

func TestClient_Manifest_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "/api/sync/manifest", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(protocol.DiffResponse{
			Upload: []protocol.UploadInstruction{{Path: "a.txt", UploadID: "u1"}},
			Delete: []string{"b.txt"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	resp, err := c.Manifest(context.Background(), &protocol.ManifestRequest{DatasetID: "ds1", ClientID: "c1"})
	require.NoError(t, err)
	require.Len(t, resp.Upload, 1)
	assert.Equal(t, "a.txt", resp.Upload[0].Path)
	assert.Equal(t, []string{"b.txt"}, resp.Delete)
}

func TestClient_Manifest_ServerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(protocol.APIError{Code: protocol.CodeUnauthorized, Message: "bad key"})
	}))
	defer srv.Close()

	c := New(srv.URL, "wrong")
	_, err := c.Manifest(context.Background(), &protocol.ManifestRequest{DatasetID: "ds1", ClientID: "c1"})
	require.Error(t, err)

	var rejection *ServerRejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, http.StatusUnauthorized, rejection.StatusCode)
	assert.Equal(t, protocol.CodeUnauthorized, rejection.Body.Code)
}

func TestClient_UploadChunk_SendsQueryParams(t *testing.T) {
	var gotDataset, gotClient, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDataset = r.URL.Query().Get("datasetId")
		gotClient = r.URL.Query().Get("clientId")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	err := c.UploadChunk(context.Background(), "ds1", "c1", "cGF0aA", "upload1", 0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "ds1", gotDataset)
	assert.Equal(t, "c1", gotClient)
	assert.Equal(t, "hello", gotBody)
}

func TestClient_CompleteUpload_204(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sync/files/cGF0aA/uploads/upload1/complete", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	err := c.CompleteUpload(context.Background(), "cGF0aA", "upload1", &protocol.CompleteRequest{
		DatasetID:    "ds1",
		ClientID:     "c1",
		ExpectedSize: 5,
		ChunkCount:   1,
		LastWriteUtc: "2025-01-01T00:00:00Z",
	})
	require.NoError(t, err)
}

func TestClient_Delete_204(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sync/delete", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	err := c.Delete(context.Background(), &protocol.DeleteRequest{DatasetID: "ds1", ClientID: "c1", Paths: []string{"a.txt"}})
	require.NoError(t, err)
}
