package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filemirrorsync/filemirrorsync/internal/pathguard"
	"github.com/filemirrorsync/filemirrorsync/internal/protocol"
)

func newTestServer(t *testing.T, policy string) (*httptest.Server, *Config) {
	t.Helper()
	cfg := &Config{
		Addr:               "127.0.0.1:0",
		InboundRoot:        filepath.Join(t.TempDir(), "inbound"),
		TempRoot:           filepath.Join(t.TempDir(), "tmp"),
		DeleteStrategy:     policy,
		MaxParallelUploads: 2,
		ApiKeys: ApiKeysConfig{
			DatasetKeys: map[string]string{"ds1": "secret"},
		},
	}
	require.NoError(t, cfg.Validate())

	srv, err := New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts, cfg
}

func TestServer_HealthzNoAuth(t *testing.T) {
	ts, _ := newTestServer(t, "LwwDelete")
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ManifestRequiresApiKey(t *testing.T) {
	ts, _ := newTestServer(t, "LwwDelete")
	body, _ := json.Marshal(protocol.ManifestRequest{DatasetID: "ds1", ClientID: "c1"})
	resp, err := http.Post(ts.URL+"/api/sync/manifest", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, apiKey string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestServer_FullUploadRound(t *testing.T) {
	ts, _ := newTestServer(t, "LwwDelete")

	manifestResp := doJSON(t, ts, http.MethodPost, "/api/sync/manifest", "secret", protocol.ManifestRequest{
		DatasetID: "ds1",
		ClientID:  "c1",
		Files: []protocol.FileEntry{
			{Path: "a.txt", Size: 5, LastWriteUtc: "2025-06-01T00:00:00Z"},
		},
	})
	defer manifestResp.Body.Close()
	require.Equal(t, http.StatusOK, manifestResp.StatusCode)

	var diff protocol.DiffResponse
	require.NoError(t, json.NewDecoder(manifestResp.Body).Decode(&diff))
	require.Len(t, diff.Upload, 1)
	instr := diff.Upload[0]

	data := []byte("hello")
	sum := sha256.Sum256(data)
	hexSum := hex.EncodeToString(sum[:])

	chunkURL := "/api/sync/files/" + urlSafePathToken(instr.Path) + "/uploads/" + instr.UploadID + "/chunks/0?datasetId=ds1&clientId=c1"
	req, err := http.NewRequest(http.MethodPut, ts.URL+chunkURL, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", "secret")
	chunkResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer chunkResp.Body.Close()
	require.Equal(t, http.StatusNoContent, chunkResp.StatusCode)

	completeResp := doJSON(t, ts, http.MethodPost, "/api/sync/files/"+urlSafePathToken(instr.Path)+"/uploads/"+instr.UploadID+"/complete", "secret", protocol.CompleteRequest{
		DatasetID:    "ds1",
		ClientID:     "c1",
		ExpectedSize: int64(len(data)),
		SHA256:       &hexSum,
		ChunkCount:   1,
		LastWriteUtc: "2025-06-01T00:00:00Z",
	})
	defer completeResp.Body.Close()
	require.Equal(t, http.StatusNoContent, completeResp.StatusCode)
}

func urlSafePathToken(path string) string {
	return pathguard.EncodeToken(path)
}

func TestServer_DeletePhaseDisabledIsNoOp(t *testing.T) {
	ts, _ := newTestServer(t, "Disabled")

	deletedAt := "2025-06-01T00:00:00Z"
	resp := doJSON(t, ts, http.MethodPost, "/api/sync/delete", "secret", protocol.DeleteRequest{
		DatasetID:    "ds1",
		ClientID:     "c1",
		Paths:        []string{"a.txt"},
		DeletedAtUtc: &deletedAt,
	})
	defer resp.Body.Close()
	// spec.md §4.7 step 1: Disabled succeeds without touching the filesystem.
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServer_InboundRootPopulatedAfterUpload(t *testing.T) {
	ts, cfg := newTestServer(t, "LwwDelete")

	manifestResp := doJSON(t, ts, http.MethodPost, "/api/sync/manifest", "secret", protocol.ManifestRequest{
		DatasetID: "ds1",
		ClientID:  "c1",
		Files:     []protocol.FileEntry{{Path: "b.txt", Size: 3, LastWriteUtc: "2025-06-01T00:00:00Z"}},
	})
	defer manifestResp.Body.Close()
	var diff protocol.DiffResponse
	require.NoError(t, json.NewDecoder(manifestResp.Body).Decode(&diff))
	instr := diff.Upload[0]

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/sync/files/"+urlSafePathToken(instr.Path)+"/uploads/"+instr.UploadID+"/chunks/0?datasetId=ds1&clientId=c1", bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", "secret")
	chunkResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	chunkResp.Body.Close()

	sum := sha256.Sum256([]byte("abc"))
	hexSum := hex.EncodeToString(sum[:])
	completeResp := doJSON(t, ts, http.MethodPost, "/api/sync/files/"+urlSafePathToken(instr.Path)+"/uploads/"+instr.UploadID+"/complete", "secret", protocol.CompleteRequest{
		DatasetID:    "ds1",
		ClientID:     "c1",
		ExpectedSize: 3,
		SHA256:       &hexSum,
		ChunkCount:   1,
		LastWriteUtc: "2025-06-01T00:00:00Z",
	})
	completeResp.Body.Close()

	data, err := os.ReadFile(filepath.Join(cfg.InboundRoot, "ds1", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}
