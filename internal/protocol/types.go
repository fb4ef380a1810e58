// Package protocol defines the wire shapes and error vocabulary shared by
// the FileMirrorSync client and server across the /api/sync HTTP surface
// described in spec.md §6.
package protocol

import "time"

// FileEntry is one entry of a Manifest: spec.md §3.
type FileEntry struct {
	Path         string  `json:"path" binding:"required"`
	Size         int64   `json:"size"`
	LastWriteUtc string  `json:"lastWriteUtc" binding:"required"`
	SHA256       *string `json:"sha256,omitempty"`
}

// ManifestRequest is the body of POST /api/sync/manifest.
type ManifestRequest struct {
	DatasetID string      `json:"datasetId" binding:"required"`
	ClientID  string      `json:"clientId" binding:"required"`
	Files     []FileEntry `json:"files"`
}

// UploadInstruction is one entry of DiffResponse.Upload.
type UploadInstruction struct {
	Path     string `json:"path"`
	UploadID string `json:"uploadId"`
}

// DiffResponse is the body returned by POST /api/sync/manifest.
type DiffResponse struct {
	Upload []UploadInstruction `json:"upload"`
	Delete []string            `json:"delete"`
}

// CompleteRequest is the body of POST .../uploads/{uploadId}/complete.
type CompleteRequest struct {
	DatasetID    string  `json:"datasetId" binding:"required"`
	ClientID     string  `json:"clientId" binding:"required"`
	ExpectedSize int64   `json:"expectedSize"`
	SHA256       *string `json:"sha256,omitempty"`
	ChunkCount   int     `json:"chunkCount"`
	LastWriteUtc string  `json:"lastWriteUtc" binding:"required"`
}

// DeleteRequest is the body of POST /api/sync/delete.
type DeleteRequest struct {
	DatasetID     string   `json:"datasetId" binding:"required"`
	ClientID      string   `json:"clientId" binding:"required"`
	Paths         []string `json:"paths" binding:"required,min=1"`
	DeletedAtUtc  *string  `json:"deletedAtUtc,omitempty"`
}

// ParseTime parses an ISO-8601 UTC timestamp as used throughout the wire
// protocol (spec.md §6: "all timestamps are ISO-8601 in UTC").
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// FormatTime renders t as the ISO-8601 UTC form used on the wire.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
