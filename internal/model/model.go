// Package model holds the domain types of spec.md §3 (Data Model) shared
// by the diff, merge, delete, and session engines. Wire-shaped JSON
// payloads live in internal/protocol; this package is the in-memory form
// those payloads are converted to/from.
package model

import "time"

// FileEntry is the domain form of spec.md's FileEntry tuple: (path, size,
// mtime_utc, sha256?).
type FileEntry struct {
	Path     string
	Size     int64
	MtimeUTC time.Time
	SHA256   string // lowercase hex, empty if absent
}

// DeletePolicy is spec.md §3's DeletePolicy enum.
type DeletePolicy string

const (
	DeletePolicyDisabled  DeletePolicy = "Disabled"
	DeletePolicyLwwDelete DeletePolicy = "LwwDelete"
)

// UploadInstruction pairs a path with the upload_id minted for it.
type UploadInstruction struct {
	Path     string
	UploadID string
}

// DiffResult is spec.md §3's DiffResult: (upload, delete).
type DiffResult struct {
	Upload []UploadInstruction
	Delete []string
}
