// Package uploadsession implements spec.md §4.5's UploadSession: the
// server-side staging context bound to one target file for one upload
// attempt, identified by an opaque upload_id.
//
// Grounded on internal/syftsdk/file_uploader_resumable.go's uploadSession
// persistence shape in the teacher repo, generalized from a client resume
// cache into the server-side session store spec.md describes.
package uploadsession

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/filemirrorsync/filemirrorsync/internal/pathguard"
	"github.com/filemirrorsync/filemirrorsync/internal/utils"
)

var (
	// ErrNotFound is returned by Get when no session exists for upload_id.
	ErrNotFound = errors.New("uploadsession: not found")
	// ErrMismatch is returned by Get when the stored dataset differs from
	// the one supplied by the caller.
	ErrMismatch = errors.New("uploadsession: dataset mismatch")
)

const metaFileName = "session.json"

// Meta is the on-disk session record written under
// TempRoot/<dataset>/<uploadId>/session.json (spec.md §6 "On-disk layout").
type Meta struct {
	UploadID    string    `json:"uploadId"`
	DatasetID   string    `json:"datasetId"`
	ClientID    string    `json:"clientId"`
	RelPath     string    `json:"relPath"`
	CreatedUtc  time.Time `json:"createdUtc"`
}

// Session pairs a Meta with the directory it lives in.
type Session struct {
	Meta
	Dir string
}

// Store manages session directories rooted at TempRoot.
type Store struct {
	TempRoot string
}

// New returns a Store rooted at tempRoot.
func New(tempRoot string) *Store {
	return &Store{TempRoot: tempRoot}
}

// Create allocates a fresh session for (dataset, client, relPath) and
// returns the minted upload_id. spec.md §4.5: the session is created at
// Diff time, not at first chunk (see spec.md §9 "Session lifetime vs.
// client retries").
func (s *Store) Create(dataset, client, relPath string) (*Session, error) {
	normalized, err := pathguard.Validate(relPath)
	if err != nil {
		return nil, err
	}

	uploadID := uuid.New().String()
	dir := s.sessionDir(dataset, uploadID)
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("uploadsession: create dir: %w", err)
	}

	meta := Meta{
		UploadID:   uploadID,
		DatasetID:  dataset,
		ClientID:   client,
		RelPath:    normalized,
		CreatedUtc: time.Now().UTC(),
	}
	if err := writeMeta(dir, &meta); err != nil {
		return nil, err
	}

	return &Session{Meta: meta, Dir: dir}, nil
}

// Get loads the session for (dataset, uploadID).
func (s *Store) Get(dataset, uploadID string) (*Session, error) {
	dir := s.sessionDir(dataset, uploadID)
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		if os.IsNotExist(err) {
			// Session directories are namespaced by dataset, so a session
			// stored under another dataset is found by looking there.
			if entries, rerr := os.ReadDir(s.TempRoot); rerr == nil {
				for _, e := range entries {
					if !e.IsDir() || e.Name() == dataset {
						continue
					}
					if _, serr := os.Stat(filepath.Join(s.TempRoot, e.Name(), uploadID, metaFileName)); serr == nil {
						return nil, ErrMismatch
					}
				}
			}
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("uploadsession: read meta: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("uploadsession: parse meta: %w", err)
	}
	if meta.DatasetID != dataset {
		return nil, ErrMismatch
	}

	return &Session{Meta: meta, Dir: dir}, nil
}

// ChunkPath returns the deterministic on-disk path for chunk index of the
// given session, incorporating the relpath per spec.md §4.5.
func (s *Session) ChunkPath(index int) string {
	base := filepath.Base(s.RelPath)
	return filepath.Join(s.Dir, fmt.Sprintf("%s.chunk%d", base, index))
}

// Cleanup recursively removes the session directory. Idempotent.
func (s *Store) Cleanup(dataset, uploadID string) error {
	dir := s.sessionDir(dataset, uploadID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("uploadsession: cleanup: %w", err)
	}
	return nil
}

// GC removes session directories under TempRoot older than olderThan.
// Grounded on spec.md §9 ("Session lifetime vs. client retries": sessions
// older than a horizon may be garbage-collected).
func (s *Store) GC(olderThan time.Duration) (int, error) {
	removed := 0
	cutoff := time.Now().Add(-olderThan)

	datasets, err := os.ReadDir(s.TempRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("uploadsession: gc read tempRoot: %w", err)
	}

	for _, datasetEntry := range datasets {
		if !datasetEntry.IsDir() {
			continue
		}
		datasetDir := filepath.Join(s.TempRoot, datasetEntry.Name())
		sessions, err := os.ReadDir(datasetDir)
		if err != nil {
			continue
		}
		for _, se := range sessions {
			if !se.IsDir() {
				continue
			}
			sessionDir := filepath.Join(datasetDir, se.Name())
			data, err := os.ReadFile(filepath.Join(sessionDir, metaFileName))
			if err != nil {
				continue
			}
			var meta Meta
			if err := json.Unmarshal(data, &meta); err != nil {
				continue
			}
			if meta.CreatedUtc.Before(cutoff) {
				if err := os.RemoveAll(sessionDir); err == nil {
					removed++
				}
			}
		}
	}

	return removed, nil
}

func (s *Store) sessionDir(dataset, uploadID string) string {
	return filepath.Join(s.TempRoot, dataset, uploadID)
}

func writeMeta(dir string, meta *Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("uploadsession: encode meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFileName), data, 0o644); err != nil {
		return fmt.Errorf("uploadsession: write meta: %w", err)
	}
	return nil
}
