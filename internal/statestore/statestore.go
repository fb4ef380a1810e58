// Package statestore implements spec.md §4.3's StateStore: a self-
// describing (JSON) document persisting the client's last-seen FileEntry
// per path between SyncRunner rounds.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/filemirrorsync/filemirrorsync/internal/model"
	"github.com/filemirrorsync/filemirrorsync/internal/utils"
)

// State is the client-local SyncState of spec.md §3.
type State struct {
	LastSyncUtc time.Time                   `json:"lastSyncUtc"`
	Files       map[string]model.FileEntry  `json:"files"`
}

// wireFileEntry is State's on-disk shape: model.FileEntry with a string
// timestamp so the document stays self-describing JSON, per spec.md §4.3.
type wireFileEntry struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MtimeUTC string `json:"mtimeUtc"`
	SHA256   string `json:"sha256,omitempty"`
}

type wireState struct {
	LastSyncUtc string                   `json:"lastSyncUtc"`
	Files       map[string]wireFileEntry `json:"files"`
}

// Store loads and saves State at a fixed path on disk.
type Store struct {
	Path string
}

// New returns a Store backed by the file at path.
func New(path string) *Store {
	return &Store{Path: path}
}

// Load returns the persisted state, or an empty State if the file does
// not exist. A parse failure is surfaced to the caller so the round can
// be aborted, per spec.md §4.3.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Files: make(map[string]model.FileEntry)}, nil
		}
		return nil, fmt.Errorf("statestore: read %s: %w", s.Path, err)
	}

	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("statestore: parse %s: %w", s.Path, err)
	}

	state := &State{Files: make(map[string]model.FileEntry, len(w.Files))}
	if w.LastSyncUtc != "" {
		t, err := time.Parse(time.RFC3339, w.LastSyncUtc)
		if err != nil {
			return nil, fmt.Errorf("statestore: parse lastSyncUtc: %w", err)
		}
		state.LastSyncUtc = t
	}
	for path, wf := range w.Files {
		mtime, err := time.Parse(time.RFC3339, wf.MtimeUTC)
		if err != nil {
			return nil, fmt.Errorf("statestore: parse mtime for %s: %w", path, err)
		}
		state.Files[path] = model.FileEntry{
			Path:     wf.Path,
			Size:     wf.Size,
			MtimeUTC: mtime,
			SHA256:   wf.SHA256,
		}
	}
	return state, nil
}

// Save persists state, creating parent directories as needed.
func (s *Store) Save(state *State) error {
	if err := utils.EnsureParent(s.Path); err != nil {
		return fmt.Errorf("statestore: ensure dir: %w", err)
	}

	w := wireState{
		LastSyncUtc: state.LastSyncUtc.UTC().Format(time.RFC3339),
		Files:       make(map[string]wireFileEntry, len(state.Files)),
	}
	for path, fe := range state.Files {
		w.Files[path] = wireFileEntry{
			Path:     fe.Path,
			Size:     fe.Size,
			MtimeUTC: fe.MtimeUTC.UTC().Format(time.RFC3339),
			SHA256:   fe.SHA256,
		}
	}

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: encode: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("statestore: write temp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("statestore: rename: %w", err)
	}
	return nil
}
