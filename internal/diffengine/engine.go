// Package diffengine implements spec.md §4.4's DiffEngine: computing the
// upload/delete sets for a client manifest against the server's current
// dataset contents, under Last-Writer-Wins with a size/hash tiebreak.
//
// Grounded on internal/client/sync/sync_engine_types.go's batch/map
// reconciliation shape in the teacher repo, generalized to spec.md's
// simpler server-authoritative diff (no bidirectional conflict handling).
package diffengine

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/filemirrorsync/filemirrorsync/internal/model"
)

// DatasetLister enumerates a dataset's current files so DiffEngine can
// build the server-side map S of spec.md §4.4.
type DatasetLister interface {
	List(datasetID string) ([]model.FileEntry, error)
}

// SessionCreator mints an UploadSession for a file selected for upload.
type SessionCreator interface {
	Create(dataset, client, relPath string) (uploadID string, err error)
}

// Engine computes DiffResult values.
type Engine struct {
	Dataset DatasetLister
	Session SessionCreator
}

// New returns an Engine.
func New(dataset DatasetLister, session SessionCreator) *Engine {
	return &Engine{Dataset: dataset, Session: session}
}

// Diff computes the upload/delete sets for a client manifest, per
// spec.md §4.4, minting a fresh UploadSession for every path selected for
// upload.
func (e *Engine) Diff(datasetID, clientID string, manifest []model.FileEntry, policy model.DeletePolicy) (*model.DiffResult, error) {
	serverFiles, err := e.Dataset.List(datasetID)
	if err != nil {
		return nil, err
	}

	serverByKey := make(map[string]model.FileEntry, len(serverFiles))
	for _, f := range serverFiles {
		serverByKey[foldKey(f.Path)] = f
	}

	clientKeys := mapset.NewThreadUnsafeSet[string]()
	result := &model.DiffResult{}

	for _, c := range manifest {
		key := foldKey(c.Path)
		clientKeys.Add(key)

		s, ok := serverByKey[key]
		if !ok || ShouldUpload(s, c) {
			uploadID, err := e.Session.Create(datasetID, clientID, c.Path)
			if err != nil {
				return nil, err
			}
			result.Upload = append(result.Upload, model.UploadInstruction{
				Path:     c.Path,
				UploadID: uploadID,
			})
		}
	}

	if policy == model.DeletePolicyLwwDelete {
		serverKeys := mapset.NewThreadUnsafeSet[string]()
		pathByKey := make(map[string]string, len(serverByKey))
		for key, f := range serverByKey {
			serverKeys.Add(key)
			pathByKey[key] = f.Path
		}
		toDelete := serverKeys.Difference(clientKeys)
		for key := range toDelete.Iter() {
			result.Delete = append(result.Delete, pathByKey[key])
		}
		sort.Strings(result.Delete)
	}

	return result, nil
}

// ShouldUpload implements spec.md §4.4's VersionPolicy.ShouldUpload: the
// LWW comparison with size/hash tiebreak at equal mtime.
func ShouldUpload(s, c model.FileEntry) bool {
	if c.MtimeUTC.After(s.MtimeUTC) {
		return true
	}
	if c.MtimeUTC.Equal(s.MtimeUTC) {
		if c.Size != s.Size {
			return true
		}
		if c.SHA256 != "" && !strings.EqualFold(c.SHA256, s.SHA256) {
			return true
		}
	}
	// c.MtimeUTC < s.MtimeUTC: server wins, skip even if sizes differ.
	return false
}

// foldKey normalizes a path for case-insensitive comparison, per spec.md
// §9 ("Case sensitivity").
func foldKey(path string) string {
	return strings.ToLower(path)
}
