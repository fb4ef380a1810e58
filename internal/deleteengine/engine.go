// Package deleteengine implements spec.md §4.7's DeleteEngine: explicit,
// client-requested deletion of dataset files, gated by DeletePolicy and
// validated through PathGuard before anything touches disk.
//
// Grounded on internal/server/handlers/blob/blob_handler_delete.go's
// validate-then-remove flow in the teacher repo.
package deleteengine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/filemirrorsync/filemirrorsync/internal/model"
	"github.com/filemirrorsync/filemirrorsync/internal/pathguard"
)

// Engine removes files from the dataset root.
type Engine struct {
	InboundRoot string
}

// New returns an Engine rooted at inboundRoot.
func New(inboundRoot string) *Engine {
	return &Engine{InboundRoot: inboundRoot}
}

// Delete removes the given relative paths from datasetID under policy.
// Under DeletePolicyDisabled it is a no-op success (step 1). Otherwise,
// paths that fail PathGuard validation abort the whole batch with no
// partial effect (step 1); paths already absent are skipped silently
// (step 3); a path survives the delete under LWW unless deletedAtUtc
// strictly exceeds its on-disk mtime (step 4).
func (e *Engine) Delete(datasetID string, paths []string, deletedAtUtc time.Time, policy model.DeletePolicy) ([]string, error) {
	if policy == model.DeletePolicyDisabled {
		// spec.md §4.7 step 1: succeed without touching the filesystem.
		return nil, nil
	}

	root := filepath.Join(e.InboundRoot, datasetID)

	resolved := make([]string, 0, len(paths))
	for _, p := range paths {
		target, err := pathguard.ResolveUnder(root, p)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, target)
	}

	var deleted []string
	for i, target := range resolved {
		info, err := os.Stat(target)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return deleted, fmt.Errorf("deleteengine: stat %s: %w", paths[i], err)
		}

		if !deletedAtUtc.After(info.ModTime().UTC()) {
			// deletedAtUtc does not strictly exceed mtime: LWW keeps it
			// (server wins at or after equality, per spec.md §3/§4.7/§8).
			continue
		}

		if err := os.Remove(target); err != nil {
			return deleted, fmt.Errorf("deleteengine: remove %s: %w", paths[i], err)
		}
		deleted = append(deleted, paths[i])
	}

	return deleted, nil
}
