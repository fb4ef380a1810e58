// Package manifest implements spec.md §4.2's ManifestBuilder: a recursive
// walk of a client root directory that emits a FileEntry per regular file.
package manifest

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/filemirrorsync/filemirrorsync/internal/model"
	"github.com/filemirrorsync/filemirrorsync/internal/pathguard"
)

// Builder walks a configured root and emits FileEntry values. The hash
// field is intentionally left empty here: spec.md §4.2 and §9 ("Hash in
// the manifest vs. on the wire") place the authoritative integrity check
// on the upload stream, not on the manifest scan.
type Builder struct {
	Root string
}

// New returns a Builder rooted at root.
func New(root string) *Builder {
	return &Builder{Root: root}
}

// Build walks Root recursively and returns one FileEntry per regular file,
// with paths normalized and validated by pathguard.
func (b *Builder) Build() ([]model.FileEntry, error) {
	var entries []model.FileEntry

	err := filepath.WalkDir(b.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(b.Root, path)
		if err != nil {
			return fmt.Errorf("relpath for %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		normalized, err := pathguard.Validate(rel)
		if err != nil {
			// A file outside the accepted path grammar (e.g. a filename
			// with a control character) is skipped rather than aborting
			// the whole scan: the manifest is best-effort over whatever
			// the filesystem happens to contain.
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		entries = append(entries, model.FileEntry{
			Path:     normalized,
			Size:     info.Size(),
			MtimeUTC: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}
