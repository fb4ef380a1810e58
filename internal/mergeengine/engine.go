// Package mergeengine implements spec.md §4.6's MergeEngine: the two-
// operation chunked-upload state machine (SaveChunk, CompleteUpload) with
// integrity verification and atomic publish, plus the dataset listing
// DiffEngine needs (spec.md §3: "Files under the dataset root are
// exclusively owned by MergeEngine/DeleteEngine").
//
// Grounded on internal/syftsdk/file_uploader_resumable.go's chunk
// numbering/assembly-order idiom and
// internal/server/handlers/blob/blob_handler_complete.go's validate-then-
// commit request flow in the teacher repo.
package mergeengine

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/filemirrorsync/filemirrorsync/internal/model"
	"github.com/filemirrorsync/filemirrorsync/internal/pathguard"
	"github.com/filemirrorsync/filemirrorsync/internal/uploadsession"
	"github.com/filemirrorsync/filemirrorsync/internal/utils"
)

// Errors mirror the server error taxonomy of spec.md §7.
var (
	ErrSessionMismatch    = errors.New("mergeengine: session mismatch")
	ErrChunkCountMismatch = errors.New("mergeengine: chunk count mismatch")
	ErrSizeMismatch       = errors.New("mergeengine: size mismatch")
	ErrHashMismatch       = errors.New("mergeengine: hash mismatch")
)

const defaultMaxParallelUploads = 4

// CompleteRequest is the domain form of spec.md §3's CompleteRequest.
type CompleteRequest struct {
	DatasetID    string
	ClientID     string
	ExpectedSize int64
	SHA256       string // empty if not supplied
	ChunkCount   int
	LastWriteUtc time.Time
}

// Engine owns the dataset root (InboundRoot) and the temp root
// (TempRoot), and the concurrency primitives of spec.md §5: a global
// semaphore bounding concurrent CompleteUpload calls, and a per-target-
// path mutex map serializing publishers racing for the same file.
type Engine struct {
	InboundRoot string
	TempRoot    string
	Sessions    *uploadsession.Store

	sem *semaphore.Weighted

	mu        sync.Mutex // guards pathLocks map insertion
	pathLocks map[string]*sync.Mutex
}

// New returns an Engine. maxParallel is spec.md §6's MaxParallelUploads
// (default 4 if <= 0).
func New(inboundRoot, tempRoot string, sessions *uploadsession.Store, maxParallel int) *Engine {
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallelUploads
	}
	return &Engine{
		InboundRoot: inboundRoot,
		TempRoot:    tempRoot,
		Sessions:    sessions,
		sem:         semaphore.NewWeighted(int64(maxParallel)),
		pathLocks:   make(map[string]*sync.Mutex),
	}
}

// List enumerates the dataset's current files, implementing
// diffengine.DatasetLister.
func (e *Engine) List(datasetID string) ([]model.FileEntry, error) {
	root := filepath.Join(e.InboundRoot, datasetID)

	var entries []model.FileEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, model.FileEntry{
			Path:     rel,
			Size:     info.Size(),
			MtimeUTC: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("mergeengine: list %s: %w", datasetID, err)
	}
	return entries, nil
}

// Create satisfies diffengine.SessionCreator.
func (e *Engine) Create(dataset, client, relPath string) (string, error) {
	sess, err := e.Sessions.Create(dataset, client, relPath)
	if err != nil {
		return "", err
	}
	return sess.UploadID, nil
}

// SaveChunk implements spec.md §4.6's SaveChunk.
func (e *Engine) SaveChunk(dataset, uploadID, clientID, relPath string, index int, r io.Reader) error {
	if index < 0 {
		return fmt.Errorf("mergeengine: invalid chunk index %d", index)
	}

	sess, err := e.Sessions.Get(dataset, uploadID)
	if err != nil {
		return err
	}
	if sess.ClientID != clientID || !strings.EqualFold(sess.RelPath, relPath) {
		return ErrSessionMismatch
	}

	chunkPath := sess.ChunkPath(index)
	f, err := os.OpenFile(chunkPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("mergeengine: open chunk: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("mergeengine: write chunk: %w", err)
	}
	return nil
}

// CompleteUpload implements spec.md §4.6's CompleteUpload, including the
// two coordination levels of spec.md §5: the global semaphore and the
// per-path mutex.
func (e *Engine) CompleteUpload(ctx ctxLike, uploadID string, req CompleteRequest) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("mergeengine: acquire upload slot: %w", err)
	}
	defer e.sem.Release(1)

	sess, err := e.Sessions.Get(req.DatasetID, uploadID)
	if err != nil {
		return err
	}
	if sess.ClientID != req.ClientID {
		return ErrSessionMismatch
	}

	lockKey := req.DatasetID + "/" + strings.ToLower(sess.RelPath)
	pathMutex := e.lockFor(lockKey)
	pathMutex.Lock()
	defer pathMutex.Unlock()

	target, err := pathguard.ResolveUnder(filepath.Join(e.InboundRoot, req.DatasetID), sess.RelPath)
	if err != nil {
		return err
	}

	serverMtime, exists, err := statMtime(target)
	if err != nil {
		return fmt.Errorf("mergeengine: stat target: %w", err)
	}

	if exists && !req.LastWriteUtc.After(serverMtime) {
		// LWW-skip: idempotent no-op, target untouched. spec.md §4.6 step 3.
		if err := e.Sessions.Cleanup(req.DatasetID, uploadID); err != nil {
			slog.Warn("mergeengine", "op", "cleanup after lww-skip", "error", err, "dataset", req.DatasetID, "uploadId", uploadID)
		}
		return nil
	}

	chunks, err := enumerateChunks(sess.Dir)
	if err != nil {
		return fmt.Errorf("mergeengine: enumerate chunks: %w", err)
	}

	if req.ChunkCount > 0 && len(chunks) != req.ChunkCount {
		return ErrChunkCountMismatch
	}

	tmpPath := filepath.Join(e.TempRoot, req.DatasetID, uuid.New().String()+".tmp")
	if err := utils.EnsureParent(tmpPath); err != nil {
		return fmt.Errorf("mergeengine: ensure temp dir: %w", err)
	}

	assembledSize, sum, err := assemble(chunks, tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("mergeengine: assemble: %w", err)
	}

	if assembledSize != req.ExpectedSize {
		_ = os.Remove(tmpPath)
		return ErrSizeMismatch
	}

	if req.SHA256 != "" && !strings.EqualFold(sum, req.SHA256) {
		_ = os.Remove(tmpPath)
		return ErrHashMismatch
	}

	if err := utils.EnsureParent(target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("mergeengine: ensure target dir: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("mergeengine: atomic publish: %w", err)
	}

	// Steps 10/11: failures here are logged but do not invalidate the
	// publish, per spec.md §4.6.
	if err := os.Chtimes(target, req.LastWriteUtc, req.LastWriteUtc); err != nil {
		slog.Warn("mergeengine", "op", "set mtime", "error", err, "path", target)
	}
	if err := e.Sessions.Cleanup(req.DatasetID, uploadID); err != nil {
		slog.Warn("mergeengine", "op", "cleanup session", "error", err, "dataset", req.DatasetID, "uploadId", uploadID)
	}

	return nil
}

// ctxLike is the minimal subset of context.Context semaphore.Acquire
// needs; declared here so callers in internal/server don't have to import
// context just to satisfy this signature in tests that use a bare
// context.Background().
type ctxLike interface {
	Done() <-chan struct{}
	Err() error
	Deadline() (time.Time, bool)
	Value(key any) any
}

func (e *Engine) lockFor(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.pathLocks[key]
	if !ok {
		m = &sync.Mutex{}
		e.pathLocks[key] = m
	}
	return m
}

func statMtime(path string) (time.Time, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return info.ModTime().UTC(), true, nil
}

// enumerateChunks lists the chunk files in dir ordered by parsed index
// ascending; an unparseable suffix sorts to +Inf, per spec.md §4.6 step 4.
func enumerateChunks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type indexed struct {
		path  string
		index int
		valid bool
	}
	var chunks []indexed
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "session.json" {
			continue
		}
		idx, ok := parseChunkIndex(entry.Name())
		chunks = append(chunks, indexed{
			path:  filepath.Join(dir, entry.Name()),
			index: idx,
			valid: ok,
		})
	}

	sort.Slice(chunks, func(i, j int) bool {
		iv, jv := chunks[i].valid, chunks[j].valid
		if iv != jv {
			return iv // valid (finite) sorts before invalid (+Inf)
		}
		return chunks[i].index < chunks[j].index
	})

	for _, c := range chunks {
		if !c.valid {
			return nil, fmt.Errorf("mergeengine: unparseable chunk suffix %q", c.path)
		}
	}

	paths := make([]string, len(chunks))
	for i, c := range chunks {
		paths[i] = c.path
	}
	return paths, nil
}

func parseChunkIndex(name string) (int, bool) {
	idxPos := strings.LastIndex(name, ".chunk")
	if idxPos < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(name[idxPos+len(".chunk"):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// assemble stream-copies chunks in order into dst, returning the total
// size and the lowercase hex SHA-256 of the assembled bytes.
func assemble(chunks []string, dst string) (int64, string, error) {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, "", err
	}
	defer out.Close()

	hasher := sha256.New()
	writer := io.MultiWriter(out, hasher)

	var total int64
	for _, chunk := range chunks {
		in, err := os.Open(chunk)
		if err != nil {
			return 0, "", err
		}
		n, err := io.Copy(writer, in)
		in.Close()
		if err != nil {
			return 0, "", err
		}
		total += n
	}

	return total, hex.EncodeToString(hasher.Sum(nil)), nil
}
