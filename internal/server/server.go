package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/filemirrorsync/filemirrorsync/internal/authgate"
	"github.com/filemirrorsync/filemirrorsync/internal/deleteengine"
	"github.com/filemirrorsync/filemirrorsync/internal/diffengine"
	"github.com/filemirrorsync/filemirrorsync/internal/mergeengine"
	"github.com/filemirrorsync/filemirrorsync/internal/uploadsession"
)

const defaultSessionGCInterval = time.Hour

// Server owns the HTTP listener and the background session-GC loop.
// Grounded on internal/server/server.go's Server-wraps-http.Server shape
// and background-goroutine-plus-graceful-Stop idiom in the teacher repo.
type Server struct {
	config   *Config
	http     *http.Server
	sessions *uploadsession.Store
}

// New constructs a Server and wires the engines per SPEC_FULL.md's
// MODULE CROSSWALK: Merge owns InboundRoot/TempRoot, Diff consults Merge
// as its DatasetLister/SessionCreator, Delete and AuthGate round out the
// remaining endpoints.
func New(config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("server: invalid config: %w", err)
	}

	policy, err := ParseDeleteStrategy(config.DeleteStrategy)
	if err != nil {
		return nil, err
	}

	sessions := uploadsession.New(config.TempRoot)
	merge := mergeengine.New(config.InboundRoot, config.TempRoot, sessions, config.MaxParallelUploads)
	del := deleteengine.New(config.InboundRoot)
	diff := diffengine.New(merge, merge)
	gate := authgate.New(config.ApiKeys.DatasetKeys, config.ApiKeys.ClientKeys)

	handler := SetupRoutes(merge, del, diff, gate, policy, config.RateLimit)

	return &Server{
		config: config,
		http: &http.Server{
			Addr:    config.Addr,
			Handler: handler,
		},
		sessions: sessions,
	}, nil
}

// Start runs the HTTP listener and the session-GC loop until ctx is
// cancelled, then gracefully stops.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("filemirrorsync server start", "addr", s.config.Addr)
	defer slog.Info("filemirrorsync server stop")

	gcInterval := s.config.SessionGCInterval
	if gcInterval <= 0 {
		gcInterval = defaultSessionGCInterval
	}
	gcCtx, cancelGC := context.WithCancel(ctx)
	defer cancelGC()
	go s.runSessionGC(gcCtx, gcInterval)

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.Stop(context.Background())
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts down the HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// runSessionGC periodically removes upload sessions older than the GC
// horizon, per spec.md §9's "session lifetime vs. client retries".
func (s *Server) runSessionGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.sessions.GC(2 * interval)
			if err != nil {
				slog.Warn("session gc", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("session gc", "removed", removed)
			}
		}
	}
}
