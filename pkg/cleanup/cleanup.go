package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/store"
)

// Reaper periodically deletes files whose last_modified exceeds the
// configured maximum age, removing both the metadata rows and the content
// on disk.
type Reaper struct {
	cfg    *config.Config
	store  store.Store
	logger zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReaper creates a Reaper; call Start to begin the loop.
func NewReaper(cfg *config.Config, st store.Store) *Reaper {
	return &Reaper{
		cfg:    cfg,
		store:  st,
		logger: log.WithComponent("cleanup"),
	}
}

// Start launches the background loop. One pass runs immediately, then one
// per configured interval until Stop.
func (r *Reaper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		r.logger.Info().
			Dur("interval", r.cfg.CleanupRunInterval).
			Dur("max_age", r.cfg.CleanupFileMaxAge).
			Msg("Cleanup loop started")

		ticker := time.NewTicker(r.cfg.CleanupRunInterval)
		defer ticker.Stop()

		r.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("Cleanup loop stopped")
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()
}

// Stop terminates the loop and waits for an in-flight pass to finish.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// RunOnce performs a single cleanup pass. A failed content unlink is logged
// and skipped; the metadata row is already gone and a later pass cannot
// retry it, so the loop must not stall on it.
func (r *Reaper) RunOnce(ctx context.Context) {
	reaped, err := r.store.Reap(ctx, r.cfg.CleanupFileMaxAge)
	if err != nil {
		r.logger.Error().Err(err).Msg("Cleanup pass failed")
		return
	}
	if len(reaped) == 0 {
		r.logger.Debug().Msg("Cleanup pass found nothing to remove")
		return
	}

	sessions := make(map[string]struct{})
	for _, rec := range reaped {
		abs := filepath.Join(r.cfg.UploadPathAbs(), filepath.FromSlash(rec.Filepath))
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			r.logger.Warn().Err(err).Str("path", abs).Msg("Failed to remove expired file")
		}
		sessions[rec.SessionID] = struct{}{}
		metrics.FilesReapedTotal.Inc()
	}

	for sessionID := range sessions {
		r.removeDirIfEmpty(filepath.Join(r.cfg.UploadPathAbs(), sessionID))
	}

	r.logger.Info().Int("files", len(reaped)).Msg("Cleanup pass removed expired files")
}

func (r *Reaper) removeDirIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(dir); err != nil {
		r.logger.Debug().Err(err).Str("dir", dir).Msg("Failed to remove empty session directory")
	}
}
