// Package sweep deletes retired trees in the background. Retirement only
// relocates a tree under the holding root; this collaborator performs the
// actual deletion in small leaf-first batches so no batch holds the
// database for long.
package sweep

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/caldermaw/graft/internal/apperr"
	"github.com/caldermaw/graft/internal/treestore"
)

// EventCallback is called after a tree has been fully deleted.
type EventCallback func(treeID int64)

// Sweeper periodically removes retired trees no channel references.
type Sweeper struct {
	store     *treestore.Store
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	cb        EventCallback
}

// New creates a sweeper. cb may be nil.
func New(store *treestore.Store, interval time.Duration, batchSize int, logger *slog.Logger, cb EventCallback) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Sweeper{store: store, interval: interval, batchSize: batchSize, logger: logger, cb: cb}
}

// Run processes retired trees until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweep: started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweep: stopped")
			return nil
		case <-ticker.C:
			s.Pass(ctx)
		}
	}
}

// Pass deletes every currently unreferenced retired tree. Exposed so tests
// and shutdown paths can drive a sweep synchronously.
func (s *Sweeper) Pass(ctx context.Context) {
	ids, err := s.store.RetiredTreeIDs()
	if err != nil {
		s.logger.Warn("sweep: list retired failed", slog.String("error", err.Error()))
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := s.deleteTree(ctx, id); err != nil {
			s.logger.Warn("sweep: delete failed",
				slog.Int64("tree", id), slog.String("error", err.Error()))
			continue
		}
		s.logger.Debug("sweep: tree deleted", slog.Int64("tree", id))
		if s.cb != nil {
			s.cb(id)
		}
	}
}

// deleteTree removes one tree batch by batch until nothing is left. The
// tree row itself disappears with the last batch, so a NotFound here means
// the tree is gone.
func (s *Sweeper) deleteTree(ctx context.Context, treeID int64) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := s.store.DeleteTreeNodes(treeID, s.batchSize)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}
