// Package commit promotes staged trees into visibility and retires the
// trees they supersede.
package commit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/caldermaw/graft/internal/apperr"
	"github.com/caldermaw/graft/internal/models"
	"github.com/caldermaw/graft/internal/treestore"
)

// Channel status values reported by Status.
const (
	StatusActive      = "active"
	StatusStaged      = "staged"
	StatusUnpublished = "unpublished"
	StatusDeleted     = "deleted"
)

// Activator is the downstream collaborator step that exposes a promoted
// tree externally (publishing, cache invalidation). It runs after the
// pointer swap has committed.
type Activator interface {
	Activate(ctx context.Context, channel *models.Channel, actor string) error
}

// NopActivator performs no downstream activation.
type NopActivator struct{}

// Activate implements Activator.
func (NopActivator) Activate(context.Context, *models.Channel, string) error { return nil }

// Coordinator owns every reassignment of a channel's tree pointers.
type Coordinator struct {
	store     *treestore.Store
	activator Activator
	logger    *slog.Logger
}

// New creates a coordinator. A nil activator disables downstream activation.
func New(store *treestore.Store, activator Activator, logger *slog.Logger) *Coordinator {
	if activator == nil {
		activator = NopActivator{}
	}
	return &Coordinator{store: store, activator: activator, logger: logger}
}

// PromoteChef moves a channel's chef tree into the staging slot: the tree's
// ordering index is finalized, provenance is stamped across the subtree, and
// the pointer change happens in the same transaction. The superseded staging
// tree is relocated for the sweep, never deleted here.
func (c *Coordinator) PromoteChef(_ context.Context, channelID string) (*models.Channel, error) {
	ch, err := c.store.GetChannel(channelID)
	if err != nil {
		return nil, err
	}
	if ch.ChefTreeID == 0 {
		return nil, fmt.Errorf("commit: channel %s has no chef tree: %w", channelID, apperr.ErrPrecondition)
	}

	tx, err := c.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	// Bulk construction left the index unfinalized; the rebuild must land in
	// the same atomic unit that exposes the tree to reviewers.
	if err := tx.Rebuild(ch.ChefTreeID); err != nil {
		return nil, err
	}
	if err := tx.StampProvenance(ch.ChefTreeID, channelID); err != nil {
		return nil, err
	}
	oldStaging := ch.StagingTreeID
	if err := tx.SetTreePointers(channelID, ch.MainTreeID, ch.ChefTreeID, 0, ch.PreviousTreeID); err != nil {
		return nil, err
	}
	if oldStaging != 0 && oldStaging != ch.MainTreeID {
		if err := tx.Retire(oldStaging, fmt.Sprintf("Old staging tree for channel %s", channelID)); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: promote chef: %w", err)
	}
	return c.store.GetChannel(channelID)
}

// Activate promotes a channel's staging tree into the main-tree role. The
// swap transaction finalizes the index, stamps provenance, points main at
// the staging tree, clears the staging pointer, and keeps the old main tree
// as previous_tree for later diffing. The tree displaced from the previous
// slot is retired afterwards, outside the swap transaction, so the
// relocation never extends the pointer-swap lock window.
//
// If downstream activation fails after the swap has committed, retirement
// still completes and the error is reported: the old main tree survives as
// previous_tree, so nothing is lost, and the newly promoted tree is simply
// not yet externally visible.
func (c *Coordinator) Activate(ctx context.Context, actor, channelID string) (*models.Channel, error) {
	ch, err := c.store.GetChannel(channelID)
	if err != nil {
		return nil, err
	}
	if ch.StagingTreeID == 0 {
		return nil, fmt.Errorf("commit: channel %s has nothing staged: %w", channelID, apperr.ErrPrecondition)
	}
	ok, err := c.store.IsEditor(channelID, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("commit: user %s is not an editor of channel %s: %w",
			actor, channelID, apperr.ErrAuthorization)
	}

	tx, err := c.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := tx.Rebuild(ch.StagingTreeID); err != nil {
		return nil, err
	}
	if err := tx.StampProvenance(ch.StagingTreeID, channelID); err != nil {
		return nil, err
	}

	newPrevious := ch.MainTreeID
	displaced := ch.PreviousTreeID
	if err := tx.SetTreePointers(channelID, ch.StagingTreeID, 0, ch.ChefTreeID, newPrevious); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: pointer swap: %w", err)
	}

	// Only after the swap is durable: relocate the displaced snapshot.
	if displaced != 0 && displaced != newPrevious && displaced != ch.StagingTreeID {
		if err := c.store.Retire(displaced, fmt.Sprintf("Old snapshot tree for channel %s", channelID)); err != nil {
			return nil, err
		}
	}

	updated, err := c.store.GetChannel(channelID)
	if err != nil {
		return nil, err
	}
	if err := c.activator.Activate(ctx, updated, actor); err != nil {
		c.logger.Warn("downstream activation failed after pointer swap",
			slog.String("channel", channelID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("commit: downstream activation: %w", err)
	}
	return updated, nil
}

// Status classifies a channel for ingestion clients. Unknown channels
// report active (nothing is staged for them); unpublished means the main
// tree carries changed nodes with no staging tree yet created.
func (c *Coordinator) Status(channelID string) (string, error) {
	ch, err := c.store.GetChannel(channelID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return StatusActive, nil
		}
		return "", err
	}
	switch {
	case ch.Deleted:
		return StatusDeleted, nil
	case ch.StagingTreeID != 0:
		return StatusStaged, nil
	case ch.MainTreeID != 0:
		changed, err := c.store.HasChangedDescendants(ch.MainTreeID)
		if err != nil {
			return "", err
		}
		if changed {
			return StatusUnpublished, nil
		}
	}
	return StatusActive, nil
}
