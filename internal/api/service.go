package api

import (
	"context"
	"fmt"

	"github.com/caldermaw/graft/internal/apperr"
	"github.com/caldermaw/graft/internal/commit"
	"github.com/caldermaw/graft/internal/diff"
	"github.com/caldermaw/graft/internal/models"
	"github.com/caldermaw/graft/internal/treebuilder"
	"github.com/caldermaw/graft/internal/treestore"
)

// Notifier receives channel lifecycle notifications. *sse.Broker satisfies it.
type Notifier interface {
	PublishChannelEvent(kind, channelID string)
}

type nopNotifier struct{}

func (nopNotifier) PublishChannelEvent(string, string) {}

// Service coordinates the import, diff and commit collaborators for the API
// layer.
type Service struct {
	store   *treestore.Store
	builder *treebuilder.Service
	engine  *diff.Engine
	coord   *commit.Coordinator
	notify  Notifier
}

// NewService creates a new API service. notify may be nil.
func NewService(store *treestore.Store, builder *treebuilder.Service, engine *diff.Engine, coord *commit.Coordinator, notify Notifier) *Service {
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Service{store: store, builder: builder, engine: engine, coord: coord, notify: notify}
}

// CreateChannel creates or re-ingests a channel and returns it together with
// the primary key of the fresh chef root, which subsequent node imports
// attach under.
func (s *Service) CreateChannel(ctx context.Context, actor string, payload models.ChannelPayload) (*models.Channel, string, error) {
	ch, err := s.builder.CreateChannel(ctx, actor, payload)
	if err != nil {
		return nil, "", err
	}
	tree, err := s.store.GetTree(ch.ChefTreeID)
	if err != nil {
		return nil, "", fmt.Errorf("api: chef tree for channel %s: %w", ch.ID, err)
	}
	s.notify.PublishChannelEvent("created", ch.ID)
	return ch, tree.RootPK, nil
}

// BuildStructure ingests a nested structural payload as the channel's new
// staging tree.
func (s *Service) BuildStructure(ctx context.Context, actor, channelID string, structure map[string]models.StructureEntry) (*models.Channel, error) {
	ch, err := s.builder.BuildFromStructure(ctx, actor, channelID, structure)
	if err != nil {
		return nil, err
	}
	s.notify.PublishChannelEvent("staged", ch.ID)
	return ch, nil
}

// AddNodes imports a flat list of descriptors as children of an existing
// node. The returned map relates each descriptor's node id to the primary
// key of the created row.
func (s *Service) AddNodes(ctx context.Context, actor, parentPK string, descriptors []models.NodeDescriptor) (map[string]string, error) {
	return s.builder.AddToTree(ctx, actor, parentPK, descriptors)
}

// StagedDiff reports the staged tree against the live one.
func (s *Service) StagedDiff(channelID string) (*diff.Result, error) {
	return s.engine.StagedDiff(channelID)
}

// Commit promotes the chef tree to staging. When activate is set the staged
// tree is made live in the same request.
func (s *Service) Commit(ctx context.Context, actor, channelID string, activate bool) (*models.Channel, error) {
	// Resolve the channel before the editor check so an unknown channel
	// reports not-found rather than not-authorized.
	if _, err := s.store.GetChannel(channelID); err != nil {
		return nil, err
	}
	ok, err := s.store.IsEditor(channelID, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("api: user %s cannot commit channel %s: %w", actor, channelID, apperr.ErrAuthorization)
	}
	ch, err := s.coord.PromoteChef(ctx, channelID)
	if err != nil {
		return nil, err
	}
	s.notify.PublishChannelEvent("committed", ch.ID)
	if activate {
		return s.Activate(ctx, actor, channelID)
	}
	return ch, nil
}

// Activate makes the staged tree live.
func (s *Service) Activate(ctx context.Context, actor, channelID string) (*models.Channel, error) {
	ch, err := s.coord.Activate(ctx, actor, channelID)
	if err != nil {
		return nil, err
	}
	s.notify.PublishChannelEvent("activated", ch.ID)
	return ch, nil
}

// Status reports the lifecycle status of one channel.
func (s *Service) Status(channelID string) (string, error) {
	return s.coord.Status(channelID)
}

// BulkStatus reports the lifecycle status of several channels at once.
func (s *Service) BulkStatus(channelIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(channelIDs))
	for _, id := range channelIDs {
		st, err := s.coord.Status(id)
		if err != nil {
			return nil, err
		}
		out[id] = st
	}
	return out, nil
}

// Compare summarizes node presence between the previous tree and the live or
// staged one.
func (s *Service) Compare(channelID string, useStaging bool) (*diff.CompareResult, error) {
	return s.engine.CompareTrees(channelID, useStaging)
}

// TreeData returns the named tree of a channel as nested topic data.
func (s *Service) TreeData(channelID, which string) (*TreeNode, error) {
	ch, err := s.store.GetChannel(channelID)
	if err != nil {
		return nil, err
	}
	var treeID int64
	switch which {
	case "", "main":
		treeID = ch.MainTreeID
	case "staging":
		treeID = ch.StagingTreeID
	case "chef":
		treeID = ch.ChefTreeID
	case "previous":
		treeID = ch.PreviousTreeID
	default:
		return nil, fmt.Errorf("api: unknown tree %q: %w", which, apperr.ErrValidation)
	}
	if treeID == 0 {
		return nil, fmt.Errorf("api: channel %s has no %s tree: %w", channelID, which, apperr.ErrPrecondition)
	}
	tree, err := s.store.GetTree(treeID)
	if err != nil {
		return nil, err
	}
	nodes, err := s.store.Descendants(tree.RootPK, true)
	if err != nil {
		return nil, err
	}

	// Descendants come back in tree order, so parents precede children and
	// siblings arrive already sorted.
	byPK := make(map[string]*TreeNode, len(nodes))
	var root *TreeNode
	for _, n := range nodes {
		tn := &TreeNode{
			ID:        n.PK,
			NodeID:    n.NodeID,
			ContentID: n.ContentID,
			Kind:      n.Kind,
			Title:     n.Title,
			SortOrder: n.SortOrder,
		}
		byPK[n.PK] = tn
		if parent, ok := byPK[n.ParentPK]; ok {
			parent.Children = append(parent.Children, tn)
		} else if root == nil {
			root = tn
		}
	}
	return root, nil
}
