// Package treebuilder constructs whole trees and subtrees from external
// descriptors inside single transactions with deferred index maintenance.
package treebuilder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/caldermaw/graft/internal/apperr"
	"github.com/caldermaw/graft/internal/diff"
	"github.com/caldermaw/graft/internal/models"
	"github.com/caldermaw/graft/internal/storage"
	"github.com/caldermaw/graft/internal/treestore"
)

// Service builds trees from structural and flat-list payloads.
type Service struct {
	store    *treestore.Store
	payloads storage.Provider
}

// NewService creates a builder over the store and payload provider.
func NewService(store *treestore.Store, payloads storage.Provider) *Service {
	return &Service{store: store, payloads: payloads}
}

// authorize checks once per channel that the actor is a registered editor.
func authorize(q treestore.Queries, channelID, actor string) error {
	ok, err := q.IsEditor(channelID, actor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("treebuilder: user %s is not an editor of channel %s: %w",
			actor, channelID, apperr.ErrAuthorization)
	}
	return nil
}

// CreateChannel gets or creates a channel and gives it a fresh chef tree for
// incoming ingestion output. The previous chef tree, if any, is retired
// rather than deleted. A new channel (or one with no editors yet) adopts the
// actor as editor; otherwise the actor must already be one.
func (s *Service) CreateChannel(_ context.Context, actor string, payload models.ChannelPayload) (*models.Channel, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("treebuilder: channel payload: %v: %w", err, apperr.ErrValidation)
	}

	tx, err := s.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	prior, err := tx.GetChannel(payload.ID)
	isNew := errors.Is(err, apperr.ErrNotFound)
	if err != nil && !isNew {
		return nil, err
	}

	created, err := tx.UpsertChannel(payload)
	if err != nil {
		return nil, err
	}
	editors, err := tx.EditorCount(payload.ID)
	if err != nil {
		return nil, err
	}
	if created || editors == 0 {
		if err := tx.AddEditor(payload.ID, actor); err != nil {
			return nil, err
		}
	} else if err := authorize(tx, payload.ID, actor); err != nil {
		return nil, err
	}

	root := &models.Node{
		PK:           uuid.NewString(),
		NodeID:       payload.ID,
		ContentID:    payload.ID,
		Kind:         models.KindTopic,
		Title:        payload.Name,
		SourceID:     payload.SourceID,
		SourceDomain: payload.SourceDomain,
		Language:     payload.Language,
	}
	chefTreeID, err := tx.CreateTree(root)
	if err != nil {
		return nil, err
	}

	var mainID, stagingID, previousID, oldChefID int64
	if prior != nil {
		mainID, stagingID, previousID, oldChefID = prior.MainTreeID, prior.StagingTreeID, prior.PreviousTreeID, prior.ChefTreeID
	}
	if err := tx.SetTreePointers(payload.ID, mainID, stagingID, chefTreeID, previousID); err != nil {
		return nil, err
	}
	// Replace-not-delete: the superseded chef tree is relocated for the sweep.
	if oldChefID != 0 && oldChefID != stagingID {
		if err := tx.Retire(oldChefID, fmt.Sprintf("Old chef tree for channel %s", payload.ID)); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("treebuilder: commit channel create: %w", err)
	}
	return s.store.GetChannel(payload.ID)
}

// BuildFromStructure builds a complete staging tree for the channel from a
// nested structural payload. Descriptor references resolve through the
// content-addressed store. The whole build runs in one transaction and one
// bulk-insert scope closed by exactly one index rebuild.
func (s *Service) BuildFromStructure(_ context.Context, actor, channelID string, structure map[string]models.StructureEntry) (*models.Channel, error) {
	ch, err := s.store.GetChannel(channelID)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.store, channelID, actor); err != nil {
		return nil, err
	}
	if len(structure) != 1 {
		return nil, fmt.Errorf("treebuilder: channel structure expected one root entry, found %d: %w",
			len(structure), apperr.ErrValidation)
	}

	var rootRef string
	var rootEntry models.StructureEntry
	for ref, entry := range structure {
		rootRef, rootEntry = ref, entry
	}
	rootDesc, err := s.resolveDescriptor(rootRef)
	if err != nil {
		return nil, err
	}
	if rootDesc.NodeID == "" || rootDesc.Title == "" {
		return nil, fmt.Errorf("treebuilder: root descriptor %s missing node_id or title: %w",
			rootRef, apperr.ErrValidation)
	}

	tx, err := s.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	root := nodeFromDescriptor(rootDesc, "", 0)
	root.Kind = models.KindTopic
	if root.ContentID == "" {
		root.ContentID = root.NodeID
	}
	treeID, err := tx.CreateTree(root)
	if err != nil {
		return nil, err
	}

	scope, err := tx.BeginBulk(treeID)
	if err != nil {
		return nil, err
	}

	// Explicit frame stack: structural payloads may nest arbitrarily deep.
	type frame struct {
		parentPK string
		ref      string
		entry    models.StructureEntry
	}
	stack := make([]frame, 0, len(rootEntry.Children))
	for ref, entry := range rootEntry.Children {
		stack = append(stack, frame{parentPK: root.PK, ref: ref, entry: entry})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		desc, err := s.resolveDescriptor(f.ref)
		if err != nil {
			return nil, err
		}
		node, err := s.createNode(tx, scope, channelID, desc, f.parentPK, f.entry.Order, f.ref)
		if err != nil {
			return nil, err
		}
		for ref, entry := range f.entry.Children {
			stack = append(stack, frame{parentPK: node.PK, ref: ref, entry: entry})
		}
	}

	if err := tx.Rebuild(treeID); err != nil {
		return nil, err
	}

	oldStaging := ch.StagingTreeID
	if err := tx.SetTreePointers(channelID, ch.MainTreeID, treeID, ch.ChefTreeID, ch.PreviousTreeID); err != nil {
		return nil, err
	}
	if oldStaging != 0 && oldStaging != ch.MainTreeID {
		if err := tx.Retire(oldStaging, fmt.Sprintf("Old staging tree for channel %s", channelID)); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("treebuilder: commit structure build: %w", err)
	}
	return s.store.GetChannel(channelID)
}

// AddToTree appends flat-list descriptors as direct children of parentPK.
// Resubmitting a descriptor whose node_id already exists among the parent's
// children is a no-op for that entry, so retried requests never duplicate
// nodes. Returns a mapping from each created descriptor's transient node_id
// to the new node's key.
func (s *Service) AddToTree(_ context.Context, actor, parentPK string, descriptors []models.NodeDescriptor) (map[string]string, error) {
	parent, err := s.store.GetNode(parentPK)
	if err != nil {
		return nil, err
	}
	ch, err := s.store.ChannelForTree(parent.TreeID)
	if err != nil {
		return nil, err
	}
	// Once per channel, not per node.
	if err := authorize(s.store, ch.ID, actor); err != nil {
		return nil, err
	}

	tx, err := s.store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := tx.ChildNodeIDs(parentPK)
	if err != nil {
		return nil, err
	}
	count, err := tx.ChildCount(parentPK)
	if err != nil {
		return nil, err
	}
	scope, err := tx.BeginBulk(parent.TreeID)
	if err != nil {
		return nil, err
	}

	engine := diff.New(tx)
	mapping := map[string]string{}
	sortOrder := float64(count + 1)
	for i, desc := range descriptors {
		// Skips both node_ids already present among the children and repeats
		// within this request, so one call can never mint duplicates.
		if _, ok := existing[desc.NodeID]; ok {
			continue
		}
		node, err := s.createNode(tx, scope, ch.ID, desc, parentPK, sortOrder, fmt.Sprintf("entry %d", i))
		if err != nil {
			return nil, err
		}
		existing[desc.NodeID] = struct{}{}
		sortOrder++

		// Stage the field diff against the main-tree counterpart, if any.
		if ch.MainTreeID != 0 {
			if err := s.stampNodeDiff(tx, engine, node, ch.MainTreeID); err != nil {
				return nil, err
			}
		}
		mapping[desc.NodeID] = node.PK
	}

	if err := tx.Rebuild(parent.TreeID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("treebuilder: commit flat append: %w", err)
	}
	return mapping, nil
}

// createNode validates a descriptor, resolves its license, inserts the node
// through the bulk scope, and attaches its sub-entities.
func (s *Service) createNode(tx *treestore.Tx, scope *treestore.BulkScope, channelID string,
	desc models.NodeDescriptor, parentPK string, sortOrder float64, origin string) (*models.Node, error) {

	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("treebuilder: %s: %v: %w", origin, err, apperr.ErrValidation)
	}
	if desc.License != "" {
		if _, err := tx.ResolveLicense(desc.License); err != nil {
			return nil, fmt.Errorf("treebuilder: %s: invalid license %q: %w", origin, desc.License, err)
		}
	}

	node := nodeFromDescriptor(desc, parentPK, sortOrder)
	if err := scope.Insert(node); err != nil {
		return nil, err
	}
	if err := tx.AttachFiles(node.PK, desc.Files); err != nil {
		return nil, err
	}
	if err := tx.AttachQuestions(node.PK, desc.Questions); err != nil {
		return nil, err
	}
	for _, tag := range desc.Tags {
		if err := tx.LookupOrCreateTag(tag, channelID); err != nil {
			return nil, err
		}
	}
	if len(desc.Tags) > 0 {
		if err := tx.SetNodeTags(node.PK, desc.Tags); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// stampNodeDiff computes and stores the staged field diff for a node whose
// position identity already exists in the main tree.
func (s *Service) stampNodeDiff(tx *treestore.Tx, engine *diff.Engine, node *models.Node, mainTreeID int64) error {
	counterpart, err := tx.NodeByNodeID(mainTreeID, node.NodeID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil // new slot, nothing to revise
	}
	if err != nil {
		return err
	}
	fields, err := engine.NodeDiff(node, counterpart)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	node.Changed = true
	node.ChangedStagingFields = fields
	return tx.SetNodeDiff(node.PK, fields)
}

// resolveDescriptor reads and decodes a payload from the content-addressed
// store.
func (s *Service) resolveDescriptor(ref string) (models.NodeDescriptor, error) {
	var desc models.NodeDescriptor
	data, err := s.payloads.Read(ref)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return desc, fmt.Errorf("treebuilder: payload %s: %w", ref, apperr.ErrNotFound)
		}
		return desc, err
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return desc, fmt.Errorf("treebuilder: payload %s: %v: %w", ref, err, apperr.ErrValidation)
	}
	return desc, nil
}

func nodeFromDescriptor(d models.NodeDescriptor, parentPK string, sortOrder float64) *models.Node {
	role := d.Role
	if role == "" {
		role = models.RoleLearner
	}
	return &models.Node{
		PK:                 uuid.NewString(),
		NodeID:             d.NodeID,
		ContentID:          d.ContentID,
		ParentPK:           parentPK,
		Kind:               d.Kind,
		SortOrder:          sortOrder,
		Title:              d.Title,
		Description:        d.Description,
		License:            d.License,
		LicenseDescription: d.LicenseDescription,
		Language:           d.Language,
		Author:             d.Author,
		Aggregator:         d.Aggregator,
		Provider:           d.Provider,
		CopyrightHolder:    d.CopyrightHolder,
		RoleVisibility:     role,
		SourceID:           d.SourceID,
		SourceDomain:       d.SourceDomain,
		ExtraFields:        d.ExtraFields,
	}
}
