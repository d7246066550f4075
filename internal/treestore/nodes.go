package treestore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/caldermaw/graft/internal/apperr"
	"github.com/caldermaw/graft/internal/models"
)

const nodeColumns = `pk, node_id, content_id, tree_id, COALESCE(parent_pk, ''),
	kind, sort_order, lft, rght, depth,
	title, description, license, license_description, language,
	author, aggregator, provider, copyright_holder, role_visibility,
	source_id, source_domain, extra_fields,
	origin_channel_id, source_channel_id, changed, changed_staging_fields`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(r rowScanner) (*models.Node, error) {
	var n models.Node
	var changedFields string
	err := r.Scan(&n.PK, &n.NodeID, &n.ContentID, &n.TreeID, &n.ParentPK,
		&n.Kind, &n.SortOrder, &n.Left, &n.Right, &n.Level,
		&n.Title, &n.Description, &n.License, &n.LicenseDescription, &n.Language,
		&n.Author, &n.Aggregator, &n.Provider, &n.CopyrightHolder, &n.RoleVisibility,
		&n.SourceID, &n.SourceDomain, &n.ExtraFields,
		&n.OriginChannelID, &n.SourceChannelID, &n.Changed, &changedFields)
	if err != nil {
		return nil, err
	}
	if changedFields != "" {
		if err := json.Unmarshal([]byte(changedFields), &n.ChangedStagingFields); err != nil {
			return nil, fmt.Errorf("treestore: decode staged fields for %s: %w", n.PK, err)
		}
	}
	return &n, nil
}

// GetNode returns the node with the given surrogate key.
func (o ops) GetNode(pk string) (*models.Node, error) {
	row := o.db.QueryRow(`SELECT `+nodeColumns+` FROM nodes WHERE pk = ?`, pk)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("treestore: node %s: %w", pk, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("treestore: get node: %w", err)
	}
	return n, nil
}

// NodeByNodeID returns the node with the given position identity inside one
// tree, or ErrNotFound. Position identities are unique within a tree.
func (o ops) NodeByNodeID(treeID int64, nodeID string) (*models.Node, error) {
	row := o.db.QueryRow(`SELECT `+nodeColumns+` FROM nodes WHERE tree_id = ? AND node_id = ?`,
		treeID, nodeID)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("treestore: node id %s in tree %d: %w", nodeID, treeID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("treestore: node by node id: %w", err)
	}
	return n, nil
}

// insertNode writes a node row. Bound maintenance is the caller's concern:
// bulk scopes leave bounds zeroed until Rebuild.
func (o ops) insertNode(n *models.Node) error {
	var changedFields any = ""
	if len(n.ChangedStagingFields) > 0 {
		b, err := json.Marshal(n.ChangedStagingFields)
		if err != nil {
			return fmt.Errorf("treestore: encode staged fields: %w", err)
		}
		changedFields = string(b)
	}
	var parent any
	if n.ParentPK != "" {
		parent = n.ParentPK
	}
	_, err := o.db.Exec(`
		INSERT INTO nodes (pk, node_id, content_id, tree_id, parent_pk,
			kind, sort_order, lft, rght, depth,
			title, description, license, license_description, language,
			author, aggregator, provider, copyright_holder, role_visibility,
			source_id, source_domain, extra_fields,
			origin_channel_id, source_channel_id, changed, changed_staging_fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.PK, n.NodeID, n.ContentID, n.TreeID, parent,
		n.Kind, n.SortOrder, n.Left, n.Right, n.Level,
		n.Title, n.Description, n.License, n.LicenseDescription, n.Language,
		n.Author, n.Aggregator, n.Provider, n.CopyrightHolder, n.RoleVisibility,
		n.SourceID, n.SourceDomain, n.ExtraFields,
		n.OriginChannelID, n.SourceChannelID, n.Changed, changedFields)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("treestore: node %s already exists in tree %d: %w",
				n.NodeID, n.TreeID, apperr.ErrIntegrity)
		}
		return fmt.Errorf("treestore: insert node %s: %w", n.NodeID, err)
	}
	return nil
}

// Descendants returns all nodes in the subtree rooted at pk, ordered by the
// finalized ordering index. It fails with ErrStaleIndex when the owning
// tree's index has not been rebuilt since the last bulk insert.
func (o ops) Descendants(pk string, includeSelf bool) ([]*models.Node, error) {
	n, err := o.GetNode(pk)
	if err != nil {
		return nil, err
	}
	stale, err := o.treeStale(n.TreeID)
	if err != nil {
		return nil, err
	}
	if stale {
		return nil, fmt.Errorf("treestore: tree %d: %w", n.TreeID, apperr.ErrStaleIndex)
	}
	lower, upper := n.Left, n.Right
	if !includeSelf {
		lower++
		upper--
	}
	rows, err := o.db.Query(`SELECT `+nodeColumns+` FROM nodes
		WHERE tree_id = ? AND lft >= ? AND rght <= ? ORDER BY lft`,
		n.TreeID, lower, upper)
	if err != nil {
		return nil, fmt.Errorf("treestore: descendants: %w", err)
	}
	defer rows.Close()

	var out []*models.Node
	for rows.Next() {
		d, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("treestore: descendants scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Ancestors returns the chain from the node's parent up to its tree root.
func (o ops) Ancestors(pk string) ([]*models.Node, error) {
	var out []*models.Node
	cur, err := o.GetNode(pk)
	if err != nil {
		return nil, err
	}
	for cur.ParentPK != "" {
		cur, err = o.GetNode(cur.ParentPK)
		if err != nil {
			return nil, err
		}
		out = append(out, cur)
	}
	return out, nil
}

// Move reassigns a node's parent and sibling position within its tree.
// It does not rebuild the ordering index; the tree is marked stale until
// Rebuild runs. Cross-tree moves are rejected, relocation between trees is
// the retirement path's job.
func (o ops) Move(pk, newParentPK string, sortOrder float64) error {
	node, err := o.GetNode(pk)
	if err != nil {
		return err
	}
	parent, err := o.GetNode(newParentPK)
	if err != nil {
		return err
	}
	if parent.TreeID != node.TreeID {
		return fmt.Errorf("treestore: move across trees: %w", apperr.ErrIntegrity)
	}
	_, err = o.db.Exec(`UPDATE nodes SET parent_pk = ?, sort_order = ? WHERE pk = ?`,
		newParentPK, sortOrder, pk)
	if err != nil {
		return fmt.Errorf("treestore: move node: %w", err)
	}
	return o.markStale(node.TreeID)
}

// ChildCount returns the number of direct children of pk.
func (o ops) ChildCount(pk string) (int, error) {
	var n int
	err := o.db.QueryRow(`SELECT count(*) FROM nodes WHERE parent_pk = ?`, pk).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("treestore: child count: %w", err)
	}
	return n, nil
}

// ChildNodeIDs returns the node_id values of the direct children of pk.
// The flat-list builder uses it to skip resubmitted descriptors.
func (o ops) ChildNodeIDs(pk string) (map[string]struct{}, error) {
	rows, err := o.db.Query(`SELECT node_id FROM nodes WHERE parent_pk = ?`, pk)
	if err != nil {
		return nil, fmt.Errorf("treestore: child node ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// SetNodeDiff stores a node's precomputed field diff and changed flag.
func (o ops) SetNodeDiff(pk string, diff map[string]any) error {
	encoded := ""
	if len(diff) > 0 {
		b, err := json.Marshal(diff)
		if err != nil {
			return fmt.Errorf("treestore: encode node diff: %w", err)
		}
		encoded = string(b)
	}
	_, err := o.db.Exec(`UPDATE nodes SET changed = ?, changed_staging_fields = ? WHERE pk = ?`,
		len(diff) > 0, encoded, pk)
	if err != nil {
		return fmt.Errorf("treestore: set node diff: %w", err)
	}
	return nil
}

// StampProvenance sets the origin/source channel identifiers across an
// entire tree, root included.
func (o ops) StampProvenance(treeID int64, channelID string) error {
	_, err := o.db.Exec(`UPDATE nodes SET origin_channel_id = ?, source_channel_id = ? WHERE tree_id = ?`,
		channelID, channelID, treeID)
	if err != nil {
		return fmt.Errorf("treestore: stamp provenance: %w", err)
	}
	return nil
}

// HasChangedDescendants reports whether any node in the tree besides the
// root carries the changed flag.
func (o ops) HasChangedDescendants(treeID int64) (bool, error) {
	var n int
	err := o.db.QueryRow(`SELECT count(*) FROM nodes
		WHERE tree_id = ? AND changed = 1 AND parent_pk IS NOT NULL`, treeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("treestore: changed descendants: %w", err)
	}
	return n > 0, nil
}
