package treestore

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/caldermaw/graft/internal/apperr"
	"github.com/caldermaw/graft/internal/models"
)

// retiredRootPK is the reserved node every retired tree root is reparented
// under for traceability.
const retiredRootPK = "retired-holding-root"

// ensureRetiredRoot creates the holding tree on first open.
func (s *Store) ensureRetiredRoot() error {
	var pk string
	err := s.conn.QueryRow(`SELECT pk FROM nodes WHERE pk = ?`, retiredRootPK).Scan(&pk)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("treestore: check retired root: %w", err)
	}
	res, err := s.conn.Exec(`INSERT INTO trees (root_pk, status) VALUES (?, ?)`,
		retiredRootPK, models.TreeHolding)
	if err != nil {
		return fmt.Errorf("treestore: create holding tree: %w", err)
	}
	treeID, _ := res.LastInsertId()
	return s.insertNode(&models.Node{
		PK:        retiredRootPK,
		NodeID:    retiredRootPK,
		ContentID: retiredRootPK,
		TreeID:    treeID,
		Kind:      models.KindTopic,
		Title:     "Retired trees",
		Left:      1,
		Right:     2,
	})
}

// CreateTree creates a new active tree containing only root. The root gets
// finalized bounds immediately, a one-node tree needs no rebuild.
func (o ops) CreateTree(root *models.Node) (int64, error) {
	res, err := o.db.Exec(`INSERT INTO trees (root_pk, status) VALUES (?, ?)`,
		root.PK, models.TreeActive)
	if err != nil {
		return 0, fmt.Errorf("treestore: create tree: %w", err)
	}
	treeID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("treestore: tree id: %w", err)
	}
	root.TreeID = treeID
	root.ParentPK = ""
	root.Left, root.Right, root.Level = 1, 2, 0
	if err := o.insertNode(root); err != nil {
		return 0, err
	}
	return treeID, nil
}

// GetTree returns the tree row.
func (o ops) GetTree(treeID int64) (*models.Tree, error) {
	var t models.Tree
	err := o.db.QueryRow(`SELECT id, root_pk, status, stale FROM trees WHERE id = ?`, treeID).
		Scan(&t.ID, &t.RootPK, &t.Status, &t.Stale)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("treestore: tree %d: %w", treeID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("treestore: get tree: %w", err)
	}
	return &t, nil
}

func (o ops) treeStale(treeID int64) (bool, error) {
	var stale bool
	err := o.db.QueryRow(`SELECT stale FROM trees WHERE id = ?`, treeID).Scan(&stale)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("treestore: tree %d: %w", treeID, apperr.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("treestore: tree stale check: %w", err)
	}
	return stale, nil
}

func (o ops) markStale(treeID int64) error {
	if _, err := o.db.Exec(`UPDATE trees SET stale = 1 WHERE id = ?`, treeID); err != nil {
		return fmt.Errorf("treestore: mark stale: %w", err)
	}
	return nil
}

// BulkScope suspends per-insert ordering-index maintenance for one tree.
// Nodes appended through it carry caller-assigned sibling sort orders but no
// finalized bounds; Rebuild must run before the tree is exposed to readers.
type BulkScope struct {
	o      ops
	treeID int64
}

// BeginBulk opens a bulk-insert scope on the tree, marking its index stale.
func (o ops) BeginBulk(treeID int64) (*BulkScope, error) {
	if _, err := o.GetTree(treeID); err != nil {
		return nil, err
	}
	if err := o.markStale(treeID); err != nil {
		return nil, err
	}
	return &BulkScope{o: o, treeID: treeID}, nil
}

// TreeID returns the tree the scope is bound to.
func (b *BulkScope) TreeID() int64 { return b.treeID }

// Insert appends a node to the scope's tree with zeroed bounds.
func (b *BulkScope) Insert(n *models.Node) error {
	n.TreeID = b.treeID
	n.Left, n.Right, n.Level = 0, 0, 0
	return b.o.insertNode(n)
}

// Rebuild recomputes nested-set bounds for the whole tree with one iterative
// traversal and clears the stale flag. Idempotent on a tree that is not
// stale.
func (o ops) Rebuild(treeID int64) error {
	tree, err := o.GetTree(treeID)
	if err != nil {
		return err
	}

	type child struct {
		pk        string
		sortOrder float64
	}
	children := make(map[string][]child)
	rows, err := o.db.Query(`SELECT pk, COALESCE(parent_pk, ''), sort_order FROM nodes WHERE tree_id = ?`, treeID)
	if err != nil {
		return fmt.Errorf("treestore: rebuild load: %w", err)
	}
	for rows.Next() {
		var pk, parent string
		var so float64
		if err := rows.Scan(&pk, &parent, &so); err != nil {
			rows.Close()
			return fmt.Errorf("treestore: rebuild scan: %w", err)
		}
		if parent != "" && pk != tree.RootPK {
			children[parent] = append(children[parent], child{pk: pk, sortOrder: so})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, cs := range children {
		sort.Slice(cs, func(i, j int) bool {
			if cs[i].sortOrder != cs[j].sortOrder {
				return cs[i].sortOrder < cs[j].sortOrder
			}
			return cs[i].pk < cs[j].pk
		})
	}

	type bounds struct{ lft, rght, depth int }
	assigned := make(map[string]*bounds)

	// Explicit stack, arbitrarily deep trees must not consume call stack.
	type frame struct {
		pk    string
		depth int
		next  int // index of the next child to visit
	}
	counter := 0
	stack := []frame{{pk: tree.RootPK, depth: 0}}
	counter++
	assigned[tree.RootPK] = &bounds{lft: counter, depth: 0}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := children[top.pk]
		if top.next < len(kids) {
			kid := kids[top.next]
			top.next++
			counter++
			assigned[kid.pk] = &bounds{lft: counter, depth: top.depth + 1}
			stack = append(stack, frame{pk: kid.pk, depth: top.depth + 1})
			continue
		}
		counter++
		assigned[top.pk].rght = counter
		stack = stack[:len(stack)-1]
	}

	for pk, b := range assigned {
		_, err := o.db.Exec(`UPDATE nodes SET lft = ?, rght = ?, depth = ? WHERE pk = ?`,
			b.lft, b.rght, b.depth, pk)
		if err != nil {
			return fmt.Errorf("treestore: rebuild update: %w", err)
		}
	}
	if _, err := o.db.Exec(`UPDATE trees SET stale = 0 WHERE id = ?`, treeID); err != nil {
		return fmt.Errorf("treestore: clear stale: %w", err)
	}
	return nil
}

// Retire detaches a tree from active service: status flips to retired and
// its root is relocated under the reserved holding root with a traceability
// title. No bound maintenance happens here, deletion is the sweep's job.
func (o ops) Retire(treeID int64, title string) error {
	tree, err := o.GetTree(treeID)
	if err != nil {
		return err
	}
	if tree.Status == models.TreeHolding {
		return fmt.Errorf("treestore: cannot retire holding tree: %w", apperr.ErrIntegrity)
	}
	if _, err := o.db.Exec(`UPDATE trees SET status = ? WHERE id = ?`, models.TreeRetired, treeID); err != nil {
		return fmt.Errorf("treestore: retire tree: %w", err)
	}
	_, err = o.db.Exec(`UPDATE nodes SET parent_pk = ?, title = ? WHERE pk = ?`,
		retiredRootPK, title, tree.RootPK)
	if err != nil {
		return fmt.Errorf("treestore: relocate retired root: %w", err)
	}
	return nil
}

// RetiredTreeIDs returns retired trees no channel pointer still references,
// in id order. These are safe to delete.
func (o ops) RetiredTreeIDs() ([]int64, error) {
	rows, err := o.db.Query(`SELECT id FROM trees WHERE status = ?
		AND id NOT IN (
			SELECT main_tree_id FROM channels WHERE main_tree_id IS NOT NULL
			UNION SELECT staging_tree_id FROM channels WHERE staging_tree_id IS NOT NULL
			UNION SELECT chef_tree_id FROM channels WHERE chef_tree_id IS NOT NULL
			UNION SELECT previous_tree_id FROM channels WHERE previous_tree_id IS NOT NULL
		) ORDER BY id`, models.TreeRetired)
	if err != nil {
		return nil, fmt.Errorf("treestore: retired trees: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteTreeNodes removes up to limit leaf nodes of a retired tree and
// returns how many went away. Leaf-first batches keep the parent foreign key
// satisfied and each batch short. When the count reaches zero the tree row
// itself is dropped.
func (o ops) DeleteTreeNodes(treeID int64, limit int) (int, error) {
	tree, err := o.GetTree(treeID)
	if err != nil {
		return 0, err
	}
	if tree.Status != models.TreeRetired {
		return 0, fmt.Errorf("treestore: delete of non-retired tree %d: %w", treeID, apperr.ErrIntegrity)
	}
	res, err := o.db.Exec(`DELETE FROM nodes WHERE pk IN (
		SELECT pk FROM nodes WHERE tree_id = ?
		AND pk NOT IN (SELECT parent_pk FROM nodes WHERE parent_pk IS NOT NULL)
		LIMIT ?)`, treeID, limit)
	if err != nil {
		return 0, fmt.Errorf("treestore: delete tree nodes: %w", err)
	}
	deleted, _ := res.RowsAffected()

	var remaining int
	if err := o.db.QueryRow(`SELECT count(*) FROM nodes WHERE tree_id = ?`, treeID).Scan(&remaining); err != nil {
		return int(deleted), fmt.Errorf("treestore: count remaining: %w", err)
	}
	if remaining == 0 {
		if _, err := o.db.Exec(`DELETE FROM trees WHERE id = ?`, treeID); err != nil {
			return int(deleted), fmt.Errorf("treestore: delete tree row: %w", err)
		}
	}
	return int(deleted), nil
}
