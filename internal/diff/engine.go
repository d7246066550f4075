package diff

import (
	"fmt"
	"sort"

	"github.com/caldermaw/graft/internal/apperr"
	"github.com/caldermaw/graft/internal/models"
	"github.com/caldermaw/graft/internal/treestore"
)

// Engine computes diffs between two tree snapshots held in the store.
type Engine struct {
	store treestore.Queries
}

// New creates a diff engine over the given store.
func New(store treestore.Queries) *Engine {
	return &Engine{store: store}
}

// Result is the four-bucket classification of every differing node, keyed by
// node identifier. Serializes with exactly the four top-level keys of the
// wire contract.
type Result struct {
	Added    map[string]AddedNode      `json:"nodes_added"`
	Deleted  map[string]DeletedNode    `json:"nodes_deleted"`
	Modified map[string]map[string]any `json:"nodes_modified"`
	Moved    map[string]MovedNode      `json:"nodes_moved"`
}

// AddedNode records where a node appeared and what it carries.
type AddedNode struct {
	NewParent  string         `json:"new_parent"`
	Attributes map[string]any `json:"attributes"`
}

// DeletedNode records where a node used to live and what it carried.
type DeletedNode struct {
	OldParent  string         `json:"old_parent"`
	Attributes map[string]any `json:"attributes"`
}

// MovedNode records a node's relocation and any field changes between the
// paired instances. OldNodeID may differ from the bucket key when content
// was replaced at a different authored slot.
type MovedNode struct {
	OldParent  string         `json:"old_parent"`
	NewParent  string         `json:"new_parent"`
	OldNodeID  string         `json:"old_node_id"`
	Attributes map[string]any `json:"attributes"`
}

func newResult() *Result {
	return &Result{
		Added:    map[string]AddedNode{},
		Deleted:  map[string]DeletedNode{},
		Modified: map[string]map[string]any{},
		Moved:    map[string]MovedNode{},
	}
}

// Empty reports whether all four buckets are empty.
func (r *Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Deleted) == 0 && len(r.Modified) == 0 && len(r.Moved) == 0
}

// StagedDiff diffs a channel's main tree against its staging tree. The
// review surface callers hit before committing.
func (e *Engine) StagedDiff(channelID string) (*Result, error) {
	ch, err := e.store.GetChannel(channelID)
	if err != nil {
		return nil, err
	}
	if ch.MainTreeID == 0 || ch.StagingTreeID == 0 {
		return nil, fmt.Errorf("diff: channel %s has no staged comparison: %w", channelID, apperr.ErrPrecondition)
	}
	return e.TreeDiff(ch.MainTreeID, ch.StagingTreeID)
}

// TreeDiff computes the full classification diff from oldTree to newTree.
//
// The moved/added/deleted disambiguation among nodes sharing a content_id is
// a best-effort positional pairing (both sides iterated in tree order): when
// several duplicates of the same content change at once and the counts
// merely balance, the pairing order decides which instance is reported
// moved, not a proven identity match.
func (e *Engine) TreeDiff(oldTreeID, newTreeID int64) (*Result, error) {
	if oldTreeID == 0 || newTreeID == 0 {
		return nil, fmt.Errorf("diff: missing comparison tree: %w", apperr.ErrPrecondition)
	}
	oldNodes, oldRoot, err := e.treeSnapshot(oldTreeID)
	if err != nil {
		return nil, err
	}
	newNodes, newRoot, err := e.treeSnapshot(newTreeID)
	if err != nil {
		return nil, err
	}

	// Parent references in the result are node_ids, resolved across both
	// snapshots (a first-level node's parent is the root).
	nodeIDByPK := map[string]string{oldRoot.PK: oldRoot.NodeID, newRoot.PK: newRoot.NodeID}
	for _, n := range oldNodes {
		nodeIDByPK[n.PK] = n.NodeID
	}
	for _, n := range newNodes {
		nodeIDByPK[n.PK] = n.NodeID
	}
	parentID := func(n *models.Node) string { return nodeIDByPK[n.ParentPK] }

	out := newResult()

	// Fast path: nodes authored as revisions carry their field diff already.
	for _, n := range newNodes {
		if n.Changed && len(n.ChangedStagingFields) > 0 {
			out.Modified[n.NodeID] = n.ChangedStagingFields
		}
	}

	// Structural reconciliation, once per distinct content_id.
	oldByContent := groupByContent(oldNodes)
	newByContent := groupByContent(newNodes)
	for _, contentID := range contentIDUnion(oldByContent, newByContent) {
		olds := oldByContent[contentID]
		news := newByContent[contentID]

		// Intersection by exact node_id match: structurally continuous slots.
		oldIDs := make(map[string]int, len(olds))
		for _, n := range olds {
			oldIDs[n.NodeID]++
		}
		intersection := map[string]struct{}{}
		for _, n := range news {
			if oldIDs[n.NodeID] > 0 {
				intersection[n.NodeID] = struct{}{}
			}
		}

		oldDiff := excludeIDs(olds, intersection)
		newDiff := excludeIDs(news, intersection)

		d := len(olds) - len(news)
		if d > 0 {
			// The last d unmatched old entries in tree order were deleted.
			for _, n := range lastN(oldDiff, d) {
				snap, err := e.snapshot(n)
				if err != nil {
					return nil, err
				}
				out.Deleted[n.NodeID] = DeletedNode{OldParent: parentID(n), Attributes: snap}
			}
			oldDiff = oldDiff[:len(oldDiff)-min(d, len(oldDiff))]
		} else if d < 0 {
			for _, n := range lastN(newDiff, -d) {
				snap, err := e.snapshot(n)
				if err != nil {
					return nil, err
				}
				out.Added[n.NodeID] = AddedNode{NewParent: parentID(n), Attributes: snap}
			}
			newDiff = newDiff[:len(newDiff)-min(-d, len(newDiff))]
		}

		// Remaining unmatched entries pair positionally as moves, covering
		// content replaced at a different authored slot.
		pairs := min(len(oldDiff), len(newDiff))
		for i := 0; i < pairs; i++ {
			fields, err := e.NodeDiff(newDiff[i], oldDiff[i])
			if err != nil {
				return nil, err
			}
			out.Moved[newDiff[i].NodeID] = MovedNode{
				OldParent:  parentID(oldDiff[i]),
				NewParent:  parentID(newDiff[i]),
				OldNodeID:  oldDiff[i].NodeID,
				Attributes: fields,
			}
		}

		// Continuous slots whose parent changed between snapshots moved too.
		oldByID := make(map[string]*models.Node, len(olds))
		for _, n := range olds {
			oldByID[n.NodeID] = n
		}
		for _, n := range news {
			if _, ok := intersection[n.NodeID]; !ok {
				continue
			}
			prior := oldByID[n.NodeID]
			if parentID(prior) == parentID(n) {
				continue
			}
			fields, err := e.NodeDiff(n, prior)
			if err != nil {
				return nil, err
			}
			out.Moved[n.NodeID] = MovedNode{
				OldParent:  parentID(prior),
				NewParent:  parentID(n),
				OldNodeID:  prior.NodeID,
				Attributes: fields,
			}
		}
	}

	return out, nil
}

// NodeDiff returns the field-level differences of node against original:
// changed scalar metadata plus non-empty sub-entity diffs for files, tags,
// and assessment items.
func (e *Engine) NodeDiff(node, original *models.Node) (map[string]any, error) {
	changed := map[string]any{}
	oldMeta := original.Metadata()
	for field, value := range node.Metadata() {
		if oldMeta[field] != value {
			changed[field] = value
		}
	}

	oldFiles, err := e.store.FilesFor(original.PK)
	if err != nil {
		return nil, err
	}
	newFiles, err := e.store.FilesFor(node.PK)
	if err != nil {
		return nil, err
	}
	if fd := Collection("preset_id", oldFiles, newFiles); !fd.Empty() {
		changed["files"] = fd
	}

	oldTags, err := e.store.TagsFor(original.PK)
	if err != nil {
		return nil, err
	}
	newTags, err := e.store.TagsFor(node.PK)
	if err != nil {
		return nil, err
	}
	if td := Tags(oldTags, newTags); !td.Empty() {
		changed["tags"] = td
	}

	// Assessment items only exist on exercises.
	if node.Kind == models.KindExercise {
		oldItems, err := e.store.QuestionsFor(original.PK)
		if err != nil {
			return nil, err
		}
		newItems, err := e.store.QuestionsFor(node.PK)
		if err != nil {
			return nil, err
		}
		if ad := Collection("assessment_id", oldItems, newItems); !ad.Empty() {
			changed["assessment_items"] = ad
		}
	}

	return changed, nil
}

// snapshot captures a node's scalar metadata plus its file, assessment-item,
// and tag lists for added/deleted records.
func (e *Engine) snapshot(n *models.Node) (map[string]any, error) {
	snap := n.Metadata()
	files, err := e.store.FilesFor(n.PK)
	if err != nil {
		return nil, err
	}
	items, err := e.store.QuestionsFor(n.PK)
	if err != nil {
		return nil, err
	}
	tags, err := e.store.TagsFor(n.PK)
	if err != nil {
		return nil, err
	}
	snap["files"] = files
	snap["assessment_items"] = items
	snap["tags"] = tags
	return snap, nil
}

// treeSnapshot loads a tree's root and its descendants in finalized order.
func (e *Engine) treeSnapshot(treeID int64) ([]*models.Node, *models.Node, error) {
	tree, err := e.store.GetTree(treeID)
	if err != nil {
		return nil, nil, err
	}
	root, err := e.store.GetNode(tree.RootPK)
	if err != nil {
		return nil, nil, err
	}
	nodes, err := e.store.Descendants(root.PK, false)
	if err != nil {
		return nil, nil, err
	}
	return nodes, root, nil
}

func groupByContent(nodes []*models.Node) map[string][]*models.Node {
	out := map[string][]*models.Node{}
	for _, n := range nodes {
		out[n.ContentID] = append(out[n.ContentID], n)
	}
	return out
}

func contentIDUnion(a, b map[string][]*models.Node) []string {
	seen := map[string]struct{}{}
	for id := range a {
		seen[id] = struct{}{}
	}
	for id := range b {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func excludeIDs(nodes []*models.Node, ids map[string]struct{}) []*models.Node {
	out := []*models.Node{}
	for _, n := range nodes {
		if _, ok := ids[n.NodeID]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// lastN returns the final n entries in reverse tree order.
func lastN(nodes []*models.Node, n int) []*models.Node {
	if n > len(nodes) {
		n = len(nodes)
	}
	out := make([]*models.Node, 0, n)
	for i := len(nodes) - 1; i >= len(nodes)-n; i-- {
		out = append(out, nodes[i])
	}
	return out
}
