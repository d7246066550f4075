package commit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/caldermaw/graft/internal/apperr"
	"github.com/caldermaw/graft/internal/models"
	"github.com/caldermaw/graft/internal/testutil"
	"github.com/caldermaw/graft/internal/treestore"
)

func newCoordinator(t *testing.T, activator Activator) (*Coordinator, *treestore.Store) {
	t.Helper()
	store := testutil.TestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, activator, logger), store
}

// newTree creates a finalized two-node tree and returns its id.
func newTree(t *testing.T, store *treestore.Store, prefix string) int64 {
	t.Helper()
	treeID, err := store.CreateTree(&models.Node{
		PK: prefix + "-root", NodeID: "chan", ContentID: "chan",
		Kind: models.KindTopic, Title: "Root",
	})
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	scope, err := store.BeginBulk(treeID)
	if err != nil {
		t.Fatalf("BeginBulk: %v", err)
	}
	err = scope.Insert(&models.Node{
		PK: prefix + "-child", NodeID: prefix + "-child", ContentID: prefix + "-child",
		ParentPK: prefix + "-root", Kind: models.KindTopic, Title: "Child", SortOrder: 1,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Rebuild(treeID); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return treeID
}

func newChannel(t *testing.T, store *treestore.Store, main, staging, chef, previous int64) {
	t.Helper()
	if _, err := store.UpsertChannel(models.ChannelPayload{ID: "chan", Name: "Chan"}); err != nil {
		t.Fatalf("UpsertChannel: %v", err)
	}
	if err := store.AddEditor("chan", "alice"); err != nil {
		t.Fatalf("AddEditor: %v", err)
	}
	if err := store.SetTreePointers("chan", main, staging, chef, previous); err != nil {
		t.Fatalf("SetTreePointers: %v", err)
	}
}

func TestPromoteChef(t *testing.T) {
	c, store := newCoordinator(t, nil)
	chef := newTree(t, store, "chef")
	newChannel(t, store, 0, 0, chef, 0)

	ch, err := c.PromoteChef(context.Background(), "chan")
	if err != nil {
		t.Fatalf("PromoteChef: %v", err)
	}
	if ch.StagingTreeID != chef {
		t.Errorf("staging = %d, want %d", ch.StagingTreeID, chef)
	}
	if ch.ChefTreeID != 0 {
		t.Errorf("chef pointer not cleared: %d", ch.ChefTreeID)
	}

	node, err := store.GetNode("chef-child")
	if err != nil {
		t.Fatal(err)
	}
	if node.OriginChannelID != "chan" || node.SourceChannelID != "chan" {
		t.Errorf("provenance not stamped: %+v", node)
	}
}

func TestPromoteChefFinalizesIndex(t *testing.T) {
	c, store := newCoordinator(t, nil)
	chef := newTree(t, store, "chef")
	newChannel(t, store, 0, 0, chef, 0)

	// Leave the tree mid-construction: the promote must close the scope.
	scope, err := store.BeginBulk(chef)
	if err != nil {
		t.Fatal(err)
	}
	err = scope.Insert(&models.Node{
		PK: "late", NodeID: "late", ContentID: "late",
		ParentPK: "chef-root", Kind: models.KindTopic, Title: "Late", SortOrder: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.PromoteChef(context.Background(), "chan"); err != nil {
		t.Fatalf("PromoteChef: %v", err)
	}
	nodes, err := store.Descendants("chef-root", false)
	if err != nil {
		t.Fatalf("Descendants after promote: %v", err)
	}
	if len(nodes) != 2 {
		t.Errorf("node count = %d, want 2", len(nodes))
	}
}

func TestPromoteChefRequiresChefTree(t *testing.T) {
	c, store := newCoordinator(t, nil)
	newChannel(t, store, 0, 0, 0, 0)

	_, err := c.PromoteChef(context.Background(), "chan")
	if !errors.Is(err, apperr.ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition", err)
	}
}

func TestPromoteChefRetiresOldStaging(t *testing.T) {
	c, store := newCoordinator(t, nil)
	chef := newTree(t, store, "chef")
	staging := newTree(t, store, "stag")
	newChannel(t, store, 0, staging, chef, 0)

	if _, err := c.PromoteChef(context.Background(), "chan"); err != nil {
		t.Fatal(err)
	}
	old, err := store.GetTree(staging)
	if err != nil {
		t.Fatal(err)
	}
	if old.Status != models.TreeRetired {
		t.Errorf("old staging status = %q, want retired", old.Status)
	}
}

func TestActivate(t *testing.T) {
	c, store := newCoordinator(t, nil)
	main := newTree(t, store, "main")
	staging := newTree(t, store, "stag")
	newChannel(t, store, main, staging, 0, 0)

	ch, err := c.Activate(context.Background(), "alice", "chan")
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if ch.MainTreeID != staging {
		t.Errorf("main = %d, want %d", ch.MainTreeID, staging)
	}
	if ch.StagingTreeID != 0 {
		t.Errorf("staging pointer not cleared: %d", ch.StagingTreeID)
	}
	if ch.PreviousTreeID != main {
		t.Errorf("previous = %d, want old main %d", ch.PreviousTreeID, main)
	}
}

func TestActivateRequiresStaging(t *testing.T) {
	c, store := newCoordinator(t, nil)
	main := newTree(t, store, "main")
	newChannel(t, store, main, 0, 0, 0)

	_, err := c.Activate(context.Background(), "alice", "chan")
	if !errors.Is(err, apperr.ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition", err)
	}
}

func TestActivateNonEditor(t *testing.T) {
	c, store := newCoordinator(t, nil)
	staging := newTree(t, store, "stag")
	newChannel(t, store, 0, staging, 0, 0)

	_, err := c.Activate(context.Background(), "mallory", "chan")
	if !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("err = %v, want ErrAuthorization", err)
	}
}

func TestActivateRetiresDisplacedPrevious(t *testing.T) {
	c, store := newCoordinator(t, nil)
	main := newTree(t, store, "main")
	staging := newTree(t, store, "stag")
	previous := newTree(t, store, "prev")
	newChannel(t, store, main, staging, 0, previous)

	if _, err := c.Activate(context.Background(), "alice", "chan"); err != nil {
		t.Fatal(err)
	}
	displaced, err := store.GetTree(previous)
	if err != nil {
		t.Fatal(err)
	}
	if displaced.Status != models.TreeRetired {
		t.Errorf("displaced previous status = %q, want retired", displaced.Status)
	}
	kept, err := store.GetTree(main)
	if err != nil {
		t.Fatal(err)
	}
	if kept.Status != models.TreeActive {
		t.Errorf("new previous status = %q, want active", kept.Status)
	}
}

type failingActivator struct{}

func (failingActivator) Activate(context.Context, *models.Channel, string) error {
	return fmt.Errorf("publish endpoint unreachable")
}

func TestActivateDownstreamFailureKeepsSwap(t *testing.T) {
	c, store := newCoordinator(t, failingActivator{})
	main := newTree(t, store, "main")
	staging := newTree(t, store, "stag")
	newChannel(t, store, main, staging, 0, 0)

	_, err := c.Activate(context.Background(), "alice", "chan")
	if err == nil {
		t.Fatal("expected downstream activation error")
	}

	ch, err := store.GetChannel("chan")
	if err != nil {
		t.Fatal(err)
	}
	if ch.MainTreeID != staging || ch.PreviousTreeID != main {
		t.Errorf("pointer swap rolled back: %+v", ch)
	}
}

func TestStatus(t *testing.T) {
	c, store := newCoordinator(t, nil)

	got, err := c.Status("never-seen")
	if err != nil || got != StatusActive {
		t.Errorf("unknown channel status = %q err=%v, want active", got, err)
	}

	main := newTree(t, store, "main")
	staging := newTree(t, store, "stag")
	newChannel(t, store, main, staging, 0, 0)

	got, err = c.Status("chan")
	if err != nil || got != StatusStaged {
		t.Errorf("status = %q err=%v, want staged", got, err)
	}

	if _, err := c.Activate(context.Background(), "alice", "chan"); err != nil {
		t.Fatal(err)
	}
	got, err = c.Status("chan")
	if err != nil || got != StatusActive {
		t.Errorf("status after activate = %q err=%v, want active", got, err)
	}

	// A revised node inside main with nothing staged reads as unpublished.
	if err := store.SetNodeDiff("stag-child", map[string]any{"title": "Revised"}); err != nil {
		t.Fatal(err)
	}
	got, err = c.Status("chan")
	if err != nil || got != StatusUnpublished {
		t.Errorf("status with changed main nodes = %q err=%v, want unpublished", got, err)
	}
}
