package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/caldermaw/graft/internal/commit"
	"github.com/caldermaw/graft/internal/diff"
	"github.com/caldermaw/graft/internal/models"
	"github.com/caldermaw/graft/internal/testutil"
	"github.com/caldermaw/graft/internal/treebuilder"
)

// testEnv wires a temp SQLite store, payload store, service, and router.
// authToken == "" means auth disabled.
func testEnv(t *testing.T, authToken string) (*Service, http.Handler) {
	t.Helper()

	store := testutil.TestDB(t)
	_, payloads := testutil.TestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	builder := treebuilder.NewService(store, payloads)
	engine := diff.New(store)
	coord := commit.New(store, nil, logger)
	svc := NewService(store, builder, engine, coord, nil)
	router := NewRouter(svc, authToken != "", authToken, nil)
	return svc, router
}

// doJSON performs a request with an optional actor header and JSON body.
func doJSON(t *testing.T, router http.Handler, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if actor != "" {
		req.Header.Set("X-User-ID", actor)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// createChannel creates a channel through the API and returns the chef root key.
func createChannel(t *testing.T, router http.Handler, actor, channelID string) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/channels", actor,
		map[string]string{"id": channelID, "name": "Channel " + channelID})
	if w.Code != http.StatusCreated {
		t.Fatalf("create channel status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp CreateChannelResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if resp.Root == "" {
		t.Fatal("create response missing chef root")
	}
	return resp.Root
}

func topicDesc(nodeID, title string) models.NodeDescriptor {
	return models.NodeDescriptor{
		NodeID:    nodeID,
		ContentID: "content-" + nodeID,
		Title:     title,
		Kind:      models.KindTopic,
	}
}

func TestCreateChannel(t *testing.T) {
	_, router := testEnv(t, "")
	createChannel(t, router, "alice", "chan")

	w := doJSON(t, router, http.MethodGet, "/channels/chan/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp StatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "active" {
		t.Errorf("status = %q, want active", resp.Status)
	}
}

func TestCreateChannelRequiresActor(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/channels", "",
		map[string]string{"id": "chan", "name": "Chan"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateChannelInvalidBody(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/channels", bytes.NewReader([]byte("{not json")))
	req.Header.Set("X-User-ID", "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", w.Code)
	}

	// Missing required name.
	w = doJSON(t, router, http.MethodPost, "/channels", "alice", map[string]string{"id": "chan"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid payload status = %d, want 400", w.Code)
	}
}

func TestAuthTokenMode(t *testing.T) {
	_, router := testEnv(t, "secret")

	w := doJSON(t, router, http.MethodGet, "/channels/chan/status", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/channels/chan/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with token status = %d, want 200", rec.Code)
	}
}

func TestImportLifecycle(t *testing.T) {
	_, router := testEnv(t, "")
	root := createChannel(t, router, "alice", "chan")

	w := doJSON(t, router, http.MethodPost, "/nodes/"+root+"/children", "alice",
		AddNodesRequest{Nodes: []models.NodeDescriptor{
			topicDesc("t1", "First"),
			topicDesc("t2", "Second"),
		}})
	if w.Code != http.StatusCreated {
		t.Fatalf("add children status = %d, body = %s", w.Code, w.Body.String())
	}
	var added AddNodesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &added)
	if len(added.RootIDs) != 2 {
		t.Fatalf("root ids = %v", added.RootIDs)
	}

	w = doJSON(t, router, http.MethodPost, "/channels/chan/commit", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("commit status = %d, body = %s", w.Code, w.Body.String())
	}
	w = doJSON(t, router, http.MethodGet, "/channels/chan/status", "", nil)
	var st StatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Status != "staged" {
		t.Errorf("status after commit = %q, want staged", st.Status)
	}

	w = doJSON(t, router, http.MethodPost, "/channels/chan/activate", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("activate status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/channels/chan/tree?tree=main", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tree status = %d, body = %s", w.Code, w.Body.String())
	}
	var tree TreeNode
	if err := json.Unmarshal(w.Body.Bytes(), &tree); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if tree.NodeID != "chan" || len(tree.Children) != 2 {
		t.Errorf("tree = %+v", tree)
	}
	if tree.Children[0].Title != "First" || tree.Children[1].Title != "Second" {
		t.Errorf("children = %+v, %+v", tree.Children[0], tree.Children[1])
	}
}

func TestCommitWithActivateFlag(t *testing.T) {
	_, router := testEnv(t, "")
	root := createChannel(t, router, "alice", "chan")

	w := doJSON(t, router, http.MethodPost, "/nodes/"+root+"/children", "alice",
		AddNodesRequest{Nodes: []models.NodeDescriptor{topicDesc("t1", "T")}})
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}
	w = doJSON(t, router, http.MethodPost, "/channels/chan/commit", "alice",
		CommitRequest{Activate: true})
	if w.Code != http.StatusOK {
		t.Fatalf("commit status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/channels/chan/tree", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("main tree after combined commit = %d", w.Code)
	}
}

func TestCommitNonEditor(t *testing.T) {
	_, router := testEnv(t, "")
	createChannel(t, router, "alice", "chan")

	w := doJSON(t, router, http.MethodPost, "/channels/chan/commit", "mallory", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestCommitUnknownChannel(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/channels/ghost/commit", "alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestActivateWithoutStaging(t *testing.T) {
	_, router := testEnv(t, "")
	createChannel(t, router, "alice", "chan")

	w := doJSON(t, router, http.MethodPost, "/channels/chan/activate", "alice", nil)
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want 412", w.Code)
	}
}

func TestStagedDiffReportsRevisions(t *testing.T) {
	_, router := testEnv(t, "")

	// Publish a first version.
	root := createChannel(t, router, "alice", "chan")
	w := doJSON(t, router, http.MethodPost, "/nodes/"+root+"/children", "alice",
		AddNodesRequest{Nodes: []models.NodeDescriptor{topicDesc("t1", "Old Title")}})
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}
	w = doJSON(t, router, http.MethodPost, "/channels/chan/commit", "alice",
		CommitRequest{Activate: true})
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}

	// Re-ingest with a revised node and a new one, commit without activating.
	root = createChannel(t, router, "alice", "chan")
	w = doJSON(t, router, http.MethodPost, "/nodes/"+root+"/children", "alice",
		AddNodesRequest{Nodes: []models.NodeDescriptor{
			topicDesc("t1", "New Title"),
			topicDesc("t2", "Brand New"),
		}})
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}
	w = doJSON(t, router, http.MethodPost, "/channels/chan/commit", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/channels/chan/diff", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("diff status = %d, body = %s", w.Code, w.Body.String())
	}
	var res diff.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode diff: %v", err)
	}
	if _, ok := res.Added["t2"]; !ok {
		t.Errorf("t2 not reported added: %v", res.Added)
	}
	fields, ok := res.Modified["t1"]
	if !ok {
		t.Fatalf("t1 not reported modified: %v", res.Modified)
	}
	if fields["title"] != "New Title" {
		t.Errorf("modified fields = %v", fields)
	}
}

func TestStagedDiffWithoutStaging(t *testing.T) {
	_, router := testEnv(t, "")
	createChannel(t, router, "alice", "chan")

	w := doJSON(t, router, http.MethodGet, "/channels/chan/diff", "", nil)
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want 412", w.Code)
	}
}

func TestBulkStatus(t *testing.T) {
	_, router := testEnv(t, "")
	createChannel(t, router, "alice", "one")
	createChannel(t, router, "alice", "two")

	w := doJSON(t, router, http.MethodPost, "/channels/status", "",
		BulkStatusRequest{ChannelIDs: []string{"one", "two", "ghost"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp BulkStatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Statuses) != 3 || resp.Statuses["one"] != "active" {
		t.Errorf("statuses = %v", resp.Statuses)
	}

	w = doJSON(t, router, http.MethodPost, "/channels/status", "", BulkStatusRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty request status = %d, want 400", w.Code)
	}
}

func TestTreeDataErrors(t *testing.T) {
	_, router := testEnv(t, "")
	createChannel(t, router, "alice", "chan")

	w := doJSON(t, router, http.MethodGet, "/channels/chan/tree?tree=bogus", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown tree status = %d, want 400", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/channels/chan/tree?tree=staging", "", nil)
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("missing staging status = %d, want 412", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/channels/ghost/tree", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown channel status = %d, want 404", w.Code)
	}
}

func TestCompare(t *testing.T) {
	_, router := testEnv(t, "")
	root := createChannel(t, router, "alice", "chan")

	// No previous tree yet.
	w := doJSON(t, router, http.MethodGet, "/channels/chan/compare", "", nil)
	if w.Code != http.StatusPreconditionFailed {
		t.Fatalf("compare without previous = %d, want 412", w.Code)
	}

	publish := func(rootPK string, descs ...models.NodeDescriptor) {
		t.Helper()
		w := doJSON(t, router, http.MethodPost, "/nodes/"+rootPK+"/children", "alice",
			AddNodesRequest{Nodes: descs})
		if w.Code != http.StatusCreated {
			t.Fatal(w.Body.String())
		}
		w = doJSON(t, router, http.MethodPost, "/channels/chan/commit", "alice",
			CommitRequest{Activate: true})
		if w.Code != http.StatusOK {
			t.Fatal(w.Body.String())
		}
	}
	publish(root, topicDesc("t1", "Kept"), topicDesc("t2", "Dropped"))
	root = createChannel(t, router, "alice", "chan")
	publish(root, topicDesc("t1", "Kept"), topicDesc("t3", "Added"))

	w = doJSON(t, router, http.MethodGet, "/channels/chan/compare", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("compare status = %d, body = %s", w.Code, w.Body.String())
	}
	var res diff.CompareResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode compare: %v", err)
	}
	if _, ok := res.New["t3"]; !ok {
		t.Errorf("t3 not reported new: %v", res.New)
	}
	if _, ok := res.Deleted["t2"]; !ok {
		t.Errorf("t2 not reported deleted: %v", res.Deleted)
	}
}

func TestAddChildrenValidation(t *testing.T) {
	_, router := testEnv(t, "")
	root := createChannel(t, router, "alice", "chan")

	w := doJSON(t, router, http.MethodPost, "/nodes/"+root+"/children", "alice",
		AddNodesRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty nodes status = %d, want 400", w.Code)
	}
	w = doJSON(t, router, http.MethodPost, "/nodes/no-such-node/children", "alice",
		AddNodesRequest{Nodes: []models.NodeDescriptor{topicDesc("t1", "T")}})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown parent status = %d, want 404", w.Code)
	}
}
