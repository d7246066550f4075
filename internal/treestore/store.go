package treestore

import "github.com/caldermaw/graft/internal/models"

// Queries is the operation surface shared by Store and Tx. Consumers that
// only read or that must run inside a caller-managed transaction should
// depend on this interface rather than the concrete types.
type Queries interface {
	// Nodes.
	GetNode(pk string) (*models.Node, error)
	NodeByNodeID(treeID int64, nodeID string) (*models.Node, error)
	Descendants(pk string, includeSelf bool) ([]*models.Node, error)
	Ancestors(pk string) ([]*models.Node, error)
	Move(pk, newParentPK string, sortOrder float64) error
	ChildCount(pk string) (int, error)
	ChildNodeIDs(pk string) (map[string]struct{}, error)
	SetNodeDiff(pk string, diff map[string]any) error
	StampProvenance(treeID int64, channelID string) error
	HasChangedDescendants(treeID int64) (bool, error)

	// Trees.
	CreateTree(root *models.Node) (int64, error)
	GetTree(treeID int64) (*models.Tree, error)
	BeginBulk(treeID int64) (*BulkScope, error)
	Rebuild(treeID int64) error
	Retire(treeID int64, title string) error
	RetiredTreeIDs() ([]int64, error)
	DeleteTreeNodes(treeID int64, limit int) (int, error)

	// Channels, editors, catalogs.
	GetChannel(id string) (*models.Channel, error)
	ChannelForTree(treeID int64) (*models.Channel, error)
	UpsertChannel(p models.ChannelPayload) (bool, error)
	SetTreePointers(channelID string, main, staging, chef, previous int64) error
	EditorCount(channelID string) (int, error)
	AddEditor(channelID, userID string) error
	IsEditor(channelID, userID string) (bool, error)
	ResolveLicense(name string) (*models.License, error)
	SeedLicenses(names []string) error
	LookupOrCreateTag(name, channelID string) error

	// Node sub-entities.
	AttachFiles(nodePK string, files []models.FileDescriptor) error
	AttachQuestions(nodePK string, questions []models.QuestionDescriptor) error
	SetNodeTags(nodePK string, tags []string) error
	FilesFor(nodePK string) ([]models.File, error)
	QuestionsFor(nodePK string) ([]models.AssessmentItem, error)
	TagsFor(nodePK string) ([]string, error)
}

// Verify both the store and its transactions satisfy Queries.
var (
	_ Queries = (*Store)(nil)
	_ Queries = (*Tx)(nil)
)
