// Package models defines the domain types for graft.
package models

// Node kinds.
const (
	KindTopic    = "topic"
	KindExercise = "exercise"
)

// Role visibility values.
const (
	RoleLearner = "learner"
	RoleCoach   = "coach"
)

// Tree status values. The holding status marks the reserved root that
// retired trees are relocated under; the sweep never touches it.
const (
	TreeActive  = "active"
	TreeRetired = "retired"
	TreeHolding = "holding"
)

// Node is one entry (topic or content item) in a tree.
//
// NodeID is the position identity: stable for "this authored slot" across
// revisions of a tree. ContentID is the content identity: stable for "this
// underlying content", which may appear at multiple positions. The two are
// independent axes; the diff engine relies on both.
type Node struct {
	PK        string `json:"-"` // surrogate key, unique across all trees
	NodeID    string `json:"node_id"`
	ContentID string `json:"content_id"`
	TreeID    int64  `json:"-"`
	ParentPK  string `json:"-"` // empty for roots

	Kind      string  `json:"kind"`
	SortOrder float64 `json:"sort_order"`

	// Nested-set bounds, valid only after the tree's index has been rebuilt.
	Left  int `json:"-"`
	Right int `json:"-"`
	Level int `json:"-"`

	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	License            string `json:"license,omitempty"`
	LicenseDescription string `json:"license_description,omitempty"`
	Language           string `json:"language,omitempty"`
	Author             string `json:"author,omitempty"`
	Aggregator         string `json:"aggregator,omitempty"`
	Provider           string `json:"provider,omitempty"`
	CopyrightHolder    string `json:"copyright_holder,omitempty"`
	RoleVisibility     string `json:"role_visibility,omitempty"`
	SourceID           string `json:"source_id,omitempty"`
	SourceDomain       string `json:"source_domain,omitempty"`
	ExtraFields        string `json:"extra_fields,omitempty"` // free-form JSON bag

	OriginChannelID string `json:"origin_channel_id,omitempty"`
	SourceChannelID string `json:"source_channel_id,omitempty"`

	// Changed is true iff the node's field diff against its main-tree
	// counterpart is non-empty; ChangedStagingFields holds that diff.
	Changed              bool           `json:"changed"`
	ChangedStagingFields map[string]any `json:"changed_staging_fields,omitempty"`
}

// Metadata returns the scalar fields the diff engine compares, keyed the way
// they appear in diff output.
func (n *Node) Metadata() map[string]any {
	return map[string]any{
		"title":               n.Title,
		"description":         n.Description,
		"license":             n.License,
		"license_description": n.LicenseDescription,
		"language":            n.Language,
		"copyright_holder":    n.CopyrightHolder,
		"extra_fields":        n.ExtraFields,
		"author":              n.Author,
		"aggregator":          n.Aggregator,
		"provider":            n.Provider,
		"role_visibility":     n.RoleVisibility,
		"kind":                n.Kind,
		"content_id":          n.ContentID,
	}
}

// Tree groups nodes under a single root and ordering index.
type Tree struct {
	ID     int64  `json:"id"`
	RootPK string `json:"root"`
	Status string `json:"status"` // active or retired
	Stale  bool   `json:"-"`      // bounds need a rebuild
}

// Channel owns the tree pointers that define visibility. A tree id of zero
// means the pointer is absent.
type Channel struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Thumbnail    string `json:"thumbnail,omitempty"`
	SourceID     string `json:"source_id,omitempty"`
	SourceDomain string `json:"source_domain,omitempty"`
	Language     string `json:"language,omitempty"`
	Deleted      bool   `json:"deleted"`

	MainTreeID     int64 `json:"-"`
	StagingTreeID  int64 `json:"-"`
	ChefTreeID     int64 `json:"-"`
	PreviousTreeID int64 `json:"-"`
}

// License is a catalog entry resolved by name during imports.
type License struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DefaultLicenses is the catalog seeded into fresh databases.
var DefaultLicenses = []string{
	"CC BY", "CC BY-SA", "CC BY-ND", "CC BY-NC", "CC BY-NC-SA", "CC BY-NC-ND",
	"All Rights Reserved", "Public Domain", "Special Permissions",
}

// File is a payload attached to a node under a preset slot.
type File struct {
	NodePK     string `json:"-"`
	PresetID   string `json:"preset_id"`
	Checksum   string `json:"checksum"`
	Language   string `json:"language,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`
	FileFormat string `json:"file_format,omitempty"`
	FileSize   int64  `json:"file_size,omitempty"`
}

// DiffKey identifies the file within its node's collection.
func (f File) DiffKey() string { return f.PresetID }

// DiffFields returns the comparable scalar fields for the keyed diff.
func (f File) DiffFields() map[string]any {
	return map[string]any{
		"checksum":    f.Checksum,
		"preset_id":   f.PresetID,
		"language":    f.Language,
		"source_url":  f.SourceURL,
		"file_format": f.FileFormat,
	}
}

// AssessmentItem is a question attached to an exercise node.
type AssessmentItem struct {
	NodePK       string `json:"-"`
	AssessmentID string `json:"assessment_id"`
	Type         string `json:"type"`
	Question     string `json:"question"`
	Hints        string `json:"hints,omitempty"`
	Answers      string `json:"answers,omitempty"`
	Order        int    `json:"order"`
	RawData      string `json:"raw_data,omitempty"`
	SourceURL    string `json:"source_url,omitempty"`
	Randomize    bool   `json:"randomize"`
}

// DiffKey identifies the item within its node's collection.
func (a AssessmentItem) DiffKey() string { return a.AssessmentID }

// DiffFields returns the comparable scalar fields for the keyed diff.
func (a AssessmentItem) DiffFields() map[string]any {
	return map[string]any{
		"assessment_id": a.AssessmentID,
		"type":          a.Type,
		"question":      a.Question,
		"hints":         a.Hints,
		"answers":       a.Answers,
		"order":         a.Order,
		"raw_data":      a.RawData,
		"source_url":    a.SourceURL,
		"randomize":     a.Randomize,
	}
}
