package models

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// NodeDescriptor is the external shape of a node in import payloads, both
// flat-list requests and content-addressed structural payload files.
type NodeDescriptor struct {
	NodeID             string               `json:"node_id"`
	ContentID          string               `json:"content_id"`
	Title              string               `json:"title"`
	Kind               string               `json:"kind"`
	Description        string               `json:"description"`
	Author             string               `json:"author"`
	Aggregator         string               `json:"aggregator"`
	Provider           string               `json:"provider"`
	License            string               `json:"license"`
	LicenseDescription string               `json:"license_description"`
	CopyrightHolder    string               `json:"copyright_holder"`
	Language           string               `json:"language"`
	Role               string               `json:"role"`
	SourceID           string               `json:"source_id"`
	SourceDomain       string               `json:"source_domain"`
	ExtraFields        string               `json:"extra_fields"`
	Files              []FileDescriptor     `json:"files"`
	Questions          []QuestionDescriptor `json:"questions"`
	Tags               []string             `json:"tags"`
}

// Validate checks the required descriptor fields.
func (d NodeDescriptor) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.NodeID, validation.Required),
		validation.Field(&d.ContentID, validation.Required),
		validation.Field(&d.Title, validation.Required),
		validation.Field(&d.Kind, validation.Required),
	)
}

// FileDescriptor references a stored file payload by checksum.
type FileDescriptor struct {
	Checksum   string `json:"checksum"`
	PresetID   string `json:"preset_id"`
	Language   string `json:"language"`
	SourceURL  string `json:"source_url"`
	FileFormat string `json:"file_format"`
	FileSize   int64  `json:"file_size"`
}

// Validate checks the required file descriptor fields.
func (d FileDescriptor) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Checksum, validation.Required),
		validation.Field(&d.PresetID, validation.Required),
	)
}

// QuestionDescriptor is the external shape of an assessment item.
type QuestionDescriptor struct {
	AssessmentID string `json:"assessment_id"`
	Type         string `json:"type"`
	Question     string `json:"question"`
	Hints        string `json:"hints"`
	Answers      string `json:"answers"`
	RawData      string `json:"raw_data"`
	SourceURL    string `json:"source_url"`
	Randomize    bool   `json:"randomize"`
}

// Validate checks the required question descriptor fields.
func (d QuestionDescriptor) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.AssessmentID, validation.Required),
	)
}

// StructureEntry is one level of a nested structural import payload: the map
// key is a descriptor reference resolved through the content-addressed store,
// the value carries the sibling order and the children.
type StructureEntry struct {
	Order    float64                   `json:"order"`
	Children map[string]StructureEntry `json:"children"`
}

// ChannelPayload is the request shape for creating or re-ingesting a channel.
type ChannelPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Thumbnail    string `json:"thumbnail"`
	SourceID     string `json:"source_id"`
	SourceDomain string `json:"source_domain"`
	Language     string `json:"language"`
}

// Validate checks the required channel fields.
func (p ChannelPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.Name, validation.Required),
	)
}
