package api

import (
	"github.com/caldermaw/graft/internal/models"
)

// CreateChannelRequest is the request body for creating a channel (aliased
// from the domain layer).
type CreateChannelRequest = models.ChannelPayload

// CreateChannelResponse is returned after a channel has been created. Root is
// the primary key of the fresh chef root; node imports attach under it.
type CreateChannelResponse struct {
	ChannelID string `json:"channel_id" example:"3c9b1ff0a64d4b3d" validate:"required"`
	Root      string `json:"root" example:"8f14e45f-ceea-3b7a-9af9-3d4f1a2b3c4d" validate:"required"`
}

// StructureRequest is the request body for a nested structural import.
type StructureRequest struct {
	Structure map[string]models.StructureEntry `json:"structure" validate:"required"`
}

// AddNodesRequest is the request body for a flat child import.
type AddNodesRequest struct {
	Nodes []models.NodeDescriptor `json:"nodes" validate:"required"`
}

// AddNodesResponse relates each imported node id to its new primary key.
type AddNodesResponse struct {
	RootIDs map[string]string `json:"root_ids" validate:"required"`
}

// ChannelResponse is the lightweight channel shape returned by lifecycle
// operations.
type ChannelResponse struct {
	ChannelID string `json:"channel_id" example:"3c9b1ff0a64d4b3d" validate:"required"`
	Name      string `json:"name" example:"Grade 4 Science" validate:"required"`
}

// CommitRequest is the request body for committing a channel.
type CommitRequest struct {
	Activate bool `json:"activate" example:"false"`
}

// StatusResponse reports the lifecycle status of a channel.
type StatusResponse struct {
	Status string `json:"status" example:"staged" validate:"required"`
}

// BulkStatusRequest asks for the status of several channels at once.
type BulkStatusRequest struct {
	ChannelIDs []string `json:"channel_ids" validate:"required"`
}

// BulkStatusResponse maps channel ids to statuses.
type BulkStatusResponse struct {
	Statuses map[string]string `json:"statuses" validate:"required"`
}

// TreeNode is one level of nested tree data.
type TreeNode struct {
	ID        string      `json:"id" validate:"required"`
	NodeID    string      `json:"node_id" validate:"required"`
	ContentID string      `json:"content_id" validate:"required"`
	Kind      string      `json:"kind" example:"topic" validate:"required"`
	Title     string      `json:"title" example:"Fractions" validate:"required"`
	SortOrder float64     `json:"sort_order" example:"1"`
	Children  []*TreeNode `json:"children,omitempty"`
}
