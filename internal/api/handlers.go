package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// CreateChannel handles POST /api/channels.
//
//	@Summary		Create or re-ingest a channel
//	@Tags			channels
//	@Accept			json
//	@Produce		json
//	@Param			X-User-ID	header		string					true	"Acting user"
//	@Param			body		body		CreateChannelRequest	true	"Channel to create"
//	@Success		201			{object}	CreateChannelResponse
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/channels [post]
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("X-User-ID header is required"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	ch, root, err := h.svc.CreateChannel(r.Context(), actor, req)
	if err != nil {
		writeErr(w, "create channel failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateChannelResponse{ChannelID: ch.ID, Root: root})
}

// BuildStructure handles POST /api/channels/{channelID}/structure.
//
//	@Summary		Ingest a nested structural payload as the staging tree
//	@Tags			channels
//	@Accept			json
//	@Produce		json
//	@Param			channelID	path		string				true	"Channel id"
//	@Param			X-User-ID	header		string				true	"Acting user"
//	@Param			body		body		StructureRequest	true	"Structure payload"
//	@Success		201			{object}	ChannelResponse
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/channels/{channelID}/structure [post]
func (h *Handler) BuildStructure(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("X-User-ID header is required"))
		return
	}
	channelID := chi.URLParam(r, "channelID")
	r.Body = http.MaxBytesReader(w, r.Body, 50<<20)
	var req StructureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Structure) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("structure is required"))
		return
	}
	ch, err := h.svc.BuildStructure(r.Context(), actor, channelID, req.Structure)
	if err != nil {
		writeErr(w, "build structure failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, ChannelResponse{ChannelID: ch.ID, Name: ch.Name})
}

// AddChildren handles POST /api/nodes/{nodeID}/children.
//
//	@Summary		Import a flat list of nodes under an existing parent
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			nodeID		path		string			true	"Parent node primary key"
//	@Param			X-User-ID	header		string			true	"Acting user"
//	@Param			body		body		AddNodesRequest	true	"Nodes to import"
//	@Success		201			{object}	AddNodesResponse
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{nodeID}/children [post]
func (h *Handler) AddChildren(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("X-User-ID header is required"))
		return
	}
	parentPK := chi.URLParam(r, "nodeID")
	r.Body = http.MaxBytesReader(w, r.Body, 50<<20)
	var req AddNodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Nodes) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("nodes are required"))
		return
	}
	ids, err := h.svc.AddNodes(r.Context(), actor, parentPK, req.Nodes)
	if err != nil {
		writeErr(w, "add children failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, AddNodesResponse{RootIDs: ids})
}

// StagedDiff handles GET /api/channels/{channelID}/diff.
//
//	@Summary		Diff the staged tree against the live one
//	@Tags			channels
//	@Produce		json
//	@Param			channelID	path		string	true	"Channel id"
//	@Success		200			{object}	diff.Result
//	@Failure		404			{object}	errResponse
//	@Failure		412			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/channels/{channelID}/diff [get]
func (h *Handler) StagedDiff(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	res, err := h.svc.StagedDiff(channelID)
	if err != nil {
		writeErr(w, "staged diff failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Commit handles POST /api/channels/{channelID}/commit.
//
//	@Summary		Promote the chef tree to staging, optionally activating it
//	@Tags			channels
//	@Accept			json
//	@Produce		json
//	@Param			channelID	path		string			true	"Channel id"
//	@Param			X-User-ID	header		string			true	"Acting user"
//	@Param			body		body		CommitRequest	false	"Commit options"
//	@Success		200			{object}	ChannelResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		412			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/channels/{channelID}/commit [post]
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("X-User-ID header is required"))
		return
	}
	channelID := chi.URLParam(r, "channelID")
	var req CommitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	ch, err := h.svc.Commit(r.Context(), actor, channelID, req.Activate)
	if err != nil {
		writeErr(w, "commit failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ChannelResponse{ChannelID: ch.ID, Name: ch.Name})
}

// Activate handles POST /api/channels/{channelID}/activate.
//
//	@Summary		Make the staged tree live
//	@Tags			channels
//	@Produce		json
//	@Param			channelID	path		string	true	"Channel id"
//	@Param			X-User-ID	header		string	true	"Acting user"
//	@Success		200			{object}	ChannelResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		412			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/channels/{channelID}/activate [post]
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("X-User-ID header is required"))
		return
	}
	channelID := chi.URLParam(r, "channelID")
	ch, err := h.svc.Activate(r.Context(), actor, channelID)
	if err != nil {
		writeErr(w, "activate failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ChannelResponse{ChannelID: ch.ID, Name: ch.Name})
}

// Status handles GET /api/channels/{channelID}/status.
//
//	@Summary		Report the lifecycle status of a channel
//	@Tags			channels
//	@Produce		json
//	@Param			channelID	path		string	true	"Channel id"
//	@Success		200			{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/channels/{channelID}/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	st, err := h.svc.Status(channelID)
	if err != nil {
		writeErr(w, "status failed", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: st})
}

// BulkStatus handles POST /api/channels/status.
//
//	@Summary		Report the lifecycle status of several channels
//	@Tags			channels
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BulkStatusRequest	true	"Channel ids"
//	@Success		200		{object}	BulkStatusResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/channels/status [post]
func (h *Handler) BulkStatus(w http.ResponseWriter, r *http.Request) {
	var req BulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.ChannelIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("channel_ids are required"))
		return
	}
	statuses, err := h.svc.BulkStatus(req.ChannelIDs)
	if err != nil {
		writeErr(w, "bulk status failed", err)
		return
	}
	writeJSON(w, http.StatusOK, BulkStatusResponse{Statuses: statuses})
}

// TreeData handles GET /api/channels/{channelID}/tree.
//
//	@Summary		Fetch a channel tree as nested topic data
//	@Tags			channels
//	@Produce		json
//	@Param			channelID	path		string	true	"Channel id"
//	@Param			tree		query		string	false	"Tree to fetch"	Enums(main, staging, chef, previous)
//	@Success		200			{object}	TreeNode
//	@Failure		404			{object}	errResponse
//	@Failure		412			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/channels/{channelID}/tree [get]
func (h *Handler) TreeData(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	which := r.URL.Query().Get("tree")
	root, err := h.svc.TreeData(channelID, which)
	if err != nil {
		writeErr(w, "tree data failed", err)
		return
	}
	writeJSON(w, http.StatusOK, root)
}

// Compare handles GET /api/channels/{channelID}/compare.
//
//	@Summary		Compare the previous tree against the live or staged one
//	@Tags			channels
//	@Produce		json
//	@Param			channelID	path		string	true	"Channel id"
//	@Param			staging		query		bool	false	"Compare against the staged tree"
//	@Success		200			{object}	diff.CompareResult
//	@Failure		404			{object}	errResponse
//	@Failure		412			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/channels/{channelID}/compare [get]
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	useStaging := r.URL.Query().Get("staging") == "true"
	res, err := h.svc.Compare(channelID, useStaging)
	if err != nil {
		writeErr(w, "compare failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
