package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Channel lifecycle.
	r.Post("/channels", h.CreateChannel)
	r.Post("/channels/status", h.BulkStatus)
	r.Post("/channels/{channelID}/structure", h.BuildStructure)
	r.Post("/channels/{channelID}/commit", h.Commit)
	r.Post("/channels/{channelID}/activate", h.Activate)
	r.Get("/channels/{channelID}/status", h.Status)

	// Imports.
	r.Post("/nodes/{nodeID}/children", h.AddChildren)

	// Inspection.
	r.Get("/channels/{channelID}/diff", h.StagedDiff)
	r.Get("/channels/{channelID}/compare", h.Compare)
	r.Get("/channels/{channelID}/tree", h.TreeData)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
