package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(v Vault, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(v)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Files.
	r.Get("/files", h.ListFiles)
	r.Post("/files", h.CreateFile)
	r.Get("/files/*", h.GetFile)
	r.Put("/files/*", h.PutFile)
	r.Patch("/files/*", h.EditFile)
	r.Delete("/files/*", h.DeleteFile)
	r.Post("/move", h.MoveFile)
	r.Post("/copy", h.CopyFile)
	r.Post("/batch", h.Batch)
	r.Get("/validate/*", h.ValidateFile)

	// Search.
	r.Get("/search", h.Search)
	r.Get("/tags/{tag}", h.TaggedWith)

	// Metadata and templates.
	r.Get("/metadata", h.QueryMetadata)
	r.Get("/metadata/value/*", h.MetadataValue)
	r.Get("/templates", h.ListTemplates)
	r.Post("/templates/{id}", h.CreateFromTemplate)
	r.Get("/templates/{id}/notes", h.TemplateNotes)

	// Graph.
	r.Route("/graph", func(r chi.Router) {
		r.Get("/backlinks/*", h.Backlinks)
		r.Get("/forward/*", h.ForwardLinks)
		r.Get("/related/*", h.Related)
		r.Get("/suggest/*", h.SuggestLinks)
		r.Get("/strength", h.LinkStrength)
		r.Get("/cycles", h.Cycles)
		r.Get("/components", h.Components)
		r.Get("/orphans", h.Orphans)
		r.Get("/dead-ends", h.DeadEnds)
		r.Get("/hubs", h.Hubs)
		r.Get("/broken", h.Broken)
		r.Get("/health", h.Health)
		r.Get("/centrality", h.Centrality)
		r.Get("/stats", h.Stats)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
