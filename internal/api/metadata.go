package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// QueryMetadata handles GET /api/metadata?q=.
func (h *Handler) QueryMetadata(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	matches, err := h.vault.QueryMetadata(q)
	if err != nil {
		writeError(w, "query metadata", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "matched": len(matches), "files": matches})
}

// MetadataValue handles GET /api/metadata/value/*?key=a.b.
func (h *Handler) MetadataValue(w http.ResponseWriter, r *http.Request) {
	p, key := filePath(r), r.URL.Query().Get("key")
	v, err := h.vault.MetadataValue(p, key)
	if err != nil {
		writeError(w, "metadata value", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": p, "key": key, "value": v})
}

// ListTemplates handles GET /api/templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": h.vault.Templates()})
}

// CreateFromTemplate handles POST /api/templates/{id}.
func (h *Handler) CreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateFromTemplateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	rec, err := h.vault.CreateFromTemplate(r.Context(), chi.URLParam(r, "id"), req.Path, req.Fields)
	if err != nil {
		writeError(w, "create from template", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// TemplateNotes handles GET /api/templates/{id}/notes.
func (h *Handler) TemplateNotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"files": h.vault.NotesFromTemplate(chi.URLParam(r, "id"))})
}
