package api

import (
	"net/http"

	"github.com/starford/vaultkeep/internal/graph"
)

const (
	defaultHubs        = 10
	defaultSuggestions = 10
)

// Backlinks handles GET /api/graph/backlinks/*.
//
//	@Summary		Files linking to a file
//	@Tags			graph
//	@Produce		json
//	@Param			path	path		string	true	"File path"
//	@Success		200		{array}		graph.Edge
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	edges, err := h.vault.Backlinks(filePath(r))
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, edges)
}

// ForwardLinks handles GET /api/graph/forward/*.
func (h *Handler) ForwardLinks(w http.ResponseWriter, r *http.Request) {
	edges, err := h.vault.ForwardLinks(filePath(r))
	if err != nil {
		writeError(w, "forward links", err)
		return
	}
	writeJSON(w, http.StatusOK, edges)
}

// Related handles GET /api/graph/related/*?hops=N.
func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	related, err := h.vault.RelatedNotes(filePath(r), queryInt(r, "hops", graph.DefaultHops))
	if err != nil {
		writeError(w, "related", err)
		return
	}
	writeJSON(w, http.StatusOK, related)
}

// SuggestLinks handles GET /api/graph/suggest/*?limit=N.
func (h *Handler) SuggestLinks(w http.ResponseWriter, r *http.Request) {
	sug, err := h.vault.SuggestLinks(filePath(r), queryInt(r, "limit", defaultSuggestions))
	if err != nil {
		writeError(w, "suggest links", err)
		return
	}
	writeJSON(w, http.StatusOK, sug)
}

// LinkStrength handles GET /api/graph/strength?source=a&target=b.
func (h *Handler) LinkStrength(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("source") == "" || q.Get("target") == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source and target are required"))
		return
	}
	st, err := h.vault.LinkStrength(q.Get("source"), q.Get("target"))
	if err != nil {
		writeError(w, "link strength", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) Cycles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.vault.DetectCycles())
}

func (h *Handler) Components(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.vault.ConnectedComponents())
}

func (h *Handler) Orphans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.vault.Orphans())
}

func (h *Handler) DeadEnds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.vault.DeadEnds())
}

func (h *Handler) Hubs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.vault.HubNotes(queryInt(r, "limit", defaultHubs)))
}

func (h *Handler) Broken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.vault.BrokenLinks())
}

// Health handles GET /api/graph/health.
//
//	@Summary		Link structure diagnostic with a 0-100 score
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	graph.HealthReport
//	@Security		BearerAuth
//	@Router			/graph/health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.vault.Health())
}

func (h *Handler) Centrality(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.vault.CentralityRanking())
}

func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.vault.Stats())
}
