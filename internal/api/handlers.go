package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/batch"
	"github.com/starford/vaultkeep/internal/edit"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	vault Vault
}

// NewHandler creates a new Handler.
func NewHandler(v Vault) *Handler {
	return &Handler{vault: v}
}

// filePath extracts the file path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func filePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return n
	}
	return def
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// ListFiles handles GET /api/files.
//
//	@Summary		List vault files, optionally under a folder
//	@Tags			files
//	@Produce		json
//	@Param			folder	query		string	false	"Folder prefix"
//	@Success		200		{object}	FileListResponse
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	folder := strings.Trim(r.URL.Query().Get("folder"), "/")
	files := h.vault.List()
	if folder != "" {
		kept := files[:0]
		for _, f := range files {
			if strings.HasPrefix(f.Path, folder+"/") {
				kept = append(kept, f)
			}
		}
		files = kept
	}
	writeJSON(w, http.StatusOK, FileListResponse{Files: files, Total: len(files)})
}

// GetFile handles GET /api/files/*.
//
//	@Summary		Get a file with its parsed metadata
//	@Tags			files
//	@Produce		json
//	@Param			path	path		string	true	"File path"
//	@Success		200		{object}	FileDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [get]
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	path := filePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	f, err := h.vault.ReadFile(r.Context(), path)
	if err != nil {
		writeError(w, "get file", err)
		return
	}
	w.Header().Set("ETag", `"`+f.Hash+`"`)
	writeJSON(w, http.StatusOK, f)
}

// CreateFile handles POST /api/files.
//
//	@Summary		Create a new file
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateFileRequest	true	"File to create"
//	@Success		201		{object}	models.FileRecord
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [post]
func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	var req CreateFileRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	rec, err := h.vault.Create(r.Context(), req.Path, []byte(req.Content), req.Frontmatter)
	if err != nil {
		writeError(w, "create file", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// PutFile handles PUT /api/files/*. An If-Match header, when sent, must carry the hash
// of the content being replaced.
//
//	@Summary		Write a file with optional optimistic concurrency
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			path		path		string			true	"File path"
//	@Param			If-Match	header		string			false	"SHA-256 of the current content"
//	@Param			body		body		PutFileRequest	true	"New content"
//	@Success		200			{object}	models.FileRecord
//	@Failure		412			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [put]
func (h *Handler) PutFile(w http.ResponseWriter, r *http.Request) {
	path := filePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req PutFileRequest
	if !decode(w, r, &req) {
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)
	var err error
	if ifMatch != "" {
		_, err = h.vault.WriteIfMatch(r.Context(), path, []byte(req.Content), ifMatch)
	} else {
		_, err = h.vault.Write(r.Context(), path, []byte(req.Content))
	}
	if err != nil {
		writeError(w, "put file", err)
		return
	}
	f, err := h.vault.ReadFile(r.Context(), path)
	if err != nil {
		writeError(w, "put file", err)
		return
	}
	w.Header().Set("ETag", `"`+f.Hash+`"`)
	writeJSON(w, http.StatusOK, f.FileRecord)
}

// EditFile handles PATCH /api/files/*.
func (h *Handler) EditFile(w http.ResponseWriter, r *http.Request) {
	path := filePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req EditFileRequest
	if !decode(w, r, &req) {
		return
	}
	blocks, err := edit.ParseBlocks(req.Diff)
	if err != nil {
		writeError(w, "edit file", err)
		return
	}
	res, err := h.vault.Edit(r.Context(), path, blocks, req.ExpectedHash, req.DryRun)
	if err != nil {
		writeError(w, "edit file", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteFile handles DELETE /api/files/*?update_references=true.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	path := filePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	res, err := h.vault.Delete(r.Context(), path, queryBool(r, "update_references"))
	if err != nil {
		writeBatchError(w, "delete file", res, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MoveFile handles POST /api/move.
func (h *Handler) MoveFile(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	res, err := h.vault.Move(r.Context(), req.From, req.To, req.UpdateReferences)
	if err != nil {
		writeBatchError(w, "move file", res, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CopyFile handles POST /api/copy.
func (h *Handler) CopyFile(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	rec, err := h.vault.Copy(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, "copy file", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// Batch handles POST /api/batch. Rejected and rolled back transactions are
// reported with their full result.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.vault.Batch(r.Context(), req.Operations)
	if err != nil {
		writeBatchError(w, "batch", res, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeBatchError sends res when the transaction produced one, with the
// status of err's kind.
func writeBatchError(w http.ResponseWriter, op string, res *batch.Result, err error) {
	if res == nil {
		writeError(w, op, err)
		return
	}
	kind := apperr.KindOf(err)
	writeJSON(w, statusOf(kind), struct {
		errResponse
		Result *batch.Result `json:"result"`
	}{errResponse{Error: err.Error(), Kind: string(kind)}, res})
}

// ValidateFile handles GET /api/validate/*.
func (h *Handler) ValidateFile(w http.ResponseWriter, r *http.Request) {
	rep, err := h.vault.Validate(r.Context(), filePath(r))
	if err != nil {
		writeError(w, "validate", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across files
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	results, err := h.vault.Search(r.Context(), q, queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// TaggedWith handles GET /api/tags/{tag}.
func (h *Handler) TaggedWith(w http.ResponseWriter, r *http.Request) {
	paths, err := h.vault.TaggedWith(r.Context(), chi.URLParam(r, "tag"))
	if err != nil {
		writeError(w, "tagged", err)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": paths})
}
