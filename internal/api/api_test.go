package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/starford/vaultkeep/internal/checksum"
	"github.com/starford/vaultkeep/internal/graph"
	"github.com/starford/vaultkeep/internal/testutil"
)

// testEnv sets up a temp vault, engine and router. An empty authToken means
// auth is disabled.
func testEnv(t *testing.T, authToken string, files map[string]string) (http.Handler, string) {
	t.Helper()
	eng, dir := testutil.Engine(t, files)
	sse := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		<-r.Context().Done()
	})
	return NewRouter(eng, authToken != "", authToken, sse), dir
}

func do(t *testing.T, router http.Handler, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetFile(t *testing.T) {
	router, _ := testEnv(t, "", nil)

	w := do(t, router, http.MethodPost, "/files", CreateFileRequest{Path: "hello.md", Content: "# Hello\nWorld"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/files/hello.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var f struct {
		Path    string `json:"path"`
		Hash    string `json:"hash"`
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(w.Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	if f.Content != "# Hello\nWorld" || f.Path != "hello.md" {
		t.Errorf("file = %+v", f)
	}
	if w.Header().Get("ETag") != `"`+f.Hash+`"` {
		t.Errorf("etag = %q, hash = %q", w.Header().Get("ETag"), f.Hash)
	}
}

func TestCreateDuplicate(t *testing.T) {
	router, _ := testEnv(t, "", map[string]string{"dup.md": "x"})

	w := do(t, router, http.MethodPost, "/files", CreateFileRequest{Path: "dup.md", Content: "y"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestPutWithOptimisticLocking(t *testing.T) {
	router, dir := testEnv(t, "", map[string]string{"lock.md": "v1"})
	hash := checksum.Sum([]byte("v1"))

	w := do(t, router, http.MethodPut, "/files/lock.md", PutFileRequest{Content: "v2"}, "If-Match", `"`+hash+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodPut, "/files/lock.md", PutFileRequest{Content: "v3"}, "If-Match", hash)
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("stale update = %d, want 412", w.Code)
	}
	if got := testutil.ReadFile(t, dir, "lock.md"); got != "v2" {
		t.Errorf("content = %q, want v2", got)
	}
}

func TestPutCreatesWithoutIfMatch(t *testing.T) {
	router, dir := testEnv(t, "", nil)

	w := do(t, router, http.MethodPut, "/files/sub%2Fnew.md", PutFileRequest{Content: "fresh"})
	if w.Code != http.StatusOK {
		t.Fatalf("put = %d, body = %s", w.Code, w.Body.String())
	}
	if got := testutil.ReadFile(t, dir, "sub/new.md"); got != "fresh" {
		t.Errorf("content = %q", got)
	}
}

func TestPutUnparsableContent(t *testing.T) {
	router, _ := testEnv(t, "", nil)

	w := do(t, router, http.MethodPut, "/files/bad.md", PutFileRequest{Content: "---\n: invalid: yaml: {{{\n---\n"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad yaml = %d, want 422", w.Code)
	}
}

func TestTraversalForbidden(t *testing.T) {
	router, _ := testEnv(t, "", nil)

	w := do(t, router, http.MethodGet, "/files/..%2F..%2Fetc%2Fpasswd", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("traversal = %d, want 403", w.Code)
	}
}

func TestEditFile(t *testing.T) {
	router, dir := testEnv(t, "", map[string]string{"e.md": "alpha\nbeta\n"})

	w := do(t, router, http.MethodPatch, "/files/e.md", EditFileRequest{
		Diff: "<<<<<<< SEARCH\nbeta\n=======\ngamma\n>>>>>>> REPLACE\n",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("edit = %d, body = %s", w.Code, w.Body.String())
	}
	if got := testutil.ReadFile(t, dir, "e.md"); got != "alpha\ngamma\n" {
		t.Errorf("content = %q", got)
	}

	w = do(t, router, http.MethodPatch, "/files/e.md", EditFileRequest{
		Diff: "<<<<<<< SEARCH\nmissing\n=======\nx\n>>>>>>> REPLACE\n",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing search = %d, want 400", w.Code)
	}
}

func TestDeleteFile(t *testing.T) {
	router, dir := testEnv(t, "", map[string]string{"a.md": "see [[b|B note]]", "b.md": "b"})

	w := do(t, router, http.MethodDelete, "/files/b.md?update_references=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d, body = %s", w.Code, w.Body.String())
	}
	if got := testutil.ReadFile(t, dir, "a.md"); got != "see B note" {
		t.Errorf("a.md = %q", got)
	}

	w = do(t, router, http.MethodDelete, "/files/b.md", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second delete = %d, want 409", w.Code)
	}
	var body struct {
		Result struct {
			State string `json:"state"`
		} `json:"result"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Result.State != "rejected" {
		t.Errorf("state = %q, want rejected", body.Result.State)
	}
}

func TestMoveFile(t *testing.T) {
	router, dir := testEnv(t, "", map[string]string{"a.md": "[[b]]", "b.md": "b"})

	w := do(t, router, http.MethodPost, "/move", MoveRequest{From: "b.md", To: "done/b.md", UpdateReferences: true})
	if w.Code != http.StatusOK {
		t.Fatalf("move = %d, body = %s", w.Code, w.Body.String())
	}
	if got := testutil.ReadFile(t, dir, "a.md"); got != "[[done/b]]" {
		t.Errorf("a.md = %q", got)
	}

	w = do(t, router, http.MethodGet, "/graph/backlinks/done/b.md", nil)
	var edges []graph.Edge
	if err := json.NewDecoder(w.Body).Decode(&edges); err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 || edges[0].Source != "a.md" {
		t.Errorf("backlinks = %+v", edges)
	}
}

func TestCopyFile(t *testing.T) {
	router, dir := testEnv(t, "", map[string]string{"a.md": "original"})

	w := do(t, router, http.MethodPost, "/copy", MoveRequest{From: "a.md", To: "b.md"})
	if w.Code != http.StatusCreated {
		t.Fatalf("copy = %d, body = %s", w.Code, w.Body.String())
	}
	if got := testutil.ReadFile(t, dir, "b.md"); got != "original" {
		t.Errorf("b.md = %q", got)
	}
}

func TestBatchRollsBackOnConflict(t *testing.T) {
	router, dir := testEnv(t, "", map[string]string{"a.md": "a"})

	w := do(t, router, http.MethodPost, "/batch", map[string]any{"operations": []map[string]any{
		{"kind": "write_file", "path": "a.md", "content": "changed"},
		{"kind": "move_file", "path": "ghost.md", "to": "x.md"},
	}})
	if w.Code != http.StatusConflict {
		t.Errorf("batch = %d, want 409", w.Code)
	}
	if got := testutil.ReadFile(t, dir, "a.md"); got != "a" {
		t.Errorf("a.md = %q, want untouched", got)
	}
}

func TestListFiles(t *testing.T) {
	router, _ := testEnv(t, "", map[string]string{"a.md": "a", "sub/b.md": "b"})

	w := do(t, router, http.MethodGet, "/files?folder=sub", nil)
	var resp FileListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Files[0].Path != "sub/b.md" {
		t.Errorf("list = %+v", resp)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router, _ := testEnv(t, "", map[string]string{"s.md": "# Searchable\nunique keyword"})

	w := do(t, router, http.MethodGet, "/search?q=keyword", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Path != "s.md" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	router, _ := testEnv(t, "", nil)

	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestGraphHealth(t *testing.T) {
	router, _ := testEnv(t, "", map[string]string{
		"a.md": "[[b]]",
		"b.md": "[[a]] [[nowhere]]",
		"c.md": "alone",
	})

	w := do(t, router, http.MethodGet, "/graph/health", nil)
	var rep graph.HealthReport
	if err := json.NewDecoder(w.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.TotalNotes != 3 || len(rep.BrokenLinks) != 1 || len(rep.Orphans) != 1 {
		t.Errorf("health = %+v", rep)
	}

	w = do(t, router, http.MethodGet, "/graph/strength?source=a.md", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("strength without target = %d, want 400", w.Code)
	}
}

func TestGetFile_NotFound(t *testing.T) {
	router, _ := testEnv(t, "", nil)

	w := do(t, router, http.MethodGet, "/files/nope.md", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing file = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router, _ := testEnv(t, "secret123", nil)

	w := do(t, router, http.MethodPost, "/files", CreateFileRequest{Path: "auth.md", Content: "test"},
		"Authorization", "Bearer secret123")
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router, _ := testEnv(t, "secret123", nil)

	w := do(t, router, http.MethodGet, "/files", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router, _ := testEnv(t, "secret123", nil)

	w := do(t, router, http.MethodGet, "/files", nil, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	router, _ := testEnv(t, "", nil)

	w := do(t, router, http.MethodGet, "/files", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	router, _ := testEnv(t, "secret", nil)

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router, _ := testEnv(t, "tok", nil)

	// The SSE handler blocks until the request context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestMetadataEndpoints(t *testing.T) {
	router, _ := testEnv(t, "", map[string]string{
		"a.md": "---\nstatus: draft\nauthor:\n  name: Ada\n---\n# A\n",
		"b.md": "---\nstatus: done\n---\n# B\n",
	})

	w := do(t, router, http.MethodGet, "/metadata?q="+url.QueryEscape(`status: "draft"`), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("query = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Matched int `json:"matched"`
		Files   []struct {
			Path string `json:"path"`
		} `json:"files"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Matched != 1 || len(resp.Files) != 1 || resp.Files[0].Path != "a.md" {
		t.Errorf("matches = %+v", resp)
	}

	if w := do(t, router, http.MethodGet, "/metadata?q="+url.QueryEscape("status draft"), nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad query = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/metadata", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing query = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodGet, "/metadata/value/a.md?key=author.name", nil)
	var value struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(w.Body).Decode(&value); err != nil || value.Value != "Ada" {
		t.Errorf("value = %+v, %v", value, err)
	}
	if w := do(t, router, http.MethodGet, "/metadata/value/a.md?key=nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing key = %d, want 404", w.Code)
	}
}

func TestTemplateEndpoints(t *testing.T) {
	router, dir := testEnv(t, "", nil)

	w := do(t, router, http.MethodGet, "/templates", nil)
	var list struct {
		Templates []struct {
			ID string `json:"id"`
		} `json:"templates"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil || len(list.Templates) != 3 {
		t.Fatalf("templates = %+v, %v", list, err)
	}

	w = do(t, router, http.MethodPost, "/templates/research", CreateFromTemplateRequest{
		Path:   "research/go.md",
		Fields: map[string]string{"topic": "Go", "date_researched": "2025-01-02"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	if got := testutil.ReadFile(t, dir, "research/go.md"); !bytes.Contains([]byte(got), []byte("Researched: 2025-01-02")) {
		t.Errorf("content = %q", got)
	}

	w = do(t, router, http.MethodPost, "/templates/research", CreateFromTemplateRequest{
		Path:   "research/bad.md",
		Fields: map[string]string{"topic": "Go", "date_researched": "soon"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid field = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/templates/none", CreateFromTemplateRequest{Path: "x.md"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown template = %d, want 404", w.Code)
	}

	w = do(t, router, http.MethodGet, "/templates/research/notes", nil)
	var notes struct {
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(w.Body).Decode(&notes); err != nil || len(notes.Files) != 1 || notes.Files[0] != "research/go.md" {
		t.Errorf("notes = %+v, %v", notes, err)
	}
}
