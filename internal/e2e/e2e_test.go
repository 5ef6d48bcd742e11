package e2e_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeefy/mindjournal/internal/journal"
	"github.com/jeefy/mindjournal/internal/models"
	"github.com/jeefy/mindjournal/internal/server"
	"github.com/jeefy/mindjournal/internal/slm"
	"github.com/jeefy/mindjournal/internal/store"
)

// fakeOllama serves /api/embeddings with the deterministic mock embedder and
// /api/generate with fixed perspectives, recording every generation prompt.
type fakeOllama struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/embeddings":
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": slm.NewMock().Embed(r.Context(), req.Prompt)})
	case "/api/generate":
		f.mu.Lock()
		f.prompts = append(f.prompts, req.Prompt)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{
			"response": `{"stoic": "Accept what you cannot change.", "coach": "Write down one next step.", "friend": "I'm proud of you for writing this."}`,
		})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeOllama) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// setupServer wires a SQLite store and an Ollama client pointed at ollamaURL
// behind the HTTP API.
func setupServer(t *testing.T, ollamaURL string) *httptest.Server {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	o := slm.NewOllama(slm.Options{BaseURL: ollamaURL, Timeout: 2 * time.Second})
	svc := journal.New(st, o, o, journal.Options{})
	srv := server.New(svc, st, server.Options{Backend: o.BackendName()})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postEntry(t *testing.T, baseURL, text string) *models.Entry {
	t.Helper()
	res, err := http.Post(baseURL+"/entries?entry_text="+url.QueryEscape(text), "", nil)
	if err != nil {
		t.Fatalf("post entry: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status create: %d", res.StatusCode)
	}
	var got models.Entry
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	return &got
}

func listEntries(t *testing.T, baseURL string) []models.Entry {
	t.Helper()
	res, err := http.Get(baseURL + "/entries")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status list: %d", res.StatusCode)
	}
	var out []models.Entry
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return out
}

func TestE2E_ServicesOffline(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()
	ts := setupServer(t, downURL)

	e := postEntry(t, ts.URL, "I had a hard day")
	if e.Content != "I had a hard day" {
		t.Fatalf("content = %q", e.Content)
	}
	if e.Perspectives != models.OfflinePerspectives() {
		t.Fatalf("expected offline perspectives, got %+v", e.Perspectives)
	}
	if len(e.Embedding) != models.EmbeddingDim {
		t.Fatalf("expected %d dims, got %d", models.EmbeddingDim, len(e.Embedding))
	}
	for i, x := range e.Embedding {
		if x != 0 {
			t.Fatalf("expected zero embedding, element %d = %v", i, x)
		}
	}

	list := listEntries(t, ts.URL)
	if len(list) != 1 || list[0].ID != e.ID {
		t.Fatalf("expected the offline entry to be persisted, got %+v", list)
	}
}

func TestE2E_ContextFromSimilarEntry(t *testing.T) {
	fake := &fakeOllama{}
	ollama := httptest.NewServer(fake)
	defer ollama.Close()
	ts := setupServer(t, ollama.URL)

	first := postEntry(t, ts.URL, "my manager criticized my presentation at work")
	if first.Perspectives.Coach != "Write down one next step." {
		t.Fatalf("unexpected perspectives %+v", first.Perspectives)
	}
	postEntry(t, ts.URL, "baked sourdough bread this weekend")
	postEntry(t, ts.URL, "went swimming in the lake with friends")

	postEntry(t, ts.URL, "my manager criticized my report at work")
	prompt := fake.lastPrompt()
	if !strings.Contains(prompt, "my manager criticized my presentation at work") {
		t.Fatalf("expected the similar entry in the generation context, prompt:\n%s", prompt)
	}
	if strings.Count(prompt, "my manager criticized my report at work") != 1 {
		t.Fatalf("the entry being written must not appear in its own context, prompt:\n%s", prompt)
	}

	list := listEntries(t, ts.URL)
	if len(list) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(list))
	}
	if list[0].Content != "my manager criticized my report at work" || list[3].ID != first.ID {
		t.Fatalf("expected newest first, got %q ... %q", list[0].Content, list[3].Content)
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.After(list[i-1].CreatedAt) {
			t.Fatalf("list not ordered by created_at desc at %d", i)
		}
	}
}
