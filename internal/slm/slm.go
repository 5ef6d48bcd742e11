package slm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jeefy/mindjournal/internal/models"
)

// Embedder turns text into a fixed-length vector. Implementations never fail
// outward; an unusable upstream answer yields models.ZeroEmbedding.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Generator produces the three persona reflections for an entry given the
// content of similar past entries. Implementations never fail outward; any
// upstream problem yields models.OfflinePerspectives.
type Generator interface {
	Generate(ctx context.Context, text string, related []string) models.Perspectives
}

// Backend bundles both services behind the name reported by /healthz.
type Backend interface {
	Embedder
	Generator
	BackendName() string
}

// New returns the backend named by kind: "ollama" (the default) or "mock".
func New(kind string, opts Options) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "ollama":
		return NewOllama(opts), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("slm: unknown backend %q", kind)
	}
}

const (
	DefaultBaseURL       = "http://localhost:11434"
	DefaultEmbedModel    = "nomic-embed-text"
	DefaultGenerateModel = "llama3.2"
	DefaultTimeout       = 60 * time.Second
)

// Options configures an Ollama client. Zero values fall back to the defaults
// above.
type Options struct {
	BaseURL       string
	EmbedModel    string
	GenerateModel string
	Timeout       time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Ollama talks to a local Ollama HTTP API for both embeddings and generation.
// Each call is a single attempt; there is no retry.
type Ollama struct {
	baseURL       string
	embedModel    string
	generateModel string
	client        *http.Client
}

// NewOllama constructs a client for the Ollama endpoint described by opts.
func NewOllama(opts Options) *Ollama {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.EmbedModel == "" {
		opts.EmbedModel = DefaultEmbedModel
	}
	if opts.GenerateModel == "" {
		opts.GenerateModel = DefaultGenerateModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Ollama{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		embedModel:    opts.EmbedModel,
		generateModel: opts.GenerateModel,
		client:        client,
	}
}

// BackendName identifies the ollama backend.
func (o *Ollama) BackendName() string { return "ollama" }

func (o *Ollama) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return o.do(req, out)
}

func (o *Ollama) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return err
	}
	return o.do(req, out)
}

func (o *Ollama) do(req *http.Request, out interface{}) error {
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding of text, or a zero vector when the service is
// unreachable or answers with anything other than an EmbeddingDim-length
// array.
func (o *Ollama) Embed(ctx context.Context, text string) []float32 {
	vec, err := o.embed(ctx, text)
	if err != nil {
		log.Printf("slm: embedding failed, storing zero vector: %v", err)
		return models.ZeroEmbedding()
	}
	return vec
}

func (o *Ollama) embed(ctx context.Context, text string) ([]float32, error) {
	var er embedResponse
	if err := o.postJSON(ctx, "/api/embeddings", embedRequest{Model: o.embedModel, Prompt: text}, &er); err != nil {
		return nil, err
	}
	if len(er.Embedding) != models.EmbeddingDim {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(er.Embedding), models.EmbeddingDim)
	}
	out := make([]float32, len(er.Embedding))
	for i, x := range er.Embedding {
		out[i] = float32(x)
	}
	return out, nil
}
