package slm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// minEmbeddingsVersion is the first Ollama release serving /api/embeddings.
const minEmbeddingsVersion = "0.1.26"

// Status describes what a running Ollama instance can serve.
type Status struct {
	Version            string   `json:"version"`
	SupportsEmbeddings bool     `json:"supports_embeddings"`
	Models             []string `json:"models"`
	EmbedModel         string   `json:"embed_model"`
	EmbedModelReady    bool     `json:"embed_model_ready"`
	GenerateModel      string   `json:"generate_model"`
	GenerateModelReady bool     `json:"generate_model_ready"`
}

// Ready reports whether both configured models can be used.
func (s Status) Ready() bool {
	return s.SupportsEmbeddings && s.EmbedModelReady && s.GenerateModelReady
}

type ollamaVersionResponse struct {
	Version string `json:"version"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// Check queries the Ollama version and the locally available models. It never
// pulls a model; the write path does not depend on its result.
func (o *Ollama) Check(ctx context.Context) (Status, error) {
	st := Status{EmbedModel: o.embedModel, GenerateModel: o.generateModel}
	var v ollamaVersionResponse
	if err := o.getJSON(ctx, "/api/version", &v); err != nil {
		return st, fmt.Errorf("ollama version: %w", err)
	}
	st.Version = v.Version
	st.SupportsEmbeddings = compareSemver(v.Version, minEmbeddingsVersion) >= 0

	var tags ollamaTagsResponse
	if err := o.getJSON(ctx, "/api/tags", &tags); err != nil {
		return st, fmt.Errorf("ollama tags: %w", err)
	}
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		st.Models = append(st.Models, name)
	}
	st.EmbedModelReady = hasModel(st.Models, o.embedModel)
	st.GenerateModelReady = hasModel(st.Models, o.generateModel)
	return st, nil
}

// hasModel matches want against installed names, treating a missing tag as
// ":latest".
func hasModel(installed []string, want string) bool {
	want = withTag(want)
	for _, name := range installed {
		if withTag(name) == want {
			return true
		}
	}
	return false
}

func withTag(name string) string {
	if strings.Contains(name, ":") {
		return name
	}
	return name + ":latest"
}

// compareSemver compares dotted numeric versions, ignoring a leading "v" and
// any pre-release suffix.
func compareSemver(a, b string) int {
	pa := semverParts(a)
	pb := semverParts(b)
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func semverParts(v string) [3]int {
	var out [3]int
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	for i, p := range strings.SplitN(v, ".", 3) {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		out[i] = n
	}
	return out
}
