package slm

import (
	"context"
	"math"
	"strings"

	"github.com/jeefy/mindjournal/internal/models"
)

// Mock is a deterministic offline backend: token-hashing embeddings and the
// offline perspectives. Texts that share words land close together, which is
// enough for local runs and tests of the retrieval path.
type Mock struct {
	dim int
}

// NewMock returns a Mock producing EmbeddingDim-length vectors.
func NewMock() *Mock { return &Mock{dim: models.EmbeddingDim} }

// BackendName identifies the mock backend.
func (m *Mock) BackendName() string { return "mock" }

// Embed hashes each lower-cased token into a bucket and normalizes the
// result. Empty text embeds to the zero vector.
func (m *Mock) Embed(_ context.Context, text string) []float32 {
	v := make([]float64, m.dim)
	for _, t := range strings.Fields(strings.ToLower(text)) {
		h := 0
		for j := 0; j < len(t); j++ {
			h = h*31 + int(t[j])
		}
		idx := h % m.dim
		if idx < 0 {
			idx += m.dim
		}
		v[idx] += 1
	}
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	out := make([]float32, m.dim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i := range v {
		out[i] = float32(v[i] / norm)
	}
	return out
}

// Generate always returns the offline perspectives.
func (m *Mock) Generate(context.Context, string, []string) models.Perspectives {
	return models.OfflinePerspectives()
}
