package models

import "time"

const (
	// EmbeddingDim is the length of every stored embedding.
	EmbeddingDim = 768
	// DefaultEmotion is stored until an emotion classifier exists.
	DefaultEmotion = "neutral"
	// OfflinePerspective is the reply used for every persona when generation fails.
	OfflinePerspective = "AI Offline"
)

// Personas lists the persona keys in prompt order.
var Personas = []string{"stoic", "coach", "friend"}

type Perspectives struct {
	Stoic  string `json:"stoic"`
	Coach  string `json:"coach"`
	Friend string `json:"friend"`
}

// OfflinePerspectives returns the fallback used when the generation service
// cannot produce all three personas.
func OfflinePerspectives() Perspectives {
	return Perspectives{Stoic: OfflinePerspective, Coach: OfflinePerspective, Friend: OfflinePerspective}
}

type Entry struct {
	ID           int64        `json:"id"`
	Content      string       `json:"content"`
	Emotion      string       `json:"emotion"`
	Perspectives Perspectives `json:"perspectives"`
	Embedding    []float32    `json:"embedding"`
	CreatedAt    time.Time    `json:"created_at"`
}

// NewEntry holds the fields of an entry before the store assigns its id and
// creation time.
type NewEntry struct {
	Content      string
	Emotion      string
	Embedding    []float32
	Perspectives Perspectives
}

// ZeroEmbedding returns an all-zero vector of EmbeddingDim length.
func ZeroEmbedding() []float32 { return make([]float32, EmbeddingDim) }
