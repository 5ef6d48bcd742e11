// Package journal runs the write path: embed the entry, retrieve similar
// past entries, generate persona reflections, then persist.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/jeefy/mindjournal/internal/models"
	"github.com/jeefy/mindjournal/internal/slm"
	"github.com/jeefy/mindjournal/internal/store"
)

// ErrInvalidEntry is returned when content fails the configured limits.
var ErrInvalidEntry = errors.New("journal: invalid entry")

// DefaultContextSize is how many similar past entries feed generation.
const DefaultContextSize = 2

type Options struct {
	// ContextSize is the number of neighbours retrieved per write.
	ContextSize int
	// MaxContentLength caps content in runes; 0 means unlimited.
	MaxContentLength int
	// Emotion is stored on every entry until a classifier exists.
	Emotion string
}

// Service composes the embedding client, the store and the perspective
// generator. It holds no per-request state and is safe for concurrent use.
type Service struct {
	store     store.Store
	embedder  slm.Embedder
	generator slm.Generator
	opts      Options
}

func New(st store.Store, embedder slm.Embedder, generator slm.Generator, opts Options) *Service {
	if opts.ContextSize <= 0 {
		opts.ContextSize = DefaultContextSize
	}
	if opts.Emotion == "" {
		opts.Emotion = models.DefaultEmotion
	}
	return &Service{store: st, embedder: embedder, generator: generator, opts: opts}
}

// CreateEntry stores text as a new entry. Embedding and generation degrade to
// their fallback values and a failed retrieval means an empty context; only
// validation and persistence errors are returned, and a failed write leaves nothing behind.
func (s *Service) CreateEntry(ctx context.Context, text string) (*models.Entry, error) {
	if err := s.Validate(text); err != nil {
		return nil, err
	}
	start := time.Now()

	vec := s.embedder.Embed(ctx, text)

	// Retrieval completes before the insert below begins, so the context only
	// ever holds entries committed before this write.
	related, err := s.store.Nearest(ctx, vec, s.opts.ContextSize)
	if err != nil {
		log.Printf("journal: context retrieval failed, generating without context: %v", err)
		related = nil
	}

	perspectives := s.generator.Generate(ctx, text, related)

	entry, err := s.store.Save(ctx, models.NewEntry{
		Content:      text,
		Emotion:      s.opts.Emotion,
		Embedding:    vec,
		Perspectives: perspectives,
	})
	if err != nil {
		return nil, fmt.Errorf("journal: save entry: %w", err)
	}
	log.Printf("journal: entry %d saved with %d related entries in %s", entry.ID, len(related), time.Since(start).Round(time.Millisecond))
	return entry, nil
}

// ListEntries returns every entry, newest first.
func (s *Service) ListEntries(ctx context.Context) ([]*models.Entry, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: list entries: %w", err)
	}
	return entries, nil
}

// Validate applies the configured content limits. Empty content is accepted.
func (s *Service) Validate(text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidEntry)
	}
	if limit := s.opts.MaxContentLength; limit > 0 {
		if n := utf8.RuneCountInString(text); n > limit {
			return fmt.Errorf("%w: content has %d characters, limit is %d", ErrInvalidEntry, n, limit)
		}
	}
	return nil
}
