package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeefy/mindjournal/internal/models"
)

// ErrDimension is returned when an embedding of the wrong length reaches the
// store.
var ErrDimension = fmt.Errorf("store: embedding must have %d dimensions", models.EmbeddingDim)

// Store persists journal entries and answers nearest-neighbour queries over
// their embeddings. Every implementation orders neighbours by L2 distance so
// results agree across backends.
type Store interface {
	// Save commits a new entry in its own transaction and returns it with the
	// assigned id, creation time and the embedding as read back from storage.
	Save(ctx context.Context, e models.NewEntry) (*models.Entry, error)
	// List returns every entry, newest first; equal timestamps put the later
	// insertion first.
	List(ctx context.Context) ([]*models.Entry, error)
	// Nearest returns the content of up to k committed entries ordered by
	// ascending distance to vec.
	Nearest(ctx context.Context, vec []float32, k int) ([]string, error)
	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver string // "memory", "sqlite" or "postgres"
	DSN    string
}

// Open constructs the backend named by opts.Driver and makes sure its schema
// exists.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "memory":
		return New()
	case "", "sqlite":
		s, err := OpenSQLite(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := OpenPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", opts.Driver)
	}
}

func validate(e models.NewEntry) error {
	if len(e.Embedding) != models.EmbeddingDim {
		return fmt.Errorf("%w: got %d", ErrDimension, len(e.Embedding))
	}
	return nil
}

// IsDimensionError reports whether err was caused by a wrong-length embedding.
func IsDimensionError(err error) bool { return errors.Is(err, ErrDimension) }
