package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jeefy/mindjournal/internal/models"
)

// inMemoryStore is the in-memory implementation of Store used for tests and
// local development. Entries are kept in insertion order.
type inMemoryStore struct {
	mu      sync.RWMutex
	entries []*models.Entry
	nextID  int64
	now     func() time.Time
}

// New returns a new in-memory Store.
func New() (Store, error) {
	return &inMemoryStore{nextID: 1, now: time.Now}, nil
}

func (s *inMemoryStore) Save(ctx context.Context, e models.NewEntry) (*models.Entry, error) {
	if err := validate(e); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := &models.Entry{
		ID:           s.nextID,
		Content:      e.Content,
		Emotion:      e.Emotion,
		Perspectives: e.Perspectives,
		Embedding:    cloneVector(e.Embedding),
		CreatedAt:    s.now().UTC(),
	}
	s.nextID++
	s.entries = append(s.entries, entry)
	return cloneEntry(entry), nil
}

func (s *inMemoryStore) List(ctx context.Context) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, cloneEntry(s.entries[i]))
	}
	// insertion order already breaks ties; the stable sort only guards
	// against a clock that stepped backwards
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (s *inMemoryStore) Nearest(ctx context.Context, vec []float32, k int) ([]string, error) {
	if k <= 0 {
		return []string{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	type scored struct {
		idx  int
		dist float64
	}
	scoreds := make([]scored, 0, len(s.entries))
	for i, e := range s.entries {
		d, err := L2Distance(vec, e.Embedding)
		if err != nil {
			return nil, err
		}
		scoreds = append(scoreds, scored{idx: i, dist: d})
	}
	sort.SliceStable(scoreds, func(a, b int) bool { return scoreds[a].dist < scoreds[b].dist })
	if k > len(scoreds) {
		k = len(scoreds)
	}
	out := make([]string, k)
	for n := 0; n < k; n++ {
		out[n] = s.entries[scoreds[n].idx].Content
	}
	return out, nil
}

func (s *inMemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *inMemoryStore) Driver() string { return "memory" }

func (s *inMemoryStore) Close() error { return nil }

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

func cloneEntry(e *models.Entry) *models.Entry {
	c := *e
	c.Embedding = cloneVector(e.Embedding)
	return &c
}
