package store_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jeefy/mindjournal/internal/models"
	"github.com/jeefy/mindjournal/internal/store"
)

// backends returns a fresh instance of every backend available in this
// environment. Postgres runs only when MINDJOURNAL_TEST_POSTGRES_DSN is set.
func backends(t *testing.T) map[string]func(t *testing.T) store.Store {
	t.Helper()
	out := map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store {
			st, err := store.New()
			if err != nil {
				t.Fatalf("new store: %v", err)
			}
			return st
		},
		"sqlite": func(t *testing.T) store.Store {
			st, err := store.Open(context.Background(), store.Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "journal.db")})
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { st.Close() })
			return st
		},
	}
	if dsn := os.Getenv("MINDJOURNAL_TEST_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) store.Store {
			st, err := store.OpenPostgres(context.Background(), dsn)
			if err != nil {
				t.Fatalf("open postgres: %v", err)
			}
			t.Cleanup(func() { st.Close() })
			// each test starts from an empty table
			db, err := sql.Open("postgres", dsn)
			if err != nil {
				t.Fatalf("open postgres admin connection: %v", err)
			}
			defer db.Close()
			if _, err := db.Exec(`TRUNCATE journalentry RESTART IDENTITY`); err != nil {
				t.Fatalf("truncate: %v", err)
			}
			return st
		}
	}
	return out
}

// axis returns a unit vector along dimension i scaled by v.
func axis(i int, v float32) []float32 {
	vec := models.ZeroEmbedding()
	vec[i] = v
	return vec
}

func newEntry(content string, vec []float32) models.NewEntry {
	return models.NewEntry{
		Content:      content,
		Emotion:      models.DefaultEmotion,
		Embedding:    vec,
		Perspectives: models.Perspectives{Stoic: "s-" + content, Coach: "c-" + content, Friend: "f-" + content},
	}
}

func mustSave(t *testing.T, st store.Store, e models.NewEntry) *models.Entry {
	t.Helper()
	saved, err := st.Save(context.Background(), e)
	if err != nil {
		t.Fatalf("save %q: %v", e.Content, err)
	}
	return saved
}

func TestNearest(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			q := axis(0, 1)

			got, err := st.Nearest(ctx, q, 2)
			if err != nil {
				t.Fatalf("nearest on empty store: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("expected no context from empty store, got %v", got)
			}

			mustSave(t, st, newEntry("far", axis(1, 5)))
			got, err = st.Nearest(ctx, q, 2)
			if err != nil {
				t.Fatalf("nearest: %v", err)
			}
			if len(got) != 1 || got[0] != "far" {
				t.Fatalf("expected [far], got %v", got)
			}

			mustSave(t, st, newEntry("closest", axis(0, 0.9)))
			mustSave(t, st, newEntry("middle", axis(0, 2)))
			got, err = st.Nearest(ctx, q, 2)
			if err != nil {
				t.Fatalf("nearest: %v", err)
			}
			if len(got) != 2 || got[0] != "closest" || got[1] != "middle" {
				t.Fatalf("expected [closest middle], got %v", got)
			}
		})
	}
}

func TestNearestZeroVectors(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			mustSave(t, st, newEntry("first", models.ZeroEmbedding()))
			mustSave(t, st, newEntry("second", models.ZeroEmbedding()))
			mustSave(t, st, newEntry("third", axis(3, 1)))
			got, err := st.Nearest(context.Background(), models.ZeroEmbedding(), 2)
			if err != nil {
				t.Fatalf("nearest: %v", err)
			}
			if len(got) != 2 || got[0] != "first" || got[1] != "second" {
				t.Fatalf("expected equal distances to keep insertion order, got %v", got)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			vec := models.ZeroEmbedding()
			for i := range vec {
				vec[i] = float32(i) * 0.001
			}
			in := newEntry("I had a hard day", vec)
			saved := mustSave(t, st, in)
			if saved.ID == 0 || saved.CreatedAt.IsZero() {
				t.Fatalf("expected id and created_at to be assigned: %+v", saved)
			}

			list, err := st.List(context.Background())
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 1 {
				t.Fatalf("expected 1 entry, got %d", len(list))
			}
			got := list[0]
			if got.ID != saved.ID || got.Content != in.Content || got.Emotion != in.Emotion {
				t.Fatalf("unexpected entry %+v", got)
			}
			if got.Perspectives != in.Perspectives {
				t.Fatalf("perspectives changed: %+v", got.Perspectives)
			}
			if !got.CreatedAt.Equal(saved.CreatedAt) {
				t.Fatalf("created_at changed: %v vs %v", got.CreatedAt, saved.CreatedAt)
			}
			if len(got.Embedding) != models.EmbeddingDim {
				t.Fatalf("expected %d dims, got %d", models.EmbeddingDim, len(got.Embedding))
			}
			for i := range vec {
				if got.Embedding[i] != vec[i] || saved.Embedding[i] != vec[i] {
					t.Fatalf("embedding[%d] = %v/%v, want %v", i, saved.Embedding[i], got.Embedding[i], vec[i])
				}
			}
		})
	}
}

func TestListNewestFirst(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			const n = 5
			for i := 0; i < n; i++ {
				mustSave(t, st, newEntry(string(rune('a'+i)), axis(i, 1)))
			}
			list, err := st.List(context.Background())
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != n {
				t.Fatalf("expected %d entries, got %d", n, len(list))
			}
			for i := 1; i < n; i++ {
				if list[i].CreatedAt.After(list[i-1].CreatedAt) {
					t.Fatalf("entries not newest first at %d: %v after %v", i, list[i].CreatedAt, list[i-1].CreatedAt)
				}
				if list[i].ID >= list[i-1].ID {
					t.Fatalf("expected later insertions first, got ids %d then %d", list[i-1].ID, list[i].ID)
				}
			}
			if list[0].Content != "e" || list[n-1].Content != "a" {
				t.Fatalf("unexpected order %q..%q", list[0].Content, list[n-1].Content)
			}
		})
	}
}

func TestSaveRejectsWrongDimension(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			_, err := st.Save(context.Background(), newEntry("short", []float32{1, 2, 3}))
			if !errors.Is(err, store.ErrDimension) || !store.IsDimensionError(err) {
				t.Fatalf("expected ErrDimension, got %v", err)
			}
			list, _ := st.List(context.Background())
			if len(list) != 0 {
				t.Fatalf("expected no entries after failed save, got %d", len(list))
			}
		})
	}
}

func TestSaveCancelledLeavesNothing(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			if _, err := st.Save(ctx, newEntry("cancelled", axis(0, 1))); err == nil {
				t.Fatalf("expected error for cancelled context")
			}
			list, err := st.List(context.Background())
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 0 {
				t.Fatalf("expected no partial entry, got %d", len(list))
			}
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustSave(t, st, newEntry("durable", axis(0, 1)))
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = store.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	list, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Content != "durable" {
		t.Fatalf("expected durable entry after reopen, got %+v", list)
	}
	if err := st.Ping(ctx); err != nil || st.Driver() != "sqlite" {
		t.Fatalf("unexpected ping/driver: %v %s", err, st.Driver())
	}
}

// Both SQL backends keep entries in the journalentry table used by existing Postgres journals.
func TestSQLiteUsesJournalEntryTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustSave(t, st, newEntry("legacy", axis(0, 1)))
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM journalentry`).Scan(&n); err != nil {
		t.Fatalf("query journalentry: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row in journalentry, got %d", n)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := store.Open(context.Background(), store.Options{Driver: "mongo"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
