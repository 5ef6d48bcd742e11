package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // register the postgres driver
	"github.com/pgvector/pgvector-go"

	"github.com/jeefy/mindjournal/internal/models"
)

var postgresSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS journalentry (
    id           BIGSERIAL PRIMARY KEY,
    content      TEXT NOT NULL,
    emotion      TEXT NOT NULL,
    perspectives JSONB NOT NULL,
    embedding    vector(%d) NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL
)`, models.EmbeddingDim),
	`CREATE INDEX IF NOT EXISTS journalentry_created_at ON journalentry (created_at DESC)`,
}

// PostgresStore keeps entries in PostgreSQL with the pgvector extension and
// ranks neighbours with the <-> (L2) operator.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPostgres connects to dsn (a lib/pq connection string or URL).
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: postgres dsn is empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db, now: time.Now}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the vector extension and the entries table if absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, e models.NewEntry) (*models.Entry, error) {
	if err := validate(e); err != nil {
		return nil, err
	}
	persp, err := json.Marshal(e.Perspectives)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// postgres keeps microseconds; truncate so the returned entry matches a
	// later read
	created := s.now().UTC().Truncate(time.Microsecond)
	row := tx.QueryRowContext(ctx,
		`INSERT INTO journalentry (content, emotion, perspectives, embedding, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, content, emotion, perspectives, embedding, created_at`,
		e.Content, e.Emotion, string(persp), pgvector.NewVector(e.Embedding), created)
	saved, err := scanPostgresEntry(row)
	if err != nil {
		return nil, fmt.Errorf("store: insert entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit entry: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, emotion, perspectives, embedding, created_at FROM journalentry ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Entry{}
	for rows.Next() {
		e, err := scanPostgresEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Nearest(ctx context.Context, vec []float32, k int) ([]string, error) {
	if k <= 0 {
		return []string{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM journalentry ORDER BY embedding <-> $1, id LIMIT $2`,
		pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		out = append(out, content)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *PostgresStore) Driver() string { return "postgres" }

func (s *PostgresStore) Close() error { return s.db.Close() }

func scanPostgresEntry(row rowScanner) (*models.Entry, error) {
	var (
		e     models.Entry
		persp []byte
		vec   pgvector.Vector
	)
	if err := row.Scan(&e.ID, &e.Content, &e.Emotion, &persp, &vec, &e.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(persp, &e.Perspectives); err != nil {
		return nil, fmt.Errorf("decode perspectives of entry %d: %w", e.ID, err)
	}
	e.Embedding = vec.Slice()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

var _ Store = (*PostgresStore)(nil)
