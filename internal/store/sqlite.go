package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"

	"github.com/jeefy/mindjournal/internal/models"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS journalentry (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    content      TEXT NOT NULL,
    emotion      TEXT NOT NULL,
    perspectives TEXT NOT NULL,
    embedding    BLOB NOT NULL,
    created_at   INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS journalentry_created_at ON journalentry(created_at)`,
}

const entryColumns = `id, content, emotion, perspectives, embedding, created_at`

var registerOnce sync.Once
var registerErr error

// registerVectorFunctions installs vec_l2 on the driver. Registration is
// global and must happen before the first connection is opened.
func registerVectorFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction("vec_l2", 2, vecL2Impl)
	})
	return registerErr
}

func vecL2Impl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vec_l2: expected 2 arguments, got %d", len(args))
	}
	a, aok := args[0].([]byte)
	b, bok := args[1].([]byte)
	if !aok || !bok {
		return nil, fmt.Errorf("vec_l2: unsupported argument types %T, %T; want BLOB", args[0], args[1])
	}
	va, err := DecodeEmbedding(a)
	if err != nil {
		return nil, err
	}
	vb, err := DecodeEmbedding(b)
	if err != nil {
		return nil, err
	}
	d, err := L2Distance(va, vb)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// SQLiteStore keeps entries in a single SQLite table using the pure-Go
// modernc.org/sqlite driver. Embeddings are float32 BLOBs compared with the
// vec_l2 scalar function.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at dsn. Use ":memory:" for a
// throwaway database.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: sqlite dsn is empty")
	}
	if err := registerVectorFunctions(); err != nil {
		return nil, fmt.Errorf("store: register vector functions: %w", err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection serializes access and
	// keeps ":memory:" databases alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the entries table if it does not already exist.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, e models.NewEntry) (*models.Entry, error) {
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

	res, err := tx.ExecContext(ctx,
		`INSERT INTO journalentry(content, emotion, perspectives, embedding, created_at) VALUES(?, ?, ?, ?, ?)`,
		e.Content, e.Emotion, string(persp), EncodeEmbedding(e.Embedding), s.now().UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("store: insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	saved, err := scanEntry(tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM journalentry WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("store: read back entry %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit entry: %w", err)
	}
	return saved, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*models.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM journalentry ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
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

func (s *SQLiteStore) Nearest(ctx context.Context, vec []float32, k int) ([]string, error) {
	if k <= 0 {
		return []string{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM journalentry ORDER BY vec_l2(embedding, ?) ASC, id ASC LIMIT ?`,
		EncodeEmbedding(vec), k)
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

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Driver() string { return "sqlite" }

func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var (
		e       models.Entry
		persp   string
		blob    []byte
		created int64
	)
	if err := row.Scan(&e.ID, &e.Content, &e.Emotion, &persp, &blob, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(persp), &e.Perspectives); err != nil {
		return nil, fmt.Errorf("decode perspectives of entry %d: %w", e.ID, err)
	}
	vec, err := DecodeEmbedding(blob)
	if err != nil {
		return nil, err
	}
	e.Embedding = vec
	e.CreatedAt = time.Unix(0, created).UTC()
	return &e, nil
}

var _ Store = (*SQLiteStore)(nil)
