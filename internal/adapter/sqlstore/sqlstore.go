// Package sqlstore keeps letters in a relational database through sqlx.
// SQLite (modernc.org/sqlite) serves local runs and tests; Postgres serves
// self-hosted deployments.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/model"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const schema = `
CREATE TABLE IF NOT EXISTS letters (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	from_uid TEXT NOT NULL DEFAULT '',
	to_uid TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	timestamp BIGINT NOT NULL,
	body TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_letters_owner_ts ON letters(owner, timestamp);
CREATE INDEX IF NOT EXISTS idx_letters_to_ts ON letters(to_uid, timestamp);
`

type row struct {
	ID        string `db:"id"`
	Owner     string `db:"owner"`
	From      string `db:"from_uid"`
	To        string `db:"to_uid"`
	Title     string `db:"title"`
	Timestamp int64  `db:"timestamp"`
	Body      string `db:"body"`
}

// LetterStore implements adapter.LetterStore.
type LetterStore struct {
	db *sqlx.DB
}

// Open connects with driver ("sqlite" or "postgres") and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*LetterStore, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// A single connection keeps :memory: databases shared and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	return New(ctx, db)
}

// New wraps an existing connection and creates the schema if needed.
func New(ctx context.Context, db *sqlx.DB) (*LetterStore, error) {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return &LetterStore{db: db}, nil
}

func (s *LetterStore) Close() error {
	return s.db.Close()
}

func (s *LetterStore) CreateLetter(ctx context.Context, letter *model.Letter) error {
	body, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to encode letter: %w", err)
	}
	r := row{
		ID:        letter.ID,
		Owner:     letter.Owner,
		From:      letter.From,
		To:        letter.To,
		Title:     letter.Title,
		Timestamp: letter.Timestamp,
		Body:      string(body),
	}

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO letters (id, owner, from_uid, to_uid, title, timestamp, body)
		VALUES (:id, :owner, :from_uid, :to_uid, :title, :timestamp, :body)
		ON CONFLICT (id) DO NOTHING`, r)
	if err != nil {
		return fmt.Errorf("failed to insert letter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert letter: %w", err)
	}
	if n == 0 {
		return adapter.ErrAlreadyExists
	}
	return nil
}

func (s *LetterStore) GetLetter(ctx context.Context, id string) (*model.Letter, error) {
	var r row
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT * FROM letters WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapter.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get letter: %w", err)
	}
	return decode(r)
}

func (s *LetterStore) ListLetters(ctx context.Context, query adapter.LetterQuery) ([]model.Letter, error) {
	var (
		where []string
		args  []interface{}
	)
	if query.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, query.Owner)
	}
	if query.From != "" {
		where = append(where, "from_uid = ?")
		args = append(args, query.From)
	}
	if query.To != "" {
		where = append(where, "to_uid = ?")
		args = append(args, query.To)
	}
	if query.DraftsOnly {
		where = append(where, "to_uid = ''")
	}

	q := "SELECT * FROM letters"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp DESC"
	if query.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", query.Limit)
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("failed to list letters: %w", err)
	}

	letters := make([]model.Letter, 0, len(rows))
	for _, r := range rows {
		l, err := decode(r)
		if err != nil {
			return nil, err
		}
		letters = append(letters, *l)
	}
	return letters, nil
}

func (s *LetterStore) DeleteLetter(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM letters WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete letter: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return adapter.ErrNotFound
	}
	return nil
}

func decode(r row) (*model.Letter, error) {
	var l model.Letter
	if err := json.Unmarshal([]byte(r.Body), &l); err != nil {
		return nil, fmt.Errorf("failed to decode letter %s: %w", r.ID, err)
	}
	l.ID = r.ID
	l.Normalize()
	return &l, nil
}
