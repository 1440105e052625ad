// Package sqlite implements store.Store on an embedded SQLite database. It
// serves single-node deployments; several processes may share the file, and
// every transition is still a single conditional UPDATE.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const messageColumns = `id, author, body, status, created_at, displayed_at, expires_at, display_count`

// Store implements store.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" on one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db, path); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// busyTimeoutMS is how long a writer waits on another process's lock before
// failing with SQLITE_BUSY.
const busyTimeoutMS = 5000

// applyPragmas sets up the connection for sharing the file between
// processes. A file database must end up in WAL mode.
func applyPragmas(ctx context.Context, db *sql.DB, path string) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS)); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode = WAL").Scan(&mode); err != nil {
		return fmt.Errorf("set journal_mode: %w", err)
	}
	if path != ":memory:" && !strings.EqualFold(mode, "wal") {
		return fmt.Errorf("set journal_mode: database stayed in %q mode", mode)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL"); err != nil {
		return fmt.Errorf("set synchronous: %w", err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	inserted, err := s.insert(ctx, m)
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("create %s: %w", m.ID, store.ErrExists)
	}
	return nil
}

func (s *Store) SeedMessage(ctx context.Context, m *model.Message) (bool, error) {
	return s.insert(ctx, m)
}

func (s *Store) insert(ctx context.Context, m *model.Message) (bool, error) {
	if err := store.Prepare(m, time.Now()); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, author, body, status, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, nullStringPtr(m.Author), m.Body, string(m.Status), m.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return m, err
}

func (s *Store) Transition(ctx context.Context, t model.Transition) (*model.Message, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	var row *sql.Row
	if t.To == model.StatusDisplaying {
		row = s.db.QueryRowContext(ctx, `
			UPDATE messages
			SET status = ?, displayed_at = ?, expires_at = ?, display_count = display_count + 1
			WHERE id = ? AND status = ?
			RETURNING `+messageColumns,
			string(t.To), t.At.UnixMilli(), t.ExpiresAt().UnixMilli(), t.ID, string(t.From),
		)
	} else {
		row = s.db.QueryRowContext(ctx, `
			UPDATE messages
			SET status = ?
			WHERE id = ? AND status = ? AND expires_at <= ?
			RETURNING `+messageColumns,
			string(t.To), t.ID, string(t.From), t.At.UnixMilli(),
		)
	}
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTransitionConflict
	}
	return m, err
}

func (s *Store) CountByStatus(ctx context.Context, status model.Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE (? = '' OR status = ?)`,
		string(status), string(status),
	).Scan(&n)
	return n, err
}

func (s *Store) FindOldest(ctx context.Context, status model.Status, limit int) ([]*model.Message, error) {
	return s.query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (? = '' OR status = ?)
		ORDER BY created_at ASC, id ASC
		LIMIT ?`,
		string(status), string(status), sqlLimit(limit),
	)
}

func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Message, error) {
	return s.query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE status = 'displaying' AND expires_at <= ?
		ORDER BY expires_at ASC, id ASC
		LIMIT ?`,
		now.UnixMilli(), sqlLimit(limit),
	)
}

func (s *Store) ListActive(ctx context.Context, limit int) ([]*model.Message, error) {
	return s.query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE status = 'displaying'
		ORDER BY displayed_at ASC, id ASC
		LIMIT ?`,
		sqlLimit(limit),
	)
}

func (s *Store) SampleByStatus(ctx context.Context, status model.Status, n int) ([]*model.Message, error) {
	return s.query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE status = ?
		ORDER BY RANDOM()
		LIMIT ?`,
		string(status), sqlLimit(n),
	)
}

func (s *Store) RecordEvent(ctx context.Context, e *model.Event) error {
	return s.db.QueryRowContext(ctx, `
		INSERT INTO message_events (message_id, kind, occurrence, at, instance)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		e.MessageID, string(e.Kind), e.Occurrence, e.At.UnixMilli(), e.Instance,
	).Scan(&e.ID)
}

func (s *Store) ListEvents(ctx context.Context, messageID string) ([]*model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, kind, occurrence, at, instance
		FROM message_events
		WHERE message_id = ?
		ORDER BY id ASC`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Event
	for rows.Next() {
		var (
			e  model.Event
			at int64
		)
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Kind, &e.Occurrence, &at, &e.Instance); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(at).UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMessage(row scannable) (*model.Message, error) {
	var (
		m           model.Message
		author      sql.NullString
		createdAt   int64
		displayedAt sql.NullInt64
		expiresAt   sql.NullInt64
	)
	if err := row.Scan(&m.ID, &author, &m.Body, &m.Status, &createdAt, &displayedAt, &expiresAt, &m.DisplayCount); err != nil {
		return nil, err
	}
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	if author.Valid {
		a := author.String
		m.Author = &a
	}
	m.DisplayedAt = millisPtr(displayedAt)
	m.ExpiresAt = millisPtr(expiresAt)
	return &m, nil
}

func millisPtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64).UTC()
	return &t
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// sqlLimit maps a non-positive limit to -1, which SQLite reads as no limit.
func sqlLimit(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}
