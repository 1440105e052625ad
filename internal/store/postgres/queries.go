package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store"
)

// messageColumns is the column list used for SELECT and RETURNING clauses on
// the messages table.
const messageColumns = `id, author, body, status, created_at, displayed_at, expires_at, display_count`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

func queryCreateMessage(ctx context.Context, db executor, m *model.Message) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, author, body, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, nullStringPtr(m.Author), m.Body, string(m.Status), m.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("create %s: %w", m.ID, store.ErrExists)
	}
	return err
}

func querySeedMessage(ctx context.Context, db executor, m *model.Message) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, author, body, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, nullStringPtr(m.Author), m.Body, string(m.Status), m.CreatedAt,
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

func queryGetMessage(ctx context.Context, db executor, id string) (*model.Message, error) {
	row := db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return m, err
}

// queryTransition applies t as a single conditional UPDATE. No returned row
// means the guard did not hold.
func queryTransition(ctx context.Context, db executor, t model.Transition) (*model.Message, error) {
	var row *sql.Row
	if t.To == model.StatusDisplaying {
		row = db.QueryRowContext(ctx, `
			UPDATE messages
			SET status = $3, displayed_at = $4, expires_at = $5, display_count = display_count + 1
			WHERE id = $1 AND status = $2
			RETURNING `+messageColumns,
			t.ID, string(t.From), string(t.To), t.At, t.ExpiresAt(),
		)
	} else {
		row = db.QueryRowContext(ctx, `
			UPDATE messages
			SET status = $3
			WHERE id = $1 AND status = $2 AND expires_at <= $4
			RETURNING `+messageColumns,
			t.ID, string(t.From), string(t.To), t.At,
		)
	}
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTransitionConflict
	}
	return m, err
}

func queryCountByStatus(ctx context.Context, db executor, status model.Status) (int, error) {
	var n int
	var err error
	if status == "" {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	} else {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE status = $1`, string(status)).Scan(&n)
	}
	return n, err
}

// LIMIT NULL is LIMIT ALL in PostgreSQL, so a zero limit maps to NULL.

func queryFindOldest(ctx context.Context, db executor, status model.Status, limit int) ([]*model.Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at ASC, id ASC
		LIMIT $2`,
		string(status), nullLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func queryListDue(ctx context.Context, db executor, now time.Time, limit int) ([]*model.Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE status = 'displaying' AND expires_at <= $1
		ORDER BY expires_at ASC, id ASC
		LIMIT $2`,
		now, nullLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func queryListActive(ctx context.Context, db executor, limit int) ([]*model.Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE status = 'displaying'
		ORDER BY displayed_at ASC, id ASC
		LIMIT $1`,
		nullLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func querySampleByStatus(ctx context.Context, db executor, status model.Status, n int) ([]*model.Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE status = $1
		ORDER BY random()
		LIMIT $2`,
		string(status), nullLimit(n),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO message_events (message_id, kind, occurrence, at, instance)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		e.MessageID, string(e.Kind), e.Occurrence, e.At, nullString(e.Instance),
	).Scan(&e.ID)
}

func queryListEvents(ctx context.Context, db executor, messageID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, message_id, kind, occurrence, at, instance
		FROM message_events
		WHERE message_id = $1
		ORDER BY id ASC`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}
