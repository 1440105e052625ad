package postgres

import (
	"database/sql"
	"time"

	"github.com/alfredjeanlab/shoutboard/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanMessage scans a single row into a model.Message.
// The row must contain columns in the order defined by messageColumns.
func scanMessage(row scannable) (*model.Message, error) {
	var m model.Message
	var (
		author      sql.NullString
		displayedAt sql.NullTime
		expiresAt   sql.NullTime
	)

	err := row.Scan(
		&m.ID,
		&author,
		&m.Body,
		&m.Status,
		&m.CreatedAt,
		&displayedAt,
		&expiresAt,
		&m.DisplayCount,
	)
	if err != nil {
		return nil, err
	}

	m.CreatedAt = m.CreatedAt.UTC()
	if author.Valid {
		a := author.String
		m.Author = &a
	}
	m.DisplayedAt = utcPtr(displayedAt)
	m.ExpiresAt = utcPtr(expiresAt)

	return &m, nil
}

// scanMessages scans all rows into a slice of messages.
func scanMessages(rows *sql.Rows) ([]*model.Message, error) {
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

// scanEvents scans display log rows.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var out []*model.Event
	for rows.Next() {
		var (
			e        model.Event
			instance sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Kind, &e.Occurrence, &e.At, &instance); err != nil {
			return nil, err
		}
		e.At = e.At.UTC()
		e.Instance = instance.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

func utcPtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringPtr converts an optional string; nil is null, empty is kept.
func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullLimit maps a non-positive limit to NULL (no limit).
func nullLimit(n int) sql.NullInt64 {
	if n <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}
