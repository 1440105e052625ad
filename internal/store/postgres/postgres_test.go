package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// messageRowColumns is the column list for scanMessage results.
var messageRowColumns = []string{
	"id", "author", "body", "status", "created_at", "displayed_at", "expires_at", "display_count",
}

var t0 = time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)

func TestScanHelpers(t *testing.T) {
	if nullString("").Valid {
		t.Error("nullString(\"\") should be invalid")
	}
	if ns := nullString("a"); !ns.Valid || ns.String != "a" {
		t.Errorf("nullString(\"a\") = %v", ns)
	}

	if nullStringPtr(nil).Valid {
		t.Error("nullStringPtr(nil) should be invalid")
	}
	empty := ""
	if ns := nullStringPtr(&empty); !ns.Valid {
		t.Error("nullStringPtr(&\"\") should be valid")
	}

	for n, valid := range map[int]bool{-1: false, 0: false, 5: true} {
		if got := nullLimit(n); got.Valid != valid {
			t.Errorf("nullLimit(%d).Valid = %v, want %v", n, got.Valid, valid)
		}
	}

	if utcPtr(sql.NullTime{}) != nil {
		t.Error("utcPtr(null) should be nil")
	}
	local := time.Date(2025, 12, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))
	if got := utcPtr(sql.NullTime{Time: local, Valid: true}); got.Location() != time.UTC || !got.Equal(local) {
		t.Errorf("utcPtr = %v", got)
	}
}

func TestCreateMessage(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	author := "Alice"
	mock.ExpectExec("INSERT INTO messages").
		WithArgs("msg-1", "Alice", "Great job team!", "queued", t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := &model.Message{ID: "msg-1", Author: &author, Body: "Great job team!", CreatedAt: t0}
	if err := s.CreateMessage(context.Background(), m); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if m.Status != model.StatusQueued {
		t.Errorf("Status = %q, want queued", m.Status)
	}
}

func TestCreateMessage_AnonymousIsNull(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectExec("INSERT INTO messages").
		WithArgs("msg-1", nil, "hello", "queued", t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateMessage(context.Background(), &model.Message{ID: "msg-1", Body: "hello", CreatedAt: t0}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
}

func TestCreateMessage_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectExec("INSERT INTO messages").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := s.CreateMessage(context.Background(), &model.Message{ID: "msg-1", Body: "x", CreatedAt: t0})
	if !errors.Is(err, store.ErrExists) {
		t.Fatalf("err = %v, want ErrExists", err)
	}
}

func TestSeedMessage(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectExec("INSERT INTO messages .+ ON CONFLICT \\(id\\) DO NOTHING").
		WithArgs("placeholder-1", nil, "Welcome", "queued", t0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO messages .+ ON CONFLICT \\(id\\) DO NOTHING").
		WithArgs("placeholder-1", nil, "Welcome", "queued", t0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	for i, want := range []bool{true, false} {
		got, err := s.SeedMessage(context.Background(), &model.Message{ID: "placeholder-1", Body: "Welcome", CreatedAt: t0})
		if err != nil {
			t.Fatalf("SeedMessage #%d: %v", i, err)
		}
		if got != want {
			t.Errorf("SeedMessage #%d = %v, want %v", i, got, want)
		}
	}
}

func TestGetMessage_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT .+ FROM messages WHERE id = \\$1").
		WithArgs("msg-missing").
		WillReturnRows(sqlmock.NewRows(messageRowColumns))

	if _, err := s.GetMessage(context.Background(), "msg-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTransition_Activate(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	exp := t0.Add(time.Minute)
	mock.ExpectQuery("UPDATE messages SET status = \\$3, displayed_at = \\$4, expires_at = \\$5, display_count = display_count \\+ 1 WHERE id = \\$1 AND status = \\$2 RETURNING").
		WithArgs("msg-1", "queued", "displaying", t0, exp).
		WillReturnRows(sqlmock.NewRows(messageRowColumns).
			AddRow("msg-1", nil, "hello", "displaying", t0.Add(-time.Hour), t0, exp, 1))

	m, err := s.Transition(context.Background(), model.Activate("msg-1", t0, time.Minute))
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if m.Status != model.StatusDisplaying || m.Author != nil || m.DisplayCount != 1 {
		t.Errorf("got %+v", m)
	}
	if !m.DisplayedAt.Equal(t0) || !m.ExpiresAt.Equal(exp) {
		t.Errorf("window = %v..%v", m.DisplayedAt, m.ExpiresAt)
	}
}

func TestTransition_Conflict(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("UPDATE messages").
		WithArgs("msg-1", "queued", "displaying", t0, t0.Add(time.Minute)).
		WillReturnRows(sqlmock.NewRows(messageRowColumns))

	_, err := s.Transition(context.Background(), model.Activate("msg-1", t0, time.Minute))
	if !errors.Is(err, store.ErrTransitionConflict) {
		t.Fatalf("err = %v, want ErrTransitionConflict", err)
	}
}

func TestTransition_ExpireGuardsExpiresAt(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("UPDATE messages SET status = \\$3 WHERE id = \\$1 AND status = \\$2 AND expires_at <= \\$4 RETURNING").
		WithArgs("msg-1", "displaying", "expired", t0).
		WillReturnRows(sqlmock.NewRows(messageRowColumns).
			AddRow("msg-1", "Bob", "hi", "expired", t0.Add(-2*time.Minute), t0.Add(-time.Minute), t0, 1))

	m, err := s.Transition(context.Background(), model.Expire("msg-1", t0))
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if m.Status != model.StatusExpired || m.Author == nil || *m.Author != "Bob" {
		t.Errorf("got %+v", m)
	}
}

func TestTransition_InvalidNeverReachesDB(t *testing.T) {
	db, _ := newMockDB(t)
	s := NewWithDB(db)

	_, err := s.Transition(context.Background(), model.Transition{ID: "msg-1", From: model.StatusExpired, To: model.StatusQueued})
	if err == nil || errors.Is(err, store.ErrTransitionConflict) {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestCountByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM messages WHERE status = \\$1").
		WithArgs("displaying").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM messages$").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	n, err := s.CountByStatus(context.Background(), model.StatusDisplaying)
	if err != nil || n != 7 {
		t.Fatalf("CountByStatus(displaying) = %d, %v", n, err)
	}
	n, err = s.CountByStatus(context.Background(), "")
	if err != nil || n != 12 {
		t.Fatalf("CountByStatus(all) = %d, %v", n, err)
	}
}

func TestFindOldest(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT .+ FROM messages WHERE .+ ORDER BY created_at ASC, id ASC LIMIT \\$2").
		WithArgs("queued", int64(2)).
		WillReturnRows(sqlmock.NewRows(messageRowColumns).
			AddRow("a", nil, "first", "queued", t0, nil, nil, 0).
			AddRow("b", "Bo", "second", "queued", t0.Add(time.Second), nil, nil, 0))

	got, err := s.FindOldest(context.Background(), model.StatusQueued, 2)
	if err != nil {
		t.Fatalf("FindOldest: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("got %v", got)
	}
	if got[0].DisplayedAt != nil || got[0].ExpiresAt != nil {
		t.Error("queued message should have no display window")
	}
}

func TestFindOldest_Unlimited(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT .+ FROM messages").
		WithArgs("", nil).
		WillReturnRows(sqlmock.NewRows(messageRowColumns))

	if _, err := s.FindOldest(context.Background(), "", 0); err != nil {
		t.Fatalf("FindOldest: %v", err)
	}
}

func TestListDue(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("WHERE status = 'displaying' AND expires_at <= \\$1 ORDER BY expires_at ASC").
		WithArgs(t0, int64(50)).
		WillReturnRows(sqlmock.NewRows(messageRowColumns).
			AddRow("a", nil, "x", "displaying", t0.Add(-2*time.Minute), t0.Add(-time.Minute), t0, 1))

	got, err := s.ListDue(context.Background(), t0, 50)
	if err != nil || len(got) != 1 {
		t.Fatalf("ListDue = %v, %v", got, err)
	}
}

func TestListActive(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("WHERE status = 'displaying' ORDER BY displayed_at ASC, id ASC LIMIT \\$1").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(messageRowColumns))

	if _, err := s.ListActive(context.Background(), 10); err != nil {
		t.Fatalf("ListActive: %v", err)
	}
}

func TestSampleByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("WHERE status = \\$1 ORDER BY random\\(\\) LIMIT \\$2").
		WithArgs("expired", int64(3)).
		WillReturnRows(sqlmock.NewRows(messageRowColumns))

	if _, err := s.SampleByStatus(context.Background(), model.StatusExpired, 3); err != nil {
		t.Fatalf("SampleByStatus: %v", err)
	}
}

func TestRecordAndListEvents(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("INSERT INTO message_events").
		WithArgs("msg-1", "activated", 1, t0, "host-a").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectQuery("SELECT id, message_id, kind, occurrence, at, instance FROM message_events WHERE message_id = \\$1").
		WithArgs("msg-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "message_id", "kind", "occurrence", "at", "instance"}).
			AddRow(42, "msg-1", "activated", 1, t0, "host-a").
			AddRow(43, "msg-1", "expired", 1, t0.Add(time.Minute), nil))

	e := &model.Event{MessageID: "msg-1", Kind: model.EventActivated, Occurrence: 1, At: t0, Instance: "host-a"}
	if err := s.RecordEvent(context.Background(), e); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if e.ID != 42 {
		t.Errorf("ID = %d, want 42", e.ID)
	}

	got, err := s.ListEvents(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(got) != 2 || got[1].Kind != model.EventExpired || got[1].Instance != "" {
		t.Fatalf("got %+v", got)
	}
}
