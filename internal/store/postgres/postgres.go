// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already opened database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "shoutboard_migrations"})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateMessage(ctx context.Context, m *model.Message) error {
	if err := store.Prepare(m, time.Now()); err != nil {
		return err
	}
	return queryCreateMessage(ctx, s.db, m)
}

func (s *PostgresStore) SeedMessage(ctx context.Context, m *model.Message) (bool, error) {
	if err := store.Prepare(m, time.Now()); err != nil {
		return false, err
	}
	return querySeedMessage(ctx, s.db, m)
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	return queryGetMessage(ctx, s.db, id)
}

func (s *PostgresStore) Transition(ctx context.Context, t model.Transition) (*model.Message, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return queryTransition(ctx, s.db, t)
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status model.Status) (int, error) {
	return queryCountByStatus(ctx, s.db, status)
}

func (s *PostgresStore) FindOldest(ctx context.Context, status model.Status, limit int) ([]*model.Message, error) {
	return queryFindOldest(ctx, s.db, status, limit)
}

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Message, error) {
	return queryListDue(ctx, s.db, now, limit)
}

func (s *PostgresStore) ListActive(ctx context.Context, limit int) ([]*model.Message, error) {
	return queryListActive(ctx, s.db, limit)
}

func (s *PostgresStore) SampleByStatus(ctx context.Context, status model.Status, n int) ([]*model.Message, error) {
	return querySampleByStatus(ctx, s.db, status, n)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, e *model.Event) error {
	return queryRecordEvent(ctx, s.db, e)
}

func (s *PostgresStore) ListEvents(ctx context.Context, messageID string) ([]*model.Event, error) {
	return queryListEvents(ctx, s.db, messageID)
}
