/*
Package sqlite provides a SQLite-backed implementation of inventory.TxStore.

PURPOSE:
  Implements every persistence interface of the inventory package on one
  SQLite database. Schema lives in versioned goose migrations embedded in
  the binary (migrations/*.sql) and is applied on New().

INTERFACES IMPLEMENTED:
  inventory.CatalogStore:  ingredients, products, recipes, stock CAS
  inventory.ClosingStore:  daily closings and line items
  inventory.SalesStore:    invoices
  inventory.PurchaseStore: purchases
  inventory.PartyStore:    customers, suppliers
  inventory.CompanyStore:  tenants
  inventory.TxStore:       WithTx

KEY TABLES:
  daily_closings:     unique (company_id, closing_date)
  closing_line_items: subject_kind + subject_id, CHECKed to one kind
  invoices/purchases: unique (company_id, number)

TENANCY:
  Every query filters on company_id. Child tables (lines) are reached only
  through their tenant-filtered parent.

OPTIMISTIC CONCURRENCY:
  UpdateStock runs
    UPDATE ... SET stock = ?, version = version + 1
    WHERE id = ? AND company_id = ? AND version = ?
  and reports ErrConcurrentModification when no row matched.

CONNECTIONS:
  The pool is capped at one connection. SQLite allows a single writer
  anyway, and ":memory:" databases are per-connection.

USAGE:
  store, err := sqlite.New("./data/closing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - inventory/store.go: interface definitions
  - inventory/store:    in-memory CatalogStore for engine tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/facinv/closing-engine/inventory"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Store implements inventory.TxStore using SQLite.
type Store struct {
	db *sql.DB
	q  querier
	tx *sql.Tx // set on transaction-bound copies
	mu *sync.Mutex
}

var _ inventory.TxStore = (*Store)(nil)

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: db, mu: &sync.Mutex{}}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx runs fn against a Store bound to one database transaction. Nested
// calls on an already bound Store join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store inventory.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	bound := &Store{db: s.db, q: sqlTx, tx: sqlTx, mu: s.mu}
	if err := fn(bound); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// atomic runs fn in the current transaction, or in a fresh one when the
// store is not bound. Used by multi-statement writes (header plus lines).
func (s *Store) atomic(ctx context.Context, fn func(q querier) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &inventory.NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("failed to load %s: %w", entity, err)
}

// writeErr maps constraint violations to domain errors.
func writeErr(err error, entity, field, value string) error {
	switch {
	case err == nil:
		return nil
	case isUniqueConstraintError(err):
		return &inventory.ConflictError{Entity: entity, Field: field, Value: value}
	case isForeignKeyError(err):
		return &inventory.ConflictError{Entity: entity, Value: value + " references a missing entity or is still in use"}
	}
	return fmt.Errorf("failed to write %s: %w", entity, err)
}

// namedErr is writeErr for catalog rows, whose name is unique per company.
func namedErr(err error, entity, id, name string) error {
	if isUniqueConstraintError(err) && strings.Contains(err.Error(), ".name") {
		return &inventory.ConflictError{Entity: entity, Field: "name", Value: name}
	}
	return writeErr(err, entity, "id", id)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// expectOne turns a zero-row update into err.
func expectOne(res sql.Result, err error) error {
	n, rerr := res.RowsAffected()
	if rerr != nil {
		return rerr
	}
	if n == 0 {
		return err
	}
	return nil
}
