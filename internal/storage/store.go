package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/Veraticus/finrules/internal/service"
)

// Options selects and configures the database backend.
type Options struct {
	Driver string
	Path   string // SQLite database file
	DSN    string // Postgres connection string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements service.Storage on top of database/sql.
type Store struct {
	db      *sql.DB
	q       querier
	now     func() time.Time
	dialect dialect
}

var _ service.Storage = (*Store)(nil)

// Open opens the configured backend.
func Open(opts Options) (*Store, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		return NewSQLiteStorage(opts.Path)
	case DriverPostgres:
		return NewPostgresStorage(opts.DSN)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidOptions, opts.Driver)
	}
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*Store, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(DriverSQLite, dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newStore(db, DriverSQLite), nil
}

// NewPostgresStorage creates a storage instance backed by Postgres through
// the pgx stdlib driver.
func NewPostgresStorage(dsn string) (*Store, error) {
	if err := validateString(dsn, "dsn"); err != nil {
		return nil, err
	}

	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newStore(db, DriverPostgres), nil
}

func newStore(db *sql.DB, driver string) *Store {
	return &Store{
		db:      db,
		q:       db,
		dialect: dialect{driver: driver},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Driver returns the backend driver name.
func (s *Store) Driver() string {
	return s.dialect.driver
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *Store) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqlTransaction{
		Store: &Store{q: tx, dialect: s.dialect, now: s.now},
		tx:    tx,
	}, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// sqlTransaction wraps sql.Tx to implement service.Transaction. Every
// Storage method runs on the embedded Store, whose querier is the tx.
type sqlTransaction struct {
	*Store
	tx *sql.Tx
}

var savepointName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (t *sqlTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqlTransaction) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqlTransaction) Savepoint(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "SAVEPOINT ", name)
}

func (t *sqlTransaction) RollbackToSavepoint(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "ROLLBACK TO SAVEPOINT ", name)
}

func (t *sqlTransaction) ReleaseSavepoint(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "RELEASE SAVEPOINT ", name)
}

func (t *sqlTransaction) savepointExec(ctx context.Context, stmt, name string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if !savepointName.MatchString(name) {
		return fmt.Errorf("%w: savepoint name %q", ErrInvalidOptions, name)
	}
	if _, err := t.tx.ExecContext(ctx, stmt+name); err != nil {
		return fmt.Errorf("failed to execute %s%s: %w", stmt, name, err)
	}
	return nil
}

func (t *sqlTransaction) Migrate(_ context.Context) error {
	// Migrations should not be run within a transaction
	return fmt.Errorf("migrations cannot be run within a transaction")
}

func (t *sqlTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	// Nested transactions not supported; use savepoints
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *sqlTransaction) Close() error {
	// Transactions should be committed or rolled back, not closed
	return fmt.Errorf("transactions must be committed or rolled back, not closed")
}

// TxBeginner starts storage transactions. service.Storage satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context) (service.Transaction, error)
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func WithTx(ctx context.Context, store TxBeginner, fn func(tx service.Transaction) error) (err error) {
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
