// Package sqlite implements the progression store on an embedded SQLite
// database. It backs local development and the engine's integration tests;
// production deployments use the postgres package.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/retry"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Config holds SQLite settings.
type Config struct {
	// Path is a file path or MemoryPath.
	Path string

	// BusyTimeout is how long a writer waits for the database lock.
	BusyTimeout time.Duration
}

// DefaultConfig returns a file-backed configuration.
func DefaultConfig() Config {
	return Config{
		Path:        "progression.db",
		BusyTimeout: 5 * time.Second,
	}
}

// DSN builds the driver connection string. Transactions start with
// BEGIN IMMEDIATE so a read-modify-write holds the write lock from its
// first read.
func (c Config) DSN() string {
	timeout := c.BusyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	params := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", timeout.Milliseconds()),
		"_pragma=foreign_keys(1)",
		"_txlock=immediate",
	}
	if c.Path != MemoryPath {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	return c.Path + "?" + strings.Join(params, "&")
}

// Store implements progression.Store.
type Store struct {
	db      *sql.DB
	retrier *retry.Retrier
}

var _ progression.Store = (*Store)(nil)

// Open opens the database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if cfg.Path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	return &Store{
		db:      db,
		retrier: retry.TransactionRetrier(IsBusy),
	}, nil
}

// OpenMemory opens a migrated in-memory store.
func OpenMemory(ctx context.Context) (*Store, error) {
	s, err := Open(ctx, Config{Path: MemoryPath})
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the handle for health checks and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withTx runs fn in a write transaction, replaying it while the database
// reports itself busy.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}

		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
		}()

		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func errorCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

// IsBusy reports lock contention that is safe to retry.
func IsBusy(err error) bool {
	code, ok := errorCode(err)
	if !ok {
		return false
	}
	primary := code & 0xff
	return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
}

// IsUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	code, ok := errorCode(err)
	if !ok {
		return false
	}
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "UNIQUE")
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// COLUMN HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func dayValue(d progression.Day) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func scanDay(ns sql.NullString) (progression.Day, error) {
	if !ns.Valid {
		return progression.Day{}, nil
	}
	return progression.ParseDay(ns.String)
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
