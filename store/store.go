package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"
)

var (
	// ErrDeadlock is returned by Store.Lock when a session is already
	// held by this process ("dead lock detected" in spec terms).
	ErrDeadlock = errors.New("store: dead lock detected")

	// ErrBusy is returned when the underlying database could not be
	// locked within its busy_timeout window.
	ErrBusy = errors.New("store: database busy")

	// ErrNotFound is returned when an operation names a job or task id
	// that does not exist.
	ErrNotFound = errors.New("store: job not found")
)

// Store is a single-file relational database holding jobs, array tasks
// and dependency edges. All mutation is serialized through an exclusive
// Session acquired with Lock.
type Store struct {
	db     *bun.DB
	path   string
	log    *slog.Logger
	locked atomic.Bool
}

// Open attaches to the database file at path, creating its schema if the
// file does not already exist. An empty or ":memory:" path opens a
// private in-memory database, primarily for tests.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dsn := path
	if path == "" || path == ":memory:" {
		dsn = "file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(600000)"
	} else {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(600000)", path)
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1) // single-writer discipline; see spec §5
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	if err := InitDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &Store{db: db, path: path, log: log}, nil
}

// Close releases the underlying database handle. If no jobs remain in
// the store, the backing file is removed, matching the spec's "if no
// jobs remain, the file is removed" shutdown contract.
func (s *Store) Close(ctx context.Context) error {
	count, countErr := s.db.NewSelect().Model((*jobModel)(nil)).Count(ctx)
	closeErr := s.db.Close()
	if countErr == nil && count == 0 && s.path != "" && s.path != ":memory:" {
		if _, statErr := os.Stat(s.path); statErr == nil {
			if rmErr := os.Remove(s.path); rmErr != nil {
				s.log.Warn("could not remove empty state file", "path", s.path, "err", rmErr)
			} else {
				s.log.Debug("removed empty state file", "path", s.path)
			}
		}
	}
	return closeErr
}

// Lock acquires the exclusive session required for any mutation.
// Re-entrant acquisition from a process that already holds the session
// returns ErrDeadlock, matching the spec's "dead lock detected" error.
func (s *Store) Lock(ctx context.Context) (*Session, error) {
	if !s.locked.CompareAndSwap(false, true) {
		return nil, ErrDeadlock
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.locked.Store(false)
		return nil, wrapBusy(err)
	}
	return &Session{store: s, tx: tx}, nil
}

func wrapBusy(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "busy") || strings.Contains(msg, "locked") {
		return errors.Join(ErrBusy, err)
	}
	return err
}
