package store

import (
	"github.com/uptrace/bun"
)

// Session wraps a single exclusive database transaction. The lifecycle
// is strict: acquire via Store.Lock, perform mutations, Commit (or
// Rollback), then always defer Release so the store-wide lock and any
// open transaction are freed on every exit path, including a panic or a
// signal handled by the caller.
type Session struct {
	store *Store
	tx    bun.Tx
	done  bool
}

// Commit persists every mutation performed on the session and releases
// the store-wide lock. Calling Commit more than once is a no-op.
func (s *Session) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	defer s.store.locked.Store(false)
	return s.tx.Commit()
}

// Rollback discards every mutation performed on the session and
// releases the store-wide lock. Calling Rollback more than once is a
// no-op.
func (s *Session) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	defer s.store.locked.Store(false)
	return s.tx.Rollback()
}

// Release is the guaranteed safety net: if the session was neither
// committed nor rolled back, it rolls back and frees the lock. Callers
// should always `defer session.Release()` immediately after a
// successful Lock.
func (s *Session) Release() {
	if s.done {
		return
	}
	_ = s.Rollback()
}
