// Package sslock implements the storage server's sentence lock table: a
// process-wide list of (filename, sentence#) advisory locks, each held by
// exactly one connection.
package sslock

import (
	"sync"

	"github.com/marmos91/dfs/internal/dferrors"
)

type key struct {
	filename string
	sentence int
}

// Table is the single process-wide sentence lock table. Operations are
// O(#locks); at the sizes this protocol deals with, that's negligible.
type Table struct {
	mu    sync.Mutex
	locks map[key]string // -> owning connection id
}

// New creates an empty lock table.
func New() *Table {
	return &Table{locks: make(map[key]string)}
}

// Acquire takes the lock on (filename, sentence) for connID. It refuses
// with a conflict error if the lock is already held by a different
// connection. Re-acquiring a lock already held by connID succeeds.
func (t *Table) Acquire(filename string, sentence int, connID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{filename, sentence}
	if owner, held := t.locks[k]; held && owner != connID {
		return dferrors.New(dferrors.ErrConflict, "sentence is locked by another connection")
	}
	t.locks[k] = connID
	return nil
}

// Release drops the lock on (filename, sentence) if connID holds it.
// Releasing a lock not held by connID (including one that doesn't exist)
// is a no-op, matching the idempotent-release invariant.
func (t *Table) Release(filename string, sentence int, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{filename, sentence}
	if owner, held := t.locks[k]; held && owner == connID {
		delete(t.locks, k)
	}
}

// ReleaseAll drops every lock held by connID, used when its connection
// closes.
func (t *Table) ReleaseAll(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k, owner := range t.locks {
		if owner == connID {
			delete(t.locks, k)
		}
	}
}

// Held is a (filename, sentence) pair currently locked by some connection.
type Held struct {
	Filename string
	Sentence int
}

// HeldBy returns every (filename, sentence) pair connID currently holds,
// used to clean up swap files before releasing the locks that guard them.
func (t *Table) HeldBy(connID string) []Held {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Held
	for k, owner := range t.locks {
		if owner == connID {
			out = append(out, Held{Filename: k.filename, Sentence: k.sentence})
		}
	}
	return out
}

// AnyLockHeld reports whether any sentence of filename is currently
// locked, used to gate undo/checkpoint/revert.
func (t *Table) AnyLockHeld(filename string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k := range t.locks {
		if k.filename == filename {
			return true
		}
	}
	return false
}
