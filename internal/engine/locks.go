package engine

import (
	"errors"
	"sync"
)

// Sentinel errors from the lock table itself; callers translate these into
// *Error{Code: Locked} or {Code: Internal} with the request's path attached.
var (
	ErrLockHeld      = errors.New("engine: lock held by another session")
	ErrNotLockHolder = errors.New("engine: session does not hold this lock")
)

// lockTable implements §4.3's module/datastore locking rules: a session can
// hold an exclusive lock on one module, or on the whole datastore (which
// requires every module to be currently unlocked and blocks any other
// session from taking a module lock until released). Session id 0 is never
// issued by the session manager and is used here as "unheld".
type lockTable struct {
	mu            sync.Mutex
	moduleHolder  map[string]uint32
	datastoreHolder uint32
}

func newLockTable() *lockTable {
	return &lockTable{moduleHolder: make(map[string]uint32)}
}

// lockModule grants session exclusive access to module. It fails with
// ErrLockHeld if another session holds the module lock or the
// whole-datastore lock; a session holding the whole-datastore lock may
// still take module locks.
func (lt *lockTable) lockModule(session uint32, module string) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if lt.datastoreHolder != 0 && lt.datastoreHolder != session {
		return ErrLockHeld
	}
	if holder, ok := lt.moduleHolder[module]; ok && holder != session {
		return ErrLockHeld
	}
	lt.moduleHolder[module] = session
	return nil
}

func (lt *lockTable) unlockModule(session uint32, module string) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	holder, ok := lt.moduleHolder[module]
	if !ok || holder != session {
		return ErrNotLockHolder
	}
	delete(lt.moduleHolder, module)
	return nil
}

// lockDatastore grants session an exclusive lock spanning every module
// named in modules. It fails if any of them is already locked by another
// session, or if the datastore lock is already held elsewhere.
func (lt *lockTable) lockDatastore(session uint32, modules []string) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if lt.datastoreHolder != 0 && lt.datastoreHolder != session {
		return ErrLockHeld
	}
	for _, m := range modules {
		if holder, ok := lt.moduleHolder[m]; ok && holder != session {
			return ErrLockHeld
		}
	}
	lt.datastoreHolder = session
	return nil
}

func (lt *lockTable) unlockDatastore(session uint32) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if lt.datastoreHolder != session {
		return ErrNotLockHolder
	}
	lt.datastoreHolder = 0
	return nil
}

// releaseSession drops every lock held by session, called from SessionEnd.
func (lt *lockTable) releaseSession(session uint32) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	for m, holder := range lt.moduleHolder {
		if holder == session {
			delete(lt.moduleHolder, m)
		}
	}
	if lt.datastoreHolder == session {
		lt.datastoreHolder = 0
	}
}

// moduleLockHolder reports which session (if any) holds module's lock, for
// the commit protocol's step-3 conflict check.
func (lt *lockTable) moduleLockHolder(module string) (uint32, bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	holder, ok := lt.moduleHolder[module]
	return holder, ok
}

func (lt *lockTable) moduleLockCount() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.moduleHolder)
}

func (lt *lockTable) datastoreLockCount() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.datastoreHolder != 0 {
		return 1
	}
	return 0
}
