// Package engine implements the Data Manager (§4.3): schema-correct state
// ownership, per-session overlays, module/datastore locking, and the
// two-phase commit protocol (§4.5).
package engine

import (
	"sync"
	"time"

	"github.com/cuemby/sysrepo-engine/internal/datastore"
	"github.com/cuemby/sysrepo-engine/internal/notify"
	"github.com/cuemby/sysrepo-engine/internal/persist"
	"github.com/cuemby/sysrepo-engine/internal/schema"
)

// Handle is the engine's global state, created once at startup and
// threaded through every call — "no free-standing singletons" (§9).
type Handle struct {
	schema  *schema.Context
	persist *persist.Store
	notify  *notify.Broker
	subs    *notify.Index

	// commitGuard serialises commit sequences process-wide (§4.5 step 2,
	// §5 EXPANSION: a single sync.Mutex, matching the teacher's
	// single-mutex-around-FSM-state shape).
	commitGuard sync.Mutex

	mu       sync.RWMutex
	bases    map[baseKey]*baseEntry            // (module, datastore) -> cached tree + mtime
	overlays map[uint32]map[string]*datastore.Overlay // session -> module -> overlay

	locks *lockTable
}

type baseKey struct {
	module    string
	datastore string
}

type baseEntry struct {
	tree    *datastore.Tree
	modTime time.Time
}

// New creates an engine handle bound to a schema context, persistence
// store and notification broker/index.
func New(sc *schema.Context, ps *persist.Store, broker *notify.Broker, subs *notify.Index) *Handle {
	return &Handle{
		schema:   sc,
		persist:  ps,
		notify:   broker,
		subs:     subs,
		bases:    make(map[baseKey]*baseEntry),
		overlays: make(map[uint32]map[string]*datastore.Overlay),
		locks:    newLockTable(),
	}
}

// loadBase returns the current in-memory base tree for (module, datastore).
// It reads the on-disk file on every call and decodes it into a new tree
// only if nothing is cached yet or the file's modification time differs
// from the cached copy's.
func (h *Handle) loadBase(module, ds string) (*datastore.Tree, time.Time, error) {
	mod, ok := h.schema.Module(module)
	if !ok {
		return nil, time.Time{}, newErr(UnknownModel, "/"+module, "module %q is not installed", module)
	}

	key := baseKey{module: module, datastore: ds}

	h.mu.RLock()
	entry, cached := h.bases[key]
	h.mu.RUnlock()

	data, modTime, err := h.persist.ReadDatastore(module, ds)
	if err != nil {
		return nil, time.Time{}, newErr(IO, "/"+module, "read datastore: %v", err)
	}

	if cached && entry.modTime.Equal(modTime) {
		return entry.tree, entry.modTime, nil
	}

	tree := datastore.NewTree(mod)
	if len(data) > 0 {
		if err := decodeTree(tree, data); err != nil {
			return nil, time.Time{}, newErr(IO, "/"+module, "decode datastore: %v", err)
		}
	}

	h.mu.Lock()
	h.bases[key] = &baseEntry{tree: tree, modTime: modTime}
	h.mu.Unlock()

	return tree, modTime, nil
}

func (h *Handle) setBase(module, ds string, tree *datastore.Tree, modTime time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bases[baseKey{module: module, datastore: ds}] = &baseEntry{tree: tree, modTime: modTime}
}

func (h *Handle) sessionOverlays(sessionID uint32) map[string]*datastore.Overlay {
	h.mu.Lock()
	defer h.mu.Unlock()
	ov, ok := h.overlays[sessionID]
	if !ok {
		ov = make(map[string]*datastore.Overlay)
		h.overlays[sessionID] = ov
	}
	return ov
}

// ModuleLocks reports the number of per-module locks currently held, for
// internal/metrics' StatsSource.
func (h *Handle) ModuleLocks() int {
	return h.locks.moduleLockCount()
}

// DatastoreLocks reports 1 if the whole-datastore lock is held, else 0.
func (h *Handle) DatastoreLocks() int {
	return h.locks.datastoreLockCount()
}
