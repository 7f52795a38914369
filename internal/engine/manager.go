package engine

import (
	"sort"

	"github.com/cuemby/sysrepo-engine/internal/datastore"
	"github.com/cuemby/sysrepo-engine/internal/notify"
	"github.com/cuemby/sysrepo-engine/internal/persist"
	"github.com/cuemby/sysrepo-engine/internal/schema"
	"github.com/cuemby/sysrepo-engine/internal/telemetry"
)

// GetDataInfo returns the session's working copy of module within datastore,
// forking it from the cached (or freshly loaded) base tree on first touch
// (§4.3 get_data_info).
func (h *Handle) GetDataInfo(session uint32, module, ds string) (*datastore.Overlay, error) {
	overlays := h.sessionOverlays(session)
	if ov, ok := overlays[module]; ok {
		return ov, nil
	}

	base, modTime, err := h.loadBase(module, ds)
	if err != nil {
		return nil, err
	}

	ov := datastore.NewOverlay(module, base, modTime)
	overlays[module] = ov
	return ov, nil
}

// GetDataTree returns the session's current tree for module, failing with
// NOT_FOUND if that tree holds no data items (committed data and the
// session's own uncommitted edits both count).
func (h *Handle) GetDataTree(session uint32, module, ds string) (*datastore.Tree, error) {
	ov, err := h.GetDataInfo(session, module, ds)
	if err != nil {
		return nil, err
	}
	if len(ov.Tree.Items()) == 0 {
		return nil, newErr(NotFound, "/"+module, "no data committed to %s datastore for module %q", ds, module)
	}
	return ov.Tree, nil
}

// SessionRefresh re-forks a session's overlay from the current on-disk base
// if it has changed since the overlay was created, replaying the session's
// own edits onto it. A replay conflict surfaces as INTERNAL with the failing
// path attached, leaving the overlay as it was before the refresh attempt
// (scenario 4).
func (h *Handle) SessionRefresh(session uint32, module, ds string) error {
	overlays := h.sessionOverlays(session)
	ov, ok := overlays[module]
	if !ok {
		return nil
	}

	freshBase, modTime, err := h.loadBase(module, ds)
	if err != nil {
		return err
	}
	if modTime.Equal(ov.ForkedAt) {
		return nil
	}

	replayed, err := ov.Replay(freshBase)
	if err != nil {
		return newErr(Internal, pathOf(err), "session_refresh: replay conflict: %v", err)
	}

	ov.Tree = replayed
	ov.ForkedAt = modTime
	return nil
}

// SessionRefreshAll refreshes every module the session currently has an
// overlay open on against datastore ds. §4.6's session_refresh operation is
// session-scoped, not per-module, so the Request Processor calls this single
// entry point rather than enumerating overlays itself (the session ->
// module -> overlay map is internal/engine's own state). It returns every
// per-module conflict encountered rather than stopping at the first one, so
// a client can see the full blast radius of a refresh.
func (h *Handle) SessionRefreshAll(session uint32, ds string) []error {
	modules := make([]string, 0, len(h.sessionOverlays(session)))
	for module := range h.sessionOverlays(session) {
		modules = append(modules, module)
	}
	sort.Strings(modules)

	var errs []error
	for _, module := range modules {
		if err := h.SessionRefresh(session, module, ds); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// InstallModule extends the schema context with a module and loads any
// persisted module-change subscriptions already on file for it, the
// runtime half of module_install (§4.6) — the module's shape itself comes
// from internal/builtin's compiled-in registry rather than a parsed YANG
// file, per SPEC_FULL.md §3's schema-library stand-in.
func (h *Handle) InstallModule(m *schema.Module) error {
	if err := h.schema.Install(m); err != nil {
		return newErr(Internal, "/"+m.Name, "install module: %v", err)
	}
	if err := h.subs.LoadModule(m.Name); err != nil {
		return newErr(IO, "/"+m.Name, "load persisted subscriptions for %q: %v", m.Name, err)
	}
	h.notify.Publish(notify.EventModuleInstall, m.Name, map[string]any{"revision": m.Revision})
	return nil
}

// SetFeature enables or disables a feature on an installed module (§4.6
// feature_enable), persisting the choice so it survives a restart.
func (h *Handle) SetFeature(module, feature string, enabled bool) error {
	if _, ok := h.schema.Module(module); !ok {
		return newErr(UnknownModel, "/"+module, "module %q is not installed", module)
	}
	if err := h.persist.SetFeatureEnabled(module, feature, enabled); err != nil {
		return newErr(IO, "/"+module, "set feature %q: %v", feature, err)
	}
	h.notify.Publish(notify.EventFeatureEnable, module, map[string]any{"feature": feature, "enabled": enabled})
	return nil
}

// ListSchemas returns the latest installed revision of every module (§4.3
// list_schemas).
func (h *Handle) ListSchemas() []*schema.Module {
	return h.schema.ListModules()
}

// GetSchema renders a module's YANG text (§4.3 get_schema). An empty
// revision means "latest".
func (h *Handle) GetSchema(module, revision string) (string, error) {
	var mod *schema.Module
	var ok bool
	if revision == "" {
		mod, ok = h.schema.Module(module)
	} else {
		mod, ok = h.schema.ModuleRevision(module, revision)
	}
	if !ok {
		return "", newErr(UnknownModel, "/"+module, "module %q revision %q not installed", module, revision)
	}
	return schema.ToYANG(mod), nil
}

// SetItem applies a set_item edit to the session's overlay of module,
// logging it to the operation log on success (§4.3 set_item).
func (h *Handle) SetItem(session uint32, module, ds, path string, value any, flags datastore.Flag) error {
	ov, err := h.GetDataInfo(session, module, ds)
	if err != nil {
		return err
	}
	if err := ov.Apply(datastore.Entry{Kind: datastore.OpSet, Path: path, Value: value, Flags: flags}); err != nil {
		return newErr(BadElement, pathOf(err), "set_item: %v", err)
	}
	return nil
}

// DeleteItem applies a delete_item edit (§4.3 delete_item).
func (h *Handle) DeleteItem(session uint32, module, ds, path string, flags datastore.Flag) error {
	ov, err := h.GetDataInfo(session, module, ds)
	if err != nil {
		return err
	}
	if err := ov.Apply(datastore.Entry{Kind: datastore.OpDelete, Path: path, Flags: flags}); err != nil {
		return newErr(BadElement, pathOf(err), "delete_item: %v", err)
	}
	return nil
}

// MoveList applies a move_list edit (§4.3 move_list).
func (h *Handle) MoveList(session uint32, module, ds, path string, dir datastore.Direction) error {
	ov, err := h.GetDataInfo(session, module, ds)
	if err != nil {
		return err
	}

	kind := map[datastore.Direction]datastore.EntryKind{
		datastore.MoveUp:    datastore.OpMoveUp,
		datastore.MoveDown:  datastore.OpMoveDown,
		datastore.MoveFirst: datastore.OpMoveFirst,
		datastore.MoveLast:  datastore.OpMoveLast,
	}[dir]

	if err := ov.Apply(datastore.Entry{Kind: kind, Path: path}); err != nil {
		return newErr(InvalArg, pathOf(err), "move_list: %v", err)
	}
	return nil
}

// Validate runs schema validation over every modified overlay in the
// session (§4.3 validate).
func (h *Handle) Validate(session uint32) []error {
	overlays := h.sessionOverlays(session)
	var errs []error
	for _, ov := range overlays {
		if !ov.Modified {
			continue
		}
		errs = append(errs, ov.Tree.Validate()...)
	}
	return errs
}

// DiscardChanges drops every overlay and operation log for the session
// (§4.3 discard_changes).
func (h *Handle) DiscardChanges(session uint32) {
	h.mu.Lock()
	delete(h.overlays, session)
	h.mu.Unlock()
}

// SessionEnd releases every lock and overlay the session holds, the cleanup
// run when a session is torn down (§3 "destroyed on session end").
func (h *Handle) SessionEnd(session uint32) {
	h.DiscardChanges(session)
	h.locks.releaseSession(session)
}

// LockModule grants the session an exclusive lock on module (§4.3
// lock_module).
func (h *Handle) LockModule(session uint32, module string) error {
	if _, ok := h.schema.Module(module); !ok {
		return newErr(UnknownModel, "/"+module, "module %q is not installed", module)
	}
	if err := h.locks.lockModule(session, module); err != nil {
		return newErr(Locked, "/"+module, "lock_module: %v", err)
	}
	return nil
}

// UnlockModule releases the session's lock on module (§4.3 unlock_module).
func (h *Handle) UnlockModule(session uint32, module string) error {
	if err := h.locks.unlockModule(session, module); err != nil {
		return newErr(Internal, "/"+module, "unlock_module: %v", err)
	}
	return nil
}

// LockDatastore grants the session a lock spanning every installed module,
// failing unless all of them are currently free (§4.3 lock_datastore).
func (h *Handle) LockDatastore(session uint32) error {
	mods := h.schema.ListModules()
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.Name
	}
	if err := h.locks.lockDatastore(session, names); err != nil {
		return newErr(Locked, "", "lock_datastore: %v", err)
	}
	return nil
}

// UnlockDatastore releases the session's whole-datastore lock (§4.3
// unlock_datastore).
func (h *Handle) UnlockDatastore(session uint32) error {
	if err := h.locks.unlockDatastore(session); err != nil {
		return newErr(Internal, "", "unlock_datastore: %v", err)
	}
	return nil
}

// Commit runs the two-phase commit protocol (§4.5) over every module the
// session has modified, targeting datastore ds. It returns every validation
// error hit during local or re-validation, or a single COMMIT_FAILED /
// LOCKED error if the locking phase itself fails. On success every modified
// overlay in the session is discarded and a module_change notification is
// published per committed module.
func (h *Handle) Commit(session uint32, ds string) []error {
	log := telemetry.WithComponent("engine")

	// Step 1: local validate.
	if errs := h.Validate(session); len(errs) > 0 {
		return errs
	}

	overlays := h.sessionOverlays(session)
	modules := modifiedModules(overlays)
	if len(modules) == 0 {
		return nil
	}

	// Step 2: acquire the process-wide commit guard.
	h.commitGuard.Lock()
	defer h.commitGuard.Unlock()

	// Step 3: check explicit user-visible locks, then acquire per-module
	// file locks, all-or-nothing.
	fileLocks := make(map[string]*persist.ModuleLock)
	releaseAll := func() {
		for _, l := range fileLocks {
			l.Unlock()
		}
	}

	for _, module := range modules {
		if holder, held := h.locks.moduleLockHolder(module); held && holder != session {
			releaseAll()
			return []error{newErr(Locked, "/"+module, "module is locked by another session")}
		}
		lock, err := h.persist.LockModule(module)
		if err != nil {
			releaseAll()
			return []error{newErr(CommitFailed, "/"+module, "acquire module lock: %v", err)}
		}
		fileLocks[module] = lock
	}
	defer releaseAll()

	// Step 4 + 5: refresh each module's base from disk under lock and
	// replay the session's log onto it.
	committed := make(map[string]*datastore.Tree, len(modules))
	for _, module := range modules {
		ov := overlays[module]

		mod, ok := h.schema.Module(module)
		if !ok {
			return []error{newErr(UnknownModel, "/"+module, "module %q is not installed", module)}
		}
		data, _, err := h.persist.ReadDatastore(module, ds)
		if err != nil {
			return []error{newErr(IO, "/"+module, "refresh base: %v", err)}
		}
		freshBase := datastore.NewTree(mod)
		if len(data) > 0 {
			if err := decodeTree(freshBase, data); err != nil {
				return []error{newErr(IO, "/"+module, "decode base: %v", err)}
			}
		}

		work, err := ov.Replay(freshBase)
		if err != nil {
			return []error{newErr(Internal, pathOf(err), "commit: replay conflict: %v", err)}
		}
		committed[module] = work
	}

	// Step 6: re-validate the replayed trees.
	var revalidateErrs []error
	for _, tree := range committed {
		revalidateErrs = append(revalidateErrs, tree.Validate()...)
	}
	if len(revalidateErrs) > 0 {
		return revalidateErrs
	}

	// Step 7: write each affected file.
	for module, tree := range committed {
		data, err := encodeTree(tree)
		if err != nil {
			return []error{newErr(Internal, "/"+module, "encode commit tree: %v", err)}
		}
		if err := h.persist.WriteDatastore(fileLocks[module], ds, data); err != nil {
			return []error{newErr(IO, "/"+module, "write datastore: %v", err)}
		}
	}

	// Step 8: publish. Locks release via the deferred releaseAll above.
	// The cache entry is dropped rather than refreshed in place: the next
	// loadBase call re-reads the file we just wrote and re-learns its
	// true mtime, instead of this code guessing it.
	for module := range committed {
		h.mu.Lock()
		delete(h.bases, baseKey{module: module, datastore: ds})
		h.mu.Unlock()

		h.notify.Publish(notify.EventModuleChange, module, map[string]any{"datastore": ds})
		log.Info().Str("module", module).Str("datastore", ds).Uint32("session_id", session).Msg("committed")
	}

	h.mu.Lock()
	for _, module := range modules {
		delete(h.overlays[session], module)
	}
	h.mu.Unlock()

	return nil
}

func modifiedModules(overlays map[string]*datastore.Overlay) []string {
	var out []string
	for module, ov := range overlays {
		if ov.Modified {
			out = append(out, module)
		}
	}
	sort.Strings(out)
	return out
}

func pathOf(err error) string {
	if se, ok := err.(*schema.Error); ok {
		return se.Path
	}
	return ""
}
