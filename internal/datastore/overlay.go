package datastore

import "time"

// EntryKind is the operation an Entry records.
type EntryKind int

const (
	OpSet EntryKind = iota
	OpDelete
	OpMoveUp
	OpMoveDown
	OpMoveFirst
	OpMoveLast
)

// Entry is one logged edit within a session's operation log (§3, §4.4).
type Entry struct {
	Kind  EntryKind
	Path  string
	Value any
	Flags Flag
}

// Overlay is a session's per-module working copy: the forked tree, the
// timestamp it was forked from, whether it has unpersisted edits, and the
// operation log that produced those edits (§3 "per-session overlay").
type Overlay struct {
	Module   string
	Tree     *Tree
	ForkedAt time.Time
	Modified bool
	Log      []Entry
}

// NewOverlay forks base into a new overlay, recording the base's
// persistence timestamp for later staleness checks (§4.3 get_data_info).
func NewOverlay(module string, base *Tree, forkedAt time.Time) *Overlay {
	return &Overlay{Module: module, Tree: base.Clone(), ForkedAt: forkedAt}
}

// Apply performs one edit against the overlay's tree and appends it to the
// operation log only if it succeeds, marking the overlay modified.
func (o *Overlay) Apply(entry Entry) error {
	var err error
	switch entry.Kind {
	case OpSet:
		err = o.Tree.Set(entry.Path, entry.Value, entry.Flags)
	case OpDelete:
		err = o.Tree.Delete(entry.Path, entry.Flags)
	case OpMoveUp:
		err = o.Tree.MoveList(entry.Path, MoveUp)
	case OpMoveDown:
		err = o.Tree.MoveList(entry.Path, MoveDown)
	case OpMoveFirst:
		err = o.Tree.MoveList(entry.Path, MoveFirst)
	case OpMoveLast:
		err = o.Tree.MoveList(entry.Path, MoveLast)
	}
	if err != nil {
		return err
	}
	o.Log = append(o.Log, entry)
	o.Modified = true
	return nil
}

// Discard clears the overlay's log and modified flag without dropping the
// forked tree (§4.3 discard_changes semantics at the overlay level; the
// Data Manager additionally removes the Overlay itself from its session
// table).
func (o *Overlay) Discard() {
	o.Log = nil
	o.Modified = false
}

// Replay re-applies the overlay's operation log, in original insertion
// order, onto a freshly refreshed base tree (§4.4, §4.5 step 5). It
// returns the resulting tree, or the first error hit while replaying — the
// signal the commit protocol and session_refresh both treat as a conflict
// (scenario 4: "A's session_refresh() returns INTERNAL with a path-tagged
// error").
func (o *Overlay) Replay(newBase *Tree) (*Tree, error) {
	work := newBase.Clone()
	for _, entry := range o.Log {
		var err error
		switch entry.Kind {
		case OpSet:
			err = work.Set(entry.Path, entry.Value, entry.Flags)
		case OpDelete:
			err = work.Delete(entry.Path, entry.Flags)
		case OpMoveUp:
			err = work.MoveList(entry.Path, MoveUp)
		case OpMoveDown:
			err = work.MoveList(entry.Path, MoveDown)
		case OpMoveFirst:
			err = work.MoveList(entry.Path, MoveFirst)
		case OpMoveLast:
			err = work.MoveList(entry.Path, MoveLast)
		}
		if err != nil {
			return nil, err
		}
	}
	return work, nil
}
