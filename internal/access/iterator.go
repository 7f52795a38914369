package access

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/sysrepo-engine/internal/datastore"
)

// ErrUnknownIterator is returned by Next/Kill for a handle the registry
// never issued or has already forgotten.
var ErrUnknownIterator = errors.New("access: unknown iterator")

// ErrIteratorDead is returned by Next once an iterator has been killed or
// has run past its last item. Per §9 Open Question (b), a dead iterator is
// not resumable: the client must reissue get_items_iter to start over.
var ErrIteratorDead = errors.New("access: iterator is dead, reissue get_items_iter")

type iteratorState struct {
	session uint32
	items   []datastore.Item
	pos     int
	dead    bool
}

// IteratorRegistry hands out opaque handles for get_items_iter and walks
// them one item at a time on get_item_next, the cursor state the Request
// Processor needs but internal/datastore's Tree has no reason to carry
// itself (a tree has no notion of "the iteration a particular client is
// midway through").
type IteratorRegistry struct {
	mu    sync.Mutex
	byTok map[string]*iteratorState
	bySes map[uint32]map[string]struct{}
}

// NewIteratorRegistry creates an empty registry.
func NewIteratorRegistry() *IteratorRegistry {
	return &IteratorRegistry{
		byTok: make(map[string]*iteratorState),
		bySes: make(map[uint32]map[string]struct{}),
	}
}

// Open snapshots items under a new opaque handle bound to session, returning
// the token the client addresses it by in subsequent get_item_next calls.
func (r *IteratorRegistry) Open(session uint32, items []datastore.Item) (string, error) {
	tok, err := newToken()
	if err != nil {
		return "", fmt.Errorf("access: generate iterator token: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTok[tok] = &iteratorState{session: session, items: items}
	set, ok := r.bySes[session]
	if !ok {
		set = make(map[string]struct{})
		r.bySes[session] = set
	}
	set[tok] = struct{}{}
	return tok, nil
}

// Next advances the iterator named by token, returning its next item and
// done=true once nothing remains (not an error, per §9 Open Question (b)).
// Exhaustion marks the iterator dead; a further Next call returns
// ErrIteratorDead.
func (r *IteratorRegistry) Next(token string) (item datastore.Item, done bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.byTok[token]
	if !ok {
		return datastore.Item{}, false, ErrUnknownIterator
	}
	if st.dead {
		return datastore.Item{}, false, ErrIteratorDead
	}
	if st.pos >= len(st.items) {
		st.dead = true
		return datastore.Item{}, true, nil
	}
	item = st.items[st.pos]
	st.pos++
	return item, false, nil
}

// Kill marks an iterator dead without waiting for it to exhaust, called on
// an explicit client teardown.
func (r *IteratorRegistry) Kill(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byTok[token]
	if !ok {
		return ErrUnknownIterator
	}
	st.dead = true
	delete(r.byTok, token)
	if set, ok := r.bySes[st.session]; ok {
		delete(set, token)
	}
	return nil
}

// CloseSession forgets every iterator a session opened, called from
// SessionEnd so a dropped connection doesn't leak iterator state forever.
func (r *IteratorRegistry) CloseSession(session uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tok := range r.bySes[session] {
		delete(r.byTok, tok)
	}
	delete(r.bySes, session)
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
