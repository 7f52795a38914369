package notify

import "sync"

// Store persists the durable module-change subscriptions for a module
// alongside its enabled-feature set. Implemented by internal/persist; kept
// as a small local interface here (rather than importing internal/persist
// directly) so notify can be unit tested without a filesystem.
type Store interface {
	SaveSubscriptions(module string, subs []Subscription) error
	LoadSubscriptions(module string) ([]Subscription, error)
}

// Index maintains the in-memory list of transient subscriptions and the
// persistent index of module-change subscriptions, keyed by (module, event,
// destination_address, destination_id) per spec §4.7, plus a secondary
// destination -> modules map for O(log N) teardown on disconnect.
type Index struct {
	mu    sync.RWMutex
	subs  map[subKey]Subscription
	byDst map[destKey]map[subKey]struct{}
	store Store
}

// NewIndex creates an empty subscription index. store may be nil, in which
// case module-change subscriptions are kept in memory only (useful in
// tests); a running daemon always supplies one backed by internal/persist.
func NewIndex(store Store) *Index {
	return &Index{
		subs:  make(map[subKey]Subscription),
		byDst: make(map[destKey]map[subKey]struct{}),
		store: store,
	}
}

// LoadModule restores a module's persisted module-change subscriptions,
// called once when the module is first installed or referenced after a
// restart.
func (idx *Index) LoadModule(module string) error {
	if idx.store == nil {
		return nil
	}
	subs, err := idx.store.LoadSubscriptions(module)
	if err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, s := range subs {
		idx.insertLocked(s)
	}
	return nil
}

// Subscribe registers a subscription. Module-change subscriptions are
// additionally persisted to the module's file so they survive a restart.
func (idx *Index) Subscribe(s Subscription) error {
	idx.mu.Lock()
	idx.insertLocked(s)
	var toPersist []Subscription
	if s.Event.durable() {
		toPersist = idx.moduleSubsLocked(s.ModuleName)
	}
	idx.mu.Unlock()

	if s.Event.durable() && idx.store != nil {
		return idx.store.SaveSubscriptions(s.ModuleName, toPersist)
	}
	return nil
}

func (idx *Index) insertLocked(s Subscription) {
	k := s.key()
	idx.subs[k] = s
	d := destKey{addr: s.DestinationAddress, dest: s.DestinationID}
	set, ok := idx.byDst[d]
	if !ok {
		set = make(map[subKey]struct{})
		idx.byDst[d] = set
	}
	set[k] = struct{}{}
}

func (idx *Index) moduleSubsLocked(module string) []Subscription {
	var out []Subscription
	for k, s := range idx.subs {
		if k.module == module && s.Event.durable() {
			out = append(out, s)
		}
	}
	return out
}

// Unsubscribe removes a single subscription.
func (idx *Index) Unsubscribe(s Subscription) error {
	idx.mu.Lock()
	k := s.key()
	delete(idx.subs, k)
	if set, ok := idx.byDst[destKey{addr: s.DestinationAddress, dest: s.DestinationID}]; ok {
		delete(set, k)
		if len(set) == 0 {
			delete(idx.byDst, destKey{addr: s.DestinationAddress, dest: s.DestinationID})
		}
	}
	var toPersist []Subscription
	if s.Event.durable() {
		toPersist = idx.moduleSubsLocked(s.ModuleName)
	}
	idx.mu.Unlock()

	if s.Event.durable() && idx.store != nil {
		return idx.store.SaveSubscriptions(s.ModuleName, toPersist)
	}
	return nil
}

// PurgeDestination removes every subscription (transient and durable)
// belonging to a destination, called when its connection drops.
func (idx *Index) PurgeDestination(addr, dest string) error {
	idx.mu.Lock()
	d := destKey{addr: addr, dest: dest}
	set, ok := idx.byDst[d]
	if !ok {
		idx.mu.Unlock()
		return nil
	}
	touchedModules := make(map[string]struct{})
	for k := range set {
		if s, ok := idx.subs[k]; ok && s.Event.durable() {
			touchedModules[k.module] = struct{}{}
		}
		delete(idx.subs, k)
	}
	delete(idx.byDst, d)

	persist := make(map[string][]Subscription, len(touchedModules))
	for m := range touchedModules {
		persist[m] = idx.moduleSubsLocked(m)
	}
	idx.mu.Unlock()

	if idx.store == nil {
		return nil
	}
	for module, subs := range persist {
		if err := idx.store.SaveSubscriptions(module, subs); err != nil {
			return err
		}
	}
	return nil
}

// PurgeAddress removes every subscription registered under a destination
// address, regardless of destination id, the form of teardown the
// Connection Manager needs on a dropped connection: a connection may have
// opened several destination ids (one per *_subscribe call) and none of
// them are individually known to the transport layer once the socket is
// gone.
func (idx *Index) PurgeAddress(addr string) error {
	idx.mu.Lock()
	touchedModules := make(map[string]struct{})
	for dk, set := range idx.byDst {
		if dk.addr != addr {
			continue
		}
		for k := range set {
			if s, ok := idx.subs[k]; ok && s.Event.durable() {
				touchedModules[k.module] = struct{}{}
			}
			delete(idx.subs, k)
		}
		delete(idx.byDst, dk)
	}

	persist := make(map[string][]Subscription, len(touchedModules))
	for m := range touchedModules {
		persist[m] = idx.moduleSubsLocked(m)
	}
	idx.mu.Unlock()

	if idx.store == nil {
		return nil
	}
	for module, subs := range persist {
		if err := idx.store.SaveSubscriptions(module, subs); err != nil {
			return err
		}
	}
	return nil
}

// Match returns every subscription registered for the given event and
// module (module is ignored for non-module-scoped events).
func (idx *Index) Match(event EventKind, module string) []Subscription {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []Subscription
	for k, s := range idx.subs {
		if k.event != event {
			continue
		}
		if s.Event.durable() && k.module != module {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Count returns the number of subscriptions split by durability, for
// internal/metrics' SubscriptionsActive gauge.
func (idx *Index) Count() (transient, durable int) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for k := range idx.subs {
		if k.event.durable() {
			durable++
		} else {
			transient++
		}
	}
	return transient, durable
}
