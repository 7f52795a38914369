package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/cuemby/sysrepo-engine/internal/datastore"
	"github.com/cuemby/sysrepo-engine/internal/notify"
	"github.com/cuemby/sysrepo-engine/internal/persist"
	"github.com/cuemby/sysrepo-engine/internal/schema"
)

// recordingDispatcher implements notify.Dispatcher, collecting every
// notification handed to it instead of delivering it over a connection.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (d *recordingDispatcher) Deliver(_ context.Context, n notify.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return nil
}

func buildTestModule() *schema.Module {
	b := schema.NewBuilder("test-module", "urn:test-module", "tm").Revision("2024-01-01")
	b.Container("location", false, false)
	b.Leaf("name", schema.TypeString, false)
	b.Leaf("latitude", schema.TypeString, true)
	b.Leaf("longitude", schema.TypeString, true)
	b.End()
	b.List("list", []string{"key"}, schema.OrderedBySystem)
	b.Leaf("key", schema.TypeString, true)
	b.Leaf("leaf", schema.TypeString, false)
	b.End()
	b.List("user", []string{"name"}, schema.OrderedByUser)
	b.Leaf("name", schema.TypeString, true)
	b.End()
	return b.Build()
}

func newTestHandle(t *testing.T) (*Handle, *recordingDispatcher) {
	t.Helper()

	sc := schema.NewContext()
	if err := sc.Install(buildTestModule()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	ps := persist.NewStore(t.TempDir())
	idx := notify.NewIndex(ps)
	disp := &recordingDispatcher{}
	broker := notify.NewBroker(idx, disp)
	broker.Start()
	t.Cleanup(broker.Stop)

	return New(sc, ps, broker, idx), disp
}

func TestCommitBasicSetGetRoundTrip(t *testing.T) {
	h, _ := newTestHandle(t)

	const session = uint32(1)
	path := "/test-module:list[key='abc']/leaf"
	if err := h.SetItem(session, "test-module", "running", path, "Leaf value", datastore.FlagNone); err != nil {
		t.Fatalf("SetItem() error = %v", err)
	}

	if errs := h.Commit(session, "running"); len(errs) != 0 {
		t.Fatalf("Commit() errors = %v, want none", errs)
	}

	const reader = uint32(2)
	got, err := h.GetDataInfo(reader, "test-module", "running")
	if err != nil {
		t.Fatalf("GetDataInfo() error = %v", err)
	}
	val, err := got.Tree.Get(path)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != "Leaf value" {
		t.Errorf("Get() = %v, want %q", val, "Leaf value")
	}
}

func TestCommitMandatoryLeafFailure(t *testing.T) {
	h, _ := newTestHandle(t)

	const session = uint32(1)
	if err := h.SetItem(session, "test-module", "running", "/test-module:location/name", "Banska Bystrica", datastore.FlagNone); err != nil {
		t.Fatalf("SetItem() error = %v", err)
	}

	errs := h.Validate(session)
	if len(errs) != 2 {
		t.Fatalf("Validate() = %d errors, want 2 (latitude, longitude missing); got %v", len(errs), errs)
	}

	commitErrs := h.Commit(session, "running")
	if len(commitErrs) == 0 {
		t.Fatal("Commit() should fail local validation before touching disk")
	}

	if err := h.SetItem(session, "test-module", "running", "/test-module:location/latitude", "48.7", datastore.FlagNone); err != nil {
		t.Fatalf("SetItem(latitude) error = %v", err)
	}
	if err := h.SetItem(session, "test-module", "running", "/test-module:location/longitude", "19.1", datastore.FlagNone); err != nil {
		t.Fatalf("SetItem(longitude) error = %v", err)
	}
	if errs := h.Commit(session, "running"); len(errs) != 0 {
		t.Fatalf("Commit() after filling mandatory leaves errors = %v, want none", errs)
	}
}

func TestCommitPublishesModuleChange(t *testing.T) {
	h, disp := newTestHandle(t)

	const session = uint32(1)
	_ = h.SetItem(session, "test-module", "running", "/test-module:list[key='abc']/leaf", "v", datastore.FlagNone)
	if errs := h.Commit(session, "running"); len(errs) != 0 {
		t.Fatalf("Commit() errors = %v", errs)
	}

	// The index starts empty (no subscriptions registered), so delivery
	// is a no-op; this just exercises that Commit() doesn't block on
	// Publish() when nobody is listening.
	if len(disp.sent) != 0 {
		t.Errorf("unexpected deliveries with no subscribers: %v", disp.sent)
	}
}

func TestSessionRefreshReplaysOntoChangedBase(t *testing.T) {
	h, _ := newTestHandle(t)

	const sessionA = uint32(1)
	const sessionB = uint32(2)
	path := "/test-module:list[key='abc']/leaf"

	if err := h.SetItem(sessionA, "test-module", "running", path, "A's value", datastore.FlagNone); err != nil {
		t.Fatalf("SetItem(A) error = %v", err)
	}

	if err := h.SetItem(sessionB, "test-module", "running", path, "B's value", datastore.FlagNone); err != nil {
		t.Fatalf("SetItem(B) error = %v", err)
	}
	if errs := h.Commit(sessionB, "running"); len(errs) != 0 {
		t.Fatalf("Commit(B) errors = %v, want none", errs)
	}

	// A's base has gone stale; refreshing replays A's own log (overwriting
	// the leaf again) onto the base B just committed — a leaf overwrite is
	// not a structural conflict, so this succeeds rather than erroring.
	if err := h.SessionRefresh(sessionA, "test-module", "running"); err != nil {
		t.Fatalf("SessionRefresh(A) error = %v, want success (overwrite is allowed)", err)
	}

	if errs := h.Commit(sessionA, "running"); len(errs) != 0 {
		t.Fatalf("Commit(A) after refresh errors = %v, want none", errs)
	}

	got, err := h.GetDataInfo(uint32(3), "test-module", "running")
	if err != nil {
		t.Fatalf("GetDataInfo() error = %v", err)
	}
	val, _ := got.Tree.Get(path)
	if val != "A's value" {
		t.Errorf("final value = %v, want A's value to win (last committer)", val)
	}
}

func TestLockDatastoreExclusivity(t *testing.T) {
	h, _ := newTestHandle(t)

	const sessionA = uint32(1)
	const sessionB = uint32(2)

	if err := h.LockDatastore(sessionA); err != nil {
		t.Fatalf("LockDatastore(A) error = %v", err)
	}

	if err := h.LockModule(sessionB, "test-module"); err == nil {
		t.Error("LockModule(B) should fail while A holds the datastore lock")
	}

	h.SessionEnd(sessionA)

	if err := h.LockModule(sessionB, "test-module"); err != nil {
		t.Errorf("LockModule(B) after A's session ends error = %v, want success", err)
	}
}

func TestLockModuleUnknownModuleIsUnknownModel(t *testing.T) {
	h, _ := newTestHandle(t)

	err := h.LockModule(1, "no-such-module")
	if err == nil {
		t.Fatal("LockModule() on an unknown module should fail")
	}
	engErr, ok := err.(*Error)
	if !ok || engErr.Code != UnknownModel {
		t.Errorf("LockModule() error = %v, want UNKNOWN_MODEL", err)
	}
}

func TestGetDataTreeNotFoundWhenEmpty(t *testing.T) {
	h, _ := newTestHandle(t)

	_, err := h.GetDataTree(1, "test-module", "running")
	if err == nil {
		t.Fatal("GetDataTree() on an empty datastore should fail")
	}
	engErr, ok := err.(*Error)
	if !ok || engErr.Code != NotFound {
		t.Errorf("GetDataTree() error = %v, want NOT_FOUND", err)
	}
}

func TestDiscardChangesDropsOverlay(t *testing.T) {
	h, _ := newTestHandle(t)

	const session = uint32(1)
	if err := h.SetItem(session, "test-module", "running", "/test-module:list[key='abc']/leaf", "v", datastore.FlagNone); err != nil {
		t.Fatalf("SetItem() error = %v", err)
	}
	h.DiscardChanges(session)

	if errs := h.Validate(session); len(errs) != 0 {
		t.Errorf("Validate() after discard = %v, want none", errs)
	}
	if errs := h.Commit(session, "running"); len(errs) != 0 {
		t.Errorf("Commit() after discard = %v, want none (nothing modified)", errs)
	}
}
