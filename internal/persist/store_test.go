package persist

import (
	"testing"

	"github.com/cuemby/sysrepo-engine/internal/notify"
)

func TestWriteReadDatastoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	lock, err := store.LockModule("turing-config")
	if err != nil {
		t.Fatalf("LockModule() error = %v", err)
	}

	want := []byte(`{"container":"interfaces"}`)
	if err := store.WriteDatastore(lock, "running", want); err != nil {
		t.Fatalf("WriteDatastore() error = %v", err)
	}
	lock.Unlock()

	got, modTime, err := store.ReadDatastore("turing-config", "running")
	if err != nil {
		t.Fatalf("ReadDatastore() error = %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("ReadDatastore() = %q, want %q", got, want)
	}
	if modTime.IsZero() {
		t.Error("ReadDatastore() returned zero mod time for an existing file")
	}
}

func TestReadDatastoreMissingFileIsNotError(t *testing.T) {
	store := NewStore(t.TempDir())

	data, modTime, err := store.ReadDatastore("never-installed", "running")
	if err != nil {
		t.Fatalf("ReadDatastore() error = %v, want nil for a missing file", err)
	}
	if data != nil {
		t.Errorf("ReadDatastore() data = %v, want nil", data)
	}
	if !modTime.IsZero() {
		t.Errorf("ReadDatastore() modTime = %v, want zero", modTime)
	}
}

func TestLockModuleExclusive(t *testing.T) {
	store := NewStore(t.TempDir())

	first, err := store.LockModule("turing-config")
	if err != nil {
		t.Fatalf("first LockModule() error = %v", err)
	}
	defer first.Unlock()

	if _, err := store.LockModule("turing-config"); err != ErrLocked {
		t.Errorf("second LockModule() error = %v, want ErrLocked", err)
	}
}

func TestLockModuleIndependentPerModule(t *testing.T) {
	store := NewStore(t.TempDir())

	a, err := store.LockModule("module-a")
	if err != nil {
		t.Fatalf("LockModule(module-a) error = %v", err)
	}
	defer a.Unlock()

	b, err := store.LockModule("module-b")
	if err != nil {
		t.Fatalf("LockModule(module-b) error = %v, want success (independent lock)", err)
	}
	b.Unlock()
}

func TestSaveLoadSubscriptionsRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	subs := []notify.Subscription{
		{Event: notify.EventModuleChange, DestinationAddress: "session:1", DestinationID: "dst-a", ModuleName: "turing-config"},
	}
	if err := store.SaveSubscriptions("turing-config", subs); err != nil {
		t.Fatalf("SaveSubscriptions() error = %v", err)
	}

	got, err := store.LoadSubscriptions("turing-config")
	if err != nil {
		t.Fatalf("LoadSubscriptions() error = %v", err)
	}
	if len(got) != 1 || got[0] != subs[0] {
		t.Errorf("LoadSubscriptions() = %+v, want %+v", got, subs)
	}
}

func TestFeatureEnabledRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.SetFeatureEnabled("turing-config", "ipv6", true); err != nil {
		t.Fatalf("SetFeatureEnabled() error = %v", err)
	}

	features, err := store.EnabledFeatures("turing-config")
	if err != nil {
		t.Fatalf("EnabledFeatures() error = %v", err)
	}
	if !features["ipv6"] {
		t.Errorf("EnabledFeatures() = %+v, want ipv6 enabled", features)
	}
}

func TestEnabledFeaturesForUnknownModule(t *testing.T) {
	store := NewStore(t.TempDir())

	features, err := store.EnabledFeatures("never-installed")
	if err != nil {
		t.Fatalf("EnabledFeatures() error = %v", err)
	}
	if len(features) != 0 {
		t.Errorf("EnabledFeatures() = %+v, want empty", features)
	}
}
