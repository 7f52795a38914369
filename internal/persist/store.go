// Package persist implements the Persistence Store: per-module, per-datastore
// flat files under advisory locks, written with truncate-rewrite-fdatasync
// semantics so a reader never observes a half-written file.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cuemby/sysrepo-engine/internal/notify"
)

// Store reads and writes a module's datastore files and its side-car
// `.persist` file (durable subscriptions, enabled features) under
// `{data_dir}/{module}.{datastore}` and `{data_dir}/{module}.persist`.
type Store struct {
	dataDir string

	// reads coalesces concurrent ReadDatastore calls for the same
	// module/datastore, the way
	// launchdarkly-go-server-sdk/internal/persistent_data_store_wrapper.go
	// uses singleflight.Group so several sessions forking a base (or
	// refreshing) at once share one disk read/flock instead of each
	// paying for its own.
	reads singleflight.Group
}

// NewStore creates a Store rooted at dataDir. The directory must already
// exist; Store never creates it, matching the teacher's convention of
// failing fast on missing operator-provisioned paths rather than silently
// creating directory trees.
func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

func (s *Store) datastorePath(module, datastore string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s.%s", module, datastore))
}

func (s *Store) persistPath(module string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s.persist", module))
}

func (s *Store) lockPath(module string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s.lock", module))
}

// persistRecord is the on-disk shape of a module's `.persist` file.
type persistRecord struct {
	Subscriptions []notify.Subscription `json:"subscriptions,omitempty"`
	Features      map[string]bool       `json:"features,omitempty"`
}

// ReadDatastore returns the raw bytes of a module's datastore file and its
// modification time, used by the Data Manager to detect whether a session's
// forked base has gone stale (§4.3 `get_data_info`). A missing file is not
// an error: it returns a nil payload with a zero time, the state of a
// module that has never been committed.
func (s *Store) ReadDatastore(module, datastore string) ([]byte, time.Time, error) {
	key := module + "." + datastore
	v, err, _ := s.reads.Do(key, func() (any, error) {
		return s.readDatastoreFile(module, datastore)
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	r := v.(datastoreRead)
	return r.data, r.modTime, nil
}

type datastoreRead struct {
	data    []byte
	modTime time.Time
}

func (s *Store) readDatastoreFile(module, datastore string) (datastoreRead, error) {
	path := s.datastorePath(module, datastore)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return datastoreRead{}, nil
	}
	if err != nil {
		return datastoreRead{}, fmt.Errorf("persist: open %s: %w", path, err)
	}
	defer f.Close()

	if err := flockShared(f); err != nil {
		return datastoreRead{}, fmt.Errorf("persist: lock %s for read: %w", path, err)
	}
	defer flockRelease(f)

	info, err := f.Stat()
	if err != nil {
		return datastoreRead{}, fmt.Errorf("persist: stat %s: %w", path, err)
	}
	data, err := readAll(f, info.Size())
	if err != nil {
		return datastoreRead{}, fmt.Errorf("persist: read %s: %w", path, err)
	}
	return datastoreRead{data: data, modTime: info.ModTime()}, nil
}

// WriteDatastore replaces a module's datastore file. Must be called while
// holding the ModuleLock returned by LockModule (§4.5 step 7: "truncate and
// serialise each affected file; fdatasync").
func (s *Store) WriteDatastore(lock *ModuleLock, datastore string, data []byte) error {
	if lock.module == "" {
		return fmt.Errorf("persist: WriteDatastore called without a held module lock")
	}
	return writeAtomic(s.datastorePath(lock.module, datastore), data)
}

// SaveSubscriptions persists a module's durable module-change subscriptions,
// overwriting the subscriptions section of its `.persist` file. Implements
// notify.Store.
func (s *Store) SaveSubscriptions(module string, subs []notify.Subscription) error {
	lock, err := s.LockModule(module)
	if err != nil {
		return fmt.Errorf("persist: lock %s for subscription save: %w", module, err)
	}
	defer lock.Unlock()

	rec, err := s.readPersistRecord(module)
	if err != nil {
		return err
	}
	rec.Subscriptions = subs

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("persist: encode %s.persist: %w", module, err)
	}
	return writeAtomic(s.persistPath(module), data)
}

// LoadSubscriptions reads back the durable subscriptions previously saved
// for a module. Implements notify.Store.
func (s *Store) LoadSubscriptions(module string) ([]notify.Subscription, error) {
	rec, err := s.readPersistRecord(module)
	if err != nil {
		return nil, err
	}
	return rec.Subscriptions, nil
}

// SetFeatureEnabled records whether a feature of module is enabled in its
// `.persist` file.
func (s *Store) SetFeatureEnabled(module, feature string, enabled bool) error {
	lock, err := s.LockModule(module)
	if err != nil {
		return fmt.Errorf("persist: lock %s for feature save: %w", module, err)
	}
	defer lock.Unlock()

	rec, err := s.readPersistRecord(module)
	if err != nil {
		return err
	}
	if rec.Features == nil {
		rec.Features = make(map[string]bool)
	}
	rec.Features[feature] = enabled

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("persist: encode %s.persist: %w", module, err)
	}
	return writeAtomic(s.persistPath(module), data)
}

// EnabledFeatures returns the set of features enabled for module.
func (s *Store) EnabledFeatures(module string) (map[string]bool, error) {
	rec, err := s.readPersistRecord(module)
	if err != nil {
		return nil, err
	}
	if rec.Features == nil {
		return map[string]bool{}, nil
	}
	return rec.Features, nil
}

func (s *Store) readPersistRecord(module string) (persistRecord, error) {
	path := s.persistPath(module)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return persistRecord{}, nil
	}
	if err != nil {
		return persistRecord{}, fmt.Errorf("persist: open %s: %w", path, err)
	}
	defer f.Close()

	if err := flockShared(f); err != nil {
		return persistRecord{}, fmt.Errorf("persist: lock %s for read: %w", path, err)
	}
	defer flockRelease(f)

	info, err := f.Stat()
	if err != nil {
		return persistRecord{}, fmt.Errorf("persist: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return persistRecord{}, nil
	}

	var rec persistRecord
	dec := json.NewDecoder(f)
	if err := dec.Decode(&rec); err != nil {
		return persistRecord{}, fmt.Errorf("persist: decode %s: %w", path, err)
	}
	return rec, nil
}
