package persist

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when a module's persistence file is already held by
// another holder (in this process or another), the signal that triggers
// §4.5 step 3's "release already-held locks and return COMMIT_FAILED".
var ErrLocked = errors.New("persist: module file is locked")

// ModuleLock is an exclusive advisory lock on a module's dedicated lock
// file, held across commit protocol steps 4 through 8. The lock file is
// separate from the datastore files it guards so a reader can take a shared
// lock without contending with the writer for file-open semantics.
type ModuleLock struct {
	module string
	file   *os.File
}

// LockModule acquires a non-blocking exclusive lock for module, grounded on
// steveyegge-beads' flock_unix.go (LOCK_EX|LOCK_NB, EWOULDBLOCK mapped to a
// sentinel error) generalised from a single daemon pidfile lock to one lock
// per module.
func (s *Store) LockModule(module string) (*ModuleLock, error) {
	path := s.lockPath(module)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrLocked
		}
		return nil, err
	}

	return &ModuleLock{module: module, file: f}, nil
}

// Unlock releases the lock and closes the underlying file descriptor.
func (l *ModuleLock) Unlock() error {
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func flockExclusive(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return ErrLocked
	}
	return err
}

func flockShared(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return ErrLocked
	}
	return err
}

func flockRelease(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
