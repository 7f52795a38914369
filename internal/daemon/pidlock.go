// Package daemon provides the engine daemon's startup/shutdown plumbing:
// the pidfile-under-flock that enforces a single instance per host (§6
// Daemon CLI).
package daemon

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by AcquirePIDLock when another process
// already holds the exclusive lock on the pidfile.
var ErrAlreadyRunning = errors.New("daemon: another instance is already running (pidfile locked)")

// PIDLock holds the exclusive flock on the daemon's pidfile for the
// lifetime of the process.
type PIDLock struct {
	file *os.File
	path string
}

// Release closes the lock file, dropping the flock and leaving the stale
// pidfile content on disk (the next instance overwrites it on acquire).
func (l *PIDLock) Release() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// AcquirePIDLock opens (creating if needed) the pidfile at path, takes a
// non-blocking exclusive advisory lock on it, then truncates and rewrites
// it with the current process's PID. The lock is held until Release, which
// is how a second instance on the same host is refused at startup.
func AcquirePIDLock(path string) (*PIDLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("daemon: open pidfile %s: %w", path, err)
	}

	if err := flockExclusive(f); err != nil {
		f.Close()
		if errors.Is(err, ErrAlreadyRunning) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("daemon: lock pidfile %s: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("daemon: truncate pidfile %s: %w", path, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("daemon: seek pidfile %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		return nil, fmt.Errorf("daemon: write pidfile %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("daemon: sync pidfile %s: %w", path, err)
	}

	return &PIDLock{file: f, path: path}, nil
}

// flockExclusive takes a non-blocking exclusive advisory lock on f.
func flockExclusive(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return ErrAlreadyRunning
	}
	return err
}
