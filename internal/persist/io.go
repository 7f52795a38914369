package persist

import (
	"fmt"
	"io"
	"os"
)

// writeAtomic truncates path, rewrites it, and fdatasyncs it, per §6's
// "writers use ftruncate + rewrite + fdatasync, under advisory fcntl
// locks". It does not rename-swap a temp file: the spec's write model is
// truncate-in-place, so readers take a shared lock (flockShared) rather
// than relying on rename atomicity.
func writeAtomic(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	if err := flockExclusive(f); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer flockRelease(f)

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fdatasync: %w", err)
	}
	return nil
}

func readAll(f *os.File, size int64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
