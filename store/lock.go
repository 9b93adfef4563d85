package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DirLock holds an exclusive file lock on a data directory so only one
// process runs an executor against it at a time.
type DirLock struct {
	flk *flock.Flock
}

// AcquireDirLock takes the lock without blocking; a second process gets
// an immediate error instead of silently double-running the queue.
func AcquireDirLock(dataDir string) (*DirLock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dataDir, err)
	}

	flk := flock.New(filepath.Join(dataDir, "genqueue.lock"))
	locked, err := flk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock data directory %s: %w", dataDir, err)
	}
	if !locked {
		return nil, fmt.Errorf("data directory %s is in use by another genqueue process", dataDir)
	}
	return &DirLock{flk: flk}, nil
}

// Release drops the lock.
func (l *DirLock) Release() error {
	return l.flk.Unlock()
}
