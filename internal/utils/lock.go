package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
	lockRetryDelay = 250 * time.Millisecond
)

// RunLock is a file lock that keeps two processes (a CLI run and the
// server, say) from processing the same board's batch at the same time.
type RunLock struct {
	lock *flock.Flock
	path string
}

// NewRunLock creates the lock for one batch kind and board under dir. An
// empty dir uses the default lock directory.
func NewRunLock(dir, kind string, boardID int64) (*RunLock, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultLockDir(); err != nil {
			return nil, fmt.Errorf("could not get lock directory: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create lock directory %s: %w", dir, err)
	}
	lockPath := filepath.Join(dir, fmt.Sprintf("%s-%d%s", kind, boardID, lockFileSuffix))
	return &RunLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// Lock acquires the run lock, waiting until ctx is done if necessary.
// It logs a message if it has to wait.
func (l *RunLock) Lock(ctx context.Context) error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	if locked {
		return nil
	}

	Log.Warnf("Another stocksuite process is running this batch (%s), waiting for it to finish...", filepath.Base(l.path))
	locked, err = l.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock on %s", l.path)
	}
	return nil
}

// Unlock releases the run lock.
func (l *RunLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// DefaultLockDir is ~/.config/stocksuite/locks.
func DefaultLockDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "stocksuite", "locks"), nil
}

// GetAbsDBPath resolves the database path.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "stocksuite", "stocksuite.sqlite"), nil
	}
	return filepath.Abs(dbPath)
}
