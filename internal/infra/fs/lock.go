// Package fs provides filesystem primitives for the cache store: advisory
// per-file locks and atomic replacement guarantees shared by every writer.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// ErrLockHeld reports that another process holds the lock and it did not
// free up within the configured wait.
var ErrLockHeld = errors.New("lock held by another process")

// LockInfo is the JSON body of a lock file.
type LockInfo struct {
	PID        int    `json:"pid"`
	AcquiredAt string `json:"acquired_at"` // UTC RFC3339
	ExpiresAt  string `json:"expires_at"`  // UTC RFC3339
	Hostname   string `json:"hostname"`
}

// LockOptions tune acquisition behavior.
type LockOptions struct {
	// Timeout bounds the total wait on a busy lock. Zero tries exactly once.
	Timeout time.Duration
	// RetryInterval is the pause between attempts.
	RetryInterval time.Duration
	// TTL is stamped into the lock file as its expiry; other processes may
	// break the lock once it passes.
	TTL time.Duration
}

const (
	defaultRetryInterval = 100 * time.Millisecond
	defaultLockTTL       = 10 * time.Minute
)

// AcquireLock takes an exclusive advisory lock by creating lockPath with
// O_EXCL. A busy lock is retried until ctx or the timeout expires. Locks
// left behind by a crashed or expired holder are broken. The returned
// release func drops the lock.
func AcquireLock(ctx context.Context, fsys afero.Fs, lockPath string, opts LockOptions) (func() error, error) {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultLockTTL
	}
	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}

	for {
		release, err := lockAttempt(fsys, lockPath, opts.TTL)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		if deadline.IsZero() || !time.Now().Before(deadline) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.RetryInterval):
		}
	}
}

func lockAttempt(fsys afero.Fs, lockPath string, ttl time.Duration) (func() error, error) {
	if data, err := afero.ReadFile(fsys, lockPath); err == nil {
		var existing LockInfo
		parseErr := json.Unmarshal(data, &existing)
		if parseErr == nil && !lockStale(&existing) {
			return nil, fmt.Errorf("%w: pid %d since %s",
				ErrLockHeld, existing.PID, existing.AcquiredAt)
		}
		log.Warn().
			Str("lock", lockPath).
			Int("holder_pid", existing.PID).
			Msg("breaking stale lock")
		_ = fsys.Remove(lockPath)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read lock file: %w", err)
	}

	now := time.Now().UTC()
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	data, err := json.Marshal(LockInfo{
		PID:        os.Getpid(),
		AcquiredAt: now.Format(time.RFC3339),
		ExpiresAt:  now.Add(ttl).Format(time.RFC3339),
		Hostname:   hostname,
	})
	if err != nil {
		return nil, fmt.Errorf("serialize lock info: %w", err)
	}

	if err := fsys.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := fsys.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, lockPath)
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}

	// On a real filesystem a kernel lock closes the window between a stale
	// break and the O_EXCL create of a racing process. Memory filesystems
	// are single-process, the lock file alone suffices there.
	osf, kernelLock := f.(*os.File)
	if kernelLock {
		if err := flockTry(osf); err != nil {
			f.Close()
			_ = fsys.Remove(lockPath)
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, lockPath)
		}
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = fsys.Remove(lockPath)
		return nil, fmt.Errorf("write lock file: %w", err)
	}

	release := func() error {
		if kernelLock {
			_ = flockUnlock(osf)
		}
		_ = f.Close()
		if err := fsys.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("release lock %s: %w", lockPath, err)
		}
		return nil
	}
	return release, nil
}

// lockStale reports whether a lock file may be broken: its expiry passed
// or its owning process is gone.
func lockStale(info *LockInfo) bool {
	expires, err := time.Parse(time.RFC3339, info.ExpiresAt)
	if err != nil {
		return true
	}
	if !processAlive(info.PID) {
		return true
	}
	return time.Now().UTC().After(expires)
}

// processAlive checks PID liveness with signal 0. EPERM means the process
// exists but belongs to someone else, which still counts as alive.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
