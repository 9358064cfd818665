package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	errs "glexport/pkg/errors"
	"glexport/pkg/logger"
)

// Descriptor identifies ownership of a target file's lock. It is the sole
// content of the sibling `<target>.lock` file, and its LockID is the only
// proof of ownership consulted at release time.
type Descriptor struct {
	LockID     string `json:"lock_id"`
	PID        int    `json:"pid"`
	AcquiredAt int64  `json:"acquired_at_ms"`
	TargetPath string `json:"target_path"`
}

// Handle is returned by Acquire and consumed by Release
type Handle struct {
	lockPath string
	lockID   string
	acquired bool
}

// Acquired reports whether the handle actually holds the lock.
// Releasing a handle that never acquired is a no-op.
func (h *Handle) Acquired() bool {
	return h != nil && h.acquired
}

// Options configures staleness and retry policy for one FileLock instance.
// Policy is per-instance so different callers can run different timeouts
// without sharing process-wide state.
type Options struct {
	// Timeout after which a held lock is considered stale
	Timeout time.Duration
	// RetryDelay between acquisition attempts against a live lock
	RetryDelay time.Duration
	// MaxRetries bounds the number of delayed attempts
	MaxRetries int
	// Prober answers whether a lock owner pid is still alive
	Prober ProcessProber
}

// DefaultOptions returns the stock policy: 30s staleness, 100ms retry
// delay, 50 retries (roughly five seconds of waiting).
func DefaultOptions() Options {
	return Options{
		Timeout:    30 * time.Second,
		RetryDelay: 100 * time.Millisecond,
		MaxRetries: 50,
		Prober:     SignalProber{},
	}
}

// FileLock acquires and releases advisory file-based locks. The lock is
// strictly intra-host and path-scoped: it arbitrates between separate
// process instances writing into the same output directory.
type FileLock struct {
	opts   Options
	logger logger.Logger
}

// New creates a FileLock with the given options. Zero-valued fields fall
// back to the defaults.
func New(opts Options) *FileLock {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.Prober == nil {
		opts.Prober = def.Prober
	}
	return &FileLock{
		opts:   opts,
		logger: logger.GetLogger(),
	}
}

// LockPath returns the sibling lock file path for a target
func LockPath(path string) string {
	return path + ".lock"
}

// Acquire obtains the advisory lock for path, retrying against a live
// holder up to MaxRetries times. A stale lock (aged out, dead owner, or
// unparseable descriptor) is reclaimed immediately without consuming a
// retry.
func (l *FileLock) Acquire(path string) (*Handle, error) {
	lockPath := LockPath(path)
	retries := 0

	for {
		handle, err := l.tryCreate(path, lockPath)
		if err == nil {
			return handle, nil
		}
		if !os.IsExist(err) {
			return nil, errs.NewIO(lockPath, err)
		}

		if l.isStale(lockPath) {
			if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
				return nil, errs.NewIO(lockPath, err)
			}
			l.logger.WarnWithFields("reclaimed stale lock", map[string]interface{}{
				"path": path,
			})
			continue
		}

		if retries >= l.opts.MaxRetries {
			l.logger.ErrorWithFields("lock acquisition failed", map[string]interface{}{
				"path":    path,
				"retries": retries,
			})
			return nil, errs.NewContention(path, retries)
		}
		retries++
		time.Sleep(l.opts.RetryDelay)
	}
}

// tryCreate attempts an exclusive creation of the lock file
func (l *FileLock) tryCreate(path, lockPath string) (*Handle, error) {
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	desc := Descriptor{
		LockID:     uuid.NewString(),
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UnixMilli(),
		TargetPath: path,
	}

	if err := json.NewEncoder(file).Encode(&desc); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, errs.NewIO(lockPath, fmt.Errorf("failed to write lock descriptor: %w", err))
	}
	if err := file.Close(); err != nil {
		os.Remove(lockPath)
		return nil, errs.NewIO(lockPath, err)
	}

	return &Handle{lockPath: lockPath, lockID: desc.LockID, acquired: true}, nil
}

// isStale classifies an existing lock file. A descriptor that cannot be
// read or parsed counts as stale. Otherwise the lock is stale when its age
// exceeds the timeout, or when the owning pid is provably dead. When the
// prober cannot determine liveness, age is the sole criterion.
func (l *FileLock) isStale(lockPath string) bool {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		// Vanished between attempts: the next create will settle it
		return os.IsNotExist(err)
	}

	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		l.logger.WarnWithFields("unreadable lock descriptor, treating as stale", map[string]interface{}{
			"path":  lockPath,
			"error": err.Error(),
		})
		return true
	}

	age := time.Since(time.UnixMilli(desc.AcquiredAt))
	if age > l.opts.Timeout {
		return true
	}

	alive, err := l.opts.Prober.Alive(desc.PID)
	if err != nil {
		// Liveness undeterminable, fall back to the age check above
		return false
	}
	return !alive
}

// Release removes the lock file if and only if the descriptor on disk
// still carries the handle's lock ID. A mismatch means another process
// reclaimed the lock as stale; in that case the file is left alone and a
// warning is logged. Release is idempotent: a missing lock file and an
// unacquired handle are both no-ops. On a transient read failure the
// handle stays acquired, so the caller can retry the release.
func (l *FileLock) Release(h *Handle) error {
	if !h.Acquired() {
		return nil
	}

	data, err := os.ReadFile(h.lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			h.acquired = false
			return nil
		}
		// Transient read failure: the handle stays acquired so the
		// caller can retry instead of orphaning the lock file
		return errs.NewIO(h.lockPath, err)
	}
	h.acquired = false

	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		// A corrupt descriptor is stale by definition, remove it
		l.removeQuiet(h.lockPath)
		return nil
	}

	if desc.LockID != h.lockID {
		l.logger.WarnWithFields("lock was reclaimed by another owner, not releasing", map[string]interface{}{
			"path":     h.lockPath,
			"owner":    desc.PID,
			"owner_id": desc.LockID,
		})
		return nil
	}

	l.removeQuiet(h.lockPath)
	return nil
}

func (l *FileLock) removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		l.logger.WarnWithFields("failed to remove lock file", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
}

// WithLock runs fn while holding the lock for path, releasing on every
// exit path including panics.
func (l *FileLock) WithLock(path string, fn func() error) error {
	handle, err := l.Acquire(path)
	if err != nil {
		return err
	}
	defer l.Release(handle)
	return fn()
}
