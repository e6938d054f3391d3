// Package tempfile implements scoped temp-file acquisition and git-style
// lockfiles: a Handle owns a temporary file that is unlinked on Drop unless
// Commit renames it into place first, and a LockFile (built directly on
// the filesystem, not on Handle) does the same for "<path>.lock".
package tempfile

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
)

// FailureMode selects how Acquire behaves when the target is already locked.
type FailureMode int

const (
	// Immediately fails on the first contended attempt.
	Immediately FailureMode = iota
	// AfterDurationWithBackoff retries with exponential backoff until a
	// deadline elapses.
	AfterDurationWithBackoff
	// Never never retries; equivalent to Immediately, spelled out for
	// callers that want to express "do not wait" explicitly.
	Never
)

var (
	// ErrLockHeld is returned when a lock is already held and the failure
	// mode does not permit waiting any further.
	ErrLockHeld = errors.New("tempfile: lock already held")
)

// AcquireOptions configures Acquire's contention behavior.
type AcquireOptions struct {
	Mode     FailureMode
	Deadline time.Duration // only meaningful for AfterDurationWithBackoff
}

// Immediate is the zero-wait AcquireOptions.
func Immediate() AcquireOptions { return AcquireOptions{Mode: Immediately} }

// WithBackoff returns options that retry with exponential backoff until
// deadline elapses.
func WithBackoff(deadline time.Duration) AcquireOptions {
	return AcquireOptions{Mode: AfterDurationWithBackoff, Deadline: deadline}
}

// Handle owns a temporary file alongside a final target path. Dropping it
// without calling Commit unlinks the temp file, leaving the target
// untouched: a partially prepared transaction never becomes visible.
type Handle struct {
	fs       billy.Filesystem
	tmp      billy.File
	target   string
	mu       sync.Mutex
	done     bool
	registry *Registry
}

// Acquire creates a uniquely-named temp file in the same directory as
// target and returns a Handle for it, retrying contended creation according
// to opts.
func Acquire(ctx context.Context, fs billy.Filesystem, target string, opts AcquireOptions) (*Handle, error) {
	dir := filepath.Dir(target)
	name := fmt.Sprintf(".%s.tmp%d", filepath.Base(target), rand.Int63())

	backoff := 10 * time.Millisecond
	deadline := time.Now().Add(opts.Deadline)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, err := fs.OpenFile(fs.Join(dir, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
		if err == nil {
			h := &Handle{fs: fs, tmp: f, target: target}
			globalRegistry.add(h)
			h.registry = globalRegistry
			return h, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("tempfile: acquire %q: %w", target, err)
		}

		switch opts.Mode {
		case Immediately, Never:
			return nil, ErrLockHeld
		case AfterDurationWithBackoff:
			if time.Now().After(deadline) {
				return nil, ErrLockHeld
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > time.Second {
				backoff = time.Second
			}
		}
	}
}

// File returns the underlying temp file for writing.
func (h *Handle) File() billy.File { return h.tmp }

// Path returns the temp file's path.
func (h *Handle) Path() string { return h.tmp.Name() }

// Commit renames the temp file into place at the target path, consuming the
// handle. After Commit, Drop is a no-op.
func (h *Handle) Commit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return errors.New("tempfile: handle already closed")
	}
	h.done = true
	h.registry.remove(h)

	if err := h.tmp.Close(); err != nil {
		return fmt.Errorf("tempfile: commit %q: %w", h.target, err)
	}
	if err := h.fs.Rename(h.tmp.Name(), h.target); err != nil {
		return fmt.Errorf("tempfile: commit %q: %w", h.target, err)
	}
	return nil
}

// Drop aborts the transaction: the temp file is closed and unlinked, and
// the target path is left untouched.
func (h *Handle) Drop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return nil
	}
	h.done = true
	h.registry.remove(h)

	_ = h.tmp.Close()
	return h.fs.Remove(h.tmp.Name())
}

// Registry tracks live Handles so they can be cleaned up if the process
// exits without an orderly Drop/Commit, e.g. from a signal handler.
type Registry struct {
	mu      sync.Mutex
	handles map[*Handle]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry { return &Registry{handles: make(map[*Handle]struct{})} }

func (r *Registry) add(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h] = struct{}{}
}

func (r *Registry) remove(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, h)
}

// CleanupAll drops every still-live handle in the registry. Intended to be
// called from a single process-wide signal handler at shutdown.
func (r *Registry) CleanupAll() {
	r.mu.Lock()
	live := make([]*Handle, 0, len(r.handles))
	for h := range r.handles {
		live = append(live, h)
	}
	r.mu.Unlock()

	for _, h := range live {
		_ = h.Drop()
	}
}

// globalRegistry is the process-wide registry: init happens implicitly at
// package load, teardown is the caller's responsibility (call
// InstallSignalCleanup from main).
var globalRegistry = NewRegistry()

// GlobalRegistry returns the process-wide tempfile registry.
func GlobalRegistry() *Registry { return globalRegistry }
