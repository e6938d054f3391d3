package tempfile

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
)

// LockFile is a git-style "<path>.lock" exclusive lock: creation with
// O_EXCL is the locking primitive, Commit renames the lock over the real
// path, and Drop removes the ".lock" file, leaving path untouched.
type LockFile struct {
	fs   billy.Filesystem
	lock billy.File
	path string
}

// AcquireLock creates path+".lock" exclusively. Two callers racing to lock
// the same path with Immediate() see one success and one ErrLockHeld, which
// is the deterministic conflict behavior required of same-process and
// cross-process writers alike. With AfterDurationWithBackoff the exclusive
// creation itself is retried under exponential backoff until the deadline
// elapses.
func AcquireLock(ctx context.Context, fs billy.Filesystem, path string, opts AcquireOptions) (*LockFile, error) {
	lockPath := path + ".lock"

	backoff := 10 * time.Millisecond
	deadline := time.Now().Add(opts.Deadline)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, err := fs.OpenFile(lockPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
		if err == nil {
			return &LockFile{fs: fs, lock: f, path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("tempfile: lock %q: %w", path, err)
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
		default:
			return nil, ErrLockHeld
		}
	}
}

// File returns the lock file for writing the staged content.
func (l *LockFile) File() billy.File { return l.lock }

// Commit renames the lock file over path, publishing the staged content.
func (l *LockFile) Commit() error {
	if err := l.lock.Close(); err != nil {
		return fmt.Errorf("tempfile: commit lock %q: %w", l.path, err)
	}
	if err := l.fs.Rename(l.lock.Name(), l.path); err != nil {
		return fmt.Errorf("tempfile: commit lock %q: %w", l.path, err)
	}
	return nil
}

// Drop removes the lock file without touching path.
func (l *LockFile) Drop() error {
	_ = l.lock.Close()
	return l.fs.Remove(l.lock.Name())
}
