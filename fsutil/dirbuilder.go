// Package fsutil implements the retrying recursive directory creation used
// throughout the object and reference stores, which must tolerate other
// processes racing to create or remove the same ancestor directories.
package fsutil

import (
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"
)

// Defaults for RetryOptions.
const (
	DefaultToCreateEntireDirectory  = 5
	DefaultOnCreateDirectoryFailure = 25
	DefaultOnInterrupt              = 10
)

// RetryOptions bounds how many times MkdirAll retries each racy failure
// mode before giving up.
type RetryOptions struct {
	// ToCreateEntireDirectory bounds retries when an ancestor directory we
	// just created is removed by another actor before we can create our
	// child inside it.
	ToCreateEntireDirectory int
	// OnCreateDirectoryFailure bounds retries for any other transient
	// directory-creation failure.
	OnCreateDirectoryFailure int
	// OnInterrupt bounds retries after a signal interrupt.
	OnInterrupt int
}

// DefaultRetryOptions returns the default retry budget (5 / 25 / 10).
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		ToCreateEntireDirectory:  DefaultToCreateEntireDirectory,
		OnCreateDirectoryFailure: DefaultOnCreateDirectoryFailure,
		OnInterrupt:              DefaultOnInterrupt,
	}
}

// ErrNotADirectory is returned when a path component exists but is not a
// directory; this is a permanent error, never retried.
var ErrNotADirectory = errors.New("fsutil: path component exists and is not a directory")

// MkdirAll creates path and all missing ancestors on fs, tolerating three
// racy conditions: an ancestor directory that already exists (success), an
// ancestor that another actor deletes between our creation and our child's
// creation (retried up to ToCreateEntireDirectory times), and signal
// interrupts (retried up to OnInterrupt times). A non-directory collision at
// any component is a permanent error.
func MkdirAll(fs billy.Filesystem, path string, opts RetryOptions) error {
	var lastErr error
	for attempt := 0; attempt <= opts.ToCreateEntireDirectory; attempt++ {
		err := mkdirAllOnce(fs, path, opts)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotADirectory) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("fsutil: MkdirAll %q: %w", path, lastErr)
}

func mkdirAllOnce(fs billy.Filesystem, path string, opts RetryOptions) error {
	for i := 0; i <= opts.OnCreateDirectoryFailure; i++ {
		err := createAttempt(fs, path, opts)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotADirectory) {
			return err
		}
		if i == opts.OnCreateDirectoryFailure {
			return err
		}
	}
	return nil
}

func createAttempt(fs billy.Filesystem, path string, opts RetryOptions) error {
	for i := 1; i < len(path); i++ {
		if path[i] != '/' {
			continue
		}
		if fi, err := fs.Stat(path[:i]); err == nil && !fi.IsDir() {
			return fmt.Errorf("%w: %s", ErrNotADirectory, path[:i])
		}
	}
	for i := 0; i <= opts.OnInterrupt; i++ {
		err := fs.MkdirAll(path, 0o755)
		if err == nil {
			return verifyIsDir(fs, path)
		}
		if isInterrupted(err) && i < opts.OnInterrupt {
			continue
		}
		return classify(fs, path, err)
	}
	return nil
}

func verifyIsDir(fs billy.Filesystem, path string) error {
	fi, err := fs.Stat(path)
	if err != nil {
		// The directory vanished between creation and verification; treat
		// this the same as any other transient failure so the caller's
		// retry loop runs again.
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotADirectory, path)
	}
	return nil
}

func classify(fs billy.Filesystem, path string, cause error) error {
	if fi, statErr := fs.Stat(path); statErr == nil && !fi.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotADirectory, path)
	}
	return cause
}

// ErrInterrupted marks a directory-creation attempt aborted by a caller's
// should_interrupt signal; MkdirAll retries it up to OnInterrupt times.
var ErrInterrupted = errors.New("fsutil: interrupted")

func isInterrupted(err error) bool { return errors.Is(err, ErrInterrupted) }
