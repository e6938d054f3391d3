package refs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/dietcache/vcscore/fsutil"
	"github.com/dietcache/vcscore/hash"
)

// MaxSymbolicHops bounds how many symbolic indirections Resolve follows
// before reporting a cycle.
const MaxSymbolicHops = 5

// Peeler dereferences a tag object down to whatever it points at. It
// returns ok=false when id does not name a tag (a terminal, non-tag
// object), in which case id itself is the peeled value.
type Peeler interface {
	Peel(id hash.ID) (next hash.ID, ok bool, err error)
}

// Store is a reference store: loose ref files under <root>/refs (and the
// pseudo-refs directly under <root>), plus the packed-refs file, plus
// per-ref reflogs under <root>/logs.
type Store struct {
	fs     billy.Filesystem
	root   string
	idKind hash.Kind
}

// NewStore returns a Store rooted at root (a repository's gitdir, or a
// linked worktree's private directory) within fs.
func NewStore(fs billy.Filesystem, root string, idKind hash.Kind) *Store {
	return &Store{fs: fs, root: root, idKind: idKind}
}

func (s *Store) path(name Name) string { return s.fs.Join(s.root, string(name)) }

// Path returns the loose-ref file path for name, for callers (such as the
// reftx package) that need to acquire their own lock at that path.
func (s *Store) Path(name Name) string { return s.path(name) }

// PackedRefsPath returns the path of the packed-refs file.
func (s *Store) PackedRefsPath() string { return s.fs.Join(s.root, "packed-refs") }

// FS returns the filesystem the store is rooted in.
func (s *Store) FS() billy.Filesystem { return s.fs }

// IDKind returns the hash kind used to parse and encode ref values.
func (s *Store) IDKind() hash.Kind { return s.idKind }

// FollowSymbolic follows name through any chain of symbolic refs and
// returns the first name in the chain that either does not exist or holds
// a direct (non-symbolic) value — the name a dereferencing transaction
// edit should actually write to. Unlike Resolve, it succeeds even when
// the final name does not exist yet (the "unborn HEAD" case).
func (s *Store) FollowSymbolic(name Name) (Name, error) {
	cur := name
	for hop := 0; hop < MaxSymbolicHops; hop++ {
		v, err := s.ReadLoose(cur)
		if errors.Is(err, ErrNotExist) {
			return cur, nil
		}
		if err != nil {
			return "", err
		}
		if !v.IsSymbolic() {
			return cur, nil
		}
		cur = v.Symbolic
	}
	return "", ErrTooManyHops
}

// ReadLoose reads and parses the loose ref file for name. It returns
// ErrNotExist if no loose file exists at that path.
func (s *Store) ReadLoose(name Name) (Value, error) {
	f, err := s.fs.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Value{}, ErrNotExist
		}
		return Value{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, 4096))
	if err != nil {
		return Value{}, err
	}
	return ParseLooseContent(data, s.idKind)
}

// WriteLoose atomically writes v as name's loose ref content, creating
// parent directories as needed.
func (s *Store) WriteLoose(ctx context.Context, name Name, v Value) error {
	p := s.path(name)
	if err := fsutil.MkdirAll(s.fs, parentDir(s.fs, p), fsutil.DefaultRetryOptions()); err != nil {
		return err
	}
	tmp := p + fmt.Sprintf(".lock.%d", os.Getpid())
	f, err := s.fs.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(EncodeLooseContent(v)); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		s.fs.Remove(tmp)
		return err
	}
	return nil
}

// RemoveLoose unlinks name's loose ref file, if present.
func (s *Store) RemoveLoose(name Name) error {
	err := s.fs.Remove(s.path(name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// ReadPackedRefs parses the packed-refs file, returning an empty
// PackedRefs (not an error) if the file does not exist.
func (s *Store) ReadPackedRefs() (*PackedRefs, error) {
	f, err := s.fs.Open(s.fs.Join(s.root, "packed-refs"))
	if err != nil {
		if os.IsNotExist(err) {
			return &PackedRefs{}, nil
		}
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return ParsePackedRefs(data, s.idKind)
}

// WritePackedRefs atomically rewrites the packed-refs file.
func (s *Store) WritePackedRefs(pr *PackedRefs) error {
	p := s.fs.Join(s.root, "packed-refs")
	tmp := p + fmt.Sprintf(".lock.%d", os.Getpid())
	f, err := s.fs.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(pr.Encode()); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmp)
		return err
	}
	return s.fs.Rename(tmp, p)
}

// Lookup resolves name to its immediate Value: a loose file beats a
// packed-refs entry of the same name.
func (s *Store) Lookup(name Name) (Value, error) {
	v, err := s.ReadLoose(name)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrNotExist) {
		return Value{}, err
	}

	pr, err := s.ReadPackedRefs()
	if err != nil {
		return Value{}, err
	}
	if e, ok := pr.Find(name); ok {
		return Value{Target: e.Target}, nil
	}
	return Value{}, ErrNotExist
}

// Resolve follows name through any chain of symbolic refs to its peeled
// (non-symbolic) target, bounded by MaxSymbolicHops.
func (s *Store) Resolve(name Name) (hash.ID, error) {
	cur := name
	for hop := 0; hop < MaxSymbolicHops; hop++ {
		v, err := s.Lookup(cur)
		if err != nil {
			return hash.ID{}, err
		}
		if !v.IsSymbolic() {
			return v.Target, nil
		}
		cur = v.Symbolic
	}
	return hash.ID{}, ErrTooManyHops
}

// PeelTag follows a tag-object chain using p until it reaches a
// non-tag object.
func PeelTag(p Peeler, id hash.ID) (hash.ID, error) {
	for {
		next, ok, err := p.Peel(id)
		if err != nil {
			return hash.ID{}, err
		}
		if !ok {
			return id, nil
		}
		id = next
	}
}

// Walk invokes fn for every loose reference name found by recursively
// descending root (e.g. "refs/heads" or the bare gitdir root for
// top-level pseudo-refs), skipping files whose name ends in ".lock". File
// contents are not read, so a file that is not valid loose ref content is
// still reported.
func (s *Store) Walk(root string, fn func(Name) error) error {
	return walk(s.fs, s.fs.Join(s.root, root), root, fn)
}

func walk(fs billy.Filesystem, abs, rel string, fn func(Name) error) error {
	entries, err := fs.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		childAbs := fs.Join(abs, e.Name())
		childRel := path.Join(rel, e.Name())
		if e.IsDir() {
			if err := walk(fs, childAbs, childRel, fn); err != nil {
				return err
			}
			continue
		}
		if strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		if err := fn(Name(childRel)); err != nil {
			return err
		}
	}
	return nil
}

func parentDir(fs billy.Filesystem, p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}
