// Package storage implements the multi-store handle: a composition of
// loose object directories and ordered packs that together answer object
// lookups by id or abbreviated prefix.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/go-git/go-billy/v5"

	"github.com/dietcache/vcscore/fsutil"
	"github.com/dietcache/vcscore/hash"
	"github.com/dietcache/vcscore/idxfile"
	"github.com/dietcache/vcscore/object"
	"github.com/dietcache/vcscore/objfile"
)

// ErrNotFound is returned when no loose object or pack entry matches a
// requested id.
var ErrNotFound = errors.New("storage: object not found")

// LooseStore is a single directory of loose, zlib-wrapped objects laid out
// two hex digits deep (objfile.Path), the form new objects are always
// written in before any repack packs them.
type LooseStore struct {
	fs     billy.Filesystem
	root   string
	idKind hash.Kind
}

// NewLooseStore returns a LooseStore rooted at root (conventionally
// "objects") within fs.
func NewLooseStore(fs billy.Filesystem, root string, idKind hash.Kind) *LooseStore {
	return &LooseStore{fs: fs, root: root, idKind: idKind}
}

func (l *LooseStore) path(id hash.ID) string {
	return l.fs.Join(l.root, objfile.Path(id))
}

// Has reports whether id has a loose object file.
func (l *LooseStore) Has(id hash.ID) bool {
	_, err := l.fs.Stat(l.path(id))
	return err == nil
}

// Get reads and fully decompresses the loose object stored at id.
func (l *LooseStore) Get(id hash.ID) (object.Kind, []byte, error) {
	f, err := l.fs.Open(l.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, err
	}
	defer f.Close()

	r, err := objfile.NewReader(f, l.idKind)
	if err != nil {
		return 0, nil, err
	}
	defer r.Close()

	kind, _, err := r.Header()
	if err != nil {
		return 0, nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, nil, err
	}
	return kind, data, nil
}

// Put writes payload as a new loose object, returning its id. The write is
// atomic: a temp file is built in full and renamed into place, so a reader
// never observes a partially written object.
func (l *LooseStore) Put(kind object.Kind, payload []byte) (hash.ID, error) {
	buf, id, err := objfile.EncodeToBuffer(kind, payload, l.idKind)
	if err != nil {
		return hash.ID{}, err
	}
	if l.Has(id) {
		return id, nil
	}

	p := l.path(id)
	dir := path.Dir(p)
	if dir == "." {
		dir = ""
	}
	if err := fsutil.MkdirAll(l.fs, dir, fsutil.DefaultRetryOptions()); err != nil {
		return hash.ID{}, err
	}

	tmp := fmt.Sprintf("%s.tmp-%d", p, os.Getpid())
	f, err := l.fs.Create(tmp)
	if err != nil {
		return hash.ID{}, err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		l.fs.Remove(tmp)
		return hash.ID{}, err
	}
	if err := f.Close(); err != nil {
		l.fs.Remove(tmp)
		return hash.ID{}, err
	}
	if err := l.fs.Rename(tmp, p); err != nil {
		l.fs.Remove(tmp)
		return hash.ID{}, err
	}
	return id, nil
}

// FindPrefix scans the directory for the prefix's first byte, returning
// every loose id sharing the prefix. It is the loose-store half of
// Handle.LookupPrefix.
func (l *LooseStore) FindPrefix(p hash.Prefix) ([]hash.ID, error) {
	full := p.ID().String()
	dirName := full[:2]
	entries, err := l.fs.ReadDir(l.fs.Join(l.root, dirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var matches []hash.ID
	for _, e := range entries {
		hex := dirName + e.Name()
		id, ok := hash.FromHex(hex)
		if !ok {
			continue
		}
		if id.HasPrefix(p) {
			matches = append(matches, id)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Compare(matches[j]) < 0 })
	return matches, nil
}

// LookupResult re-exports idxfile's three-way classification so callers of
// Handle.LookupPrefix don't need to import idxfile themselves.
type LookupResult = idxfile.LookupResult

const (
	NotFound  = idxfile.NotFound
	Unique    = idxfile.Unique
	Ambiguous = idxfile.Ambiguous
)
