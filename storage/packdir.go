package storage

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/dietcache/vcscore/cache"
	"github.com/dietcache/vcscore/hash"
	"github.com/dietcache/vcscore/idxfile"
	"github.com/dietcache/vcscore/packfile"
)

// PackDir lists packs from "<root>/pack-*.pack" + matching ".idx" files,
// the on-disk layout a repack leaves behind once it replaces the previous
// pack set. It implements PackLister so a Handle can reload its pack list
// after ListPacks observes the directory change underneath it.
type PackDir struct {
	fs     billy.Filesystem
	root   string
	idKind hash.Kind
	cache  *cache.Cache
}

// NewPackDir returns a PackDir rooted at root (conventionally
// "objects/pack") within fs. c, if non-nil, is shared by every pack
// opened from this directory as their decode cache.
func NewPackDir(fs billy.Filesystem, root string, idKind hash.Kind, c *cache.Cache) *PackDir {
	return &PackDir{fs: fs, root: root, idKind: idKind, cache: c}
}

// ListPacks opens every "*.pack" file found directly under root together
// with its ".idx" companion, in lexical order (which, since pack names
// embed their trailer hash, is a stable but otherwise arbitrary order
// across packs). A ".pack" whose ".idx" is missing or unreadable fails the
// whole listing.
func (d *PackDir) ListPacks() ([]*OpenPack, error) {
	entries, err := d.fs.ReadDir(d.root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".pack") {
			names = append(names, strings.TrimSuffix(e.Name(), ".pack"))
		}
	}
	sort.Strings(names)

	packs := make([]*OpenPack, 0, len(names))
	for _, name := range names {
		op, err := d.open(name)
		if err != nil {
			return nil, fmt.Errorf("storage: opening pack %s: %w", name, err)
		}
		packs = append(packs, op)
	}
	return packs, nil
}

func (d *PackDir) open(name string) (*OpenPack, error) {
	idxData, err := readFile(d.fs, d.fs.Join(d.root, name+".idx"))
	if err != nil {
		return nil, err
	}
	idx, err := idxfile.Decode(idxData, d.idKind)
	if err != nil {
		return nil, err
	}

	f, err := d.fs.Open(d.fs.Join(d.root, name+".pack"))
	if err != nil {
		return nil, err
	}
	size, err := fileSize(d.fs, d.fs.Join(d.root, name+".pack"))
	if err != nil {
		f.Close()
		return nil, err
	}

	pack := packfile.NewPack(name, f, size, d.idKind,
		packfile.WithDecodeCache(d.cache),
		packfile.WithIndexLookup(idx.Find),
	)
	return &OpenPack{ID: name, Index: idx, Pack: pack}, nil
}

func readFile(fs billy.Filesystem, path string) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func fileSize(fs billy.Filesystem, path string) (int64, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
