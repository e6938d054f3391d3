// Package objfile implements the loose-object on-disk codec: each object is
// stored as a single zlib-wrapped file at <root>/xx/yyyy…, where xx is the
// first hex byte of the object's id.
package objfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/zlib"

	"github.com/dietcache/vcscore/hash"
	"github.com/dietcache/vcscore/object"
)

var (
	ErrOverflow     = errors.New("objfile: write exceeds declared object size")
	ErrNegativeSize = errors.New("objfile: negative object size")
	ErrMalformed    = errors.New("objfile: malformed object header")
)

// Path returns the loose-object path fragment for id, relative to the
// objects root: "xx/yyyy…".
func Path(id hash.ID) string {
	s := id.String()
	return s[:2] + "/" + s[2:]
}

// Reader decodes a loose object: an inflating zlib stream wrapping a
// "<kind> <size>\x00" header followed by exactly size payload bytes.
type Reader struct {
	zr     io.ReadCloser
	kind   object.Kind
	size   int64
	read   int64
	hasher interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
	hdrRead bool
}

// NewReader wraps r, which must yield a zlib-compressed loose object
// stream, for header inspection and content streaming. idKind selects the
// hash used by Hash() to recompute the object's id as it streams past.
func NewReader(r io.Reader, idKind hash.Kind) (*Reader, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &Reader{zr: zr, hasher: idKind.Hasher()}, nil
}

// Header reads and parses the "<kind> <size>\x00" header, returning the
// declared kind and payload size. It must be called before any Read.
func (r *Reader) Header() (object.Kind, int64, error) {
	if r.hdrRead {
		return r.kind, r.size, nil
	}

	br := bufio.NewReader(r.zr)
	kindTok, err := br.ReadString(' ')
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kindTok = kindTok[:len(kindTok)-1]
	kind := object.KindFromString(kindTok)
	if kind == object.InvalidObject {
		return 0, 0, fmt.Errorf("%w: unknown kind %q", ErrMalformed, kindTok)
	}

	sizeTok, err := br.ReadString(0)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	sizeTok = sizeTok[:len(sizeTok)-1]
	size, err := strconv.ParseInt(sizeTok, 10, 64)
	if err != nil || size < 0 {
		return 0, 0, fmt.Errorf("%w: invalid size %q", ErrMalformed, sizeTok)
	}

	r.kind = kind
	r.size = size
	r.hdrRead = true
	r.hasher.Write(object.Header(kind, size))

	// Swap in the buffered reader so subsequent reads don't lose the
	// look-ahead bufio.Reader performed.
	r.zr = struct {
		io.Reader
		io.Closer
	}{Reader: br, Closer: r.zr}

	return kind, size, nil
}

// Read implements io.Reader over the payload bytes, hashing as it goes.
func (r *Reader) Read(p []byte) (int, error) {
	if !r.hdrRead {
		if _, _, err := r.Header(); err != nil {
			return 0, err
		}
	}
	if r.read >= r.size {
		return 0, io.EOF
	}
	max := r.size - r.read
	if int64(len(p)) > max {
		p = p[:max]
	}
	n, err := r.zr.Read(p)
	r.read += int64(n)
	r.hasher.Write(p[:n])
	if err == io.EOF && r.read < r.size {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// Hash returns the id computed from the header and the bytes read so far.
// It is only meaningful once every payload byte has been read.
func (r *Reader) Hash() hash.ID {
	id, _ := hash.FromBytes(r.hasher.Sum(nil))
	return id
}

// Close releases the underlying zlib stream.
func (r *Reader) Close() error { return r.zr.Close() }

// Writer encodes a loose object: it hashes and zlib-compresses a header
// followed by exactly the declared number of payload bytes.
type Writer struct {
	zw      *zlib.Writer
	dst     io.Writer
	size    int64
	written int64
	hasher  interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
	hdrWritten bool
}

// NewWriter wraps dst to receive a zlib-compressed loose object stream,
// hashed with idKind as it is written.
func NewWriter(dst io.Writer, idKind hash.Kind) *Writer {
	return &Writer{dst: dst, hasher: idKind.Hasher()}
}

// WriteHeader writes the "<kind> <size>\x00" header. It must be called
// exactly once, before any Write.
func (w *Writer) WriteHeader(kind object.Kind, size int64) error {
	if kind == object.InvalidObject {
		return fmt.Errorf("%w: invalid kind", ErrMalformed)
	}
	if size < 0 {
		return ErrNegativeSize
	}
	w.size = size
	w.zw = zlib.NewWriter(w.dst)
	hdr := object.Header(kind, size)
	w.hasher.Write(hdr)
	w.hdrWritten = true
	_, err := w.zw.Write(hdr)
	return err
}

// Write writes payload bytes, refusing to exceed the size declared to
// WriteHeader.
func (w *Writer) Write(p []byte) (int, error) {
	if !w.hdrWritten {
		return 0, fmt.Errorf("%w: header not written", ErrMalformed)
	}
	overflow := w.written+int64(len(p)) > w.size
	if overflow {
		allowed := w.size - w.written
		if allowed < 0 {
			allowed = 0
		}
		p = p[:allowed]
	}
	n, err := w.zw.Write(p)
	w.written += int64(n)
	w.hasher.Write(p[:n])
	if err != nil {
		return n, err
	}
	if overflow {
		return n, ErrOverflow
	}
	return n, nil
}

// Hash returns the id of everything written so far.
func (w *Writer) Hash() hash.ID {
	id, _ := hash.FromBytes(w.hasher.Sum(nil))
	return id
}

// Close flushes and closes the zlib stream.
func (w *Writer) Close() error {
	if w.zw == nil {
		return nil
	}
	return w.zw.Close()
}

// EncodeToBuffer compresses kind+payload into a fresh buffer and returns it
// along with the resulting object id, the convenience path used by the
// loose store's write path.
func EncodeToBuffer(kind object.Kind, payload []byte, idKind hash.Kind) (*bytes.Buffer, hash.ID, error) {
	var buf bytes.Buffer
	w := NewWriter(&buf, idKind)
	if err := w.WriteHeader(kind, int64(len(payload))); err != nil {
		return nil, hash.ID{}, err
	}
	if _, err := w.Write(payload); err != nil {
		return nil, hash.ID{}, err
	}
	if err := w.Close(); err != nil {
		return nil, hash.ID{}, err
	}
	return &buf, w.Hash(), nil
}
