package idxfile

import (
	"encoding/binary"
	"fmt"
)

// mtimesMagic and mtimesVersion identify the optional auxiliary file that
// records each packed object's approximate creation time, in the same
// entry order as the index's sorted id table. It exists so a GC-style
// "keep objects younger than N days" policy can be evaluated without
// opening every loose copy.
const (
	mtimesMagic   = "MTIM"
	mtimesVersion = uint32(1)
)

// Mtimes is a parallel table of Unix timestamps, one per entry in an
// Index's Entries slice (same order, same length).
type Mtimes struct {
	Times []int64
}

// DecodeMtimes parses an .mtimes file previously written by EncodeMtimes.
func DecodeMtimes(b []byte) (*Mtimes, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("%w: short mtimes file", ErrMalformed)
	}
	if string(b[:4]) != mtimesMagic {
		return nil, fmt.Errorf("%w: bad mtimes magic", ErrMalformed)
	}
	version := binary.BigEndian.Uint32(b[4:8])
	if version != mtimesVersion {
		return nil, fmt.Errorf("%w: mtimes v%d", ErrUnsupportedVersion, version)
	}
	body := b[8:]
	if len(body)%8 != 0 {
		return nil, fmt.Errorf("%w: truncated mtimes entry", ErrMalformed)
	}
	times := make([]int64, len(body)/8)
	for i := range times {
		times[i] = int64(binary.BigEndian.Uint64(body[i*8 : i*8+8]))
	}
	return &Mtimes{Times: times}, nil
}

// EncodeMtimes serializes times in Index.Entries order.
func EncodeMtimes(times []int64) []byte {
	out := make([]byte, 8+len(times)*8)
	copy(out, mtimesMagic)
	binary.BigEndian.PutUint32(out[4:8], mtimesVersion)
	for i, t := range times {
		binary.BigEndian.PutUint64(out[8+i*8:8+i*8+8], uint64(t))
	}
	return out
}

// At returns the recorded mtime for the entry at index i in the
// corresponding Index's Entries slice.
func (m *Mtimes) At(i int) (int64, bool) {
	if i < 0 || i >= len(m.Times) {
		return 0, false
	}
	return m.Times[i], true
}
