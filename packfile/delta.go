package packfile

import "fmt"

// ApplyDelta reconstructs a target buffer by replaying the copy/insert
// instructions in delta against base. delta is the payload of an OFS_DELTA
// or REF_DELTA entry, including the leading base-size and target-size
// varints.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	srcSize, delta, err := decodeDeltaSize(delta)
	if err != nil {
		return nil, err
	}
	if srcSize != uint64(len(base)) {
		return nil, fmt.Errorf("%w: delta base size mismatch", ErrMalformed)
	}

	targetSize, delta, err := decodeDeltaSize(delta)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, targetSize)
	for len(delta) > 0 {
		cmd := delta[0]
		delta = delta[1:]

		if cmd&0x80 != 0 {
			// Copy from base: cmd's low 7 bits each gate whether the
			// corresponding offset/size byte is present.
			var offset, size uint64
			for i, bit := range []byte{0x01, 0x02, 0x04, 0x08} {
				if cmd&bit != 0 {
					if len(delta) == 0 {
						return nil, fmt.Errorf("%w: truncated copy offset", ErrMalformed)
					}
					offset |= uint64(delta[0]) << (8 * uint(i))
					delta = delta[1:]
				}
			}
			for i, bit := range []byte{0x10, 0x20, 0x40} {
				if cmd&bit != 0 {
					if len(delta) == 0 {
						return nil, fmt.Errorf("%w: truncated copy size", ErrMalformed)
					}
					size |= uint64(delta[0]) << (8 * uint(i))
					delta = delta[1:]
				}
			}
			if size == 0 {
				size = 0x10000
			}
			if offset+size > uint64(len(base)) {
				return nil, fmt.Errorf("%w: copy exceeds base", ErrMalformed)
			}
			out = append(out, base[offset:offset+size]...)
		} else if cmd != 0 {
			// Insert cmd bytes taken verbatim from the delta stream.
			size := int(cmd)
			if size > len(delta) {
				return nil, fmt.Errorf("%w: truncated insert", ErrMalformed)
			}
			out = append(out, delta[:size]...)
			delta = delta[size:]
		} else {
			return nil, fmt.Errorf("%w: zero delta opcode", ErrMalformed)
		}
	}

	if uint64(len(out)) != targetSize {
		return nil, fmt.Errorf("%w: delta produced %d bytes, want %d", ErrMalformed, len(out), targetSize)
	}
	return out, nil
}

// decodeDeltaSize reads a LEB128-encoded size prefix, returning the
// remaining bytes.
func decodeDeltaSize(b []byte) (uint64, []byte, error) {
	var size uint64
	shift := uint(0)
	for {
		if len(b) == 0 {
			return 0, nil, fmt.Errorf("%w: truncated delta size", ErrMalformed)
		}
		c := b[0]
		b = b[1:]
		size |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			break
		}
		shift += 7
	}
	return size, b, nil
}

// EncodeDeltaSize serializes a LEB128 size prefix.
func EncodeDeltaSize(n uint64) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if n == 0 {
			break
		}
	}
	return out
}
