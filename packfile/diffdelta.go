package packfile

// DiffDelta computes a delta that transforms base into target: a
// base-size/target-size varint pair followed by copy/insert instructions,
// in the form ApplyDelta consumes. The matcher is a simple block-hash
// scheme (16-byte blocks), not the optimal diff git itself computes, but it
// produces a correct, generally compact delta for any input pair.
func DiffDelta(base, target []byte) []byte {
	out := EncodeDeltaSize(uint64(len(base)))
	out = append(out, EncodeDeltaSize(uint64(len(target)))...)

	const blockSize = 16
	index := make(map[uint64][]int)
	if len(base) >= blockSize {
		for i := 0; i+blockSize <= len(base); i += blockSize {
			h := blockHash(base[i : i+blockSize])
			index[h] = append(index[h], i)
		}
	}

	var insertBuf []byte
	flushInsert := func() {
		for len(insertBuf) > 0 {
			n := len(insertBuf)
			if n > 127 {
				n = 127
			}
			out = append(out, byte(n))
			out = append(out, insertBuf[:n]...)
			insertBuf = insertBuf[n:]
		}
	}

	i := 0
	for i < len(target) {
		matched := false
		if i+blockSize <= len(target) {
			h := blockHash(target[i : i+blockSize])
			for _, candidate := range index[h] {
				if !equalAt(base, target, candidate, i, blockSize) {
					continue
				}
				// Extend the match forward as far as possible.
				bi, ti := candidate, i
				for bi < len(base) && ti < len(target) && base[bi] == target[ti] {
					bi++
					ti++
				}
				length := ti - i
				if length < blockSize {
					continue
				}
				flushInsert()
				out = append(out, encodeCopy(candidate, length)...)
				i = ti
				matched = true
				break
			}
		}
		if !matched {
			insertBuf = append(insertBuf, target[i])
			i++
		}
	}
	flushInsert()
	return out
}

func blockHash(b []byte) uint64 {
	var h uint64 = 14695981039346656037
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}

func equalAt(base, target []byte, bi, ti, n int) bool {
	if bi+n > len(base) || ti+n > len(target) {
		return false
	}
	for k := 0; k < n; k++ {
		if base[bi+k] != target[ti+k] {
			return false
		}
	}
	return true
}

// encodeCopy emits copy instructions for a matched run, splitting it into
// chunks no larger than the 16-bit size field's effective maximum (0 means
// 0x10000 on decode).
func encodeCopy(offset, length int) []byte {
	var out []byte
	const maxCopy = 0x10000
	for length > 0 {
		n := length
		if n > maxCopy {
			n = maxCopy
		}
		out = append(out, encodeOneCopy(offset, n)...)
		offset += n
		length -= n
	}
	return out
}

func encodeOneCopy(offset, size int) []byte {
	cmd := byte(0x80)
	var fields []byte

	off := uint32(offset)
	for i, shift := range []uint{0, 8, 16, 24} {
		b := byte(off >> shift)
		if b != 0 {
			cmd |= 1 << uint(i)
			fields = append(fields, b)
		}
	}
	// size==0x10000 is encoded as the "0" size field by convention.
	sz := uint32(size)
	if sz == maxCopySize {
		sz = 0
	}
	for i, shift := range []uint{0, 8, 16} {
		b := byte(sz >> shift)
		if b != 0 {
			cmd |= 1 << uint(4+i)
			fields = append(fields, b)
		}
	}

	return append([]byte{cmd}, fields...)
}

const maxCopySize = 0x10000
