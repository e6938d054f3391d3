package object

// Blob is an opaque byte sequence. It carries no structure of its own; the
// tree entry that names it supplies file mode and name.
type Blob struct {
	data []byte
}

// NewBlob wraps raw bytes as a Blob.
func NewBlob(data []byte) *Blob { return &Blob{data: data} }

// Bytes returns the blob's payload. The caller must not mutate it.
func (b *Blob) Bytes() []byte { return b.data }

// Size returns the number of payload bytes.
func (b *Blob) Size() int64 { return int64(len(b.data)) }
