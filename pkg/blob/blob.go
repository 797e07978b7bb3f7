// Package blob converts nullable binary values to and from the
// representation stored in a binary column.
//
// An absent value is stored as SQL NULL. A present value, including a
// zero-length one, is stored as a small header followed by the payload, so the
// distinction between "no picture" and "empty picture" survives drivers that
// return zero-length blobs as nil.
package blob

import (
	"bytes"
	"strconv"
)

// Blob is an optional byte sequence. The zero value is absent.
type Blob struct {
	data    []byte
	present bool
}

// Of returns a present blob holding b. A nil b yields a present, zero-length blob.
func Of(b []byte) Blob {
	if b == nil {
		b = []byte{}
	}
	return Blob{data: b, present: true}
}

// FromBytes treats a nil slice as absent and any other slice as present.
func FromBytes(b []byte) Blob {
	if b == nil {
		return Absent()
	}
	return Of(b)
}

// Absent returns the absent marker.
func Absent() Blob {
	return Blob{}
}

// Present reports whether the blob holds a value.
func (b Blob) Present() bool {
	return b.present
}

// Bytes returns the payload, or nil when absent.
func (b Blob) Bytes() []byte {
	if !b.present {
		return nil
	}
	return b.data
}

// Len returns the payload length; 0 when absent.
func (b Blob) Len() int {
	return len(b.data)
}

// Equal reports whether both blobs are absent, or both present with equal bytes.
func (b Blob) Equal(other Blob) bool {
	if b.present != other.present {
		return false
	}
	return bytes.Equal(b.data, other.data)
}

// String implements fmt.Stringer without dumping the payload.
func (b Blob) String() string {
	if !b.present {
		return "<absent>"
	}
	return "<blob " + strconv.Itoa(len(b.data)) + " bytes>"
}
