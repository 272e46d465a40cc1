package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

const (
	// DefaultBufferSize is the scratch capacity used when none is given (1 MiB).
	DefaultBufferSize = 1 << 20

	// lenSize is the width of every length prefix and of the field count.
	lenSize = 4
)

// Encoder packs rows into blobs using a reusable scratch buffer.
type Encoder struct {
	buf []byte
	pos int
}

// NewEncoder creates an encoder whose rows may be at most capacity bytes.
// A non-positive capacity selects DefaultBufferSize.
func NewEncoder(capacity int) *Encoder {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	if uint64(capacity) > math.MaxUint32 {
		capacity = math.MaxUint32
	}
	return &Encoder{buf: make([]byte, capacity)}
}

// Cap returns the largest blob this encoder can produce.
func (e *Encoder) Cap() int {
	return len(e.buf)
}

// Encode serializes fields into a new blob.
// Format: [FieldCount(4)]([KeyLen(4)][Key][ValueLen(4)][Value])*
//
// Every source in fields is drained. On error the returned blob is nil and the
// scratch contents are garbage until the next call, which starts from zero.
func (e *Encoder) Encode(fields Fields) ([]byte, error) {
	e.pos = 0

	if err := e.putLen(len(fields), ""); err != nil {
		return nil, err
	}

	for name, src := range fields {
		if !utf8.ValidString(name) {
			return nil, &Error{Kind: KindUnsupportedFieldEncoding, Field: name, Offset: e.pos}
		}
		if err := e.putLen(len(name), name); err != nil {
			return nil, err
		}
		if err := e.reserve(len(name), name); err != nil {
			return nil, err
		}
		e.pos += copy(e.buf[e.pos:], name)

		if src == nil {
			return nil, fmt.Errorf("field %q: nil byte source", name)
		}
		n := src.Remaining()
		if n < 0 {
			return nil, fmt.Errorf("field %q: negative length %d", name, n)
		}
		if err := e.putLen(n, name); err != nil {
			return nil, err
		}
		if err := e.reserve(n, name); err != nil {
			return nil, err
		}
		// Bound the slice so a source cannot write past its declared length.
		if err := src.DrainInto(e.buf[:e.pos+n], e.pos); err != nil {
			return nil, fmt.Errorf("field %q: drain value: %w", name, err)
		}
		e.pos += n
	}

	blob := make([]byte, e.pos)
	copy(blob, e.buf[:e.pos])
	return blob, nil
}

func (e *Encoder) putLen(n int, field string) error {
	if err := e.reserve(lenSize, field); err != nil {
		return err
	}
	if uint64(n) > math.MaxUint32 {
		return &Error{Kind: KindCapacityExceeded, Field: field, Offset: e.pos, Need: n, Have: math.MaxUint32}
	}
	binary.LittleEndian.PutUint32(e.buf[e.pos:], uint32(n))
	e.pos += lenSize
	return nil
}

func (e *Encoder) reserve(n int, field string) error {
	if have := len(e.buf) - e.pos; n > have {
		return &Error{Kind: KindCapacityExceeded, Field: field, Offset: e.pos, Need: n, Have: have}
	}
	return nil
}

// Size returns the encoded size of a row without draining any source.
func Size(fields Fields) int {
	size := lenSize
	for name, src := range fields {
		size += lenSize + len(name) + lenSize
		if src != nil {
			size += src.Remaining()
		}
	}
	return size
}
