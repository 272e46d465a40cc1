package codec

import (
	"errors"
	"io"
)

// ByteSource is a one-shot field value of known length.
//
// Remaining reports how many bytes DrainInto will write. DrainInto copies the
// whole value into buf starting at off and exhausts the source; calling it a
// second time is not supported.
type ByteSource interface {
	Remaining() int
	DrainInto(buf []byte, off int) error
}

// Fields maps field names to their values for one row.
type Fields map[string]ByteSource

// ErrSourceDrained is returned when a BytesSource is drained twice.
var ErrSourceDrained = errors.New("byte source already drained")

// BytesSource is a ByteSource over an in-memory slice. The slice is not copied.
type BytesSource struct {
	b       []byte
	drained bool
}

// NewBytes wraps b as a ByteSource.
func NewBytes(b []byte) *BytesSource {
	return &BytesSource{b: b}
}

// NewString wraps s as a ByteSource.
func NewString(s string) *BytesSource {
	return &BytesSource{b: []byte(s)}
}

// Remaining returns the number of bytes left to drain.
func (s *BytesSource) Remaining() int {
	if s.drained {
		return 0
	}
	return len(s.b)
}

// DrainInto copies the value into buf[off:].
func (s *BytesSource) DrainInto(buf []byte, off int) error {
	if s.drained {
		return ErrSourceDrained
	}
	if off < 0 || len(buf)-off < len(s.b) {
		return io.ErrShortBuffer
	}
	copy(buf[off:], s.b)
	s.drained = true
	return nil
}

// FromStrings builds Fields from plain string values.
func FromStrings(values map[string]string) Fields {
	fields := make(Fields, len(values))
	for name, v := range values {
		fields[name] = NewString(v)
	}
	return fields
}

// FromBytes builds Fields from byte slice values.
func FromBytes(values map[string][]byte) Fields {
	fields := make(Fields, len(values))
	for name, v := range values {
		fields[name] = NewBytes(v)
	}
	return fields
}
