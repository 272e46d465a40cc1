package codec

import (
	"errors"
	"fmt"
)

// Kind classifies codec failures.
type Kind uint8

const (
	// KindCapacityExceeded means a row did not fit in the encoder's scratch buffer.
	KindCapacityExceeded Kind = iota + 1
	// KindMalformedBlob means a length prefix points past the end of the blob.
	KindMalformedBlob
	// KindUnsupportedFieldEncoding means a field name is not valid UTF-8.
	KindUnsupportedFieldEncoding
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrCapacityExceeded         = errors.New("encoding capacity exceeded")
	ErrMalformedBlob            = errors.New("malformed blob")
	ErrUnsupportedFieldEncoding = errors.New("unsupported field encoding")
)

func (k Kind) String() string {
	switch k {
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindMalformedBlob:
		return "malformed_blob"
	case KindUnsupportedFieldEncoding:
		return "unsupported_field_encoding"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindCapacityExceeded:
		return ErrCapacityExceeded
	case KindMalformedBlob:
		return ErrMalformedBlob
	case KindUnsupportedFieldEncoding:
		return ErrUnsupportedFieldEncoding
	default:
		return nil
	}
}

// Error is returned by Encode, Decode and DecodeInto.
type Error struct {
	Kind   Kind
	Field  string // field name, when known
	Offset int    // byte offset in the buffer or blob where the failure was found
	Need   int    // bytes required
	Have   int    // bytes available
	Reason string // extra detail, when Need/Have do not apply
}

func (e *Error) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s: field %q", msg, e.Field)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s at offset %d", msg, e.Reason, e.Offset)
	}
	if e.Need > 0 || e.Have > 0 {
		return fmt.Sprintf("%s: need %d bytes at offset %d, have %d", msg, e.Need, e.Offset, e.Have)
	}
	return fmt.Sprintf("%s at offset %d", msg, e.Offset)
}

// Unwrap lets errors.Is match the package sentinels.
func (e *Error) Unwrap() error {
	return e.Kind.sentinel()
}
