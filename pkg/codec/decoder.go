package codec

import (
	"encoding/binary"
	"errors"
)

// minFieldSize is the smallest possible encoded field: two empty length prefixes.
const minFieldSize = 2 * lenSize

// FieldView is a zero-copy reference to a value inside a blob.
// It stays valid for as long as the blob does and must not outlive changes to it.
type FieldView struct {
	blob []byte
	off  int
	n    int
}

// Bytes returns the value bytes. The slice aliases the blob and is capped so
// appends cannot spill into neighbouring fields.
func (v FieldView) Bytes() []byte {
	return v.blob[v.off : v.off+v.n : v.off+v.n]
}

// String returns the value as a string (copied).
func (v FieldView) String() string {
	return string(v.Bytes())
}

// Len returns the value length.
func (v FieldView) Len() int { return v.n }

// Offset returns the position of the value within its blob.
func (v FieldView) Offset() int { return v.off }

// Copy returns a copy of the value that does not alias the blob.
func (v FieldView) Copy() []byte {
	out := make([]byte, v.n)
	copy(out, v.Bytes())
	return out
}

// Source returns a fresh ByteSource over the view, so a decoded value can be
// fed back into an Encoder.
func (v FieldView) Source() *BytesSource {
	return NewBytes(v.Bytes())
}

// Row is a decoded row.
type Row map[string]FieldView

// Selection is the set of field names a caller wants decoded.
// A nil Selection selects every field.
type Selection map[string]struct{}

// Select builds a Selection from names. With no names it returns an empty,
// non-nil Selection, which selects nothing.
func Select(names ...string) Selection {
	s := make(Selection, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is selected.
func (s Selection) Has(name string) bool {
	if s == nil {
		return true
	}
	_, ok := s[name]
	return ok
}

// Decode unpacks the selected fields of blob.
// Values are views into blob; nothing is copied.
func Decode(blob []byte, wanted Selection) (Row, error) {
	n, err := fieldCount(blob)
	if err != nil {
		return nil, err
	}

	size := n
	if wanted != nil && len(wanted) < size {
		size = len(wanted)
	}
	row := make(Row, size)

	if err := walk(blob, n, wanted, row); err != nil {
		return nil, err
	}
	return row, nil
}

// DecodeInto unpacks the selected fields of blob into dst, overwriting fields of
// the same name. dst is left untouched if blob is malformed.
func DecodeInto(blob []byte, wanted Selection, dst Row) error {
	if dst == nil {
		return errors.New("decode into nil row")
	}
	n, err := fieldCount(blob)
	if err != nil {
		return err
	}
	if err := walk(blob, n, Select(), nil); err != nil {
		return err
	}
	return walk(blob, n, wanted, dst)
}

// Validate checks that blob is a well-formed row.
func Validate(blob []byte) error {
	n, err := fieldCount(blob)
	if err != nil {
		return err
	}
	return walk(blob, n, Select(), nil)
}

// FieldCount returns the number of fields declared by blob.
func FieldCount(blob []byte) (int, error) {
	return fieldCount(blob)
}

func fieldCount(blob []byte) (int, error) {
	if len(blob) < lenSize {
		return 0, &Error{Kind: KindMalformedBlob, Need: lenSize, Have: len(blob)}
	}
	n := uint64(binary.LittleEndian.Uint32(blob))
	if rest := uint64(len(blob) - lenSize); n*minFieldSize > rest {
		return 0, &Error{Kind: KindMalformedBlob, Offset: lenSize, Need: int(n * minFieldSize), Have: int(rest)}
	}
	return int(n), nil
}

// walk parses n fields following the count, inserting selected ones into row.
// row may be nil when wanted selects nothing.
func walk(blob []byte, n int, wanted Selection, row Row) error {
	pos := lenSize
	for range n {
		klen, err := readLen(blob, pos, nil)
		if err != nil {
			return err
		}
		pos += lenSize
		key := blob[pos : pos+klen]
		pos += klen

		vlen, err := readLen(blob, pos, key)
		if err != nil {
			return err
		}
		pos += lenSize
		voff := pos
		pos += vlen

		if wanted == nil {
			row[string(key)] = FieldView{blob: blob, off: voff, n: vlen}
		} else if _, ok := wanted[string(key)]; ok {
			row[string(key)] = FieldView{blob: blob, off: voff, n: vlen}
		}
	}
	if pos != len(blob) {
		return &Error{Kind: KindMalformedBlob, Offset: pos, Reason: "trailing bytes"}
	}
	return nil
}

// readLen reads the length prefix at pos and checks that both the prefix and
// the bytes it announces lie within blob.
func readLen(blob []byte, pos int, field []byte) (int, error) {
	if len(blob)-pos < lenSize {
		return 0, &Error{Kind: KindMalformedBlob, Field: string(field), Offset: pos, Need: lenSize, Have: len(blob) - pos}
	}
	n := uint64(binary.LittleEndian.Uint32(blob[pos:]))
	rest := uint64(len(blob) - pos - lenSize)
	if n > rest {
		return 0, &Error{Kind: KindMalformedBlob, Field: string(field), Offset: pos + lenSize, Need: int(n), Have: int(rest)}
	}
	return int(n), nil
}
