// Package codec packs a row of named byte-string fields into a single blob and
// unpacks it again.
//
// A row is stored as one opaque binary column. The codec has no schema: every
// field value is an uninterpreted byte string and every field name is UTF-8 text.
//
// # Row Format
//
// All integers are 32-bit unsigned, little-endian:
//
//	[FieldCount(4)]([KeyLen(4)][Key][ValueLen(4)][Value])*
//
// The encoded size of a row is therefore:
//
//	4 + sum(4 + len(key) + 4 + len(value))
//
// Field order in the blob follows the iteration order of the map handed to the
// encoder. Decoding never depends on it.
//
// # Encoding
//
// An Encoder owns a fixed-capacity scratch buffer (DefaultBufferSize unless told
// otherwise). Field values are supplied as ByteSource values, which report their
// length up front and are drained straight into the scratch buffer. The finished
// row is copied out, so blobs returned by earlier calls are never touched by
// later ones.
//
//	enc := codec.NewEncoder(codec.DefaultBufferSize)
//	blob, err := enc.Encode(codec.Fields{
//	    "name": codec.NewBytes([]byte("ann")),
//	    "age":  codec.NewBytes([]byte("30")),
//	})
//
// The buffer never grows. A row that does not fit fails with ErrCapacityExceeded.
//
// # Decoding
//
// Decode walks the blob once and returns FieldView values that point back into
// it. Fields outside the requested Selection are skipped without being copied.
//
//	row, err := codec.Decode(blob, codec.Select("age"))
//	age := row["age"].Bytes()
//
// A nil Selection means every field. An empty, non-nil Selection yields an empty
// row. Every length prefix is checked against the bytes that remain; a blob that
// claims more data than it holds fails with ErrMalformedBlob.
//
// # Thread Safety
//
// An Encoder is not safe for concurrent use. Give each worker its own.
// Decode and DecodeInto hold no state and may run concurrently, even over the
// same blob.
package codec
