package wire

import (
	"encoding/binary"
	"fmt"
)

// idKey is the metadata map key the core uses to carry a request's
// correlation id across the wire. Implementations may carry additional
// keys transparently; the core only ever reads and writes this one.
const idKey = "avro.id"

// EncodeMetadata encodes a metadata blob carrying only the correlation id,
// as an Avro map<string, bytes>: one non-empty block of one item, the
// ("avro.id", zigzag-long-encoded id) pair, and the zero-length block-count
// terminator.
func EncodeMetadata(id uint64) []byte {
	value := appendLong(nil, int64(id))

	buf := make([]byte, 0, 32)
	buf = appendLong(buf, 1) // one block, of one item
	buf = appendString(buf, idKey)
	buf = appendBytes(buf, value)
	buf = appendLong(buf, 0) // terminating empty block

	return buf
}

// DecodeMetadata parses a metadata blob and returns the correlation id
// carried under the "avro.id" key. Any other keys present are skipped.
func DecodeMetadata(data []byte) (uint64, error) {
	d := decoder{buf: data}
	return decodeMetadataID(&d)
}

// decodeMetadataID consumes one Avro map<string,bytes> from d, advancing
// d.pos past it, and returns the correlation id carried under idKey. It is
// the shared core of DecodeMetadata and the call envelope decoders in
// envelope.go, which need to know where the metadata map ends so they can
// keep reading the fields that follow it in the same framed message.
func decodeMetadataID(d *decoder) (uint64, error) {
	var id uint64
	var found bool

	for {
		count, err := d.readLong()
		if err != nil {
			return 0, fmt.Errorf("avrorpc: wire: invalid metadata block count: %w", err)
		}
		if count == 0 {
			break
		}
		if count < 0 {
			// A negative block count is followed by its byte size; skip it,
			// the core has no use for it.
			if _, err := d.readLong(); err != nil {
				return 0, fmt.Errorf("avrorpc: wire: invalid metadata block size: %w", err)
			}
			count = -count
		}

		for i := int64(0); i < count; i++ {
			key, err := d.readString()
			if err != nil {
				return 0, fmt.Errorf("avrorpc: wire: invalid metadata key: %w", err)
			}

			value, err := d.readBytes()
			if err != nil {
				return 0, fmt.Errorf("avrorpc: wire: invalid metadata value: %w", err)
			}

			if key == idKey {
				vd := decoder{buf: value}
				raw, err := vd.readLong()
				if err != nil {
					return 0, fmt.Errorf("avrorpc: wire: invalid metadata id value: %w", err)
				}
				id = uint64(raw)
				found = true
			}
		}
	}

	if !found {
		return 0, fmt.Errorf("avrorpc: wire: metadata is missing the %q key", idKey)
	}

	return id, nil
}

// zigzagEncode maps a signed long onto an unsigned long so small magnitude
// values, positive or negative, encode to few bytes.
func zigzagEncode(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

func zigzagDecode(n uint64) int64 {
	return int64(n>>1) ^ -int64(n&1)
}

func appendLong(buf []byte, n int64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	u := zigzagEncode(n)
	i := 0
	for u >= 0x80 {
		tmp[i] = byte(u) | 0x80
		u >>= 7
		i++
	}
	tmp[i] = byte(u)
	return append(buf, tmp[:i+1]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendLong(buf, int64(len(s)))
	return append(buf, s...)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendLong(buf, int64(len(b)))
	return append(buf, b...)
}

// decoder reads Avro long/string/bytes primitives from a flat byte slice.
// It is a minimal, self-contained stand-in for the byte-level cursor the
// core's remaining components consume from the external type system (see
// the schema package) — metadata is simple enough that the core decodes it
// directly rather than round-tripping through that boundary.
type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) readLong() (int64, error) {
	var u uint64
	var shift uint
	for {
		if d.pos >= len(d.buf) {
			return 0, fmt.Errorf("avrorpc: wire: truncated varint")
		}
		b := d.buf[d.pos]
		d.pos++
		u |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("avrorpc: wire: varint overflow")
		}
	}
	return zigzagDecode(u), nil
}

func (d *decoder) readBytes() ([]byte, error) {
	n, err := d.readLong()
	if err != nil {
		return nil, err
	}
	if n < 0 || d.pos+int(n) > len(d.buf) {
		return nil, fmt.Errorf("avrorpc: wire: truncated bytes of length %d", n)
	}
	b := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return b, nil
}

func (d *decoder) readString() (string, error) {
	b, err := d.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
