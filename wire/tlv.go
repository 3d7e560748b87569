// Package wire implements capone's self-describing wire schema: a
// tag-length-value binary encoding shared by both ends of a framed
// channel. Each message type knows its own field tags; unknown or
// out-of-order tags are a Protocol error, never silently skipped,
// since both ends are always built from the same schema version.
package wire

import (
	"encoding/binary"

	"github.com/capone-project/capone/errs"
)

// Message is implemented by every wire type so it can be pushed
// through a channel's generic byte operations.
type Message interface {
	MarshalTLV() []byte
	UnmarshalTLV([]byte) error
}

// tlvWriter appends tag-length-value fields into a growing buffer.
type tlvWriter struct {
	buf []byte
}

func (w *tlvWriter) field(tag byte, value []byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(value)))
	w.buf = append(w.buf, tag)
	w.buf = append(w.buf, lenBuf[:n]...)
	w.buf = append(w.buf, value...)
}

func (w *tlvWriter) u32(tag byte, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.field(tag, b[:])
}

func (w *tlvWriter) i32(tag byte, v int32) {
	w.u32(tag, uint32(v))
}

func (w *tlvWriter) u8(tag byte, v uint8) {
	w.field(tag, []byte{v})
}

func (w *tlvWriter) str(tag byte, v string) {
	w.field(tag, []byte(v))
}

func (w *tlvWriter) bytes() []byte {
	return w.buf
}

// tlvField is one decoded tag-length-value record.
type tlvField struct {
	tag   byte
	value []byte
}

// parseTLV splits b into an ordered sequence of fields. It fails on a
// truncated length or value, which is a framing-level protocol error.
func parseTLV(b []byte) ([]tlvField, error) {
	var fields []tlvField
	for len(b) > 0 {
		if len(b) < 1 {
			return nil, errs.New(errs.Protocol, "tlv: truncated tag")
		}
		tag := b[0]
		b = b[1:]
		length, n := binary.Uvarint(b)
		if n <= 0 {
			return nil, errs.New(errs.Protocol, "tlv: truncated length")
		}
		b = b[n:]
		if uint64(len(b)) < length {
			return nil, errs.New(errs.Protocol, "tlv: truncated value")
		}
		fields = append(fields, tlvField{tag: tag, value: b[:length]})
		b = b[length:]
	}
	return fields, nil
}

// expectTags walks fields in order, requiring each to match wantTags
// exactly (same tags, same order, same count). This is strict on
// purpose: both ends share one schema version, so any mismatch is a
// genuine protocol error rather than a forward-compatibility case.
func expectTags(fields []tlvField, wantTags []byte) error {
	if len(fields) != len(wantTags) {
		return errs.New(errs.Protocol, "tlv: field count mismatch")
	}
	for i, want := range wantTags {
		if fields[i].tag != want {
			return errs.New(errs.Protocol, "tlv: unexpected field tag")
		}
	}
	return nil
}

func u32Of(f tlvField) (uint32, error) {
	if len(f.value) != 4 {
		return 0, errs.New(errs.Protocol, "tlv: u32 field wrong length")
	}
	return binary.BigEndian.Uint32(f.value), nil
}

func i32Of(f tlvField) (int32, error) {
	v, err := u32Of(f)
	return int32(v), err
}

func u8Of(f tlvField) (uint8, error) {
	if len(f.value) != 1 {
		return 0, errs.New(errs.Protocol, "tlv: u8 field wrong length")
	}
	return f.value[0], nil
}
