// Package linkproto implements the link-protocol header codec (C6): a
// sparsely composed header where each enabled feature registers a
// fixed-size field at a fixed offset, encoded little-endian, with no
// self-description on the wire (§4.5). It is the Go equivalent of the
// original SDK's `link_protocol.c` (see
// _examples/original_source/_INDEX.md), rebuilt field-registration style
// rather than hand-packed struct style so that header_size and field
// order both fall out of which fields a connection enables, matching
// §4.5's "core field set + composable fields" description exactly.
package linkproto

import "github.com/uwbstack/swc/internal/swcerr"

// FieldKind names one of the core header fields (§4.5).
type FieldKind int

const (
	FieldSeq FieldKind = iota
	FieldConnectionID
	FieldRDO
	FieldCredit
	FieldRanging
)

// fixedFieldSize is the fixed wire size of each field kind. Ranging's size is
// configured at registration time (§4.5: "ranging variable") since the
// SR1100 SDK varies it by ranging mode; every other field is fixed.
var fixedFieldSize = map[FieldKind]int{
	FieldSeq:         1,
	FieldConnectionID: 1,
	FieldRDO:          2,
	FieldCredit:       1,
}

// Field is one registered header field: its kind, wire size, and the
// offset Layout assigns it.
type Field struct {
	Kind   FieldKind
	Size   int
	Offset int
}

// Layout is the ordered, offset-assigned set of fields a connection (or
// a group of connections sharing a timeslot, §3) has enabled. Two
// Layouts must be field-for-field identical between a TX and its RX
// peer, since there is no self-description on the wire (§4.5).
type Layout struct {
	fields []Field
	size   int
}

// NewLayout builds a Layout from an ordered list of field kinds, each
// sized from fixedFieldSize — registration order is wire order. rangingSize is ignored unless
// FieldRanging is present.
func NewLayout(kinds []FieldKind, rangingSize int) (*Layout, error) {
	l := &Layout{}
	offset := 0
	for _, k := range kinds {
		size, ok := fixedFieldSize[k]
		if !ok {
			if k != FieldRanging {
				return nil, swcerr.New(swcerr.InvalidParameter, "unknown header field kind")
			}
			if rangingSize <= 0 {
				return nil, swcerr.New(swcerr.InvalidParameter, "ranging field registered with zero size")
			}
			size = rangingSize
		}
		l.fields = append(l.fields, Field{Kind: k, Size: size, Offset: offset})
		offset += size
	}
	l.size = offset
	return l, nil
}

// HeaderSize is the sum of enabled fields' sizes — every connection
// sharing a slot must agree on this value (§3, §4.5).
func (l *Layout) HeaderSize() int { return l.size }

// Fields returns the ordered field list (read-only use by callers that
// need to inspect the layout, e.g. for validation).
func (l *Layout) Fields() []Field { return l.fields }

// Equal reports whether two layouts are field-for-field, offset-for-
// offset identical — the invariant timeslot sharing requires (§3).
func (l *Layout) Equal(o *Layout) bool {
	if l.size != o.size || len(l.fields) != len(o.fields) {
		return false
	}
	for i := range l.fields {
		if l.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

// fieldOffset returns (offset, size, true) if kind is registered.
func (l *Layout) fieldOffset(kind FieldKind) (int, int, bool) {
	for _, f := range l.fields {
		if f.Kind == kind {
			return f.Offset, f.Size, true
		}
	}
	return 0, 0, false
}

// Has reports whether kind is part of this layout.
func (l *Layout) Has(kind FieldKind) bool {
	_, _, ok := l.fieldOffset(kind)
	return ok
}

// Header is a Layout paired with the byte region it is encoded into
// (typically an xlayer.Frame's header region).
type Header struct {
	Layout *Layout
	Bytes  []byte
}

func putLE(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
}

func getLE(b []byte) uint64 {
	var v uint64
	for i := range b {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// writeField little-endian-encodes value into kind's field, a no-op if
// kind is not registered in the layout (the connection simply doesn't
// carry that field).
func (h Header) writeField(kind FieldKind, value uint64) {
	off, size, ok := h.Layout.fieldOffset(kind)
	if !ok {
		return
	}
	putLE(h.Bytes[off:off+size], value)
}

func (h Header) readField(kind FieldKind) (uint64, bool) {
	off, size, ok := h.Layout.fieldOffset(kind)
	if !ok {
		return 0, false
	}
	return getLE(h.Bytes[off : off+size]), true
}

// EncodeSeq writes the 1-bit (stored as a byte) ARQ sequence field.
func (h Header) EncodeSeq(seq uint8) { h.writeField(FieldSeq, uint64(seq)) }

// DecodeSeq reads the sequence field.
func (h Header) DecodeSeq() (uint8, bool) {
	v, ok := h.readField(FieldSeq)
	return uint8(v), ok
}

// EncodeConnectionID writes the connection-id field.
func (h Header) EncodeConnectionID(id uint8) { h.writeField(FieldConnectionID, uint64(id)) }

// DecodeConnectionID reads the connection-id field.
func (h Header) DecodeConnectionID() (uint8, bool) {
	v, ok := h.readField(FieldConnectionID)
	return uint8(v), ok
}

// EncodeRDO writes the random-data-rate-offset field (§4.7).
func (h Header) EncodeRDO(rdo uint16) { h.writeField(FieldRDO, uint64(rdo)) }

// DecodeRDO reads the RDO field.
func (h Header) DecodeRDO() (uint16, bool) {
	v, ok := h.readField(FieldRDO)
	return uint16(v), ok
}

// EncodeCredit writes the credit-flow-control field (§3).
func (h Header) EncodeCredit(credit uint8) { h.writeField(FieldCredit, uint64(credit)) }

// DecodeCredit reads the credit field.
func (h Header) DecodeCredit() (uint8, bool) {
	v, ok := h.readField(FieldCredit)
	return uint8(v), ok
}

// EncodeRanging writes the variable-size ranging field, truncating value
// to the field's configured width.
func (h Header) EncodeRanging(value uint64) { h.writeField(FieldRanging, value) }

// DecodeRanging reads the ranging field.
func (h Header) DecodeRanging() (uint64, bool) {
	return h.readField(FieldRanging)
}
