package linkproto

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestRoundTrip is invariant #5 of spec §8: encode then decode with the
// identical registered field set is the identity on valid field values.
func TestRoundTrip(t *testing.T) {
	layout, err := NewLayout([]FieldKind{FieldSeq, FieldConnectionID, FieldRDO, FieldCredit, FieldRanging}, 4)
	require.NoError(t, err)
	require.Equal(t, 1+1+2+1+4, layout.HeaderSize())

	buf := make([]byte, layout.HeaderSize())
	h := Header{Layout: layout, Bytes: buf}

	h.EncodeSeq(1)
	h.EncodeConnectionID(0x42)
	h.EncodeRDO(0xBEEF)
	h.EncodeCredit(7)
	h.EncodeRanging(0xDEADBEEF)

	seq, ok := h.DecodeSeq()
	require.True(t, ok)
	require.Equal(t, uint8(1), seq)

	id, ok := h.DecodeConnectionID()
	require.True(t, ok)
	require.Equal(t, uint8(0x42), id)

	rdo, ok := h.DecodeRDO()
	require.True(t, ok)
	require.Equal(t, uint16(0xBEEF), rdo)

	credit, ok := h.DecodeCredit()
	require.True(t, ok)
	require.Equal(t, uint8(7), credit)

	ranging, ok := h.DecodeRanging()
	require.True(t, ok)
	require.Equal(t, uint64(0xDEADBEEF), ranging)
}

func TestUnregisteredFieldIsNoop(t *testing.T) {
	layout, err := NewLayout([]FieldKind{FieldSeq}, 0)
	require.NoError(t, err)
	buf := make([]byte, layout.HeaderSize())
	h := Header{Layout: layout, Bytes: buf}
	h.EncodeCredit(9) // credit not registered: must not panic or corrupt seq
	_, ok := h.DecodeCredit()
	require.False(t, ok)
}

func TestLayoutEqualRequiresSameOffsetsAndOrder(t *testing.T) {
	a, _ := NewLayout([]FieldKind{FieldSeq, FieldCredit}, 0)
	b, _ := NewLayout([]FieldKind{FieldCredit, FieldSeq}, 0)
	require.False(t, a.Equal(b), "differing registration order must not be Equal")

	c, _ := NewLayout([]FieldKind{FieldSeq, FieldCredit}, 0)
	require.True(t, a.Equal(c))
}

// TestRoundTripProperty generalizes TestRoundTrip over random field
// subsets and values.
func TestRoundTripProperty(t *testing.T) {
	all := []FieldKind{FieldSeq, FieldConnectionID, FieldRDO, FieldCredit, FieldRanging}
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, len(all)).Draw(rt, "n")
		perm := rapid.Permutation(all).Draw(rt, "perm")[:n]
		rangingSize := rapid.IntRange(1, 8).Draw(rt, "rangingSize")

		layout, err := NewLayout(perm, rangingSize)
		require.NoError(rt, err)
		buf := make([]byte, layout.HeaderSize())
		h := Header{Layout: layout, Bytes: buf}

		seq := uint8(rapid.IntRange(0, 1).Draw(rt, "seq"))
		h.EncodeSeq(seq)
		if layout.Has(FieldSeq) {
			got, ok := h.DecodeSeq()
			require.True(rt, ok)
			require.Equal(rt, seq, got)
		}
	})
}
