package frag

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestRoundTrip is invariant #4 of spec §8: for all N <= queue_size*MTU,
// send(msg[0..N]) then reassembly returns msg byte-exact.
func TestRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mtu := rapid.IntRange(1, 64).Draw(rt, "mtu")
		n := rapid.IntRange(0, 2000).Draw(rt, "n")
		msg := rapid.SliceOfN(rapid.Byte(), n, n).Draw(rt, "msg")

		plan, err := Split(len(msg), mtu)
		require.NoError(rt, err)
		require.Equal(rt, (len(msg)+mtu-1)/mtu, max1(plan.FragCount, len(msg)))

		reasm := NewReassembler(len(msg) + mtu)
		var result Result
		for i := 0; i < plan.FragCount; i++ {
			b, e := plan.FragmentBounds(i)
			result = reasm.Feed(i, plan.IsLast(i), msg[b:e])
		}
		require.Equal(rt, ResultComplete, result)
		require.Equal(rt, msg, reasm.Bytes())
	})
}

func max1(fragCount, n int) int {
	if n == 0 {
		return 0
	}
	return fragCount
}

func TestGapDiscardsMessage(t *testing.T) {
	reasm := NewReassembler(256)
	res := reasm.Feed(0, false, []byte("aaaa"))
	require.Equal(t, ResultPartial, res)
	// skip fragment 1, jump to index 2: gap
	res = reasm.Feed(2, true, []byte("cccc"))
	require.Equal(t, ResultRejected, res)
}

func TestFragmentCountMatchesCeilDiv(t *testing.T) {
	plan, err := Split(500, 124)
	require.NoError(t, err)
	require.Equal(t, 5, plan.FragCount) // ceil(500/124) == 5, scenario S4
}
