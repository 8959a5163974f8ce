package arq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTxEventuallyTerminates is invariant #2 of spec §8: every non-dropped
// TX eventually produces exactly one of {success, dropped}; never both.
func TestTxEventuallyTerminates(t *testing.T) {
	s := NewTxState(Config{Enabled: true, TryDeadline: 5, TimeDeadline: 0})
	var now uint64
	terminal := false
	for i := 0; i < 5; i++ {
		require.False(t, terminal, "must not continue after a terminal outcome")
		s.BeginAttempt(now)
		out := s.OnNack(now)
		now++
		if out == Dropped {
			terminal = true
		}
	}
	require.True(t, terminal, "try_deadline=5 must drop by the 5th attempt")
}

func TestTxSuccessStopsRetrying(t *testing.T) {
	s := NewTxState(Config{Enabled: true, TryDeadline: 5})
	s.BeginAttempt(0)
	require.Equal(t, Success, s.OnAckReceived())
	require.Equal(t, uint32(1), s.Tries())
}

func TestTimeDeadlineDropsWithoutExhaustingTries(t *testing.T) {
	s := NewTxState(Config{Enabled: true, TryDeadline: 0, TimeDeadline: 100})
	s.BeginAttempt(0)
	require.Equal(t, Pending, s.OnNack(50))
	require.Equal(t, Dropped, s.OnNack(150))
}

// TestDedupDeliversExactlyTwo is invariant #3 / scenario-style check:
// sequence bits (s, s, s̄) deliver exactly two payloads, in order.
func TestDedupDeliversExactlyTwo(t *testing.T) {
	r := NewRxState()
	var delivered []uint8
	for _, seq := range []uint8{0, 0, 1} {
		if r.Accept(seq) {
			delivered = append(delivered, seq)
		}
	}
	require.Equal(t, []uint8{0, 1}, delivered)
}

func TestSeqAlternatesAcrossSuccessfulSends(t *testing.T) {
	s := NewTxState(Config{Enabled: true})
	require.Equal(t, uint8(0), s.NextSeq())
	s.BeginAttempt(0)
	s.OnAckReceived()
	require.Equal(t, uint8(1), s.NextSeq())
	s.BeginAttempt(0)
	s.OnAckReceived()
	require.Equal(t, uint8(0), s.NextSeq())
}
