package cca

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFallbackTableRejectsNonDescending(t *testing.T) {
	_, err := NewFallbackTable([]FallbackTier{
		{SizeThreshold: 50},
		{SizeThreshold: 100},
	})
	require.Error(t, err)
}

func TestFallbackSelectsFirstTierBelowThreshold(t *testing.T) {
	ft, err := NewFallbackTable([]FallbackTier{
		{SizeThreshold: 100, TxPulseCount: 1},
		{SizeThreshold: 50, TxPulseCount: 2},
		{SizeThreshold: 20, TxPulseCount: 3},
	})
	require.NoError(t, err)

	tier, ok := ft.Select(10)
	require.True(t, ok)
	require.Equal(t, 3, tier.TxPulseCount)

	tier, ok = ft.Select(60)
	require.True(t, ok)
	require.Equal(t, 1, tier.TxPulseCount)

	_, ok = ft.Select(200)
	require.False(t, ok)
}

func TestChannelSequenceDeterministicAcrossInstances(t *testing.T) {
	a := NewChannelSequence(16, 0x123)
	b := NewChannelSequence(16, 0x123)
	require.Equal(t, a.Permutation(7), b.Permutation(7), "both ends must derive the same permutation from the same seed+cycle")
	require.NotEqual(t, a.Permutation(7), a.Permutation(8), "different cycles should (almost always) differ")
}

func TestRDOAdvanceWrapsAtWindow(t *testing.T) {
	r := NewRDO(10, 3)
	require.Equal(t, 3, r.Advance())
	require.Equal(t, 6, r.Advance())
	require.Equal(t, 9, r.Advance())
	require.Equal(t, 2, r.Advance()) // wraps: 9+3=12 mod 10 = 2
}

func TestAssessDisabledIsClear(t *testing.T) {
	clear, attempts, err := Assess(context.Background(), Config{Enabled: false}, nil)
	require.NoError(t, err)
	require.True(t, clear)
	require.Equal(t, 0, attempts)
}

func TestAssessStopsOnFirstClearSample(t *testing.T) {
	n := 0
	sample := func() (int16, error) {
		n++
		return -100, nil // well under any sane threshold
	}
	clear, attempts, err := Assess(context.Background(), Config{
		Enabled: true, Threshold: -50, TryCount: 5, RetryTime: time.Millisecond,
	}, sample)
	require.NoError(t, err)
	require.True(t, clear)
	require.Equal(t, 1, attempts)
}

func TestAssessExhaustsRetriesWhenAlwaysBusy(t *testing.T) {
	sample := func() (int16, error) { return 0, nil } // always above threshold
	clear, attempts, err := Assess(context.Background(), Config{
		Enabled: true, Threshold: -50, TryCount: 3, RetryTime: time.Millisecond,
	}, sample)
	require.NoError(t, err)
	require.False(t, clear)
	require.Equal(t, 3, attempts)
}

func TestDDCMOffsetZeroUntilSyncLost(t *testing.T) {
	d := NewDDCM(true, 100, 1000, 42)
	d.OnSyncFrameHeard(0)
	require.Equal(t, uint32(0), d.SlotOffset(500))
	off := d.SlotOffset(2000)
	require.LessOrEqual(t, off, uint32(100))
}

func TestDDCMDisabledAlwaysZero(t *testing.T) {
	d := NewDDCM(false, 100, 1000, 42)
	require.Equal(t, uint32(0), d.SlotOffset(1_000_000))
}
