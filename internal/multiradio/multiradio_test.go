package multiradio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMode0SwitchesOnlyPastHysteresis(t *testing.T) {
	c := NewCoordinator(Config{Mode: Mode0, AvgSampleCount: 3, HysteresisTenthDB: 50})
	require.Equal(t, Radio1, c.Leader())

	for i := 0; i < 3; i++ {
		c.ObserveFrame(Radio1, -500)
	}
	var switched bool
	for i := 0; i < 3; i++ {
		switched = c.ObserveFrame(Radio2, -480) || switched // only 20 tenth-dB better, below hysteresis
	}
	require.False(t, switched)
	require.Equal(t, Radio1, c.Leader())

	for i := 0; i < 3; i++ {
		switched = c.ObserveFrame(Radio2, -400) || switched // 100 tenth-dB better, exceeds hysteresis
	}
	require.True(t, switched)
	require.Equal(t, Radio2, c.Leader())
}

func TestMode1SwitchesAfterSustainedBelowThreshold(t *testing.T) {
	c := NewCoordinator(Config{Mode: Mode1, AvgSampleCount: 2, RSSIThresholdTenthDB: -500})
	require.Equal(t, Radio1, c.Leader())

	require.False(t, c.ObserveFrame(Radio1, -600))
	require.True(t, c.ObserveFrame(Radio1, -600))
	require.Equal(t, Radio2, c.Leader())
}

func TestMode1IgnoresNonLeaderSamples(t *testing.T) {
	c := NewCoordinator(Config{Mode: Mode1, AvgSampleCount: 1, RSSIThresholdTenthDB: -500})
	switched := c.ObserveFrame(Radio2, -900)
	require.False(t, switched)
	require.Equal(t, Radio1, c.Leader())
}

func TestOverrideForcesRadioRegardlessOfAlgorithm(t *testing.T) {
	c := NewCoordinator(Config{Mode: Mode1, AvgSampleCount: 1, RSSIThresholdTenthDB: -500, Override: OverrideRadio2})
	require.Equal(t, Radio2, c.Leader())
	c.ObserveFrame(Radio1, -900)
	require.Equal(t, Radio2, c.Leader(), "override pins the leader independent of observations")
}
