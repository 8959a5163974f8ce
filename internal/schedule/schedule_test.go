package schedule

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifySlotRoles(t *testing.T) {
	const local, peer uint8 = 1, 2

	main := ConnRef{Source: local, Destination: peer}
	require.Equal(t, RoleTXMain, ClassifySlot(Timeslot{Main: []ConnRef{main}}, local))

	main = ConnRef{Source: peer, Destination: local}
	require.Equal(t, RoleRXMain, ClassifySlot(Timeslot{Main: []ConnRef{main}}, local))

	main = ConnRef{Source: 9, Destination: 10}
	require.Equal(t, RoleSleep, ClassifySlot(Timeslot{Main: []ConnRef{main}}, local))
}

func TestClassifySlotAutoReplyOverridesMain(t *testing.T) {
	const local, peer uint8 = 1, 2
	main := ConnRef{Source: peer, Destination: local} // local is RX main
	auto := ConnRef{Source: local, Destination: peer} // local replies
	role := ClassifySlot(Timeslot{Main: []ConnRef{main}, AutoReply: []ConnRef{auto}}, local)
	require.Equal(t, RoleTXAutoReply, role)

	main = ConnRef{Source: local, Destination: peer} // local is TX main
	auto = ConnRef{Source: peer, Destination: local}  // peer auto-replies to local
	role = ClassifySlot(Timeslot{Main: []ConnRef{main}, AutoReply: []ConnRef{auto}}, local)
	require.Equal(t, RoleRXAutoReply, role)
}

func TestClassifySlotBroadcastAutoReply(t *testing.T) {
	const local, peer uint8 = 1, 2
	main := ConnRef{Source: local, Destination: peer}
	auto := ConnRef{Source: peer, Destination: broadcastAddress}
	role := ClassifySlot(Timeslot{Main: []ConnRef{main}, AutoReply: []ConnRef{auto}}, local)
	require.Equal(t, RoleRXAutoReply, role)
}

// TestCycleConservesTotalDuration is invariant #6 of spec §8: the sum of
// configured timeslot durations equals the configured cycle duration,
// and advancing never exceeds the configured slot count before wrapping.
func TestCycleConservesTotalDuration(t *testing.T) {
	slots := []Timeslot{
		{DurationPLLCycles: 100},
		{DurationPLLCycles: 200},
		{DurationPLLCycles: 300},
	}
	c, err := NewCycle(slots, []int{0, 1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, uint64(600), c.TotalDurationPLLCycles())

	for i := 0; i < 10; i++ {
		c.Advance(nil)
	}
	require.GreaterOrEqual(t, c.CurrentSlotIndex(), 0)
	require.Less(t, c.CurrentSlotIndex(), len(slots))
}

func TestNewCycleRejectsZeroSlots(t *testing.T) {
	_, err := NewCycle(nil, []int{0})
	require.Error(t, err)
}

func TestNewCycleRejectsZeroDuration(t *testing.T) {
	_, err := NewCycle([]Timeslot{{DurationPLLCycles: 0}}, []int{0})
	require.Error(t, err)
}

// TestEffectiveSleepLevelIsLightest is invariant #7 of spec §8: a slot's
// sleep level is the lightest (most awake) among its active connections.
func TestEffectiveSleepLevelIsLightest(t *testing.T) {
	ts := Timeslot{
		Main: []ConnRef{
			{SleepLevel: SleepDeep},
			{SleepLevel: SleepShallow},
		},
		AutoReply: []ConnRef{
			{SleepLevel: SleepDeep},
		},
	}
	require.Equal(t, SleepShallow, ts.EffectiveSleepLevel())
}

func TestEffectiveSleepLevelEmptySlotIsDeep(t *testing.T) {
	require.Equal(t, SleepDeep, Timeslot{}.EffectiveSleepLevel())
}

func TestValidateSlotInvariantsRejectsMismatchedHeaderSize(t *testing.T) {
	ts := Timeslot{Main: []ConnRef{
		{ID: 0, AckEnabled: true},
		{ID: 1, AckEnabled: true},
	}}
	err := ValidateSlotInvariants(ts, func(c ConnRef) int {
		if c.ID == 0 {
			return 4
		}
		return 6
	})
	require.Error(t, err)
}

func TestValidateSlotInvariantsRejectsMismatchedAck(t *testing.T) {
	ts := Timeslot{Main: []ConnRef{
		{ID: 0, AckEnabled: true},
		{ID: 1, AckEnabled: false},
	}}
	err := ValidateSlotInvariants(ts, func(ConnRef) int { return 4 })
	require.Error(t, err)
}

func TestSyncTrackerClampsAdjustment(t *testing.T) {
	s := NewSyncTracker(50, 1000)
	require.Equal(t, int32(50), s.OnSyncFrame(0, 200))
	require.Equal(t, int32(-50), s.OnSyncFrame(10, -200))
	require.Equal(t, int32(20), s.OnSyncFrame(20, 20))
}

func TestSyncTrackerWidensAfterLoss(t *testing.T) {
	s := NewSyncTracker(50, 1000)
	s.OnSyncFrame(0, 0)
	require.False(t, s.CheckSyncLoss(500))
	require.True(t, s.CheckSyncLoss(2000))
}
