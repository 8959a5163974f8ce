// Package schedule implements the TDMA schedule and sync (C9): an
// ordered sequence of timeslots, cyclic iteration, per-slot role
// classification, and drift correction on received sync frames (§4.8).
package schedule

import "github.com/uwbstack/swc/internal/swcerr"

// SleepLevel names how deeply the transceiver sleeps between slots
// (lighter wakes faster, deeper saves more power) — the GLOSSARY's
// Idle/Shallow/Deep levels.
type SleepLevel int

const (
	SleepIdle SleepLevel = iota
	SleepShallow
	SleepDeep
)

// lighter returns the lighter (faster-waking) of two sleep levels, used
// to compute a slot's effective sleep level as "the lightest among its
// active connections" (§4.8).
func lighter(a, b SleepLevel) SleepLevel {
	if a < b {
		return a
	}
	return b
}

// ConnRef identifies a connection by its source/destination addresses,
// enough for the schedule to classify roles without importing the
// connection package (which would create an import cycle: the
// connection owns a reference to its schedule position, not the other
// way around).
type ConnRef struct {
	ID          uint8
	Source      uint8
	Destination uint8
	AckEnabled  bool
	SleepLevel  SleepLevel
}

// Timeslot is one schedule entry (§3): duration in PLL cycles (converted
// from the configured microsecond duration at init), an ordered list of
// main connections, and an ordered list of auto-reply connections.
type Timeslot struct {
	DurationPLLCycles uint32
	Main              []ConnRef
	AutoReply         []ConnRef
}

// EffectiveSleepLevel is the lightest sleep level among the slot's
// active connections (§4.8 invariant #7).
func (ts Timeslot) EffectiveSleepLevel() SleepLevel {
	level := SleepDeep
	for _, c := range ts.Main {
		level = lighter(level, c.SleepLevel)
	}
	for _, c := range ts.AutoReply {
		level = lighter(level, c.SleepLevel)
	}
	return level
}

// Role is what the local node does in a given timeslot, computed once at
// init per §4.8's per-slot classification rules.
type Role int

const (
	RoleSleep Role = iota
	RoleTXMain
	RoleRXMain
	RoleTXAutoReply
	RoleRXAutoReply
)

func (r Role) String() string {
	switch r {
	case RoleTXMain:
		return "TX_MAIN"
	case RoleRXMain:
		return "RX_MAIN"
	case RoleTXAutoReply:
		return "TX_AUTO_REPLY"
	case RoleRXAutoReply:
		return "RX_AUTO_REPLY"
	default:
		return "SLEEP"
	}
}

const broadcastAddress = 0xFF

// ClassifySlot computes the local node's role for one timeslot, per the
// exact rules of §4.8:
//
//	TX main:        local == first_main.source
//	RX main:        local == first_main.destination
//	TX auto-reply:  slot is RX main AND auto-reply.source == local
//	RX auto-reply:  slot is TX main AND (auto-reply.destination == local OR broadcast)
//	Sleep otherwise.
func ClassifySlot(ts Timeslot, localAddress uint8) Role {
	isTXMain, isRXMain := false, false
	if len(ts.Main) > 0 {
		first := ts.Main[0]
		isTXMain = localAddress == first.Source
		isRXMain = localAddress == first.Destination
	}
	if isTXMain {
		if len(ts.AutoReply) > 0 {
			ar := ts.AutoReply[0]
			if ar.Destination == localAddress || ar.Destination == broadcastAddress {
				return RoleRXAutoReply
			}
		}
		return RoleTXMain
	}
	if isRXMain {
		if len(ts.AutoReply) > 0 {
			ar := ts.AutoReply[0]
			if ar.Source == localAddress {
				return RoleTXAutoReply
			}
		}
		return RoleRXMain
	}
	return RoleSleep
}

// ValidateSlotInvariants checks two of the §3 within-slot invariants
// across a slot's main connections: equal header size and ack-enable
// parity with the first main connection. headerSizeOf is supplied by the
// caller (mac/connection package) since schedule has no notion of header
// layout itself. It does not compare link-protocol layouts field by
// field, frame configuration or credit-flow settings, and does not look
// at auto-reply connections.
func ValidateSlotInvariants(ts Timeslot, headerSizeOf func(ConnRef) int) error {
	if len(ts.Main) == 0 {
		return nil
	}
	first := ts.Main[0]
	firstHdr := headerSizeOf(first)
	for _, c := range ts.Main[1:] {
		if headerSizeOf(c) != firstHdr {
			return swcerr.New(swcerr.NonMatchingSameTimeslotConnField, "connections sharing a timeslot must agree on header_size")
		}
		if c.AckEnabled != first.AckEnabled {
			return swcerr.New(swcerr.NonMatchingSameTimeslotConnField, "if ack is enabled on the first main connection it must be enabled on all")
		}
	}
	return nil
}

// Cycle is the ordered sequence of Timeslots plus the channel-sequence
// index table, iterated cyclically by the MAC (§3, §4.8).
type Cycle struct {
	Slots          []Timeslot
	ChannelSeqIdx  []int
	currentSlot    int
	currentChannel int
}

// NewCycle validates that there is at least one timeslot and one
// channel-sequence entry and that no timeslot duration is zero, and
// returns a Cycle positioned at slot 0.
func NewCycle(slots []Timeslot, channelSeqIdx []int) (*Cycle, error) {
	if len(slots) == 0 {
		return nil, swcerr.New(swcerr.ZeroTimeslotCount, "schedule must have at least one timeslot")
	}
	if len(channelSeqIdx) == 0 {
		return nil, swcerr.New(swcerr.ZeroChanSeqLen, "channel sequence must have at least one entry")
	}
	for _, s := range slots {
		if s.DurationPLLCycles == 0 {
			return nil, swcerr.New(swcerr.NullTimeslotDuration, "timeslot duration must be non-zero")
		}
	}
	return &Cycle{Slots: slots, ChannelSeqIdx: channelSeqIdx}, nil
}

// TotalDurationPLLCycles sums every slot's duration — invariant #6's
// "sum(durations) equals configured cycle".
func (c *Cycle) TotalDurationPLLCycles() uint64 {
	var total uint64
	for _, s := range c.Slots {
		total += uint64(s.DurationPLLCycles)
	}
	return total
}

// CurrentSlotIndex returns the slot index the cycle is presently on.
func (c *Cycle) CurrentSlotIndex() int { return c.currentSlot }

// CurrentChannelIndex returns the current position in the channel
// sequence.
func (c *Cycle) CurrentChannelIndex() int { return c.currentChannel }

// CurrentChannel resolves the current channel-sequence position to a
// channel-table index.
func (c *Cycle) CurrentChannel() int { return c.ChannelSeqIdx[c.currentChannel] }

// Advance moves to the next slot (monotonically, modulo cycle length —
// invariant #6) and the next channel-sequence position, optionally
// permuted by randomPermutation (nil for the plain cyclic sequence).
func (c *Cycle) Advance(randomPermutation []int) {
	c.currentSlot = (c.currentSlot + 1) % len(c.Slots)
	if randomPermutation != nil {
		c.currentChannel = randomPermutation[(c.currentChannel+1)%len(randomPermutation)]
	} else {
		c.currentChannel = (c.currentChannel + 1) % len(c.ChannelSeqIdx)
	}
}

// Slot returns the timeslot at the cycle's current position.
func (c *Cycle) Slot() Timeslot { return c.Slots[c.currentSlot] }

// SyncTracker implements the drift-correction half of §4.8: on each
// successfully received sync frame the receiver adjusts its next wakeup
// by the measured phase offset (clamped), and on prolonged sync loss it
// widens its RX window.
type SyncTracker struct {
	maxAdjustPLLCycles int32
	lossThresholdTicks uint64

	lastSyncTick    uint64
	widenedRXWindow bool
}

// NewSyncTracker returns a tracker with the given adjustment clamp and
// loss threshold.
func NewSyncTracker(maxAdjustPLLCycles int32, lossThresholdTicks uint64) *SyncTracker {
	return &SyncTracker{maxAdjustPLLCycles: maxAdjustPLLCycles, lossThresholdTicks: lossThresholdTicks}
}

// OnSyncFrame records a received sync frame and returns the clamped
// phase adjustment to apply to the next wakeup.
func (s *SyncTracker) OnSyncFrame(now uint64, measuredOffsetPLLCycles int32) int32 {
	s.lastSyncTick = now
	s.widenedRXWindow = false
	if measuredOffsetPLLCycles > s.maxAdjustPLLCycles {
		return s.maxAdjustPLLCycles
	}
	if measuredOffsetPLLCycles < -s.maxAdjustPLLCycles {
		return -s.maxAdjustPLLCycles
	}
	return measuredOffsetPLLCycles
}

// CheckSyncLoss reports whether the receiver should widen its RX window
// due to prolonged sync loss, given the current tick.
func (s *SyncTracker) CheckSyncLoss(now uint64) (widen bool) {
	if now-s.lastSyncTick > s.lossThresholdTicks {
		s.widenedRXWindow = true
	}
	return s.widenedRXWindow
}
