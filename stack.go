// Package swc is the application-facing wireless connection engine: the
// public façade over internal/{schedule,mac,phy,multiradio,pairing,hal}
// implementing §6's external interface and §9's re-architected patterns
// (explicit Stack value instead of module-level globals, a single Hal
// capability object, Result-shaped errors, an arena allocated once at
// setup).
package swc

import (
	"time"

	"github.com/uwbstack/swc/internal/hal"
)

// Config is the board-wide configuration passed to Init (§6: "init(cfg)
// -> handle").
type Config struct {
	// TimeslotDurationsUs is the cycle's ordered slot durations in
	// microseconds; len(TimeslotDurationsUs) is the cycle's timeslot
	// count.
	TimeslotDurationsUs []uint32
	// ChannelSequence is the per-cycle channel index sequence (§3);
	// len(ChannelSequence) is the channel sequence length.
	ChannelSequence []int
	Concurrency     ConcurrencyMode
	ChipRate        ChipRate
	// Hal is the single capability object the stack drives everything
	// through (§9's "void-pointer facade" re-architecture).
	Hal hal.Hal
	// UnlockReservedAddresses permits pan_id == 0x000 and addresses in
	// {0x00, 0xFF}, needed only for pairing (§6).
	UnlockReservedAddresses bool
}

func (cfg Config) validate() error {
	if cfg.Hal == nil {
		return newErr(ErrNullPtr, "config.hal must not be nil")
	}
	if len(cfg.TimeslotDurationsUs) == 0 {
		return newErr(ErrZeroTimeslotCount, "config.timeslot_durations_us must be non-empty")
	}
	for _, d := range cfg.TimeslotDurationsUs {
		if d == 0 {
			return newErr(ErrNullTimeslotDuration, "timeslot duration must be non-zero")
		}
	}
	if len(cfg.ChannelSequence) == 0 {
		return newErr(ErrZeroChanSeqLen, "config.channel_sequence must be non-empty")
	}
	return nil
}

// Stack is the explicit, application-owned singleton §9 replaces the
// source's mutable module-level state with: one value per board, created
// by Init and handed to every Node/Connection it owns. There is no
// hidden global install point except the one IRQ-wiring step Connect
// performs.
type Stack struct {
	cfg        Config
	hal        hal.Hal
	tickFreqHz uint32

	nodes []*Node
}

// Init validates cfg and returns a Stack handle (§6).
func Init(cfg Config) (*Stack, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Stack{
		cfg:        cfg,
		hal:        cfg.Hal,
		tickFreqHz: cfg.Hal.TickFrequencyHz(),
	}, nil
}

// ticksFromDuration converts a wall-clock duration to this stack's Hal
// tick domain, the way every deadline (ARQ, pairing, CCA retry spacing)
// must be expressed per §5 ("the core never calls a wall-clock API").
func (s *Stack) ticksFromDuration(d time.Duration) uint64 {
	return hal.TicksFromDuration(d, s.tickFreqHz)
}
