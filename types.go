package swc

import "github.com/uwbstack/swc/internal/schedule"

// ConcurrencyMode selects the RDO/DDCM concurrency strategy a Stack runs
// (§4.7, §9 invariant #11: mutually exclusive with certification mode).
type ConcurrencyMode int

const (
	ConcurrencyHighPerf ConcurrencyMode = iota
	ConcurrencyLowPerf
)

// ChipRate is one of the three UWB chip rates the transceiver supports
// (§6 init cfg).
type ChipRate int

const (
	ChipRate20_48MHz ChipRate = iota
	ChipRate27_30MHz
	ChipRate40_96MHz
)

// NetworkRole distinguishes the coordinator (sole pairing listener, sole
// discovery-list owner) from a node (sole pairing initiator) in a star
// network (§4.12).
type NetworkRole int

const (
	RoleCoordinator NetworkRole = iota
	RoleNode
)

// SleepLevel re-exports the schedule package's sleep-depth enum at the
// public surface, since connection_init callers choose it directly.
type SleepLevel = schedule.SleepLevel

const (
	SleepIdle    = schedule.SleepIdle
	SleepShallow = schedule.SleepShallow
	SleepDeep    = schedule.SleepDeep
)

// TimeslotID is the wire tag identifying a timeslot a connection
// participates in: the low 7 bits are the timeslot index, the high bit
// distinguishes an auto-reply slot from a main slot (§6: "integer tag
// with bit AUTO_REPLY (high bit)").
type TimeslotID uint8

const autoReplyBit TimeslotID = 1 << 7

// MAIN produces the TimeslotID for timeslot index i's main direction.
func MAIN(i uint8) TimeslotID { return TimeslotID(i) }

// AUTO produces the TimeslotID for timeslot index i's auto-reply
// direction.
func AUTO(i uint8) TimeslotID { return TimeslotID(i) | autoReplyBit }

// IsAutoReply reports whether this tag names an auto-reply slot.
func (t TimeslotID) IsAutoReply() bool { return t&autoReplyBit != 0 }

// Index returns the timeslot index this tag names, stripped of the
// AUTO_REPLY bit.
func (t TimeslotID) Index() uint8 { return uint8(t &^ autoReplyBit) }

// Reserved addresses rejected by node_init/connection_init unless the
// caller explicitly unlocks them for pairing (§6).
const (
	ReservedPanID    uint16 = 0x000
	ReservedAddrLow  uint8  = 0x00
	ReservedAddrHigh uint8  = 0xFF
)

func isReservedAddress(addr uint8) bool {
	return addr == ReservedAddrLow || addr == ReservedAddrHigh
}

// ChannelParams is one entry of a connection's channel list
// (connection_add_channel, §6): the carrier frequency parameter plus the
// TX/RX pulse configuration for that channel.
type ChannelParams struct {
	Freq        uint16
	TxPulseCount int
	TxPulseWidth int
	TxPulseGain  int
	RxPulseCount int
}

// Modulation names the on-air modulation a connection uses. OOK is
// IOOK with chip_repet bit 0 set (§9 open question: verified against the
// SR1100 datasheet terms in original_source/, not re-derived here).
type Modulation uint8

const (
	ModulationPPM Modulation = iota
	ModulationOOK
)

// FallbackConfig is the per-connection rate/power fallback table
// (§4.7).
type FallbackConfig struct {
	Tiers []FallbackTier
}

// FallbackTier mirrors internal/cca.FallbackTier at the public surface
// so callers never import an internal package directly.
type FallbackTier struct {
	SizeThreshold int
	TxPulseCount  int
	TxPulseWidth  int
	TxPulseGain   int
	CCATryCount   int
}

// CCAFailAction is the policy applied when CCA never finds a clear
// channel (§4.7).
type CCAFailAction int

const (
	CCAFailAbort CCAFailAction = iota
	CCAFailForce
)
