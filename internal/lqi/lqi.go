// Package lqi implements the link-quality tracker (C3): running counts
// and tenth-dB-averaged RSSI/RNSI/margin per connection and per channel.
// It is the bookkeeping counterpart of the teacher's gpio.Level/periph
// RSSI-less world — nRF24 exposes no RSSI register at all, so this
// package is grounded directly on spec §4.3's description rather than
// adapted from teacher code; its conversion table and counter shape
// follow the original SR1100 SDK's `swc_stats.c` (see
// SPEC_FULL.md's "swc_stats" supplemented-feature note).
package lqi

// rawToTenthDB is the monotone raw-code (0-47) to tenth-dB lookup table
// described in §4.3. The table is linear in 2.0dB steps above a -100dB
// floor, without claiming calibration accuracy (calibration itself is out of
// the core's scope per §1).
var rawToTenthDB = func() [48]int16 {
	var t [48]int16
	for i := range t {
		t[i] = int16(-1000 + i*20) // -100.0dB at code 0, +2.0dB steps
	}
	return t
}()

// RawToTenthDB converts a raw 0-47 RSSI/RNSI code to tenth-dB units.
// Codes outside [0,47] clamp to the nearest valid entry.
func RawToTenthDB(raw uint8) int16 {
	if raw > 47 {
		raw = 47
	}
	return rawToTenthDB[raw]
}

// Counters holds the running event counts of §4.3.
type Counters struct {
	Sent       uint32
	Ack        uint32
	Nack       uint32
	Received   uint32
	Rejected   uint32
	Lost       uint32
	Duplicated uint32
}

// Tracker accumulates Counters plus cumulative raw RSSI/RNSI codes (so
// the average is computed lazily, avoiding a division per frame on the
// IRQ-context hot path).
type Tracker struct {
	Counters

	rssiSum, rnsiSum uint64
	sampleCount      uint32

	resetTick uint64
}

// NewTracker returns a zeroed tracker, with resetTick stamped by the
// caller via Reset once a tick source is available.
func NewTracker() *Tracker { return &Tracker{} }

// Reset zeroes all counters and records now for rate calculations (§4.3:
// "a reset records the current tick for rate calculations").
func (t *Tracker) Reset(now uint64) {
	*t = Tracker{resetTick: now}
}

// ResetTick returns the tick at which this tracker was last reset.
func (t *Tracker) ResetTick() uint64 { return t.resetTick }

// AddSample records one frame's raw RSSI/RNSI codes.
func (t *Tracker) AddSample(rssiRaw, rnsiRaw uint8) {
	t.rssiSum += uint64(rssiRaw)
	t.rnsiSum += uint64(rnsiRaw)
	t.sampleCount++
}

// AverageRSSITenthDB returns the running average RSSI in tenth-dB units,
// or 0 if no samples have been recorded.
func (t *Tracker) AverageRSSITenthDB() int16 {
	if t.sampleCount == 0 {
		return 0
	}
	avgRaw := uint8(t.rssiSum / uint64(t.sampleCount))
	return RawToTenthDB(avgRaw)
}

// AverageRNSITenthDB returns the running average RNSI (noise) in
// tenth-dB units.
func (t *Tracker) AverageRNSITenthDB() int16 {
	if t.sampleCount == 0 {
		return 0
	}
	avgRaw := uint8(t.rnsiSum / uint64(t.sampleCount))
	return RawToTenthDB(avgRaw)
}

// LinkMarginTenthDB is max(0, rssi-rnsi) in tenth-dB, per §4.3.
func (t *Tracker) LinkMarginTenthDB() int16 {
	m := t.AverageRSSITenthDB() - t.AverageRNSITenthDB()
	if m < 0 {
		return 0
	}
	return m
}

// SampleCount is the number of RSSI/RNSI samples folded into the running
// average.
func (t *Tracker) SampleCount() uint32 { return t.sampleCount }

// PerChannel tracks the same Tracker shape per channel index, used when
// a connection's LQI is optionally broken out by channel (§4.3: "per
// connection and (optionally) per-channel").
type PerChannel struct {
	Connection *Tracker
	Channels   []*Tracker
}

// NewPerChannel allocates a connection-level tracker plus numChannels
// per-channel trackers, a single allocation at setup time.
func NewPerChannel(numChannels int) *PerChannel {
	pc := &PerChannel{Connection: NewTracker()}
	pc.Channels = make([]*Tracker, numChannels)
	for i := range pc.Channels {
		pc.Channels[i] = NewTracker()
	}
	return pc
}
