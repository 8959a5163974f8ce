// Package gainloop implements the RX amplifier gain loop (C4): it tracks
// per-frame RSSI/RNSI codes and nudges a connection's RX gain setting so
// that the margin between signal and noise floor stays within a target
// band, the way an AGC loop would. Grounded on spec §4.4's mention that
// the PHY driver calls a "gain-loop update from raw RSSI" on every
// received frame (§4.10); the step/clamp shape follows the teacher's own
// register-level bit-field tables (nrf24.go's RF_SETUP/PALevel encoding)
// in spirit: small integer steps clamped to a valid register range.
package gainloop

// Loop tracks one connection's integrator-gain setting in response to
// observed RSSI.
type Loop struct {
	gain       int8
	minGain    int8
	maxGain    int8
	targetHi   int16 // tenth-dB: above this, step gain down
	targetLo   int16 // tenth-dB: below this, step gain up
	step       int8
}

// New returns a Loop starting at initialGain, stepping by step within
// [minGain,maxGain], targeting an RSSI band [targetLo,targetHi]
// tenth-dB.
func New(initialGain, minGain, maxGain, step int8, targetLo, targetHi int16) *Loop {
	return &Loop{
		gain:     clamp(initialGain, minGain, maxGain),
		minGain:  minGain,
		maxGain:  maxGain,
		targetHi: targetHi,
		targetLo: targetLo,
		step:     step,
	}
}

func clamp(v, lo, hi int8) int8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Gain returns the loop's current integrator-gain setting.
func (l *Loop) Gain() int8 { return l.gain }

// Update folds in one frame's RSSI (tenth-dB) and returns the (possibly
// unchanged) resulting gain. Called from PHY IRQ context per frame
// (§4.10); must not allocate.
func (l *Loop) Update(rssiTenthDB int16) int8 {
	switch {
	case rssiTenthDB > l.targetHi:
		l.gain = clamp(l.gain-l.step, l.minGain, l.maxGain)
	case rssiTenthDB < l.targetLo:
		l.gain = clamp(l.gain+l.step, l.minGain, l.maxGain)
	}
	return l.gain
}
