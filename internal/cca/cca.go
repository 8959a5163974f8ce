// Package cca implements clear-channel assessment, rate/power fallback,
// the shared random channel sequence, random-data-rate-offset (RDO), and
// distributed-desync concurrency (DDCM) — spec §4.7/C8. CCA retry
// spacing is expressed with github.com/cenkalti/backoff/v4's constant
// policy rather than a hand-rolled sleep/retry loop, since "sample up to
// try_count times with retry_time spacing" is exactly a bounded constant
// backoff, and backoff.Retry's PermanentError is a clean way to turn an
// exhausted budget into the FailAction decision without duplicating
// attempt-counting logic that arq.TxState already owns for ARQ.
package cca

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/uwbstack/swc/internal/swcerr"
)

// FailAction is the policy applied when CCA never finds a clear channel
// (§4.7).
type FailAction int

const (
	FailAbort FailAction = iota // cancel TX
	FailForce                   // transmit anyway
)

// Config is the per-connection CCA policy (§3: cca_enable, threshold,
// try_count, retry_time, fail_action).
type Config struct {
	Enabled    bool
	Threshold  int16 // tenth-dB energy threshold
	TryCount   int
	RetryTime  time.Duration
	FailAction FailAction
}

// EnergySampler samples instantaneous RX energy (tenth-dB) on the
// current channel. The PHY driver supplies this; cca has no radio access
// of its own.
type EnergySampler func() (int16, error)

// errClear is the backoff.PermanentError-wrapped sentinel used internally
// to stop retrying once the channel is found clear.
var errClear = errors.New("cca: channel clear")

// Assess runs the CCA algorithm: sample up to cfg.TryCount times spaced
// by cfg.RetryTime, stopping as soon as one sample is at/under
// threshold. Returns (clear=true) immediately if CCA is disabled.
// The sleep between attempts blocks the calling goroutine. internal/phy
// does not call Assess and does no energy sampling of its own; it only
// forwards a CCA-enable flag in RadioCfgOut.
func Assess(ctx context.Context, cfg Config, sample EnergySampler) (clear bool, attempts int, err error) {
	if !cfg.Enabled {
		return true, 0, nil
	}
	if cfg.TryCount <= 0 {
		return false, 0, swcerr.New(swcerr.CcaInvalidParameters, "cca try_count must be positive when enabled")
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.RetryTime), uint64(cfg.TryCount-1))
	b = backoff.WithContext(b, ctx)

	operation := func() error {
		attempts++
		energy, sampleErr := sample()
		if sampleErr != nil {
			return backoff.Permanent(sampleErr)
		}
		if energy <= cfg.Threshold {
			return backoff.Permanent(errClear)
		}
		return errBusyRetry
	}

	retryErr := backoff.Retry(operation, b)
	switch {
	case errors.Is(retryErr, errClear):
		return true, attempts, nil
	case errors.Is(retryErr, errBusyRetry):
		// all retries exhausted without error and without clearing
		return false, attempts, nil
	default:
		// backoff.Retry has already unwrapped the sampler's
		// PermanentError (or returned the context's error).
		return false, attempts, retryErr
	}
}

var errBusyRetry = errors.New("cca: channel busy, retrying")

// FallbackTier is one entry of the payload-size fallback table (§4.7):
// given current payload size, select the tier with the smallest
// threshold the size still falls below.
type FallbackTier struct {
	SizeThreshold int
	TxPulseCount  int
	TxPulseWidth  int
	TxPulseGain   int
	CCATryCount   int
}

// FallbackTable is a strictly-descending-by-threshold list of tiers.
type FallbackTable struct {
	tiers []FallbackTier
}

// NewFallbackTable validates that tiers are strictly descending by
// SizeThreshold (§4.7: "else InvalidParameter") and returns the table.
func NewFallbackTable(tiers []FallbackTier) (*FallbackTable, error) {
	for i := 1; i < len(tiers); i++ {
		if tiers[i].SizeThreshold >= tiers[i-1].SizeThreshold {
			return nil, swcerr.New(swcerr.InvalidParameter, "fallback tiers must be strictly descending by threshold")
		}
	}
	return &FallbackTable{tiers: append([]FallbackTier(nil), tiers...)}, nil
}

// Select returns the tier with the smallest threshold payloadSize is
// still below, scanning from the last (lowest-threshold) tier upward, or
// ok=false if payloadSize is at or above every tier's threshold (use the
// connection's base pulse config).
func (ft *FallbackTable) Select(payloadSize int) (FallbackTier, bool) {
	for i := len(ft.tiers) - 1; i >= 0; i-- {
		if payloadSize < ft.tiers[i].SizeThreshold {
			return ft.tiers[i], true
		}
	}
	return FallbackTier{}, false
}

// ChannelSequence derives a per-iteration channel permutation from a
// shared deterministic PRNG seeded by PAN id + cycle counter, so both
// ends of a link pick identical frequencies without exchanging state
// (§4.7).
type ChannelSequence struct {
	base []int
	seed uint64
}

// NewChannelSequence returns a sequence over channel indices
// [0,numChannels).
func NewChannelSequence(numChannels int, panID uint16) *ChannelSequence {
	base := make([]int, numChannels)
	for i := range base {
		base[i] = i
	}
	return &ChannelSequence{base: base, seed: uint64(panID)}
}

// splitmix64 is a small, fast, deterministic PRNG — chosen over
// math/rand so both coordinator and node, compiled on different targets,
// derive byte-identical permutations from the same seed without relying
// on a platform-specific math/rand algorithm version.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// Permutation returns the channel-index permutation for the given cycle
// counter, a deterministic Fisher-Yates shuffle seeded by
// panID+cycle.
func (cs *ChannelSequence) Permutation(cycle uint64) []int {
	perm := append([]int(nil), cs.base...)
	state := cs.seed ^ cycle
	for i := len(perm) - 1; i > 0; i-- {
		state = splitmix64(state)
		j := int(state % uint64(i+1))
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// RDO is the random-data-rate-offset generator (§4.7): both ends evolve
// a shared PLL-step offset in lockstep across a fixed window.
type RDO struct {
	windowSteps int
	stepIncr    int
	current     int
}

// NewRDO returns an RDO with the given total window (in PLL steps) and
// per-step increment.
func NewRDO(windowSteps, stepIncr int) *RDO {
	return &RDO{windowSteps: windowSteps, stepIncr: stepIncr}
}

// Advance moves the offset forward by one step, wrapping at the window
// boundary, and returns the new offset.
func (r *RDO) Advance() int {
	r.current = (r.current + r.stepIncr) % r.windowSteps
	return r.current
}

// Current returns the RDO's present offset without advancing it.
func (r *RDO) Current() int { return r.current }

// DDCM implements distributed desynchronization concurrency (§4.7): each
// side shifts its slot start by up to maxOffsetPLLCycles if no sync
// frame has been heard for syncLossMaxPLLCycles.
type DDCM struct {
	enabled              bool
	maxOffsetPLLCycles   uint32
	syncLossMaxPLLCycles uint64
	lastSyncTick         uint64
	seed                 uint64
}

// NewDDCM returns a DDCM controller. Certification mode disables DDCM
// entirely (§4.7, §4.10) by passing enabled=false.
func NewDDCM(enabled bool, maxOffsetPLLCycles uint32, syncLossMaxPLLCycles uint64, seed uint64) *DDCM {
	return &DDCM{enabled: enabled, maxOffsetPLLCycles: maxOffsetPLLCycles, syncLossMaxPLLCycles: syncLossMaxPLLCycles, seed: seed}
}

// OnSyncFrameHeard resets the sync-loss clock.
func (d *DDCM) OnSyncFrameHeard(now uint64) { d.lastSyncTick = now }

// SlotOffset returns the desync offset (in PLL cycles) to apply to the
// next slot start, 0 unless DDCM is enabled and sync has been lost for
// longer than syncLossMaxPLLCycles.
func (d *DDCM) SlotOffset(now uint64) uint32 {
	if !d.enabled {
		return 0
	}
	if now-d.lastSyncTick < d.syncLossMaxPLLCycles {
		return 0
	}
	d.seed = splitmix64(d.seed ^ now)
	return uint32(d.seed % uint64(d.maxOffsetPLLCycles+1))
}
