// Package arq implements Stop-and-Wait ARQ (C5): a one-bit sequence
// number per connection, duplicate suppression on the receive side, and
// try/time deadline tracking on the transmit side (§4.4). Deadlines are
// expressed in Hal ticks, not wall time, per SPEC_FULL.md's ambient
// error-handling note — the core never calls a wall-clock API.
package arq

// Outcome of one TX attempt as seen by the ARQ state machine.
type Outcome int

const (
	// Pending means neither success nor deadline has been reached yet;
	// the caller should retransmit.
	Pending Outcome = iota
	Success
	// Dropped means a deadline was reached; the caller must fire
	// tx_dropped, not an error (§7: "ARQ drop surfaces as
	// tx_dropped_callback, not as an error code").
	Dropped
)

// Config is the per-connection ARQ policy (§3: arq_enable, try_deadline,
// time_deadline).
type Config struct {
	Enabled      bool
	TryDeadline  uint32 // 0 = infinite
	TimeDeadline uint64 // ticks; 0 = infinite
}

// TxState tracks one connection's outstanding Stop-and-Wait transmission.
type TxState struct {
	cfg Config

	seq uint8

	inFlight  bool
	tries     uint32
	startTick uint64
}

// NewTxState returns a TxState for the given policy, sequence starting
// at 0.
func NewTxState(cfg Config) *TxState { return &TxState{cfg: cfg} }

// NextSeq returns the sequence bit to stamp on a fresh (non-retry) frame.
func (s *TxState) NextSeq() uint8 { return s.seq }

// BeginAttempt records the start of a transmit attempt (first send or a
// retry) at tick `now`. Call exactly once per PHY submit.
func (s *TxState) BeginAttempt(now uint64) {
	if !s.inFlight {
		s.inFlight = true
		s.startTick = now
		s.tries = 0
	}
	s.tries++
}

// OnAckReceived reports that an ACK with the expected sequence arrived.
// Advances the sequence bit for the next frame and returns Success.
func (s *TxState) OnAckReceived() Outcome {
	s.inFlight = false
	s.seq ^= 1
	return Success
}

// OnNack evaluates the try/time deadlines after a NACK or unanswered
// send, given the current tick. Returns Pending (caller retransmits) or
// Dropped (caller fires tx_dropped; OnNack has already advanced the
// sequence bit so the next message doesn't inherit a stale duplicate
// marker). Success is never returned here.
func (s *TxState) OnNack(now uint64) Outcome {
	if !s.cfg.Enabled {
		// ARQ disabled: a NACK/miss is terminal immediately,
		// there is nothing to retry against.
		s.inFlight = false
		s.seq ^= 1
		return Dropped
	}
	if s.cfg.TryDeadline != 0 && s.tries >= s.cfg.TryDeadline {
		s.inFlight = false
		s.seq ^= 1
		return Dropped
	}
	if s.cfg.TimeDeadline != 0 && now-s.startTick >= s.cfg.TimeDeadline {
		s.inFlight = false
		s.seq ^= 1
		return Dropped
	}
	return Pending
}

// Tries returns the number of attempts made on the in-flight frame.
func (s *TxState) Tries() uint32 { return s.tries }

// RxState tracks one connection's duplicate-suppression state on the
// receive side (§4.4: "if sequence equals last-accepted, increment
// duplicated and discard; else accept").
type RxState struct {
	hasLast  bool
	lastSeq  uint8
}

// NewRxState returns a fresh RxState with no prior accepted sequence.
func NewRxState() *RxState { return &RxState{} }

// Accept reports whether a frame with the given sequence bit should be
// delivered (true) or discarded as a duplicate (false). On accept, it
// records the sequence as the new "last accepted".
func (s *RxState) Accept(seq uint8) bool {
	if s.hasLast && seq == s.lastSeq {
		return false
	}
	s.hasLast = true
	s.lastSeq = seq
	return true
}
