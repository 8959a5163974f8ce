// Package hal defines the capability surface the core wireless stack
// requires from the board. The core never talks to GPIO, SPI, or a timer
// peripheral directly; it is handed a Hal value at Init and drives
// everything through it. This is the "single Hal capability object"
// design note of SPEC_FULL.md: polymorphism across real hardware,
// simulated hardware, and TinyGo targets is just a different Hal value.
package hal

import "time"

// Level is the logical level of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Pull is the internal pull-up/down resistor state requested of a pin.
type Pull uint8

const (
	PullNoChange Pull = iota
	PullFloat
	PullDown
	PullUp
)

// Edge is the signal edge an interrupt-capable pin watches for.
type Edge uint8

const (
	NoEdge Edge = iota
	RisingEdge
	FallingEdge
	BothEdges
)

// SPI is a single full-duplex SPI transfer. len(rx) must be >= len(tx);
// only the first len(tx) bytes of rx are meaningful.
type SPI interface {
	Tx(tx, rx []byte) error
}

// Pin is a single GPIO line, used for chip-enable and interrupt lines.
type Pin interface {
	Out(l Level) error
	In(pull Pull) error
	Read() Level
	// Watch arms an edge-triggered callback. handler runs on an
	// implementation-chosen goroutine/ISR context; it must not block and
	// must not allocate on embedded targets.
	Watch(edge Edge, handler func()) error
	Unwatch() error
}

// AuxTimer is an auxiliary timer the board HAL exposes beyond the
// free-running tick source; Hal hands one out through MultiRadioTimer
// for the multi-radio synchronization window (§4.11).
type AuxTimer interface {
	Start(period time.Duration, handler func()) error
	Stop() error
	SetPeriod(period time.Duration) error
}

// Radio is the two-line interrupt+DMA surface of one physical radio:
// chip-enable/reset-capable pin, an IRQ pin, and the SPI bus it sits on.
// The PHY driver (C11) owns the register-burst protocol on top of this;
// the Hal only provides the wires.
type Radio struct {
	SPI SPI
	CE  Pin
	IRQ Pin
}

// Hal is the full capability set §9's design notes require: GPIO+SPI for
// one or two radios, a free-running tick source, the context-switch
// trigger used to drain the callback queue outside of IRQ priority, and
// (dual radio only) the multi-radio synchronization timer.
type Hal interface {
	// Radios returns the board's radio wiring. Single-radio boards return
	// a one-element slice.
	Radios() []Radio

	// Tick returns a free-running monotonic tick count. The core never
	// calls a wall-clock API directly; all deadline math is expressed in
	// ticks so it is identical on embedded targets and in simulation.
	Tick() uint64
	// TickFrequencyHz is the rate Tick advances at.
	TickFrequencyHz() uint32

	// ContextSwitchTrigger requests that the low-priority "context
	// switch" ISR run at the next opportunity; its handler drains the
	// callback queue into application callbacks (§5, context 4).
	ContextSwitchTrigger()
	// ContextSwitchInstallHandler wires the core's callback-queue drain
	// routine to the board's low-priority ISR. Called once at Init.
	ContextSwitchInstallHandler(handler func())

	// MultiRadioTimer is nil on single-radio boards.
	MultiRadioTimer() AuxTimer
}

// TicksFromDuration converts a wall-clock duration to a tick count for a
// Hal running at the given frequency. Used for DDCM windows and pairing
// timeouts, which are specified in wall time but
// measured against Hal.Tick.
func TicksFromDuration(d time.Duration, freqHz uint32) uint64 {
	if freqHz == 0 {
		return 0
	}
	return uint64(d.Seconds() * float64(freqHz))
}
