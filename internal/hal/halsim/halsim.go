// Package halsim provides an in-memory Hal implementation for tests and
// the cmd/ demo programs: a pair of loopback radios connected by a
// configurable-latency, configurable-loss channel. Its mock Pin/SPI types
// follow the same shape as the teacher's nrf24_test.go mocks, generalized
// from a single nRF24 register protocol to an arbitrary byte-burst SPI
// peer used by the PHY driver's three register structures.
package halsim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/uwbstack/swc/internal/hal"
	"github.com/uwbstack/swc/internal/phy"
)

// Medium models the shared RF channel between two simulated radios: a
// fixed propagation delay plus an independent per-frame loss probability,
// used to drive CCA/ARQ/retry scenarios in tests without real hardware.
type Medium struct {
	mu      sync.Mutex
	Latency time.Duration
	LossPct float64
	rng     *rand.Rand
	peers   [2]*Radio
}

// NewMedium returns a Medium with no loss and no latency; tests override
// LossPct/Latency directly before wiring radios.
func NewMedium(seed int64) *Medium {
	return &Medium{rng: rand.New(rand.NewSource(seed))}
}

func (m *Medium) attach(idx int, r *Radio) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[idx] = r
}

// deliver hands a frame captured on the SPI bus of radio idx to the
// other radio's RX path, subject to loss and latency. It reports
// whether the frame was accepted for delivery (not dropped, a peer
// attached) so the sender's own next status poll can reflect an
// ack/no-ack outcome the way a real auto-ack radio's STATUS register
// would.
func (m *Medium) deliver(fromIdx int, frame []byte) (acked bool) {
	m.mu.Lock()
	drop := m.rng.Float64() < m.LossPct
	peer := m.peers[1-fromIdx]
	latency := m.Latency
	m.mu.Unlock()
	if drop || peer == nil {
		return false
	}
	cp := append([]byte(nil), frame...)
	if latency <= 0 {
		peer.receive(cp)
		return true
	}
	time.AfterFunc(latency, func() { peer.receive(cp) })
	return true
}

// Pin is a mock GPIO pin: it records its mode and supports edge watching
// for the IRQ line, exactly like the teacher's mockPin.
type Pin struct {
	mu      sync.Mutex
	mode    string
	level   hal.Level
	watcher func()
}

func (p *Pin) Out(l hal.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = "output"
	p.level = l
	return nil
}

func (p *Pin) In(pull hal.Pull) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = "input"
	return nil
}

func (p *Pin) Read() hal.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *Pin) Watch(edge hal.Edge, handler func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watcher = handler
	return nil
}

func (p *Pin) Unwatch() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watcher = nil
	return nil
}

func (p *Pin) fire() {
	p.mu.Lock()
	w := p.watcher
	p.mu.Unlock()
	if w != nil {
		w()
	}
}

// Radio is one half of a simulated radio pair. It behaves as both the
// hal.SPI device the PHY driver programs and the "radio" that delivers
// frames over the attached Medium.
type Radio struct {
	medium *Medium
	idx    int
	ce     *Pin
	irq    *Pin

	mu          sync.Mutex
	rxQueue     [][]byte
	txAttempted bool
	txAcked     bool
}

// NewRadioPair builds two radios sharing a Medium, the way a loopback
// test harness would wire two physical radios face to face on a bench.
func NewRadioPair(m *Medium) (a, b *Radio) {
	a = &Radio{medium: m, idx: 0, ce: &Pin{}, irq: &Pin{}}
	b = &Radio{medium: m, idx: 1, ce: &Pin{}, irq: &Pin{}}
	m.attach(0, a)
	m.attach(1, b)
	return a, b
}

// Tx is the hal.SPI entry point: the PHY driver's first byte names which
// of phy's three SPI commands this burst is (§4.10's RadioCfgOut/frame
// burst/status-read split). A register write or status poll never
// touches rxQueue; only a dedicated CmdReadFrame burst consumes a queued
// frame, so the status polls OnRadioIRQ issues ahead of the frame
// readback can no longer steal or discard the bytes a peer delivered.
func (r *Radio) Tx(tx, rx []byte) error {
	if len(tx) == 0 {
		return nil
	}
	switch tx[0] {
	case phy.CmdTransmit:
		acked := r.medium.deliver(r.idx, tx[1:])
		r.mu.Lock()
		r.txAttempted = true
		r.txAcked = acked
		r.mu.Unlock()
	case phy.CmdReadFrame:
		r.mu.Lock()
		if len(r.rxQueue) > 0 {
			front := r.rxQueue[0]
			r.rxQueue = r.rxQueue[1:]
			copy(rx, front)
		}
		r.mu.Unlock()
	default:
		// Register write or status/info poll: report the one-shot TX
		// outcome and current RX-pending state, then clear the TX flag
		// like a real STATUS register's write-1-to-clear semantics.
		r.mu.Lock()
		var status byte
		if r.txAttempted {
			if r.txAcked {
				status |= phy.FlagAckReceived
			} else {
				status |= phy.FlagMaxRetries
			}
			r.txAttempted = false
		}
		if len(r.rxQueue) > 0 {
			status |= phy.FlagDataReady
		}
		r.mu.Unlock()
		for i := range rx {
			rx[i] = 0
		}
		if len(rx) > 0 {
			rx[0] = status
		}
	}
	return nil
}

func (r *Radio) receive(frame []byte) {
	r.mu.Lock()
	r.rxQueue = append(r.rxQueue, frame)
	r.mu.Unlock()
	r.irq.fire()
}

// CE returns the radio's chip-enable pin.
func (r *Radio) CE() *Pin { return r.ce }

// IRQ returns the radio's interrupt pin.
func (r *Radio) IRQ() *Pin { return r.irq }

// Hal is a hal.Hal backed by one or two simulated radios and a manually
// advanced tick counter (no wall-clock drift, so schedule tests are
// deterministic).
type Hal struct {
	mu          sync.Mutex
	tick        uint64
	freqHz      uint32
	radios      []hal.Radio
	ctxHandler  func()
	multiTimer  *auxTimer
}

// New builds a Hal around the given radios, ticking at freqHz.
func New(freqHz uint32, radios ...*Radio) *Hal {
	h := &Hal{freqHz: freqHz}
	for _, r := range radios {
		h.radios = append(h.radios, hal.Radio{SPI: r, CE: r.ce, IRQ: r.irq})
	}
	if len(radios) > 1 {
		h.multiTimer = &auxTimer{}
	}
	return h
}

func (h *Hal) Radios() []hal.Radio { return h.radios }

func (h *Hal) Tick() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tick
}

func (h *Hal) TickFrequencyHz() uint32 { return h.freqHz }

// Advance moves the simulated tick forward by n ticks. Test-only: real
// Hal implementations never expose tick control.
func (h *Hal) Advance(n uint64) {
	h.mu.Lock()
	h.tick += n
	h.mu.Unlock()
}

func (h *Hal) ContextSwitchTrigger() {
	h.mu.Lock()
	handler := h.ctxHandler
	h.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func (h *Hal) ContextSwitchInstallHandler(handler func()) {
	h.mu.Lock()
	h.ctxHandler = handler
	h.mu.Unlock()
}

func (h *Hal) MultiRadioTimer() hal.AuxTimer {
	if h.multiTimer == nil {
		return nil
	}
	return h.multiTimer
}

type auxTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	period  time.Duration
	handler func()
}

func (t *auxTimer) Start(period time.Duration, handler func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.period = period
	t.handler = handler
	t.timer = time.AfterFunc(period, t.fire)
	return nil
}

func (t *auxTimer) fire() {
	t.mu.Lock()
	h, p := t.handler, t.period
	t.mu.Unlock()
	if h != nil {
		h()
	}
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Reset(p)
	}
	t.mu.Unlock()
}

func (t *auxTimer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	return nil
}

func (t *auxTimer) SetPeriod(period time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.period = period
	return nil
}
