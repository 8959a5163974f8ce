//go:build !tinygo

// Package periph adapts real SPI/GPIO hardware to the core's hal.Hal
// capability interface using periph.io, the way the teacher
// (michcald/nrf24's adapter-periph.go) bridges periph.io/x/conn to its
// own Pin/SPI interfaces. This package is the one concrete realization
// of the "Board/HAL facade" §1 declares out of the core's scope: the
// core imports only internal/hal, never periph.io directly.
package periph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/uwbstack/swc/internal/hal"
)

func init() {
	// host.Init wires up all periph.io drivers for the running platform;
	// safe to call multiple times, mirrors the teacher's package-level
	// initialization in adapter-periph.go.
	if _, err := hostInit(); err != nil {
		// A failure here only matters if the caller actually tries to
		// open real hardware; record nothing globally, surface at Open.
		_ = err
	}
}

var hostInit = host.Init

var levelOut = map[hal.Level]gpio.Level{
	hal.Low:  gpio.Low,
	hal.High: gpio.High,
}

var pullIn = map[hal.Pull]gpio.Pull{
	hal.PullFloat: gpio.Float,
	hal.PullDown:  gpio.PullDown,
	hal.PullUp:    gpio.PullUp,
}

var edgeIn = map[hal.Edge]gpio.Edge{
	hal.RisingEdge:  gpio.RisingEdge,
	hal.FallingEdge: gpio.FallingEdge,
	hal.BothEdges:   gpio.BothEdges,
}

// pin wraps a periph.io gpio.PinIO to satisfy hal.Pin. A watch goroutine
// is torn down via context cancellation rather than a bare close(chan),
// so Unwatch can be called from a different goroutine than Watch without
// racing a second Watch call over the same stop channel.
type pin struct {
	gpio.PinIO

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (p *pin) Out(l hal.Level) error {
	return p.PinIO.Out(levelOut[l])
}

func (p *pin) In(pull hal.Pull) error {
	pp, ok := pullIn[pull]
	if !ok {
		pp = gpio.PullNoChange
	}
	return p.PinIO.In(pp, gpio.NoEdge)
}

func (p *pin) Read() hal.Level {
	if p.PinIO.Read() == gpio.High {
		return hal.High
	}
	return hal.Low
}

// Watch arms edge detection and starts a goroutine delivering handler
// each time WaitForEdge unblocks on a real edge. A prior watch on this
// pin, if any, is stopped first.
func (p *pin) Watch(edge hal.Edge, handler func()) error {
	pe, ok := edgeIn[edge]
	if !ok {
		pe = gpio.NoEdge
	}
	if err := p.PinIO.In(gpio.PullUp, pe); err != nil {
		return err
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	go p.watchLoop(ctx, handler)
	return nil
}

func (p *pin) watchLoop(ctx context.Context, handler func()) {
	for ctx.Err() == nil {
		edged := p.PinIO.WaitForEdge(-1)
		if ctx.Err() != nil {
			return
		}
		if edged {
			handler()
		}
	}
}

func (p *pin) Unwatch() error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return p.PinIO.In(gpio.PullUp, gpio.NoEdge)
}

// spiConn wraps a periph.io spi.Conn to satisfy hal.SPI.
type spiConn struct {
	conn spi.Conn
}

func (s *spiConn) Tx(tx, rx []byte) error {
	return s.conn.Tx(tx, rx[:len(tx)])
}

// RadioPins names the GPIO pins and SPI port for one physical radio.
type RadioPins struct {
	CEPin  string
	IRQPin string
	SPIBus string
	Hz     physic.Frequency
	Mode   spi.Mode
}

// OpenRadio opens one real radio's SPI port and GPIO lines and returns a
// hal.Radio, the periph.io equivalent of the teacher's NewWithHardware
// hardware-probe step.
func OpenRadio(rp RadioPins) (hal.Radio, error) {
	cePin := gpioreg.ByName(rp.CEPin)
	if cePin == nil {
		return hal.Radio{}, fmt.Errorf("periph: CE pin %q not found", rp.CEPin)
	}
	irqPin := gpioreg.ByName(rp.IRQPin)
	if irqPin == nil {
		return hal.Radio{}, fmt.Errorf("periph: IRQ pin %q not found", rp.IRQPin)
	}
	port, err := spireg.Open(rp.SPIBus)
	if err != nil {
		return hal.Radio{}, fmt.Errorf("periph: open SPI %q: %w", rp.SPIBus, err)
	}
	hz := rp.Hz
	if hz == 0 {
		hz = 8 * physic.MegaHertz
	}
	conn, err := port.Connect(hz, rp.Mode, 8)
	if err != nil {
		return hal.Radio{}, fmt.Errorf("periph: connect SPI %q: %w", rp.SPIBus, err)
	}
	return hal.Radio{
		SPI: &spiConn{conn: conn},
		CE:  &pin{PinIO: cePin},
		IRQ: &pin{PinIO: irqPin},
	}, nil
}

// tickSource is a monotonic free-running tick built on time.Now, used
// when the board has no dedicated hardware tick timer exposed through
// periph.io.
type tickSource struct {
	start time.Time
	hz    uint32
}

func newTickSource(hz uint32) *tickSource {
	return &tickSource{start: time.Now(), hz: hz}
}

func (t *tickSource) Tick() uint64 {
	return uint64(time.Since(t.start).Seconds() * float64(t.hz))
}

// Board is a minimal periph.io-backed hal.Hal: one or two radios opened
// via OpenRadio, a software tick source, and synchronous context-switch
// dispatch (there is no real low-priority ISR on a Linux host, so
// ContextSwitchTrigger runs the handler inline — acceptable since a
// host process is not interrupt-priority constrained the way firmware
// is).
type Board struct {
	radios     []hal.Radio
	tick       *tickSource
	ctxHandler func()
}

// NewBoard wires radios opened with OpenRadio into a hal.Hal, ticking at
// tickHz.
func NewBoard(tickHz uint32, radios ...hal.Radio) *Board {
	return &Board{radios: radios, tick: newTickSource(tickHz)}
}

func (b *Board) Radios() []hal.Radio { return b.radios }
func (b *Board) Tick() uint64        { return b.tick.Tick() }
func (b *Board) TickFrequencyHz() uint32 { return b.tick.hz }

func (b *Board) ContextSwitchTrigger() {
	if b.ctxHandler != nil {
		b.ctxHandler()
	}
}

func (b *Board) ContextSwitchInstallHandler(handler func()) {
	b.ctxHandler = handler
}

func (b *Board) MultiRadioTimer() hal.AuxTimer {
	if len(b.radios) < 2 {
		return nil
	}
	return &boardTimer{}
}

type boardTimer struct {
	t *time.Timer
}

func (bt *boardTimer) Start(period time.Duration, handler func()) error {
	bt.t = time.AfterFunc(period, handler)
	return nil
}

func (bt *boardTimer) Stop() error {
	if bt.t != nil {
		bt.t.Stop()
	}
	return nil
}

func (bt *boardTimer) SetPeriod(period time.Duration) error {
	if bt.t != nil {
		bt.t.Reset(period)
	}
	return nil
}
