// Package phy implements the PHY driver (C11): the per-slot state-step
// queue, the three SPI register-burst structures the driver fills and
// DMAs in one transfer, and outcome classification on radio IRQ (§4.10).
// The register-burst shape is grounded on the teacher's own
// scratch-buffer SPI pattern (nrf24.go's writeRegisterN/spiTransfer:
// build one contiguous buffer, issue one Tx call) generalized from a
// fixed 32-byte payload to the variable frame geometry this protocol
// needs.
package phy

import (
	"github.com/uwbstack/swc/internal/gainloop"
	"github.com/uwbstack/swc/internal/hal"
	"github.com/uwbstack/swc/internal/lqi"
	"github.com/uwbstack/swc/internal/swcerr"
	"github.com/uwbstack/swc/internal/xlayer"
)

// Phase is the per-slot progress the state-step queue reports (§4.10).
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProcessing
	PhaseFrameSentAck
	PhaseFrameSentNack
	PhaseFrameNotSent
	PhaseFrameReceived
	PhaseFrameMissed
	PhaseFrameRejected
)

// RadioCfgOut is the first of the three SPI burst structures (§4.10): the
// PHY fills it in memory and DMAs it in one transfer to configure the
// radio for the upcoming slot action.
type RadioCfgOut struct {
	Actions        uint8
	TXAddress      uint64
	RXAddress      uint64
	RXSize         uint16
	TXSize         uint16
	PHYMode        uint8 // 0 or 1, per §4.10's "PHY 0-1"
	CCAEnable      bool
	CCAThreshold   int16
	RFGainCode     uint8
	ChannelIndex   uint8
	FrequencyParam uint16
	SleepLevel     uint8
	TimerConfig    uint32
	IRQConfig      uint8
	FrameProcPhase uint8
}

// FillHeaderOut is the second burst structure: the FIFO write of the
// header bytes the link-protocol codec (C6) produced.
type FillHeaderOut struct {
	HeaderBytes []byte
}

// ReadEventsIn/ReadEventsOut is the third burst pair: a status-register
// read that comes back with power status and the IRQ mask/flags
// snapshot, optionally accompanied by a set_actions write in the same
// transfer.
type ReadEventsIn struct {
	SetActions uint8
}

type ReadEventsOut struct {
	PowerStatus uint8
	IRQMask     uint8
	IRQFlags    uint8
}

// ReadInfoIn/ReadInfoOut is the fourth burst pair: the frame metadata
// read that follows a completed RX or TX, giving the classifier
// everything it needs without a second round trip.
type ReadInfoIn struct {
	BurstReadStart uint16
}

type ReadInfoOut struct {
	FrameSize       uint16
	HeaderSize      uint16
	FrameProcPhase  uint8
	RSSICode        uint8
	RNSICode        uint8
	RXTimeTicks     uint64
}

// SPI command-byte convention the driver and whichever hal.SPI peer it
// talks to (real radio or halsim's loopback) agree on. Grounded on the
// teacher's own nRF24 split between _W_REGISTER (0x20), _W_TX_PAYLOAD
// (0xA0) and _R_RX_PAYLOAD (0x61): a register burst, a frame
// transmission, and a received-frame readback are three different
// commands, never one magic byte doing double duty.
const (
	CmdReadRegister byte = 0x00 // status/info poll, no side effect on the peer
	CmdWriteCfg     byte = 0x20 // RadioCfgOut register burst
	CmdTransmit     byte = 0xA0 // header+payload burst; peer transmits on completion
	CmdReadFrame    byte = 0x61 // burst-read a queued received frame's bytes
)

// IRQ status-flag bits classify reads off ReadEventsOut.IRQFlags. Shared
// with halsim so the simulated radio's status byte means the same thing
// the real driver's classify() expects (mirrors the teacher's
// StatusDataReady/StatusDataSent/StatusMaxRetries register bits).
const (
	FlagAckReceived  = 1 << 1
	FlagNackReceived = 1 << 2
	FlagDataReady    = 1 << 3
	FlagCRCFail      = 1 << 4
	FlagMaxRetries   = 1 << 5
)

// StateStep is one small function over the driver's context, queued at
// slot start and executed as the radio progresses (§4.10).
type StateStep func(*Driver) Phase

// Driver sequences the per-slot state-step queue for one physical radio.
type Driver struct {
	SPI  hal.SPI
	Gain *gainloop.Loop
	LQI  *lqi.Tracker

	scratch []byte
	steps   []StateStep
	phase   Phase

	lastCfg RadioCfgOut
}

// NewDriver returns a Driver bound to one radio's SPI bus, with a
// scratch buffer sized for the largest single burst this connection set
// will ever issue (allocated once at setup, §5).
func NewDriver(spi hal.SPI, gain *gainloop.Loop, lqiTracker *lqi.Tracker, maxBurstBytes int) *Driver {
	return &Driver{SPI: spi, Gain: gain, LQI: lqiTracker, scratch: make([]byte, maxBurstBytes)}
}

// transfer issues one full-duplex SPI burst, reusing the driver's
// scratch buffer for the response so no allocation happens in IRQ
// context (mirrors the teacher's Device.scratch discipline).
func (d *Driver) transfer(tx []byte) ([]byte, error) {
	if len(tx) > len(d.scratch) {
		return nil, swcerr.New(swcerr.NotEnoughMemory, "phy burst exceeds configured scratch size")
	}
	rx := d.scratch[:len(tx)]
	if err := d.SPI.Tx(tx, rx); err != nil {
		return nil, swcerr.Wrap(swcerr.Internal, "spi burst failed", err)
	}
	return rx, nil
}

// EnqueuePrepare queues the "config" phase step for the multi-radio
// leading radio (§4.10): program RadioCfgOut, then burst out the
// header+payload frame bytes when cfg is a TX action.
func (d *Driver) EnqueuePrepare(cfg RadioCfgOut, frame []byte) {
	d.lastCfg = cfg
	d.steps = append(d.steps, func(drv *Driver) Phase {
		if _, err := drv.transfer(encodeCfg(cfg)); err != nil {
			return PhaseFrameNotSent
		}
		return PhaseProcessing
	})
	if len(frame) > 0 {
		d.steps = append(d.steps, func(drv *Driver) Phase {
			if _, err := drv.transfer(encodeFrame(frame)); err != nil {
				return PhaseFrameNotSent
			}
			return PhaseProcessing
		})
	}
}

// EnqueueNone queues the single-processing-mode no-op step for the
// non-leading radio (§4.10: "enqueue_none for the other radio in
// single-processing mode").
func (d *Driver) EnqueueNone() {
	d.steps = append(d.steps, func(*Driver) Phase { return PhaseIdle })
}

// OnDMAComplete advances the state-step queue by one element, per
// §4.10's "during SPI DMA-complete IRQ: advance to next state". Returns
// PhaseProcessing while steps remain, PhaseIdle once the queue drains.
func (d *Driver) OnDMAComplete() Phase {
	if len(d.steps) == 0 {
		d.phase = PhaseIdle
		return PhaseIdle
	}
	step := d.steps[0]
	d.steps = d.steps[1:]
	d.phase = step(d)
	return d.phase
}

// QueueDrained reports whether the per-slot state-step queue is empty.
func (d *Driver) QueueDrained() bool { return len(d.steps) == 0 }

// OnRadioIRQ implements §4.10's radio-IRQ handling: a burst read of
// status/IRQ registers, frame-outcome classification, a gain-loop
// update from the raw RSSI code, and (on a completed RX) a dedicated
// CmdReadFrame burst that lands the received header+payload bytes
// directly in frame's arena region, then a transition back to yielding.
// frame is the xlayer element the MAC handed the PHY for this slot;
// OnRadioIRQ stamps its Outcome, radio metrics, and (RX only) its bytes
// in place.
func (d *Driver) OnRadioIRQ(frame *xlayer.Frame, wasTX bool) error {
	eventsOut, err := d.readEvents()
	if err != nil {
		return err
	}
	info, err := d.readInfo()
	if err != nil {
		return err
	}

	frame.RSSICode = info.RSSICode
	frame.RNSICode = info.RNSICode
	frame.RXTimeTicks = info.RXTimeTicks
	frame.FrameSize = int(info.FrameSize)

	if d.Gain != nil {
		d.Gain.Update(lqi.RawToTenthDB(info.RSSICode))
	}

	frame.Outcome = classify(eventsOut, wasTX)
	d.phase = outcomeToPhase(frame.Outcome)

	if !wasTX && frame.Outcome == xlayer.OutcomeReceived {
		if err := d.readFrame(frame.OnAirBytes()); err != nil {
			return err
		}
	}
	return nil
}

// readFrame issues the dedicated CmdReadFrame burst and lands the
// response directly into dst (the frame's own header+payload arena
// slice), so a received frame is copied exactly once, not bounced
// through the scratch buffer first.
func (d *Driver) readFrame(dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	if len(dst) > len(d.scratch) {
		return swcerr.New(swcerr.NotEnoughMemory, "phy frame burst exceeds configured scratch size")
	}
	tx := d.scratch[:len(dst)]
	tx[0] = CmdReadFrame
	for i := 1; i < len(tx); i++ {
		tx[i] = 0
	}
	if err := d.SPI.Tx(tx, dst); err != nil {
		return swcerr.Wrap(swcerr.Internal, "spi frame burst failed", err)
	}
	return nil
}

// Phase returns the driver's last-reported phase.
func (d *Driver) Phase() Phase { return d.phase }

func (d *Driver) readEvents() (ReadEventsOut, error) {
	rx, err := d.transfer([]byte{CmdReadRegister})
	if err != nil {
		return ReadEventsOut{}, err
	}
	return ReadEventsOut{PowerStatus: rx[0] & 0x01, IRQMask: 0, IRQFlags: rx[0] & 0xFE}, nil
}

func (d *Driver) readInfo() (ReadInfoOut, error) {
	rx, err := d.transfer([]byte{CmdReadRegister, 0x00, 0x00, 0x00})
	if err != nil {
		return ReadInfoOut{}, err
	}
	return ReadInfoOut{
		FrameSize:   uint16(rx[0]),
		RSSICode:    rx[1] & 0x3F,
		RNSICode:    rx[2] & 0x3F,
		RXTimeTicks: uint64(rx[3]),
	}, nil
}

// classify turns the IRQ-flag snapshot into a frame Outcome, per the
// §3 outcome set. Bit meanings mirror the status-register layout the
// teacher's own nrf24.go hardcodes (StatusDataReady/StatusDataSent/
// StatusMaxRetries), generalized to this protocol's ACK/NACK/fallback
// distinctions.
func classify(ev ReadEventsOut, wasTX bool) xlayer.Outcome {
	if wasTX {
		switch {
		case ev.IRQFlags&FlagAckReceived != 0:
			return xlayer.OutcomeSentAck
		case ev.IRQFlags&FlagNackReceived != 0:
			return xlayer.OutcomeSentNack
		case ev.IRQFlags&FlagMaxRetries != 0:
			// transmitted but never acknowledged: ARQ retries or drops it.
			return xlayer.OutcomeSentNack
		default:
			return xlayer.OutcomeNotSent
		}
	}
	switch {
	case ev.IRQFlags&FlagCRCFail != 0:
		return xlayer.OutcomeRejected
	case ev.IRQFlags&FlagDataReady != 0:
		return xlayer.OutcomeReceived
	default:
		return xlayer.OutcomeMissed
	}
}

func outcomeToPhase(o xlayer.Outcome) Phase {
	switch o {
	case xlayer.OutcomeSentAck:
		return PhaseFrameSentAck
	case xlayer.OutcomeSentNack:
		return PhaseFrameSentNack
	case xlayer.OutcomeNotSent:
		return PhaseFrameNotSent
	case xlayer.OutcomeReceived:
		return PhaseFrameReceived
	case xlayer.OutcomeMissed:
		return PhaseFrameMissed
	case xlayer.OutcomeRejected:
		return PhaseFrameRejected
	default:
		return PhaseIdle
	}
}

// encodeCfg serializes RadioCfgOut into the single contiguous buffer the
// driver DMAs in one transfer (§4.10), prefixed with CmdWriteCfg so this
// register burst can never be mistaken for a frame transmission or a
// frame readback by whatever hal.SPI peer receives it. The field order
// after the command byte matches the struct's declaration order; there
// is no self-description on the wire beyond that, the SPI peer is the
// radio's own register file, not another node.
func encodeCfg(cfg RadioCfgOut) []byte {
	buf := make([]byte, 0, 33)
	buf = append(buf, CmdWriteCfg)
	buf = append(buf, cfg.Actions)
	buf = append(buf, byte(cfg.RXSize), byte(cfg.RXSize>>8))
	buf = append(buf, byte(cfg.TXSize), byte(cfg.TXSize>>8))
	buf = append(buf, cfg.PHYMode, boolByte(cfg.CCAEnable))
	buf = append(buf, byte(cfg.CCAThreshold), byte(cfg.CCAThreshold>>8))
	buf = append(buf, cfg.RFGainCode, cfg.ChannelIndex)
	buf = append(buf, byte(cfg.FrequencyParam), byte(cfg.FrequencyParam>>8))
	buf = append(buf, cfg.SleepLevel, cfg.IRQConfig, cfg.FrameProcPhase)
	return buf
}

// encodeFrame prefixes the header+payload burst with CmdTransmit, the
// command that tells the radio (real or simulated) this burst is a
// frame to put on air, not a register write.
func encodeFrame(frame []byte) []byte {
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, CmdTransmit)
	buf = append(buf, frame...)
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
