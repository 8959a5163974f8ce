package phy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uwbstack/swc/internal/gainloop"
	"github.com/uwbstack/swc/internal/lqi"
	"github.com/uwbstack/swc/internal/xlayer"
)

// fakeSPI is a minimal hal.SPI double that returns a fixed response
// buffer regardless of what was written, enough to exercise the burst
// plumbing without a real radio.
type fakeSPI struct {
	response []byte
}

func (f *fakeSPI) Tx(tx, rx []byte) error {
	copy(rx, f.response)
	return nil
}

func TestEnqueuePrepareThenDrainReachesIdle(t *testing.T) {
	spi := &fakeSPI{response: []byte{0, 0, 0, 0}}
	d := NewDriver(spi, nil, lqi.NewTracker(), 64)
	d.EnqueuePrepare(RadioCfgOut{Actions: 1, TXSize: 10}, []byte{0xAA, 0xBB})

	require.False(t, d.QueueDrained())
	phase := d.OnDMAComplete()
	require.Equal(t, PhaseProcessing, phase)
	phase = d.OnDMAComplete()
	require.Equal(t, PhaseProcessing, phase)
	require.True(t, d.QueueDrained())
	phase = d.OnDMAComplete()
	require.Equal(t, PhaseIdle, phase)
}

func TestOnRadioIRQClassifiesTXAck(t *testing.T) {
	spi := &fakeSPI{response: []byte{0x02, 0, 0, 0}} // flagAckReceived set in IRQFlags byte
	gain := gainloop.New(0, -10, 10, 1, -600, -400)
	d := NewDriver(spi, gain, lqi.NewTracker(), 64)

	frame := xlayer.Frame{}
	require.NoError(t, d.OnRadioIRQ(&frame, true))
	require.Equal(t, xlayer.OutcomeSentAck, frame.Outcome)
	require.Equal(t, PhaseFrameSentAck, d.Phase())
}

func TestOnRadioIRQClassifiesRXReceived(t *testing.T) {
	spi := &fakeSPI{response: []byte{0x08, 0, 0, 0}} // flagDataReady
	d := NewDriver(spi, nil, lqi.NewTracker(), 64)

	frame := xlayer.Frame{}
	require.NoError(t, d.OnRadioIRQ(&frame, false))
	require.Equal(t, xlayer.OutcomeReceived, frame.Outcome)
}

func TestOnRadioIRQClassifiesRXMissed(t *testing.T) {
	spi := &fakeSPI{response: []byte{0x00, 0, 0, 0}}
	d := NewDriver(spi, nil, lqi.NewTracker(), 64)

	frame := xlayer.Frame{}
	require.NoError(t, d.OnRadioIRQ(&frame, false))
	require.Equal(t, xlayer.OutcomeMissed, frame.Outcome)
}

func TestTransferRejectsBurstLargerThanScratch(t *testing.T) {
	spi := &fakeSPI{response: []byte{0}}
	d := NewDriver(spi, nil, lqi.NewTracker(), 2)
	_, err := d.transfer([]byte{1, 2, 3})
	require.Error(t, err)
}
