package mac

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uwbstack/swc/internal/arq"
	"github.com/uwbstack/swc/internal/cca"
	"github.com/uwbstack/swc/internal/linkproto"
	"github.com/uwbstack/swc/internal/queue"
	"github.com/uwbstack/swc/internal/schedule"
	"github.com/uwbstack/swc/internal/xlayer"
)

func newTestConnection(t *testing.T, id uint8, source, dest uint8) *Connection {
	t.Helper()
	layout, err := linkproto.NewLayout([]linkproto.FieldKind{
		linkproto.FieldSeq, linkproto.FieldConnectionID, linkproto.FieldCredit,
	}, 0)
	require.NoError(t, err)

	txArena := xlayer.NewArena(4, layout.HeaderSize(), 32)
	rxArena := xlayer.NewArena(4, layout.HeaderSize(), 32)

	return NewConnection(
		schedule.ConnRef{ID: id, Source: source, Destination: dest},
		0,
		layout,
		cca.Config{Enabled: false},
		nil,
		arq.Config{Enabled: true, TryDeadline: 3},
		txArena, queue.New(4, 32),
		rxArena, queue.New(4, 32),
		nil,
		ConnectStatusConfig{ConnectAfter: 2, DisconnectAfter: 2},
	)
}

func TestDecideSlotPicksTXMain(t *testing.T) {
	const local, peer uint8 = 1, 2
	conn := newTestConnection(t, 7, local, peer)
	producer, _ := conn.TXQueue.Views()
	slot, ok := producer.GetFreeSlot()
	require.True(t, ok)
	copy(slot, []byte("hi"))
	producer.CommitEnqueue()

	cycle, err := schedule.NewCycle([]schedule.Timeslot{
		{DurationPLLCycles: 1, Main: []schedule.ConnRef{conn.Ref}},
	}, []int{0})
	require.NoError(t, err)

	e := NewEngine(local, cycle, nil, nil)
	e.AddConnection(7, conn)

	plan, ok := e.DecideSlot()
	require.True(t, ok)
	require.Equal(t, ActionTX, plan.Action)
	require.Equal(t, uint8(7), plan.ConnectionID)
}

func TestDecideSlotSleepsWhenTXQueueEmpty(t *testing.T) {
	const local, peer uint8 = 1, 2
	conn := newTestConnection(t, 7, local, peer)
	cycle, err := schedule.NewCycle([]schedule.Timeslot{
		{DurationPLLCycles: 1, Main: []schedule.ConnRef{conn.Ref}},
	}, []int{0})
	require.NoError(t, err)

	e := NewEngine(local, cycle, nil, nil)
	e.AddConnection(7, conn)

	_, ok := e.DecideSlot()
	require.False(t, ok)
}

func TestPrepareTXStampsHeaderFromQueueFront(t *testing.T) {
	const local, peer uint8 = 1, 2
	conn := newTestConnection(t, 7, local, peer)
	producer, _ := conn.TXQueue.Views()
	slot, ok := producer.GetFreeSlot()
	require.True(t, ok)
	copy(slot, []byte("hello"))
	producer.CommitEnqueue()

	cycle, err := schedule.NewCycle([]schedule.Timeslot{{DurationPLLCycles: 1}}, []int{0})
	require.NoError(t, err)
	e := NewEngine(local, cycle, nil, nil)
	e.AddConnection(7, conn)

	frame, _, err := e.PrepareTX(7, 42)
	require.NoError(t, err)
	require.Equal(t, uint8(7), frame.ConnectionID)

	header := linkproto.Header{Layout: conn.Header, Bytes: frame.HeaderBytes()}
	seq, ok := header.DecodeSeq()
	require.True(t, ok)
	require.Equal(t, uint8(0), seq)
	connID, ok := header.DecodeConnectionID()
	require.True(t, ok)
	require.Equal(t, uint8(7), connID)
}

func TestOnOutcomeSentAckDequeuesAndEmitsTxSuccess(t *testing.T) {
	const local, peer uint8 = 1, 2
	conn := newTestConnection(t, 7, local, peer)
	producer, _ := conn.TXQueue.Views()
	producer.GetFreeSlot()
	producer.CommitEnqueue()
	require.Equal(t, 1, conn.TXQueue.Size())

	cycle, _ := schedule.NewCycle([]schedule.Timeslot{{DurationPLLCycles: 1}}, []int{0})
	e := NewEngine(local, cycle, nil, nil)
	e.AddConnection(7, conn)

	frame, _, err := e.PrepareTX(7, 0)
	require.NoError(t, err)
	frame.Outcome = xlayer.OutcomeSentAck

	require.NoError(t, e.OnOutcome(7, frame))
	require.Equal(t, 0, conn.TXQueue.Size())

	events := e.Events()
	require.Len(t, events, 1)
	require.Equal(t, EventTxSuccess, events[0].Kind)
}

func TestOnOutcomeReceivedDeliversAndDedups(t *testing.T) {
	const local, peer uint8 = 1, 2
	conn := newTestConnection(t, 7, peer, local) // local is RX main
	cycle, _ := schedule.NewCycle([]schedule.Timeslot{{DurationPLLCycles: 1}}, []int{0})
	e := NewEngine(local, cycle, nil, nil)
	e.AddConnection(7, conn)

	frame, _ := conn.RXArena.Slot(0, 4)
	header := linkproto.Header{Layout: conn.Header, Bytes: frame.HeaderBytes()}
	header.EncodeSeq(0)
	copy(frame.PayloadBytes(), []byte("data"))
	frame.Outcome = xlayer.OutcomeReceived

	require.NoError(t, e.OnOutcome(7, &frame))
	require.Equal(t, 1, conn.RXQueue.Size())
	events := e.Events()
	require.Contains(t, []EventKind{EventRxSuccess}, events[0].Kind)

	// same sequence again: must be deduped, not re-delivered.
	frame2, _ := conn.RXArena.Slot(1, 4)
	header2 := linkproto.Header{Layout: conn.Header, Bytes: frame2.HeaderBytes()}
	header2.EncodeSeq(0)
	copy(frame2.PayloadBytes(), []byte("data"))
	frame2.Outcome = xlayer.OutcomeReceived
	require.NoError(t, e.OnOutcome(7, &frame2))
	require.Equal(t, 1, conn.RXQueue.Size(), "duplicate sequence must not enqueue a second message")
	require.Equal(t, uint32(1), conn.LQI.Duplicated)
}

func TestThrottleAdmitsRatioWithinOnePercentPer100(t *testing.T) {
	th := Throttle{ActiveRatio: 30}
	admitted := 0
	const total = 1000
	for i := 0; i < total; i++ {
		if th.Admit() {
			admitted++
		}
	}
	require.InDelta(t, total*30/100, admitted, float64(total)/100+1)
}

func TestThrottleZeroValueAlwaysAdmits(t *testing.T) {
	var th Throttle
	for i := 0; i < 10; i++ {
		require.True(t, th.Admit())
	}
}

func TestDecideSlotSleepsWhenThrottled(t *testing.T) {
	const local, peer uint8 = 1, 2
	conn := newTestConnection(t, 7, local, peer)
	conn.Throttle = Throttle{ActiveRatio: 1, acc: 0}
	producer, _ := conn.TXQueue.Views()
	slot, ok := producer.GetFreeSlot()
	require.True(t, ok)
	copy(slot, []byte("hi"))
	producer.CommitEnqueue()

	cycle, err := schedule.NewCycle([]schedule.Timeslot{
		{DurationPLLCycles: 1, Main: []schedule.ConnRef{conn.Ref}},
	}, []int{0})
	require.NoError(t, err)

	e := NewEngine(local, cycle, nil, nil)
	e.AddConnection(7, conn)

	_, ok = e.DecideSlot()
	require.False(t, ok, "ActiveRatio 1 must not admit the very first opportunity")
}

func TestPrepareTXThreadsTickIntoArqDeadline(t *testing.T) {
	const local, peer uint8 = 1, 2
	conn := newTestConnection(t, 7, local, peer)
	conn.ArqTx = arq.NewTxState(arq.Config{Enabled: true, TryDeadline: 5, TimeDeadline: 100})
	producer, _ := conn.TXQueue.Views()
	slot, ok := producer.GetFreeSlot()
	require.True(t, ok)
	copy(slot, []byte("hi"))
	producer.CommitEnqueue()

	cycle, err := schedule.NewCycle([]schedule.Timeslot{{DurationPLLCycles: 1}}, []int{0})
	require.NoError(t, err)
	e := NewEngine(local, cycle, nil, nil)
	e.AddConnection(7, conn)

	const startTick = 1000
	frame, _, err := e.PrepareTX(7, startTick)
	require.NoError(t, err)

	frame.Outcome = xlayer.OutcomeSentNack
	require.Equal(t, arq.Pending, conn.ArqTx.OnNack(startTick+10))
	require.Equal(t, arq.Dropped, conn.ArqTx.OnNack(startTick+200), "time deadline must measure from the real begin-attempt tick, not zero")
}

func TestDecideSlotGatesOnZeroPeerCredit(t *testing.T) {
	const local, peer uint8 = 1, 2
	conn := newTestConnection(t, 7, local, peer)
	conn.CreditFlowEnabled = true
	conn.Credit.Peer = 0
	producer, _ := conn.TXQueue.Views()
	slot, ok := producer.GetFreeSlot()
	require.True(t, ok)
	copy(slot, []byte("hi"))
	producer.CommitEnqueue()

	cycle, err := schedule.NewCycle([]schedule.Timeslot{
		{DurationPLLCycles: 1, Main: []schedule.ConnRef{conn.Ref}},
	}, []int{0})
	require.NoError(t, err)
	e := NewEngine(local, cycle, nil, nil)
	e.AddConnection(7, conn)

	_, ok = e.DecideSlot()
	require.False(t, ok, "peer advertised zero credit, TX must not be selected")

	conn.Credit.Peer = 1
	plan, ok := e.DecideSlot()
	require.True(t, ok)
	require.Equal(t, ActionTX, plan.Action)
}

func TestPrepareTXAdvertisesLocalRXHeadroom(t *testing.T) {
	const local, peer uint8 = 1, 2
	conn := newTestConnection(t, 7, local, peer)
	producer, _ := conn.TXQueue.Views()
	slot, ok := producer.GetFreeSlot()
	require.True(t, ok)
	copy(slot, []byte("hi"))
	producer.CommitEnqueue()

	rxProducer, _ := conn.RXQueue.Views()
	rxSlot, ok := rxProducer.GetFreeSlot()
	require.True(t, ok)
	copy(rxSlot, []byte("x"))
	rxProducer.CommitEnqueue()

	cycle, err := schedule.NewCycle([]schedule.Timeslot{{DurationPLLCycles: 1}}, []int{0})
	require.NoError(t, err)
	e := NewEngine(local, cycle, nil, nil)
	e.AddConnection(7, conn)

	frame, _, err := e.PrepareTX(7, 0)
	require.NoError(t, err)
	header := linkproto.Header{Layout: conn.Header, Bytes: frame.HeaderBytes()}
	credit, ok := header.DecodeCredit()
	require.True(t, ok)
	require.Equal(t, uint8(conn.RXQueue.Capacity()-conn.RXQueue.Size()), credit)
}

// TestConnectStatusEdgeTriggers is invariant #9-adjacent behavior from
// §4.9: status events fire only on an edge, so consecutive misses on a
// connection that never reached the connected state fire nothing.
func TestConnectStatusEdgeTriggers(t *testing.T) {
	const local, peer uint8 = 1, 2
	conn := newTestConnection(t, 7, peer, local)
	cycle, _ := schedule.NewCycle([]schedule.Timeslot{{DurationPLLCycles: 1}}, []int{0})
	e := NewEngine(local, cycle, nil, nil)
	e.AddConnection(7, conn)

	deliverMissed := func() {
		frame, _ := conn.RXArena.Slot(0, 0)
		frame.Outcome = xlayer.OutcomeMissed
		require.NoError(t, e.OnOutcome(7, &frame))
	}
	deliverMissed()
	require.Empty(t, e.Events())
	deliverMissed()
	events := e.Events()
	require.Empty(t, events, "connection never connected, so a second miss fires nothing")
}
