// Package mac implements the MAC / connection engine (C10): per-slot
// decision logic, the connection set, credit-based flow control,
// edge-triggered connect/disconnect status, and the callback surface
// that funnels PHY outcomes back to application context (§4.9).
package mac

import (
	"github.com/uwbstack/swc/internal/arq"
	"github.com/uwbstack/swc/internal/cca"
	"github.com/uwbstack/swc/internal/frag"
	"github.com/uwbstack/swc/internal/linkproto"
	"github.com/uwbstack/swc/internal/lqi"
	"github.com/uwbstack/swc/internal/queue"
	"github.com/uwbstack/swc/internal/schedule"
	"github.com/uwbstack/swc/internal/swcerr"
	"github.com/uwbstack/swc/internal/xlayer"
)

// Action is what the engine decided to do with a connection this slot.
type Action int

const (
	ActionSleep Action = iota
	ActionTX
	ActionRX
)

// EventKind names one callback-queue event (§4.9: "events funnel through
// the callback queue so they're observed in app context, never in
// IRQ").
type EventKind int

const (
	EventTxSuccess EventKind = iota
	EventTxDropped
	EventRxSuccess
	EventConnect
	EventDisconnect
	EventError
	EventRxOverrun
)

// Event is one queued callback-surface notification.
type Event struct {
	Kind         EventKind
	ConnectionID uint8
}

// ConnectStatusConfig is the edge-trigger thresholds of §4.9: N
// consecutive successful receptions fire Connect, M consecutive misses
// fire Disconnect.
type ConnectStatusConfig struct {
	ConnectAfter    uint32
	DisconnectAfter uint32
}

// connectStatus tracks one connection's consecutive success/miss streaks
// and the edge-triggered Connected state derived from them.
type connectStatus struct {
	cfg ConnectStatusConfig

	consecutiveHit  uint32
	consecutiveMiss uint32
	connected       bool
}

// observe folds one slot outcome into the streaks and returns an Event
// if this observation crossed an edge, or ok=false otherwise.
func (c *connectStatus) observe(connID uint8, hit bool) (Event, bool) {
	if hit {
		c.consecutiveMiss = 0
		c.consecutiveHit++
		if !c.connected && c.cfg.ConnectAfter > 0 && c.consecutiveHit >= c.cfg.ConnectAfter {
			c.connected = true
			return Event{Kind: EventConnect, ConnectionID: connID}, true
		}
		return Event{}, false
	}
	c.consecutiveHit = 0
	c.consecutiveMiss++
	if c.connected && c.cfg.DisconnectAfter > 0 && c.consecutiveMiss >= c.cfg.DisconnectAfter {
		c.connected = false
		return Event{Kind: EventDisconnect, ConnectionID: connID}, true
	}
	return Event{}, false
}

// Credit is the connection's credit-based flow control counters (§3):
// Local is this side's current RX queue headroom, recomputed on every
// PrepareTX and advertised to the peer in the outgoing header; Peer is
// the last value the peer advertised to us, decoded off received
// frames in OnOutcome. DecideSlot refuses to pick a CreditFlowEnabled
// connection for TX while Peer == 0: the peer has no room left for
// another frame from us.
type Credit struct {
	Local uint8
	Peer  uint8
}

// Throttle is the connection's throttling-ratio state (§8 invariant #10):
// a Bresenham-style accumulator that admits ActiveRatio percent of TX
// opportunities, within +/-1 slot per 100 over a long window, without
// tracking a sliding window of past decisions.
type Throttle struct {
	ActiveRatio uint8 // 0-100; 100 means never throttled
	acc         int
}

// Admit reports whether this TX opportunity should be used, and advances
// the accumulator. A zero-value Throttle (ActiveRatio 0) always admits,
// matching "throttling not configured" rather than "fully throttled".
func (t *Throttle) Admit() bool {
	if t.ActiveRatio == 0 {
		return true
	}
	if t.ActiveRatio >= 100 {
		return true
	}
	t.acc += int(t.ActiveRatio)
	if t.acc >= 100 {
		t.acc -= 100
		return true
	}
	return false
}

// Connection is one MAC-level connection: the schedule reference plus
// every per-connection protocol state the engine drives through a slot
// (§3, §4.9).
type Connection struct {
	Ref      schedule.ConnRef
	Priority uint8

	Header *linkproto.Layout
	CCA    cca.Config
	Fallback *cca.FallbackTable

	ArqTx *arq.TxState
	ArqRx *arq.RxState

	Frag *frag.Reassembler

	TXArena *xlayer.Arena
	TXQueue *queue.Queue
	RXArena *xlayer.Arena
	RXQueue *queue.Queue

	Credit Credit
	CreditFlowEnabled bool
	Throttle Throttle

	// RDO is non-nil only when this connection's header layout carries
	// FieldRDO (high-perf concurrency mode, §4.7): PrepareTX advances and
	// stamps it on every TX attempt, OnOutcome records the peer's last
	// advertised offset in PeerRDO.
	RDO     *cca.RDO
	PeerRDO int

	LQI *lqi.Tracker

	status connectStatus
}

// NewConnection builds a Connection with fresh per-connection state; the
// caller supplies already-sized arenas/queues (allocated once at setup,
// §5).
func NewConnection(ref schedule.ConnRef, priority uint8, header *linkproto.Layout, ccaCfg cca.Config, fallback *cca.FallbackTable, arqCfg arq.Config, txArena *xlayer.Arena, txQueue *queue.Queue, rxArena *xlayer.Arena, rxQueue *queue.Queue, reassembler *frag.Reassembler, statusCfg ConnectStatusConfig) *Connection {
	return &Connection{
		Ref:      ref,
		Priority: priority,
		Header:   header,
		CCA:      ccaCfg,
		Fallback: fallback,
		ArqTx:    arq.NewTxState(arqCfg),
		ArqRx:    arq.NewRxState(),
		Frag:     reassembler,
		TXArena:  txArena,
		TXQueue:  txQueue,
		RXArena:  rxArena,
		RXQueue:  rxQueue,
		LQI:      lqi.NewTracker(),
		status:   connectStatus{cfg: statusCfg},
		// Both sides start optimistic (full credit) so a freshly connected
		// pair can exchange the first frames needed to learn each other's
		// real queue headroom; Local is recomputed from RXQueue on every
		// PrepareTX once real traffic flows.
		Credit: Credit{Local: 255, Peer: 255},
	}
}

// Connected reports the connection's current edge-triggered status.
func (c *Connection) Connected() bool { return c.status.connected }

// Engine drives the TDMA cycle: at each slot boundary it classifies the
// slot, picks the highest-priority connection with TX work, assembles or
// consumes frames, and folds PHY outcomes back into ARQ/credit/LQI/
// connect-status state (§4.9).
type Engine struct {
	LocalAddress uint8
	Cycle        *schedule.Cycle
	ChannelSeq   *cca.ChannelSequence
	DDCM         *cca.DDCM

	conns   map[uint8]*Connection
	order   []uint8 // insertion order, for deterministic priority ties
	events  []Event
}

// NewEngine returns an Engine bound to localAddress and cycle.
func NewEngine(localAddress uint8, cycle *schedule.Cycle, channelSeq *cca.ChannelSequence, ddcm *cca.DDCM) *Engine {
	return &Engine{
		LocalAddress: localAddress,
		Cycle:        cycle,
		ChannelSeq:   channelSeq,
		DDCM:         ddcm,
		conns:        make(map[uint8]*Connection),
	}
}

// AddConnection registers a connection under its schedule id.
func (e *Engine) AddConnection(id uint8, c *Connection) {
	if _, exists := e.conns[id]; !exists {
		e.order = append(e.order, id)
	}
	e.conns[id] = c
}

// Connection looks up a registered connection by id.
func (e *Engine) Connection(id uint8) (*Connection, bool) {
	c, ok := e.conns[id]
	return c, ok
}

// Events drains and returns every event queued since the last call
// (§4.9's callback queue, observed in app context).
func (e *Engine) Events() []Event {
	ev := e.events
	e.events = nil
	return ev
}

func (e *Engine) emit(kind EventKind, connID uint8) {
	e.events = append(e.events, Event{Kind: kind, ConnectionID: connID})
}

// SlotPlan is what DecideSlot computes for the connection the engine
// chose to act on this slot (step 1-2 of §4.9).
type SlotPlan struct {
	ConnectionID uint8
	Action       Action
	Channel      int
}

// DecideSlot runs step 1 of §4.9: classify the current timeslot and pick
// the active connection, preferring, among TX-eligible connections
// sharing a slot, the highest Priority with a non-empty TX queue.
// Returns ok=false if the slot has no schedule-eligible connection (the
// node sleeps).
func (e *Engine) DecideSlot() (SlotPlan, bool) {
	ts := e.Cycle.Slot()
	role := schedule.ClassifySlot(ts, e.LocalAddress)
	channel := e.Cycle.CurrentChannel()

	switch role {
	case schedule.RoleTXMain, schedule.RoleTXAutoReply:
		var best *schedule.ConnRef
		var bestPriority uint8
		refs := ts.Main
		if role == schedule.RoleTXAutoReply {
			refs = ts.AutoReply
		}
		for i := range refs {
			ref := refs[i]
			c, ok := e.conns[ref.ID]
			if !ok {
				continue
			}
			if c.TXQueue.IsEmpty() {
				continue
			}
			if c.CreditFlowEnabled && c.Credit.Peer == 0 {
				continue
			}
			if best == nil || c.Priority > bestPriority {
				best = &refs[i]
				bestPriority = c.Priority
			}
		}
		if best == nil {
			return SlotPlan{}, false
		}
		if !e.conns[best.ID].Throttle.Admit() {
			return SlotPlan{}, false
		}
		return SlotPlan{ConnectionID: best.ID, Action: ActionTX, Channel: channel}, true
	case schedule.RoleRXMain, schedule.RoleRXAutoReply:
		refs := ts.Main
		if role == schedule.RoleRXAutoReply {
			refs = ts.AutoReply
		}
		if len(refs) == 0 {
			return SlotPlan{}, false
		}
		return SlotPlan{ConnectionID: refs[0].ID, Action: ActionRX, Channel: channel}, true
	default:
		return SlotPlan{}, false
	}
}

// PrepareTX runs step 2 of §4.9 for the chosen connection: copies the
// front TX slot without dequeuing it (OnOutcome dequeues), stamps the link-protocol header fields, resolves the
// fallback tier for the payload size, and returns the frame ready for
// PHY submission. now is the Hal tick this attempt begins at (the same
// tick Engine.Advance receives), threaded into ArqTx so its retry
// deadline arithmetic measures real elapsed time rather than a constant.
func (e *Engine) PrepareTX(connID uint8, now uint64) (*xlayer.Frame, cca.FallbackTier, error) {
	c, ok := e.conns[connID]
	if !ok {
		return nil, cca.FallbackTier{}, swcerr.New(swcerr.NotConnected, "prepare_tx on unknown connection id")
	}
	payloadSlot, ok := peekConsumer(c.TXQueue)
	if !ok {
		return nil, cca.FallbackTier{}, swcerr.New(swcerr.ReceiveQueueEmpty, "tx queue unexpectedly empty")
	}

	frame, fail := c.TXArena.Slot(0, len(payloadSlot))
	if fail != xlayer.FailNone {
		return nil, cca.FallbackTier{}, swcerr.New(swcerr.NotEnoughMemory, "tx payload exceeds arena max")
	}
	copy(frame.PayloadBytes(), payloadSlot)
	frame.ConnectionID = connID

	c.Credit.Local = localCredit(c.RXQueue)

	header := linkproto.Header{Layout: c.Header, Bytes: frame.HeaderBytes()}
	c.ArqTx.BeginAttempt(now)
	seq := c.ArqTx.NextSeq()
	header.EncodeSeq(seq)
	header.EncodeConnectionID(connID)
	header.EncodeCredit(c.Credit.Local)
	if c.RDO != nil {
		header.EncodeRDO(uint16(c.RDO.Advance()))
	}
	frame.Seq = seq

	// Stamp the §6 on-air length prefix: header_size + payload_size, the
	// one byte of the wire frame that lives outside both arena regions.
	frame.Arena[c.TXArena.LengthPrefixOffset(0)] = byte(len(frame.HeaderBytes()) + len(frame.PayloadBytes()))

	tier := cca.FallbackTier{}
	if c.Fallback != nil {
		if t, ok := c.Fallback.Select(len(payloadSlot)); ok {
			tier = t
		}
	}
	return &frame, tier, nil
}

// peekConsumer is a small adapter until queue exposes a byte-slice peek
// directly usable here; it mirrors Consumer.PeekFront without requiring
// mac to hold the Consumer half separately from the Connection's single
// shared Queue.
func peekConsumer(q *queue.Queue) ([]byte, bool) {
	_, c := q.Views()
	return c.PeekFront()
}

// localCredit reports how much RX buffer headroom this side currently
// has to advertise to the peer, clamped to the field's uint8 wire width.
func localCredit(q *queue.Queue) uint8 {
	free := q.Capacity() - q.Size()
	if free > 255 {
		return 255
	}
	if free < 0 {
		return 0
	}
	return uint8(free)
}

// OnOutcome runs step 4 of §4.9: folds one PHY-classified frame outcome
// back into ARQ, credit, LQI, RX-queue delivery, and connect-status
// state, queuing whatever callback events result.
func (e *Engine) OnOutcome(connID uint8, frame *xlayer.Frame) error {
	c, ok := e.conns[connID]
	if !ok {
		return swcerr.New(swcerr.NotConnected, "on_outcome on unknown connection id")
	}

	c.LQI.AddSample(frame.RSSICode, frame.RNSICode)

	switch frame.Outcome {
	case xlayer.OutcomeSentAck:
		c.LQI.Sent++
		c.LQI.Ack++
		c.ArqTx.OnAckReceived()
		_, consumer := c.TXQueue.Views()
		consumer.CommitDequeue()
		e.emit(EventTxSuccess, connID)

	case xlayer.OutcomeSentNack:
		c.LQI.Sent++
		c.LQI.Nack++
		switch c.ArqTx.OnNack(frame.RXTimeTicks) {
		case arq.Dropped:
			_, consumer := c.TXQueue.Views()
			consumer.CommitDequeue()
			e.emit(EventTxDropped, connID)
		case arq.Pending:
			// retained at queue front for retry on the next TX slot.
		}

	case xlayer.OutcomeNotSent:
		if c.CCA.FailAction == cca.FailAbort {
			_, consumer := c.TXQueue.Views()
			consumer.CommitDequeue()
			e.emit(EventTxDropped, connID)
		}
		// FailForce: PHY already transmitted anyway; caller re-evaluates.
		if ev, edge := c.status.observe(connID, false); edge {
			e.emit(ev.Kind, connID)
		}

	case xlayer.OutcomeReceived:
		c.LQI.Received++
		header := linkproto.Header{Layout: c.Header, Bytes: frame.HeaderBytes()}
		seq, _ := header.DecodeSeq()
		if peerCredit, hasCredit := header.DecodeCredit(); hasCredit {
			c.Credit.Peer = peerCredit
		}
		if rdo, hasRDO := header.DecodeRDO(); hasRDO {
			c.PeerRDO = int(rdo)
		}
		if c.ArqRx.Accept(seq) {
			e.deliverReceived(c, connID, frame.PayloadBytes())
		} else {
			c.LQI.Duplicated++
		}
		if ev, edge := c.status.observe(connID, true); edge {
			e.emit(ev.Kind, connID)
		}

	case xlayer.OutcomeMissed:
		c.LQI.Lost++
		if ev, edge := c.status.observe(connID, false); edge {
			e.emit(ev.Kind, connID)
		}

	case xlayer.OutcomeRejected:
		c.LQI.Rejected++
		if ev, edge := c.status.observe(connID, false); edge {
			e.emit(ev.Kind, connID)
		}
	}
	return nil
}

// deliverReceived enqueues one received payload into the RX queue and
// fires rx-success (§4.9). It does not call Frag.Feed, even when the
// connection has a Reassembler: every payload, fragment or not, is
// committed unchanged.
func (e *Engine) deliverReceived(c *Connection, connID uint8, payload []byte) {
	if c.Frag == nil {
		e.commitRX(c, connID, payload)
		return
	}
	// fragments are committed as received; reassembly is left to
	// whoever drains the RX queue and drives Frag.Feed there.
	e.commitRX(c, connID, payload)
}

// commitRX copies payload into the RX queue's next free slot and emits
// rx-success.
func (e *Engine) commitRX(c *Connection, connID uint8, payload []byte) {
	producer, _ := c.RXQueue.Views()
	slot, ok := producer.GetFreeSlot()
	if !ok {
		e.emit(EventRxOverrun, connID)
		return
	}
	copy(slot, payload)
	producer.CommitEnqueue()
	e.emit(EventRxSuccess, connID)
}

// Advance runs step 5 of §4.9: move the cycle to the next slot and
// channel-sequence position, using the random channel permutation when
// configured. The DDCM controller is stepped with now, but the offset it
// returns is discarded: slot timing is not shifted by DDCM.
func (e *Engine) Advance(now uint64, cycleCounter uint64) {
	var perm []int
	if e.ChannelSeq != nil {
		perm = e.ChannelSeq.Permutation(cycleCounter)
	}
	e.Cycle.Advance(perm)
	if e.DDCM != nil {
		e.DDCM.SlotOffset(now)
	}
}
