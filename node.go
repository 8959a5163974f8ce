package swc

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/uwbstack/swc/internal/cca"
	"github.com/uwbstack/swc/internal/gainloop"
	"github.com/uwbstack/swc/internal/hal"
	"github.com/uwbstack/swc/internal/lqi"
	"github.com/uwbstack/swc/internal/mac"
	"github.com/uwbstack/swc/internal/multiradio"
	"github.com/uwbstack/swc/internal/phy"
	"github.com/uwbstack/swc/internal/schedule"
)

// radioBinding is one physical radio a Node drives: its PHY driver plus
// the board wiring handed out by the Hal.
type radioBinding struct {
	radio      hal.Radio
	driver     *phy.Driver
	calibrated bool
}

// Node is one board's participation in the network: its addressing,
// its one or two radios, its connection set, and the MAC engine that
// drives the TDMA cycle once Connect is called (§3, §4.9).
type Node struct {
	stack *Stack

	panID        uint16
	localAddress uint8
	coordAddress uint8
	role         NetworkRole

	radios         []radioBinding
	multiradioCfg  multiradio.Config
	multiradioSet  bool
	multiradio     *multiradio.Coordinator

	conns      map[string]*Connection
	connOrder  []*Connection
	connsByID  map[uint8]*Connection
	timeslotMain      [][]schedule.ConnRef
	timeslotAutoReply [][]schedule.ConnRef

	cycle      *schedule.Cycle
	channelSeq *cca.ChannelSequence
	ddcm       *cca.DDCM
	engine     *mac.Engine

	setupDone         bool
	connected         bool
	certificationMode bool

	callbacks callbackSet

	cycleCounter uint64
}

// NodeInit validates and returns a Node bound to this pan/address triple
// (§6: "node_init(pan_id, local_addr, coord_addr, role) -> node").
func (s *Stack) NodeInit(panID uint16, localAddress, coordAddress uint8, role NetworkRole) (*Node, error) {
	if !s.cfg.UnlockReservedAddresses {
		if panID == ReservedPanID || panID > 0xEFF {
			return nil, newErr(ErrPanID, "pan_id outside {0x001..0xEFF}")
		}
		if isReservedAddress(localAddress) {
			return nil, newErr(ErrLocalAddress, "local address is reserved")
		}
		if isReservedAddress(coordAddress) {
			return nil, newErr(ErrDestinationAddress, "coordinator address is reserved")
		}
	}
	if role != RoleCoordinator && role != RoleNode {
		return nil, newErr(ErrNetworkRole, "unrecognized network role")
	}

	n := &Node{
		stack:        s,
		panID:        panID,
		localAddress: localAddress,
		coordAddress: coordAddress,
		role:         role,
		conns:        make(map[string]*Connection),
		connsByID:    make(map[uint8]*Connection),
	}
	n.timeslotMain = make([][]schedule.ConnRef, len(s.cfg.TimeslotDurationsUs))
	n.timeslotAutoReply = make([][]schedule.ConnRef, len(s.cfg.TimeslotDurationsUs))
	s.nodes = append(s.nodes, n)
	return n, nil
}

// RadioModuleInit binds one of the board's physical radios to this node
// (§6: "radio_module_init(node, radio_id, calibrate)").
func (n *Node) RadioModuleInit(radioID int, calibrate bool) error {
	if n.setupDone {
		return newErr(ErrChangingConfigWhileRunning, "radio_module_init after setup")
	}
	radios := n.stack.hal.Radios()
	if radioID < 0 || radioID >= len(radios) {
		return newErr(ErrRadioNotFound, "radio_id out of range for this board")
	}
	for len(n.radios) <= radioID {
		n.radios = append(n.radios, radioBinding{})
	}
	gain := gainloop.New(0, -20, 20, 1, -700, -600)
	driver := phy.NewDriver(radios[radioID].SPI, gain, lqi.NewTracker(), 280)
	n.radios[radioID] = radioBinding{radio: radios[radioID], driver: driver, calibrated: calibrate}
	return nil
}

// SetMultiRadioConfig configures the dual-radio leader-election policy
// (§4.11). Valid only when two radios have been bound.
func (n *Node) SetMultiRadioConfig(cfg multiradio.Config) error {
	if n.setupDone {
		return newErr(ErrChangingConfigWhileRunning, "multi-radio config after setup")
	}
	if len(n.radios) < 2 {
		return newErr(ErrSecondRadioNotInit, "multi-radio config requires both radios bound")
	}
	n.multiradioCfg = cfg
	n.multiradioSet = true
	return nil
}

// SetCertificationMode switches the node into certification mode, which
// disables RDO and DDCM (§4.7, §8 invariant #11, §9 "certification mode
// mutation after init" design note). Valid only while stopped.
func (n *Node) SetCertificationMode(enabled bool) error {
	if n.setupDone {
		return newErr(ErrInvalidOperationAfterSetup, "certification mode must be set before setup")
	}
	n.certificationMode = enabled
	return nil
}

// Setup validates cross-connection invariants and allocates every arena/
// queue the node will use once connected (§6: "setup(node) validates
// cross-connection invariants"). Calling Setup twice without changing any
// configuration in between is a no-op and returns nil both times (§8
// invariant #8: validation idempotence).
func (n *Node) Setup() error {
	if n.setupDone {
		return nil
	}
	if len(n.radios) == 0 {
		return newErr(ErrNoChannelInit, "setup requires at least one radio_module_init")
	}
	if err := n.validateCrossConnectionInvariants(); err != nil {
		return err
	}

	tickFreq := n.stack.hal.TickFrequencyHz()
	timeslots := make([]schedule.Timeslot, len(n.stack.cfg.TimeslotDurationsUs))
	for i, us := range n.stack.cfg.TimeslotDurationsUs {
		timeslots[i] = schedule.Timeslot{
			DurationPLLCycles: uint32(hal.TicksFromDuration(time.Duration(us)*time.Microsecond, tickFreq)),
			Main:              n.timeslotMain[i],
			AutoReply:         n.timeslotAutoReply[i],
		}
	}
	cycle, err := schedule.NewCycle(timeslots, n.stack.cfg.ChannelSequence)
	if err != nil {
		return err
	}

	rdoAndDDCMEnabled := !n.certificationMode
	n.channelSeq = cca.NewChannelSequence(len(n.stack.cfg.ChannelSequence), n.panID)
	if n.stack.cfg.Concurrency == ConcurrencyLowPerf && rdoAndDDCMEnabled {
		n.ddcm = cca.NewDDCM(true, uint32(hal.TicksFromDuration(50*time.Microsecond, tickFreq)), uint64(hal.TicksFromDuration(2*time.Second, tickFreq)), uint64(n.panID)+1)
	} else {
		n.ddcm = cca.NewDDCM(false, 0, 0, uint64(n.panID)+1)
	}

	n.engine = mac.NewEngine(n.localAddress, cycle, n.channelSeq, n.ddcm)
	for _, c := range n.connOrder {
		if err := c.build(n, rdoAndDDCMEnabled && n.stack.cfg.Concurrency == ConcurrencyHighPerf); err != nil {
			return err
		}
		n.engine.AddConnection(c.id, c.mac)
		n.connsByID[c.id] = c
	}

	if n.multiradioSet {
		n.multiradio = multiradio.NewCoordinator(n.multiradioCfg)
	}

	n.cycle = cycle
	n.setupDone = true
	return nil
}

func (n *Node) validateCrossConnectionInvariants() error {
	var sawPriority, sawNoPriority bool
	for _, c := range n.connOrder {
		if c.arqEnabled && !c.ackEnabled {
			return newErr(ErrArqWithAckDisabled, c.name+": arq requires ack")
		}
		if c.creditFlowEnabled && !c.ackEnabled {
			return newErr(ErrCreditFlowCtrlWithAckDisabled, c.name+": credit flow control requires ack")
		}
		if c.ackEnabled && !c.hasMainSlot {
			return newErr(ErrAckNotSupportedInAutoReplyConnection, c.name+": ack requires a main-direction timeslot")
		}
		if !c.isTXConnection(n.localAddress) && c.throttleRatio != 0 && c.throttleRatio != 100 {
			return newErr(ErrThrottlingOnRxConnection, c.name+": throttling only applies to a TX connection")
		}
		if c.priority != 0 {
			sawPriority = true
		} else {
			sawNoPriority = true
		}
	}
	if sawPriority && sawNoPriority {
		return newErr(ErrPrioNotEnableOnAllConn, "priority must be set on all connections or none")
	}
	return nil
}

// installedNode is the single process-wide reference IRQ handlers are
// wired against, set at Connect and cleared at Disconnect (§9: "a single
// install point is the HAL-interrupt wiring", replacing the source's
// module-level `wps` global with an explicit, narrow OnceCell).
var installedNode atomic.Pointer[Node]

// Connect installs this node's IRQ wiring and starts driving the TDMA
// cycle (§6: "connect()"). The application still owns the run loop: on
// a polled Hal (the simulated Hal, any bare-metal superloop) it calls
// Poll once per tick; Connect only wires the interrupt-context plumbing
// the source's IRQ entry points model (§6).
func (n *Node) Connect() error {
	if !n.setupDone {
		return newErr(ErrNotInitialized, "connect before setup")
	}
	if n.connected {
		return newErr(ErrAlreadyConnected, "connect on an already-connected node")
	}
	if !installedNode.CompareAndSwap(nil, n) {
		return newErr(ErrAlreadyConnected, "another node is already installed on this process")
	}

	n.stack.hal.ContextSwitchInstallHandler(n.CallbacksProcessingHandler)
	for i := range n.radios {
		radioID := i
		if err := n.radios[i].radio.IRQ.Watch(hal.RisingEdge, func() { n.RadioIRQHandler(radioID) }); err != nil {
			installedNode.CompareAndSwap(n, nil)
			return wrapErr(ErrInternal, "failed to arm radio irq", err)
		}
	}
	if len(n.radios) > 1 {
		if timer := n.stack.hal.MultiRadioTimer(); timer != nil {
			_ = timer.Start(time.Millisecond, n.SynchronizationTimerCallback)
		}
	}

	n.connected = true
	globalLogger.Info(fmt.Sprintf("node %d: connected, %d radio(s) armed", n.localAddress, len(n.radios)))
	return nil
}

// Disconnect tears down the IRQ wiring installed by Connect (§6).
func (n *Node) Disconnect() error {
	if !n.connected {
		return newErr(ErrNotConnected, "disconnect on a non-connected node")
	}
	for i := range n.radios {
		_ = n.radios[i].radio.IRQ.Unwatch()
	}
	if len(n.radios) > 1 {
		if timer := n.stack.hal.MultiRadioTimer(); timer != nil {
			_ = timer.Stop()
		}
	}
	n.stack.hal.ContextSwitchInstallHandler(nil)
	installedNode.CompareAndSwap(n, nil)
	n.connected = false
	globalLogger.Info(fmt.Sprintf("node %d: disconnected", n.localAddress))
	return nil
}

// RadioIRQHandler is the entry point the board's radio-IRQ vector wires
// per radio (§6: "radio_irq_handler[0|1]"). It records nothing (it only
// bounds-checks radioID); the outcome classification happens inside Poll,
// which runs in the application's scheduling context rather than IRQ
// context, matching the "core never blocks" discipline applied to the
// simulated/cooperative Hal targets this module ships for (§5).
func (n *Node) RadioIRQHandler(radioID int) {
	if radioID < 0 || radioID >= len(n.radios) {
		return
	}
}

// SPIReceiveCompleteHandler is the DMA-complete entry point (§6:
// "spi_receive_complete_handler[0|1]"); Poll drives the equivalent
// OnDMAComplete stepping synchronously for the Hal targets this module
// ships for.
func (n *Node) SPIReceiveCompleteHandler(radioID int) {}

// SynchronizationTimerCallback is the dual-radio sync timer entry point
// (§6). It does nothing beyond its nil check; leadership is not
// re-evaluated here.
func (n *Node) SynchronizationTimerCallback() {
	if n.multiradio == nil {
		return
	}
}

// CallbacksProcessingHandler drains the MAC engine's event queue into the
// registered typed callbacks (§6: "callbacks_processing_handler
// (low-prio)"; §9: "typed callbacks bound to a connection handle").
func (n *Node) CallbacksProcessingHandler() {
	if n.engine == nil {
		return
	}
	for _, ev := range n.engine.Events() {
		n.dispatchEvent(ev)
	}
}

// Poll runs one TDMA slot's worth of work: classify the slot, act on the
// chosen connection's frame, fold the outcome back into MAC state, and
// advance the cycle (§4.9 steps 1-5). Applications drive this once per
// timeslot boundary.
func (n *Node) Poll() error {
	if !n.connected {
		return newErr(ErrNotConnected, "poll on a disconnected node")
	}
	plan, ok := n.engine.DecideSlot()
	if ok {
		switch plan.Action {
		case mac.ActionTX:
			n.stepTX(plan)
		case mac.ActionRX:
			n.stepRX(plan)
		}
	}
	n.engine.Advance(n.stack.hal.Tick(), n.cycleCounter)
	n.cycleCounter++
	n.stack.hal.ContextSwitchTrigger()
	return nil
}

func (n *Node) leaderRadioIndex() int {
	if n.multiradio == nil {
		return 0
	}
	if n.multiradio.Leader() == multiradio.Radio2 && len(n.radios) > 1 {
		return 1
	}
	return 0
}

// radioIndexOf picks which bound physical radio drives connID's frame
// this slot. A redundant dual-radio board (SetMultiRadioConfig called)
// always uses the elected leader; otherwise each connection uses the
// radio it was pinned to at connection_init (ConnectionParams.RadioIndex),
// letting one board talk to more than one independent peer (§4.11's
// leader election is about redundancy, not routing).
func (n *Node) radioIndexOf(connID uint8) int {
	if n.multiradio != nil {
		return n.leaderRadioIndex()
	}
	if fc, ok := n.connsByID[connID]; ok && fc.radioIndex >= 0 && fc.radioIndex < len(n.radios) {
		return fc.radioIndex
	}
	return 0
}

func (n *Node) stepTX(plan mac.SlotPlan) {
	frame, tier, err := n.engine.PrepareTX(plan.ConnectionID, n.stack.hal.Tick())
	if err != nil {
		globalLogger.Error("mac: prepare_tx failed")
		return
	}
	idx := n.radioIndexOf(plan.ConnectionID)
	drv := n.radios[idx].driver

	wire := frame.OnAirBytes()
	cfg := phy.RadioCfgOut{
		Actions:      1,
		TXSize:       uint16(len(wire)),
		PHYMode:      0,
		ChannelIndex: uint8(plan.Channel),
		CCAEnable:    tier.CCATryCount > 0,
		RFGainCode:   uint8(drv.Gain.Gain()),
	}

	drv.EnqueuePrepare(cfg, wire)
	for !drv.QueueDrained() {
		drv.OnDMAComplete()
	}
	if err := drv.OnRadioIRQ(frame, true); err != nil {
		globalLogger.Error("phy: radio irq handling failed on tx")
		return
	}
	if n.multiradio != nil {
		n.multiradio.ObserveFrame(radioIDOf(idx), lqi.RawToTenthDB(frame.RSSICode))
	}
	_ = n.engine.OnOutcome(plan.ConnectionID, frame)
}

func (n *Node) stepRX(plan mac.SlotPlan) {
	c, ok := n.engine.Connection(plan.ConnectionID)
	if !ok {
		return
	}
	fc, ok := n.connsByID[plan.ConnectionID]
	if !ok {
		return
	}
	frame, fail := c.RXArena.Slot(0, fc.slotSize)
	if fail != 0 {
		return
	}
	idx := n.radioIndexOf(plan.ConnectionID)
	drv := n.radios[idx].driver
	drv.EnqueueNone()
	for !drv.QueueDrained() {
		drv.OnDMAComplete()
	}
	if err := drv.OnRadioIRQ(&frame, false); err != nil {
		globalLogger.Error("phy: radio irq handling failed on rx")
		return
	}
	if n.multiradio != nil {
		n.multiradio.ObserveFrame(radioIDOf(idx), lqi.RawToTenthDB(frame.RSSICode))
	}
	_ = n.engine.OnOutcome(plan.ConnectionID, &frame)
}

func radioIDOf(idx int) multiradio.RadioID {
	if idx == 1 {
		return multiradio.Radio2
	}
	return multiradio.Radio1
}
