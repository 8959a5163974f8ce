package swc

import (
	"time"

	"github.com/uwbstack/swc/internal/arq"
	"github.com/uwbstack/swc/internal/cca"
	"github.com/uwbstack/swc/internal/frag"
	"github.com/uwbstack/swc/internal/linkproto"
	"github.com/uwbstack/swc/internal/mac"
	"github.com/uwbstack/swc/internal/queue"
	"github.com/uwbstack/swc/internal/schedule"
	"github.com/uwbstack/swc/internal/xlayer"
)

// ConnectionParams is connection_init's configuration (§6).
type ConnectionParams struct {
	Name                 string
	Source, Destination  uint8
	MaxPayload           int
	QueueSize            int
	TimeslotIDs          []TimeslotID
	ChipRepet            int
	SleepLevel           SleepLevel

	// RadioIndex pins this connection to one of the node's bound physical
	// radios (RadioModuleInit order), for boards wired to more than one
	// independent peer rather than one redundant pair (§4.11 covers the
	// redundant-pair case via multi-radio leader election; this is the
	// plain point-to-multipoint case). Ignored once SetMultiRadioConfig
	// is used, which always picks the elected leader instead. Defaults to
	// radio 0.
	RadioIndex int
}

// Connection is one MAC-level connection: while the node is stopped it
// only holds configuration (§6's setter surface); Setup turns it into a
// live *mac.Connection bound to its own arenas and queues, allocated
// once (§5, §9 "memory pool").
type Connection struct {
	node *Node
	id   uint8
	name string

	source, destination uint8
	maxPayload           int
	queueSize            int
	timeslotIDs          []TimeslotID
	chipRepet            int
	hasMainSlot          bool
	radioIndex           int

	ackEnabled        bool
	creditFlowEnabled bool
	arqEnabled        bool
	arqTryDeadline    uint32
	arqTimeDeadline   uint32
	fecRatio          uint8
	modulation        Modulation
	throttleRatio     uint8
	priority          uint8
	ccaCfg            cca.Config
	fallbackTiers     []cca.FallbackTier
	fragmentationEnabled bool
	autoSyncEnabled   bool
	sleepLevel        SleepLevel

	channels []ChannelParams

	connectAfter    uint32
	disconnectAfter uint32

	slotSize int
	mac      *mac.Connection
	header   *linkproto.Layout

	txSuccessCb func()
	txFailCb    func()
	txDroppedCb func()
	rxSuccessCb func()
	eventCb     func(EventKind, ErrorCode)
}

// ConnectionInit registers a new connection on the node (§6:
// "connection_init(node, {...}) -> connection"). Valid only while
// stopped.
func (n *Node) ConnectionInit(p ConnectionParams) (*Connection, error) {
	if n.setupDone {
		return nil, newErr(ErrChangingConfigWhileRunning, "connection_init after setup")
	}
	if !n.stack.cfg.UnlockReservedAddresses {
		if isReservedAddress(p.Source) {
			return nil, newErr(ErrSourceAddress, "source address is reserved")
		}
		if isReservedAddress(p.Destination) {
			return nil, newErr(ErrDestinationAddress, "destination address is reserved")
		}
	}
	if p.MaxPayload <= 0 || p.MaxPayload > 253 {
		return nil, newErr(ErrPayloadTooBig, "max_payload must be in (0, 253]")
	}
	if p.QueueSize <= 0 {
		return nil, newErr(ErrMinQueueSize, "queue_size must be positive")
	}
	if len(n.connOrder) >= 255 {
		return nil, newErr(ErrTimeslotConnLimitReached, "node has reached its connection limit")
	}

	c := &Connection{
		node:            n,
		id:              uint8(len(n.connOrder)),
		name:            p.Name,
		source:          p.Source,
		destination:     p.Destination,
		maxPayload:      p.MaxPayload,
		queueSize:       p.QueueSize,
		timeslotIDs:     p.TimeslotIDs,
		chipRepet:       p.ChipRepet,
		sleepLevel:      p.SleepLevel,
		radioIndex:      p.RadioIndex,
		ackEnabled:      true,
		throttleRatio:   100,
		connectAfter:    3,
		disconnectAfter: 3,
	}

	ref := schedule.ConnRef{ID: c.id, Source: p.Source, Destination: p.Destination, AckEnabled: c.ackEnabled, SleepLevel: p.SleepLevel}
	for _, tsID := range p.TimeslotIDs {
		idx := int(tsID.Index())
		if idx >= len(n.timeslotMain) {
			return nil, newErr(ErrInvalidParameter, "timeslot id out of range for the configured cycle")
		}
		if tsID.IsAutoReply() {
			n.timeslotAutoReply[idx] = append(n.timeslotAutoReply[idx], ref)
		} else {
			n.timeslotMain[idx] = append(n.timeslotMain[idx], ref)
			c.hasMainSlot = true
		}
	}

	n.connOrder = append(n.connOrder, c)
	n.conns[p.Name] = c
	return c, nil
}

// ConnectionAddChannel registers one channel's pulse configuration on
// the connection (§6). Valid only while stopped.
func (c *Connection) ConnectionAddChannel(p ChannelParams) error {
	if c.node.setupDone {
		return newErr(ErrAddChannelOnInvalidConnection, "add_channel after setup")
	}
	if p.TxPulseCount < 0 || p.TxPulseWidth < 0 || p.TxPulseGain < 0 || p.RxPulseCount < 0 {
		return newErr(ErrInvalidParameter, "pulse configuration must be non-negative")
	}
	c.channels = append(c.channels, p)
	return nil
}

// isTXConnection reports whether this connection transmits from the
// local address (as opposed to being a pure RX sink).
func (c *Connection) isTXConnection(localAddress uint8) bool { return c.source == localAddress }

func (c *Connection) requireStopped() error {
	if c.node.setupDone {
		return newErr(ErrChangingConfigWhileRunning, c.name+": setter called after setup")
	}
	return nil
}

// SetAck enables or disables acknowledgement on this connection.
func (c *Connection) SetAck(enabled bool) error {
	if err := c.requireStopped(); err != nil {
		return err
	}
	c.ackEnabled = enabled
	return nil
}

// SetCreditFlowControl enables or disables credit-based flow control
// (requires ack, validated at Setup).
func (c *Connection) SetCreditFlowControl(enabled bool) error {
	if err := c.requireStopped(); err != nil {
		return err
	}
	c.creditFlowEnabled = enabled
	return nil
}

// SetRetransmission configures Stop-and-Wait ARQ (§4.4). tryDeadline is
// the maximum retry count; timeDeadline is a tick-domain wall-clock
// ceiling (0 disables it).
func (c *Connection) SetRetransmission(enabled bool, tryDeadline, timeDeadline uint32) error {
	if err := c.requireStopped(); err != nil {
		return err
	}
	c.arqEnabled = enabled
	c.arqTryDeadline = tryDeadline
	c.arqTimeDeadline = timeDeadline
	return nil
}

// SetFECRatio sets the forward-error-correction ratio code.
func (c *Connection) SetFECRatio(ratio uint8) error {
	if err := c.requireStopped(); err != nil {
		return err
	}
	if ratio > 100 {
		return newErr(ErrFecRatio, "fec_ratio must be a percentage")
	}
	c.fecRatio = ratio
	return nil
}

// SetModulation sets the on-air modulation.
func (c *Connection) SetModulation(m Modulation) error {
	if err := c.requireStopped(); err != nil {
		return err
	}
	c.modulation = m
	return nil
}

// SetThrottlingRatio configures the Bresenham throttling admission
// ratio (§8 invariant #10). 100 means never throttled.
func (c *Connection) SetThrottlingRatio(activeRatio uint8) error {
	if err := c.requireStopped(); err != nil {
		return err
	}
	if activeRatio > 100 {
		return newErr(ErrThrottlingNotSupported, "active_ratio must be a percentage")
	}
	c.throttleRatio = activeRatio
	return nil
}

// SetPriority sets the connection's TX priority; higher wins ties when
// multiple TX-eligible connections share a timeslot (§4.9).
func (c *Connection) SetPriority(priority uint8) error {
	if err := c.requireStopped(); err != nil {
		return err
	}
	if priority > 7 {
		return newErr(ErrMaxConnPriority, "priority exceeds the maximum")
	}
	c.priority = priority
	return nil
}

// SetFallbackConfig sets the payload-size-indexed rate/power fallback
// table (§4.7).
func (c *Connection) SetFallbackConfig(tiers []FallbackTier) error {
	if err := c.requireStopped(); err != nil {
		return err
	}
	cfgTiers := make([]cca.FallbackTier, len(tiers))
	for i, t := range tiers {
		cfgTiers[i] = cca.FallbackTier{
			SizeThreshold: t.SizeThreshold,
			TxPulseCount:  t.TxPulseCount,
			TxPulseWidth:  t.TxPulseWidth,
			TxPulseGain:   t.TxPulseGain,
			CCATryCount:   t.CCATryCount,
		}
	}
	if _, err := cca.NewFallbackTable(cfgTiers); err != nil {
		return err
	}
	c.fallbackTiers = cfgTiers
	return nil
}

// SetCCAConfig sets the clear-channel-assessment policy (§4.7).
func (c *Connection) SetCCAConfig(enabled bool, thresholdTenthDB int16, tryCount int, retryTime time.Duration, failAction CCAFailAction) error {
	if err := c.requireStopped(); err != nil {
		return err
	}
	fa := cca.FailAbort
	if failAction == CCAFailForce {
		fa = cca.FailForce
	}
	c.ccaCfg = cca.Config{Enabled: enabled, Threshold: thresholdTenthDB, TryCount: tryCount, RetryTime: retryTime, FailAction: fa}
	return nil
}

// SetFragmentation enables fragmentation of application payloads larger
// than max_payload across queue_size PHY frames (§4.6).
func (c *Connection) SetFragmentation(enabled bool) error {
	if err := c.requireStopped(); err != nil {
		return err
	}
	c.fragmentationEnabled = enabled
	return nil
}

// SetAutoSync enables schedule drift correction from this connection's
// received frames (§4.8).
func (c *Connection) SetAutoSync(enabled bool) error {
	if err := c.requireStopped(); err != nil {
		return err
	}
	c.autoSyncEnabled = enabled
	return nil
}

// SetConnectStatusThresholds configures the edge-trigger counts for the
// Connect/Disconnect events (§4.9).
func (c *Connection) SetConnectStatusThresholds(connectAfter, disconnectAfter uint32) error {
	if err := c.requireStopped(); err != nil {
		return err
	}
	c.connectAfter = connectAfter
	c.disconnectAfter = disconnectAfter
	return nil
}

// payloadOverhead is the façade-owned bytes prefixed to every queue slot:
// a length byte (the wire frame's own length-prefix concept, §6, applied
// here to the queue's fixed-size slots so variable-length application
// messages survive the round trip byte-exact) plus, when fragmentation
// is enabled, one fragmentation-metadata byte (index/last).
func (c *Connection) payloadOverhead() int {
	if c.fragmentationEnabled {
		return 2
	}
	return 1
}

// build finalizes the connection's link-protocol layout, arenas, queues,
// and mac.Connection at Setup (§5: single allocation point).
func (c *Connection) build(n *Node, rdoEnabled bool) error {
	kinds := []linkproto.FieldKind{linkproto.FieldSeq, linkproto.FieldConnectionID}
	if c.creditFlowEnabled {
		kinds = append(kinds, linkproto.FieldCredit)
	}
	if rdoEnabled {
		kinds = append(kinds, linkproto.FieldRDO)
	}
	layout, err := linkproto.NewLayout(kinds, 0)
	if err != nil {
		return err
	}

	slotSize := c.maxPayload + c.payloadOverhead()
	txArena := xlayer.NewArena(c.queueSize, layout.HeaderSize(), slotSize)
	rxArena := xlayer.NewArena(c.queueSize, layout.HeaderSize(), slotSize)
	txQueue := queue.New(c.queueSize, slotSize)
	rxQueue := queue.New(c.queueSize, slotSize)

	var reassembler *frag.Reassembler
	if c.fragmentationEnabled {
		reassembler = frag.NewReassembler(c.queueSize * slotSize)
	}
	var fallback *cca.FallbackTable
	if len(c.fallbackTiers) > 0 {
		fallback, _ = cca.NewFallbackTable(c.fallbackTiers)
	}

	arqCfg := arq.Config{Enabled: c.arqEnabled, TryDeadline: c.arqTryDeadline, TimeDeadline: uint64(c.arqTimeDeadline)}
	statusCfg := mac.ConnectStatusConfig{ConnectAfter: c.connectAfter, DisconnectAfter: c.disconnectAfter}

	macConn := mac.NewConnection(
		schedule.ConnRef{ID: c.id, Source: c.source, Destination: c.destination, AckEnabled: c.ackEnabled, SleepLevel: c.sleepLevel},
		c.priority, layout, c.ccaCfg, fallback, arqCfg,
		txArena, txQueue, rxArena, rxQueue, reassembler, statusCfg,
	)
	macConn.CreditFlowEnabled = c.creditFlowEnabled
	macConn.Throttle = mac.Throttle{ActiveRatio: c.throttleRatio}
	if rdoEnabled {
		// Rollover/step defaults match the SR1100 SDK's
		// WPS_DEFAULT_RDO_ROLLOVER_VAL/WPS_DEFAULT_RDO_STEP_VALUE.
		macConn.RDO = cca.NewRDO(15, 1)
	}

	c.slotSize = slotSize
	c.header = layout
	c.mac = macConn
	return nil
}
