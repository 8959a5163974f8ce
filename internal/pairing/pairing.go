// Package pairing implements the pairing sub-protocol (C13): a short,
// reliable request/response exchange run on a reserved PAN id to
// authenticate a node, derive its network address from its radio
// serial, and hand it the assigned {pan_id, coordinator_address,
// node_address} tuple (§4.12).
package pairing

import "github.com/uwbstack/swc/internal/swcerr"

// Role distinguishes the two mirror-symmetric sides of the exchange.
type Role int

const (
	RoleCoordinator Role = iota
	RoleNode
)

// Reserved addressing constants (§4.12).
const (
	ReservedPANID           uint16 = 0x0000
	ReservedCoordinatorAddr uint8  = 0x01
	ReservedNodeAddr        uint8  = 0x02
)

// State is one node in the ENTER -> ... -> EXIT state machine (§4.12).
// Coordinator and node share the same State set; which side sends vs.
// waits at a given state is determined by Role.
type State int

const (
	StateEnter State = iota
	StateAuthSend
	StateAuthWait
	StateAuthAction
	StateIdentSend
	StateIdentWait
	StateIdentAction
	StateAddrSend
	StateAddrWait
	StateAddrAction
	StateExit
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEnter:
		return "ENTER"
	case StateAuthSend:
		return "AUTH_SEND"
	case StateAuthWait:
		return "AUTH_WAIT"
	case StateAuthAction:
		return "AUTH_ACTION"
	case StateIdentSend:
		return "IDENT_SEND"
	case StateIdentWait:
		return "IDENT_WAIT"
	case StateIdentAction:
		return "IDENT_ACTION"
	case StateAddrSend:
		return "ADDR_SEND"
	case StateAddrWait:
		return "ADDR_WAIT"
	case StateAddrAction:
		return "ADDR_ACTION"
	case StateExit:
		return "EXIT"
	default:
		return "FAILED"
	}
}

// Command is the single command byte every pairing message carries
// (§4.12: "each message carries a command byte and a payload <= 16B").
type Command uint8

const (
	CmdAuth Command = iota + 1
	CmdIdent
	CmdAddr
)

const maxPayload = 16

// Message is one pairing-protocol frame.
type Message struct {
	Cmd     Command
	Payload [maxPayload]byte
	Len     int
}

// DeviceRole is the node's self-reported role sent in the identification
// message.
type DeviceRole uint8

// DiscoveryList tracks addresses the coordinator has already assigned,
// so address derivation can probe for collisions (§4.12).
type DiscoveryList struct {
	assigned map[uint32]bool
}

// NewDiscoveryList returns an empty list.
func NewDiscoveryList() *DiscoveryList {
	return &DiscoveryList{assigned: make(map[uint32]bool)}
}

// Reserve marks addr as taken.
func (d *DiscoveryList) Reserve(addr uint32) { d.assigned[addr] = true }

// Taken reports whether addr is already assigned.
func (d *DiscoveryList) Taken(addr uint32) bool { return d.assigned[addr] }

const (
	// minNodeAddress/maxNodeAddress exclude the reserved pairing
	// addresses (0x00, 0x01, 0x02) from the derived 20-bit space.
	minNodeAddress = 0x03
	maxNodeAddress = (1 << 20) - 1
)

// crc16CCITT is the CRC-16/CCITT-FALSE variant (poly 0x1021, init 0xFFFF,
// no reflection) used to reduce a 64-bit radio serial to a 20-bit
// candidate address (§4.12). Hand-rolled rather than imported: the
// reference repos in the retrieved pack only reach this algorithm
// through a cgo call into an external C library (ax25_pad.go's
// crc16()), which is not a usable Go dependency, and no pure-Go
// CRC-16/CCITT package appears anywhere in the pack.
func crc16CCITT(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// DeriveNodeAddress reduces a 64-bit radio serial to a 20-bit node
// address, skipping reserved values and probing discovered for
// collisions by incrementing the candidate (§4.12: "CCITT-16 style CRC
// reduction to 20 bits, skipping reserved values, probing the discovery
// list for collision").
func DeriveNodeAddress(serial uint64, discovered *DiscoveryList) uint32 {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(serial >> (8 * i))
	}
	candidate := uint32(crc16CCITT(buf[:]))<<4 | uint32(serial&0xF)
	candidate &= maxNodeAddress

	for attempt := uint32(0); attempt <= maxNodeAddress; attempt++ {
		c := (candidate + attempt) % (maxNodeAddress + 1)
		if c < minNodeAddress {
			continue
		}
		if discovered == nil || !discovered.Taken(c) {
			return c
		}
	}
	return 0 // address space exhausted; caller treats 0 as failure
}

// Assignment is the tuple the coordinator hands the node in the
// addressing phase (§4.12).
type Assignment struct {
	PANID              uint16
	CoordinatorAddress uint8
	NodeAddress        uint32
}

// Machine drives one side of the pairing state machine. Coordinator and
// node instances are mirror-symmetric: the same State sequence, but
// Role determines who sends vs. waits at each Send/Wait pair.
type Machine struct {
	role Role

	appCode       uint64
	serial        uint64
	deviceRole    DeviceRole
	discoveryList *DiscoveryList

	state        State
	deadlineTick uint64
	timeoutTicks uint64
	graceTicks   uint64

	peerSerial     uint64
	peerDeviceRole DeviceRole
	derivedAddress uint32
	assignment     Assignment
}

// Config bundles the tick-domain timeout parameters (§4.12: 5s timeout,
// 100ms grace, expressed here in Hal ticks since the core never calls a
// wall-clock API directly).
type Config struct {
	TimeoutTicks uint64
	GraceTicks   uint64
}

// NewCoordinatorMachine returns a Machine for the coordinator side,
// authenticating peers against appCode.
func NewCoordinatorMachine(appCode uint64, discoveryList *DiscoveryList, cfg Config) *Machine {
	return &Machine{
		role: RoleCoordinator, appCode: appCode, discoveryList: discoveryList,
		state: StateEnter, timeoutTicks: cfg.TimeoutTicks, graceTicks: cfg.GraceTicks,
	}
}

// NewNodeMachine returns a Machine for the node side, presenting serial
// and deviceRole during identification.
func NewNodeMachine(appCode uint64, serial uint64, deviceRole DeviceRole, cfg Config) *Machine {
	return &Machine{
		role: RoleNode, appCode: appCode, serial: serial, deviceRole: deviceRole,
		state: StateEnter, timeoutTicks: cfg.TimeoutTicks, graceTicks: cfg.GraceTicks,
	}
}

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

// Assignment returns the address tuple once the node side has reached
// StateExit successfully.
func (m *Machine) Assignment() Assignment { return m.assignment }

// DerivedAddress returns the address the coordinator derived for the
// peer node, valid from StateIdentAction onward.
func (m *Machine) DerivedAddress() uint32 { return m.derivedAddress }

func (m *Machine) armDeadline(now uint64) { m.deadlineTick = now + m.timeoutTicks + m.graceTicks }

// CheckTimeout fails the exchange if now has passed the armed deadline
// while waiting for a peer message (§4.12: "5s timeout, 100ms grace").
func (m *Machine) CheckTimeout(now uint64) bool {
	switch m.state {
	case StateAuthWait, StateIdentWait, StateAddrWait:
		if now >= m.deadlineTick {
			m.state = StateFailed
			return true
		}
	}
	return false
}

// Begin advances from ENTER into the first Send/Wait step. The node
// side sends its app code immediately (it is the initiator); the
// coordinator side only arms its wait deadline and returns ok=false,
// since it is listening for the node's AUTH message.
func (m *Machine) Begin(now uint64) (out Message, ok bool) {
	m.armDeadline(now)
	if m.role == RoleNode {
		m.state = StateAuthSend
		return m.buildAuthMessage(), true
	}
	m.state = StateAuthWait
	return Message{}, false
}

func (m *Machine) buildAuthMessage() Message {
	var msg Message
	msg.Cmd = CmdAuth
	msg.Len = 8
	for i := 0; i < 8; i++ {
		msg.Payload[i] = byte(m.appCode >> (8 * i))
	}
	return msg
}

// SendIdentification advances the node side from AUTH_SEND into
// IDENT_SEND and then straight into ADDR_WAIT: the node never waits for
// an AUTH or IDENT reply (the coordinator authenticates and derives the
// address silently), so the node sends its identification and then
// waits only for the final address assignment.
func (m *Machine) SendIdentification(now uint64) (Message, error) {
	if m.role != RoleNode || m.state != StateAuthSend {
		return Message{}, swcerr.New(swcerr.Internal, "pairing: send_identification called outside node AUTH_SEND")
	}
	m.state = StateAddrWait
	m.armDeadline(now)
	return m.buildIdentMessage(), nil
}

// OnMessage feeds one received peer message through the state machine,
// returning the next message to send (ok=true) or ok=false if this step
// produced no outgoing message (terminal, waiting, or failed).
func (m *Machine) OnMessage(now uint64, in Message) (out Message, ok bool, err error) {
	switch m.state {
	case StateAuthWait:
		return m.handleAuth(now, in)
	case StateIdentWait:
		return m.handleIdent(now, in)
	case StateAddrWait:
		return m.handleAddr(now, in)
	default:
		return Message{}, false, swcerr.New(swcerr.Internal, "pairing: message received in a non-receiving state")
	}
}

// handleAuth runs on the coordinator only: the node never receives an
// AUTH reply, it moves straight on via SendIdentification.
func (m *Machine) handleAuth(now uint64, in Message) (Message, bool, error) {
	if in.Cmd != CmdAuth || in.Len != 8 {
		m.state = StateFailed
		return Message{}, false, swcerr.New(swcerr.InvalidAppCode, "pairing: malformed auth message")
	}
	var peerAppCode uint64
	for i := 0; i < 8; i++ {
		peerAppCode |= uint64(in.Payload[i]) << (8 * i)
	}
	if peerAppCode != m.appCode {
		m.state = StateFailed
		return Message{}, false, swcerr.New(swcerr.InvalidAppCode, "pairing: app code mismatch")
	}
	m.state = StateIdentWait
	m.armDeadline(now)
	return Message{}, false, nil
}

func (m *Machine) buildIdentMessage() Message {
	var msg Message
	msg.Cmd = CmdIdent
	msg.Len = 9
	for i := 0; i < 8; i++ {
		msg.Payload[i] = byte(m.serial >> (8 * i))
	}
	msg.Payload[8] = byte(m.deviceRole)
	return msg
}

func (m *Machine) handleIdent(now uint64, in Message) (Message, bool, error) {
	if in.Cmd != CmdIdent || in.Len != 9 {
		m.state = StateFailed
		return Message{}, false, swcerr.New(swcerr.WirelessError, "pairing: malformed identification message")
	}
	var serial uint64
	for i := 0; i < 8; i++ {
		serial |= uint64(in.Payload[i]) << (8 * i)
	}
	m.peerSerial = serial
	m.peerDeviceRole = DeviceRole(in.Payload[8])

	// handleIdent only runs via OnMessage's StateIdentWait dispatch, which
	// only the coordinator ever reaches (the node advances via
	// SendIdentification without waiting).
	m.derivedAddress = DeriveNodeAddress(serial, m.discoveryList)
	if m.discoveryList != nil {
		m.discoveryList.Reserve(m.derivedAddress)
	}
	m.state = StateExit
	return m.buildAddrMessage(), true, nil
}

func (m *Machine) buildAddrMessage() Message {
	var msg Message
	msg.Cmd = CmdAddr
	msg.Len = 7
	msg.Payload[0] = byte(ReservedPANID)
	msg.Payload[1] = byte(ReservedPANID >> 8)
	msg.Payload[2] = ReservedCoordinatorAddr
	for i := 0; i < 4; i++ {
		msg.Payload[3+i] = byte(m.derivedAddress >> (8 * i))
	}
	return msg
}

func (m *Machine) handleAddr(now uint64, in Message) (Message, bool, error) {
	if in.Cmd != CmdAddr || in.Len != 7 {
		m.state = StateFailed
		return Message{}, false, swcerr.New(swcerr.WirelessError, "pairing: malformed addressing message")
	}
	pan := uint16(in.Payload[0]) | uint16(in.Payload[1])<<8
	coordAddr := in.Payload[2]
	var nodeAddr uint32
	for i := 0; i < 4; i++ {
		nodeAddr |= uint32(in.Payload[3+i]) << (8 * i)
	}
	m.assignment = Assignment{PANID: pan, CoordinatorAddress: coordAddr, NodeAddress: nodeAddr}
	m.state = StateExit
	return Message{}, false, nil
}
