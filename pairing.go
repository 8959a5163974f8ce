package swc

import (
	"time"

	"github.com/uwbstack/swc/internal/pairing"
)

// PairingRole mirrors internal/pairing.Role at the façade boundary.
type PairingRole int

const (
	PairingCoordinator PairingRole = PairingRole(pairing.RoleCoordinator)
	PairingNode        PairingRole = PairingRole(pairing.RoleNode)
)

// PairingAssignment is the {pan_id, coordinator_address, node_address}
// tuple a node receives once pairing completes (§4.12).
type PairingAssignment = pairing.Assignment

// PairingDiscoveryList tracks addresses a coordinator has already handed
// out so node-address derivation can probe for collisions; share one instance
// across every in-flight coordinator Pairing on a board.
type PairingDiscoveryList = pairing.DiscoveryList

// NewPairingDiscoveryList returns an empty discovery list.
func NewPairingDiscoveryList() *PairingDiscoveryList { return pairing.NewDiscoveryList() }

// Pairing wraps the internal pairing state machine behind the stack's
// Hal tick domain, so applications drive Begin/SendIdentification/
// OnMessage/CheckTimeout with Hal ticks the way every other deadline in
// this façade works
// (§9: "the core never calls a wall-clock API").
type Pairing struct {
	stack   *Stack
	machine *pairing.Machine
}

// NewCoordinatorPairing starts a coordinator-side pairing exchange
// authenticating peers against appCode (§4.12).
func (s *Stack) NewCoordinatorPairing(appCode uint64, discovered *PairingDiscoveryList, timeout, grace time.Duration) *Pairing {
	cfg := pairing.Config{
		TimeoutTicks: s.ticksFromDuration(timeout),
		GraceTicks:   s.ticksFromDuration(grace),
	}
	return &Pairing{stack: s, machine: pairing.NewCoordinatorMachine(appCode, discovered, cfg)}
}

// NewNodePairing starts a node-side pairing exchange presenting serial
// and deviceRole during identification (§4.12).
func (s *Stack) NewNodePairing(appCode, serial uint64, deviceRole uint8, timeout, grace time.Duration) *Pairing {
	cfg := pairing.Config{
		TimeoutTicks: s.ticksFromDuration(timeout),
		GraceTicks:   s.ticksFromDuration(grace),
	}
	m := pairing.NewNodeMachine(appCode, serial, pairing.DeviceRole(deviceRole), cfg)
	return &Pairing{stack: s, machine: m}
}

// State returns the exchange's current protocol state name.
func (p *Pairing) State() string { return p.machine.State().String() }

// Assignment returns the address tuple once a node-side exchange has
// completed.
func (p *Pairing) Assignment() PairingAssignment { return p.machine.Assignment() }

// Begin starts the exchange at tick now, returning the first message to
// transmit if this side is the initiator (§4.12: the node sends AUTH
// first; the coordinator only arms its wait deadline).
func (p *Pairing) Begin(now uint64) (out pairing.Message, ok bool) {
	return p.machine.Begin(now)
}

// SendIdentification advances a node-side exchange past its AUTH send
// into its final address wait (§4.12).
func (p *Pairing) SendIdentification(now uint64) (pairing.Message, error) {
	return p.machine.SendIdentification(now)
}

// OnMessage feeds one received peer message through the exchange.
func (p *Pairing) OnMessage(now uint64, in pairing.Message) (out pairing.Message, ok bool, err error) {
	return p.machine.OnMessage(now, in)
}

// CheckTimeout fails the exchange if now has passed its armed deadline.
func (p *Pairing) CheckTimeout(now uint64) bool { return p.machine.CheckTimeout(now) }
