package pairing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testAppCode = 0x0123456789ABCDEF

func TestFullExchangeDerivesAddressAndDeliversAssignment(t *testing.T) {
	now := uint64(0)
	discovery := NewDiscoveryList()
	cfg := Config{TimeoutTicks: 5000, GraceTicks: 100}

	node := NewNodeMachine(testAppCode, 0xDEADBEEFCAFE1234, DeviceRole(1), cfg)
	coord := NewCoordinatorMachine(testAppCode, discovery, cfg)

	// ENTER: node sends AUTH, coordinator starts listening.
	authMsg, ok := node.Begin(now)
	require.True(t, ok)
	_, ok = coord.Begin(now)
	require.False(t, ok)

	_, sendsBack, err := coord.OnMessage(now, authMsg)
	require.NoError(t, err)
	require.False(t, sendsBack)
	require.Equal(t, StateIdentWait, coord.State())

	identMsg, err := node.SendIdentification(now)
	require.NoError(t, err)
	require.Equal(t, StateAddrWait, node.State())

	addrMsg, sendsAddr, err := coord.OnMessage(now, identMsg)
	require.NoError(t, err)
	require.True(t, sendsAddr)
	require.Equal(t, StateExit, coord.State())
	require.NotZero(t, coord.DerivedAddress())
	require.True(t, discovery.Taken(coord.DerivedAddress()))

	_, sendsBack, err = node.OnMessage(now, addrMsg)
	require.NoError(t, err)
	require.False(t, sendsBack)
	require.Equal(t, StateExit, node.State())
	require.Equal(t, coord.DerivedAddress(), node.Assignment().NodeAddress)
	require.Equal(t, ReservedCoordinatorAddr, node.Assignment().CoordinatorAddress)
}

func TestAuthRejectsWrongAppCode(t *testing.T) {
	cfg := Config{TimeoutTicks: 5000, GraceTicks: 100}
	coord := NewCoordinatorMachine(testAppCode, NewDiscoveryList(), cfg)
	coord.Begin(0)

	bogus := NewNodeMachine(testAppCode+1, 0x1122334455667788, DeviceRole(0), cfg)
	authMsg, _ := bogus.Begin(0)

	_, _, err := coord.OnMessage(0, authMsg)
	require.Error(t, err)
	require.Equal(t, StateFailed, coord.State())
}

func TestCheckTimeoutFailsAfterDeadline(t *testing.T) {
	cfg := Config{TimeoutTicks: 100, GraceTicks: 10}
	coord := NewCoordinatorMachine(testAppCode, NewDiscoveryList(), cfg)
	coord.Begin(0)

	require.False(t, coord.CheckTimeout(50))
	require.True(t, coord.CheckTimeout(200))
	require.Equal(t, StateFailed, coord.State())
}

func TestDeriveNodeAddressAvoidsReservedAndCollisions(t *testing.T) {
	discovered := NewDiscoveryList()
	a := DeriveNodeAddress(0x1, discovered)
	require.GreaterOrEqual(t, a, uint32(minNodeAddress))
	discovered.Reserve(a)

	b := DeriveNodeAddress(0x1, discovered)
	require.NotEqual(t, a, b, "a colliding serial must probe to a different address")
}
