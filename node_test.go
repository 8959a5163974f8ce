package swc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uwbstack/swc/internal/hal/halsim"
	"github.com/uwbstack/swc/internal/swcerr"
)

func newTestPair(t *testing.T) (coord, node *Node) {
	t.Helper()
	medium := halsim.NewMedium(1)
	coordRadio, nodeRadio := halsim.NewRadioPair(medium)
	coordHal := halsim.New(1_000_000, coordRadio)
	nodeHal := halsim.New(1_000_000, nodeRadio)

	coordStack, err := Init(Config{
		TimeslotDurationsUs: []uint32{1000},
		ChannelSequence:     []int{0},
		Hal:                 coordHal,
	})
	require.NoError(t, err)
	nodeStack, err := Init(Config{
		TimeslotDurationsUs: []uint32{1000},
		ChannelSequence:     []int{0},
		Hal:                 nodeHal,
	})
	require.NoError(t, err)

	const panID, coordAddr, nodeAddr = 0x1234, 0x01, 0x02
	coord, err = coordStack.NodeInit(panID, coordAddr, coordAddr, RoleCoordinator)
	require.NoError(t, err)
	node, err = nodeStack.NodeInit(panID, nodeAddr, coordAddr, RoleNode)
	require.NoError(t, err)

	require.NoError(t, coord.RadioModuleInit(0, false))
	require.NoError(t, node.RadioModuleInit(0, false))
	return coord, node
}

func pollUntil(t *testing.T, coord, node *Node, timeout time.Duration, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		require.NoError(t, coord.Poll())
		require.NoError(t, node.Poll())
		coord.CallbacksProcessingHandler()
		node.CallbacksProcessingHandler()
		if done() {
			return
		}
	}
	t.Fatal("timed out waiting for condition")
}

func TestByteExactRoundTrip(t *testing.T) {
	coord, node := newTestPair(t)

	coordTX, err := coord.ConnectionInit(ConnectionParams{
		Name: "tx", Source: 0x01, Destination: 0x02,
		MaxPayload: 64, QueueSize: 2, TimeslotIDs: []TimeslotID{MAIN(0)},
	})
	require.NoError(t, err)
	nodeRX, err := node.ConnectionInit(ConnectionParams{
		Name: "rx", Source: 0x01, Destination: 0x02,
		MaxPayload: 64, QueueSize: 2, TimeslotIDs: []TimeslotID{MAIN(0)},
	})
	require.NoError(t, err)
	require.NoError(t, coordTX.SetRetransmission(true, 5, 0))
	require.NoError(t, nodeRX.SetRetransmission(true, 5, 0))

	const want = "Hello, World! 0\n\r"
	var got []byte
	nodeRX.SetRxSuccessCb(func() {
		buf, err := nodeRX.Receive()
		if err != nil {
			return
		}
		got = append([]byte(nil), buf...)
		_ = nodeRX.ReceiveComplete()
	})

	require.NoError(t, coord.Setup())
	require.NoError(t, node.Setup())
	require.NoError(t, coord.Connect())
	require.NoError(t, node.Connect())
	defer coord.Disconnect()
	defer node.Disconnect()

	require.NoError(t, coordTX.Send([]byte(want)))

	pollUntil(t, coord, node, 2*time.Second, func() bool { return got != nil })
	require.Equal(t, want, string(got))
}

func TestFragmentedRoundTrip(t *testing.T) {
	coord, node := newTestPair(t)

	const maxPayload = 124
	payload := make([]byte, 500)
	for i := range payload {
		payload[i] = byte(i)
	}
	fragCount := (len(payload) + maxPayload - 1) / maxPayload

	coordTX, err := coord.ConnectionInit(ConnectionParams{
		Name: "tx", Source: 0x01, Destination: 0x02,
		MaxPayload: maxPayload, QueueSize: fragCount + 1,
		TimeslotIDs: []TimeslotID{MAIN(0)},
	})
	require.NoError(t, err)
	nodeRX, err := node.ConnectionInit(ConnectionParams{
		Name: "rx", Source: 0x01, Destination: 0x02,
		MaxPayload: maxPayload, QueueSize: fragCount + 1,
		TimeslotIDs: []TimeslotID{MAIN(0)},
	})
	require.NoError(t, err)
	require.NoError(t, coordTX.SetFragmentation(true))
	require.NoError(t, nodeRX.SetFragmentation(true))
	require.NoError(t, coordTX.SetRetransmission(true, 5, 0))
	require.NoError(t, nodeRX.SetRetransmission(true, 5, 0))

	var got []byte
	nodeRX.SetRxSuccessCb(func() {
		buf, err := nodeRX.Receive()
		if err != nil {
			return
		}
		got = append([]byte(nil), buf...)
	})

	require.NoError(t, coord.Setup())
	require.NoError(t, node.Setup())
	require.NoError(t, coord.Connect())
	require.NoError(t, node.Connect())
	defer coord.Disconnect()
	defer node.Disconnect()

	require.NoError(t, coordTX.Send(payload))

	pollUntil(t, coord, node, 3*time.Second, func() bool { return got != nil })
	require.Equal(t, payload, got)
}

func TestReservedAddressRejected(t *testing.T) {
	medium := halsim.NewMedium(1)
	coordRadio, _ := halsim.NewRadioPair(medium)
	coordHal := halsim.New(1_000_000, coordRadio)
	stack, err := Init(Config{
		TimeslotDurationsUs: []uint32{1000},
		ChannelSequence:     []int{0},
		Hal:                 coordHal,
	})
	require.NoError(t, err)

	_, err = stack.NodeInit(ReservedPanID, 0x01, 0x01, RoleCoordinator)
	require.Error(t, err)
	require.ErrorIs(t, err, swcerr.Sentinel(ErrPanID))
}

func TestCertificationModeDisablesRDOAndDDCM(t *testing.T) {
	coord, _ := newTestPair(t)
	require.NoError(t, coord.SetCertificationMode(true))

	conn, err := coord.ConnectionInit(ConnectionParams{
		Name: "tx", Source: 0x01, Destination: 0x02,
		MaxPayload: 64, QueueSize: 2, TimeslotIDs: []TimeslotID{MAIN(0)},
	})
	require.NoError(t, err)
	require.NoError(t, coord.Setup())
	require.Nil(t, conn.mac.RDO, "certification mode leaves the RDO header field off")
	require.Zero(t, coord.ddcm.SlotOffset(^uint64(0)), "certification mode leaves DDCM disabled")
}
