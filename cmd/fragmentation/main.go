// Command fragmentation reproduces the oversized-payload scenario: a
// 500-byte application message sent over a 124-byte max_payload
// connection with fragmentation enabled, delivered back as one
// bit-exact buffer.
package main

import (
	"bytes"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"

	"github.com/uwbstack/swc"
	"github.com/uwbstack/swc/internal/hal/halsim"
)

func main() {
	size := pflag.IntP("size", "n", 500, "application payload size in bytes")
	maxPayload := pflag.IntP("max-payload", "p", 124, "PHY frame max payload")
	pflag.Parse()

	if err := run(*size, *maxPayload); err != nil {
		log.Fatal(err)
	}
}

func run(size, maxPayload int) error {
	medium := halsim.NewMedium(1)
	coordRadio, nodeRadio := halsim.NewRadioPair(medium)
	coordHal := halsim.New(1_000_000, coordRadio)
	nodeHal := halsim.New(1_000_000, nodeRadio)

	coordStack, err := swc.Init(swc.Config{
		TimeslotDurationsUs: []uint32{1000},
		ChannelSequence:     []int{0},
		Hal:                 coordHal,
	})
	if err != nil {
		return err
	}
	nodeStack, err := swc.Init(swc.Config{
		TimeslotDurationsUs: []uint32{1000},
		ChannelSequence:     []int{0},
		Hal:                 nodeHal,
	})
	if err != nil {
		return err
	}

	const panID, coordAddr, nodeAddr = 0x1234, 0x01, 0x02
	fragCount := (size + maxPayload - 1) / maxPayload

	coord, err := coordStack.NodeInit(panID, coordAddr, coordAddr, swc.RoleCoordinator)
	if err != nil {
		return err
	}
	node, err := nodeStack.NodeInit(panID, nodeAddr, coordAddr, swc.RoleNode)
	if err != nil {
		return err
	}
	if err := coord.RadioModuleInit(0, false); err != nil {
		return err
	}
	if err := node.RadioModuleInit(0, false); err != nil {
		return err
	}

	coordTX, err := coord.ConnectionInit(swc.ConnectionParams{
		Name: "tx", Source: coordAddr, Destination: nodeAddr,
		MaxPayload: maxPayload, QueueSize: fragCount + 1,
		TimeslotIDs: []swc.TimeslotID{swc.MAIN(0)},
	})
	if err != nil {
		return err
	}
	nodeRX, err := node.ConnectionInit(swc.ConnectionParams{
		Name: "rx", Source: coordAddr, Destination: nodeAddr,
		MaxPayload: maxPayload, QueueSize: fragCount + 1,
		TimeslotIDs: []swc.TimeslotID{swc.MAIN(0)},
	})
	if err != nil {
		return err
	}
	if err := coordTX.SetFragmentation(true); err != nil {
		return err
	}
	if err := nodeRX.SetFragmentation(true); err != nil {
		return err
	}
	if err := coordTX.SetRetransmission(true, 5, 0); err != nil {
		return err
	}
	if err := nodeRX.SetRetransmission(true, 5, 0); err != nil {
		return err
	}

	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}

	delivered := make(chan []byte, 1)
	nodeRX.SetRxSuccessCb(func() {
		buf, err := nodeRX.Receive()
		if err != nil {
			return
		}
		delivered <- append([]byte(nil), buf...)
	})

	if err := coord.Setup(); err != nil {
		return err
	}
	if err := node.Setup(); err != nil {
		return err
	}
	if err := coord.Connect(); err != nil {
		return err
	}
	if err := node.Connect(); err != nil {
		return err
	}
	defer coord.Disconnect()
	defer node.Disconnect()

	if err := coordTX.Send(payload); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := coord.Poll(); err != nil {
			return err
		}
		if err := node.Poll(); err != nil {
			return err
		}
		coord.CallbacksProcessingHandler()
		node.CallbacksProcessingHandler()

		select {
		case got := <-delivered:
			if !bytes.Equal(got, payload) {
				return fmt.Errorf("reassembled payload mismatch: got %d bytes, want %d", len(got), len(payload))
			}
			fmt.Printf("delivered %d bytes across %d fragments, bit-exact\n", len(got), fragCount)
			return nil
		default:
		}
	}
	return fmt.Errorf("timed out waiting for delivery")
}
