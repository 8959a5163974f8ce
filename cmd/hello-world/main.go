// Command hello-world reproduces the coordinator/node byte-exact
// round-trip scenario: one TX connection, one RX connection, ack and
// ARQ on, a single short message delivered bit-for-bit.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/uwbstack/swc"
	"github.com/uwbstack/swc/internal/hal/halsim"
)

func main() {
	message := pflag.StringP("message", "m", "Hello, World! 0\n\r", "payload to send")
	seed := pflag.Int64P("seed", "s", 1, "halsim medium PRNG seed")
	pflag.Parse()

	if err := run(*message, *seed); err != nil {
		log.Fatal(err)
	}
}

func run(message string, seed int64) error {
	medium := halsim.NewMedium(seed)
	coordRadio, nodeRadio := halsim.NewRadioPair(medium)
	coordHal := halsim.New(1_000_000, coordRadio)
	nodeHal := halsim.New(1_000_000, nodeRadio)

	coordStack, err := swc.Init(swc.Config{
		TimeslotDurationsUs: []uint32{1000},
		ChannelSequence:     []int{0},
		Hal:                 coordHal,
	})
	if err != nil {
		return fmt.Errorf("coordinator init: %w", err)
	}
	nodeStack, err := swc.Init(swc.Config{
		TimeslotDurationsUs: []uint32{1000},
		ChannelSequence:     []int{0},
		Hal:                 nodeHal,
	})
	if err != nil {
		return fmt.Errorf("node init: %w", err)
	}

	const panID, coordAddr, nodeAddr = 0x1234, 0x01, 0x02

	coord, err := coordStack.NodeInit(panID, coordAddr, coordAddr, swc.RoleCoordinator)
	if err != nil {
		return fmt.Errorf("coordinator node_init: %w", err)
	}
	node, err := nodeStack.NodeInit(panID, nodeAddr, coordAddr, swc.RoleNode)
	if err != nil {
		return fmt.Errorf("node node_init: %w", err)
	}
	if err := coord.RadioModuleInit(0, false); err != nil {
		return err
	}
	if err := node.RadioModuleInit(0, false); err != nil {
		return err
	}

	coordTX, err := coord.ConnectionInit(swc.ConnectionParams{
		Name: "tx", Source: coordAddr, Destination: nodeAddr,
		MaxPayload: 64, QueueSize: 2, TimeslotIDs: []swc.TimeslotID{swc.MAIN(0)},
	})
	if err != nil {
		return err
	}
	nodeRX, err := node.ConnectionInit(swc.ConnectionParams{
		Name: "rx", Source: coordAddr, Destination: nodeAddr,
		MaxPayload: 64, QueueSize: 2, TimeslotIDs: []swc.TimeslotID{swc.MAIN(0)},
	})
	if err != nil {
		return err
	}
	if err := coordTX.SetRetransmission(true, 5, 0); err != nil {
		return err
	}
	if err := nodeRX.SetRetransmission(true, 5, 0); err != nil {
		return err
	}

	delivered := make(chan []byte, 1)
	nodeRX.SetRxSuccessCb(func() {
		buf, err := nodeRX.Receive()
		if err != nil {
			return
		}
		cp := append([]byte(nil), buf...)
		_ = nodeRX.ReceiveComplete()
		delivered <- cp
	})

	if err := coord.Setup(); err != nil {
		return fmt.Errorf("coordinator setup: %w", err)
	}
	if err := node.Setup(); err != nil {
		return fmt.Errorf("node setup: %w", err)
	}
	if err := coord.Connect(); err != nil {
		return err
	}
	if err := node.Connect(); err != nil {
		return err
	}
	defer coord.Disconnect()
	defer node.Disconnect()

	if err := coordTX.Send([]byte(message)); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	deadline := time.Now().Add(2 * time.Second)
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
			if string(got) != message {
				fmt.Fprintf(os.Stderr, "mismatch: got %q want %q\n", got, message)
				os.Exit(1)
			}
			fmt.Printf("node received %d bytes: %q\n", len(got), got)
			return nil
		default:
		}
	}
	return fmt.Errorf("timed out waiting for delivery")
}
