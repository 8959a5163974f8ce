// Command datalink reproduces the ARQ blackout/recovery scenario: ten
// sends over one ack+ARQ connection, with the simulated medium cut to
// total loss partway through to force the retry budget to exhaust and
// tx_dropped to fire, then restored so later sends succeed again.
package main

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"

	"github.com/uwbstack/swc"
	"github.com/uwbstack/swc/internal/hal/halsim"
)

func main() {
	messages := pflag.IntP("messages", "n", 10, "number of messages to send")
	blackoutAt := pflag.IntP("blackout-at", "b", 6, "1-indexed send that begins the antenna blackout")
	reconnectAt := pflag.IntP("reconnect-at", "r", 9, "1-indexed send that ends the blackout")
	seed := pflag.Int64P("seed", "s", 1, "halsim medium PRNG seed")
	pflag.Parse()

	if err := run(*messages, *blackoutAt, *reconnectAt, *seed); err != nil {
		log.Fatal(err)
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeDropped
)

func run(messages, blackoutAt, reconnectAt int, seed int64) error {
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

	results := make(chan outcome, 1)
	coordTX.SetTxSuccessCb(func() { results <- outcomeSuccess })
	coordTX.SetTxDroppedCb(func() { results <- outcomeDropped })
	nodeRX.SetRxSuccessCb(func() {
		buf, err := nodeRX.Receive()
		if err != nil {
			return
		}
		_ = nodeRX.ReceiveComplete()
		_ = buf
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

	var dropped, succeeded int
	for i := 1; i <= messages; i++ {
		if i == blackoutAt {
			medium.LossPct = 1
			fmt.Println("antenna disconnected")
		}
		if i == reconnectAt {
			medium.LossPct = 0
			fmt.Println("antenna reconnected")
		}

		if err := coordTX.Send([]byte(fmt.Sprintf("message %d", i))); err != nil {
			return fmt.Errorf("send %d: %w", i, err)
		}

		deadline := time.Now().Add(2 * time.Second)
		var got bool
		for time.Now().Before(deadline) && !got {
			if err := coord.Poll(); err != nil {
				return err
			}
			if err := node.Poll(); err != nil {
				return err
			}
			coord.CallbacksProcessingHandler()
			node.CallbacksProcessingHandler()

			select {
			case r := <-results:
				got = true
				switch r {
				case outcomeSuccess:
					succeeded++
					fmt.Printf("message %d: delivered\n", i)
				case outcomeDropped:
					dropped++
					fmt.Printf("message %d: dropped after retry budget exhausted\n", i)
				}
			default:
			}
		}
		if !got {
			return fmt.Errorf("message %d: timed out waiting for outcome", i)
		}
	}

	fmt.Printf("%d delivered, %d dropped, out of %d sent\n", succeeded, dropped, messages)
	return nil
}
