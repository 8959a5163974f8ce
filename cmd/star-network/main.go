// Command star-network reproduces the three-node star topology
// scenario: one coordinator with two independently wired radios, each
// talking to its own leaf node over a private simulated medium, on a
// 4-slot {250,250,250,250}us schedule. The coordinator alternates
// sends 0..99 to each leaf; each leaf's rx_success must fire exactly
// 100 times, in order, with no cross-delivery between leaves.
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
	count := pflag.IntP("count", "n", 100, "messages sent to each leaf node")
	pflag.Parse()

	if err := run(*count); err != nil {
		log.Fatal(err)
	}
}

// leaf is one coordinator<->node link: its own private medium and Hal
// so that a frame on one link can never physically reach the other
// leaf's radio.
type leaf struct {
	name       string
	node       *swc.Node
	rx         *swc.Connection
	nextWant   int
	gotAll     chan struct{}
}

func run(count int) error {
	timeslots := []uint32{250, 250, 250, 250}
	channels := []int{0, 0, 0, 0}

	coordMedium1 := halsim.NewMedium(1)
	coordMedium2 := halsim.NewMedium(2)
	coordRadio1, node1Radio := halsim.NewRadioPair(coordMedium1)
	coordRadio2, node2Radio := halsim.NewRadioPair(coordMedium2)

	coordHal := halsim.New(1_000_000, coordRadio1, coordRadio2)
	node1Hal := halsim.New(1_000_000, node1Radio)
	node2Hal := halsim.New(1_000_000, node2Radio)

	coordStack, err := swc.Init(swc.Config{TimeslotDurationsUs: timeslots, ChannelSequence: channels, Hal: coordHal})
	if err != nil {
		return fmt.Errorf("coordinator init: %w", err)
	}
	node1Stack, err := swc.Init(swc.Config{TimeslotDurationsUs: timeslots, ChannelSequence: channels, Hal: node1Hal})
	if err != nil {
		return fmt.Errorf("node1 init: %w", err)
	}
	node2Stack, err := swc.Init(swc.Config{TimeslotDurationsUs: timeslots, ChannelSequence: channels, Hal: node2Hal})
	if err != nil {
		return fmt.Errorf("node2 init: %w", err)
	}

	const panID, coordAddr, node1Addr, node2Addr = 0x1234, 0x01, 0x02, 0x03

	coord, err := coordStack.NodeInit(panID, coordAddr, coordAddr, swc.RoleCoordinator)
	if err != nil {
		return err
	}
	node1, err := node1Stack.NodeInit(panID, node1Addr, coordAddr, swc.RoleNode)
	if err != nil {
		return err
	}
	node2, err := node2Stack.NodeInit(panID, node2Addr, coordAddr, swc.RoleNode)
	if err != nil {
		return err
	}
	if err := coord.RadioModuleInit(0, false); err != nil {
		return err
	}
	if err := coord.RadioModuleInit(1, false); err != nil {
		return err
	}
	if err := node1.RadioModuleInit(0, false); err != nil {
		return err
	}
	if err := node2.RadioModuleInit(0, false); err != nil {
		return err
	}

	coordTX1, err := coord.ConnectionInit(swc.ConnectionParams{
		Name: "tx-node1", Source: coordAddr, Destination: node1Addr,
		MaxPayload: 16, QueueSize: 2, RadioIndex: 0,
		TimeslotIDs: []swc.TimeslotID{swc.MAIN(0), swc.MAIN(2)},
	})
	if err != nil {
		return err
	}
	coordTX2, err := coord.ConnectionInit(swc.ConnectionParams{
		Name: "tx-node2", Source: coordAddr, Destination: node2Addr,
		MaxPayload: 16, QueueSize: 2, RadioIndex: 1,
		TimeslotIDs: []swc.TimeslotID{swc.MAIN(1), swc.MAIN(3)},
	})
	if err != nil {
		return err
	}
	node1RX, err := node1.ConnectionInit(swc.ConnectionParams{
		Name: "rx", Source: coordAddr, Destination: node1Addr,
		MaxPayload: 16, QueueSize: 2,
		TimeslotIDs: []swc.TimeslotID{swc.MAIN(0), swc.MAIN(2)},
	})
	if err != nil {
		return err
	}
	node2RX, err := node2.ConnectionInit(swc.ConnectionParams{
		Name: "rx", Source: coordAddr, Destination: node2Addr,
		MaxPayload: 16, QueueSize: 2,
		TimeslotIDs: []swc.TimeslotID{swc.MAIN(1), swc.MAIN(3)},
	})
	if err != nil {
		return err
	}
	for _, c := range []*swc.Connection{coordTX1, coordTX2, node1RX, node2RX} {
		if err := c.SetRetransmission(true, 5, 0); err != nil {
			return err
		}
	}

	leaves := []*leaf{
		{name: "node1", node: node1, rx: node1RX, gotAll: make(chan struct{}, 1)},
		{name: "node2", node: node2, rx: node2RX, gotAll: make(chan struct{}, 1)},
	}
	for _, l := range leaves {
		l := l
		l.rx.SetRxSuccessCb(func() {
			buf, err := l.rx.Receive()
			if err != nil {
				return
			}
			want := fmt.Sprintf("%s:%d", l.name, l.nextWant)
			if string(buf) != want {
				log.Fatalf("%s: out-of-order or cross-delivered frame: got %q want %q", l.name, buf, want)
			}
			_ = l.rx.ReceiveComplete()
			l.nextWant++
			if l.nextWant == count {
				select {
				case l.gotAll <- struct{}{}:
				default:
				}
			}
		})
	}

	for _, n := range []*swc.Node{coord, node1, node2} {
		if err := n.Setup(); err != nil {
			return err
		}
		if err := n.Connect(); err != nil {
			return err
		}
		defer n.Disconnect()
	}

	txSuccess1 := make(chan struct{}, 1)
	txSuccess2 := make(chan struct{}, 1)
	coordTX1.SetTxSuccessCb(func() { select { case txSuccess1 <- struct{}{}: default: } })
	coordTX2.SetTxSuccessCb(func() { select { case txSuccess2 <- struct{}{}: default: } })

	tick := func() error {
		if err := coord.Poll(); err != nil {
			return err
		}
		if err := node1.Poll(); err != nil {
			return err
		}
		if err := node2.Poll(); err != nil {
			return err
		}
		coord.CallbacksProcessingHandler()
		node1.CallbacksProcessingHandler()
		node2.CallbacksProcessingHandler()
		return nil
	}

	deadline := time.Now().Add(10 * time.Second)
	for i := 0; i < count; i++ {
		if err := coordTX1.Send([]byte(fmt.Sprintf("node1:%d", i))); err != nil {
			return fmt.Errorf("send to node1 #%d: %w", i, err)
		}
		if err := coordTX2.Send([]byte(fmt.Sprintf("node2:%d", i))); err != nil {
			return fmt.Errorf("send to node2 #%d: %w", i, err)
		}
		var done1, done2 bool
		for !done1 || !done2 {
			if time.Now().After(deadline) {
				return fmt.Errorf("timed out on message %d (node1 done=%v, node2 done=%v)", i, done1, done2)
			}
			if err := tick(); err != nil {
				return err
			}
			select {
			case <-txSuccess1:
				done1 = true
			default:
			}
			select {
			case <-txSuccess2:
				done2 = true
			default:
			}
		}
	}

	for _, l := range leaves {
		select {
		case <-l.gotAll:
		case <-time.After(time.Until(deadline)):
			return fmt.Errorf("%s: timed out waiting for all %d deliveries", l.name, count)
		}
		fmt.Printf("%s: received %d messages in order\n", l.name, l.nextWant)
	}
	return nil
}
