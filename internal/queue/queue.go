// Package queue implements the circular SPSC ring (C2) used for every TX
// queue, RX queue, callback queue, and pairing request queue in the
// stack. Per §5, producer and consumer always run on different execution
// contexts (app vs MAC-in-IRQ, MAC-in-IRQ vs low-prio ISR) so no locking
// is required — memory ordering only needs the happens-before Go's
// memory model already gives atomic loads/stores of aligned machine
// words, which is what the index fields below rely on. The split into
// Producer/Consumer (§9 design note) mirrors the teacher's own
// discipline of keeping a single mutable ring but restricting each side
// to the operations it is allowed to perform.
package queue

import "sync/atomic"

// Queue is a fixed-capacity ring of fixed-size byte slots. Capacity is
// fixed at construction (the engine never grows a queue once connected).
type Queue struct {
	slots    [][]byte
	slotSize int
	cap      int

	head atomic.Uint32 // next index to dequeue from
	tail atomic.Uint32 // next index to enqueue into
	// count lets IsFull/IsEmpty/Size be computed without risking the
	// head==tail ambiguity of a plain two-pointer ring when capacity
	// could be zero; it is only ever written by one side each
	// (producer increments, consumer decrements) so no lock is needed.
	count atomic.Int32
}

// New allocates a queue of `capacity` slots each `slotSize` bytes, the
// single allocation the arena-based connection setup makes for this
// queue (§5: the memory pool is single-producer at init time only).
func New(capacity, slotSize int) *Queue {
	q := &Queue{slotSize: slotSize, cap: capacity}
	q.slots = make([][]byte, capacity)
	for i := range q.slots {
		q.slots[i] = make([]byte, slotSize)
	}
	return q
}

func (q *Queue) Capacity() int { return q.cap }
func (q *Queue) Size() int     { return int(q.count.Load()) }
func (q *Queue) IsEmpty() bool { return q.Size() == 0 }
func (q *Queue) IsFull() bool  { return q.Size() >= q.cap }

// Producer is the single-writer half of the ring: the application thread
// for a TX queue, the MAC-in-IRQ context for an RX or callback queue.
type Producer struct{ q *Queue }

// Consumer is the single-reader half: MAC-in-IRQ for a TX queue, the
// application thread for an RX queue, the low-priority ISR for the
// callback queue.
type Consumer struct{ q *Queue }

// Views returns the producer/consumer split of q.
func (q *Queue) Views() (Producer, Consumer) { return Producer{q}, Consumer{q} }

// GetFreeSlot returns a pointer to the next free slot for the producer
// to build a frame in place, or ok=false if the queue is full
// (QueueFull, §4.2). The slot is not visible to the consumer until
// CommitEnqueue.
func (p Producer) GetFreeSlot() (slot []byte, ok bool) {
	if p.q.IsFull() {
		return nil, false
	}
	idx := int(p.q.tail.Load()) % p.q.cap
	return p.q.slots[idx], true
}

// CommitEnqueue publishes the slot most recently returned by
// GetFreeSlot, advancing the producer index and becoming visible to the
// consumer.
func (p Producer) CommitEnqueue() bool {
	if p.q.IsFull() {
		return false
	}
	p.q.tail.Store((p.q.tail.Load() + 1) % uint32(p.q.cap))
	p.q.count.Add(1)
	return true
}

// PeekFront returns the oldest committed slot without removing it, or
// ok=false if empty.
func (c Consumer) PeekFront() (slot []byte, ok bool) {
	if c.q.IsEmpty() {
		return nil, false
	}
	idx := int(c.q.head.Load()) % c.q.cap
	return c.q.slots[idx], true
}

// CommitDequeue releases the slot most recently returned by PeekFront
// back to the producer.
func (c Consumer) CommitDequeue() bool {
	if c.q.IsEmpty() {
		return false
	}
	c.q.head.Store((c.q.head.Load() + 1) % uint32(c.q.cap))
	c.q.count.Add(-1)
	return true
}
