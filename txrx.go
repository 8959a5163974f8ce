package swc

import "github.com/uwbstack/swc/internal/frag"

// AllocatePayloadBuffer returns a writable view into the next free TX
// queue slot, sized size bytes (§6: "allocate_payload_buffer(conn, size)
// -> ptr"). The caller fills it in place and passes it to Send.
func (c *Connection) AllocatePayloadBuffer(size int) ([]byte, error) {
	if c.mac == nil {
		return nil, newErr(ErrNotInitialized, c.name+": allocate_payload_buffer before setup")
	}
	if size < 0 || size > c.maxPayload {
		return nil, newErr(ErrPayloadTooBig, c.name+": size exceeds max_payload")
	}
	producer, _ := c.mac.TXQueue.Views()
	slot, ok := producer.GetFreeSlot()
	if !ok {
		return nil, newErr(ErrSendQueueFull, c.name+": tx queue full")
	}
	off := c.payloadOverhead()
	return slot[off : off+size], nil
}

// GetPayloadBuffer is the legacy allocation path (§6): a max-size buffer
// the caller fills before calling Send with however many bytes it used.
func (c *Connection) GetPayloadBuffer() ([]byte, error) {
	return c.AllocatePayloadBuffer(c.maxPayload)
}

// Send enqueues data as one PHY frame, or — on a fragmentation-enabled
// connection — splits it across up to queue_size frames (§4.6, §6:
// "send(conn, ptr, size)").
func (c *Connection) Send(data []byte) error {
	if c.mac == nil {
		return newErr(ErrNotInitialized, c.name+": send before setup")
	}
	if !c.isTXConnection(c.node.localAddress) {
		return newErr(ErrSendOnRxConn, c.name+": send on a receive-only connection")
	}
	if !c.fragmentationEnabled {
		if len(data) > c.maxPayload {
			return newErr(ErrSizeTooBig, c.name+": payload exceeds max_payload and fragmentation is disabled")
		}
		return c.enqueueChunk(data, 0, true)
	}

	plan, err := frag.Split(len(data), c.maxPayload)
	if err != nil {
		return err
	}
	if plan.FragCount > c.queueSize {
		return newErr(ErrSizeTooBig, c.name+": message needs more fragments than queue_size provides")
	}
	for i := 0; i < plan.FragCount; i++ {
		lo, hi := plan.FragmentBounds(i)
		if err := c.enqueueChunk(data[lo:hi], i, plan.IsLast(i)); err != nil {
			return err
		}
	}
	return nil
}

// enqueueChunk writes one chunk (plus the façade's length/fragmentation
// metadata prefix, see payloadOverhead) into the TX queue's next free
// slot and commits it.
func (c *Connection) enqueueChunk(chunk []byte, index int, last bool) error {
	producer, _ := c.mac.TXQueue.Views()
	slot, ok := producer.GetFreeSlot()
	if !ok {
		return newErr(ErrSendQueueFull, c.name+": tx queue full")
	}
	off := c.payloadOverhead()
	slot[0] = byte(len(chunk))
	if c.fragmentationEnabled {
		slot[1] = fragMetaByte(index, last)
	}
	n := copy(slot[off:], chunk)
	for i := off + n; i < len(slot); i++ {
		slot[i] = 0
	}
	producer.CommitEnqueue()
	return nil
}

func fragMetaByte(index int, last bool) byte {
	b := byte(index) << 1
	if last {
		b |= 1
	}
	return b
}

func decodeFragMeta(b byte) (index int, last bool) {
	return int(b >> 1), b&1 != 0
}

// Receive returns the oldest available message without releasing its
// queue slot (§6: "receive(conn) -> (ptr, size)"); call ReceiveComplete
// once done reading it. On a fragmentation-enabled connection, Receive
// drains and reassembles as many queued fragments as are currently
// available, returning once a complete message is ready; the individual
// fragment slots are released as they are consumed since the returned
// buffer is already a private copy, so ReceiveComplete is then a no-op.
func (c *Connection) Receive() ([]byte, error) {
	if c.mac == nil {
		return nil, newErr(ErrNotInitialized, c.name+": receive before setup")
	}
	if !c.fragmentationEnabled {
		return c.peekRaw()
	}
	for {
		chunk, index, last, ok := c.dequeueFragment()
		if !ok {
			return nil, newErr(ErrReceiveQueueEmpty, c.name+": rx queue empty")
		}
		switch c.mac.Frag.Feed(index, last, chunk) {
		case frag.ResultComplete:
			return append([]byte(nil), c.mac.Frag.Bytes()...), nil
		case frag.ResultRejected:
			return nil, newErr(ErrRxOverrun, c.name+": fragment sequence rejected")
		}
		// ResultPartial: go around for the next already-queued fragment.
	}
}

func (c *Connection) peekRaw() ([]byte, error) {
	_, consumer := c.mac.RXQueue.Views()
	slot, ok := consumer.PeekFront()
	if !ok {
		return nil, newErr(ErrReceiveQueueEmpty, c.name+": rx queue empty")
	}
	off := c.payloadOverhead()
	n := int(slot[0])
	if off+n > len(slot) {
		n = len(slot) - off
	}
	return slot[off : off+n], nil
}

func (c *Connection) dequeueFragment() (chunk []byte, index int, last bool, ok bool) {
	_, consumer := c.mac.RXQueue.Views()
	slot, peeked := consumer.PeekFront()
	if !peeked {
		return nil, 0, false, false
	}
	off := c.payloadOverhead()
	n := int(slot[0])
	idx, lastFlag := decodeFragMeta(slot[1])
	data := append([]byte(nil), slot[off:off+n]...)
	consumer.CommitDequeue()
	return data, idx, lastFlag, true
}

// ReceiveToBuffer copies the oldest available message into dst and
// releases its queue slot in one call (§6: "receive_to_buffer(conn, dst,
// dst_cap)").
func (c *Connection) ReceiveToBuffer(dst []byte) (int, error) {
	data, err := c.Receive()
	if err != nil {
		return 0, err
	}
	if len(dst) < len(data) {
		return 0, newErr(ErrBufferSizeTooSmall, c.name+": destination buffer too small")
	}
	n := copy(dst, data)
	if err := c.ReceiveComplete(); err != nil && !c.fragmentationEnabled {
		return n, err
	}
	return n, nil
}

// ReceiveComplete releases the slot most recently returned by Receive
// (§6: "receive_complete(conn) releases the slot").
func (c *Connection) ReceiveComplete() error {
	if c.fragmentationEnabled {
		return nil
	}
	_, consumer := c.mac.RXQueue.Views()
	if !consumer.CommitDequeue() {
		return newErr(ErrReceiveQueueEmpty, c.name+": receive_complete with nothing pending")
	}
	return nil
}

// Stats is a value-typed snapshot of a connection's link-quality and ARQ
// counters (SPEC_FULL.md's `swc_stats` supplemented feature), safe to
// call from the application thread at any time since it copies out of
// live counters mutated from IRQ context rather than returning a live
// pointer.
type Stats struct {
	Sent       uint32
	Ack        uint32
	Nack       uint32
	Received   uint32
	Rejected   uint32
	Lost       uint32
	Duplicated uint32

	AverageRSSITenthDB int16
	AverageRNSITenthDB int16
	LinkMarginTenthDB  int16

	ArqTries uint32
	Connected bool

	PeerCredit uint8
	PeerRDO    int
}

// Stats returns a snapshot of this connection's counters.
func (c *Connection) Stats() Stats {
	if c.mac == nil {
		return Stats{}
	}
	l := c.mac.LQI
	return Stats{
		Sent:               l.Sent,
		Ack:                l.Ack,
		Nack:               l.Nack,
		Received:           l.Received,
		Rejected:           l.Rejected,
		Lost:               l.Lost,
		Duplicated:         l.Duplicated,
		AverageRSSITenthDB: l.AverageRSSITenthDB(),
		AverageRNSITenthDB: l.AverageRNSITenthDB(),
		LinkMarginTenthDB:  l.LinkMarginTenthDB(),
		ArqTries:           uint32(c.mac.ArqTx.Tries()),
		Connected:          c.mac.Connected(),
		PeerCredit:         c.mac.Credit.Peer,
		PeerRDO:            c.mac.PeerRDO,
	}
}
