// Package frag implements fragmentation (C7): splitting an oversize
// application payload into MTU-sized PHY frames on send, and in-order
// reassembly on receive, discarding on any gap (§4.6).
package frag

import "github.com/uwbstack/swc/internal/swcerr"

// Plan is the set of fragments one Send call over mtu produces.
type Plan struct {
	MTU        int
	Total      int
	FragCount  int
}

// Split computes how many MTU-sized fragments payload needs. Each
// fragment i in [0, FragCount) covers payload[i*MTU : min((i+1)*MTU,
// Total)].
func Split(payloadLen, mtu int) (Plan, error) {
	if mtu <= 0 {
		return Plan{}, swcerr.New(swcerr.InvalidParameter, "fragmentation MTU must be positive")
	}
	count := (payloadLen + mtu - 1) / mtu
	if count == 0 {
		count = 1 // zero-length payload still gets one (empty) fragment
	}
	return Plan{MTU: mtu, Total: payloadLen, FragCount: count}, nil
}

// FragmentBounds returns the [begin,end) slice bounds within the
// original payload for fragment index i.
func (p Plan) FragmentBounds(i int) (begin, end int) {
	begin = i * p.MTU
	end = begin + p.MTU
	if end > p.Total {
		end = p.Total
	}
	return
}

// IsLast reports whether fragment index i is the last-flagged fragment
// (§4.6: "each fragment carries a fragment index and a last-flag").
func (p Plan) IsLast(i int) bool { return i == p.FragCount-1 }

// Reassembler buffers in-order fragments for one connection and
// atomically delivers the whole message on the last fragment, or
// discards and reports a reject on any gap/out-of-order index (§4.6).
type Reassembler struct {
	buf      []byte
	expected int
	active   bool
}

// NewReassembler allocates scratch space sized to the largest message
// the connection's queue_size*MTU geometry allows, a single allocation
// at setup (§5).
func NewReassembler(maxMessageBytes int) *Reassembler {
	return &Reassembler{buf: make([]byte, 0, maxMessageBytes)}
}

// Result of feeding one fragment.
type Result int

const (
	// ResultPartial means more fragments are expected; nothing is ready
	// for delivery yet.
	ResultPartial Result = iota
	// ResultComplete means the last fragment just arrived in order; Bytes
	// returns the full reassembled message.
	ResultComplete
	// ResultRejected means an out-of-order or gapped fragment index was
	// seen; the partial buffer has been discarded.
	ResultRejected
)

// Feed processes one incoming fragment. index must equal the number of
// fragments already accepted for the in-progress message, or the
// message is discarded and ResultRejected is returned (§4.6: "out-of-
// order or gap discards the partial message and increments a reject
// counter").
func (r *Reassembler) Feed(index int, last bool, data []byte) Result {
	if index == 0 {
		r.buf = r.buf[:0]
		r.active = true
		r.expected = 0
	}
	if !r.active || index != r.expected {
		r.active = false
		r.buf = r.buf[:0]
		return ResultRejected
	}
	r.buf = append(r.buf, data...)
	r.expected++
	if last {
		r.active = false
		return ResultComplete
	}
	return ResultPartial
}

// Bytes returns the reassembled message after a ResultComplete feed.
// Valid only until the next Feed call (it aliases internal scratch
// space — callers must copy out before reusing the Reassembler for the
// next message, matching the "atomically placed in the RX queue" rule
// of §4.6, where the RX-queue commit step is exactly that copy).
func (r *Reassembler) Bytes() []byte { return r.buf }
