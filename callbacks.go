package swc

import (
	"fmt"

	"github.com/uwbstack/swc/internal/mac"
)

// EventKind names one callback-surface notification a connection can
// fire (§6: set_tx_success_cb, set_tx_fail_cb, set_tx_dropped_cb,
// set_rx_success_cb, set_event_cb). It mirrors internal/mac's EventKind
// so CallbacksProcessingHandler's translation is a straight lookup.
type EventKind int

const (
	EventTxSuccess EventKind = iota
	EventTxDropped
	EventRxSuccess
	EventConnect
	EventDisconnect
	EventError
	EventRxOverrun
)

func eventKindOf(k mac.EventKind) EventKind {
	switch k {
	case mac.EventTxSuccess:
		return EventTxSuccess
	case mac.EventTxDropped:
		return EventTxDropped
	case mac.EventRxSuccess:
		return EventRxSuccess
	case mac.EventConnect:
		return EventConnect
	case mac.EventDisconnect:
		return EventDisconnect
	case mac.EventRxOverrun:
		return EventRxOverrun
	default:
		return EventError
	}
}

// callbackSet exists purely as a SPEC_FULL.md-documented extension point;
// every callback is actually stored on the Connection it was registered
// against (§9: "typed callbacks bound to a connection handle... the
// connection handle carries its own state"), so the node itself carries
// none.
type callbackSet struct{}

// SetTxSuccessCb registers the callback fired when a TX frame is
// acknowledged (§6).
func (c *Connection) SetTxSuccessCb(cb func()) { c.txSuccessCb = cb }

// SetTxFailCb stores a callback for a single failed TX attempt that ARQ
// will still retry. No engine event invokes it: a retried attempt fires
// no callback; only tx-success and tx-dropped are dispatched.
func (c *Connection) SetTxFailCb(cb func()) { c.txFailCb = cb }

// SetTxDroppedCb registers the callback fired when ARQ exhausts its
// retry budget and drops the frame (§7: "ARQ drop surfaces as
// tx_dropped_callback, not as an error code").
func (c *Connection) SetTxDroppedCb(cb func()) { c.txDroppedCb = cb }

// SetRxSuccessCb registers the callback fired when a complete message is
// available in the RX queue.
func (c *Connection) SetRxSuccessCb(cb func()) { c.rxSuccessCb = cb }

// SetEventCb registers the catch-all callback for Connect/Disconnect/
// Error/RxOverrun notifications not covered by the TX/RX callbacks.
func (c *Connection) SetEventCb(cb func(EventKind, ErrorCode)) { c.eventCb = cb }

// dispatchEvent fans one drained mac.Event out to the owning
// connection's registered callback (§6, §9).
func (n *Node) dispatchEvent(ev mac.Event) {
	c, ok := n.connsByID[ev.ConnectionID]
	if !ok {
		return
	}
	switch ev.Kind {
	case mac.EventTxSuccess:
		if c.txSuccessCb != nil {
			c.txSuccessCb()
		}
	case mac.EventTxDropped:
		globalLogger.Warn(fmt.Sprintf("%s: tx frame dropped, arq retry budget exhausted", c.name))
		if c.txDroppedCb != nil {
			c.txDroppedCb()
		}
	case mac.EventRxSuccess:
		if c.rxSuccessCb != nil {
			c.rxSuccessCb()
		}
	case mac.EventConnect:
		globalLogger.Info(fmt.Sprintf("%s: connect edge triggered", c.name))
		if c.eventCb != nil {
			c.eventCb(eventKindOf(ev.Kind), "")
		}
	case mac.EventDisconnect:
		globalLogger.Warn(fmt.Sprintf("%s: disconnect edge triggered", c.name))
		if c.eventCb != nil {
			c.eventCb(eventKindOf(ev.Kind), "")
		}
	case mac.EventRxOverrun:
		globalLogger.Warn(fmt.Sprintf("%s: rx queue overrun, frame discarded", c.name))
		if c.eventCb != nil {
			c.eventCb(EventRxOverrun, ErrRxOverrun)
		}
	case mac.EventError:
		globalLogger.Error(fmt.Sprintf("%s: internal event error", c.name))
		if c.eventCb != nil {
			c.eventCb(EventError, ErrInternal)
		}
	}
}
