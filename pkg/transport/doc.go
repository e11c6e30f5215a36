// Package transport wraps a single raw socket attempt in a small state
// machine with typed events.
//
// # Lifecycle
//
//	unset ──Initialize──▶ initialized ──Connect──▶ connecting ──open──▶ open
//	                                                   │                 │
//	                                                   └──────close──────┴──▶ closed
//
// A Transport owns at most one raw socket. Connect succeeds only from unset
// or initialized; a second call while connecting or open returns false and
// creates nothing. Closed is terminal: callbacks from the socket that arrive
// afterwards are ignored.
//
// # Events
//
// Listeners bound with Bind receive initialized, connecting, open, message,
// error and closed events. Events are delivered one at a time, in the order
// the state changed, never while the Transport's lock is held, so listeners
// may call back into the Transport. A socket error produces an error event
// carrying a SocketError and no state change; the following close produces
// exactly one closed event.
//
// # Sending
//
// Send never writes on the caller's goroutine. Accepted payloads are
// queued and written by a flush goroutine in FIFO order.
//
// # Raw sockets
//
// Raw sockets come from a SocketFactory registered in a Registry under a
// transport name. Subpackages provide gorilla/websocket ("websocket") and
// gobwas/ws ("websocket-lite") implementations; tests use fakes.
//
// # Diagnostics
//
// Every state transition and every socket error is written to the
// configured log.Logger. Error payloads are reduced with log.Sanitize.
package transport
