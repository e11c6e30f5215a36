// Package protocol defines the pulse wire format.
//
// Frames are JSON text messages:
//
//	{"event": "pulse:ping", "channel": "optional", "data": <json>}
//
// Events in the "pulse:" namespace are connection-level control messages
// handled by the connection manager; everything else belongs to the
// application. The first frame a server sends on a new socket is
// pulse:connection_established, carrying the socket id and heartbeat
// timeouts (see ParseHandshake).
//
// # Close and error codes
//
// Servers report fatal conditions with codes in the 4000-4299 range, either
// as a WebSocket close code or in a pulse:error frame. Classify maps a code
// to the reconnection policy it implies.
package protocol
