// Package connection keeps a logical realtime connection alive.
//
// A Manager drives one connection through its lifecycle:
//
//	initialized -> connecting -> connected -> unavailable -> connecting ...
//	                   |                          |
//	                   +-------> disconnected <---+   (Disconnect or refused)
//	initialized -> failed                              (no usable transport)
//
// Each connecting phase runs the configured strategy, binds the winning
// transport and waits for the connection-established handshake, which
// carries the socket id and the heartbeat timeouts.
//
// # Heartbeat
//
// Every inbound message restarts the activity timer. When it expires the
// manager sends a ping and starts the pong timer; any inbound message
// cancels it. A pong timeout counts as a lost connection.
//
// # Reconnection
//
// Lost connections are retried with exponential backoff:
//
//	delay = min(initial * multiplier^n, max) + random(0, delay * jitter)
//
// The backoff resets once a handshake completes. Close codes from the
// server can shorten this (4200-4299 reconnect at once) or stop it
// altogether (4000-4099 refuse the client).
package connection
