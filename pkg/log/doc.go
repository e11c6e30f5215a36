// Package log provides structured connection diagnostics for pulse clients.
//
// The connection layer writes an Event for every transport state transition,
// every socket error and every heartbeat control frame. Diagnostics are a
// one-way sink: nothing a Logger does influences connection control flow.
// Operational logging (what an operator reads) stays on log/slog; this
// package captures a complete machine-readable trace for later analysis.
//
// # Basic Usage
//
//	// Development: render diagnostics through slog
//	cfg.Diagnostics = log.NewSlogAdapter(slog.Default())
//
//	// Production: append CBOR records to a file
//	fl, _ := log.NewFileLogger("/var/log/pulse/client.plog")
//	cfg.Diagnostics = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Error payloads
//
// Socket error payloads are arbitrary values supplied by the socket
// implementation. Sanitize reduces them to strings, booleans, numbers and
// flat key-value maps of those before they are recorded, so that a record
// never holds references into live objects.
//
// # File Format
//
// Diagnostics files are a stream of CBOR-encoded events with integer keys
// (.plog extension). The pulse-log CLI views, filters and exports them.
package log
