// Package strategy decides which transport becomes the connection.
//
// A Strategy yields the first Transport that reaches "open", or an error.
// Strategies compose:
//
//   - TransportStrategy: one registry transport; the leaf of every tree.
//   - Sequential: tries children in order, each bounded by a timeout.
//   - Race: runs children concurrently; the first to open wins and every
//     other attempt is canceled and its Transport closed.
//   - Delayed: waits before running its child, to stagger a race.
//   - Cached: remembers the last winner and tries it first.
//
// A strategy never retries on its own: each Connect call produces one
// result. Reconnection policy belongs to the connection manager.
//
// The Transport returned by a successful Connect has its events held
// (see transport.Transport.HoldEvents). The caller binds its listeners and
// then calls ReleaseEvents, so no inbound message is lost in between.
package strategy
