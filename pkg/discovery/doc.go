// Package discovery finds a realtime gateway on the local network with
// mDNS/DNS-SD.
//
// Gateways advertise the _pulse._tcp service. The SRV record carries the
// host and the unencrypted port; TXT records add:
//
//	port      unencrypted port (overrides the SRV port)
//	tls_port  encrypted port, absent when the gateway has no TLS listener
//	key       application key served by the gateway (optional)
//
// Addresses reported on several interfaces are merged into one Endpoint.
package discovery
