package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Service defaults.
const (
	ServiceType    = "_pulse._tcp"
	Domain         = "local."
	DefaultTimeout = 3 * time.Second
)

// TXT record keys.
const (
	TXTKeyPort    = "port"
	TXTKeyTLSPort = "tls_port"
	TXTKeyKey     = "key"
)

// Discovery errors.
var (
	ErrNotFound    = errors.New("no gateway found")
	ErrInvalidPort = errors.New("invalid port")
)

// Endpoint is a discovered gateway.
type Endpoint struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Host is the advertised host name.
	Host string

	// Port is the unencrypted port.
	Port int

	// TLSPort is the encrypted port, or 0.
	TLSPort int

	// Key is the application key announced by the gateway, if any.
	Key string

	// Addresses holds resolved IPv4 and IPv6 addresses.
	Addresses []string
}

// Dial returns the host to connect to: the first resolved address, or the
// host name when none was resolved. IPv6 literals are bracketed.
func (e *Endpoint) Dial() string {
	if len(e.Addresses) == 0 {
		return e.Host
	}
	addr := e.Addresses[0]
	if ip := net.ParseIP(addr); ip != nil && ip.To4() == nil {
		return "[" + addr + "]"
	}
	return addr
}

// SupportsTLS reports whether the gateway has an encrypted listener.
func (e *Endpoint) SupportsTLS() bool {
	return e.TLSPort > 0
}

// String returns "instance (host:port)".
func (e *Endpoint) String() string {
	return e.Instance + " (" + e.Host + ":" + strconv.Itoa(e.Port) + ")"
}
