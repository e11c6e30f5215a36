// Package version holds the client identity sent in the connection URL and
// the range of wire protocol revisions this library speaks.
package version

import "fmt"

const (
	// Client is the library version reported in the connection URL.
	Client = "0.4.0"

	// ClientIdentifier is the client tag reported in the connection URL.
	ClientIdentifier = "go"

	// Protocol is the wire protocol revision requested by default.
	Protocol = 7

	// MinProtocol is the oldest protocol revision still supported.
	MinProtocol = 5
)

// Supported reports whether protocol revision p can be requested.
func Supported(p int) bool {
	return p >= MinProtocol && p <= Protocol
}

// CheckProtocol returns an error when p is outside the supported range.
func CheckProtocol(p int) error {
	if !Supported(p) {
		return fmt.Errorf("protocol revision %d not supported (want %d..%d)", p, MinProtocol, Protocol)
	}
	return nil
}

// String returns the identity pair used in logs, e.g. "go/0.4.0".
func String() string {
	return ClientIdentifier + "/" + Client
}
