package standby

import (
	"net"
	"net/netip"

	"github.com/pkg/errors"
)

// Endpoint is the UDP address of a peer. It is comparable and safe to use as
// a map key.
type Endpoint struct {
	ap netip.AddrPort
}

// EndpointFrom wraps an address and port.
func EndpointFrom(ap netip.AddrPort) Endpoint {
	return Endpoint{ap: netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())}
}

// ParseEndpoint resolves a "host:port" string. Host names are resolved once,
// here.
func ParseEndpoint(hostport string) (Endpoint, error) {
	if ap, err := netip.ParseAddrPort(hostport); err == nil {
		return EndpointFrom(ap), nil
	}
	addr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return Endpoint{}, errors.Wrapf(err, "can't resolve endpoint %q", hostport)
	}
	return EndpointFrom(addr.AddrPort()), nil
}

// MustParseEndpoint is ParseEndpoint for literals known to be valid.
func MustParseEndpoint(hostport string) Endpoint {
	e, err := ParseEndpoint(hostport)
	if err != nil {
		panic(err)
	}
	return e
}

// IsZero reports whether e is the zero Endpoint.
func (e Endpoint) IsZero() bool {
	return !e.ap.IsValid()
}

// AddrPort returns the underlying address and port.
func (e Endpoint) AddrPort() netip.AddrPort {
	return e.ap
}

// UDPAddr returns e in the form net.UDPConn expects.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(e.ap)
}

func (e Endpoint) String() string {
	if e.IsZero() {
		return "<none>"
	}
	return e.ap.String()
}

// MarshalText renders the endpoint as "host:port".
func (e Endpoint) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}
