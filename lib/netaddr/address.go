// Package netaddr provides an address-family-agnostic representation
// of a (host, port) endpoint, independent of any particular rule or
// forwarder. It mirrors the discriminated ip_address/listen_port value
// types of the original rinetd config model, re-expressed as an
// immutable Go value type.
package netaddr

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// ErrInvalidAddress indicates the input text is neither a valid IPv4
// nor a valid IPv6 literal, or equals the IPv4 sentinel INADDR_NONE.
var ErrInvalidAddress = errors.New("netaddr: invalid address")

// inaddrNone is the IPv4 "no address" sentinel (255.255.255.255).
// parse_address in the original rejects it even though it is a
// syntactically valid literal; kept for behavioral fidelity.
var inaddrNone = [4]byte{255, 255, 255, 255}

// Address is a discriminated IPv4/IPv6 host value. The zero value is
// not a valid Address; always construct through Parse or From*.
type Address struct {
	v6  bool
	ip4 [4]byte
	ip6 [16]byte
}

// Parse parses a textual IPv4 or IPv6 address literal. It fails if the
// text is not a valid literal of either family, or if it is the IPv4
// sentinel INADDR_NONE (255.255.255.255).
func Parse(text string) (Address, error) {
	addr, err := netip.ParseAddr(text)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
	}

	if addr.Is4() {
		b := addr.As4()
		if b == inaddrNone {
			return Address{}, fmt.Errorf("%w: %q is INADDR_NONE", ErrInvalidAddress, text)
		}
		return Address{v6: false, ip4: b}, nil
	}

	// netip treats 4-in-6 mapped addresses as v6; unwrap to v4 so the
	// family tag reflects the literal's native form, same as the
	// original's boost::asio::ip::address::is_v4()/is_v6() split.
	if addr.Is4In6() {
		b := addr.As4()
		if b == inaddrNone {
			return Address{}, fmt.Errorf("%w: %q is INADDR_NONE", ErrInvalidAddress, text)
		}
		return Address{v6: false, ip4: b}, nil
	}

	return Address{v6: true, ip6: addr.As16()}, nil
}

// FromIP builds an Address from a net.IP, selecting the family by
// inspecting the already-resolved IP the same way §4.4 of the spec
// asks family detection to work from an opened socket's local
// endpoint.
func FromIP(ip net.IP) (Address, error) {
	if ip4 := ip.To4(); ip4 != nil {
		var b [4]byte
		copy(b[:], ip4)
		return Address{v6: false, ip4: b}, nil
	}
	if ip16 := ip.To16(); ip16 != nil {
		var b [16]byte
		copy(b[:], ip16)
		return Address{v6: true, ip6: b}, nil
	}
	return Address{}, fmt.Errorf("%w: unparsable net.IP %v", ErrInvalidAddress, ip)
}

// IsV6 reports whether the address is an IPv6 host.
func (a Address) IsV6() bool { return a.v6 }

// IP returns the standard library representation of the address.
func (a Address) IP() net.IP {
	if a.v6 {
		return net.IP(a.ip6[:])
	}
	return net.IP(a.ip4[:])
}

// String renders the address in its native textual form.
func (a Address) String() string {
	return a.IP().String()
}

// Endpoint pairs an Address with a port and renders as "host:port",
// using square brackets for IPv6 per net.JoinHostPort.
type Endpoint struct {
	Addr Address
	Port uint16
}

// String renders the endpoint as rinetd's to_address() does:
// "host:port", IPv6 hosts bracketed.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Addr.String(), fmt.Sprintf("%d", e.Port))
}

// EndpointFromNetAddr converts a net.Addr (TCPAddr or UDPAddr) into an
// Endpoint. Returns an error if the address is of an unsupported type
// or its IP cannot be classified.
func EndpointFromNetAddr(a net.Addr) (Endpoint, error) {
	var ip net.IP
	var port int

	switch v := a.(type) {
	case *net.TCPAddr:
		ip, port = v.IP, v.Port
	case *net.UDPAddr:
		ip, port = v.IP, v.Port
	default:
		host, portStr, err := net.SplitHostPort(a.String())
		if err != nil {
			return Endpoint{}, fmt.Errorf("netaddr: unsupported net.Addr %T: %w", a, err)
		}
		parsed := net.ParseIP(host)
		if parsed == nil {
			return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidAddress, host)
		}
		ip = parsed
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			return Endpoint{}, fmt.Errorf("netaddr: bad port %q: %w", portStr, err)
		}
	}

	addr, err := FromIP(ip)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{Addr: addr, Port: uint16(port)}, nil
}
