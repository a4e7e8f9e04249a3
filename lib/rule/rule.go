// Package rule defines the forwarding-rule data model: one
// (transport, local endpoint, remote endpoint) tuple and the ordered
// set of rules that make up a daemon configuration. It mirrors
// rinetd_config/listen_port from the original, generalized from the
// SAM-bridge session Config shape in lib/bridge/config.go.
package rule

import (
	"fmt"

	"github.com/relaydaemon/rinetd/lib/netaddr"
)

// Proto identifies the transport a rule forwards.
type Proto int

const (
	// TCP selects the stream-forwarding engine.
	TCP Proto = iota
	// UDP selects the datagram-forwarding engine.
	UDP
)

// String renders the protocol the way the config grammar spells it.
func (p Proto) String() string {
	switch p {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	default:
		return "unknown"
	}
}

// MinPort and MaxPort bound the valid port range; ports outside this
// range cause a rule to be silently dropped at load time.
const (
	MinPort = 1
	MaxPort = 65535
)

// Rule is one immutable forwarding directive: accept on (LocalHost,
// LocalPort) and relay to (RemoteHost, RemotePort) over Proto.
type Rule struct {
	Proto      Proto
	LocalHost  netaddr.Address
	LocalPort  uint16
	RemoteHost netaddr.Address
	RemotePort uint16
}

// Local renders the rule's local endpoint.
func (r Rule) Local() netaddr.Endpoint {
	return netaddr.Endpoint{Addr: r.LocalHost, Port: r.LocalPort}
}

// Remote renders the rule's remote endpoint.
func (r Rule) Remote() netaddr.Endpoint {
	return netaddr.Endpoint{Addr: r.RemoteHost, Port: r.RemotePort}
}

// Validate checks the rule's ports are in range. Hosts are assumed
// already validated by netaddr.Parse at construction time.
func (r Rule) Validate() error {
	if r.LocalPort < MinPort || r.LocalPort > MaxPort {
		return fmt.Errorf("rule: local port %d out of range [%d,%d]", r.LocalPort, MinPort, MaxPort)
	}
	if r.RemotePort < MinPort || r.RemotePort > MaxPort {
		return fmt.Errorf("rule: remote port %d out of range [%d,%d]", r.RemotePort, MinPort, MaxPort)
	}
	return nil
}

// Set is an ordered collection of rules plus the optional log-file
// path, mirroring rinetd_config.
type Set struct {
	Rules   []Rule
	LogPath string
}
