// Package sockopt applies the socket tuning spec.md §4.4 requires to
// every listening, accepted, and egress socket: the "prioritized
// interactive" IP_TOS value, a PMTUD hint, SO_NOSIGPIPE where the
// platform defines it, and TCP Fast Open on stream sockets. It also
// classifies send/receive errors into the fatal/transient/success
// partition §4.3 defines for datagram forwarding.
//
// Grounded on the raw-socket-option idiom of
// mdlayher/socket's syscall.RawConn.Control usage (vendored into
// moby/moby) and on the syssocket_setsockopt calls of the original
// rinetd's tcp_forward.hpp/udp_forward.hpp.
package sockopt

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
)

// interactiveTOS is the "prioritized interactive" IP_TOS value
// preserved from the original for compatibility: 0x68, i.e. precedence
// bits 0x60 (IPTOS_PREC_FLASH) | IPTOS_THROUGHPUT (0x08).
const interactiveTOS = 0x68

// TuneStreamConn applies §4.4 tuning to a stream socket: the
// listening acceptor, an accepted ingress socket, or an egress socket
// dialed to the remote. v6 selects whether the IPv4-only options
// (IP_TOS, PMTUD hint) are skipped. IP_TOS is set only when conn is a
// net.Conn (an accepted or dialed socket); a listening socket gets the
// PMTUD hint but not IP_TOS.
func TuneStreamConn(conn syscall.Conn, v6 bool) error {
	if !v6 {
		if tcpConn, ok := conn.(net.Conn); ok {
			// Best effort: IP_TOS on a net.Conn via the portable
			// golang.org/x/net/ipv4 wrapper.
			_ = ipv4.NewConn(tcpConn).SetTOS(interactiveTOS)
		}
		if err := applyIPv4RawOptions(conn); err != nil {
			return err
		}
	}

	applyNoSigPipe(conn)
	applyFastOpen(conn)
	return nil
}

// TuneDatagramConn applies §4.4 tuning to a datagram socket (ingress
// or a per-tunnel egress socket). TCP Fast Open does not apply to UDP
// sockets.
func TuneDatagramConn(conn syscall.Conn, v6 bool) error {
	if !v6 {
		if pc, ok := conn.(net.PacketConn); ok {
			_ = ipv4.NewPacketConn(pc).SetTOS(interactiveTOS)
		}
		if err := applyIPv4RawOptions(conn); err != nil {
			return err
		}
	}
	applyNoSigPipe(conn)
	return nil
}

// SendClass partitions the outcome of a send/receive operation per
// spec.md §4.3.
type SendClass int

const (
	// ClassSuccess indicates bytes were transferred.
	ClassSuccess SendClass = iota
	// ClassTransient indicates the error should be treated as "0
	// bytes sent" — the datagram is dropped, the session preserved.
	ClassTransient
	// ClassFatal indicates the sending socket should be considered
	// dead and its owning tunnel aborted.
	ClassFatal
)

// Classify partitions a send/receive result into the three classes
// spec.md §4.3 defines. n is the byte count reported by the
// operation (ignored when err is non-nil).
func Classify(n int, err error) SendClass {
	if err == nil {
		if n > 0 {
			return ClassSuccess
		}
		return ClassTransient
	}
	if isFatalErrno(err) {
		return ClassFatal
	}
	return ClassTransient
}

// isFatalErrno reports whether err unwraps to one of the fatal-class
// errno values of spec.md §4.3: EBADF, ENOENT, ENOTSOCK, ENODEV, EIO,
// ENETDOWN, ENETUNREACH, EHOSTDOWN (where defined), EHOSTUNREACH.
func isFatalErrno(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	for _, fatal := range fatalErrnos {
		if errno == fatal {
			return true
		}
	}
	return false
}
