// Package stream implements the connection-oriented stream-forwarding
// engine of spec.md §4.1/§4.2: a per-rule acceptor plus a per-connection
// state machine (OPENING → CONNECTING → RELAYING → CLOSED) with a
// bounded-time connect and full-duplex byte relay.
//
// Grounded on lib/bridge/server.go's accept loop and connection-set
// bookkeeping and lib/bridge/connection.go's mutex-guarded state enum,
// generalized from the SAM command protocol to byte relaying per
// original_source/src/tcp_forward.hpp.
package stream

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaydaemon/rinetd/lib/logsink"
	"github.com/relaydaemon/rinetd/lib/netaddr"
	"github.com/relaydaemon/rinetd/lib/sockopt"
	"github.com/relaydaemon/rinetd/lib/util"
)

// BufferSize is the per-direction relay buffer size, per spec.md §6.
const BufferSize = 16384

// ConnectTimeout bounds how long a Conn may spend in CONNECTING before
// it is torn down, per spec.md §6.
const ConnectTimeout = 5 * time.Second

// State names the stream connection state machine's states.
type State int

const (
	// StateOpening is the entry state, before the egress dial begins.
	StateOpening State = iota
	// StateConnecting is the bounded-time dial to the remote.
	StateConnecting
	// StateRelaying is full-duplex byte pumping between both sockets.
	StateRelaying
	// StateClosed is terminal; both sockets are closed.
	StateClosed
)

// Conn is one accepted stream flow: the accepted ingress socket, the
// egress socket dialed to the rule's remote, two fixed-size relay
// buffers, and the connect-timeout timer. The zero value is not
// usable; construct with newConn.
type Conn struct {
	parent *Forwarder

	ingress net.Conn
	egress  net.Conn

	state atomic.Int32

	closeOnce sync.Once
	timer     *time.Timer

	source netaddr.Endpoint
}

func newConn(parent *Forwarder, ingress net.Conn) (*Conn, error) {
	source, err := netaddr.EndpointFromNetAddr(ingress.RemoteAddr())
	if err != nil {
		return nil, err
	}
	c := &Conn{parent: parent, ingress: ingress, source: source}
	c.state.Store(int32(StateOpening))
	return c, nil
}

// State returns the connection's current state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// start drives OPENING → CONNECTING → RELAYING (or CLOSED on
// failure). The caller is not blocked past launching the dial: the
// dial and the relay both run on their own goroutines, consistent
// with the "no handler performs blocking work" rule of spec.md §5.
func (c *Conn) start() {
	c.state.Store(int32(StateConnecting))
	c.emitLog(logsink.KindSyn)

	remote := c.parent.rule.Remote()
	ctx, cancel := context.WithTimeout(context.Background(), ConnectTimeout)

	c.timer = time.AfterFunc(ConnectTimeout, func() {
		c.closeWith("connect", util.ErrConnectTimeout)
	})

	go func() {
		defer cancel()

		dialer := &net.Dialer{}
		egress, err := dialer.DialContext(ctx, "tcp", remote.String())
		if err != nil {
			c.closeWith("connect", err)
			return
		}

		if !c.timer.Stop() {
			// The timeout already fired (or is firing); this dial
			// lost the race, so the just-opened socket must still be
			// closed to avoid leaking it.
			egress.Close()
			return
		}

		c.egress = egress
		if tc, ok := egress.(syscall.Conn); ok {
			_ = sockopt.TuneStreamConn(tc, remote.Addr.IsV6())
		}

		c.state.Store(int32(StateRelaying))
		c.emitLog(logsink.KindOpen)

		c.relayBothDirections()
	}()
}

func (c *Conn) relayBothDirections() {
	var wg sync.WaitGroup
	wg.Add(2)

	// The first direction to reach a terminal condition performs the
	// CLOSED transition, which closes both sockets and so unblocks the
	// other direction's pending read.
	go func() {
		defer wg.Done()
		c.relayOne(c.ingress, c.egress)
		c.closeWith("relay", nil)
	}()
	go func() {
		defer wg.Done()
		c.relayOne(c.egress, c.ingress)
		c.closeWith("relay", nil)
	}()

	wg.Wait()
}

// relayOne pumps from src to dst one read-then-write-all cycle at a
// time with a dedicated buffer, per spec.md §4.2: a completed read is
// written in full before the next read is submitted, preserving byte
// order within the direction. It returns as soon as either side
// reports a terminal condition; it never itself closes a socket —
// that is always the job of the single terminal-transition path in
// closeWith, keeping CLOSED idempotent.
func (c *Conn) relayOne(src, dst net.Conn) {
	buf := make([]byte, BufferSize)
	for {
		if c.State() == StateClosed {
			return
		}
		n, err := src.Read(buf)
		if n <= 0 || err != nil {
			return
		}
		if _, err := writeAll(dst, buf[:n]); err != nil {
			return
		}
	}
}

// writeAll writes the full buffer, retrying partial writes, the Go
// equivalent of the original's boost::asio::async_write completing
// only once every byte has been accepted.
func writeAll(dst net.Conn, buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := dst.Write(buf[written:])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// closeWith performs the idempotent CLOSED transition: shuts down the
// send side and closes both sockets exactly once, regardless of how
// many goroutines observe a terminal condition concurrently.
func (c *Conn) closeWith(op string, err error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		if c.timer != nil {
			c.timer.Stop()
		}
		closeHalf(c.ingress)
		closeHalf(c.egress)

		if err != nil && c.parent != nil && c.parent.diag != nil {
			c.parent.diag.WithFields(logrus.Fields{
				"source": c.source.String(),
				"op":     op,
			}).Debug(util.NewFlowError(c.source.String(), op, err).Error())
		}
		if c.parent != nil {
			c.parent.forget(c)
		}
	})
}

func closeHalf(conn net.Conn) {
	if conn == nil {
		return
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	conn.Close()
}

func (c *Conn) emitLog(kind logsink.Kind) {
	if c.parent == nil || c.parent.sink == nil {
		return
	}

	var nat netaddr.Endpoint
	if c.egress != nil {
		ep, err := netaddr.EndpointFromNetAddr(c.egress.LocalAddr())
		if err != nil {
			// Endpoint query failed: the record is dropped per
			// spec.md §4.5, but the connection continues.
			return
		}
		nat = ep
	}

	c.parent.sink.Write(logsink.Record{
		Source:   c.source,
		Kind:     kind,
		Remote:   c.parent.rule.Remote(),
		NAT:      nat,
		Listener: c.parent.rule.Local(),
	})
}
