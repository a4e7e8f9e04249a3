package datagram

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaydaemon/rinetd/lib/sockopt"
	"github.com/relaydaemon/rinetd/lib/util"
)

// tunnel is one NAT-table entry: the ephemeral egress socket bound for
// first contact from a new source, and the last-activity timestamp
// the aging sweep checks.
//
// egress is deliberately an unconnected, wildcard-bound *net.UDPConn
// rather than a connected socket from net.Dial: a connected UDP socket
// only ever delivers reads from the one peer it was connected to,
// which would make it impossible to relay a reply from a source other
// than the configured remote. The original (udp_forward.hpp) binds a
// plain socket and uses async_receive_from/send_to for the same
// reason. Per the kept-permissive datagram source validation decision,
// receiveLoop relays whatever arrives on this socket without checking
// the sender.
type tunnel struct {
	parent *Forwarder
	source net.Addr
	key    string

	egress     *net.UDPConn
	remoteAddr *net.UDPAddr

	// lastActivityMillis is a unix-millisecond timestamp from
	// parent.now, stored atomically so the receive goroutine and the
	// aging sweep never need a lock.
	lastActivityMillis atomic.Int64

	closed atomic.Bool
}

func newTunnel(parent *Forwarder, source net.Addr) (*tunnel, error) {
	remote := parent.rule.Remote()
	remoteAddr, err := net.ResolveUDPAddr("udp", remote.String())
	if err != nil {
		return nil, err
	}

	network := "udp4"
	if remote.Addr.IsV6() {
		network = "udp6"
	}
	egress, err := net.ListenUDP(network, nil)
	if err != nil {
		return nil, err
	}

	_ = sockopt.TuneDatagramConn(egress, remote.Addr.IsV6())

	t := &tunnel{
		parent:     parent,
		source:     source,
		key:        source.String(),
		egress:     egress,
		remoteAddr: remoteAddr,
	}
	t.touch()
	return t, nil
}

func (t *tunnel) touch() {
	t.lastActivityMillis.Store(t.parent.now().UnixMilli())
}

// sendToRemote forwards one datagram from the original source to the
// tunnel's remote, per spec.md §4.3's send classification: success
// refreshes last-activity, transient drops the datagram and keeps the
// tunnel, fatal aborts the tunnel.
func (t *tunnel) sendToRemote(data []byte) {
	if t.closed.Load() {
		return
	}
	n, err := t.egress.WriteTo(data, t.remoteAddr)
	switch sockopt.Classify(n, err) {
	case sockopt.ClassSuccess:
		t.touch()
	case sockopt.ClassFatal:
		if t.parent.diag != nil {
			t.parent.diag.WithFields(logrus.Fields{"source": t.key}).
				Debug(util.NewFlowError(t.key, "send_to", err).Error())
		}
		t.parent.forget(t.key)
		t.abort()
	case sockopt.ClassTransient:
		// Datagram dropped, tunnel preserved.
	}
}

// start launches the egress receive loop: every datagram read back
// from the remote is relayed to the tunnel's original source through
// the forwarder's shared ingress socket.
func (t *tunnel) start() {
	go t.receiveLoop()
}

func (t *tunnel) receiveLoop() {
	buf := make([]byte, MaxDatagramSize)
	for {
		n, _, err := t.egress.ReadFrom(buf)
		if t.closed.Load() {
			return
		}
		switch sockopt.Classify(n, err) {
		case sockopt.ClassFatal:
			t.parent.forget(t.key)
			t.abort()
			return
		case sockopt.ClassTransient:
			if err != nil {
				// Read failed without a fatal errno: the socket is
				// most likely gone (closed by abort()).
				return
			}
			continue
		case sockopt.ClassSuccess:
			t.touch()
			t.parent.replyToSource(t.source, buf[:n])
		}
	}
}

// isAging reports whether the tunnel should be retired by the aging
// sweep, per spec.md §4.3: idle for at least IdleTimeout, already
// closed, or observing a clock that appears to have gone backwards.
func (t *tunnel) isAging(now time.Time) bool {
	if t.closed.Load() {
		return true
	}
	last := t.lastActivityMillis.Load()
	nowMillis := now.UnixMilli()
	if last > nowMillis {
		return true
	}
	return (nowMillis-last)/1000 >= int64(IdleTimeout/time.Second)
}

// abort closes the tunnel's egress socket. Idempotent.
func (t *tunnel) abort() {
	if t.closed.Swap(true) {
		return
	}
	t.egress.Close()
}
