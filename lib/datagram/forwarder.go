// Package datagram implements the connectionless, NAT-table-backed
// forwarding engine of spec.md §4.3: one ingress socket per rule, a
// per-source Tunnel holding an ephemeral egress socket, and a
// periodic aging sweep that retires idle Tunnels.
//
// Grounded on lib/datagram/udp.go's receiveLoop/single-shared-buffer
// idiom, generalized from SAM datagram header parsing to plain byte
// relaying per original_source/src/udp_forward.hpp's udp_tunnel/
// is_port_aging.
package datagram

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaydaemon/rinetd/lib/rule"
	"github.com/relaydaemon/rinetd/lib/sockopt"
)

// MaxDatagramSize is the forwarder's single shared ingress buffer
// size, per spec.md §6.
const MaxDatagramSize = 65535

// IdleTimeout is how long a Tunnel may see no traffic before the
// aging sweep retires it, per spec.md §6.
const IdleTimeout = 72 * time.Second

// SweepInterval is how often the aging sweep runs, per spec.md §6.
const SweepInterval = 10 * time.Second

// Forwarder owns one datagram-forwarding rule: a bound ingress
// socket, the SourceEndpoint→Tunnel NAT table, and the aging sweep
// timer.
type Forwarder struct {
	rule rule.Rule
	diag *logrus.Logger

	// now is the clock source for aging decisions; overridden in
	// tests, otherwise time.Now.
	now func() time.Time

	mu      sync.Mutex
	conn    net.PacketConn
	tunnels map[string]*tunnel
	closed  atomic.Bool
	done    chan struct{}

	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
}

// NewForwarder builds a Forwarder for r. diag may be nil to disable
// diagnostic logging.
func NewForwarder(r rule.Rule, diag *logrus.Logger) *Forwarder {
	return &Forwarder{
		rule:      r,
		diag:      diag,
		now:       time.Now,
		tunnels:   make(map[string]*tunnel),
		done:      make(chan struct{}),
		sweepStop: make(chan struct{}),
	}
}

// ListenAndServe binds the rule's local endpoint and serves until
// closed.
func (f *Forwarder) ListenAndServe() error {
	local := f.rule.Local()
	conn, err := net.ListenPacket("udp", local.String())
	if err != nil {
		return err
	}
	return f.Serve(conn)
}

// Serve receives datagrams on conn, routing each to the Tunnel for
// its source endpoint (creating one on first contact), and starts the
// aging sweep. It blocks until the Forwarder is closed.
func (f *Forwarder) Serve(conn net.PacketConn) error {
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	if uc, ok := conn.(syscall.Conn); ok {
		_ = sockopt.TuneDatagramConn(uc, f.rule.Local().Addr.IsV6())
	}

	f.sweepWG.Add(1)
	go f.runSweep()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if f.closed.Load() {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}

		t := f.getOrCreateTunnel(addr)
		if t == nil {
			continue
		}
		t.sendToRemote(buf[:n])
	}
}

// getOrCreateTunnel returns the Tunnel for addr's textual host:port
// form, creating and starting one if this is the first datagram seen
// from that source. Returns nil if creation fails, in which case the
// datagram is dropped per spec.md §4.3.
func (f *Forwarder) getOrCreateTunnel(addr net.Addr) *tunnel {
	key := addr.String()

	f.mu.Lock()
	if t, ok := f.tunnels[key]; ok {
		f.mu.Unlock()
		return t
	}
	f.mu.Unlock()

	t, err := newTunnel(f, addr)
	if err != nil {
		if f.diag != nil {
			f.diag.WithError(err).Debug("datagram: tunnel creation failed, dropping datagram")
		}
		return nil
	}

	f.mu.Lock()
	if existing, ok := f.tunnels[key]; ok {
		// Lost a race with a concurrent datagram from the same
		// source: keep the tunnel already registered, discard ours.
		f.mu.Unlock()
		t.abort()
		return existing
	}
	f.tunnels[key] = t
	f.mu.Unlock()

	t.start()
	return t
}

// replyToSource writes a reply datagram, received on a tunnel's
// egress socket, back out through the shared ingress socket to the
// tunnel's original source.
func (f *Forwarder) replyToSource(source net.Addr, data []byte) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return
	}
	_, _ = conn.WriteTo(data, source)
}

// forget removes a tunnel from the NAT table. Called by a tunnel that
// observes a fatal send or receive error on itself; the aging sweep
// removes entries from the map directly.
func (f *Forwarder) forget(key string) {
	f.mu.Lock()
	delete(f.tunnels, key)
	f.mu.Unlock()
}

func (f *Forwarder) runSweep() {
	defer f.sweepWG.Done()
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.sweepStop:
			return
		case <-ticker.C:
			f.sweepOnce()
		}
	}
}

// sweepOnce retires every Tunnel aged per spec.md §4.3: idle for at
// least IdleTimeout, closed, or observing a clock that went backwards.
func (f *Forwarder) sweepOnce() {
	now := f.now()

	f.mu.Lock()
	var aged []*tunnel
	for key, t := range f.tunnels {
		if t.isAging(now) {
			aged = append(aged, t)
			delete(f.tunnels, key)
		}
	}
	f.mu.Unlock()

	for _, t := range aged {
		t.abort()
	}
}

// Close stops the ingress socket, the aging sweep, and aborts every
// live Tunnel. Idempotent.
func (f *Forwarder) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	close(f.done)
	close(f.sweepStop)

	f.mu.Lock()
	conn := f.conn
	tunnels := make([]*tunnel, 0, len(f.tunnels))
	for _, t := range f.tunnels {
		tunnels = append(tunnels, t)
	}
	f.tunnels = make(map[string]*tunnel)
	f.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	for _, t := range tunnels {
		t.abort()
	}
	f.sweepWG.Wait()
	return nil
}

// Done returns a channel closed once Close has been called.
func (f *Forwarder) Done() <-chan struct{} {
	return f.done
}

// TunnelCount returns the number of live NAT-table entries, for tests
// and diagnostics.
func (f *Forwarder) TunnelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tunnels)
}
