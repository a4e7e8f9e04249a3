package stream

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/relaydaemon/rinetd/lib/logsink"
	"github.com/relaydaemon/rinetd/lib/rule"
	"github.com/relaydaemon/rinetd/lib/sockopt"
	"github.com/relaydaemon/rinetd/lib/util"
)

// Forwarder owns one stream-forwarding rule: a listening socket, the
// accept loop goroutine, and the set of live Conns it has spawned.
// Grounded on lib/bridge/server.go's Serve/handleConnection/Close/Done
// shape, generalized from SAM command dispatch to raw byte relaying.
type Forwarder struct {
	rule rule.Rule
	sink *logsink.Sink
	diag *logrus.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[*Conn]struct{}
	closed   atomic.Bool
	done     chan struct{}
}

// NewForwarder builds a Forwarder for r. sink may be nil to disable
// stream event logging; diag may be nil to disable diagnostic
// logging.
func NewForwarder(r rule.Rule, sink *logsink.Sink, diag *logrus.Logger) *Forwarder {
	return &Forwarder{
		rule:  r,
		sink:  sink,
		diag:  diag,
		conns: make(map[*Conn]struct{}),
		done:  make(chan struct{}),
	}
}

// ListenAndServe binds the rule's local endpoint and serves until
// closed or a non-temporary accept error occurs.
func (f *Forwarder) ListenAndServe() error {
	local := f.rule.Local()
	listener, err := net.Listen("tcp", local.String())
	if err != nil {
		return err
	}
	return f.Serve(listener)
}

// Serve accepts connections on listener, handing each to its own
// Conn state machine. It blocks until the Forwarder is closed.
func (f *Forwarder) Serve(listener net.Listener) error {
	f.mu.Lock()
	f.listener = listener
	f.mu.Unlock()

	if lc, ok := listener.(syscall.Conn); ok {
		_ = sockopt.TuneStreamConn(lc, f.rule.Local().Addr.IsV6())
	}

	for {
		conn, err := listener.Accept()
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

		if tc, ok := conn.(syscall.Conn); ok {
			_ = sockopt.TuneStreamConn(tc, f.rule.Local().Addr.IsV6())
		}

		c, err := newConn(f, conn)
		if err != nil {
			if f.diag != nil {
				f.diag.WithError(err).Debug("stream: dropping connection, endpoint query failed")
			}
			conn.Close()
			continue
		}

		f.mu.Lock()
		f.conns[c] = struct{}{}
		f.mu.Unlock()

		c.start()
	}
}

// forget removes c from the live-connection set. Called once a Conn
// reaches StateClosed.
func (f *Forwarder) forget(c *Conn) {
	f.mu.Lock()
	delete(f.conns, c)
	f.mu.Unlock()
}

// Close stops accepting new connections and tears down every live
// Conn. Idempotent.
func (f *Forwarder) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	close(f.done)

	f.mu.Lock()
	listener := f.listener
	conns := make([]*Conn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	for _, c := range conns {
		c.closeWith("shutdown", util.ErrClosed)
	}
	return nil
}

// Done returns a channel closed once Close has been called.
func (f *Forwarder) Done() <-chan struct{} {
	return f.done
}

// ConnectionCount returns the number of live connections, for tests
// and diagnostics.
func (f *Forwarder) ConnectionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// Addr returns the listener's bound address, or empty if not yet
// listening.
func (f *Forwarder) Addr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}
