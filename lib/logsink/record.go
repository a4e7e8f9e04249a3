// Package logsink implements the structured stream-forwarding event
// log of spec.md §4.5/§4.6: one space-separated, column-padded line
// per syn/open transition, timestamp-bracketed and CRLF-terminated,
// written through either a per-write file or a persistent descriptor.
package logsink

import (
	"fmt"
	"strings"
	"time"

	"github.com/relaydaemon/rinetd/lib/netaddr"
)

// Kind distinguishes the two stream log record kinds.
type Kind string

const (
	// KindSyn marks the OPENING → CONNECTING transition.
	KindSyn Kind = "syn"
	// KindOpen marks the CONNECTING → RELAYING transition.
	KindOpen Kind = "open"
)

// Record is one stream event-log line per spec.md §4.5: original
// source, kind, configured remote, literal "nat ", post-NAT egress
// local endpoint, configured listener endpoint.
type Record struct {
	Source   netaddr.Endpoint // original source endpoint
	Kind     Kind
	Remote   netaddr.Endpoint // configured remote endpoint
	NAT      netaddr.Endpoint // local endpoint of the egress socket
	Listener netaddr.Endpoint // configured local (listener) endpoint
}

// Fixed column widths for the stream event-log line, per spec.md
// §4.5 / original_source/src/tcp_forward.hpp's wirte_log: the source
// column is always padded to sourceColumnWidth and the remote/NAT
// columns are always padded to remoteColumnWidth, regardless of
// whether the printed endpoint happens to be IPv4 or IPv6 — an IPv6
// endpoint simply overruns its column rather than widening it.
const (
	sourceColumnWidth = 21
	remoteColumnWidth = 46
)

// String renders the record body (without timestamp prefix or line
// terminator, which the Sink adds) using the fixed column widths of
// spec.md §4.5.
func (r Record) String() string {
	var b strings.Builder
	padRight(&b, r.Source.String(), sourceColumnWidth)
	padRight(&b, string(r.Kind), 5)
	padRight(&b, r.Remote.String(), remoteColumnWidth)
	b.WriteString("nat ")
	padRight(&b, r.NAT.String(), remoteColumnWidth)
	b.WriteString(r.Listener.String())
	return b.String()
}

// padRight writes s followed by spaces up to width, or s verbatim if
// it already meets or exceeds width — mirroring the original's
// PaddingRight helper.
func padRight(b *strings.Builder, s string, width int) {
	b.WriteString(s)
	for n := len(s); n < width; n++ {
		b.WriteByte(' ')
	}
}

// timestampLayout is the [YYYY-MM-DD hh:mm:ss] prefix format of
// spec.md §4.6, expressed as a Go reference-time layout.
const timestampLayout = "2006-01-02 15:04:05"

// formatLine brackets a record body with its timestamp prefix and
// terminates it with CRLF, per spec.md §4.6.
func formatLine(body string, at time.Time) string {
	return fmt.Sprintf("[%s] %s\r\n", at.Format(timestampLayout), body)
}
