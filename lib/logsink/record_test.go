package logsink

import (
	"strings"
	"testing"
	"time"

	"github.com/relaydaemon/rinetd/lib/netaddr"
)

func ep(t *testing.T, host string, port uint16) netaddr.Endpoint {
	t.Helper()
	addr, err := netaddr.Parse(host)
	if err != nil {
		t.Fatalf("netaddr.Parse(%q): %v", host, err)
	}
	return netaddr.Endpoint{Addr: addr, Port: port}
}

func TestRecordStringColumns(t *testing.T) {
	r := Record{
		Source:   ep(t, "203.0.113.5", 54321),
		Kind:     KindSyn,
		Remote:   ep(t, "127.0.0.1", 6000),
		NAT:      ep(t, "127.0.0.1", 45000),
		Listener: ep(t, "127.0.0.1", 5000),
	}

	line := r.String()

	if !strings.HasPrefix(line, "203.0.113.5:54321") {
		t.Fatalf("line does not start with source endpoint: %q", line)
	}
	if !strings.Contains(line, "syn  ") {
		t.Errorf("line missing padded syn kind column: %q", line)
	}
	if !strings.Contains(line, "nat ") {
		t.Errorf("line missing literal nat separator: %q", line)
	}
	if !strings.HasSuffix(line, "127.0.0.1:5000") {
		t.Errorf("line does not end with listener endpoint: %q", line)
	}

	// Column 1 must be padded to width 21 for an IPv4 source.
	sourceCol := line[:21]
	if strings.TrimRight(sourceCol, " ") != "203.0.113.5:54321" {
		t.Errorf("source column = %q, want padded to 21", sourceCol)
	}
}

func TestRecordStringColumnsAreFixedWidthRegardlessOfFamily(t *testing.T) {
	r := Record{
		Source:   ep(t, "::1", 54321),
		Kind:     KindSyn,
		Remote:   ep(t, "fe80::1", 6000),
		NAT:      ep(t, "127.0.0.1", 45000),
		Listener: ep(t, "127.0.0.1", 5000),
	}

	line := r.String()

	// Column widths never depend on the printed endpoint's family: the
	// source column is always 21 wide, so an IPv6 source overruns it
	// rather than widening it, matching the original's hardcoded
	// per-column widths.
	sourceCol := line[:21]
	if strings.TrimRight(sourceCol, " ") != "[::1]:54321" {
		t.Errorf("source column = %q, want padded to fixed width 21", sourceCol)
	}
}

func TestRecordOpenKind(t *testing.T) {
	r := Record{
		Source:   ep(t, "127.0.0.1", 1),
		Kind:     KindOpen,
		Remote:   ep(t, "127.0.0.1", 2),
		NAT:      ep(t, "127.0.0.1", 3),
		Listener: ep(t, "127.0.0.1", 4),
	}
	if !strings.Contains(r.String(), "open ") {
		t.Errorf("line missing padded open kind column: %q", r.String())
	}
}

func TestFormatLineBracketsTimestampAndCRLF(t *testing.T) {
	at := time.Date(2026, 7, 30, 12, 34, 56, 0, time.UTC)
	line := formatLine("body", at)
	want := "[2026-07-30 12:34:56] body\r\n"
	if line != want {
		t.Errorf("formatLine = %q, want %q", line, want)
	}
}
