package engine

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaydaemon/rinetd/lib/config"
)

// TestEngineStartsOneForwarderPerRule exercises spec.md §8 scenario 5
// at the engine level: a mixed config with one invalid rule yields
// exactly two live forwarders.
func TestEngineStartsOneForwarderPerRule(t *testing.T) {
	text := "127.0.0.1 0/tcp 127.0.0.1 1/tcp\n" +
		"127.0.0.1 5000/tcp 127.0.0.1 6000/tcp\n" +
		"127.0.0.1 5300/udp 127.0.0.1 6300/udp\n"

	set, err := config.Parse(text)
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}

	diag := logrus.New()
	diag.SetOutput(discard{})

	e := New(set, diag)
	if e.StreamCount() != 1 {
		t.Errorf("StreamCount() = %d, want 1", e.StreamCount())
	}
	if e.DatagramCount() != 1 {
		t.Errorf("DatagramCount() = %d, want 1", e.DatagramCount())
	}

	e.Start()
	defer e.Shutdown()

	// Give the accept/receive loops a moment to bind their listeners.
	time.Sleep(50 * time.Millisecond)

	select {
	case err := <-e.Errors():
		t.Fatalf("unexpected forwarder error: %v", err)
	default:
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
