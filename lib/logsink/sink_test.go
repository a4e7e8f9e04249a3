package logsink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileSinkWritesRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rinetd.log")

	s := NewFileSink(path, nil)
	s.Write(Record{
		Source:   ep(t, "127.0.0.1", 5555),
		Kind:     KindSyn,
		Remote:   ep(t, "127.0.0.1", 6000),
		NAT:      ep(t, "127.0.0.1", 7000),
		Listener: ep(t, "127.0.0.1", 5000),
	})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "syn") {
		t.Errorf("log file missing syn record: %q", data)
	}
	if !strings.HasSuffix(string(data), "\r\n") {
		t.Errorf("log file record not CRLF-terminated: %q", data)
	}
}

func TestFileSinkAppendsAcrossWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rinetd.log")
	s := NewFileSink(path, nil)

	s.Write(Record{Source: ep(t, "127.0.0.1", 1), Kind: KindSyn, Remote: ep(t, "127.0.0.1", 2), NAT: ep(t, "127.0.0.1", 3), Listener: ep(t, "127.0.0.1", 4)})
	s.Write(Record{Source: ep(t, "127.0.0.1", 1), Kind: KindOpen, Remote: ep(t, "127.0.0.1", 2), NAT: ep(t, "127.0.0.1", 3), Listener: ep(t, "127.0.0.1", 4)})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\r\n"), "\r\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), data)
	}
}

func TestDescriptorSinkWritesAndCloses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rinetd.log")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	s := NewDescriptorSink(f, nil)
	s.Write(Record{Source: ep(t, "127.0.0.1", 1), Kind: KindOpen, Remote: ep(t, "127.0.0.1", 2), NAT: ep(t, "127.0.0.1", 3), Listener: ep(t, "127.0.0.1", 4)})
	s.Close()

	// Give the writer goroutine's defer a chance; Close already waits
	// on done, so this should be immediate.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "open") {
		t.Errorf("descriptor sink missing open record: %q", data)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	f, err := os.CreateTemp(dir, "log")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	s := NewDescriptorSink(f, nil)
	s.Close()
	s.Close() // must not panic or block
}

func TestFormatLineLayoutIsStable(t *testing.T) {
	// Guard against accidental layout drift separately from the
	// bracket/CRLF test above.
	at := time.Now()
	line := formatLine("x", at)
	if !strings.HasPrefix(line, "[") {
		t.Errorf("formatLine does not start with bracket: %q", line)
	}
}
