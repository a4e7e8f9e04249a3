package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/relaydaemon/rinetd/lib/rule"
)

// TestParseMixedValidAndInvalidRules exercises spec.md §8 scenario 5:
// one valid stream rule, one invalid rule (port 0), one valid
// datagram rule — exactly two rules survive.
func TestParseMixedValidAndInvalidRules(t *testing.T) {
	text := "" +
		"# comment line\r\n" +
		"127.0.0.1 5000/tcp 10.0.0.1 6000/tcp\n" +
		"127.0.0.1 0/tcp 10.0.0.1 6001/tcp\n" +
		"127.0.0.1 5300/udp 10.0.0.1 6300/udp\r\n" +
		"logfile /var/log/rinetd.log\n"

	set, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(set.Rules) != 2 {
		t.Fatalf("got %d rules, want 2: %+v", len(set.Rules), set.Rules)
	}
	if set.Rules[0].Proto != rule.TCP {
		t.Errorf("rule 0 proto = %v, want TCP", set.Rules[0].Proto)
	}
	if set.Rules[1].Proto != rule.UDP {
		t.Errorf("rule 1 proto = %v, want UDP", set.Rules[1].Proto)
	}
	if set.LogPath != "/var/log/rinetd.log" {
		t.Errorf("LogPath = %q, want /var/log/rinetd.log", set.LogPath)
	}
}

func TestParseLastLogfileWins(t *testing.T) {
	text := "logfile /tmp/first.log\nlogfile /tmp/second.log\n"
	set, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if set.LogPath != "/tmp/second.log" {
		t.Errorf("LogPath = %q, want /tmp/second.log", set.LogPath)
	}
}

func TestParseIgnoresCommentsAndBlankLines(t *testing.T) {
	text := "\n   \n# nothing here\n127.0.0.1 80/tcp 127.0.0.1 8080/tcp # trailing comment\n"
	set, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(set.Rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(set.Rules))
	}
}

func TestParseRejectsMismatchedProtocols(t *testing.T) {
	set, err := Parse("127.0.0.1 80/tcp 127.0.0.1 8080/udp\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(set.Rules) != 0 {
		t.Errorf("got %d rules, want 0 for mismatched protocols", len(set.Rules))
	}
}

func TestParseRejectsUnparsableHost(t *testing.T) {
	set, err := Parse("not-an-ip 80/tcp 127.0.0.1 8080/tcp\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(set.Rules) != 0 {
		t.Errorf("got %d rules, want 0 for unparsable host", len(set.Rules))
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rinetd.conf")
	if err := os.WriteFile(path, []byte("127.0.0.1 80/tcp 127.0.0.1 8080/tcp\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	set, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(set.Rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(set.Rules))
	}
}

// TestDefaultPath exercises spec.md §8 scenario 6: the default config
// path selection branches on platform.
func TestDefaultPath(t *testing.T) {
	path := DefaultPath()
	if runtime.GOOS == "windows" {
		if filepath.Base(path) != "rinetd.conf" {
			t.Errorf("DefaultPath() = %q, want to end in rinetd.conf", path)
		}
	} else {
		if path != "/etc/rinetd.conf" {
			t.Errorf("DefaultPath() = %q, want /etc/rinetd.conf", path)
		}
	}
}
