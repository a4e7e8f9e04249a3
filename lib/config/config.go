// Package config parses the line-oriented rinetd configuration file
// format of spec.md §6 into a rule.Set.
//
// Grounded on original_source/src/config.cpp's parse_config tokenizer
// (the `<host> <port>/tcp|udp <host> <port>/tcp|udp` and `logfile
// <path>` directive grammar, comment stripping, and silent-drop
// behavior for unparsable rules), shaped as a Go package the way
// lib/bridge/config.go shapes its Config/Validate pair.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/relaydaemon/rinetd/lib/netaddr"
	"github.com/relaydaemon/rinetd/lib/rule"
)

// DefaultPath returns the platform default configuration path used
// when no -c/--conf-file flag is given: /etc/rinetd.conf on Unix,
// <cwd>\rinetd.conf on Windows.
func DefaultPath() string {
	if runtime.GOOS == "windows" {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		return cwd + `\rinetd.conf`
	}
	return "/etc/rinetd.conf"
}

// LoadFile reads and parses the configuration file at path.
func LoadFile(path string) (rule.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return rule.Set{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(string(data))
}

// Parse parses configuration text per spec.md §6: lines terminated by
// \r or \n; a line beginning with # is a comment, a # elsewhere
// truncates the line; empty/whitespace-only lines are ignored. Rules
// with unparsable hosts or out-of-range ports are silently discarded
// rather than causing an error, matching the original's behavior.
// The last logfile directive wins.
func Parse(text string) (rule.Set, error) {
	var set rule.Set

	for _, line := range splitLines(text) {
		line = stripComment(line)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if path, ok := parseLogfile(line); ok {
			set.LogPath = path
			continue
		}

		r, ok := parseRuleLine(line)
		if !ok {
			continue
		}
		if err := r.Validate(); err != nil {
			continue
		}
		set.Rules = append(set.Rules, r)
	}

	return set, nil
}

// splitLines tokenizes on \r or \n, treating any run of either as a
// single line terminator so CRLF, LF, and bare CR are all accepted.
func splitLines(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '\r' || r == '\n'
	})
}

// stripComment truncates line at the first '#'.
func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

func parseLogfile(line string) (string, bool) {
	const prefix = "logfile"
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	rest := line[len(prefix):]
	if rest == "" || !isSpace(rest[0]) {
		// "logfile" with no argument, or a directive that merely
		// starts with the same letters (e.g. "logfiles"), is not a
		// logfile directive.
		return "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

// parseRuleLine matches "<host> <port>/tcp <host> <port>/tcp" or the
// /udp variant. Returns ok=false for anything else, including partial
// matches, per the silent-discard rule of spec.md §6.
func parseRuleLine(line string) (rule.Rule, bool) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return rule.Rule{}, false
	}

	localHost := fields[0]
	localPort, localProto, ok := splitPortProto(fields[1])
	if !ok {
		return rule.Rule{}, false
	}
	remoteHost := fields[2]
	remotePort, remoteProto, ok := splitPortProto(fields[3])
	if !ok || remoteProto != localProto {
		return rule.Rule{}, false
	}

	var proto rule.Proto
	switch localProto {
	case "tcp":
		proto = rule.TCP
	case "udp":
		proto = rule.UDP
	default:
		return rule.Rule{}, false
	}

	local, err := netaddr.Parse(localHost)
	if err != nil {
		return rule.Rule{}, false
	}
	remote, err := netaddr.Parse(remoteHost)
	if err != nil {
		return rule.Rule{}, false
	}

	return rule.Rule{
		Proto:      proto,
		LocalHost:  local,
		LocalPort:  localPort,
		RemoteHost: remote,
		RemotePort: remotePort,
	}, true
}

// splitPortProto splits a "<port>/tcp" or "<port>/udp" token.
func splitPortProto(token string) (uint16, string, bool) {
	parts := strings.SplitN(token, "/", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	n, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil || n < rule.MinPort || n > rule.MaxPort {
		return 0, "", false
	}
	proto := parts[1]
	if proto != "tcp" && proto != "udp" {
		return 0, "", false
	}
	return uint16(n), proto, true
}
