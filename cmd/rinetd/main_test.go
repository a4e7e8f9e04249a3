package main

import "testing"

func TestParseArgsConfFile(t *testing.T) {
	path, help, version, err := parseArgs([]string{"-c", "/tmp/rinetd.conf"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if path != "/tmp/rinetd.conf" || help || version {
		t.Errorf("got path=%q help=%v version=%v", path, help, version)
	}
}

func TestParseArgsLongConfFile(t *testing.T) {
	path, _, _, err := parseArgs([]string{"--conf-file", "/tmp/other.conf"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if path != "/tmp/other.conf" {
		t.Errorf("path = %q, want /tmp/other.conf", path)
	}
}

func TestParseArgsHelpAndVersion(t *testing.T) {
	_, help, _, err := parseArgs([]string{"-h"})
	if err != nil || !help {
		t.Errorf("-h: help=%v err=%v", help, err)
	}
	_, _, version, err := parseArgs([]string{"--version"})
	if err != nil || !version {
		t.Errorf("--version: version=%v err=%v", version, err)
	}
}

func TestParseArgsMissingConfFileArgument(t *testing.T) {
	if _, _, _, err := parseArgs([]string{"-c"}); err == nil {
		t.Error("expected error for -c with no argument")
	}
}

func TestParseArgsRejectsUnknownFlag(t *testing.T) {
	if _, _, _, err := parseArgs([]string{"--bogus"}); err == nil {
		t.Error("expected error for unrecognized argument")
	}
}
