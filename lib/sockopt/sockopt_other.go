//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package sockopt

import "syscall"

// fatalErrnos falls back to the portable subset of spec.md §4.3's
// fatal errno list; platforms outside the unix family (Windows) do
// not define all of EHOSTDOWN/ENOTSOCK/ENODEV under the syscall
// package in a way that is safe to reference unconditionally here.
var fatalErrnos = []syscall.Errno{
	syscall.EBADF,
}

// applyIPv4RawOptions is a no-op: no portable raw-socket-option path
// is wired for this platform.
func applyIPv4RawOptions(conn syscall.Conn) error { return nil }

// applyNoSigPipe is a no-op: SO_NOSIGPIPE is a BSD/Darwin-only option.
func applyNoSigPipe(conn syscall.Conn) {}

// applyFastOpen is a no-op: left to the platform default.
func applyFastOpen(conn syscall.Conn) {}
