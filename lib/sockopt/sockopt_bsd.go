//go:build darwin || freebsd || netbsd || openbsd

package sockopt

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// fatalErrnos are the socket-fatal errno values of spec.md §4.3 that
// BSD-family platforms define.
var fatalErrnos = []syscall.Errno{
	syscall.EBADF,
	syscall.ENOENT,
	syscall.ENOTSOCK,
	syscall.ENODEV,
	syscall.EIO,
	syscall.ENETDOWN,
	syscall.ENETUNREACH,
	syscall.EHOSTDOWN,
	syscall.EHOSTUNREACH,
}

// applyIPv4RawOptions sets the don't-fragment hint where the platform
// exposes an equivalent of IP_MTU_DISCOVER. BSD platforms historically
// lack a single portable knob for this; best effort only.
func applyIPv4RawOptions(conn syscall.Conn) error {
	return nil
}

// applyNoSigPipe enables SO_NOSIGPIPE, preventing a write to a
// peer-closed socket from raising SIGPIPE in the process.
func applyNoSigPipe(conn syscall.Conn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_NOSIGPIPE, 1)
	})
}

// applyFastOpen enables TCP_FASTOPEN, ignoring errors on systems built
// without it.
func applyFastOpen(conn syscall.Conn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_FASTOPEN, 1)
	})
}
