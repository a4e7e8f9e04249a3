//go:build linux

package sockopt

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// fatalErrnos are the socket-fatal errno values of spec.md §4.3 that
// Linux defines.
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

// applyIPv4RawOptions sets the PMTUD "want" hint (IP_MTU_DISCOVER =
// IP_PMTUDISC_WANT), clearing the don't-fragment override.
func applyIPv4RawOptions(conn syscall.Conn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	return raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_WANT)
	})
}

// applyNoSigPipe is a no-op on Linux: writes to a closed socket
// surface as EPIPE through the syscall return value, not SIGPIPE,
// so there is no SO_NOSIGPIPE option to set.
func applyNoSigPipe(conn syscall.Conn) {}

// applyFastOpen enables TCP_FASTOPEN, ignoring errors on kernels built
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
