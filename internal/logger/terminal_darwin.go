//go:build darwin

package logger

import (
	"syscall"
	"unsafe"
)

// isTerminal reports whether fd refers to a terminal.
func isTerminal(fd uintptr) bool {
	var t syscall.Termios
	_, _, errno := syscall.Syscall6(syscall.SYS_IOCTL, fd, syscall.TIOCGETA,
		uintptr(unsafe.Pointer(&t)), 0, 0, 0)
	return errno == 0
}
