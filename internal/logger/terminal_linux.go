//go:build linux

package logger

import (
	"syscall"
	"unsafe"
)

const ioctlGetTermios = 0x5401 // TCGETS

// isTerminal reports whether fd refers to a terminal.
func isTerminal(fd uintptr) bool {
	var t syscall.Termios
	_, _, errno := syscall.Syscall6(syscall.SYS_IOCTL, fd, ioctlGetTermios,
		uintptr(unsafe.Pointer(&t)), 0, 0, 0)
	return errno == 0
}
