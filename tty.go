package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// isTerminal reports whether f is a tty, by asking for its line settings.
func isTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}
