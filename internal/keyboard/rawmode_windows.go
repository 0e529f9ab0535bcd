//go:build windows

package keyboard

import "golang.org/x/sys/windows"

// enableRawMode clears ENABLE_LINE_INPUT and ENABLE_ECHO_INPUT on the
// console's standard input handle so keystrokes are delivered to Read
// immediately, rather than buffered until Enter. Failure is silent and
// non-fatal — a console-less launch (piped stdin, a service wrapper) has
// no mode to set, and the keystroke side channel simply goes quiet.
func enableRawMode() {
	handle, err := windows.GetStdHandle(windows.STD_INPUT_HANDLE)
	if err != nil {
		return
	}

	var mode uint32
	if err := windows.GetConsoleMode(handle, &mode); err != nil {
		return
	}

	mode &^= windows.ENABLE_LINE_INPUT | windows.ENABLE_ECHO_INPUT

	_ = windows.SetConsoleMode(handle, mode)
}
