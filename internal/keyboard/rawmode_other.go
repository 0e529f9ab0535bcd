//go:build !windows

package keyboard

// enableRawMode is a no-op outside Windows; the console-mode manipulation
// this package exists for is Win32-specific, matching the rest of the
// memory observer's non-cross-platform contract.
func enableRawMode() {}
