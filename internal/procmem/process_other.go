//go:build !windows

package procmem

import (
	"errors"
)

// ErrUnsupportedPlatform is returned by Open on any platform other than
// Windows. The observer is specified against the Win32 process/memory
// model; there is no cross-platform abstraction to fall back to.
var ErrUnsupportedPlatform = errors.New("procmem: the memory observer only runs on windows")

// Binding is an unusable stand-in on non-Windows platforms, present only so
// this package (and anything built on its Reader interface) type-checks
// when cross-compiling or running unit tests on the developer's own OS.
type Binding struct{}

// Open always fails on non-Windows platforms.
func Open(exeName string) (*Binding, error) {
	return nil, ErrUnsupportedPlatform
}

func (b *Binding) Close() error                             { return nil }
func (b *Binding) ModuleBase() uintptr                       { return 0 }
func (b *Binding) Alive() bool                               { return false }
func (b *Binding) ReadPointer(addr uintptr) (uintptr, error) { return 0, ErrUnsupportedPlatform }
func (b *Binding) ReadFloat32(addr uintptr) (float32, error) { return 0, ErrUnsupportedPlatform }
func (b *Binding) ReadInt32(addr uintptr) (int32, error)     { return 0, ErrUnsupportedPlatform }
func (b *Binding) ReadUint8(addr uintptr) (uint8, error)     { return 0, ErrUnsupportedPlatform }
func (b *Binding) ReadBytes(addr uintptr, n int) ([]byte, error) {
	return nil, ErrUnsupportedPlatform
}
