//go:build windows

package procmem

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Binding owns a read-only handle to a foreign process and the base address
// of one of its loaded modules. It is acquired once at startup by
// name-based process lookup, and is otherwise treated as opaque and
// immutable: the only thing that can happen to it afterwards is the handle
// going stale, which is terminal.
type Binding struct {
	handle windows.Handle
	pid    uint32
	base   uintptr
}

// Open locates the first running process whose image name matches exeName
// (case-insensitive, e.g. "rekordbox.exe"), opens it with read rights, and
// resolves the base address of the module with the same name.
//
// Failures are classified so the caller can print remedial guidance: a
// missing process usually means the DJ application isn't running yet; a
// missing module base (while the process exists) usually means the
// process is still initializing, or this program needs to run elevated.
func Open(exeName string) (*Binding, error) {
	pid, err := findProcessByName(exeName)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (%s — run as administrator if rekordbox is running elevated)", ErrProcessNotFound, exeName, err)
	}

	handle, err := windows.OpenProcess(windows.PROCESS_VM_READ|windows.PROCESS_QUERY_INFORMATION, false, pid)
	if err != nil {
		return nil, fmt.Errorf("%w: pid %d (%s — try running as administrator)", ErrProcessNotFound, pid, err)
	}

	base, err := findModuleBase(pid, exeName)
	if err != nil {
		windows.CloseHandle(handle) //nolint:errcheck
		return nil, fmt.Errorf("%w: %q in pid %d (%s)", ErrModuleBaseUnavailable, exeName, pid, err)
	}

	return &Binding{handle: handle, pid: pid, base: base}, nil
}

// Close releases the underlying process handle. Safe to call once the
// binding is no longer in use; subsequent reads through it will fail.
func (b *Binding) Close() error {
	return windows.CloseHandle(b.handle)
}

// ModuleBase is the resolved base address of the target module, the anchor
// every pointer chain is relative to.
func (b *Binding) ModuleBase() uintptr {
	return b.base
}

// Alive reports whether the target process handle still refers to a live
// process. A false result is the single terminal condition the Snapshot
// state machine cares about (Observing → Dead).
func (b *Binding) Alive() bool {
	var code uint32
	if err := windows.GetExitCodeProcess(b.handle, &code); err != nil {
		return false
	}

	return code == uint32(windows.STILL_ACTIVE)
}

func (b *Binding) readRaw(addr uintptr, buf []byte) error {
	var n uintptr

	err := windows.ReadProcessMemory(b.handle, addr, &buf[0], uintptr(len(buf)), &n)
	if err != nil {
		return fmt.Errorf("%w: ReadProcessMemory at 0x%x: %s", ErrHandleLost, addr, err)
	}

	if n != uintptr(len(buf)) {
		return fmt.Errorf("procmem: short read at 0x%x: got %d of %d bytes", addr, n, len(buf))
	}

	return nil
}

// ReadPointer implements Reader.
func (b *Binding) ReadPointer(addr uintptr) (uintptr, error) {
	var buf [8]byte
	if err := b.readRaw(addr, buf[:]); err != nil {
		return 0, err
	}

	return uintptr(*(*uint64)(unsafe.Pointer(&buf[0]))), nil
}

// ReadFloat32 implements Reader.
func (b *Binding) ReadFloat32(addr uintptr) (float32, error) {
	var buf [4]byte
	if err := b.readRaw(addr, buf[:]); err != nil {
		return 0, err
	}

	return *(*float32)(unsafe.Pointer(&buf[0])), nil
}

// ReadInt32 implements Reader.
func (b *Binding) ReadInt32(addr uintptr) (int32, error) {
	var buf [4]byte
	if err := b.readRaw(addr, buf[:]); err != nil {
		return 0, err
	}

	return *(*int32)(unsafe.Pointer(&buf[0])), nil
}

// ReadUint8 implements Reader.
func (b *Binding) ReadUint8(addr uintptr) (uint8, error) {
	var buf [1]byte
	if err := b.readRaw(addr, buf[:]); err != nil {
		return 0, err
	}

	return buf[0], nil
}

// ReadBytes implements Reader. It reads one byte at a time, matching the
// original observer's defensive byte-by-byte strategy for the bearer-token
// buffer: a single bad byte in the middle of the target's allocation aborts
// only this read, not the hop before it.
func (b *Binding) ReadBytes(addr uintptr, n int) ([]byte, error) {
	out := make([]byte, n)

	for i := 0; i < n; i++ {
		if err := b.readRaw(addr+uintptr(i), out[i:i+1]); err != nil {
			return nil, fmt.Errorf("read byte %d/%d: %w", i, n, err)
		}
	}

	return out, nil
}

func findProcessByName(exeName string) (uint32, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0, err
	}
	defer windows.CloseHandle(snap) //nolint:errcheck

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	for err := windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		name := windows.UTF16ToString(entry.ExeFile[:])
		if strings.EqualFold(name, exeName) {
			return entry.ProcessID, nil
		}
	}

	return 0, fmt.Errorf("no running process named %q", exeName)
}

func findModuleBase(pid uint32, moduleName string) (uintptr, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, pid)
	if err != nil {
		return 0, err
	}
	defer windows.CloseHandle(snap) //nolint:errcheck

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	for err := windows.Module32First(snap, &entry); err == nil; err = windows.Module32Next(snap, &entry) {
		name := windows.UTF16ToString(entry.Module[:])
		if strings.EqualFold(name, moduleName) {
			return entry.ModBaseAddr, nil
		}
	}

	return 0, fmt.Errorf("module %q not found in pid %d", moduleName, pid)
}
