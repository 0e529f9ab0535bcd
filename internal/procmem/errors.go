package procmem

import "errors"

// Sentinel errors for the terminal startup conditions, shared across the
// windows and non-windows builds so callers can errors.Is against them
// without a platform build tag of their own.
var (
	ErrProcessNotFound       = errors.New("procmem: target process not found")
	ErrModuleBaseUnavailable = errors.New("procmem: module base address unavailable")
	ErrHandleLost            = errors.New("procmem: process handle lost")
)
