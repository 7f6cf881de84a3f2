package bufmgr

import "errors"

var (
	// ErrOutOfMemory is returned when the device cannot satisfy a
	// storage or staging allocation. It wraps device.ErrOutOfMemory
	// details where available.
	ErrOutOfMemory = errors.New("bufmgr: out of memory")

	// ErrUnsupportedMapRequest is returned when a mapping cannot be
	// honored, such as a persistent map of non-host-visible external
	// memory.
	ErrUnsupportedMapRequest = errors.New("bufmgr: unsupported map request")

	// ErrInvalidRange is returned when an offset/size pair falls outside
	// the buffer.
	ErrInvalidRange = errors.New("bufmgr: range out of bounds")

	// ErrExternalBuffer is returned for operations imported storage
	// cannot support, such as respecification.
	ErrExternalBuffer = errors.New("bufmgr: external buffer")

	// ErrNotMapped is returned by Unmap when no mapping is active.
	ErrNotMapped = errors.New("bufmgr: buffer is not mapped")

	// ErrAlreadyMapped is returned by Map while a mapping is active.
	ErrAlreadyMapped = errors.New("bufmgr: buffer is already mapped")

	// ErrReleased is returned for operations on a released buffer.
	ErrReleased = errors.New("bufmgr: buffer has been released")
)
