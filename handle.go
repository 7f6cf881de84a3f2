package bufmgr

import (
	"github.com/gogpu/bufmgr/device"
)

// Handle wraps one physical GPU allocation together with its visibility
// class and in-use tracking. Handles are created by an allocation Pool,
// or as one-off wrappers around externally provided memory, and are
// reclaimed only when no Buffer references them and no in-flight GPU
// work does either.
//
// GPU use is tracked with monotonic queue serials rather than callbacks:
// a handle last used at serial S is idle once the queue reports S
// complete.
type Handle struct {
	alloc    device.Allocation
	size     int
	flags    device.MemoryFlags
	external bool

	// refs counts Buffer references. A pooled handle normally has one;
	// it can transiently reach two while a handle swap copies data from
	// the old handle into the new one.
	refs int

	lastUsed    device.Serial // any GPU access
	lastWritten device.Serial // GPU writes only
}

// newHandle wraps a pooled allocation.
func newHandle(alloc device.Allocation, size int, flags device.MemoryFlags) *Handle {
	return &Handle{alloc: alloc, size: size, flags: flags}
}

// newExternalHandle wraps client-provided memory. External handles are
// never resized or returned to a pool.
func newExternalHandle(alloc device.Allocation, size int) *Handle {
	return &Handle{alloc: alloc, size: size, flags: alloc.Flags(), external: true}
}

// Valid reports whether the handle still owns an allocation.
func (h *Handle) Valid() bool { return h != nil && h.alloc != nil }

// Size returns the allocation size in bytes.
func (h *Handle) Size() int { return h.size }

// IsExternal reports whether the handle wraps client-provided memory.
func (h *Handle) IsExternal() bool { return h != nil && h.external }

// IsHostVisible reports whether the CPU can address the memory directly.
func (h *Handle) IsHostVisible() bool { return h.flags.HostVisible() }

// IsCoherent reports whether mapped writes need no explicit flush.
func (h *Handle) IsCoherent() bool { return h.flags.HostCoherent() }

// Allocation returns the underlying device allocation.
func (h *Handle) Allocation() device.Allocation { return h.alloc }

// Bytes returns the CPU-mapped contents of a host-visible handle, nil
// otherwise.
func (h *Handle) Bytes() []byte {
	if h.alloc == nil {
		return nil
	}
	return h.alloc.Bytes()
}

// InUse reports whether the GPU may still be reading or writing the
// handle, given the queue's last completed serial.
func (h *Handle) InUse(completed device.Serial) bool {
	return h.lastUsed > completed
}

// InUseForWrite reports whether submitted GPU writes to the handle may
// still be outstanding.
func (h *Handle) InUseForWrite(completed device.Serial) bool {
	return h.lastWritten > completed
}

// retainRead records a GPU read under serial s. Retaining a handle keeps
// its memory alive until s completes, regardless of reference count.
func (h *Handle) retainRead(s device.Serial) {
	if s > h.lastUsed {
		h.lastUsed = s
	}
}

// retainWrite records a GPU write under serial s.
func (h *Handle) retainWrite(s device.Serial) {
	h.retainRead(s)
	if s > h.lastWritten {
		h.lastWritten = s
	}
}

// ref adds a Buffer reference.
func (h *Handle) ref() { h.refs++ }

// unref drops a Buffer reference. Freeing is centralized in the pool
// sweep (or Buffer release for external handles); unref never frees.
func (h *Handle) unref() {
	if h.refs <= 0 {
		panic("bufmgr: handle reference count underflow")
	}
	h.refs--
}

// idle reports whether the handle can be reclaimed: unreferenced by any
// Buffer and past all in-flight GPU use.
func (h *Handle) idle(completed device.Serial) bool {
	return h.refs == 0 && !h.InUse(completed)
}

// free returns the memory to the allocator and invalidates the handle.
func (h *Handle) free() {
	if h.alloc != nil {
		h.alloc.Free()
		h.alloc = nil
	}
}
