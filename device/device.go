// Package device defines the contracts between the buffer-resource manager
// and its GPU collaborators: a memory allocator that turns a size and flags
// request into a physical allocation, and a command queue that executes
// buffer copies asynchronously and reports progress through completion
// serials.
//
// The bufmgr package is written entirely against these interfaces so the
// policy logic can be exercised with the in-memory implementation in
// devicetest, while backend/wgpu provides a real implementation over
// gogpu/wgpu.
package device

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// ErrOutOfMemory is returned by Device.Allocate when the underlying
// allocator cannot satisfy a request. It is fatal to the triggering
// operation; callers do not retry.
var ErrOutOfMemory = errors.New("device: out of memory")

// Serial identifies a point in the queue's submission history. Serials
// increase monotonically; a resource last used at serial S is safe to
// recycle once Queue.CompletedSerial() >= S.
type Serial uint64

// MemoryFlags describes the visibility class of an allocation.
type MemoryFlags uint32

const (
	// MemoryHostVisible memory is directly addressable by the CPU.
	MemoryHostVisible MemoryFlags = 1 << iota
	// MemoryHostCoherent memory needs no explicit flush/invalidate.
	MemoryHostCoherent
	// MemoryHostCached memory is CPU-cached, preferred for readback.
	MemoryHostCached
	// MemoryDeviceLocal memory is optimized for GPU access and may not
	// be CPU-addressable.
	MemoryDeviceLocal
)

// Contains reports whether all bits in other are set in f.
func (f MemoryFlags) Contains(other MemoryFlags) bool {
	return f&other == other
}

// HostVisible reports whether the CPU can address this memory directly.
func (f MemoryFlags) HostVisible() bool { return f&MemoryHostVisible != 0 }

// HostCoherent reports whether mapped writes are visible without flushes.
func (f MemoryFlags) HostCoherent() bool { return f&MemoryHostCoherent != 0 }

// String returns a compact flag list such as "HostVisible|HostCoherent".
func (f MemoryFlags) String() string {
	if f == 0 {
		return "None"
	}
	names := []struct {
		bit  MemoryFlags
		name string
	}{
		{MemoryHostVisible, "HostVisible"},
		{MemoryHostCoherent, "HostCoherent"},
		{MemoryHostCached, "HostCached"},
		{MemoryDeviceLocal, "DeviceLocal"},
	}
	var s string
	for _, n := range names {
		if f&n.bit == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n.name
	}
	if rest := f &^ (MemoryHostVisible | MemoryHostCoherent | MemoryHostCached | MemoryDeviceLocal); rest != 0 {
		if s != "" {
			s += "|"
		}
		s += fmt.Sprintf("Unknown(0x%x)", uint32(rest))
	}
	return s
}

// CopyRegion describes one region of a buffer-to-buffer copy. Offsets are
// in bytes relative to the start of the respective allocation.
type CopyRegion struct {
	SrcOffset int
	DstOffset int
	Size      int
}

// Allocation is one physical GPU memory allocation. Implementations are
// not safe for concurrent use; the buffer manager drives them from a
// single submission thread.
type Allocation interface {
	// Size returns the allocation size in bytes. It may be larger than
	// the requested size due to allocator granularity.
	Size() int

	// Flags returns the visibility class the allocation was created with.
	Flags() MemoryFlags

	// Bytes returns the CPU-mapped contents of a host-visible
	// allocation. It returns nil when the memory is not host-visible.
	// The slice stays valid until Free.
	Bytes() []byte

	// Free returns the memory to the allocator. The caller guarantees
	// that no in-flight GPU work references the allocation.
	Free()
}

// Capabilities describes device limits and quirks the buffer manager
// adapts to.
type Capabilities struct {
	// MinUniformBufferOffsetAlignment, MinStorageBufferOffsetAlignment
	// and MinTexelBufferOffsetAlignment are the minimum offset
	// alignments for sub-allocated bindings, in bytes. Zero means 1.
	MinUniformBufferOffsetAlignment int
	MinStorageBufferOffsetAlignment int
	MinTexelBufferOffsetAlignment   int

	// MinMapAlignment is the minimum alignment of mapped ranges.
	MinMapAlignment int

	// MockDevice is set by test/mock drivers that do not implement
	// buffer memory state. Index-range queries on such devices report
	// an empty range instead of scanning garbage.
	MockDevice bool
}

// Device is the memory allocator collaborator.
type Device interface {
	// Allocate creates one physical buffer allocation of at least size
	// bytes with the given usage and visibility class. It returns
	// ErrOutOfMemory (possibly wrapped) when the request cannot be
	// satisfied.
	Allocate(usage gputypes.BufferUsage, flags MemoryFlags, size int) (Allocation, error)

	// Caps returns the device limits. The result is constant.
	Caps() Capabilities
}

// Queue is the command-stream collaborator. Copies enqueued here execute
// on the GPU in submission order relative to other commands touching the
// same allocations.
type Queue interface {
	// EnqueueCopy records a buffer-to-buffer copy between two distinct
	// allocations under the current serial.
	EnqueueCopy(src, dst Allocation, regions []CopyRegion) error

	// EnqueueSelfCopy records a copy whose source and destination are
	// the same allocation. Implementations must insert the hazard
	// barriers a same-buffer transfer requires.
	EnqueueSelfCopy(buf Allocation, regions []CopyRegion) error

	// CurrentSerial returns the serial that commands recorded now will
	// retire under.
	CurrentSerial() Serial

	// CompletedSerial returns the highest serial the GPU has finished.
	CompletedSerial() Serial

	// Flush submits all recorded commands and advances the current
	// serial.
	Flush() error

	// WaitForSerial blocks until the GPU has completed the given
	// serial, flushing recorded commands first if necessary. This is
	// the only blocking operation in the buffer core.
	WaitForSerial(s Serial) error

	// IsBusy reports whether any submitted work has not yet completed.
	IsBusy() bool
}
