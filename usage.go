package bufmgr

import (
	"fmt"

	"github.com/gogpu/bufmgr/device"
	"github.com/gogpu/gputypes"
)

// UsageHint describes the expected update and access pattern of a buffer,
// following the static/dynamic/stream × draw/read/copy matrix of the
// higher-level API.
type UsageHint int

const (
	StaticDraw UsageHint = iota
	StaticRead
	StaticCopy
	DynamicDraw
	DynamicRead
	DynamicCopy
	StreamDraw
	StreamRead
	StreamCopy
)

// String returns the hint name.
func (u UsageHint) String() string {
	switch u {
	case StaticDraw:
		return "StaticDraw"
	case StaticRead:
		return "StaticRead"
	case StaticCopy:
		return "StaticCopy"
	case DynamicDraw:
		return "DynamicDraw"
	case DynamicRead:
		return "DynamicRead"
	case DynamicCopy:
		return "DynamicCopy"
	case StreamDraw:
		return "StreamDraw"
	case StreamRead:
		return "StreamRead"
	case StreamCopy:
		return "StreamCopy"
	default:
		return fmt.Sprintf("Unknown(%d)", int(u))
	}
}

// isDynamic reports whether the hint promises frequent client updates.
func (u UsageHint) isDynamic() bool {
	return u == DynamicDraw || u == DynamicCopy || u == DynamicRead
}

// BindingPoint identifies which binding a buffer was created for. Only
// bindings the manager treats specially are enumerated; everything else
// is BindingOther.
type BindingPoint int

const (
	BindingOther BindingPoint = iota
	BindingVertex
	BindingIndex
	BindingUniform
	// BindingPixelUnpack buffers are read back by the CPU often enough
	// that they get a shadow copy when the feature is enabled, and
	// host-cached memory regardless of usage hint.
	BindingPixelUnpack
)

// String returns the binding name.
func (b BindingPoint) String() string {
	switch b {
	case BindingOther:
		return "Other"
	case BindingVertex:
		return "Vertex"
	case BindingIndex:
		return "Index"
	case BindingUniform:
		return "Uniform"
	case BindingPixelUnpack:
		return "PixelUnpack"
	default:
		return fmt.Sprintf("Unknown(%d)", int(b))
	}
}

// AccessFlags qualify map requests and immutable-storage creation.
type AccessFlags uint32

const (
	// MapRead requests read access to the mapped range.
	MapRead AccessFlags = 1 << iota
	// MapWrite requests write access to the mapped range.
	MapWrite
	// MapUnsynchronized skips synchronization with in-flight GPU work.
	// Correctness is the caller's responsibility.
	MapUnsynchronized
	// MapInvalidateRange promises the mapped range will be fully
	// overwritten; its previous contents need not be preserved.
	MapInvalidateRange
	// MapInvalidateBuffer promises the entire buffer will be discarded.
	MapInvalidateBuffer
	// MapPersistent keeps the mapping valid across GPU use. Only legal
	// on immutable storage created with this flag.
	MapPersistent
	// MapCoherent makes persistent mappings coherent with GPU access.
	MapCoherent
)

// Contains reports whether all bits in other are set in f.
func (f AccessFlags) Contains(other AccessFlags) bool { return f&other == other }

// bufferUsageFlags is the usage every pooled handle is created with. One
// backing buffer serves all binding points, so it carries the full set of
// buffer usages plus both transfer directions.
const bufferUsageFlags = gputypes.BufferUsageVertex |
	gputypes.BufferUsageUniform |
	gputypes.BufferUsageStorage |
	gputypes.BufferUsageCopySrc |
	gputypes.BufferUsageCopyDst

// stagingUsageFlags is the usage of staging and readback handles, which
// only ever act as transfer sources or targets.
const stagingUsageFlags = gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

// preferredMemoryType maps a binding point and usage hint to the memory
// class requested for the buffer's handles. Static usage favors device
// local memory for GPU throughput; dynamic/stream draw favors uncached
// host-visible memory for write-only CPU access; everything else,
// including pixel-unpack bindings, favors host-cached memory for CPU
// reads.
func preferredMemoryType(binding BindingPoint, usage UsageHint) device.MemoryFlags {
	const (
		deviceLocal = device.MemoryHostVisible | device.MemoryHostCoherent | device.MemoryDeviceLocal
		hostCached  = device.MemoryHostVisible | device.MemoryHostCoherent | device.MemoryHostCached
		hostRaw     = device.MemoryHostVisible | device.MemoryHostCoherent
	)

	if binding == BindingPixelUnpack {
		return hostCached
	}

	switch usage {
	case StaticCopy, StaticDraw, StaticRead:
		return deviceLocal
	case DynamicDraw, StreamDraw:
		return hostRaw
	case DynamicCopy, DynamicRead, StreamCopy, StreamRead:
		return hostCached
	default:
		return hostCached
	}
}

// storageMemoryType maps immutable-storage creation flags to a memory
// class. Coherent or persistent mappings, and external client buffers,
// require host-coherent memory; plain storage only needs host-visible.
func storageMemoryType(flags AccessFlags, external bool) device.MemoryFlags {
	if flags.Contains(MapCoherent) || flags.Contains(MapPersistent) || external {
		return device.MemoryDeviceLocal | device.MemoryHostVisible | device.MemoryHostCoherent
	}
	return device.MemoryDeviceLocal | device.MemoryHostVisible
}

// poolSizing returns the alignment and initial block size for a buffer's
// allocation pool. Dynamic hints sub-allocate from larger blocks so that
// repeated respecification reuses pool storage; other hints let the pool
// size itself to the buffer.
func poolSizing(caps device.Capabilities, dataSize int, usage UsageHint) (alignment, initialSize int) {
	alignment = maxAlignment(caps)

	// Sub-allocate dynamic buffers from a fixed-size block. Larger
	// buffers fall back to one handle per allocation automatically.
	const dynamicBlockSize = 4 * 1024

	if !usage.isDynamic() {
		return alignment, 0
	}
	aligned := roundUp(dataSize, alignment)
	if aligned >= dynamicBlockSize {
		return alignment, 0
	}
	return alignment, aligned * (dynamicBlockSize / aligned)
}

// maxAlignment returns an alignment satisfying every binding the buffer
// may be used for. All known devices report power-of-two limits, so max
// works in place of lcm.
func maxAlignment(caps device.Capabilities) int {
	a := 1
	for _, l := range []int{
		caps.MinUniformBufferOffsetAlignment,
		caps.MinStorageBufferOffsetAlignment,
		caps.MinTexelBufferOffsetAlignment,
		caps.MinMapAlignment,
	} {
		if l > a {
			a = l
		}
	}
	return a
}

// roundUp rounds n up to a multiple of align. align must be a power of
// two.
func roundUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
