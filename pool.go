package bufmgr

import (
	"fmt"

	"github.com/gogpu/bufmgr/device"
	"github.com/gogpu/gputypes"
)

// PoolPolicy selects the sub-allocation behavior of a Pool.
type PoolPolicy int

const (
	// PoolOneShot disables pooling: every allocation gets a standalone
	// handle sized to the request. Used for write-once conversion
	// scratch.
	PoolOneShot PoolPolicy = iota
	// PoolFrequentSmall sub-allocates aggressively from large blocks.
	// Used for the buffer's own backing storage.
	PoolFrequentSmall
	// PoolSporadicUpload keeps blocks small and does not grow them.
	// Used for staging and readback scratch.
	PoolSporadicUpload
)

// String returns the policy name.
func (p PoolPolicy) String() string {
	switch p {
	case PoolOneShot:
		return "OneShot"
	case PoolFrequentSmall:
		return "FrequentSmall"
	case PoolSporadicUpload:
		return "SporadicUpload"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// Pool sub-allocates fixed-usage GPU memory from bump-allocated blocks.
// A request that does not fit the current block's remaining space
// appends a new block and makes it current; displaced blocks stay on a
// pending list until all in-flight GPU work referencing them completes.
//
// A Pool is exclusively owned by one Buffer (or the shared staging
// manager); there is no cross-resource sharing of pools.
type Pool struct {
	dev      device.Device
	usage    gputypes.BufferUsage
	memFlags device.MemoryFlags
	policy   PoolPolicy

	// alignment is the sub-allocation granularity; sizes and offsets
	// are rounded up to it. Must be a power of two.
	alignment int

	// initialSize is the minimum size of newly created blocks. Zero
	// sizes blocks to each request.
	initialSize int

	current *Handle
	cursor  int
	pending []*Handle
}

// Init configures the pool. It may be called again only after Release.
func (p *Pool) Init(dev device.Device, usage gputypes.BufferUsage, memFlags device.MemoryFlags, alignment, initialSize int, policy PoolPolicy) {
	if alignment <= 0 {
		alignment = 1
	}
	p.dev = dev
	p.usage = usage
	p.memFlags = memFlags
	p.alignment = alignment
	p.initialSize = initialSize
	p.policy = policy
}

// Valid reports whether Init has been called.
func (p *Pool) Valid() bool { return p.dev != nil }

// Current returns the block handle the last allocation was served from.
func (p *Pool) Current() *Handle { return p.current }

// Allocate reserves size bytes and returns the handle and offset of the
// reservation. released reports that a previous current block was moved
// to the pending list; the caller should sweep with ReleaseInFlight when
// it knows the completed serial.
//
// Allocation failure is fatal to the calling operation and surfaces as
// ErrOutOfMemory.
func (p *Pool) Allocate(size int) (h *Handle, offset int, released bool, err error) {
	if p.dev == nil {
		panic("bufmgr: pool not initialized")
	}
	if size <= 0 {
		panic("bufmgr: non-positive pool allocation")
	}
	rounded := roundUp(size, p.alignment)

	if p.policy != PoolOneShot && p.current != nil && p.cursor+rounded <= p.current.Size() {
		offset = p.cursor
		p.cursor += rounded
		return p.current, offset, false, nil
	}

	blockSize := rounded
	if blockSize < p.initialSize {
		blockSize = p.initialSize
	}

	alloc, allocErr := p.dev.Allocate(p.usage, p.memFlags, blockSize)
	if allocErr != nil {
		return nil, 0, false, fmt.Errorf("%w: %d-byte pool block: %v", ErrOutOfMemory, blockSize, allocErr)
	}

	if p.current != nil {
		p.pending = append(p.pending, p.current)
		released = true
	}
	// The handle reports the flags the device granted, which may be a
	// different memory type than was requested.
	p.current = newHandle(alloc, blockSize, alloc.Flags())
	p.cursor = rounded

	slogger().Debug("pool block allocated",
		"size", blockSize, "policy", p.policy.String(), "pending", len(p.pending))

	return p.current, 0, released, nil
}

// ReleaseInFlight sweeps the pending list and frees every block whose
// last GPU use has completed and that no Buffer still references. This
// is the only place pooled memory is returned to the allocator.
func (p *Pool) ReleaseInFlight(completed device.Serial) {
	kept := p.pending[:0]
	for _, h := range p.pending {
		if h.idle(completed) {
			h.free()
			continue
		}
		kept = append(kept, h)
	}
	p.pending = kept
}

// Release retires the current block to the pending list and sweeps.
// Blocks still referenced or in flight survive until a later sweep.
func (p *Pool) Release(completed device.Serial) {
	if p.current != nil {
		p.pending = append(p.pending, p.current)
		p.current = nil
		p.cursor = 0
	}
	p.ReleaseInFlight(completed)
}

// PendingBlocks returns the number of blocks awaiting reclamation.
func (p *Pool) PendingBlocks() int { return len(p.pending) }

// drain moves every block, current included, to dst's pending list.
// Used when a Buffer is released while its blocks may still be in
// flight; the manager's graveyard takes over sweeping.
func (p *Pool) drain(dst *[]*Handle) {
	if p.current != nil {
		p.pending = append(p.pending, p.current)
		p.current = nil
		p.cursor = 0
	}
	*dst = append(*dst, p.pending...)
	p.pending = nil
}
