package bufmgr

import (
	"github.com/gogpu/bufmgr/device"
)

// StagingBlock is a transient CPU-mapped region inside the staging pool.
// It is valid until flushed; after Flush the block must not be reused.
type StagingBlock struct {
	handle *Handle
	offset int
	bytes  []byte
}

// Bytes returns the CPU-writable window of the block.
func (b *StagingBlock) Bytes() []byte { return b.bytes }

// valid reports whether the block can still be written or flushed.
func (b *StagingBlock) valid() bool { return b != nil && b.handle != nil }

// StagingManager hands out short-lived, CPU-visible scratch regions used
// to shuttle data into GPU-only memory. Blocks are sub-allocated from a
// rotating set of coherent host-visible allocations; a displaced
// allocation is reclaimed once every copy reading from it has completed
// on the GPU.
//
// One StagingManager is shared by all buffers of a Manager.
type StagingManager struct {
	pool Pool
	q    device.Queue
}

// Init configures the staging pool.
func (s *StagingManager) Init(dev device.Device, q device.Queue, blockSize int) {
	s.q = q
	s.pool.Init(dev,
		stagingUsageFlags,
		device.MemoryHostVisible|device.MemoryHostCoherent,
		sizeGranularity, blockSize, PoolSporadicUpload)
}

// Allocate reserves a CPU-writable block of size bytes.
func (s *StagingManager) Allocate(size int) (*StagingBlock, error) {
	h, off, released, err := s.pool.Allocate(size)
	if err != nil {
		return nil, err
	}
	if released {
		s.pool.ReleaseInFlight(s.q.CompletedSerial())
	}
	mem := h.Bytes()
	if mem == nil {
		panic("bufmgr: staging pool memory is not host-visible")
	}
	// The block keeps a reference so a pool sweep cannot reclaim the
	// allocation while the caller still writes through bytes. Flush
	// and discard drop it.
	h.ref()
	return &StagingBlock{handle: h, offset: off, bytes: mem[off : off+size]}, nil
}

// Flush enqueues the GPU copy from the block into dst at dstOffset and
// invalidates the block. size may be smaller than the block when only a
// prefix was filled.
func (s *StagingManager) Flush(block *StagingBlock, dst *Handle, dstOffset, size int) error {
	if !block.valid() {
		panic("bufmgr: flush of invalid staging block")
	}
	err := s.q.EnqueueCopy(block.handle.Allocation(), dst.Allocation(), []device.CopyRegion{
		{SrcOffset: block.offset, DstOffset: dstOffset, Size: size},
	})
	if err != nil {
		return err
	}
	serial := s.q.CurrentSerial()
	block.handle.retainRead(serial)
	dst.retainWrite(serial)
	block.handle.unref()
	block.handle = nil
	block.bytes = nil
	return nil
}

// discard drops an unflushed block, releasing its hold on the pool
// allocation.
func (s *StagingManager) discard(block *StagingBlock) {
	if !block.valid() {
		return
	}
	block.handle.unref()
	block.handle = nil
	block.bytes = nil
}

// Sweep reclaims displaced staging allocations whose copies completed.
func (s *StagingManager) Sweep(completed device.Serial) {
	s.pool.ReleaseInFlight(completed)
}

// Release retires all staging storage; blocks still in flight survive
// until a later sweep by the owning manager.
func (s *StagingManager) Release(completed device.Serial) {
	s.pool.Release(completed)
}

// drain hands all staging blocks to the manager's graveyard.
func (s *StagingManager) drain(dst *[]*Handle) { s.pool.drain(dst) }
