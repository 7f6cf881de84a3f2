// Package wgpu adapts a gogpu/wgpu HAL device and queue to the
// allocator and queue contracts the buffer manager drives.
//
// The HAL exposes no buffer mapping, so host-visible memory is
// emulated: each host-visible allocation carries a CPU mirror that is
// uploaded with Queue.WriteBuffer when a recorded copy or a flush needs
// the GPU to see it. GPU-side writes into host-visible memory are
// applied to the mirror on the CPU when the backend knows the copy
// regions; copies from unmirrored memory leave the mirror stale, the
// same gap the HAL readback path has.
package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	types "github.com/gogpu/gputypes"

	"github.com/gogpu/bufmgr/device"
	"github.com/gogpu/gputypes"
)

const fenceWaitTimeout = 5_000_000_000 // ns

// Capabilities mirrors device.Capabilities for configuring a Backend.
// Zero fields are replaced with the WebGPU default limits.
type Capabilities struct {
	MinUniformBufferOffsetAlignment int
	MinStorageBufferOffsetAlignment int
	MinTexelBufferOffsetAlignment   int
	MinMapAlignment                 int
}

func (c Capabilities) withDefaults() Capabilities {
	if c.MinUniformBufferOffsetAlignment == 0 {
		c.MinUniformBufferOffsetAlignment = 256
	}
	if c.MinStorageBufferOffsetAlignment == 0 {
		c.MinStorageBufferOffsetAlignment = 256
	}
	if c.MinTexelBufferOffsetAlignment == 0 {
		c.MinTexelBufferOffsetAlignment = 16
	}
	if c.MinMapAlignment == 0 {
		c.MinMapAlignment = 8
	}
	return c
}

// Backend implements device.Device and device.Queue over a HAL device
// and queue. It serializes recording and submission internally.
type Backend struct {
	mu     sync.Mutex
	device hal.Device
	queue  hal.Queue
	caps   device.Capabilities

	encoder  hal.CommandEncoder
	recorded bool

	current   device.Serial
	completed device.Serial
	inFlight  []submission
}

type submission struct {
	serial device.Serial
	fence  hal.Fence
}

// New wraps the given HAL device and queue.
func New(dev hal.Device, q hal.Queue, caps Capabilities) *Backend {
	caps = caps.withDefaults()
	return &Backend{
		device: dev,
		queue:  q,
		caps: device.Capabilities{
			MinUniformBufferOffsetAlignment: caps.MinUniformBufferOffsetAlignment,
			MinStorageBufferOffsetAlignment: caps.MinStorageBufferOffsetAlignment,
			MinTexelBufferOffsetAlignment:   caps.MinTexelBufferOffsetAlignment,
			MinMapAlignment:                 caps.MinMapAlignment,
		},
		current: 1,
	}
}

// Caps implements device.Device.
func (b *Backend) Caps() device.Capabilities { return b.caps }

type allocation struct {
	backend *Backend
	buf     hal.Buffer
	size    int
	flags   device.MemoryFlags

	// mirror backs Bytes for host-visible allocations; dirty marks it
	// as needing a WriteBuffer upload before the next recorded copy.
	mirror []byte
	dirty  bool
	freed  bool
}

// Allocate implements device.Device.
func (b *Backend) Allocate(usage gputypes.BufferUsage, flags device.MemoryFlags, size int) (device.Allocation, error) {
	if size <= 0 {
		return nil, fmt.Errorf("wgpu: allocation size must be positive, got %d", size)
	}
	desc := &hal.BufferDescriptor{
		Label: "bufmgr",
		Size:  uint64(size),
		Usage: convertBufferUsage(usage) | types.BufferUsageCopySrc | types.BufferUsageCopyDst,
	}
	buf, err := b.device.CreateBuffer(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrOutOfMemory, err)
	}
	a := &allocation{backend: b, buf: buf, size: size, flags: flags}
	if flags.HostVisible() {
		a.mirror = make([]byte, size)
	}
	return a, nil
}

func (a *allocation) Size() int                 { return a.size }
func (a *allocation) Flags() device.MemoryFlags { return a.flags }

func (a *allocation) Bytes() []byte {
	if a.mirror == nil {
		return nil
	}
	// The caller may write through the slice at any time before the
	// next recorded copy; treat every access as a mutation.
	a.dirty = true
	return a.mirror
}

func (a *allocation) Free() {
	if a.freed {
		return
	}
	a.freed = true
	a.mirror = nil
	a.backend.device.DestroyBuffer(a.buf)
}

// upload pushes a dirty mirror to the GPU copy of the buffer.
func (a *allocation) upload(q hal.Queue) {
	if a.dirty && !a.freed {
		q.WriteBuffer(a.buf, 0, a.mirror)
		a.dirty = false
	}
}

func asAllocation(alloc device.Allocation) (*allocation, error) {
	a, ok := alloc.(*allocation)
	if !ok {
		return nil, fmt.Errorf("wgpu: foreign allocation %T", alloc)
	}
	if a.freed {
		return nil, fmt.Errorf("wgpu: allocation already freed")
	}
	return a, nil
}

// EnqueueCopy implements device.Queue.
func (b *Backend) EnqueueCopy(src, dst device.Allocation, regions []device.CopyRegion) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := asAllocation(src)
	if err != nil {
		return err
	}
	d, err := asAllocation(dst)
	if err != nil {
		return err
	}
	return b.recordCopy(s, d, regions)
}

// EnqueueSelfCopy implements device.Queue. The HAL offers no intra-buffer
// barrier, so overlapping hazards are the caller's responsibility; the
// manager only issues self-copies for disjoint ranges.
func (b *Backend) EnqueueSelfCopy(buf device.Allocation, regions []device.CopyRegion) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := asAllocation(buf)
	if err != nil {
		return err
	}
	return b.recordCopy(a, a, regions)
}

func (b *Backend) recordCopy(src, dst *allocation, regions []device.CopyRegion) error {
	if b.encoder == nil {
		enc, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "bufmgr-copy"})
		if err != nil {
			return fmt.Errorf("wgpu: create command encoder: %w", err)
		}
		if err := enc.BeginEncoding("bufmgr-copy"); err != nil {
			return fmt.Errorf("wgpu: begin encoding: %w", err)
		}
		b.encoder = enc
	}
	src.upload(b.queue)
	dst.upload(b.queue)
	halRegions := make([]hal.BufferCopy, len(regions))
	for i, r := range regions {
		halRegions[i] = hal.BufferCopy{
			SrcOffset: uint64(r.SrcOffset),
			DstOffset: uint64(r.DstOffset),
			Size:      uint64(r.Size),
		}
	}
	b.encoder.CopyBufferToBuffer(src.buf, dst.buf, halRegions)
	b.recorded = true

	// Keep the destination mirror coherent when the source contents are
	// known on the CPU.
	if src.mirror != nil && dst.mirror != nil {
		for _, r := range regions {
			copy(dst.mirror[r.DstOffset:r.DstOffset+r.Size], src.mirror[r.SrcOffset:r.SrcOffset+r.Size])
		}
	}
	return nil
}

// CurrentSerial implements device.Queue.
func (b *Backend) CurrentSerial() device.Serial {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// CompletedSerial implements device.Queue. Finished fences are polled
// so completion advances without an explicit wait.
func (b *Backend) CompletedSerial() device.Serial {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.poll()
	return b.completed
}

func (b *Backend) poll() {
	kept := b.inFlight[:0]
	for _, sub := range b.inFlight {
		done, err := b.device.Wait(sub.fence, 1, 0)
		if err == nil && done {
			if sub.serial > b.completed {
				b.completed = sub.serial
			}
			b.device.DestroyFence(sub.fence)
			continue
		}
		kept = append(kept, sub)
	}
	b.inFlight = kept
}

// Flush implements device.Queue: it submits recorded copies under the
// current serial and opens the next one.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *Backend) flushLocked() error {
	if !b.recorded {
		return nil
	}
	cmd, err := b.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer cmd.Destroy()
	fence, err := b.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	if err := b.queue.Submit([]hal.CommandBuffer{cmd}, fence, 1); err != nil {
		b.device.DestroyFence(fence)
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	b.inFlight = append(b.inFlight, submission{serial: b.current, fence: fence})
	b.encoder = nil
	b.recorded = false
	b.current++
	return nil
}

// WaitForSerial implements device.Queue.
func (b *Backend) WaitForSerial(s device.Serial) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s >= b.current {
		if err := b.flushLocked(); err != nil {
			return err
		}
		// Nothing was recorded under s; skip past it so later work
		// cannot retire under an already-completed serial.
		if s >= b.current {
			b.current = s + 1
		}
	}
	for _, sub := range b.inFlight {
		if sub.serial > s {
			continue
		}
		if _, err := b.device.Wait(sub.fence, 1, fenceWaitTimeout); err != nil {
			return fmt.Errorf("wgpu: wait for fence: %w", err)
		}
	}
	b.poll()
	if s > b.completed {
		// Nothing was ever submitted under s.
		b.completed = s
	}
	return nil
}

// IsBusy implements device.Queue.
func (b *Backend) IsBusy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.poll()
	return len(b.inFlight) > 0 || b.recorded
}

func convertBufferUsage(usage gputypes.BufferUsage) types.BufferUsage {
	var result types.BufferUsage
	if usage&gputypes.BufferUsageMapRead != 0 {
		result |= types.BufferUsageMapRead
	}
	if usage&gputypes.BufferUsageMapWrite != 0 {
		result |= types.BufferUsageMapWrite
	}
	if usage&gputypes.BufferUsageCopySrc != 0 {
		result |= types.BufferUsageCopySrc
	}
	if usage&gputypes.BufferUsageCopyDst != 0 {
		result |= types.BufferUsageCopyDst
	}
	if usage&gputypes.BufferUsageIndex != 0 {
		result |= types.BufferUsageIndex
	}
	if usage&gputypes.BufferUsageVertex != 0 {
		result |= types.BufferUsageVertex
	}
	if usage&gputypes.BufferUsageUniform != 0 {
		result |= types.BufferUsageUniform
	}
	if usage&gputypes.BufferUsageStorage != 0 {
		result |= types.BufferUsageStorage
	}
	return result
}
