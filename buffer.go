package bufmgr

import (
	"fmt"

	"github.com/gogpu/bufmgr/device"
)

type updateType int

const (
	// contentsUpdate means the buffer's size and identity are unchanged;
	// only (part of) its data is replaced. Dependents must be told the
	// storage moved when the handle swaps underneath it.
	contentsUpdate updateType = iota
	// storageRedefined means the buffer is being (re)created; dependents
	// will observe the new storage through the create path itself.
	storageRedefined
)

// Buffer is a single logical buffer resource. It owns a suballocation
// pool for its backing storage, an optional CPU shadow copy, the map
// bookkeeping, and the format-conversion cache entries derived from it.
//
// A Buffer is not safe for concurrent use; drive it from the same
// thread as its Manager's queue.
type Buffer struct {
	mgr     *Manager
	binding BindingPoint

	usage        UsageHint
	storageFlags AccessFlags
	persistent   bool
	external     bool
	released     bool

	size   int
	pool   Pool
	handle *Handle
	offset int

	// roundTrip provides host-visible scratch for mapping device-local
	// storage. Initialized lazily on first non-host-visible map.
	roundTrip Pool

	shadow      ShadowBuffer
	conversions []*ConversionBuffer

	hasValidData    bool
	referencedByGPU bool

	mapped     bool
	mapOffset  int
	mapLength  int
	mapAccess  AccessFlags
	mapBytes   []byte
	mapStaging *StagingBlock

	roundTripHandle *Handle
	roundTripOffset int

	observer Observer
}

// Binding returns the binding point the buffer was created for.
func (b *Buffer) Binding() BindingPoint { return b.binding }

// Size returns the buffer's logical size in bytes.
func (b *Buffer) Size() int { return b.size }

// Valid reports whether the buffer currently has backing storage.
func (b *Buffer) Valid() bool { return b.handle.Valid() }

// IsExternal reports whether the storage was imported rather than
// allocated from the buffer's own pool.
func (b *Buffer) IsExternal() bool { return b.external }

// HasValidData reports whether the buffer's contents have ever been
// defined by an upload, a write-map, or a copy destination.
func (b *Buffer) HasValidData() bool { return b.hasValidData }

// Handle returns the current backing handle and the byte offset of the
// buffer's range within it. Integrations use both to record GPU access.
func (b *Buffer) Handle() (*Handle, int) { return b.handle, b.offset }

// SetObserver registers o to be notified of content and storage
// changes. A nil o clears the registration.
func (b *Buffer) SetObserver(o Observer) { b.observer = o }

// SetData (re)creates the buffer with the given size and usage hint and
// optionally uploads initial contents. data may be nil or shorter than
// size; only len(data) bytes are uploaded. A size of zero drops the
// storage and succeeds without notifying dependents.
func (b *Buffer) SetData(data []byte, size int, usage UsageHint) error {
	return b.setDataWithMemoryType(data, size, preferredMemoryType(b.binding, usage), 0, usage)
}

// SetStorage (re)creates the buffer as immutable storage with the given
// access flags. MapPersistent storage is kept host-visible so the
// client's mapping stays valid across GPU work.
func (b *Buffer) SetStorage(data []byte, size int, flags AccessFlags) error {
	return b.setDataWithMemoryType(data, size, storageMemoryType(flags, false), flags, StaticDraw)
}

// ImportExternal adopts client-owned storage as the buffer's backing.
// External buffers cannot be resized or reallocated, and a persistent
// mapping of non-host-visible external memory is refused up front,
// before any pool or scratch allocation happens. The Manager never
// frees external memory; that stays with the caller.
func (b *Buffer) ImportExternal(alloc device.Allocation, size int, flags AccessFlags) error {
	if b.released {
		return ErrReleased
	}
	if flags.Contains(MapPersistent) && !alloc.Flags().HostVisible() {
		return fmt.Errorf("%w: persistent map of non-host-visible external memory", ErrUnsupportedMapRequest)
	}
	b.releaseStorage()
	b.handle = newExternalHandle(alloc, size)
	b.handle.ref()
	b.offset = 0
	b.size = size
	b.external = true
	b.storageFlags = flags
	b.persistent = flags.Contains(MapPersistent)
	b.hasValidData = true
	b.referencedByGPU = false
	return nil
}

func (b *Buffer) setDataWithMemoryType(data []byte, size int, memFlags device.MemoryFlags, flags AccessFlags, usage UsageHint) error {
	if b.released {
		return ErrReleased
	}
	if b.external {
		return fmt.Errorf("%w: cannot respecify imported storage", ErrExternalBuffer)
	}
	if size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidRange, size)
	}

	b.hasValidData = false
	if size == 0 {
		b.releaseStorage()
		b.size = 0
		b.usage = usage
		b.storageFlags = flags
		return nil
	}

	sameSize := size == b.size && b.handle.Valid()
	b.usage = usage
	b.storageFlags = flags
	b.persistent = flags.Contains(MapPersistent)

	if !sameSize {
		b.releaseStorage()
		b.size = size
		align, initial := poolSizing(b.mgr.dev.Caps(), size, usage)
		b.pool.Init(b.mgr.dev, bufferUsageFlags, memFlags, align, initial, PoolFrequentSmall)
		if err := b.acquireNewHandle(size, storageRedefined); err != nil {
			return err
		}
		if b.mgr.cfg.ShadowBuffers && b.binding == BindingPixelUnpack && !b.persistent {
			b.shadow.Allocate(size)
		}
	}

	if len(data) == 0 {
		return nil
	}
	upload := data
	if len(upload) > size {
		upload = upload[:size]
	}
	ut := storageRedefined
	if sameSize {
		ut = contentsUpdate
	}
	return b.setDataImpl(upload, 0, ut)
}

// SetSubData uploads data at the given byte offset. Zero-length uploads
// are a no-op and do not notify dependents.
func (b *Buffer) SetSubData(data []byte, offset int) error {
	if b.released {
		return ErrReleased
	}
	if len(data) == 0 {
		return nil
	}
	if offset < 0 || offset+len(data) > b.size {
		return fmt.Errorf("%w: update [%d, %d) of %d-byte buffer", ErrInvalidRange, offset, offset+len(data), b.size)
	}
	return b.setDataImpl(data, offset, contentsUpdate)
}

func (b *Buffer) setDataImpl(data []byte, offset int, ut updateType) error {
	if b.shadow.Valid() {
		b.shadow.Update(data, offset)
	}

	strategy := decideUpdate(updateQuery{
		InUse:        b.isCurrentlyInUse(),
		External:     b.handle.IsExternal(),
		HasValidData: b.hasValidData,
		UpdateSize:   len(data),
		BufferSize:   b.size,
		Threshold:    b.mgr.cfg.AcquireThreshold,
		PreferCPU:    b.mgr.cfg.PreferCPUCopy,
	})
	slogger().Debug("buffer update",
		"strategy", strategy.String(),
		"offset", offset, "size", len(data), "buffer_size", b.size)

	var err error
	switch strategy {
	case UpdateDirect:
		err = b.updateBuffer(data, offset)
	case UpdateAcquire:
		err = b.acquireAndUpdate(data, offset, ut)
	default:
		err = b.stagedUpdate(data, offset)
	}
	if err != nil {
		return err
	}
	b.dataUpdated()
	return nil
}

// updateBuffer writes into the current handle in place: a CPU memcpy
// when the memory is host-visible, a staged transfer otherwise.
func (b *Buffer) updateBuffer(data []byte, offset int) error {
	if !b.handle.IsHostVisible() {
		return b.stagedUpdate(data, offset)
	}
	copy(b.handle.Bytes()[b.offset+offset:], data)
	b.mgr.counters.DirectUpdates++
	return nil
}

func (b *Buffer) stagedUpdate(data []byte, offset int) error {
	block, err := b.mgr.staging.Allocate(len(data))
	if err != nil {
		return err
	}
	copy(block.Bytes(), data)
	if err := b.mgr.staging.Flush(block, b.handle, b.offset+offset, len(data)); err != nil {
		return err
	}
	b.referencedByGPU = true
	b.mgr.counters.StagedUpdates++
	return nil
}

// acquireAndUpdate swaps in a fresh handle from the pool, writes the
// new data into it, and preserves the untouched head and tail of the
// old contents, either with a CPU copy when the old memory is readable
// and idle, or with at most two GPU copy regions.
func (b *Buffer) acquireAndUpdate(data []byte, offset int, ut updateType) error {
	src := b.handle
	srcOffset := b.offset
	bufferSize := b.size
	end := offset + len(data)

	preserveHead := b.hasValidData && offset > 0
	preserveTail := b.hasValidData && end < bufferSize

	var srcBytes []byte
	if preserveHead || preserveTail {
		// The old handle must outlive the pool allocation below: bumping
		// its serial before allocating keeps the release sweep from
		// freeing it while the preserved regions still read from it.
		src.retainRead(b.mgr.q.CurrentSerial())
		src.ref()
		defer src.unref()

		copySize := bufferSize - len(data)
		if src.IsHostVisible() && !src.InUseForWrite(b.mgr.q.CompletedSerial()) &&
			shouldUseCPUToCopy(b.mgr.cfg.PreferCPUCopy, b.mgr.q.IsBusy(), copySize, b.mgr.cfg.MaxCPUCopyBytes) {
			srcBytes = src.Bytes()[srcOffset : srcOffset+bufferSize]
		}
	}

	if err := b.acquireNewHandle(bufferSize, ut); err != nil {
		return err
	}
	if err := b.updateBuffer(data, offset); err != nil {
		return err
	}

	regions := make([]device.CopyRegion, 0, 2)
	if preserveHead {
		if srcBytes != nil {
			if err := b.updateBuffer(srcBytes[:offset], 0); err != nil {
				return err
			}
		} else {
			regions = append(regions, device.CopyRegion{SrcOffset: srcOffset, DstOffset: b.offset, Size: offset})
		}
	}
	if preserveTail {
		if srcBytes != nil {
			if err := b.updateBuffer(srcBytes[end:], end); err != nil {
				return err
			}
		} else {
			regions = append(regions, device.CopyRegion{SrcOffset: srcOffset + end, DstOffset: b.offset + end, Size: bufferSize - end})
		}
	}
	if len(regions) > 0 {
		// Dynamic buffers can get the fresh range from the same pool
		// block as the old one; intra-allocation copies need hazard
		// handling.
		var copyErr error
		if src.Allocation() == b.handle.Allocation() {
			copyErr = b.mgr.q.EnqueueSelfCopy(b.handle.Allocation(), regions)
		} else {
			copyErr = b.mgr.q.EnqueueCopy(src.Allocation(), b.handle.Allocation(), regions)
		}
		if copyErr != nil {
			return copyErr
		}
		serial := b.mgr.q.CurrentSerial()
		src.retainRead(serial)
		b.handle.retainWrite(serial)
		b.referencedByGPU = true
	}
	b.mgr.counters.AcquireUpdates++
	return nil
}

// acquireNewHandle replaces the buffer's backing range with a fresh
// suballocation. The displaced handle stays alive in the pool's pending
// list until its last GPU use completes.
func (b *Buffer) acquireNewHandle(size int, ut updateType) error {
	if b.handle.IsExternal() {
		panic("bufmgr: cannot reallocate imported storage")
	}
	h, off, released, err := b.pool.Allocate(roundUp(size, sizeGranularity))
	if err != nil {
		return err
	}
	if h != b.handle {
		if b.handle != nil {
			b.handle.unref()
		}
		h.ref()
	}
	b.handle = h
	b.offset = off
	b.referencedByGPU = false
	if released {
		b.pool.ReleaseInFlight(b.mgr.q.CompletedSerial())
	}
	if ut == contentsUpdate && b.observer != nil {
		b.observer.OnBufferStorageChanged(b)
	}
	return nil
}

func (b *Buffer) isCurrentlyInUse() bool {
	return b.referencedByGPU && b.handle.InUse(b.mgr.q.CompletedSerial())
}

// CopySubData records a GPU copy of size bytes from src into b. When
// both ranges live in the same backing handle the copy is recorded with
// a hazard barrier between the read and the write.
func (b *Buffer) CopySubData(src *Buffer, srcOffset, dstOffset, size int) error {
	if b.released || src.released {
		return ErrReleased
	}
	if size < 0 || srcOffset < 0 || dstOffset < 0 ||
		srcOffset+size > src.size || dstOffset+size > b.size {
		return fmt.Errorf("%w: copy [%d, %d) -> [%d, %d)", ErrInvalidRange, srcOffset, srcOffset+size, dstOffset, dstOffset+size)
	}
	if size == 0 {
		return nil
	}

	if b.shadow.Valid() {
		window, err := src.Map(srcOffset, size, MapRead)
		if err != nil {
			return err
		}
		b.shadow.Update(window, dstOffset)
		if _, err := src.Unmap(); err != nil {
			return err
		}
	}

	regions := []device.CopyRegion{{
		SrcOffset: src.offset + srcOffset,
		DstOffset: b.offset + dstOffset,
		Size:      size,
	}}
	var err error
	if src.handle == b.handle {
		err = b.mgr.q.EnqueueSelfCopy(b.handle.Allocation(), regions)
	} else {
		err = b.mgr.q.EnqueueCopy(src.handle.Allocation(), b.handle.Allocation(), regions)
	}
	if err != nil {
		return err
	}
	serial := b.mgr.q.CurrentSerial()
	src.handle.retainRead(serial)
	b.handle.retainWrite(serial)
	src.referencedByGPU = true
	b.referencedByGPU = true
	b.dataUpdated()
	return nil
}

// Map exposes [offset, offset+length) of the buffer for CPU access.
// The returned slice stays valid until Unmap. The backing chosen for
// the mapping depends on the access flags and the buffer's GPU state;
// see MapStrategy.
func (b *Buffer) Map(offset, length int, access AccessFlags) ([]byte, error) {
	if b.released {
		return nil, ErrReleased
	}
	if b.mapped {
		return nil, ErrAlreadyMapped
	}
	if !access.Contains(MapRead) && !access.Contains(MapWrite) {
		return nil, fmt.Errorf("%w: neither read nor write access", ErrUnsupportedMapRequest)
	}
	if offset < 0 || length < 0 || offset+length > b.size {
		return nil, fmt.Errorf("%w: map [%d, %d) of %d-byte buffer", ErrInvalidRange, offset, offset+length, b.size)
	}
	if !b.handle.Valid() {
		return nil, fmt.Errorf("%w: buffer has no storage", ErrInvalidRange)
	}
	if access.Contains(MapPersistent) && b.external && !b.handle.IsHostVisible() {
		return nil, fmt.Errorf("%w: persistent map of non-host-visible external memory", ErrUnsupportedMapRequest)
	}

	completed := b.mgr.q.CompletedSerial()
	strategy := decideMap(mapQuery{
		ShadowValid:   b.shadow.Valid(),
		HostVisible:   b.handle.IsHostVisible(),
		External:      b.handle.IsExternal(),
		InUse:         b.isCurrentlyInUse(),
		InUseForWrite: b.referencedByGPU && b.handle.InUseForWrite(completed),
		Access:        access,
		Offset:        offset,
		Length:        length,
		BufferSize:    b.size,
	})
	slogger().Debug("buffer map",
		"strategy", strategy.String(),
		"offset", offset, "length", length)

	var (
		bytes []byte
		err   error
	)
	switch strategy {
	case MapShadow:
		bytes = b.shadow.Map(offset, length)
	case MapDirect:
		if !access.Contains(MapWrite) && !access.Contains(MapUnsynchronized) {
			if err = b.finishGPUWrites(); err != nil {
				return nil, err
			}
		}
		bytes = b.handle.Bytes()[b.offset+offset : b.offset+offset+length]
	case MapRoundTrip:
		bytes, err = b.roundTripMap(offset, length)
	case MapAcquire:
		if err = b.acquireNewHandle(b.size, contentsUpdate); err != nil {
			return nil, err
		}
		bytes = b.handle.Bytes()[b.offset+offset : b.offset+offset+length]
	case MapStagedInvalidate:
		var block *StagingBlock
		block, err = b.mgr.staging.Allocate(length)
		if err != nil {
			return nil, err
		}
		b.mapStaging = block
		bytes = block.Bytes()
	case MapGhost:
		bytes, err = b.ghostMappedBuffer(offset, length, access)
	case MapWaitThenDirect:
		if err = b.finishGPUUse(); err != nil {
			return nil, err
		}
		bytes = b.handle.Bytes()[b.offset+offset : b.offset+offset+length]
	}
	if err != nil {
		return nil, err
	}

	b.mapped = true
	b.mapOffset = offset
	b.mapLength = length
	b.mapAccess = access
	b.mapBytes = bytes
	return bytes, nil
}

// roundTripMap copies the requested range into host-visible scratch and
// waits for the copy so the CPU sees current contents. On a write-only
// map the wait still orders the scratch behind pending GPU writes.
func (b *Buffer) roundTripMap(offset, length int) ([]byte, error) {
	if !b.roundTrip.Valid() {
		b.roundTrip.Init(b.mgr.dev, stagingUsageFlags,
			device.MemoryHostVisible|device.MemoryHostCoherent,
			sizeGranularity, 0, PoolSporadicUpload)
	}
	h, off, released, err := b.roundTrip.Allocate(length)
	if err != nil {
		return nil, err
	}
	if released {
		b.roundTrip.ReleaseInFlight(b.mgr.q.CompletedSerial())
	}
	regions := []device.CopyRegion{{SrcOffset: b.offset + offset, DstOffset: off, Size: length}}
	if err := b.mgr.q.EnqueueCopy(b.handle.Allocation(), h.Allocation(), regions); err != nil {
		return nil, err
	}
	serial := b.mgr.q.CurrentSerial()
	b.handle.retainRead(serial)
	h.retainWrite(serial)
	if err := b.mgr.q.WaitForSerial(serial); err != nil {
		return nil, err
	}
	b.mgr.counters.DeviceLocalRoundTrip++
	b.mgr.counters.GPUStalls++
	b.roundTripHandle = h
	b.roundTripOffset = off
	return h.Bytes()[off : off+length], nil
}

// ghostMappedBuffer moves the buffer to a fresh handle and copies the
// old contents over on the CPU, skipping any range the caller asked to
// invalidate. The GPU keeps reading the old handle until its work
// completes; the write-map proceeds on the copy without a stall.
func (b *Buffer) ghostMappedBuffer(offset, length int, access AccessFlags) ([]byte, error) {
	prev := b.handle
	prevOffset := b.offset

	prev.retainRead(b.mgr.q.CurrentSerial())
	prev.ref()
	defer prev.unref()

	if err := b.acquireNewHandle(b.size, contentsUpdate); err != nil {
		return nil, err
	}
	prevBytes := prev.Bytes()[prevOffset : prevOffset+b.size]
	newBytes := b.handle.Bytes()[b.offset : b.offset+b.size]
	if access.Contains(MapInvalidateRange) {
		copy(newBytes[:offset], prevBytes[:offset])
		copy(newBytes[offset+length:], prevBytes[offset+length:])
	} else {
		copy(newBytes, prevBytes)
	}
	b.mgr.counters.BuffersGhosted++
	return newBytes[offset : offset+length], nil
}

// finishGPUWrites stalls until pending GPU writes to the current handle
// complete. Reads may still be in flight afterwards.
func (b *Buffer) finishGPUWrites() error {
	completed := b.mgr.q.CompletedSerial()
	if !b.handle.InUseForWrite(completed) {
		return nil
	}
	if err := b.mgr.q.WaitForSerial(b.handle.lastWritten); err != nil {
		return err
	}
	b.mgr.counters.GPUStalls++
	return nil
}

// finishGPUUse stalls until all GPU use of the current handle, reads
// included, completes.
func (b *Buffer) finishGPUUse() error {
	completed := b.mgr.q.CompletedSerial()
	if !b.handle.InUse(completed) {
		return nil
	}
	if err := b.mgr.q.WaitForSerial(b.handle.lastUsed); err != nil {
		return err
	}
	b.mgr.counters.GPUStalls++
	return nil
}

// Unmap ends the current mapping and flushes any writes the mapping
// buffered: shadow contents are staged to the GPU copy, a staged
// invalidate block is flushed to its range, and round-trip scratch is
// copied back when the map had write access. The returned bool reports
// whether the buffer's contents changed.
func (b *Buffer) Unmap() (bool, error) {
	if b.released {
		return false, ErrReleased
	}
	if !b.mapped {
		return false, ErrNotMapped
	}
	write := b.mapAccess.Contains(MapWrite)

	switch {
	case b.mapStaging != nil:
		if err := b.mgr.staging.Flush(b.mapStaging, b.handle, b.offset+b.mapOffset, b.mapLength); err != nil {
			return false, err
		}
		b.referencedByGPU = true
		b.mapStaging = nil
	case b.shadow.Valid():
		b.shadow.Unmap()
		if write {
			if err := b.stagedUpdate(b.mapBytes, b.mapOffset); err != nil {
				return false, err
			}
		}
	case b.roundTripHandle != nil:
		if write {
			regions := []device.CopyRegion{{
				SrcOffset: b.roundTripOffset,
				DstOffset: b.offset + b.mapOffset,
				Size:      b.mapLength,
			}}
			if err := b.mgr.q.EnqueueCopy(b.roundTripHandle.Allocation(), b.handle.Allocation(), regions); err != nil {
				return false, err
			}
			serial := b.mgr.q.CurrentSerial()
			b.roundTripHandle.retainRead(serial)
			b.handle.retainWrite(serial)
			b.referencedByGPU = true
		}
		b.roundTripHandle = nil
	}

	b.mapped = false
	b.mapBytes = nil
	b.mapAccess = 0
	if write {
		b.dataUpdated()
	}
	return write, nil
}

// GetSubData reads size bytes starting at offset into a fresh slice,
// from the shadow copy when one exists, otherwise through a read map.
func (b *Buffer) GetSubData(offset, size int) ([]byte, error) {
	if b.released {
		return nil, ErrReleased
	}
	if offset < 0 || size < 0 || offset+size > b.size {
		return nil, fmt.Errorf("%w: read [%d, %d) of %d-byte buffer", ErrInvalidRange, offset, offset+size, b.size)
	}
	out := make([]byte, size)
	if b.shadow.Valid() {
		copy(out, b.shadow.Contents()[offset:offset+size])
		return out, nil
	}
	src, err := b.Map(offset, size, MapRead)
	if err != nil {
		return nil, err
	}
	copy(out, src)
	if _, err := b.Unmap(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetIndexRange scans count indices of type t starting at byte offset
// and returns the smallest and largest values, skipping the primitive
// restart sentinel when requested. On a mock device the scan is skipped
// and a degenerate range is returned.
func (b *Buffer) GetIndexRange(t ElementType, offset, count int, primitiveRestart bool) (IndexRange, error) {
	if b.released {
		return IndexRange{}, ErrReleased
	}
	if b.mgr.dev.Caps().MockDevice {
		return IndexRange{}, nil
	}
	byteCount := count * t.size()
	if offset < 0 || count < 0 || offset+byteCount > b.size {
		return IndexRange{}, fmt.Errorf("%w: index scan [%d, %d) of %d-byte buffer", ErrInvalidRange, offset, offset+byteCount, b.size)
	}
	data, err := b.Map(offset, byteCount, MapRead)
	if err != nil {
		return IndexRange{}, err
	}
	r := computeIndexRange(t, data, count, primitiveRestart)
	if _, err := b.Unmap(); err != nil {
		return IndexRange{}, err
	}
	return r, nil
}

// VertexConversionBuffer returns the conversion cache entry for the
// given key, creating it on first use. hostVisible selects the memory
// type for newly created entries.
func (b *Buffer) VertexConversionBuffer(key ConversionKey, hostVisible bool) *ConversionBuffer {
	for _, cb := range b.conversions {
		if cb.Key == key {
			return cb
		}
	}
	cb := newConversionBuffer(b.mgr.dev, key, hostVisible)
	b.conversions = append(b.conversions, cb)
	return cb
}

// MarkGPURead records that currently-recording GPU work reads the
// buffer. Integrations call this when binding the buffer for a draw.
func (b *Buffer) MarkGPURead() {
	b.handle.retainRead(b.mgr.q.CurrentSerial())
	b.referencedByGPU = true
}

// MarkGPUWrite records that currently-recording GPU work writes the
// buffer, for transform feedback or storage-buffer use.
func (b *Buffer) MarkGPUWrite() {
	b.handle.retainWrite(b.mgr.q.CurrentSerial())
	b.referencedByGPU = true
}

// dataUpdated marks derived state stale after any content change.
func (b *Buffer) dataUpdated() {
	for _, cb := range b.conversions {
		cb.Dirty = true
	}
	b.hasValidData = true
	if b.observer != nil {
		b.observer.OnBufferContentsChanged(b)
	}
}

// releaseStorage parks the buffer's storage in the manager's graveyard
// and drops the handle. External memory is only unreferenced, never
// freed here.
func (b *Buffer) releaseStorage() {
	if b.handle != nil {
		b.handle.unref()
		b.handle = nil
	}
	b.offset = 0
	if b.external {
		b.external = false
		return
	}
	b.pool.drain(&b.mgr.graveyard)
	b.roundTrip.drain(&b.mgr.graveyard)
	b.roundTripHandle = nil
}

// Release drops the buffer's storage, shadow copy, and conversion cache
// entries. Storage still referenced by in-flight GPU work is freed by a
// later Manager.Sweep.
func (b *Buffer) Release() {
	if b.released {
		return
	}
	b.releaseStorage()
	for _, cb := range b.conversions {
		cb.release(&b.mgr.graveyard)
	}
	b.conversions = nil
	b.shadow.Release()
	b.mapped = false
	b.mapBytes = nil
	if b.mapStaging != nil {
		b.mgr.staging.discard(b.mapStaging)
		b.mapStaging = nil
	}
	b.size = 0
	b.hasValidData = false
	b.released = true
	b.mgr.Sweep()
}
