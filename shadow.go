package bufmgr

// ShadowBuffer is an optional CPU-side mirror of a buffer's contents,
// kept for bindings where mapped CPU reads dominate. Map and Unmap on a
// valid shadow are pure CPU operations; the mirror is reconciled to GPU
// memory lazily through the staged update path on write-unmap.
//
// The shadow's lifetime is independent of GPU allocations: it survives
// handle swaps.
type ShadowBuffer struct {
	data   []byte
	mapped bool
}

// Valid reports whether a mirror is allocated.
func (s *ShadowBuffer) Valid() bool { return s.data != nil }

// Allocate sizes the mirror. Existing contents are discarded.
func (s *ShadowBuffer) Allocate(size int) {
	s.data = make([]byte, size)
	s.mapped = false
}

// Release drops the mirror.
func (s *ShadowBuffer) Release() {
	s.data = nil
	s.mapped = false
}

// Size returns the mirror size in bytes.
func (s *ShadowBuffer) Size() int { return len(s.data) }

// Update copies data into the mirror at offset.
func (s *ShadowBuffer) Update(data []byte, offset int) {
	copy(s.data[offset:], data)
}

// Map returns the mirror window starting at offset.
func (s *ShadowBuffer) Map(offset, length int) []byte {
	s.mapped = true
	return s.data[offset : offset+length]
}

// Unmap ends a mapping. Contents written through the mapped window are
// already in the mirror; the caller stages them to GPU memory.
func (s *ShadowBuffer) Unmap() { s.mapped = false }

// Contents returns the full mirror.
func (s *ShadowBuffer) Contents() []byte { return s.data }
