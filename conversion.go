package bufmgr

import (
	"github.com/gogpu/bufmgr/device"
	"github.com/gogpu/gputypes"
)

// FormatID identifies a vertex data format in the format-conversion
// cache key. The manager does not interpret it.
type FormatID uint32

// conversionInitialSize starts conversion scratch fairly small; the pool
// grows as more data gets converted.
const conversionInitialSize = 8 * 1024

// ConversionKey identifies one converted view of a buffer.
type ConversionKey struct {
	Format FormatID
	Stride uint32
	Offset int
}

// ConversionBuffer holds the write-once scratch storage for one
// converted view of a buffer, plus the dirty flag that tells the
// consumer when the parent's contents changed and the conversion must
// run again.
//
// Entries are created lazily on first request and live as long as the
// parent buffer; they are never removed individually.
type ConversionBuffer struct {
	Key ConversionKey

	// Dirty is set whenever the parent buffer's contents change and
	// cleared by the consumer after re-converting.
	Dirty bool

	// LastOffset is the offset of the most recent allocation, kept for
	// the consumer's rebind bookkeeping.
	LastOffset int

	pool Pool
}

// newConversionBuffer creates the entry with a one-shot scratch pool:
// conversion output is written once per conversion pass, so there is
// nothing to gain from sub-allocating.
func newConversionBuffer(dev device.Device, key ConversionKey, hostVisible bool) *ConversionBuffer {
	flags := device.MemoryDeviceLocal
	if hostVisible {
		flags = device.MemoryHostVisible | device.MemoryHostCoherent
	}
	c := &ConversionBuffer{Key: key, Dirty: true}
	c.pool.Init(dev,
		gputypes.BufferUsageVertex|gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst,
		flags, sizeGranularity, conversionInitialSize, PoolOneShot)
	return c
}

// Allocate reserves size bytes of conversion scratch and returns the
// handle and offset of the reservation.
func (c *ConversionBuffer) Allocate(size int, completed device.Serial) (*Handle, int, error) {
	h, off, released, err := c.pool.Allocate(size)
	if err != nil {
		return nil, 0, err
	}
	if released {
		c.pool.ReleaseInFlight(completed)
	}
	c.LastOffset = off
	return h, off, nil
}

// release drains the scratch pool into the manager's graveyard.
func (c *ConversionBuffer) release(dst *[]*Handle) { c.pool.drain(dst) }
