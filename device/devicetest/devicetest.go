// Package devicetest provides an in-memory implementation of the device
// collaborator interfaces for testing buffer-manager policy without a GPU.
//
// The mock executes enqueued copies immediately against Go-slice backing
// stores, which preserves submission order, while completion serials only
// advance when the test calls Complete or CompleteAll. That split lets
// tests hold buffers "in use by the GPU" for as long as they need while
// still being able to observe final buffer contents.
package devicetest

import (
	"fmt"

	"github.com/gogpu/bufmgr/device"
	"github.com/gogpu/gputypes"
)

// Allocation is a mock GPU allocation backed by a Go slice. Device-local
// allocations keep the backing store private: Bytes returns nil, but
// queue copies still read and write it, mirroring memory the GPU can
// reach and the CPU cannot.
type Allocation struct {
	dev   *Device
	data  []byte
	flags device.MemoryFlags
	freed bool
}

// Size returns the allocation size in bytes.
func (a *Allocation) Size() int { return len(a.data) }

// Flags returns the visibility class of the allocation.
func (a *Allocation) Flags() device.MemoryFlags { return a.flags }

// Bytes returns the backing store for host-visible allocations, nil
// otherwise.
func (a *Allocation) Bytes() []byte {
	if !a.flags.HostVisible() {
		return nil
	}
	return a.data
}

// Free marks the allocation freed. Freeing twice panics, and the parent
// device records the release for leak assertions.
func (a *Allocation) Free() {
	if a.freed {
		panic("devicetest: double free")
	}
	a.freed = true
	a.dev.freed++
}

// Contents returns the backing store regardless of visibility. Tests use
// it to inspect device-local memory.
func (a *Allocation) Contents() []byte { return a.data }

// Freed reports whether Free has been called.
func (a *Allocation) Freed() bool { return a.freed }

// Device implements device.Device and device.Queue in memory. The zero
// value is not usable; create instances with New.
//
// Device is not safe for concurrent use, matching the single submission
// thread model of the buffer core.
type Device struct {
	caps device.Capabilities

	// ForceDeviceLocal strips host visibility from allocations that
	// prefer device-local memory, the way discrete GPUs without
	// resizable BAR behave. Allocations that do not request
	// device-local memory (staging, readback) keep host visibility.
	ForceDeviceLocal bool

	// FailAllocs makes the next n Allocate calls fail with
	// device.ErrOutOfMemory.
	FailAllocs int

	allocs []*Allocation
	freed  int

	current   device.Serial
	completed device.Serial
	recorded  bool // commands recorded under current, not yet flushed

	copies     int
	selfCopies int
	waits      int
	flushes    int
}

// New returns a fresh mock device with default capabilities.
func New() *Device {
	return &Device{
		caps: device.Capabilities{
			MinUniformBufferOffsetAlignment: 256,
			MinStorageBufferOffsetAlignment: 256,
			MinTexelBufferOffsetAlignment:   16,
			MinMapAlignment:                 64,
		},
		current: 1,
	}
}

// SetCaps replaces the reported capabilities.
func (d *Device) SetCaps(caps device.Capabilities) { d.caps = caps }

// Caps returns the device capabilities.
func (d *Device) Caps() device.Capabilities { return d.caps }

// Allocate creates a slice-backed allocation. Usage flags are accepted
// but not interpreted; the mock has no real binding constraints.
func (d *Device) Allocate(usage gputypes.BufferUsage, flags device.MemoryFlags, size int) (device.Allocation, error) {
	if d.FailAllocs > 0 {
		d.FailAllocs--
		return nil, fmt.Errorf("%w: %d bytes", device.ErrOutOfMemory, size)
	}
	if size <= 0 {
		panic("devicetest: non-positive allocation size")
	}
	if d.ForceDeviceLocal && flags.Contains(device.MemoryDeviceLocal) {
		flags = device.MemoryDeviceLocal
	}
	a := &Allocation{dev: d, data: make([]byte, size), flags: flags}
	d.allocs = append(d.allocs, a)
	return a, nil
}

// EnqueueCopy executes the copy immediately against the backing stores
// and records GPU use under the current serial.
func (d *Device) EnqueueCopy(src, dst device.Allocation, regions []device.CopyRegion) error {
	s, ok := src.(*Allocation)
	if !ok {
		return fmt.Errorf("devicetest: foreign source allocation %T", src)
	}
	t, ok := dst.(*Allocation)
	if !ok {
		return fmt.Errorf("devicetest: foreign destination allocation %T", dst)
	}
	if s == t {
		return fmt.Errorf("devicetest: self-copy enqueued through EnqueueCopy")
	}
	for _, r := range regions {
		copy(t.data[r.DstOffset:r.DstOffset+r.Size], s.data[r.SrcOffset:r.SrcOffset+r.Size])
	}
	d.copies++
	d.recorded = true
	return nil
}

// EnqueueSelfCopy executes a same-allocation copy through an intermediate
// slice, standing in for the hazard barrier a real queue would insert.
func (d *Device) EnqueueSelfCopy(buf device.Allocation, regions []device.CopyRegion) error {
	b, ok := buf.(*Allocation)
	if !ok {
		return fmt.Errorf("devicetest: foreign allocation %T", buf)
	}
	for _, r := range regions {
		tmp := make([]byte, r.Size)
		copy(tmp, b.data[r.SrcOffset:r.SrcOffset+r.Size])
		copy(b.data[r.DstOffset:r.DstOffset+r.Size], tmp)
	}
	d.selfCopies++
	d.recorded = true
	return nil
}

// CurrentSerial returns the serial open for recording.
func (d *Device) CurrentSerial() device.Serial { return d.current }

// CompletedSerial returns the highest serial marked complete.
func (d *Device) CompletedSerial() device.Serial { return d.completed }

// Flush submits recorded commands and opens the next serial. Completion
// does not advance; tests drive that explicitly.
func (d *Device) Flush() error {
	if d.recorded {
		d.current++
		d.recorded = false
		d.flushes++
	}
	return nil
}

// WaitForSerial simulates a CPU stall: it flushes as needed and then
// marks everything up to s complete.
func (d *Device) WaitForSerial(s device.Serial) error {
	d.waits++
	if s >= d.current {
		if err := d.Flush(); err != nil {
			return err
		}
		// Nothing was recorded under s; skip past it so later work
		// cannot retire under an already-completed serial.
		if s >= d.current {
			d.current = s + 1
		}
	}
	if s > d.completed {
		d.completed = s
	}
	return nil
}

// IsBusy reports whether submitted work is still outstanding.
func (d *Device) IsBusy() bool {
	return d.completed+1 < d.current || d.recorded
}

// Complete marks all serials up to and including s complete without
// counting as a CPU stall.
func (d *Device) Complete(s device.Serial) {
	if s > d.completed {
		d.completed = s
	}
}

// CompleteAll flushes and retires everything submitted so far.
func (d *Device) CompleteAll() {
	_ = d.Flush()
	if d.current > 0 {
		d.completed = d.current - 1
	}
}

// Copies returns the number of distinct-buffer copies enqueued.
func (d *Device) Copies() int { return d.copies }

// SelfCopies returns the number of self-copies enqueued.
func (d *Device) SelfCopies() int { return d.selfCopies }

// Waits returns the number of WaitForSerial calls (CPU stalls).
func (d *Device) Waits() int { return d.waits }

// AllocCount returns the number of allocations made.
func (d *Device) AllocCount() int { return len(d.allocs) }

// LiveAllocs returns the number of allocations not yet freed.
func (d *Device) LiveAllocs() int { return len(d.allocs) - d.freed }
