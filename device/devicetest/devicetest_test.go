package devicetest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/bufmgr/device"
)

// TestQueueSerials tests the serial lifecycle the buffer core relies on.
func TestQueueSerials(t *testing.T) {
	d := New()
	if d.CurrentSerial() != 1 || d.CompletedSerial() != 0 {
		t.Fatalf("fresh queue serials = %d/%d, want 1/0", d.CurrentSerial(), d.CompletedSerial())
	}
	if d.IsBusy() {
		t.Error("fresh queue is busy")
	}

	src, _ := d.Allocate(0, device.MemoryHostVisible|device.MemoryHostCoherent, 16)
	dst, _ := d.Allocate(0, device.MemoryDeviceLocal, 16)
	copy(src.Bytes(), "serial-test-data")

	if err := d.EnqueueCopy(src, dst, []device.CopyRegion{{Size: 16}}); err != nil {
		t.Fatalf("EnqueueCopy() error: %v", err)
	}
	if !d.IsBusy() {
		t.Error("queue with recorded work is not busy")
	}
	if !bytes.Equal(dst.(*Allocation).Contents(), src.Bytes()) {
		t.Error("copy did not execute")
	}

	if err := d.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if d.CurrentSerial() != 2 {
		t.Errorf("CurrentSerial() after flush = %d, want 2", d.CurrentSerial())
	}
	if !d.IsBusy() {
		t.Error("submitted-but-incomplete queue is not busy")
	}

	d.Complete(1)
	if d.IsBusy() {
		t.Error("fully completed queue is busy")
	}
}

// TestWaitSkipsEmptySerial tests that waiting on the open serial cannot
// make later work retire under an already-completed serial.
func TestWaitSkipsEmptySerial(t *testing.T) {
	d := New()
	if err := d.WaitForSerial(d.CurrentSerial()); err != nil {
		t.Fatalf("WaitForSerial() error: %v", err)
	}
	if d.CompletedSerial() >= d.CurrentSerial() {
		t.Errorf("current serial %d not ahead of completed %d after wait",
			d.CurrentSerial(), d.CompletedSerial())
	}
	if d.Waits() != 1 {
		t.Errorf("Waits() = %d, want 1", d.Waits())
	}
}

// TestSelfCopyOverlap tests that overlapping self-copies read the
// original bytes.
func TestSelfCopyOverlap(t *testing.T) {
	d := New()
	buf, _ := d.Allocate(0, device.MemoryHostVisible, 8)
	copy(buf.(*Allocation).Contents(), []byte{1, 2, 3, 4, 0, 0, 0, 0})

	if err := d.EnqueueSelfCopy(buf, []device.CopyRegion{{SrcOffset: 0, DstOffset: 2, Size: 4}}); err != nil {
		t.Fatalf("EnqueueSelfCopy() error: %v", err)
	}
	want := []byte{1, 2, 1, 2, 3, 4, 0, 0}
	if !bytes.Equal(buf.(*Allocation).Contents(), want) {
		t.Errorf("overlapping self-copy = %v, want %v", buf.(*Allocation).Contents(), want)
	}
	if d.SelfCopies() != 1 {
		t.Errorf("SelfCopies() = %d, want 1", d.SelfCopies())
	}
}

// TestSelfCopyRejectedOnCopyPath tests the distinct-allocation guard.
func TestSelfCopyRejectedOnCopyPath(t *testing.T) {
	d := New()
	buf, _ := d.Allocate(0, device.MemoryHostVisible, 8)
	if err := d.EnqueueCopy(buf, buf, []device.CopyRegion{{Size: 4}}); err == nil {
		t.Error("EnqueueCopy() accepted a self-copy")
	}
}

// TestForceDeviceLocal tests visibility stripping.
func TestForceDeviceLocal(t *testing.T) {
	d := New()
	d.ForceDeviceLocal = true

	dl, _ := d.Allocate(0, device.MemoryHostVisible|device.MemoryHostCoherent|device.MemoryDeviceLocal, 16)
	if dl.Bytes() != nil {
		t.Error("device-local allocation stayed host-visible")
	}

	// Staging-style allocations keep host visibility.
	hv, _ := d.Allocate(0, device.MemoryHostVisible|device.MemoryHostCoherent, 16)
	if hv.Bytes() == nil {
		t.Error("host-only allocation lost visibility")
	}
}

// TestFailAllocs tests injected allocation failure.
func TestFailAllocs(t *testing.T) {
	d := New()
	d.FailAllocs = 1
	if _, err := d.Allocate(0, device.MemoryHostVisible, 16); !errors.Is(err, device.ErrOutOfMemory) {
		t.Errorf("error = %v, want ErrOutOfMemory", err)
	}
	if _, err := d.Allocate(0, device.MemoryHostVisible, 16); err != nil {
		t.Errorf("second Allocate() error = %v, want nil", err)
	}
}

// TestLeakAccounting tests the alloc/free counters.
func TestLeakAccounting(t *testing.T) {
	d := New()
	a, _ := d.Allocate(0, device.MemoryHostVisible, 16)
	b, _ := d.Allocate(0, device.MemoryHostVisible, 16)
	if d.AllocCount() != 2 || d.LiveAllocs() != 2 {
		t.Fatalf("counts = %d/%d, want 2/2", d.AllocCount(), d.LiveAllocs())
	}
	a.Free()
	if d.LiveAllocs() != 1 {
		t.Errorf("LiveAllocs() = %d, want 1", d.LiveAllocs())
	}
	b.Free()
	if d.LiveAllocs() != 0 {
		t.Errorf("LiveAllocs() = %d, want 0", d.LiveAllocs())
	}
}
