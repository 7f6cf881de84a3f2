package bufmgr

import (
	"errors"
	"testing"

	"github.com/gogpu/bufmgr/device"
	"github.com/gogpu/bufmgr/device/devicetest"
)

func newTestPool(t *testing.T, dev *devicetest.Device, initialSize int, policy PoolPolicy) *Pool {
	t.Helper()
	var p Pool
	p.Init(dev, bufferUsageFlags, device.MemoryHostVisible|device.MemoryHostCoherent, 64, initialSize, policy)
	return &p
}

// TestPoolSubAllocation tests that small requests share one block.
func TestPoolSubAllocation(t *testing.T) {
	dev := devicetest.New()
	p := newTestPool(t, dev, 1024, PoolFrequentSmall)

	h1, off1, released, err := p.Allocate(100)
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	if released {
		t.Error("first allocation reported a released block")
	}
	if off1 != 0 {
		t.Errorf("first offset = %d, want 0", off1)
	}
	if h1.Size() != 1024 {
		t.Errorf("block size = %d, want initial size 1024", h1.Size())
	}

	h2, off2, _, err := p.Allocate(100)
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	if h2 != h1 {
		t.Error("second small allocation did not reuse the current block")
	}
	if off2 != 128 {
		t.Errorf("second offset = %d, want 128 (aligned past first)", off2)
	}
	if dev.AllocCount() != 1 {
		t.Errorf("device allocations = %d, want 1", dev.AllocCount())
	}
}

// TestPoolBlockGrowth tests that an oversize request displaces the
// current block to the pending list.
func TestPoolBlockGrowth(t *testing.T) {
	dev := devicetest.New()
	p := newTestPool(t, dev, 256, PoolFrequentSmall)

	h1, _, _, err := p.Allocate(200)
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	h2, off, released, err := p.Allocate(512)
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	if h2 == h1 {
		t.Fatal("oversize allocation reused the old block")
	}
	if !released {
		t.Error("displacing the current block did not report released")
	}
	if off != 0 {
		t.Errorf("offset in fresh block = %d, want 0", off)
	}
	if p.PendingBlocks() != 1 {
		t.Errorf("PendingBlocks() = %d, want 1", p.PendingBlocks())
	}
}

// TestPoolOneShotNeverReuses tests the one-shot policy.
func TestPoolOneShotNeverReuses(t *testing.T) {
	dev := devicetest.New()
	p := newTestPool(t, dev, 0, PoolOneShot)

	h1, _, _, err := p.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	h2, _, _, err := p.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	if h1 == h2 {
		t.Error("one-shot pool reused a block")
	}
	if dev.AllocCount() != 2 {
		t.Errorf("device allocations = %d, want 2", dev.AllocCount())
	}
}

// TestPoolReleaseInFlight tests that only idle blocks are freed.
func TestPoolReleaseInFlight(t *testing.T) {
	dev := devicetest.New()
	p := newTestPool(t, dev, 0, PoolFrequentSmall)

	h1, _, _, _ := p.Allocate(64)
	h1.retainRead(dev.CurrentSerial()) // serial 1
	if _, _, released, _ := p.Allocate(1024); !released {
		t.Fatal("expected old block to be displaced")
	}

	p.ReleaseInFlight(0)
	if dev.LiveAllocs() != 2 {
		t.Errorf("in-flight block was freed: live = %d, want 2", dev.LiveAllocs())
	}

	p.ReleaseInFlight(1)
	if dev.LiveAllocs() != 1 {
		t.Errorf("completed block not freed: live = %d, want 1", dev.LiveAllocs())
	}
	if p.PendingBlocks() != 0 {
		t.Errorf("PendingBlocks() = %d, want 0", p.PendingBlocks())
	}
}

// TestPoolReferencedBlockSurvivesSweep tests that a sweep never frees a
// block a buffer still references, even when GPU work completed.
func TestPoolReferencedBlockSurvivesSweep(t *testing.T) {
	dev := devicetest.New()
	p := newTestPool(t, dev, 0, PoolFrequentSmall)

	h1, _, _, _ := p.Allocate(64)
	h1.ref()
	p.Allocate(1024)

	p.ReleaseInFlight(100)
	if dev.LiveAllocs() != 2 {
		t.Fatalf("referenced block was freed: live = %d, want 2", dev.LiveAllocs())
	}

	h1.unref()
	p.ReleaseInFlight(100)
	if dev.LiveAllocs() != 1 {
		t.Errorf("unreferenced block not freed: live = %d, want 1", dev.LiveAllocs())
	}
}

// TestPoolGrantedFlags tests that block handles report the memory type
// the device granted rather than the one requested.
func TestPoolGrantedFlags(t *testing.T) {
	dev := devicetest.New()
	dev.ForceDeviceLocal = true
	var p Pool
	p.Init(dev, bufferUsageFlags,
		device.MemoryDeviceLocal|device.MemoryHostVisible|device.MemoryHostCoherent,
		64, 0, PoolFrequentSmall)

	h, _, _, err := p.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	if h.IsHostVisible() {
		t.Error("handle reports host visibility the device did not grant")
	}
	if h.Bytes() != nil {
		t.Error("non-host-visible handle returned non-nil Bytes")
	}
}

// TestPoolAllocationFailure tests the out-of-memory wrap.
func TestPoolAllocationFailure(t *testing.T) {
	dev := devicetest.New()
	dev.FailAllocs = 1
	p := newTestPool(t, dev, 0, PoolFrequentSmall)

	_, _, _, err := p.Allocate(64)
	if !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("Allocate() error = %v, want ErrOutOfMemory", err)
	}
}

// TestPoolDrain tests handing all blocks to a graveyard.
func TestPoolDrain(t *testing.T) {
	dev := devicetest.New()
	p := newTestPool(t, dev, 0, PoolFrequentSmall)

	p.Allocate(64)
	p.Allocate(1024)

	var graveyard []*Handle
	p.drain(&graveyard)
	if len(graveyard) != 2 {
		t.Fatalf("drained %d handles, want 2", len(graveyard))
	}
	if p.Current() != nil || p.PendingBlocks() != 0 {
		t.Error("pool not empty after drain")
	}
}
