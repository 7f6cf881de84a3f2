package bufmgr

import (
	"github.com/gogpu/bufmgr/device"
)

// Observer is notified when a buffer's contents or backing storage
// change. Format-conversion caches use OnBufferContentsChanged to
// re-convert; descriptor bindings use OnBufferStorageChanged to rebind
// views after a handle swap.
type Observer interface {
	OnBufferContentsChanged(*Buffer)
	OnBufferStorageChanged(*Buffer)
}

// Manager owns the collaborators and shared state for a set of buffers:
// the device allocator, the command queue, the shared staging pool, and
// the deferred-release graveyard. All buffers created from one Manager
// must be driven from the same submission thread.
type Manager struct {
	dev device.Device
	q   device.Queue
	cfg Config

	staging StagingManager

	// graveyard holds handles from released buffers that may still be
	// referenced by in-flight GPU work. Sweep frees the completed ones.
	graveyard []*Handle

	counters Counters
}

// New creates a Manager over the given collaborators. Zero fields in cfg
// are replaced with package defaults.
func New(dev device.Device, q device.Queue, cfg Config) *Manager {
	m := &Manager{dev: dev, q: q, cfg: cfg.withDefaults()}
	m.staging.Init(dev, q, m.cfg.StagingBlockSize)
	return m
}

// NewBuffer creates an empty buffer resource for the given binding
// point. It holds no storage until SetData or ImportExternal.
func (m *Manager) NewBuffer(binding BindingPoint) *Buffer {
	return &Buffer{mgr: m, binding: binding}
}

// Counters returns a snapshot of the path-selection statistics.
func (m *Manager) Counters() Counters { return m.counters }

// Sweep reclaims deferred-release handles and displaced staging blocks
// whose last GPU use has completed. Integrations typically call it once
// per frame.
func (m *Manager) Sweep() {
	completed := m.q.CompletedSerial()
	kept := m.graveyard[:0]
	for _, h := range m.graveyard {
		if h.idle(completed) {
			h.free()
			continue
		}
		kept = append(kept, h)
	}
	m.graveyard = kept
	m.staging.Sweep(completed)
}

// WaitIdle blocks until all submitted GPU work completes, then sweeps.
func (m *Manager) WaitIdle() error {
	if err := m.q.WaitForSerial(m.q.CurrentSerial()); err != nil {
		return err
	}
	m.Sweep()
	return nil
}

// Release drains the shared staging pool and frees everything the GPU
// is done with. Buffers should be released first; handles still
// referenced survive until their owners let go.
func (m *Manager) Release() error {
	if err := m.WaitIdle(); err != nil {
		return err
	}
	m.staging.Release(m.q.CompletedSerial())
	m.Sweep()
	return nil
}
