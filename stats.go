package bufmgr

import "fmt"

// Counters is a snapshot of the manager's path-selection statistics.
// Each field counts how often an update or map request took the
// corresponding route since the manager was created.
type Counters struct {
	DirectUpdates        uint64
	StagedUpdates        uint64
	AcquireUpdates       uint64
	BuffersGhosted       uint64
	DeviceLocalRoundTrip uint64
	GPUStalls            uint64
}

// String returns a human-readable summary of the counters.
func (c Counters) String() string {
	return fmt.Sprintf("Buffers[direct %d, staged %d, acquire %d, ghosted %d, round-trip %d, stalls %d]",
		c.DirectUpdates, c.StagedUpdates, c.AcquireUpdates,
		c.BuffersGhosted, c.DeviceLocalRoundTrip, c.GPUStalls)
}
