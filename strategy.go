package bufmgr

import "fmt"

// UpdateStrategy selects how a setSubData-style write reaches the buffer.
type UpdateStrategy int

const (
	// UpdateDirect writes in place: a mapped memcpy on host-visible
	// memory, or a staged copy-through when the handle is not
	// host-visible. Only safe when the GPU is not using the buffer.
	UpdateDirect UpdateStrategy = iota
	// UpdateStaged copies into transient staging and enqueues a GPU
	// copy into the existing handle. Requires no waiting and no
	// reallocation.
	UpdateStaged
	// UpdateAcquire swaps in a fresh handle from the pool, writes the
	// new data there and copies any preserved regions over from the
	// old handle. Avoids waiting on the GPU at the cost of an extra
	// allocation and copy.
	UpdateAcquire
)

// String returns the strategy name.
func (s UpdateStrategy) String() string {
	switch s {
	case UpdateDirect:
		return "Direct"
	case UpdateStaged:
		return "Staged"
	case UpdateAcquire:
		return "Acquire"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// updateQuery captures the state the update decision depends on.
type updateQuery struct {
	InUse        bool // buffer referenced by in-flight GPU work
	External     bool
	HasValidData bool
	UpdateSize   int
	BufferSize   int
	Threshold    float64 // fraction of buffer size that favors acquire
	PreferCPU    bool
}

// decideUpdate is the update-path policy ladder. It is a pure function
// so the policy can be audited and tested apart from the memory
// operations that carry it out.
func decideUpdate(q updateQuery) UpdateStrategy {
	if !q.InUse {
		return UpdateDirect
	}
	if q.External {
		// External storage can never be swapped out.
		return UpdateStaged
	}
	// Without valid prior data there is nothing to preserve, so a fresh
	// handle is free. Otherwise require the update to cover enough of
	// the buffer to be worth the allocation and preserved-region copy.
	if !q.HasValidData || q.PreferCPU ||
		float64(q.UpdateSize) >= q.Threshold*float64(q.BufferSize) {
		return UpdateAcquire
	}
	return UpdateStaged
}

// shouldUseCPUToCopy decides whether preserved regions are copied by the
// CPU during acquire-and-update. CPU copies win when the driver prefers
// them outright, or when the GPU is busy and the copy is small enough
// that waiting on a GPU copy would cost more than the memcpy.
func shouldUseCPUToCopy(preferCPU, queueBusy bool, copySize, maxCPUCopyBytes int) bool {
	return preferCPU || (queueBusy && copySize < maxCPUCopyBytes)
}

// MapStrategy selects how a map request is satisfied.
type MapStrategy int

const (
	// MapShadow returns a window into the CPU shadow copy.
	MapShadow MapStrategy = iota
	// MapDirect maps the current handle's memory.
	MapDirect
	// MapRoundTrip copies a device-local handle into host-visible
	// scratch, maps the scratch, and copies back on write-unmap.
	MapRoundTrip
	// MapAcquire swaps in a fresh handle with no copy; the previous
	// contents were invalidated wholesale.
	MapAcquire
	// MapStagedInvalidate hands out a standalone staging block that is
	// flushed into the buffer on unmap.
	MapStagedInvalidate
	// MapGhost swaps in a fresh handle and copies the untouched
	// regions over, avoiding a stall while the GPU reads the old one.
	MapGhost
	// MapWaitThenDirect blocks until in-flight GPU writes finish, then
	// maps directly. The last resort.
	MapWaitThenDirect
)

// String returns the strategy name.
func (s MapStrategy) String() string {
	switch s {
	case MapShadow:
		return "Shadow"
	case MapDirect:
		return "Direct"
	case MapRoundTrip:
		return "RoundTrip"
	case MapAcquire:
		return "Acquire"
	case MapStagedInvalidate:
		return "StagedInvalidate"
	case MapGhost:
		return "Ghost"
	case MapWaitThenDirect:
		return "WaitThenDirect"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// mapQuery captures the state the map decision depends on.
type mapQuery struct {
	ShadowValid   bool
	HostVisible   bool
	External      bool
	InUse         bool // any in-flight GPU use of the handle
	InUseForWrite bool // in-flight GPU writes specifically
	Access        AccessFlags
	Offset        int
	Length        int
	BufferSize    int
}

// decideMap is the mapping policy ladder: a priority-ordered fallback
// chain that prefers a correctness-preserving handle swap over a CPU
// stall whenever one is possible.
func decideMap(q mapQuery) MapStrategy {
	// A valid shadow copy serves every map request, synchronized or
	// not; unsynchronized-access correctness is the caller's problem
	// per the API contract.
	if q.ShadowValid {
		return MapShadow
	}

	if q.Access.Contains(MapUnsynchronized) {
		if q.HostVisible {
			return MapDirect
		}
		return MapRoundTrip
	}

	// Read-only: the executor waits out pending GPU writes first;
	// concurrent CPU and GPU reads are fine.
	if !q.Access.Contains(MapWrite) {
		if q.HostVisible {
			return MapDirect
		}
		return MapRoundTrip
	}

	// Write access.
	if !q.HostVisible {
		return MapRoundTrip
	}
	if q.External || !q.InUse {
		return MapDirect
	}

	// Buffer is busy. Avoid the stall when the caller discards
	// contents or the GPU is only reading.
	rangeInvalidate := q.Access.Contains(MapInvalidateRange)
	wholeInvalidate := q.Access.Contains(MapInvalidateBuffer) ||
		(rangeInvalidate && q.Offset == 0 && q.Length == q.BufferSize)
	if wholeInvalidate {
		return MapAcquire
	}
	if rangeInvalidate && q.Length < q.BufferSize/2 {
		return MapStagedInvalidate
	}
	if !q.InUseForWrite {
		return MapGhost
	}
	return MapWaitThenDirect
}
