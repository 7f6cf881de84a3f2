package bufmgr

import (
	"encoding/binary"
	"fmt"
)

// ElementType is the storage type of index elements.
type ElementType int

const (
	ElementUint8 ElementType = iota
	ElementUint16
	ElementUint32
)

// String returns the element type name.
func (t ElementType) String() string {
	switch t {
	case ElementUint8:
		return "Uint8"
	case ElementUint16:
		return "Uint16"
	case ElementUint32:
		return "Uint32"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// size returns the element size in bytes.
func (t ElementType) size() int {
	switch t {
	case ElementUint8:
		return 1
	case ElementUint16:
		return 2
	case ElementUint32:
		return 4
	default:
		panic("bufmgr: unknown element type")
	}
}

// restartValue is the primitive-restart sentinel for the element type:
// the all-ones value.
func (t ElementType) restartValue() uint32 {
	switch t {
	case ElementUint8:
		return 0xff
	case ElementUint16:
		return 0xffff
	default:
		return 0xffffffff
	}
}

// IndexRange is the [Start, End] span of index values in a scanned
// region. An empty scan yields the zero IndexRange.
type IndexRange struct {
	Start uint32
	End   uint32
}

// computeIndexRange scans count indices of type t from data, returning
// the minimum and maximum values. With primitiveRestart, the sentinel
// value for the type is skipped. A scan of zero usable indices returns
// the zero range.
func computeIndexRange(t ElementType, data []byte, count int, primitiveRestart bool) IndexRange {
	var (
		lo    uint32
		hi    uint32
		found bool
	)
	restart := t.restartValue()
	es := t.size()
	for i := 0; i < count; i++ {
		var v uint32
		switch t {
		case ElementUint8:
			v = uint32(data[i])
		case ElementUint16:
			v = uint32(binary.LittleEndian.Uint16(data[i*es:]))
		case ElementUint32:
			v = binary.LittleEndian.Uint32(data[i*es:])
		}
		if primitiveRestart && v == restart {
			continue
		}
		if !found {
			lo, hi = v, v
			found = true
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if !found {
		return IndexRange{}
	}
	return IndexRange{Start: lo, End: hi}
}
