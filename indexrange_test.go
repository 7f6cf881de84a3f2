package bufmgr

import (
	"encoding/binary"
	"testing"
)

func u16s(vals ...uint16) []byte {
	out := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func u32s(vals ...uint32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}

// TestComputeIndexRange tests the min/max scan over index data.
func TestComputeIndexRange(t *testing.T) {
	tests := []struct {
		name    string
		typ     ElementType
		data    []byte
		count   int
		restart bool
		want    IndexRange
	}{
		{
			name:  "uint8 basic",
			typ:   ElementUint8,
			data:  []byte{3, 9, 1, 7},
			count: 4,
			want:  IndexRange{Start: 1, End: 9},
		},
		{
			name:  "uint16 basic",
			typ:   ElementUint16,
			data:  u16s(500, 2, 65000),
			count: 3,
			want:  IndexRange{Start: 2, End: 65000},
		},
		{
			name:  "uint32 basic",
			typ:   ElementUint32,
			data:  u32s(70000, 5, 123456),
			count: 3,
			want:  IndexRange{Start: 5, End: 123456},
		},
		{
			name:    "uint16 skips restart sentinel",
			typ:     ElementUint16,
			data:    u16s(10, 0xffff, 3),
			count:   3,
			restart: true,
			want:    IndexRange{Start: 3, End: 10},
		},
		{
			name:    "sentinel counted without restart",
			typ:     ElementUint16,
			data:    u16s(10, 0xffff, 3),
			count:   3,
			restart: false,
			want:    IndexRange{Start: 3, End: 0xffff},
		},
		{
			name:    "uint8 all sentinels is empty",
			typ:     ElementUint8,
			data:    []byte{0xff, 0xff},
			count:   2,
			restart: true,
			want:    IndexRange{},
		},
		{
			name:  "zero count is empty",
			typ:   ElementUint32,
			data:  u32s(1, 2, 3),
			count: 0,
			want:  IndexRange{},
		},
		{
			name:  "count limits the scan",
			typ:   ElementUint8,
			data:  []byte{5, 6, 200},
			count: 2,
			want:  IndexRange{Start: 5, End: 6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeIndexRange(tt.typ, tt.data, tt.count, tt.restart)
			if got != tt.want {
				t.Errorf("computeIndexRange() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestElementType tests size and restart values per element type.
func TestElementType(t *testing.T) {
	tests := []struct {
		typ         ElementType
		wantSize    int
		wantRestart uint32
		wantString  string
	}{
		{ElementUint8, 1, 0xff, "Uint8"},
		{ElementUint16, 2, 0xffff, "Uint16"},
		{ElementUint32, 4, 0xffffffff, "Uint32"},
	}
	for _, tt := range tests {
		t.Run(tt.wantString, func(t *testing.T) {
			if got := tt.typ.size(); got != tt.wantSize {
				t.Errorf("size() = %d, want %d", got, tt.wantSize)
			}
			if got := tt.typ.restartValue(); got != tt.wantRestart {
				t.Errorf("restartValue() = %#x, want %#x", got, tt.wantRestart)
			}
			if got := tt.typ.String(); got != tt.wantString {
				t.Errorf("String() = %q, want %q", got, tt.wantString)
			}
		})
	}
}
