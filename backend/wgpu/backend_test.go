package wgpu

import (
	"testing"

	"github.com/gogpu/gputypes"
	types "github.com/gogpu/gputypes"
)

// TestConvertBufferUsage tests the usage-flag translation to the HAL.
func TestConvertBufferUsage(t *testing.T) {
	tests := []struct {
		name string
		in   gputypes.BufferUsage
		want types.BufferUsage
	}{
		{"vertex", gputypes.BufferUsageVertex, types.BufferUsageVertex},
		{"uniform", gputypes.BufferUsageUniform, types.BufferUsageUniform},
		{"storage", gputypes.BufferUsageStorage, types.BufferUsageStorage},
		{"index", gputypes.BufferUsageIndex, types.BufferUsageIndex},
		{
			"transfer pair",
			gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
			types.BufferUsageCopySrc | types.BufferUsageCopyDst,
		},
		{
			"map flags",
			gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite,
			types.BufferUsageMapRead | types.BufferUsageMapWrite,
		},
		{"none", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := convertBufferUsage(tt.in); got != tt.want {
				t.Errorf("convertBufferUsage(%#x) = %#x, want %#x", tt.in, got, tt.want)
			}
		})
	}
}

// TestCapabilitiesDefaults tests zero-value capability resolution.
func TestCapabilitiesDefaults(t *testing.T) {
	caps := Capabilities{}.withDefaults()
	if caps.MinUniformBufferOffsetAlignment != 256 ||
		caps.MinStorageBufferOffsetAlignment != 256 ||
		caps.MinTexelBufferOffsetAlignment != 16 ||
		caps.MinMapAlignment != 8 {
		t.Errorf("withDefaults() = %+v", caps)
	}

	custom := Capabilities{MinUniformBufferOffsetAlignment: 64}.withDefaults()
	if custom.MinUniformBufferOffsetAlignment != 64 {
		t.Errorf("explicit alignment overwritten: %+v", custom)
	}
}
