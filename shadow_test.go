package bufmgr

import (
	"bytes"
	"testing"
)

// TestShadowBuffer tests the CPU mirror lifecycle.
func TestShadowBuffer(t *testing.T) {
	var s ShadowBuffer
	if s.Valid() {
		t.Error("zero shadow reports valid")
	}

	s.Allocate(32)
	if !s.Valid() || s.Size() != 32 {
		t.Fatalf("after Allocate: valid=%v size=%d", s.Valid(), s.Size())
	}

	s.Update([]byte("abcd"), 4)
	if !bytes.Equal(s.Contents()[4:8], []byte("abcd")) {
		t.Errorf("Update did not land: %q", s.Contents()[:8])
	}

	window := s.Map(4, 4)
	copy(window, "WXYZ")
	s.Unmap()
	if !bytes.Equal(s.Contents()[4:8], []byte("WXYZ")) {
		t.Errorf("mapped write not visible: %q", s.Contents()[:8])
	}

	s.Release()
	if s.Valid() {
		t.Error("shadow valid after Release")
	}
}
