package buffers

import (
	"testing"

	"github.com/mixtape/mixtape/internal/constants"
)

func TestCopyBufferPool(t *testing.T) {
	buf := GetCopyBuffer()
	if buf == nil {
		t.Fatal("GetCopyBuffer returned nil")
	}
	if len(*buf) != constants.CopyBufferSize {
		t.Errorf("Buffer size = %d, want %d", len(*buf), constants.CopyBufferSize)
	}
	PutCopyBuffer(buf)

	buf2 := GetCopyBuffer()
	if buf2 == nil {
		t.Fatal("GetCopyBuffer returned nil on second call")
	}
	PutCopyBuffer(buf2)
}

func TestPutCopyBufferWithWrongSize(t *testing.T) {
	wrong := make([]byte, 10)
	// Must not panic and must not be handed out later
	PutCopyBuffer(&wrong)
	PutCopyBuffer(nil)

	for i := 0; i < 5; i++ {
		buf := GetCopyBuffer()
		if len(*buf) != constants.CopyBufferSize {
			t.Fatalf("got buffer of size %d from pool", len(*buf))
		}
		PutCopyBuffer(buf)
	}
}

func TestGetStats(t *testing.T) {
	before := GetStats()
	buf := GetCopyBuffer()
	PutCopyBuffer(buf)
	after := GetStats()

	if after.BufferSize != constants.CopyBufferSize {
		t.Errorf("BufferSize = %d", after.BufferSize)
	}
	if after.Gets != before.Gets+1 {
		t.Errorf("Gets = %d, want %d", after.Gets, before.Gets+1)
	}
	if after.Allocations < 1 {
		t.Error("expected at least one allocation")
	}
}
