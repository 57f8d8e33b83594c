// Package buffers provides reusable copy buffers for the transfer loop, so a
// long-running process does not allocate a fresh buffer per transfer.
package buffers

import (
	"sync"
	"sync/atomic"

	"github.com/mixtape/mixtape/internal/constants"
)

// Pool monitoring counters
var (
	copyAllocations int64 // new buffers created by the pool
	copyGets        int64 // total buffers handed out
)

var copyPool = &sync.Pool{
	New: func() interface{} {
		atomic.AddInt64(&copyAllocations, 1)
		buf := make([]byte, constants.CopyBufferSize)
		return &buf
	},
}

// GetCopyBuffer retrieves a buffer from the pool. Return it with
// PutCopyBuffer when done.
//
// Usage:
//
//	buf := buffers.GetCopyBuffer()
//	defer buffers.PutCopyBuffer(buf)
//	n, err := body.Read(*buf)
func GetCopyBuffer() *[]byte {
	atomic.AddInt64(&copyGets, 1)
	return copyPool.Get().(*[]byte)
}

// PutCopyBuffer returns a buffer to the pool. Buffers of the wrong size are
// dropped.
func PutCopyBuffer(buf *[]byte) {
	if buf != nil && len(*buf) == constants.CopyBufferSize {
		copyPool.Put(buf)
	}
}

// Stats reports pool usage.
type Stats struct {
	BufferSize  int
	Allocations int64
	Gets        int64
}

// GetStats returns current buffer pool statistics
func GetStats() Stats {
	return Stats{
		BufferSize:  constants.CopyBufferSize,
		Allocations: atomic.LoadInt64(&copyAllocations),
		Gets:        atomic.LoadInt64(&copyGets),
	}
}
