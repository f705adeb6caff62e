// Package memprobe picks a copy buffer size from the memory currently available to the process.
package memprobe

import (
	"math"
	"runtime/debug"

	"github.com/bgrewell/udf-kit/pkg/consts"
)

// ChunkSize returns the buffer size used when streaming extents: the available memory scaled down by
// consts.CHUNK_SCALE_FACTOR and clamped to [consts.MIN_CHUNK_SIZE, consts.MAX_CHUNK_SIZE]. When the
// available memory cannot be determined the minimum is used.
func ChunkSize() int {
	avail, err := Available()
	if err != nil {
		return consts.MIN_CHUNK_SIZE
	}
	return ScaledChunkSize(avail, consts.CHUNK_SCALE_FACTOR, consts.MIN_CHUNK_SIZE, consts.MAX_CHUNK_SIZE)
}

// ScaledChunkSize divides budget by scale and clamps the result to [min, max].
func ScaledChunkSize(budget uint64, scale uint64, min int, max int) int {
	if scale == 0 {
		scale = 1
	}
	size := budget / scale
	if size < uint64(min) {
		return min
	}
	if size > uint64(max) {
		return max
	}
	return int(size)
}

// Available reports the number of bytes the process can reasonably allocate. It is the smaller of the
// free system memory and the Go runtime soft memory limit, if one is set.
func Available() (uint64, error) {
	free, err := systemFree()
	if err != nil {
		return 0, err
	}
	// SetMemoryLimit with a negative value only reads the current limit.
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit != math.MaxInt64 && uint64(limit) < free {
		return uint64(limit), nil
	}
	return free, nil
}
