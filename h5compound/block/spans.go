package block

import (
	"fmt"

	"github.com/batchatco/go-h5compound/h5compound/api"
)

// Span is a contiguous run of bytes of a hyperslab.  Offset is the byte
// offset in the stored array, Pos the byte offset in the packed hyperslab.
type Span struct {
	Offset int64
	Pos    int64
	Length int64
}

// Spans returns the contiguous byte runs of the hyperslab (offset, extent)
// of an array with dimensions dims and elements of elemSize bytes, in
// row-major order.  Trailing dimensions that are covered completely merge
// into longer runs.
func Spans(dims []int64, offset []int64, extent []int, elemSize int) ([]Span, error) {
	rank := len(dims)
	if len(offset) != rank || len(extent) != rank {
		return nil, invalid("offset rank %d and extent rank %d for %d dimensions",
			len(offset), len(extent), rank)
	}
	if elemSize <= 0 {
		return nil, invalid("element size %d", elemSize)
	}
	if err := checkDims(dims); err != nil {
		return nil, err
	}
	empty := false
	for d := range dims {
		if offset[d] < 0 || extent[d] < 0 {
			return nil, invalid("dimension %d has offset %d and extent %d", d, offset[d], extent[d])
		}
		if offset[d]+int64(extent[d]) > dims[d] {
			return nil, fmt.Errorf("%w: dimension %d: %d+%d exceeds %d", api.ErrOutOfRange,
				d, offset[d], extent[d], dims[d])
		}
		empty = empty || extent[d] == 0
	}
	if empty {
		return []Span{}, nil
	}
	if rank == 0 {
		return []Span{{Offset: 0, Pos: 0, Length: int64(elemSize)}}, nil
	}

	// strides of the stored array, in bytes
	strides := make([]int64, rank)
	strides[rank-1] = int64(elemSize)
	for d := rank - 2; d >= 0; d-- {
		strides[d] = strides[d+1] * dims[d+1]
	}

	// k is the outermost dimension of the contiguous run
	k := rank - 1
	for k > 0 && offset[k] == 0 && int64(extent[k]) == dims[k] {
		k--
	}
	runLength := int64(extent[k]) * strides[k]

	count := int64(1)
	for d := 0; d < k; d++ {
		count *= int64(extent[d])
	}
	spans := make([]Span, 0, count)
	index := make([]int64, k)
	var pos int64
	for n := int64(0); n < count; n++ {
		off := offset[k] * strides[k]
		for d := 0; d < k; d++ {
			off += (offset[d] + index[d]) * strides[d]
		}
		spans = append(spans, Span{Offset: off, Pos: pos, Length: runLength})
		pos += runLength
		for d := k - 1; d >= 0; d-- {
			index[d]++
			if index[d] < int64(extent[d]) {
				break
			}
			index[d] = 0
		}
	}
	return spans, nil
}
