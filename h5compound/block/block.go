// Package block computes the addresses of blocks of a multi-dimensional
// array: natural-block iteration, block offsets, slicing with bound indices
// and the contiguous byte runs that make up a block on disk.
//
// All arrays are stored in row-major order.  Arguments are checked before
// any address arithmetic; malformed ones fail with api.ErrInvalidBlockSpec.
package block

import (
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/batchatco/go-h5compound/h5compound/api"
)

// BoundIndices fixes dimensions of an array to a single coordinate.  Keys
// are dimension indices, values the coordinate.
type BoundIndices map[int]int64

// Block is one block of an array.  Offset and Extent have one entry per
// dimension of the array; bound dimensions have extent 1.  The logical
// fields leave out the bound dimensions.
type Block struct {
	Index         []int64
	Offset        []int64
	Extent        []int
	LogicalOffset []int64
	LogicalExtent []int
}

// Size is the number of elements in the block.
func (b Block) Size() int64 {
	n := int64(1)
	for _, e := range b.Extent {
		n *= int64(e)
	}
	return n
}

func invalid(format string, v ...any) error {
	return fmt.Errorf("%w: %s", api.ErrInvalidBlockSpec, fmt.Sprintf(format, v...))
}

func checkDims(dims []int64) error {
	for i, d := range dims {
		if d < 0 {
			return invalid("dimension %d has negative size %d", i, d)
		}
	}
	return nil
}

func checkBound(dims []int64, bound BoundIndices) error {
	for d, v := range bound {
		if d < 0 || d >= len(dims) {
			return invalid("bound dimension %d of a rank %d array", d, len(dims))
		}
		if v < 0 || v >= dims[d] {
			return invalid("bound index %d outside dimension %d of size %d", v, d, dims[d])
		}
	}
	return nil
}

// freeDims lists the dimensions that are not bound, in order.
func freeDims(rank int, bound BoundIndices) []int {
	free := make([]int, 0, rank)
	for d := 0; d < rank; d++ {
		if _, has := bound[d]; !has {
			free = append(free, d)
		}
	}
	return free
}

// LogicalDims returns the shape of the array with the bound dimensions
// removed.
func LogicalDims(dims []int64, bound BoundIndices) ([]int64, error) {
	if err := checkDims(dims); err != nil {
		return nil, err
	}
	if err := checkBound(dims, bound); err != nil {
		return nil, err
	}
	free := freeDims(len(dims), bound)
	logical := make([]int64, len(free))
	for i, d := range free {
		logical[i] = dims[d]
	}
	return logical, nil
}

// BlockOffset returns the offset of block number blockNumber (one index per
// dimension) for blocks of size blockDims.
func BlockOffset(blockDims []int, blockNumber []int64) ([]int64, error) {
	if len(blockDims) != len(blockNumber) {
		return nil, invalid("%d block dimensions for a %d-dimensional block number",
			len(blockDims), len(blockNumber))
	}
	offset := make([]int64, len(blockDims))
	for i, bd := range blockDims {
		if bd <= 0 {
			return nil, invalid("block dimension %d is %d", i, bd)
		}
		if blockNumber[i] < 0 {
			return nil, invalid("block number %d is %d", i, blockNumber[i])
		}
		offset[i] = int64(bd) * blockNumber[i]
	}
	return offset, nil
}

// SlicedOffset expands an offset in the logical (sliced) array to an offset
// in the full array by inserting the bound indices.
func SlicedOffset(dims []int64, bound BoundIndices, logicalOffset []int64) ([]int64, error) {
	if err := checkBound(dims, bound); err != nil {
		return nil, err
	}
	free := freeDims(len(dims), bound)
	if len(logicalOffset) != len(free) {
		return nil, invalid("%d offsets for %d free dimensions", len(logicalOffset), len(free))
	}
	offset := make([]int64, len(dims))
	for d, v := range bound {
		offset[d] = v
	}
	for i, d := range free {
		offset[d] = logicalOffset[i]
	}
	return offset, nil
}

// SlicedExtent expands a logical extent to the full array, with extent 1 in
// the bound dimensions.
func SlicedExtent(rank int, bound BoundIndices, logicalExtent []int) ([]int, error) {
	free := freeDims(rank, bound)
	if len(logicalExtent) != len(free) {
		return nil, invalid("%d extents for %d free dimensions", len(logicalExtent), len(free))
	}
	extent := make([]int, rank)
	for d := range extent {
		extent[d] = 1
	}
	for i, d := range free {
		extent[d] = logicalExtent[i]
	}
	return extent, nil
}

// Iterator walks the natural blocks of an array in row-major block order.
// The last block along a dimension may be short.
type Iterator struct {
	dims      []int64
	blockDims []int
	bound     BoundIndices
	free      []int
	counts    []int64
	index     []int64
	number    int64
	total     int64
}

// NewIterator iterates over dims in blocks of blockDims.
func NewIterator(dims []int64, blockDims []int) (*Iterator, error) {
	return NewSlicedIterator(dims, blockDims, nil)
}

// NewSlicedIterator iterates over the free dimensions of dims.  blockDims
// holds either one entry per dimension of dims, in which case the entries
// of bound dimensions are ignored, or one entry per free dimension.  If
// every dimension is bound, the iterator yields a single block of extent 1.
func NewSlicedIterator(dims []int64, blockDims []int, bound BoundIndices) (*Iterator, error) {
	if err := checkDims(dims); err != nil {
		return nil, err
	}
	if err := checkBound(dims, bound); err != nil {
		return nil, err
	}
	free := freeDims(len(dims), bound)
	full := make([]int, len(dims))
	switch len(blockDims) {
	case len(dims):
		copy(full, blockDims)
		for d := range bound {
			full[d] = 1
		}
	case len(free):
		for d := range full {
			full[d] = 1
		}
		for i, d := range free {
			full[d] = blockDims[i]
		}
	default:
		return nil, invalid("%d block dimensions for %d dimensions (%d free)",
			len(blockDims), len(dims), len(free))
	}
	it := &Iterator{
		dims:      slices.Clone(dims),
		blockDims: full,
		bound:     maps.Clone(bound),
		free:      free,
		counts:    make([]int64, len(free)),
		index:     make([]int64, len(free)),
		total:     1,
	}
	for i, d := range free {
		bd := full[d]
		if bd <= 0 {
			return nil, invalid("block dimension %d is %d", d, bd)
		}
		it.counts[i] = (dims[d] + int64(bd) - 1) / int64(bd)
		it.total *= it.counts[i]
	}
	return it, nil
}

// HasNext reports whether another block remains.
func (it *Iterator) HasNext() bool {
	return it.number < it.total
}

// Count is the total number of blocks.
func (it *Iterator) Count() int64 {
	return it.total
}

// BlockNumber is the number of blocks returned so far.
func (it *Iterator) BlockNumber() int64 {
	return it.number
}

// Next returns the current block and advances to the next one.  It returns
// the zero Block once the iterator is exhausted.
func (it *Iterator) Next() Block {
	if !it.HasNext() {
		return Block{}
	}
	rank := len(it.dims)
	b := Block{
		Index:         slices.Clone(it.index),
		Offset:        make([]int64, rank),
		Extent:        make([]int, rank),
		LogicalOffset: make([]int64, len(it.free)),
		LogicalExtent: make([]int, len(it.free)),
	}
	for d, v := range it.bound {
		b.Offset[d] = v
		b.Extent[d] = 1
	}
	for i, d := range it.free {
		bd := int64(it.blockDims[d])
		off := it.index[i] * bd
		ext := min(bd, it.dims[d]-off)
		b.Offset[d], b.Extent[d] = off, int(ext)
		b.LogicalOffset[i], b.LogicalExtent[i] = off, int(ext)
	}
	it.number++
	for i := len(it.index) - 1; i >= 0; i-- {
		it.index[i]++
		if it.index[i] < it.counts[i] {
			break
		}
		it.index[i] = 0
	}
	return b
}

// All returns the remaining blocks as a sequence.
func (it *Iterator) All() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}
