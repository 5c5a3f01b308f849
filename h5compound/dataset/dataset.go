// Package dataset reads and writes arrays of compound records stored in an
// api.Backend.
//
// A Dataset pairs a named backend location with a record.Byteifyer.  Whole
// arrays, blocks, N-dimensional blocks and slices with bound indices are
// converted to hyperslabs and handed to the backend as contiguous byte runs.
package dataset

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/batchatco/go-h5compound/h5compound/api"
	"github.com/batchatco/go-h5compound/h5compound/block"
	"github.com/batchatco/go-h5compound/h5compound/record"
	"github.com/batchatco/go-h5compound/h5compound/util"
	"github.com/batchatco/go-h5compound/internal"
	"github.com/batchatco/go-thrower"
)

var (
	logger = util.NewLogger("dataset")
	log    = "don't use the log package" // prevents usage of standard log package
)

// SetLogLevel sets the level of this package's logger and returns the old one.
func SetLogLevel(level int) int {
	return logger.SetLogLevel(level)
}

// DefaultBlockBytes bounds the size of the natural blocks chosen when
// Options.BlockDims is not set.
const DefaultBlockBytes = 1 << 20

// Options configure creating and opening datasets.
type Options struct {
	// RequireTypesToBeEqual makes Open fail with api.ErrTypeMismatch when the
	// on-disk type differs from the requested one.  Otherwise Open logs a
	// warning and converts records with the on-disk type.
	RequireTypesToBeEqual bool
	// BlockDims is the natural block size of a new dataset.
	BlockDims []int
	// FillValue is the record that unwritten elements of a new dataset read
	// as.  The zero record if nil.
	FillValue any
}

func DefaultOptions() Options {
	return Options{RequireTypesToBeEqual: true}
}

// Dataset is an array of records of one type.  It holds no state besides
// its description and may be used from several goroutines if the backend
// allows it.
type Dataset struct {
	backend   api.Backend
	name      string
	handle    api.TypeHandle
	b         *record.Byteifyer
	dims      []int64
	blockDims []int
}

func assertError(condition bool, err error, format string, v ...any) {
	if condition {
		return
	}
	msg := fmt.Sprintf(format, v...)
	logger.Info(msg)
	thrower.Throw(fmt.Errorf("%w: %s", err, msg))
}

// defaultBlockDims shrinks the outermost dimensions until a block holds at
// most DefaultBlockBytes.
func defaultBlockDims(dims []int64, recordSize int) []int {
	bd := make([]int, len(dims))
	for i, d := range dims {
		bd[i] = int(max(d, 1))
	}
	size := func(from int) int64 {
		n := int64(recordSize)
		for _, d := range bd[from:] {
			n *= int64(d)
		}
		return n
	}
	for i := range bd {
		if size(0) <= DefaultBlockBytes {
			break
		}
		bd[i] = int(max(1, DefaultBlockBytes/size(i+1)))
	}
	return bd
}

// Create makes a new dataset called name holding records of type t with
// dimensions dims; no dimensions make a scalar dataset.  Records are
// converted with container c.
func Create(backend api.Backend, name string, t *record.Type, c record.Container, dims []int64, opts Options) (ds *Dataset, err error) {
	defer thrower.RecoverError(&err)
	b, err := record.NewByteifyer(t, c, record.WithHeap(backend))
	thrower.ThrowIfError(err)
	h, err := backend.CreateOrOpenCompoundType(t.Describe())
	thrower.ThrowIfError(err)
	blockDims := opts.BlockDims
	if blockDims == nil {
		blockDims = defaultBlockDims(dims, t.Size())
	}
	assertError(len(blockDims) == len(dims), api.ErrInvalidBlockSpec,
		"%d block dimensions for %d dimensions", len(blockDims), len(dims))
	var fill []byte
	if opts.FillValue != nil {
		fill, err = b.ByteifyOne(opts.FillValue)
		thrower.ThrowIfError(err)
	}
	thrower.ThrowIfError(backend.CreateLocation(name, h, dims, blockDims, fill))
	logger.Infof("created dataset %q of %s, dims %v, blocks %v", name, t.Name(), dims, blockDims)
	return &Dataset{
		backend:   backend,
		name:      name,
		handle:    h,
		b:         b,
		dims:      slices.Clone(dims),
		blockDims: slices.Clone(blockDims),
	}, nil
}

// Open opens the dataset called name.  If t is nil the on-disk type is
// used; otherwise t is checked against it as opts.RequireTypesToBeEqual
// says.
func Open(backend api.Backend, name string, t *record.Type, c record.Container, opts Options) (ds *Dataset, err error) {
	defer thrower.RecoverError(&err)
	info, err := backend.OpenLocation(name)
	thrower.ThrowIfError(err)
	disk, err := record.TypeFromDescription(info.Type.Desc)
	thrower.ThrowIfError(err)
	if t == nil {
		t = disk
	} else if err := record.CheckCompatible(t, disk); err != nil {
		if opts.RequireTypesToBeEqual {
			thrower.Throw(err)
		}
		logger.Warnf("dataset %q: %v; using the on-disk type", name, err)
		t = disk
	}
	b, err := record.NewByteifyer(t, c, record.WithHeap(backend))
	thrower.ThrowIfError(err)
	blockDims := info.BlockDims
	if len(blockDims) != len(info.Dimensions) {
		blockDims = defaultBlockDims(info.Dimensions, t.Size())
	}
	return &Dataset{
		backend:   backend,
		name:      name,
		handle:    info.Type,
		b:         b,
		dims:      info.Dimensions,
		blockDims: blockDims,
	}, nil
}

func (ds *Dataset) Name() string                 { return ds.name }
func (ds *Dataset) Type() *record.Type           { return ds.b.Type() }
func (ds *Dataset) Byteifyer() *record.Byteifyer { return ds.b }
func (ds *Dataset) Dimensions() []int64          { return slices.Clone(ds.dims) }
func (ds *Dataset) BlockDims() []int             { return slices.Clone(ds.blockDims) }
func (ds *Dataset) Rank() int                    { return len(ds.dims) }
func (ds *Dataset) TypeHandle() api.TypeHandle   { return ds.handle }
func (ds *Dataset) recordSize() int64            { return int64(ds.b.RecordSize()) }

// ElementCount is the number of records in the dataset.
func (ds *Dataset) ElementCount() int64 {
	n := int64(1)
	for _, d := range ds.dims {
		n *= d
	}
	return n
}

// readSlab reads the hyperslab (offset, extent) as packed records.
func (ds *Dataset) readSlab(offset []int64, extent []int) []byte {
	spans, err := block.Spans(ds.dims, offset, extent, ds.b.RecordSize())
	thrower.ThrowIfError(err)
	total := ds.recordSize()
	for _, e := range extent {
		total *= int64(e)
	}
	out := make([]byte, total)
	for _, s := range spans {
		data, err := ds.backend.ReadRaw(ds.name, s.Offset, s.Length)
		thrower.ThrowIfError(err)
		copy(out[s.Pos:], data)
	}
	return out
}

// writeSlab writes packed records to the hyperslab (offset, extent).
func (ds *Dataset) writeSlab(offset []int64, extent []int, data []byte) {
	spans, err := block.Spans(ds.dims, offset, extent, ds.b.RecordSize())
	thrower.ThrowIfError(err)
	for _, s := range spans {
		thrower.ThrowIfError(ds.backend.WriteRaw(ds.name, s.Offset, data[s.Pos:s.Pos+s.Length]))
	}
}

func (ds *Dataset) assertRank(rank int, op string) {
	assertError(len(ds.dims) == rank, api.ErrShapeMismatch,
		"%s needs a rank %d dataset, %q has rank %d", op, rank, ds.name, len(ds.dims))
}

// Write writes the record of a scalar dataset.
func (ds *Dataset) Write(rec any) (err error) {
	defer thrower.RecoverError(&err)
	ds.assertRank(0, "Write")
	raw, err := ds.b.ByteifyOne(rec)
	thrower.ThrowIfError(err)
	thrower.ThrowIfError(ds.backend.WriteRaw(ds.name, 0, raw))
	return nil
}

// Read reads the record of a scalar dataset.
func (ds *Dataset) Read() (rec any, err error) {
	defer thrower.RecoverError(&err)
	ds.assertRank(0, "Read")
	raw, err := ds.backend.ReadRaw(ds.name, 0, ds.recordSize())
	thrower.ThrowIfError(err)
	return ds.b.ArrayifyScalar(raw)
}

// ReadInto reads the record of a scalar dataset into rec.
func (ds *Dataset) ReadInto(rec any) (err error) {
	defer thrower.RecoverError(&err)
	ds.assertRank(0, "ReadInto")
	raw, err := ds.backend.ReadRaw(ds.name, 0, ds.recordSize())
	thrower.ThrowIfError(err)
	return ds.b.ArrayifyScalarInto(raw, rec)
}

func listLen(records any) int {
	v := reflect.ValueOf(records)
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		v = v.Elem()
	}
	assertError(v.IsValid() && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array),
		api.ErrInvalidValue, "%T is not a slice or array of records", records)
	return v.Len()
}

// WriteArray writes every record of a one-dimensional dataset.
func (ds *Dataset) WriteArray(records any) (err error) {
	defer thrower.RecoverError(&err)
	ds.assertRank(1, "WriteArray")
	n := listLen(records)
	assertError(int64(n) == ds.dims[0], api.ErrShapeMismatch,
		"%d records for dataset %q of %d", n, ds.name, ds.dims[0])
	raw, err := ds.b.Byteify(records)
	thrower.ThrowIfError(err)
	ds.writeSlab([]int64{0}, []int{n}, raw)
	return nil
}

// ReadArray reads every record of a one-dimensional dataset.
func (ds *Dataset) ReadArray() (records any, err error) {
	defer thrower.RecoverError(&err)
	ds.assertRank(1, "ReadArray")
	return ds.readArray(0, int(ds.dims[0]))
}

func (ds *Dataset) readArray(offset int64, n int) (any, error) {
	raw := ds.readSlab([]int64{offset}, []int{n})
	return ds.b.Arrayify(raw, n)
}

// WriteArrayBlock writes records as block number blockNumber, where the
// block size is the number of records.
func (ds *Dataset) WriteArrayBlock(records any, blockNumber int64) (err error) {
	defer thrower.RecoverError(&err)
	n := listLen(records)
	offset, err := block.BlockOffset([]int{n}, []int64{blockNumber})
	thrower.ThrowIfError(err)
	return ds.WriteArrayBlockWithOffset(records, offset[0])
}

// WriteArrayBlockWithOffset writes records starting at record offset.
func (ds *Dataset) WriteArrayBlockWithOffset(records any, offset int64) (err error) {
	defer thrower.RecoverError(&err)
	ds.assertRank(1, "WriteArrayBlockWithOffset")
	raw, err := ds.b.Byteify(records)
	thrower.ThrowIfError(err)
	n := len(raw) / ds.b.RecordSize()
	ds.writeSlab([]int64{offset}, []int{n}, raw)
	return nil
}

// ReadArrayBlock reads block number blockNumber of blockSize records.  The
// last block is short if blockSize does not divide the dataset.
func (ds *Dataset) ReadArrayBlock(blockSize int, blockNumber int64) (records any, err error) {
	defer thrower.RecoverError(&err)
	ds.assertRank(1, "ReadArrayBlock")
	offset, err := block.BlockOffset([]int{blockSize}, []int64{blockNumber})
	thrower.ThrowIfError(err)
	extent := clampExtent(ds.dims, offset, []int{blockSize})
	return ds.readArray(offset[0], extent[0])
}

// clampExtent shortens blocks that start inside dims but run past its end.
// Blocks starting outside are left for the range check.
func clampExtent(dims []int64, offset []int64, extent []int) []int {
	out := slices.Clone(extent)
	for i := range out {
		if i < len(dims) && i < len(offset) && offset[i] < dims[i] {
			out[i] = int(min(int64(out[i]), dims[i]-offset[i]))
		}
	}
	return out
}

// ReadArrayBlockWithOffset reads blockSize records starting at offset.
func (ds *Dataset) ReadArrayBlockWithOffset(blockSize int, offset int64) (records any, err error) {
	defer thrower.RecoverError(&err)
	ds.assertRank(1, "ReadArrayBlockWithOffset")
	assertError(blockSize >= 0, api.ErrInvalidBlockSpec, "block size %d", blockSize)
	return ds.readArray(offset, blockSize)
}

// Getter returns a lazy reader of a one-dimensional dataset.
func (ds *Dataset) Getter() (g api.RecordGetter, err error) {
	defer thrower.RecoverError(&err)
	ds.assertRank(1, "Getter")
	getSlice := func(begin, end int64) (any, error) {
		if begin < 0 || end < begin || end > ds.dims[0] {
			return nil, fmt.Errorf("%w: slice [%d:%d] of %d records", api.ErrOutOfRange, begin, end, ds.dims[0])
		}
		return ds.ReadArrayBlockWithOffset(int(end-begin), begin)
	}
	return internal.NewSlicer(getSlice, ds.dims[0], ds.b.RecordType().String()), nil
}

// WriteMDArrayBlock writes a nest of records as block number blockNumber,
// where the block size is the shape of the nest.
func (ds *Dataset) WriteMDArrayBlock(records any, blockNumber []int64) (err error) {
	defer thrower.RecoverError(&err)
	raw, dims, err := ds.b.ByteifyMD(records)
	thrower.ThrowIfError(err)
	offset, err := block.BlockOffset(dims, blockNumber)
	thrower.ThrowIfError(err)
	ds.writeMD(raw, dims, offset)
	return nil
}

// WriteMDArrayBlockWithOffset writes a nest of records at offset.
func (ds *Dataset) WriteMDArrayBlockWithOffset(records any, offset []int64) (err error) {
	defer thrower.RecoverError(&err)
	raw, dims, err := ds.b.ByteifyMD(records)
	thrower.ThrowIfError(err)
	ds.writeMD(raw, dims, offset)
	return nil
}

func (ds *Dataset) writeMD(raw []byte, dims []int, offset []int64) {
	assertError(len(dims) == len(ds.dims) && len(offset) == len(ds.dims), api.ErrShapeMismatch,
		"rank %d block at rank %d offset for dataset %q of rank %d", len(dims), len(offset), ds.name, len(ds.dims))
	ds.writeSlab(offset, dims, raw)
}

// WriteMDArray writes every record of the dataset from a nest of records.
func (ds *Dataset) WriteMDArray(records any) (err error) {
	defer thrower.RecoverError(&err)
	raw, dims, err := ds.b.ByteifyMD(records)
	thrower.ThrowIfError(err)
	for i := range ds.dims {
		assertError(i < len(dims) && int64(dims[i]) == ds.dims[i], api.ErrShapeMismatch,
			"records of shape %v for dataset %q of %v", dims, ds.name, ds.dims)
	}
	ds.writeMD(raw, dims, make([]int64, len(ds.dims)))
	return nil
}

// ReadMDArray reads every record of the dataset as nested slices.
func (ds *Dataset) ReadMDArray() (records any, err error) {
	defer thrower.RecoverError(&err)
	extent := make([]int, len(ds.dims))
	for i, d := range ds.dims {
		extent[i] = int(d)
	}
	return ds.readMD(make([]int64, len(ds.dims)), extent)
}

// ReadMDArrayBlock reads block number blockNumber of size blockDims.  Blocks
// at the far edges are short if blockDims does not divide the dataset.
func (ds *Dataset) ReadMDArrayBlock(blockDims []int, blockNumber []int64) (records any, err error) {
	defer thrower.RecoverError(&err)
	offset, err := block.BlockOffset(blockDims, blockNumber)
	thrower.ThrowIfError(err)
	return ds.readMD(offset, clampExtent(ds.dims, offset, blockDims))
}

// ReadMDArrayBlockWithOffset reads a block of size blockDims at offset.
func (ds *Dataset) ReadMDArrayBlockWithOffset(blockDims []int, offset []int64) (records any, err error) {
	defer thrower.RecoverError(&err)
	return ds.readMD(offset, blockDims)
}

func (ds *Dataset) readMD(offset []int64, extent []int) (any, error) {
	assertError(len(extent) == len(ds.dims) && len(offset) == len(ds.dims), api.ErrInvalidBlockSpec,
		"rank %d block at rank %d offset for dataset %q of rank %d", len(extent), len(offset), ds.name, len(ds.dims))
	raw := ds.readSlab(offset, extent)
	if len(extent) == 0 {
		return ds.b.ArrayifyScalar(raw)
	}
	return ds.b.ArrayifyMD(raw, extent)
}

// ReadSlicedMDArrayBlock reads block number blockNumber of the dataset with
// the bound dimensions removed.  blockDims and blockNumber address the free
// dimensions only.
func (ds *Dataset) ReadSlicedMDArrayBlock(blockDims []int, blockNumber []int64, bound block.BoundIndices) (records any, err error) {
	defer thrower.RecoverError(&err)
	offset, err := block.BlockOffset(blockDims, blockNumber)
	thrower.ThrowIfError(err)
	logical, err := block.LogicalDims(ds.dims, bound)
	thrower.ThrowIfError(err)
	return ds.ReadSlicedMDArrayBlockWithOffset(clampExtent(logical, offset, blockDims), offset, bound)
}

// ReadSlicedMDArrayBlockWithOffset reads a block of size blockDims at the
// logical offset of the dataset with the bound dimensions removed.  With
// every dimension bound it returns a single record.
func (ds *Dataset) ReadSlicedMDArrayBlockWithOffset(blockDims []int, offset []int64, bound block.BoundIndices) (records any, err error) {
	defer thrower.RecoverError(&err)
	full, err := block.SlicedOffset(ds.dims, bound, offset)
	thrower.ThrowIfError(err)
	extent, err := block.SlicedExtent(len(ds.dims), bound, blockDims)
	thrower.ThrowIfError(err)
	raw := ds.readSlab(full, extent)
	if len(blockDims) == 0 {
		return ds.b.ArrayifyScalar(raw)
	}
	return ds.b.ArrayifyMD(raw, blockDims)
}

// ForEachBlock reads the dataset in natural blocks, in row-major block
// order, and calls fn with each block and its records.  A scalar dataset
// is a single block holding one record.  Iteration stops at the first
// error, which is returned.
func (ds *Dataset) ForEachBlock(fn func(b block.Block, records any) error) (err error) {
	defer thrower.RecoverError(&err)
	it, err := block.NewIterator(ds.dims, ds.blockDims)
	thrower.ThrowIfError(err)
	for b := range it.All() {
		records, err := ds.readMD(b.Offset, b.Extent)
		thrower.ThrowIfError(err)
		thrower.ThrowIfError(fn(b, records))
	}
	return nil
}

// ForEachSlicedBlock is ForEachBlock over the dataset with the bound
// dimensions removed.  blockDims addresses the free dimensions.
func (ds *Dataset) ForEachSlicedBlock(blockDims []int, bound block.BoundIndices, fn func(b block.Block, records any) error) (err error) {
	defer thrower.RecoverError(&err)
	it, err := block.NewSlicedIterator(ds.dims, blockDims, bound)
	thrower.ThrowIfError(err)
	for b := range it.All() {
		raw := ds.readSlab(b.Offset, b.Extent)
		var records any
		if len(b.LogicalExtent) == 0 {
			records, err = ds.b.ArrayifyScalar(raw)
		} else {
			records, err = ds.b.ArrayifyMD(raw, b.LogicalExtent)
		}
		thrower.ThrowIfError(err)
		thrower.ThrowIfError(fn(b, records))
	}
	return nil
}

// SetAttribute stores records, a single record or a slice of them, as the
// attribute called name.  The attribute's type is that of b.
func (ds *Dataset) SetAttribute(name string, b *record.Byteifyer, records any) (err error) {
	defer thrower.RecoverError(&err)
	var raw []byte
	if v := reflect.ValueOf(records); v.IsValid() && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) &&
		v.Type() != b.RecordType() {
		raw, err = b.Byteify(records)
	} else {
		raw, err = b.ByteifyOne(records)
	}
	thrower.ThrowIfError(err)
	h, err := ds.backend.CreateOrOpenCompoundType(b.Type().Describe())
	thrower.ThrowIfError(err)
	thrower.ThrowIfError(ds.backend.SetAttribute(ds.name, name, h, raw))
	return nil
}

// Attribute reads the attribute called name as a slice of records built by
// container c, using the attribute's stored type.
func (ds *Dataset) Attribute(name string, c record.Container) (records any, err error) {
	defer thrower.RecoverError(&err)
	h, raw, err := ds.backend.Attribute(ds.name, name)
	thrower.ThrowIfError(err)
	t, err := record.TypeFromDescription(h.Desc)
	thrower.ThrowIfError(err)
	b, err := record.NewByteifyer(t, c, record.WithHeap(ds.backend))
	thrower.ThrowIfError(err)
	assertError(len(raw)%t.Size() == 0, api.ErrSizeMismatch,
		"attribute %q has %d bytes for records of %d", name, len(raw), t.Size())
	return b.Arrayify(raw, len(raw)/t.Size())
}

// AttributeNames lists the attributes in creation order.
func (ds *Dataset) AttributeNames() ([]string, error) {
	return ds.backend.ListAttributes(ds.name)
}
