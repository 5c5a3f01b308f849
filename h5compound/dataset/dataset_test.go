package dataset

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/batchatco/go-h5compound/h5compound/api"
	"github.com/batchatco/go-h5compound/h5compound/block"
	"github.com/batchatco/go-h5compound/h5compound/record"
	"github.com/batchatco/go-h5compound/h5compound/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	ID      int32   `h5:"id"`
	X       float64 `h5:"x"`
	Tag     string  `h5:"tag,size=4"`
	Samples []int16 `h5:"samples"`
}

type idOnly struct {
	ID int32 `h5:"id"`
}

func newPoint(i int) point {
	return point{
		ID:      int32(i),
		X:       float64(i) / 2,
		Tag:     fmt.Sprint("p", i),
		Samples: []int16{int16(i), int16(-i), 7},
	}
}

func points(n int) []point {
	out := make([]point, n)
	for i := range out {
		out[i] = newPoint(i)
	}
	return out
}

func pointType(t *testing.T) *record.Type {
	t.Helper()
	pt, err := record.InferType(reflect.TypeOf(point{}), nil)
	require.NoError(t, err)
	return pt
}

func newBackend() *storage.Backend {
	return storage.NewMem(storage.Options{ChunkSize: 64})
}

func TestScalar(t *testing.T) {
	backend := newBackend()
	ds, err := Create(backend, "scalar", pointType(t), record.StructFor[point](), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Rank())
	assert.Equal(t, int64(1), ds.ElementCount())

	p := newPoint(3)
	require.NoError(t, ds.Write(p))
	got, err := ds.Read()
	require.NoError(t, err)
	assert.Equal(t, p, got)

	var into point
	require.NoError(t, ds.ReadInto(&into))
	assert.Equal(t, p, into)
	var wrong idOnly
	assert.ErrorIs(t, ds.ReadInto(&wrong), api.ErrInvalidValue)
	assert.ErrorIs(t, ds.Write(idOnly{ID: 1}), api.ErrInvalidValue)

	_, err = ds.ReadArray()
	assert.ErrorIs(t, err, api.ErrShapeMismatch)

	n := 0
	require.NoError(t, ds.ForEachBlock(func(b block.Block, records any) error {
		assert.Equal(t, p, records)
		n++
		return nil
	}))
	assert.Equal(t, 1, n)
}

func TestArray(t *testing.T) {
	backend := newBackend()
	opts := DefaultOptions()
	opts.BlockDims = []int{3}
	ds, err := Create(backend, "arr", pointType(t), record.StructFor[point](), []int64{10}, opts)
	require.NoError(t, err)

	ps := points(10)
	require.NoError(t, ds.WriteArray(ps))
	got, err := ds.ReadArray()
	require.NoError(t, err)
	assert.Equal(t, ps, got)

	blk, err := ds.ReadArrayBlock(3, 1)
	require.NoError(t, err)
	assert.Equal(t, ps[3:6], blk)
	last, err := ds.ReadArrayBlock(3, 3)
	require.NoError(t, err)
	assert.Equal(t, ps[9:], last)
	_, err = ds.ReadArrayBlock(3, 4)
	assert.ErrorIs(t, err, api.ErrOutOfRange)
	_, err = ds.ReadArrayBlockWithOffset(3, 8)
	assert.ErrorIs(t, err, api.ErrOutOfRange)

	empty, err := ds.ReadArrayBlockWithOffset(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []point{}, empty)

	require.NoError(t, ds.WriteArrayBlock([]point{newPoint(100), newPoint(101)}, 2))
	got, err = ds.ReadArrayBlockWithOffset(2, 4)
	require.NoError(t, err)
	assert.Equal(t, []point{newPoint(100), newPoint(101)}, got)

	require.NoError(t, ds.WriteArrayBlockWithOffset([]point{newPoint(200)}, 9))
	got, err = ds.ReadArrayBlockWithOffset(1, 9)
	require.NoError(t, err)
	assert.Equal(t, []point{newPoint(200)}, got)

	assert.ErrorIs(t, ds.WriteArray(points(4)), api.ErrShapeMismatch)
	assert.ErrorIs(t, ds.Write(newPoint(1)), api.ErrShapeMismatch)

	var offsets []int64
	var sizes []int
	require.NoError(t, ds.ForEachBlock(func(b block.Block, records any) error {
		offsets = append(offsets, b.Offset[0])
		sizes = append(sizes, len(records.([]point)))
		return nil
	}))
	assert.Equal(t, []int64{0, 3, 6, 9}, offsets)
	assert.Equal(t, []int{3, 3, 3, 1}, sizes)
}

func TestForEachBlockStops(t *testing.T) {
	backend := newBackend()
	opts := DefaultOptions()
	opts.BlockDims = []int{4}
	ds, err := Create(backend, "arr", pointType(t), record.StructFor[point](), []int64{10}, opts)
	require.NoError(t, err)
	require.NoError(t, ds.WriteArray(points(10)))

	var got [][]point
	stop := fmt.Errorf("stop")
	err = ds.ForEachBlock(func(b block.Block, records any) error {
		got = append(got, records.([]point))
		if len(got) == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	require.Len(t, got, 2)
	assert.Equal(t, points(10)[4:8], got[1])
}

func TestFillValue(t *testing.T) {
	backend := newBackend()
	tp, err := record.InferType(reflect.TypeOf(idOnly{}), nil)
	require.NoError(t, err)
	opts := DefaultOptions()
	opts.FillValue = idOnly{ID: -1}
	ds, err := Create(backend, "filled", tp, record.StructFor[idOnly](), []int64{5}, opts)
	require.NoError(t, err)
	require.NoError(t, ds.WriteArrayBlockWithOffset([]idOnly{{ID: 7}}, 2))
	got, err := ds.ReadArray()
	require.NoError(t, err)
	assert.Equal(t, []idOnly{{-1}, {-1}, {7}, {-1}, {-1}}, got)
}

func TestMDArray(t *testing.T) {
	backend := newBackend()
	tp, err := record.InferType(reflect.TypeOf(idOnly{}), nil)
	require.NoError(t, err)
	ds, err := Create(backend, "grid", tp, record.StructFor[idOnly](), []int64{4, 5}, DefaultOptions())
	require.NoError(t, err)

	grid := make([][]idOnly, 4)
	for r := range grid {
		grid[r] = make([]idOnly, 5)
		for c := range grid[r] {
			grid[r][c] = idOnly{ID: int32(r*10 + c)}
		}
	}
	require.NoError(t, ds.WriteMDArray(grid))
	got, err := ds.ReadMDArray()
	require.NoError(t, err)
	assert.Equal(t, grid, got)

	blk, err := ds.ReadMDArrayBlock([]int{2, 2}, []int64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, [][]idOnly{{{22}, {23}}, {{32}, {33}}}, blk)

	// the far edge block is short
	edge, err := ds.ReadMDArrayBlock([]int{2, 2}, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, [][]idOnly{{{24}}, {{34}}}, edge)

	blk, err = ds.ReadMDArrayBlockWithOffset([]int{1, 3}, []int64{3, 1})
	require.NoError(t, err)
	assert.Equal(t, [][]idOnly{{{31}, {32}, {33}}}, blk)

	require.NoError(t, ds.WriteMDArrayBlock([][]idOnly{{{-1}, {-2}}}, []int64{2, 1}))
	require.NoError(t, ds.WriteMDArrayBlockWithOffset([][]idOnly{{{-3}}, {{-4}}}, []int64{0, 0}))
	got, err = ds.ReadMDArrayBlockWithOffset([]int{4, 5}, []int64{0, 0})
	require.NoError(t, err)
	grid[0][0], grid[1][0] = idOnly{-3}, idOnly{-4}
	grid[2][2], grid[2][3] = idOnly{-1}, idOnly{-2}
	assert.Equal(t, grid, got)

	_, err = ds.ReadMDArrayBlockWithOffset([]int{2, 2}, []int64{3, 0})
	assert.ErrorIs(t, err, api.ErrOutOfRange)
	_, err = ds.ReadMDArrayBlock([]int{2}, []int64{0})
	assert.ErrorIs(t, err, api.ErrInvalidBlockSpec)
	assert.ErrorIs(t, ds.WriteMDArray(grid[:3]), api.ErrShapeMismatch)
}

func TestSliced(t *testing.T) {
	backend := newBackend()
	tp, err := record.InferType(reflect.TypeOf(idOnly{}), nil)
	require.NoError(t, err)
	dims := []int64{4, 10, 6}
	ds, err := Create(backend, "cube", tp, record.StructFor[idOnly](), dims, DefaultOptions())
	require.NoError(t, err)

	cube := make([][][]idOnly, 4)
	for i := range cube {
		cube[i] = make([][]idOnly, 10)
		for j := range cube[i] {
			cube[i][j] = make([]idOnly, 6)
			for k := range cube[i][j] {
				cube[i][j][k] = idOnly{ID: int32(i*100 + j*10 + k)}
			}
		}
	}
	require.NoError(t, ds.WriteMDArray(cube))

	bound := block.BoundIndices{1: 5}
	got, err := ds.ReadSlicedMDArrayBlockWithOffset([]int{2, 3}, []int64{1, 2}, bound)
	require.NoError(t, err)
	assert.Equal(t, [][]idOnly{{{152}, {153}, {154}}, {{252}, {253}, {254}}}, got)

	got, err = ds.ReadSlicedMDArrayBlock([]int{4, 6}, []int64{0, 0}, bound)
	require.NoError(t, err)
	plane := got.([][]idOnly)
	require.Len(t, plane, 4)
	assert.Equal(t, cube[3][5], plane[3])

	one, err := ds.ReadSlicedMDArrayBlockWithOffset(nil, nil, block.BoundIndices{0: 2, 1: 3, 2: 4})
	require.NoError(t, err)
	assert.Equal(t, idOnly{ID: 234}, one)

	n := 0
	require.NoError(t, ds.ForEachSlicedBlock([]int{2, 4}, bound, func(b block.Block, records any) error {
		plane := records.([][]idOnly)
		for r, row := range plane {
			for c, rec := range row {
				exp := cube[b.Offset[0]+int64(r)][5][b.Offset[2]+int64(c)]
				assert.Equal(t, exp, rec)
			}
		}
		n++
		return nil
	}))
	assert.Equal(t, 4, n)

	_, err = ds.ReadSlicedMDArrayBlockWithOffset([]int{2, 3}, []int64{1, 2}, block.BoundIndices{1: 10})
	assert.ErrorIs(t, err, api.ErrInvalidBlockSpec)
}

func TestOpen(t *testing.T) {
	backend := newBackend()
	_, err := Create(backend, "arr", pointType(t), record.StructFor[point](), []int64{3}, DefaultOptions())
	require.NoError(t, err)
	ds, err := Open(backend, "arr", pointType(t), record.StructFor[point](), DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, ds.WriteArray(points(3)))

	// the on-disk type, read into maps
	ds2, err := Open(backend, "arr", nil, record.Maps(), DefaultOptions())
	require.NoError(t, err)
	recs, err := ds2.ReadArray()
	require.NoError(t, err)
	maps := recs.([]map[string]any)
	require.Len(t, maps, 3)
	assert.Equal(t, int32(2), maps[2]["id"])
	assert.Equal(t, "p2", maps[2]["tag"])

	other := record.NewTypeBuilder("point").
		Member("id", record.Scalar(record.KindInt64)).
		Member("x", record.Scalar(record.KindFloat64)).
		MustBuild()
	_, err = Open(backend, "arr", other, record.Maps(), DefaultOptions())
	assert.ErrorIs(t, err, api.ErrTypeMismatch)

	lenient := DefaultOptions()
	lenient.RequireTypesToBeEqual = false
	ds3, err := Open(backend, "arr", other, record.Maps(), lenient)
	require.NoError(t, err)
	assert.Equal(t, pointType(t).Size(), ds3.Type().Size())
	recs, err = ds3.ReadArray()
	require.NoError(t, err)
	assert.Equal(t, float64(0.5), recs.([]map[string]any)[1]["x"])

	_, err = Open(backend, "missing", nil, record.Maps(), DefaultOptions())
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestGetter(t *testing.T) {
	backend := newBackend()
	ds, err := Create(backend, "arr", pointType(t), record.StructFor[point](), []int64{6}, DefaultOptions())
	require.NoError(t, err)
	ps := points(6)
	require.NoError(t, ds.WriteArray(ps))

	g, err := ds.Getter()
	require.NoError(t, err)
	assert.Equal(t, int64(6), g.Len())
	assert.Equal(t, "dataset.point", g.RecordType())
	all, err := g.Values()
	require.NoError(t, err)
	assert.Equal(t, ps, all)
	part, err := g.GetSlice(2, 4)
	require.NoError(t, err)
	assert.Equal(t, ps[2:4], part)
	_, err = g.GetSlice(4, 7)
	assert.ErrorIs(t, err, api.ErrOutOfRange)
}

func TestAttributes(t *testing.T) {
	backend := newBackend()
	ds, err := Create(backend, "arr", pointType(t), record.StructFor[point](), []int64{2}, DefaultOptions())
	require.NoError(t, err)
	tp, err := record.InferType(reflect.TypeOf(idOnly{}), nil)
	require.NoError(t, err)
	b := record.MustNewByteifyer(tp, record.StructFor[idOnly]())

	require.NoError(t, ds.SetAttribute("origin", b, idOnly{ID: 9}))
	require.NoError(t, ds.SetAttribute("range", b, []idOnly{{1}, {2}, {3}}))
	names, err := ds.AttributeNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"origin", "range"}, names)

	got, err := ds.Attribute("range", record.StructFor[idOnly]())
	require.NoError(t, err)
	assert.Equal(t, []idOnly{{1}, {2}, {3}}, got)
	got, err = ds.Attribute("origin", record.Maps())
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": int32(9)}}, got)

	_, err = ds.Attribute("missing", record.Maps())
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestDefaultBlockDims(t *testing.T) {
	assert.Equal(t, []int{10, 20}, defaultBlockDims([]int64{10, 20}, 8))
	bd := defaultBlockDims([]int64{1 << 20, 4}, 16)
	assert.Equal(t, []int{1 << 14, 4}, bd)
	assert.Equal(t, []int{1}, defaultBlockDims([]int64{0}, 8))
	assert.Equal(t, []int{}, defaultBlockDims(nil, 8))
}
