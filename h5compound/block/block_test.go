package block

import (
	"errors"
	"reflect"
	"testing"

	"github.com/batchatco/go-h5compound/h5compound/api"
)

func TestOneDimension(t *testing.T) {
	it, err := NewIterator([]int64{10}, []int{3})
	if err != nil {
		t.Fatal(err)
	}
	if it.Count() != 4 {
		t.Error("wrong count", "got=", it.Count(), "exp=", 4)
	}
	var offsets []int64
	var extents []int
	for it.HasNext() {
		b := it.Next()
		offsets = append(offsets, b.Offset[0])
		extents = append(extents, b.Extent[0])
	}
	if !reflect.DeepEqual(offsets, []int64{0, 3, 6, 9}) {
		t.Error("wrong offsets", "got=", offsets)
	}
	if !reflect.DeepEqual(extents, []int{3, 3, 3, 1}) {
		t.Error("wrong extents", "got=", extents)
	}
	if it.HasNext() {
		t.Error("iterator not exhausted")
	}
	if b := it.Next(); b.Offset != nil {
		t.Error("exhausted iterator returned a block", b)
	}
	if it.BlockNumber() != 4 {
		t.Error("wrong block number", it.BlockNumber())
	}
}

func TestRowMajorOrder(t *testing.T) {
	it, err := NewIterator([]int64{3, 5}, []int{2, 2})
	if err != nil {
		t.Fatal(err)
	}
	exp := [][]int64{{0, 0}, {0, 2}, {0, 4}, {2, 0}, {2, 2}, {2, 4}}
	expExt := [][]int{{2, 2}, {2, 2}, {2, 1}, {1, 2}, {1, 2}, {1, 1}}
	i := 0
	for b := range it.All() {
		if i >= len(exp) {
			t.Fatal("too many blocks")
		}
		if !reflect.DeepEqual(b.Offset, exp[i]) || !reflect.DeepEqual(b.Extent, expExt[i]) {
			t.Error("block", i, "got=", b.Offset, b.Extent, "exp=", exp[i], expExt[i])
		}
		if !reflect.DeepEqual(b.Offset, b.LogicalOffset) {
			t.Error("logical offset differs without bound dimensions")
		}
		i++
	}
	if i != len(exp) {
		t.Error("wrong block count", "got=", i, "exp=", len(exp))
	}
}

func TestSliced(t *testing.T) {
	dims := []int64{4, 10, 6}
	bound := BoundIndices{1: 5}
	logical, err := LogicalDims(dims, bound)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(logical, []int64{4, 6}) {
		t.Error("wrong logical shape", "got=", logical)
	}
	it, err := NewSlicedIterator(dims, []int{2, 4}, bound)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for b := range it.All() {
		if b.Offset[1] != 5 || b.Extent[1] != 1 {
			t.Error("bound dimension not folded in", b.Offset, b.Extent)
		}
		if len(b.LogicalOffset) != 2 || len(b.LogicalExtent) != 2 {
			t.Error("wrong logical rank", b.LogicalOffset)
		}
		n++
	}
	if n != 4 {
		t.Error("wrong block count", "got=", n, "exp=", 4)
	}

	// full-rank block dimensions ignore the bound entries
	it, err = NewSlicedIterator(dims, []int{4, 0, 6}, bound)
	if err != nil {
		t.Fatal(err)
	}
	b := it.Next()
	if !reflect.DeepEqual(b.Offset, []int64{0, 5, 0}) || !reflect.DeepEqual(b.Extent, []int{4, 1, 6}) {
		t.Error("wrong block", b.Offset, b.Extent)
	}
	if it.HasNext() {
		t.Error("expected a single block")
	}
}

func TestAllBound(t *testing.T) {
	it, err := NewSlicedIterator([]int64{4, 10}, nil, BoundIndices{0: 3, 1: 9})
	if err != nil {
		t.Fatal(err)
	}
	if !it.HasNext() {
		t.Fatal("expected one block")
	}
	b := it.Next()
	if !reflect.DeepEqual(b.Offset, []int64{3, 9}) || !reflect.DeepEqual(b.Extent, []int{1, 1}) {
		t.Error("wrong scalar block", b.Offset, b.Extent)
	}
	if b.Size() != 1 {
		t.Error("wrong size", b.Size())
	}
	if it.HasNext() {
		t.Error("expected exactly one block")
	}
}

func TestInvalidSpecs(t *testing.T) {
	cases := []struct {
		name  string
		dims  []int64
		block []int
		bound BoundIndices
	}{
		{"zero block", []int64{10}, []int{0}, nil},
		{"negative block", []int64{10}, []int{-3}, nil},
		{"rank mismatch", []int64{10, 10}, []int{3}, nil},
		{"negative dim", []int64{-1}, []int{3}, nil},
		{"bound out of range", []int64{4, 10}, []int{2}, BoundIndices{1: 10}},
		{"bound dimension", []int64{4, 10}, []int{2}, BoundIndices{2: 0}},
	}
	for _, c := range cases {
		_, err := NewSlicedIterator(c.dims, c.block, c.bound)
		if !errors.Is(err, api.ErrInvalidBlockSpec) {
			t.Error(c.name, "got=", err)
		}
	}
	if _, err := BlockOffset([]int{3, 3}, []int64{1}); !errors.Is(err, api.ErrInvalidBlockSpec) {
		t.Error("rank mismatch", "got=", err)
	}
	if _, err := BlockOffset([]int{0}, []int64{1}); !errors.Is(err, api.ErrInvalidBlockSpec) {
		t.Error("zero block", "got=", err)
	}
}

func TestEmptyArray(t *testing.T) {
	it, err := NewIterator([]int64{0, 5}, []int{2, 2})
	if err != nil {
		t.Fatal(err)
	}
	if it.HasNext() {
		t.Error("empty array has blocks")
	}
}

func TestOffsets(t *testing.T) {
	off, err := BlockOffset([]int{3, 4}, []int64{2, 1})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(off, []int64{6, 4}) {
		t.Error("wrong block offset", off)
	}
	full, err := SlicedOffset([]int64{4, 10, 6}, BoundIndices{1: 5}, []int64{2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(full, []int64{2, 5, 3}) {
		t.Error("wrong sliced offset", full)
	}
	ext, err := SlicedExtent(3, BoundIndices{1: 5}, []int{2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ext, []int{2, 1, 3}) {
		t.Error("wrong sliced extent", ext)
	}
	if _, err := SlicedOffset([]int64{4, 10, 6}, BoundIndices{1: 5}, []int64{2}); !errors.Is(err, api.ErrInvalidBlockSpec) {
		t.Error("expected invalid block spec", "got=", err)
	}
}

func TestSpans(t *testing.T) {
	dims := []int64{4, 10}
	spans, err := Spans(dims, []int64{1, 2}, []int{2, 3}, 4)
	if err != nil {
		t.Fatal(err)
	}
	exp := []Span{{Offset: 48, Pos: 0, Length: 12}, {Offset: 88, Pos: 12, Length: 12}}
	if !reflect.DeepEqual(spans, exp) {
		t.Error("wrong spans", "got=", spans, "exp=", exp)
	}

	// full rows merge into one run
	spans, err = Spans(dims, []int64{1, 0}, []int{2, 10}, 4)
	if err != nil {
		t.Fatal(err)
	}
	exp = []Span{{Offset: 40, Pos: 0, Length: 80}}
	if !reflect.DeepEqual(spans, exp) {
		t.Error("wrong merged spans", "got=", spans, "exp=", exp)
	}

	spans, err = Spans(nil, nil, nil, 8)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(spans, []Span{{Length: 8}}) {
		t.Error("wrong scalar span", spans)
	}

	spans, err = Spans(dims, []int64{0, 0}, []int{0, 10}, 4)
	if err != nil || len(spans) != 0 {
		t.Error("expected no spans", spans, err)
	}

	// an empty extent still checks the other dimensions
	_, err = Spans(dims, []int64{0, 50}, []int{0, 3}, 8)
	if !errors.Is(err, api.ErrOutOfRange) {
		t.Error("expected out of range", "got=", err)
	}

	_, err = Spans(dims, []int64{3, 0}, []int{2, 10}, 4)
	if !errors.Is(err, api.ErrOutOfRange) {
		t.Error("expected out of range", "got=", err)
	}
	_, err = Spans(dims, []int64{0}, []int{2, 10}, 4)
	if !errors.Is(err, api.ErrInvalidBlockSpec) {
		t.Error("expected invalid block spec", "got=", err)
	}
}
