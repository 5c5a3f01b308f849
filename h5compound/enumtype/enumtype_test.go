package enumtype

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/batchatco/go-h5compound/h5compound/api"
)

func TestStorageFormThresholds(t *testing.T) {
	cases := []struct {
		cardinality int
		exp         StorageForm
	}{
		{0, StorageByte},
		{1, StorageByte},
		{126, StorageByte},
		{127, StorageShort},
		{128, StorageShort},
		{32766, StorageShort},
		{32767, StorageInt},
		{32768, StorageInt},
		{1 << 20, StorageInt},
	}
	for _, c := range cases {
		if got := StorageFormFor(c.cardinality); got != c.exp {
			t.Error("cardinality", c.cardinality, "got=", got, "exp=", c.exp)
		}
	}
}

func TestNumberOfBits(t *testing.T) {
	cases := map[int]int{
		0:       0,
		1:       0,
		2:       1,
		3:       2,
		4:       2,
		5:       3,
		255:     8,
		256:     8,
		257:     9,
		65536:   16,
		65537:   17,
		1 << 31: 31,
	}
	for cardinality, exp := range cases {
		if got := NumberOfBits(cardinality); got != exp {
			t.Error("cardinality", cardinality, "got=", got, "exp=", exp)
		}
	}
}

func TestOrdinalRoundTrip(t *testing.T) {
	for _, form := range []StorageForm{StorageByte, StorageShort, StorageInt} {
		for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
			max := 125
			switch form {
			case StorageShort:
				max = 32765
			case StorageInt:
				max = 1 << 30
			}
			for _, ord := range []int{0, 1, max} {
				b := EncodeOrdinal(ord, form, order)
				if len(b) != int(form) {
					t.Error("wrong encoded length", len(b), "for", form)
				}
				got, err := DecodeOrdinal(b, order)
				if err != nil {
					t.Error(err)
					continue
				}
				if got != ord {
					t.Error(form, "round trip got=", got, "exp=", ord)
				}
			}
		}
	}
}

func TestDecodeOrdinalBadLength(t *testing.T) {
	for _, n := range []int{0, 3, 5, 8} {
		_, err := DecodeOrdinal(make([]byte, n), nil)
		if !errors.Is(err, api.ErrFormat) {
			t.Error("length", n, "expected format error, got", err)
		}
	}
}

func values(n int) []string {
	vals := make([]string, n)
	for i := range vals {
		vals[i] = fmt.Sprintf("V%d", i)
	}
	return vals
}

func TestTypeBoundaries(t *testing.T) {
	for _, n := range []int{1, 127, 128, 32767, 32768} {
		et, err := New("e", values(n))
		if err != nil {
			t.Fatal(err)
		}
		if et.StorageForm() != StorageFormFor(n) {
			t.Error("wrong storage form for", n)
		}
		last := n - 1
		b := EncodeOrdinal(last, et.StorageForm(), nil)
		got, err := DecodeOrdinal(b, nil)
		if err != nil || got != last {
			t.Error("cardinality", n, "last ordinal got=", got, "exp=", last, err)
		}
		name, ok := et.ValueOf(got)
		if !ok || name != fmt.Sprintf("V%d", last) {
			t.Error("wrong name for last ordinal", name)
		}
	}
}

func TestIndexOf(t *testing.T) {
	et := MustNew("Color", "RED", "GREEN", "BLUE")
	if et.IndexOf("BLUE") != 2 {
		t.Error("wrong index for BLUE")
	}
	if et.IndexOf("PURPLE") != -1 {
		t.Error("missing value should report -1")
	}
	if et.NumberOfBits() != 2 {
		t.Error("wrong number of bits", et.NumberOfBits())
	}
	v, err := NewValue(et, "GREEN")
	if err != nil || v.Ordinal != 1 || v.String() != "GREEN" {
		t.Error("wrong value", v, err)
	}
	if _, err := NewValue(et, "PURPLE"); !errors.Is(err, api.ErrInvalidValue) {
		t.Error("expected invalid value, got", err)
	}
	if (Value{Type: et, Ordinal: 9}).String() != "#9" {
		t.Error("out of range value should print its ordinal")
	}
}

func TestIndexOfConcurrent(t *testing.T) {
	et := MustNew("", values(1000)...)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if et.IndexOf(fmt.Sprintf("V%d", i)) != i {
					t.Error("wrong index", i)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestNewInvalid(t *testing.T) {
	if _, err := New("dup", []string{"A", "B", "A"}); !errors.Is(err, api.ErrInvalidDescriptor) {
		t.Error("expected duplicate error, got", err)
	}
	if _, err := New("bad", []string{""}); !errors.Is(err, api.ErrInvalidDescriptor) {
		t.Error("expected invalid name error, got", err)
	}
}

func TestEqual(t *testing.T) {
	a := MustNew("a", "X", "Y")
	b := MustNew("b", "X", "Y")
	c := MustNew("a", "Y", "X")
	if !a.Equal(b) {
		t.Error("same values should be equal")
	}
	if a.Equal(c) {
		t.Error("different order should not be equal")
	}
	if a.Equal(nil) {
		t.Error("nil should not be equal")
	}
}
