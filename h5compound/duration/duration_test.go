package duration

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/batchatco/go-h5compound/h5compound/api"
)

func TestConvert(t *testing.T) {
	cases := []struct {
		v        int64
		from, to Unit
		exp      int64
	}{
		{1, Days, Hours, 24},
		{1, Days, Microseconds, 86400000000},
		{90, Minutes, Hours, 1},
		{-90, Minutes, Hours, -1},
		{1500, Milliseconds, Seconds, 1},
		{3, Seconds, Milliseconds, 3000},
		{7, Hours, Hours, 7},
		{math.MaxInt64, Days, Microseconds, math.MaxInt64},
		{math.MinInt64, Seconds, Milliseconds, math.MinInt64},
	}
	for _, c := range cases {
		got, err := c.to.Convert(c.v, c.from)
		if err != nil || got != c.exp {
			t.Error(c.v, c.from, "->", c.to, "got=", got, err, "exp=", c.exp)
		}
	}
}

func TestConvertExact(t *testing.T) {
	if got, err := Seconds.ConvertExact(3000, Milliseconds); err != nil || got != 3 {
		t.Error("3000ms is 3s", "got=", got, err)
	}
	if _, err := Seconds.ConvertExact(1500, Milliseconds); !errors.Is(err, api.ErrInvalidValue) {
		t.Error("1500ms truncated to seconds", "got=", err)
	}
	if _, err := Microseconds.ConvertExact(math.MaxInt64, Days); !errors.Is(err, api.ErrInvalidValue) {
		t.Error("saturated conversion accepted", "got=", err)
	}
	if _, err := New(1500, Microseconds).Exactly(Milliseconds); !errors.Is(err, api.ErrInvalidValue) {
		t.Error("1500us truncated to milliseconds", "got=", err)
	}
	if _, err := FromDurationExact(1500*time.Microsecond, Milliseconds); !errors.Is(err, api.ErrInvalidValue) {
		t.Error("1500us truncated to milliseconds", "got=", err)
	}
	if d, err := FromDurationExact(2*time.Minute, Seconds); err != nil || d != New(120, Seconds) {
		t.Error("wrong exact conversion", "got=", d, err)
	}
}

func TestInvalidUnit(t *testing.T) {
	bad := Unit(42)
	if _, err := bad.Convert(1, Seconds); !errors.Is(err, api.ErrInvalidValue) {
		t.Error("converted to an invalid unit", "got=", err)
	}
	if _, err := Seconds.Convert(1, bad); !errors.Is(err, api.ErrInvalidValue) {
		t.Error("converted from an invalid unit", "got=", err)
	}
	if _, err := New(1, bad).Duration(); !errors.Is(err, api.ErrInvalidValue) {
		t.Error("invalid unit as time.Duration", "got=", err)
	}
	if New(1, bad).IsEquivalent(New(1, bad)) {
		t.Error("invalid units compared equal")
	}
	if bad.String() != "Unit(42)" {
		t.Error("wrong name", bad)
	}
}

func TestIsEquivalent(t *testing.T) {
	if !New(1, Hours).IsEquivalent(New(60, Minutes)) {
		t.Error("1h should equal 60min")
	}
	if !New(60, Minutes).IsEquivalent(New(1, Hours)) {
		t.Error("equivalence should be symmetric")
	}
	if New(90, Minutes).IsEquivalent(New(1, Hours)) {
		t.Error("90min is not 1h even though it truncates to it")
	}
	if !New(2, Days).IsEquivalent(New(2*86400000, Milliseconds)) {
		t.Error("2d should equal its milliseconds")
	}
	if New(math.MaxInt64, Days).IsEquivalent(New(math.MaxInt64, Microseconds)) {
		t.Error("saturated conversion must not produce equality")
	}
}

func TestDuration(t *testing.T) {
	d, err := New(3, Seconds).Duration()
	if err != nil || d != 3*time.Second {
		t.Error("wrong duration", d, err)
	}
	got, err := FromDuration(2500*time.Millisecond, Seconds)
	if err != nil || got.Value != 2 || got.Unit != Seconds {
		t.Error("wrong truncation", got, err)
	}
	if in, err := New(5, Minutes).In(Seconds); err != nil || in.Value != 300 {
		t.Error("wrong In conversion", in, err)
	}
	if d, _ := New(math.MaxInt64, Days).Duration(); d != time.Duration(math.MaxInt64) {
		t.Error("expected saturation", d)
	}
}

func TestUnitNames(t *testing.T) {
	for u := Microseconds; u <= Days; u++ {
		got, ok := ParseUnit(u.String())
		if !ok || got != u {
			t.Error("unit name doesn't parse back", u)
		}
	}
	if New(4, Hours).String() != "4h" {
		t.Error("wrong string", New(4, Hours))
	}
}
