// Package duration holds a time duration value tagged with its unit.
package duration

import (
	"fmt"
	"math"
	"time"

	"github.com/batchatco/go-h5compound/h5compound/api"
)

// Unit is the unit of a TimeDuration, finest first.
type Unit int

const (
	Microseconds Unit = iota
	Milliseconds
	Seconds
	Minutes
	Hours
	Days
)

// Scale of each unit in microseconds.
var micros = []int64{
	1,
	1000,
	1000 * 1000,
	60 * 1000 * 1000,
	60 * 60 * 1000 * 1000,
	24 * 60 * 60 * 1000 * 1000,
}

var unitNames = []string{"us", "ms", "s", "min", "h", "d"}

func (u Unit) Valid() bool { return u >= Microseconds && u <= Days }

func (u Unit) String() string {
	if !u.Valid() {
		return fmt.Sprintf("Unit(%d)", int(u))
	}
	return unitNames[u]
}

// ParseUnit accepts the short names printed by String.
func ParseUnit(s string) (Unit, bool) {
	for i, n := range unitNames {
		if n == s {
			return Unit(i), true
		}
	}
	return 0, false
}

func (u Unit) scale() (int64, error) {
	if !u.Valid() {
		return 0, fmt.Errorf("%w: unit %s", api.ErrInvalidValue, u)
	}
	return micros[u], nil
}

// Convert converts v, given in unit from, to unit u.  Converting to a coarser
// unit truncates toward zero; converting to a finer one saturates at the
// int64 limits.  Invalid units fail with api.ErrInvalidValue.
func (u Unit) Convert(v int64, from Unit) (int64, error) {
	n, _, err := u.convert(v, from)
	return n, err
}

// ConvertExact is Convert, but fails with api.ErrInvalidValue if the result
// was truncated or saturated.
func (u Unit) ConvertExact(v int64, from Unit) (int64, error) {
	n, exact, err := u.convert(v, from)
	if err != nil {
		return 0, err
	}
	if !exact {
		return 0, fmt.Errorf("%w: %d%s is not a whole number of %s", api.ErrInvalidValue, v, from, u)
	}
	return n, nil
}

func (u Unit) convert(v int64, from Unit) (int64, bool, error) {
	to, err := u.scale()
	if err != nil {
		return 0, false, err
	}
	fs, err := from.scale()
	if err != nil {
		return 0, false, err
	}
	if to == fs {
		return v, true, nil
	}
	if fs > to {
		scale := fs / to
		if v > math.MaxInt64/scale {
			return math.MaxInt64, false, nil
		}
		if v < math.MinInt64/scale {
			return math.MinInt64, false, nil
		}
		return v * scale, true, nil
	}
	scale := to / fs
	return v / scale, v%scale == 0, nil
}

// TimeDuration is a duration with an explicit unit.
type TimeDuration struct {
	Value int64
	Unit  Unit
}

func New(value int64, unit Unit) TimeDuration {
	return TimeDuration{Value: value, Unit: unit}
}

// FromDuration converts d to the given unit, truncating.
func FromDuration(d time.Duration, unit Unit) (TimeDuration, error) {
	v, err := unit.Convert(d.Microseconds(), Microseconds)
	return TimeDuration{Value: v, Unit: unit}, err
}

// FromDurationExact converts d to the given unit and fails with
// api.ErrInvalidValue if d isn't a whole number of that unit.
func FromDurationExact(d time.Duration, unit Unit) (TimeDuration, error) {
	if d%time.Microsecond != 0 {
		return TimeDuration{}, fmt.Errorf("%w: %v is not a whole number of %s", api.ErrInvalidValue, d, unit)
	}
	v, err := unit.ConvertExact(d.Microseconds(), Microseconds)
	return TimeDuration{Value: v, Unit: unit}, err
}

// In returns the duration converted to unit u, truncating.
func (d TimeDuration) In(u Unit) (TimeDuration, error) {
	v, err := u.Convert(d.Value, d.Unit)
	return TimeDuration{Value: v, Unit: u}, err
}

// Exactly returns the duration converted to unit u and fails with
// api.ErrInvalidValue if that loses precision.
func (d TimeDuration) Exactly(u Unit) (TimeDuration, error) {
	v, err := u.ConvertExact(d.Value, d.Unit)
	return TimeDuration{Value: v, Unit: u}, err
}

// Duration returns d as a time.Duration, saturating on overflow.
func (d TimeDuration) Duration() (time.Duration, error) {
	us, err := Microseconds.Convert(d.Value, d.Unit)
	if err != nil {
		return 0, err
	}
	if us > math.MaxInt64/1000 {
		return time.Duration(math.MaxInt64), nil
	}
	if us < math.MinInt64/1000 {
		return time.Duration(math.MinInt64), nil
	}
	return time.Duration(us) * time.Microsecond, nil
}

// IsEquivalent reports whether d and o denote the same length of time.
// The finer one must be a whole number of the coarser unit.
// Durations with invalid units are never equivalent.
func (d TimeDuration) IsEquivalent(o TimeDuration) bool {
	if !d.Unit.Valid() || !o.Unit.Valid() {
		return false
	}
	if d.Unit == o.Unit {
		return d.Value == o.Value
	}
	fine, coarse := d, o
	if o.Unit < d.Unit {
		fine, coarse = o, d
	}
	scaled, err := coarse.Unit.ConvertExact(fine.Value, fine.Unit)
	return err == nil && scaled == coarse.Value
}

func (d TimeDuration) String() string {
	return fmt.Sprintf("%d%s", d.Value, d.Unit)
}
