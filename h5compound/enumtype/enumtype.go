// Package enumtype implements enumeration types and the storage form of
// their ordinals.
//
// An enumeration stores the ordinal of each value, using the smallest
// integer width whose signed range covers the number of values.
package enumtype

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/batchatco/go-h5compound/h5compound/api"
	"github.com/batchatco/go-h5compound/internal"
)

// StorageForm is the width in bytes of a stored ordinal.
type StorageForm int

const (
	StorageByte  StorageForm = 1
	StorageShort StorageForm = 2
	StorageInt   StorageForm = 4
)

func (f StorageForm) String() string {
	switch f {
	case StorageByte:
		return "BYTE"
	case StorageShort:
		return "SHORT"
	case StorageInt:
		return "INT"
	}
	return fmt.Sprintf("StorageForm(%d)", int(f))
}

// StorageFormFor returns the storage form for an enumeration with the given
// number of values.  The thresholds are the signed byte and short maxima, to
// match files written by existing implementations.
func StorageFormFor(cardinality int) StorageForm {
	switch {
	case cardinality < math.MaxInt8:
		return StorageByte
	case cardinality < math.MaxInt16:
		return StorageShort
	default:
		return StorageInt
	}
}

// NumberOfBits returns the number of bits needed to hold the largest
// ordinal, cardinality-1.
func NumberOfBits(cardinality int) int {
	if cardinality <= 1 {
		return 0
	}
	if int64(cardinality-1) > math.MaxUint32 {
		return 32
	}
	return bits.Len32(uint32(cardinality - 1))
}

// PutOrdinal writes ordinal at b[off:] using the given storage form.
func PutOrdinal(b []byte, off int, ordinal int, form StorageForm, order binary.ByteOrder) {
	switch form {
	case StorageByte:
		b[off] = byte(ordinal)
	case StorageShort:
		order.PutUint16(b[off:], uint16(ordinal))
	default:
		order.PutUint32(b[off:], uint32(ordinal))
	}
}

// GetOrdinal reads an ordinal from b[off:] using the given storage form.
func GetOrdinal(b []byte, off int, form StorageForm, order binary.ByteOrder) int {
	switch form {
	case StorageByte:
		return int(int8(b[off]))
	case StorageShort:
		return int(int16(order.Uint16(b[off:])))
	default:
		return int(int32(order.Uint32(b[off:])))
	}
}

// EncodeOrdinal returns the stored bytes of ordinal.
func EncodeOrdinal(ordinal int, form StorageForm, order binary.ByteOrder) []byte {
	if order == nil {
		order = binary.LittleEndian
	}
	b := make([]byte, int(form))
	PutOrdinal(b, 0, ordinal, form, order)
	return b
}

// DecodeOrdinal decodes an ordinal; the storage form is the length of b.
func DecodeOrdinal(b []byte, order binary.ByteOrder) (int, error) {
	if order == nil {
		order = binary.LittleEndian
	}
	form := StorageForm(len(b))
	switch form {
	case StorageByte, StorageShort, StorageInt:
		return GetOrdinal(b, 0, form, order), nil
	}
	return 0, fmt.Errorf("%w: enumeration ordinal of %d bytes", api.ErrFormat, len(b))
}

// Type is an immutable enumeration type.
type Type struct {
	name   string
	values []string
	index  map[string]int
	form   StorageForm
}

// New returns an enumeration type.  The name may be empty for anonymous types.
// Values must be unique and valid member names.
func New(name string, values []string) (*Type, error) {
	index := make(map[string]int, len(values))
	for i, v := range values {
		if !internal.IsValidMemberName(v) {
			return nil, fmt.Errorf("%w: enumeration value %q", api.ErrInvalidDescriptor, v)
		}
		if _, has := index[v]; has {
			return nil, fmt.Errorf("%w: duplicate enumeration value %q", api.ErrInvalidDescriptor, v)
		}
		index[v] = i
	}
	own := make([]string, len(values))
	copy(own, values)
	return &Type{
		name:   name,
		values: own,
		index:  index,
		form:   StorageFormFor(len(values)),
	}, nil
}

// MustNew is New for values known to be valid.
func MustNew(name string, values ...string) *Type {
	t, err := New(name, values)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Type) Name() string { return t.name }

// Values returns a copy of the values in ordinal order.
func (t *Type) Values() []string {
	vals := make([]string, len(t.values))
	copy(vals, t.values)
	return vals
}

func (t *Type) Len() int                 { return len(t.values) }
func (t *Type) StorageForm() StorageForm { return t.form }
func (t *Type) StorageSize() int         { return int(t.form) }
func (t *Type) NumberOfBits() int        { return NumberOfBits(len(t.values)) }

// IndexOf returns the ordinal of value, or -1 if value is not in the type.
func (t *Type) IndexOf(value string) int {
	if i, has := t.index[value]; has {
		return i
	}
	return -1
}

// ValueOf returns the value for an ordinal.
func (t *Type) ValueOf(ordinal int) (string, bool) {
	if ordinal < 0 || ordinal >= len(t.values) {
		return "", false
	}
	return t.values[ordinal], true
}

// Equal reports whether both types hold the same values in the same order.
// Names are not compared; anonymous and named types may describe the same data.
func (t *Type) Equal(other *Type) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil || len(t.values) != len(other.values) {
		return false
	}
	for i := range t.values {
		if t.values[i] != other.values[i] {
			return false
		}
	}
	return true
}

func (t *Type) String() string {
	name := t.name
	if name == "" {
		name = "<anonymous>"
	}
	return fmt.Sprintf("enum %s {%s}", name, strings.Join(t.values, ","))
}

// Value is a single value of an enumeration type.
type Value struct {
	Type    *Type
	Ordinal int
}

// NewValue looks up name in t.
func NewValue(t *Type, name string) (Value, error) {
	i := t.IndexOf(name)
	if i < 0 {
		return Value{}, fmt.Errorf("%w: %q is not a value of %s", api.ErrInvalidValue, name, t)
	}
	return Value{Type: t, Ordinal: i}, nil
}

// Name returns the value's name, or "" if the ordinal is out of range.
func (v Value) Name() string {
	s, _ := v.Type.ValueOf(v.Ordinal)
	return s
}

func (v Value) String() string {
	if s, ok := v.Type.ValueOf(v.Ordinal); ok {
		return s
	}
	return fmt.Sprintf("#%d", v.Ordinal)
}
