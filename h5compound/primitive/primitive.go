// Package primitive converts fixed-size scalar values to and from byte runs.
//
// There is one Codec per supported kind.  A Codec never validates buffer
// bounds; callers size buffers from Codec.Size.
package primitive

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/batchatco/go-h5compound/h5compound/api"
)

// Kind identifies a primitive scalar type.
type Kind uint8

const (
	Int8 Kind = iota
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Bool
	numKinds
)

var kindNames = []string{
	"int8", "int16", "int32", "int64",
	"uint8", "uint16", "uint32", "uint64",
	"float32", "float64", "bool",
}

func (k Kind) String() string {
	if k >= numKinds {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), true
		}
	}
	return 0, false
}

type putFunc func(order binary.ByteOrder, b []byte, v reflect.Value)
type getFunc func(order binary.ByteOrder, b []byte) reflect.Value

type entry struct {
	size int
	typ  reflect.Type
	put  putFunc
	get  getFunc
}

// Each kind implements one entry.
var dispatch = [numKinds]entry{
	Int8: {1, reflect.TypeOf(int8(0)),
		func(_ binary.ByteOrder, b []byte, v reflect.Value) { b[0] = byte(v.Int()) },
		func(_ binary.ByteOrder, b []byte) reflect.Value { return reflect.ValueOf(int8(b[0])) }},
	Int16: {2, reflect.TypeOf(int16(0)),
		func(o binary.ByteOrder, b []byte, v reflect.Value) { o.PutUint16(b, uint16(v.Int())) },
		func(o binary.ByteOrder, b []byte) reflect.Value { return reflect.ValueOf(int16(o.Uint16(b))) }},
	Int32: {4, reflect.TypeOf(int32(0)),
		func(o binary.ByteOrder, b []byte, v reflect.Value) { o.PutUint32(b, uint32(v.Int())) },
		func(o binary.ByteOrder, b []byte) reflect.Value { return reflect.ValueOf(int32(o.Uint32(b))) }},
	Int64: {8, reflect.TypeOf(int64(0)),
		func(o binary.ByteOrder, b []byte, v reflect.Value) { o.PutUint64(b, uint64(v.Int())) },
		func(o binary.ByteOrder, b []byte) reflect.Value { return reflect.ValueOf(int64(o.Uint64(b))) }},
	Uint8: {1, reflect.TypeOf(uint8(0)),
		func(_ binary.ByteOrder, b []byte, v reflect.Value) { b[0] = byte(v.Uint()) },
		func(_ binary.ByteOrder, b []byte) reflect.Value { return reflect.ValueOf(b[0]) }},
	Uint16: {2, reflect.TypeOf(uint16(0)),
		func(o binary.ByteOrder, b []byte, v reflect.Value) { o.PutUint16(b, uint16(v.Uint())) },
		func(o binary.ByteOrder, b []byte) reflect.Value { return reflect.ValueOf(o.Uint16(b)) }},
	Uint32: {4, reflect.TypeOf(uint32(0)),
		func(o binary.ByteOrder, b []byte, v reflect.Value) { o.PutUint32(b, uint32(v.Uint())) },
		func(o binary.ByteOrder, b []byte) reflect.Value { return reflect.ValueOf(o.Uint32(b)) }},
	Uint64: {8, reflect.TypeOf(uint64(0)),
		func(o binary.ByteOrder, b []byte, v reflect.Value) { o.PutUint64(b, v.Uint()) },
		func(o binary.ByteOrder, b []byte) reflect.Value { return reflect.ValueOf(o.Uint64(b)) }},
	Float32: {4, reflect.TypeOf(float32(0)),
		func(o binary.ByteOrder, b []byte, v reflect.Value) {
			o.PutUint32(b, math.Float32bits(float32(v.Float())))
		},
		func(o binary.ByteOrder, b []byte) reflect.Value {
			return reflect.ValueOf(math.Float32frombits(o.Uint32(b)))
		}},
	Float64: {8, reflect.TypeOf(float64(0)),
		func(o binary.ByteOrder, b []byte, v reflect.Value) { o.PutUint64(b, math.Float64bits(v.Float())) },
		func(o binary.ByteOrder, b []byte) reflect.Value {
			return reflect.ValueOf(math.Float64frombits(o.Uint64(b)))
		}},
	Bool: {1, reflect.TypeOf(false),
		func(_ binary.ByteOrder, b []byte, v reflect.Value) {
			if v.Bool() {
				b[0] = 1
			} else {
				b[0] = 0
			}
		},
		func(_ binary.ByteOrder, b []byte) reflect.Value { return reflect.ValueOf(b[0] != 0) }},
}

// Codec converts one kind of scalar in a fixed byte order.
type Codec struct {
	Kind  Kind
	Size  int
	Type  reflect.Type
	Order binary.ByteOrder
	put   putFunc
	get   getFunc
}

// Lookup returns the codec for kind in the given byte order.
// A nil order means little-endian.
func Lookup(kind Kind, order binary.ByteOrder) (Codec, bool) {
	if kind >= numKinds {
		return Codec{}, false
	}
	if order == nil {
		order = binary.LittleEndian
	}
	e := dispatch[kind]
	return Codec{Kind: kind, Size: e.size, Type: e.typ, Order: order, put: e.put, get: e.get}, true
}

// MustLookup is Lookup for kinds known to be valid.
func MustLookup(kind Kind, order binary.ByteOrder) Codec {
	c, ok := Lookup(kind, order)
	if !ok {
		panic(fmt.Sprint("unknown primitive kind ", kind))
	}
	return c
}

// EncodeValue writes v, which must already have the codec's Go type
// (or one with the same reflect.Kind), at b[off:].
func (c Codec) EncodeValue(v reflect.Value, b []byte, off int) {
	c.put(c.Order, b[off:off+c.Size], v)
}

// DecodeValue reads a value of the codec's Go type from b[off:].
func (c Codec) DecodeValue(b []byte, off int) reflect.Value {
	return c.get(c.Order, b[off:off+c.Size])
}

// Encode converts v and writes it at b[off:].
func (c Codec) Encode(v any, b []byte, off int) error {
	rv, err := c.Convert(reflect.ValueOf(v))
	if err != nil {
		return err
	}
	c.EncodeValue(rv, b, off)
	return nil
}

// Decode reads a value from b[off:].
func (c Codec) Decode(b []byte, off int) any {
	return c.DecodeValue(b, off).Interface()
}

// Convert coerces v to the codec's Go type.  Numeric values convert between
// each other; bools only from bools.
func (c Codec) Convert(v reflect.Value) (reflect.Value, error) {
	for v.IsValid() && v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: nil for %s", api.ErrInvalidValue, c.Kind)
	}
	if v.Type() == c.Type {
		return v, nil
	}
	if c.Kind == Bool {
		if v.Kind() == reflect.Bool {
			return v.Convert(c.Type), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: %s for %s", api.ErrInvalidValue, v.Type(), c.Kind)
	}
	if !isNumeric(v.Kind()) {
		return reflect.Value{}, fmt.Errorf("%w: %s for %s", api.ErrInvalidValue, v.Type(), c.Kind)
	}
	return v.Convert(c.Type), nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// KindOf returns the primitive kind whose values a Go type holds natively.
// int and uint map to their 64-bit kinds.
func KindOf(t reflect.Type) (Kind, bool) {
	switch t.Kind() {
	case reflect.Int8:
		return Int8, true
	case reflect.Int16:
		return Int16, true
	case reflect.Int32:
		return Int32, true
	case reflect.Int64, reflect.Int:
		return Int64, true
	case reflect.Uint8:
		return Uint8, true
	case reflect.Uint16:
		return Uint16, true
	case reflect.Uint32:
		return Uint32, true
	case reflect.Uint64, reflect.Uint:
		return Uint64, true
	case reflect.Float32:
		return Float32, true
	case reflect.Float64:
		return Float64, true
	case reflect.Bool:
		return Bool, true
	}
	return 0, false
}
