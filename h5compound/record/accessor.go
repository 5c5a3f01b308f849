package record

import (
	"fmt"
	"reflect"

	"github.com/batchatco/go-h5compound/h5compound/api"
	"github.com/batchatco/go-h5compound/h5compound/util"
)

// FieldAccessor reads and writes one member of a record container.
type FieldAccessor interface {
	// Get returns the member's value, or the zero Value if the container
	// doesn't hold one.
	Get(rec reflect.Value) (reflect.Value, error)
	// Set stores v into the container.
	Set(rec reflect.Value, v reflect.Value) error
	// TargetType is the static Go type of the member, or nil if the
	// container accepts any value.
	TargetType() reflect.Type
}

var orderedMapType = reflect.TypeOf((*util.OrderedMap)(nil))

// indirect strips interfaces and non-nil pointers.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// assign stores v into dst, converting between compatible types.
func assign(dst reflect.Value, v reflect.Value, name string) error {
	if !dst.CanSet() {
		return fmt.Errorf("%w: can't assign to non-exported field %q", api.ErrInvalidValue, name)
	}
	if !v.IsValid() {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	switch {
	case v.Type().AssignableTo(dst.Type()):
		dst.Set(v)
	case convertible(v.Type(), dst.Type()):
		dst.Set(v.Convert(dst.Type()))
	default:
		return fmt.Errorf("%w: can't assign %s to %s for %q", api.ErrInvalidValue, v.Type(), dst.Type(), name)
	}
	return nil
}

// convertible allows conversions within a kind and between numeric kinds,
// but not the ones reflect permits between unrelated kinds (int to string).
func convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	return from.Kind() == to.Kind() || (isNumericKind(from.Kind()) && isNumericKind(to.Kind()))
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isIntegerKind(k reflect.Kind) bool {
	return isNumericKind(k) && k != reflect.Float32 && k != reflect.Float64
}

// StructField accesses a field of a struct.  When Owner is set, records of
// any other struct type are rejected.
type StructField struct {
	Name  string
	Index []int
	Type  reflect.Type
	Owner reflect.Type
}

func (f StructField) field(rec reflect.Value) (reflect.Value, error) {
	rec = indirect(rec)
	if !rec.IsValid() || rec.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: struct field %q of %v", api.ErrInvalidValue, f.Name, rec.Kind())
	}
	if f.Owner != nil && rec.Type() != f.Owner {
		return reflect.Value{}, fmt.Errorf("%w: record of type %s, expected %s", api.ErrInvalidValue, rec.Type(), f.Owner)
	}
	v := rec
	for _, i := range f.Index {
		v = indirect(v)
		if !v.IsValid() || v.Kind() != reflect.Struct || i >= v.NumField() {
			return reflect.Value{}, fmt.Errorf("%w: %s has no field %q", api.ErrInvalidValue, rec.Type(), f.Name)
		}
		v = v.Field(i)
	}
	return v, nil
}

func (f StructField) Get(rec reflect.Value) (reflect.Value, error) {
	return f.field(rec)
}

func (f StructField) Set(rec reflect.Value, v reflect.Value) error {
	dst, err := f.field(rec)
	if err != nil {
		return err
	}
	return assign(dst, v, f.Name)
}

func (f StructField) TargetType() reflect.Type { return f.Type }

// MapEntry accesses a named entry of a map[string]any or a *util.OrderedMap.
type MapEntry struct {
	Key string
}

func (e MapEntry) Get(rec reflect.Value) (reflect.Value, error) {
	if rec.IsValid() && rec.Type() == orderedMapType {
		om := rec.Interface().(*util.OrderedMap)
		v, has := om.Get(e.Key)
		if !has {
			return reflect.Value{}, nil
		}
		return reflect.ValueOf(v), nil
	}
	rec = indirect(rec)
	if !rec.IsValid() || rec.Kind() != reflect.Map || rec.Type().Key().Kind() != reflect.String {
		return reflect.Value{}, fmt.Errorf("%w: map entry %q of %v", api.ErrInvalidValue, e.Key, rec.Kind())
	}
	return indirect(rec.MapIndex(reflect.ValueOf(e.Key).Convert(rec.Type().Key()))), nil
}

func (e MapEntry) Set(rec reflect.Value, v reflect.Value) error {
	var val any
	if v.IsValid() {
		val = v.Interface()
	}
	if rec.IsValid() && rec.Type() == orderedMapType {
		rec.Interface().(*util.OrderedMap).Set(e.Key, val)
		return nil
	}
	rec = indirect(rec)
	if !rec.IsValid() || rec.Kind() != reflect.Map || rec.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("%w: map entry %q of %v", api.ErrInvalidValue, e.Key, rec.Kind())
	}
	elem := reflect.New(rec.Type().Elem()).Elem()
	if err := assign(elem, v, e.Key); err != nil {
		return err
	}
	rec.SetMapIndex(reflect.ValueOf(e.Key).Convert(rec.Type().Key()), elem)
	return nil
}

func (MapEntry) TargetType() reflect.Type { return nil }

// ListSlot accesses a position of a growable list, a *[]any.  Setting a
// position past the end grows the list.
type ListSlot struct {
	Index int
}

func (s ListSlot) Get(rec reflect.Value) (reflect.Value, error) {
	list := indirect(rec)
	if !list.IsValid() || list.Kind() != reflect.Slice {
		return reflect.Value{}, fmt.Errorf("%w: list slot %d of %v", api.ErrInvalidValue, s.Index, list.Kind())
	}
	if s.Index >= list.Len() {
		return reflect.Value{}, nil
	}
	return indirect(list.Index(s.Index)), nil
}

func (s ListSlot) Set(rec reflect.Value, v reflect.Value) error {
	if !rec.IsValid() || rec.Kind() != reflect.Pointer || rec.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("%w: list slot %d needs a pointer to a slice", api.ErrInvalidValue, s.Index)
	}
	list := rec.Elem()
	if s.Index >= list.Len() {
		grown := reflect.MakeSlice(list.Type(), s.Index+1, s.Index+1)
		reflect.Copy(grown, list)
		list.Set(grown)
	}
	return assign(list.Index(s.Index), v, fmt.Sprint("slot ", s.Index))
}

func (ListSlot) TargetType() reflect.Type { return nil }

// ArraySlot accesses a position of a fixed-length []any or array.
type ArraySlot struct {
	Index int
}

func (s ArraySlot) slot(rec reflect.Value) (reflect.Value, error) {
	arr := indirect(rec)
	if !arr.IsValid() || (arr.Kind() != reflect.Slice && arr.Kind() != reflect.Array) {
		return reflect.Value{}, fmt.Errorf("%w: array slot %d of %v", api.ErrInvalidValue, s.Index, arr.Kind())
	}
	if s.Index >= arr.Len() {
		return reflect.Value{}, fmt.Errorf("%w: array slot %d of %d", api.ErrSizeMismatch, s.Index, arr.Len())
	}
	return arr.Index(s.Index), nil
}

func (s ArraySlot) Get(rec reflect.Value) (reflect.Value, error) {
	v, err := s.slot(rec)
	if err != nil {
		return reflect.Value{}, err
	}
	return indirect(v), nil
}

func (s ArraySlot) Set(rec reflect.Value, v reflect.Value) error {
	slot, err := s.slot(rec)
	if err != nil {
		return err
	}
	return assign(slot, v, fmt.Sprint("slot ", s.Index))
}

func (ArraySlot) TargetType() reflect.Type { return nil }
