package record

import (
	"reflect"
	"strings"

	"github.com/batchatco/go-h5compound/h5compound/api"
	"github.com/batchatco/go-h5compound/h5compound/util"
)

// A Container decides what Go value represents one record and how its
// members are reached.
type Container interface {
	// recordType is the element type of decoded record slices.
	recordType() reflect.Type
	// newRecord returns an empty record ready to be decoded into.
	newRecord(t *Type) reflect.Value
	// result converts a record returned by newRecord to recordType.
	result(rec reflect.Value) reflect.Value
	// accessor throws if the member can't be reached.
	accessor(i int, m MemberSpec) FieldAccessor
}

var (
	mapType  = reflect.TypeOf(map[string]any(nil))
	listType = reflect.TypeOf([]any(nil))
)

type structContainer struct {
	typ    reflect.Type
	fields map[string]StructField
}

// StructOf returns a container for records of the struct type typ.  Members
// map to exported fields by their `h5` tag name, or else by field name.
func StructOf(typ reflect.Type) Container {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	c := &structContainer{typ: typ, fields: map[string]StructField{}}
	if typ.Kind() != reflect.Struct {
		return c
	}
	for _, f := range structFields(typ) {
		c.fields[f.name] = StructField{Name: f.field.Name, Index: f.field.Index, Type: f.field.Type, Owner: typ}
	}
	return c
}

// StructFor is StructOf for the type parameter.
func StructFor[T any]() Container {
	return StructOf(reflect.TypeFor[T]())
}

func (c *structContainer) recordType() reflect.Type { return c.typ }

func (c *structContainer) newRecord(*Type) reflect.Value { return reflect.New(c.typ) }

func (c *structContainer) result(rec reflect.Value) reflect.Value { return rec.Elem() }

func (c *structContainer) accessor(_ int, m MemberSpec) FieldAccessor {
	assertError(c.typ.Kind() == reflect.Struct, api.ErrUnresolvedType, "%s is not a struct", c.typ)
	f, has := c.fields[m.Name]
	assertError(has, api.ErrUnresolvedType, "%s has no field for member %q", c.typ, m.Name)
	return f
}

type fieldInfo struct {
	name  string
	tag   string
	field reflect.StructField
}

// structFields lists the exported fields of t that can hold members,
// including fields promoted from embedded structs.
func structFields(t reflect.Type) []fieldInfo {
	var fields []fieldInfo
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || (f.Anonymous && f.Type.Kind() == reflect.Struct) {
			continue
		}
		if throughPointer(t, f.Index) {
			continue
		}
		tag, hasTag := f.Tag.Lookup("h5")
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			continue
		}
		if !hasTag || name == "" {
			name = f.Name
		}
		fields = append(fields, fieldInfo{name: name, tag: tag, field: f})
	}
	return fields
}

// throughPointer reports whether the field path crosses an embedded pointer.
func throughPointer(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		f := t.Field(i)
		if f.Type.Kind() == reflect.Pointer {
			return true
		}
		t = f.Type
	}
	return false
}

type mapContainer struct{}

// Maps returns a container for records held in map[string]any.  Missing
// entries encode as zero bytes.
func Maps() Container { return mapContainer{} }

func (mapContainer) recordType() reflect.Type { return mapType }

func (mapContainer) newRecord(t *Type) reflect.Value {
	return reflect.ValueOf(make(map[string]any, t.NumMembers()))
}

func (mapContainer) result(rec reflect.Value) reflect.Value { return rec }

func (mapContainer) accessor(_ int, m MemberSpec) FieldAccessor { return MapEntry{Key: m.Name} }

type orderedMapContainer struct{}

// OrderedMaps returns a container for records held in *util.OrderedMap.
// Decoded maps list their keys in member order.
func OrderedMaps() Container { return orderedMapContainer{} }

func (orderedMapContainer) recordType() reflect.Type { return orderedMapType }

func (orderedMapContainer) newRecord(t *Type) reflect.Value {
	return reflect.ValueOf(util.NewEmptyOrderedMap(t.NumMembers()))
}

func (orderedMapContainer) result(rec reflect.Value) reflect.Value { return rec }

func (orderedMapContainer) accessor(_ int, m MemberSpec) FieldAccessor {
	return MapEntry{Key: m.Name}
}

type listContainer struct{}

// Lists returns a container for records held in []any, one position per
// member.  Short lists encode their missing members as zero bytes.
func Lists() Container { return listContainer{} }

func (listContainer) recordType() reflect.Type { return listType }

func (listContainer) newRecord(*Type) reflect.Value { return reflect.New(listType) }

func (listContainer) result(rec reflect.Value) reflect.Value { return rec.Elem() }

func (listContainer) accessor(i int, _ MemberSpec) FieldAccessor { return ListSlot{Index: i} }

type arrayContainer struct{}

// Arrays returns a container for records held in []any of exactly one
// position per member.
func Arrays() Container { return arrayContainer{} }

func (arrayContainer) recordType() reflect.Type { return listType }

func (arrayContainer) newRecord(t *Type) reflect.Value {
	return reflect.ValueOf(make([]any, t.NumMembers()))
}

func (arrayContainer) result(rec reflect.Value) reflect.Value { return rec }

func (arrayContainer) accessor(i int, _ MemberSpec) FieldAccessor { return ArraySlot{Index: i} }
