package record

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/batchatco/go-h5compound/h5compound/api"
	"github.com/batchatco/go-h5compound/h5compound/duration"
	"github.com/batchatco/go-h5compound/h5compound/enumtype"
	"github.com/batchatco/go-thrower"
)

var kindOfGoKind = map[reflect.Kind]Kind{
	reflect.Int8:    KindInt8,
	reflect.Int16:   KindInt16,
	reflect.Int32:   KindInt32,
	reflect.Int64:   KindInt64,
	reflect.Int:     KindInt64,
	reflect.Uint8:   KindUint8,
	reflect.Uint16:  KindUint16,
	reflect.Uint32:  KindUint32,
	reflect.Uint64:  KindUint64,
	reflect.Uint:    KindUint64,
	reflect.Float32: KindFloat32,
	reflect.Float64: KindFloat64,
	reflect.Bool:    KindBool,
}

type tagOptions struct {
	size   int
	enum   string
	unit   duration.Unit
	offset int
	dims   []int
}

func parseTag(field string, tag string) tagOptions {
	o := tagOptions{unit: duration.Milliseconds, offset: -1}
	parts := strings.Split(tag, ",")
	for _, p := range parts[1:] {
		key, value, _ := strings.Cut(strings.TrimSpace(p), "=")
		var err error
		switch key {
		case "size":
			o.size, err = strconv.Atoi(value)
		case "offset":
			o.offset, err = strconv.Atoi(value)
		case "enum":
			o.enum = value
		case "unit":
			var ok bool
			o.unit, ok = duration.ParseUnit(value)
			assertError(ok, api.ErrInvalidDescriptor, "field %s: unknown unit %q", field, value)
		case "dims":
			for _, d := range strings.Split(value, "x") {
				n, e := strconv.Atoi(d)
				if e != nil {
					err = e
					break
				}
				o.dims = append(o.dims, n)
			}
		default:
			failError(api.ErrInvalidDescriptor, "field %s: unknown tag option %q", field, key)
		}
		if err != nil {
			failError(api.ErrInvalidDescriptor, "field %s: tag option %q: %v", field, p, err)
		}
	}
	return o
}

// InferType derives a packed record type from the exported fields of the
// struct type t.  Field tags of the form
//
//	`h5:"name,size=16,enum=Color,unit=ms,offset=8,dims=3x4"`
//
// rename the member and supply what the Go type can't express.  A tag name
// of "-" skips the field.  Enumeration names are looked up in enums.
//
// Go arrays become fixed arrays; other slices become variable-length
// arrays unless dims is given; []byte with a size is an opaque blob;
// strings need a size; time.Time is a timestamp; time.Duration and
// duration.TimeDuration are durations.
func InferType(t reflect.Type, enums map[string]*enumtype.Type) (rt *Type, err error) {
	defer thrower.RecoverError(&err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	assertError(t.Kind() == reflect.Struct, api.ErrUnresolvedType, "%s is not a struct", t)
	b := NewTypeBuilder(t.Name())
	for _, f := range structFields(t) {
		o := parseTag(f.field.Name, f.tag)
		st, opts := inferMember(f, o, enums)
		if o.offset >= 0 {
			opts = append(opts, AtOffset(o.offset))
		}
		b.Member(f.name, st, opts...)
	}
	rt, err = b.Build()
	thrower.ThrowIfError(err)
	return rt, nil
}

func inferMember(f fieldInfo, o tagOptions, enums map[string]*enumtype.Type) (SemanticType, []MemberOption) {
	ft := f.field.Type
	var dims []int
	shape := ShapeScalar
	switch {
	case o.dims != nil:
		shape, dims = ShapeFixedArray, o.dims
		for isListType(ft) && ft != bytesType {
			ft = ft.Elem()
		}
	case ft.Kind() == reflect.Array:
		shape = ShapeFixedArray
		for ft.Kind() == reflect.Array {
			dims = append(dims, ft.Len())
			ft = ft.Elem()
		}
	case ft.Kind() == reflect.Slice && !(ft == bytesType && o.size > 0):
		shape = ShapeVariableArray
		ft = ft.Elem()
	}
	kind, opts := inferKind(f, ft, o, enums)
	st := SemanticType{Shape: shape, Kind: kind, Dims: dims}
	return st, opts
}

func inferKind(f fieldInfo, ft reflect.Type, o tagOptions, enums map[string]*enumtype.Type) (Kind, []MemberOption) {
	if o.enum != "" {
		e, has := enums[o.enum]
		assertError(has, api.ErrUnresolvedType, "field %s: unknown enumeration %q", f.field.Name, o.enum)
		return KindEnum, []MemberOption{WithEnum(e)}
	}
	switch {
	case ft == enumValueType:
		failError(api.ErrUnresolvedType, "field %s: enumeration value needs an enum tag", f.field.Name)
	case ft == timeType:
		return KindTimestamp, nil
	case ft == goDurationType || ft == timeDurationType:
		return KindTimeDuration, []MemberOption{WithUnit(o.unit)}
	case ft == bytesType:
		return KindOpaque, []MemberOption{WithSize(o.size)}
	case ft.Kind() == reflect.String:
		assertError(o.size > 0, api.ErrInvalidDescriptor, "field %s: string needs a size", f.field.Name)
		return KindString, []MemberOption{WithSize(o.size)}
	}
	k, has := kindOfGoKind[ft.Kind()]
	assertError(has, api.ErrUnresolvedType, "field %s: no member kind for %s", f.field.Name, ft)
	return k, nil
}
