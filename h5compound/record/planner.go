package record

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"time"

	"github.com/batchatco/go-h5compound/h5compound/api"
	"github.com/batchatco/go-h5compound/h5compound/duration"
	"github.com/batchatco/go-h5compound/h5compound/enumtype"
	"github.com/batchatco/go-h5compound/h5compound/primitive"
	"github.com/batchatco/go-h5compound/h5compound/util"
	"github.com/batchatco/go-thrower"
)

var (
	enumValueType    = reflect.TypeOf(enumtype.Value{})
	timeType         = reflect.TypeOf(time.Time{})
	timeDurationType = reflect.TypeOf(duration.TimeDuration{})
	goDurationType   = reflect.TypeOf(time.Duration(0))
	intType          = reflect.TypeOf(int(0))
	stringType       = reflect.TypeOf("")
	bytesType        = reflect.TypeOf([]byte(nil))
)

// leafCodec converts a single element of a member.  put throws on values
// it can't represent.
type leafCodec struct {
	size    int
	natural reflect.Type
	put     func(b []byte, off int, v reflect.Value)
	get     func(b []byte, off int) reflect.Value
}

func isList(v reflect.Value) bool {
	return v.IsValid() && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array)
}

func isListType(t reflect.Type) bool {
	return t != nil && (t.Kind() == reflect.Slice || t.Kind() == reflect.Array)
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// leafTarget strips up to rank levels of arrays and slices from target.
// It returns nil when the leaf type is dynamic.
func leafTarget(target reflect.Type, rank int) reflect.Type {
	for i := 0; i < rank && target != nil; i++ {
		if !isListType(target) {
			break
		}
		target = target.Elem()
	}
	if target == nil || target.Kind() == reflect.Interface {
		return nil
	}
	return target
}

func numericLeaf(name string, k primitive.Kind, order binary.ByteOrder) leafCodec {
	c := primitive.MustLookup(k, order)
	return leafCodec{
		size:    c.Size,
		natural: c.Type,
		put: func(b []byte, off int, v reflect.Value) {
			rv, err := c.Convert(v)
			if err != nil {
				failError(api.ErrInvalidValue, "member %q: %v", name, err)
			}
			c.EncodeValue(rv, b, off)
		},
		get: func(b []byte, off int) reflect.Value {
			return c.DecodeValue(b, off)
		},
	}
}

// resolveRepr picks the decoded representation of an enumeration element
// from the Go type that will hold it.
func resolveRepr(m *MemberSpec, leaf reflect.Type) (EnumRepr, reflect.Type) {
	if leaf == nil {
		if m.EnumRepr == ReprNative {
			// no type to construct; the ordinal is the closest thing
			return ReprOrdinal, nil
		}
		return m.EnumRepr, nil
	}
	switch {
	case leaf == enumValueType:
		return ReprWrapper, nil
	case leaf.Kind() == reflect.String:
		return ReprName, nil
	case leaf == intType:
		return ReprOrdinal, nil
	case isIntegerKind(leaf.Kind()):
		return ReprNative, leaf
	}
	failError(api.ErrUnresolvedType, "member %q: %s can't hold enumeration %s", m.Name, leaf, m.Enum)
	return 0, nil
}

func enumOrdinal(m *MemberSpec, v reflect.Value) int {
	e := m.Enum
	ordinal := -1
	switch {
	case v.Type() == enumValueType:
		ev := v.Interface().(enumtype.Value)
		if ev.Type != nil && !ev.Type.Equal(e) {
			failError(api.ErrInvalidValue, "member %q: value of %s for %s", m.Name, ev.Type, e)
		}
		ordinal = ev.Ordinal
	case v.Kind() == reflect.String:
		ordinal = e.IndexOf(v.String())
		assertError(ordinal >= 0, api.ErrInvalidValue, "member %q: %q is not a value of %s",
			m.Name, v.String(), e)
	case isIntegerKind(v.Kind()):
		if v.CanInt() {
			ordinal = int(v.Int())
		} else if v.Uint() <= uint64(e.Len()) {
			ordinal = int(v.Uint())
		}
	default:
		failError(api.ErrInvalidValue, "member %q: %s is not an enumeration value", m.Name, v.Type())
	}
	assertError(ordinal >= 0 && ordinal < e.Len(), api.ErrInvalidValue,
		"member %q: ordinal %d out of range for %s", m.Name, ordinal, e)
	return ordinal
}

func enumLeaf(m *MemberSpec, order binary.ByteOrder, repr EnumRepr, native reflect.Type) leafCodec {
	e := m.Enum
	form := e.StorageForm()
	lc := leafCodec{
		size: int(form),
		put: func(b []byte, off int, v reflect.Value) {
			enumtype.PutOrdinal(b, off, enumOrdinal(m, v), form, order)
		},
	}
	ordinalAt := func(b []byte, off int) int {
		ordinal := enumtype.GetOrdinal(b, off, form, order)
		assertError(ordinal >= 0 && ordinal < e.Len(), api.ErrFormat,
			"member %q: stored ordinal %d out of range for %s", m.Name, ordinal, e)
		return ordinal
	}
	switch repr {
	case ReprName:
		lc.natural = stringType
		lc.get = func(b []byte, off int) reflect.Value {
			name, _ := e.ValueOf(ordinalAt(b, off))
			return reflect.ValueOf(name)
		}
	case ReprOrdinal:
		lc.natural = intType
		lc.get = func(b []byte, off int) reflect.Value {
			return reflect.ValueOf(ordinalAt(b, off))
		}
	case ReprNative:
		lc.natural = native
		lc.get = func(b []byte, off int) reflect.Value {
			v := reflect.New(native).Elem()
			if v.CanInt() {
				v.SetInt(int64(ordinalAt(b, off)))
			} else {
				v.SetUint(uint64(ordinalAt(b, off)))
			}
			return v
		}
	default:
		lc.natural = enumValueType
		lc.get = func(b []byte, off int) reflect.Value {
			return reflect.ValueOf(enumtype.Value{Type: e, Ordinal: ordinalAt(b, off)})
		}
	}
	return lc
}

// Strings are stored null-padded; a string filling its element has no terminator.
func stringLeaf(m *MemberSpec) leafCodec {
	size := m.Size
	return leafCodec{
		size:    size,
		natural: stringType,
		put: func(b []byte, off int, v reflect.Value) {
			assertError(v.Kind() == reflect.String, api.ErrInvalidValue,
				"member %q: %s is not a string", m.Name, v.Type())
			s := v.String()
			assertError(len(s) <= size, api.ErrInvalidValue,
				"member %q: string of %d bytes exceeds %d", m.Name, len(s), size)
			n := copy(b[off:off+size], s)
			clear(b[off+n : off+size])
		},
		get: func(b []byte, off int) reflect.Value {
			raw := b[off : off+size]
			if i := bytes.IndexByte(raw, 0); i >= 0 {
				raw = raw[:i]
			}
			return reflect.ValueOf(string(raw))
		},
	}
}

func opaqueLeaf(m *MemberSpec) leafCodec {
	size := m.Size
	return leafCodec{
		size:    size,
		natural: bytesType,
		put: func(b []byte, off int, v reflect.Value) {
			assertError(v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8,
				api.ErrInvalidValue, "member %q: %s is not a byte slice", m.Name, v.Type())
			assertError(v.Len() <= size, api.ErrSizeMismatch,
				"member %q: opaque value of %d bytes exceeds %d", m.Name, v.Len(), size)
			n := copy(b[off:off+size], v.Bytes())
			clear(b[off+n : off+size])
		},
		get: func(b []byte, off int) reflect.Value {
			return reflect.ValueOf(bytes.Clone(b[off : off+size]))
		},
	}
}

// Timestamps are milliseconds since the Unix epoch.
func timestampLeaf(m *MemberSpec, order binary.ByteOrder) leafCodec {
	return leafCodec{
		size:    8,
		natural: timeType,
		put: func(b []byte, off int, v reflect.Value) {
			var ms int64
			switch {
			case v.Type() == timeType:
				ms = v.Interface().(time.Time).UnixMilli()
			case v.CanInt():
				ms = v.Int()
			default:
				failError(api.ErrInvalidValue, "member %q: %s is not a timestamp", m.Name, v.Type())
			}
			order.PutUint64(b[off:], uint64(ms))
		},
		get: func(b []byte, off int) reflect.Value {
			return reflect.ValueOf(time.UnixMilli(int64(order.Uint64(b[off:]))))
		},
	}
}

// Durations are stored as an integer count of the member's unit.
func durationLeaf(m *MemberSpec, order binary.ByteOrder, target reflect.Type) leafCodec {
	unit := m.Unit
	lc := leafCodec{
		size:    8,
		natural: timeDurationType,
		put: func(b []byte, off int, v reflect.Value) {
			var d duration.TimeDuration
			var err error
			switch {
			case v.Type() == timeDurationType:
				d, err = v.Interface().(duration.TimeDuration).Exactly(unit)
			case v.Type() == goDurationType:
				d, err = duration.FromDurationExact(time.Duration(v.Int()), unit)
			case v.CanInt():
				d = duration.New(v.Int(), unit)
			default:
				failError(api.ErrInvalidValue, "member %q: %s is not a duration", m.Name, v.Type())
			}
			if err != nil {
				failError(api.ErrInvalidValue, "member %q: %v", m.Name, err)
			}
			order.PutUint64(b[off:], uint64(d.Value))
		},
		get: func(b []byte, off int) reflect.Value {
			return reflect.ValueOf(duration.New(int64(order.Uint64(b[off:])), unit))
		},
	}
	if target == goDurationType {
		lc.natural = goDurationType
		lc.get = func(b []byte, off int) reflect.Value {
			d, err := duration.New(int64(order.Uint64(b[off:])), unit).Duration()
			thrower.ThrowIfError(err)
			return reflect.ValueOf(d)
		}
	}
	return lc
}

func planLeaf(m *MemberSpec, target reflect.Type, o *options) leafCodec {
	rank := len(m.Type.dims())
	if m.Type.Shape == ShapeVariableArray {
		rank = 1
	}
	leaf := leafTarget(target, rank)
	if p, ok := m.Type.Kind.primitive(); ok {
		return numericLeaf(m.Name, p, o.order)
	}
	switch m.Type.Kind {
	case KindEnum:
		assertError(m.Enum != nil, api.ErrUnresolvedType, "no enumeration type for member %q", m.Name)
		repr, native := resolveRepr(m, leaf)
		return enumLeaf(m, o.order, repr, native)
	case KindString:
		return stringLeaf(m)
	case KindOpaque:
		return opaqueLeaf(m)
	case KindTimestamp:
		return timestampLeaf(m, o.order)
	case KindTimeDuration:
		return durationLeaf(m, o.order, leaf)
	}
	failError(api.ErrUnresolvedType, "member %q has kind %s", m.Name, m.Type.Kind)
	return leafCodec{}
}

// checkTargetShape verifies at plan time that a static Go type can hold
// an array with the given dimensions.
func checkTargetShape(m *MemberSpec, target reflect.Type, dims []int) {
	t := target
	for level := 0; level < len(dims); level++ {
		if t == nil || t.Kind() == reflect.Interface {
			return
		}
		switch t.Kind() {
		case reflect.Array:
			assertError(t.Len() == dims[level], api.ErrShapeMismatch,
				"member %q: field type %s can't hold %s", m.Name, target, dimString(dims))
		case reflect.Slice:
		default:
			failError(api.ErrShapeMismatch, "member %q: field type %s can't hold %s",
				m.Name, target, dimString(dims))
		}
		t = t.Elem()
	}
	if m.Type.Kind != KindOpaque && t != nil && isListType(t) {
		failError(api.ErrShapeMismatch, "member %q: field type %s has more dimensions than %s",
			m.Name, target, dimString(dims))
	}
}

// shapeOf reports the dimensions of v by following first elements.
func shapeOf(v reflect.Value) []int {
	var dims []int
	for v = indirect(v); isList(v); {
		dims = append(dims, v.Len())
		if v.Len() == 0 {
			break
		}
		v = indirect(v.Index(0))
	}
	return dims
}

// collect flattens v, which must have the shape dims exactly, into
// row-major order.
func collect(m *MemberSpec, v reflect.Value, dims []int) []reflect.Value {
	total := product(dims)
	out := make([]reflect.Value, 0, total)
	v = indirect(v)
	leafIsList := m.Type.Kind == KindOpaque
	mismatch := func() {
		failError(api.ErrShapeMismatch, "member %q: got %s, declared %s",
			m.Name, dimString(shapeOf(v)), dimString(dims))
	}
	var walk func(e reflect.Value, level int)
	walk = func(e reflect.Value, level int) {
		e = indirect(e)
		if level == len(dims) {
			if !e.IsValid() || (isList(e) && !leafIsList) {
				mismatch()
			}
			out = append(out, e)
			return
		}
		if e.IsValid() && e.Kind() == reflect.Slice && e.IsNil() && dims[level] == 0 {
			return
		}
		if !isList(e) || e.Len() != dims[level] {
			mismatch()
		}
		for i := 0; i < e.Len(); i++ {
			walk(e.Index(i), level+1)
		}
	}
	walk(v, 0)
	return out
}

// reshape builds a value of type target (or of the natural nested slice
// type when target is dynamic) from leaves in row-major order.
func reshape(m *MemberSpec, leaves []reflect.Value, dims []int, target reflect.Type, natural reflect.Type) reflect.Value {
	if target == nil || target.Kind() == reflect.Interface {
		target = natural
		for range dims {
			target = reflect.SliceOf(target)
		}
	}
	pos := 0
	setLeaf := func(dst reflect.Value) {
		thrower.ThrowIfError(assign(dst, leaves[pos], m.Name))
		pos++
	}
	var build func(t reflect.Type, level int) reflect.Value
	build = func(t reflect.Type, level int) reflect.Value {
		if level == len(dims) {
			v := reflect.New(t).Elem()
			setLeaf(v)
			return v
		}
		switch t.Kind() {
		case reflect.Array:
			v := reflect.New(t).Elem()
			for i := 0; i < dims[level]; i++ {
				v.Index(i).Set(build(t.Elem(), level+1))
			}
			return v
		case reflect.Slice:
			v := reflect.MakeSlice(t, dims[level], dims[level])
			for i := 0; i < dims[level]; i++ {
				v.Index(i).Set(build(t.Elem(), level+1))
			}
			return v
		}
		failError(api.ErrShapeMismatch, "member %q: %s can't hold %s", m.Name, t, dimString(dims))
		return reflect.Value{}
	}
	return build(target, 0)
}

// vlenRef is the on-disk reference to a variable-length sequence.
type vlenRef struct {
	Length uint32
	Addr   uint64
	Index  uint32
}

func planMember(spec MemberSpec, acc FieldAccessor, o *options) *MemberByteifyer {
	m := &spec
	target := acc.TargetType()
	mb := &MemberByteifyer{
		spec:        spec,
		accessor:    acc,
		elementSize: m.ElementSize(),
	}
	assertError(m.DiskOffset >= 0 && m.DiskOffset+m.DiskSize() <= o.recordSize, api.ErrSizeMismatch,
		"member %q at %d+%d doesn't fit a record of %d bytes", m.Name, m.DiskOffset, m.DiskSize(), o.recordSize)
	leaf := planLeaf(m, target, o)
	logger.Infof("member %s %s offset=%d size=%d target=%v", m.Name, m.Type, m.DiskOffset, m.DiskSize(), target)

	if m.Type.Shape == ShapeVariableArray {
		planVariableArray(mb, m, leaf, target, o)
		return mb
	}

	dims := m.Type.dims()
	checkTargetShape(m, target, dims)
	count := m.ElementCount
	mb.encode = func(rec reflect.Value, buf []byte) {
		v, err := acc.Get(rec)
		thrower.ThrowIfError(err)
		if !v.IsValid() {
			// unset members keep the zero bytes of the buffer
			return
		}
		off := m.DiskOffset
		for _, e := range collect(m, v, dims) {
			leaf.put(buf, off, e)
			off += leaf.size
		}
	}
	mb.decode = func(buf []byte, rec reflect.Value) {
		leaves := make([]reflect.Value, count)
		off := m.DiskOffset
		for i := range leaves {
			leaves[i] = leaf.get(buf, off)
			off += leaf.size
		}
		thrower.ThrowIfError(acc.Set(rec, reshape(m, leaves, dims, target, leaf.natural)))
	}
	return mb
}

func planVariableArray(mb *MemberByteifyer, m *MemberSpec, leaf leafCodec, target reflect.Type, o *options) {
	assertError(o.heap != nil, api.ErrUnresolvedType,
		"variable-length member %q needs a heap", m.Name)
	if target != nil && target.Kind() != reflect.Interface {
		assertError(target.Kind() == reflect.Slice && !isListType(target.Elem()), api.ErrShapeMismatch,
			"member %q: field type %s can't hold a variable-length sequence", m.Name, target)
	}
	heap, order, a := o.heap, o.order, mb.accessor
	mb.encode = func(rec reflect.Value, buf []byte) {
		v, err := a.Get(rec)
		thrower.ThrowIfError(err)
		var ref vlenRef
		if v.IsValid() {
			assertError(isList(v), api.ErrShapeMismatch, "member %q: got %s, expected a sequence",
				m.Name, v.Type())
			n := v.Len()
			if n > 0 {
				data := make([]byte, n*leaf.size)
				for i := 0; i < n; i++ {
					leaf.put(data, i*leaf.size, indirect(v.Index(i)))
				}
				ref.Length = uint32(n)
				ref.Addr, ref.Index, err = heap.PutHeap(data)
				thrower.ThrowIfError(err)
			}
		}
		var w bytes.Buffer
		util.MustWrite(&w, order, ref)
		copy(buf[m.DiskOffset:m.DiskOffset+vlenRefSize], w.Bytes())
	}
	mb.decode = func(buf []byte, rec reflect.Value) {
		var ref vlenRef
		util.MustRead(bytes.NewReader(buf[m.DiskOffset:m.DiskOffset+vlenRefSize]), order, &ref)
		n := int(ref.Length)
		leaves := make([]reflect.Value, n)
		if n > 0 {
			data, err := heap.GetHeap(ref.Addr, ref.Index)
			thrower.ThrowIfError(err)
			assertError(len(data) == n*leaf.size, api.ErrSizeMismatch,
				"member %q: heap object of %d bytes for %d elements", m.Name, len(data), n)
			for i := range leaves {
				leaves[i] = leaf.get(data, i*leaf.size)
			}
		}
		thrower.ThrowIfError(a.Set(rec, reshape(m, leaves, []int{n}, target, leaf.natural)))
	}
}
