package record

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/batchatco/go-h5compound/h5compound/api"
	"github.com/batchatco/go-h5compound/h5compound/util"
	"github.com/batchatco/go-thrower"
)

type options struct {
	order      binary.ByteOrder
	heap       api.Heap
	recordSize int
}

// Option configures a Byteifyer.
type Option func(*options)

// WithByteOrder sets the byte order of numeric members.  The default is
// little-endian.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(o *options) { o.order = order }
}

// WithHeap sets the heap that stores variable-length members.
func WithHeap(h api.Heap) Option {
	return func(o *options) { o.heap = h }
}

// MemberByteifyer converts one member between a record container and the
// member's byte range of a packed record.
type MemberByteifyer struct {
	spec        MemberSpec
	accessor    FieldAccessor
	elementSize int
	encode      func(rec reflect.Value, buf []byte)
	decode      func(buf []byte, rec reflect.Value)
}

func (mb *MemberByteifyer) Spec() MemberSpec { return mb.spec }
func (mb *MemberByteifyer) Name() string     { return mb.spec.Name }
func (mb *MemberByteifyer) ElementSize() int { return mb.elementSize }
func (mb *MemberByteifyer) Size() int        { return mb.spec.DiskSize() }
func (mb *MemberByteifyer) Offset() int      { return mb.spec.DiskOffset }
func (mb *MemberByteifyer) Accessor() FieldAccessor {
	return mb.accessor
}

// Encode writes the member of rec into its byte range of buf, a whole record.
func (mb *MemberByteifyer) Encode(rec any, buf []byte) (err error) {
	defer thrower.RecoverError(&err)
	mb.checkBuffer(buf)
	mb.encode(reflect.ValueOf(rec), buf)
	return nil
}

// Decode reads the member from buf, a whole record, into rec.  Struct
// records must be passed by pointer.
func (mb *MemberByteifyer) Decode(buf []byte, rec any) (err error) {
	defer thrower.RecoverError(&err)
	mb.checkBuffer(buf)
	mb.decode(buf, reflect.ValueOf(rec))
	return nil
}

func (mb *MemberByteifyer) checkBuffer(buf []byte) {
	end := mb.spec.DiskOffset + mb.spec.DiskSize()
	assertError(len(buf) >= end, api.ErrSizeMismatch,
		"member %q ends at %d, buffer has %d bytes", mb.spec.Name, end, len(buf))
}

// Byteifyer converts whole records of one Type held in one kind of Container.
type Byteifyer struct {
	t       *Type
	c       Container
	order   binary.ByteOrder
	members []*MemberByteifyer
}

// NewByteifyer plans every member of t against the container c.  All type
// dispatch and shape checks that don't depend on values happen here.
func NewByteifyer(t *Type, c Container, opts ...Option) (b *Byteifyer, err error) {
	defer thrower.RecoverError(&err)
	assertError(t != nil, api.ErrUnresolvedType, "no record type")
	o := &options{order: binary.LittleEndian, recordSize: t.Size()}
	for _, opt := range opts {
		opt(o)
	}
	b = &Byteifyer{t: t, c: c, order: o.order, members: make([]*MemberByteifyer, t.NumMembers())}
	for i, m := range t.members {
		acc := m.Accessor
		if acc == nil {
			acc = c.accessor(i, m)
		}
		b.members[i] = planMember(m, acc, o)
	}
	logger.Infof("byteifyer for %s: %d members, %d bytes, %s", t.name, len(b.members), t.size,
		util.ByteOrderName(o.order))
	return b, nil
}

// MustNewByteifyer is NewByteifyer for plans known to be valid.
func MustNewByteifyer(t *Type, c Container, opts ...Option) *Byteifyer {
	b, err := NewByteifyer(t, c, opts...)
	if err != nil {
		panic(err)
	}
	return b
}

func (b *Byteifyer) Type() *Type                 { return b.t }
func (b *Byteifyer) RecordSize() int             { return b.t.size }
func (b *Byteifyer) RecordType() reflect.Type    { return b.c.recordType() }
func (b *Byteifyer) ByteOrder() binary.ByteOrder { return b.order }

// Members returns the member byteifyers in declaration order.
func (b *Byteifyer) Members() []*MemberByteifyer {
	return append([]*MemberByteifyer(nil), b.members...)
}

func stripInterface(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	return v
}

func (b *Byteifyer) encodeOne(rec reflect.Value, buf []byte) {
	rec = stripInterface(rec)
	assertError(rec.IsValid(), api.ErrInvalidValue, "nil record")
	clear(buf)
	for _, mb := range b.members {
		mb.encode(rec, buf)
	}
}

func (b *Byteifyer) decodeOne(buf []byte) reflect.Value {
	rec := b.c.newRecord(b.t)
	for _, mb := range b.members {
		mb.decode(buf, rec)
	}
	return b.c.result(rec)
}

// ByteifyOne encodes one record into exactly RecordSize bytes.
func (b *Byteifyer) ByteifyOne(rec any) (buf []byte, err error) {
	defer thrower.RecoverError(&err)
	buf = make([]byte, b.t.size)
	b.encodeOne(reflect.ValueOf(rec), buf)
	return buf, nil
}

// ByteifyOneInto encodes one record into buf, which must be RecordSize bytes.
func (b *Byteifyer) ByteifyOneInto(rec any, buf []byte) (err error) {
	defer thrower.RecoverError(&err)
	assertError(len(buf) == b.t.size, api.ErrSizeMismatch,
		"buffer of %d bytes for a record of %d", len(buf), b.t.size)
	b.encodeOne(reflect.ValueOf(rec), buf)
	return nil
}

// Byteify encodes a slice or array of records.
func (b *Byteifyer) Byteify(records any) (buf []byte, err error) {
	defer thrower.RecoverError(&err)
	v := indirect(reflect.ValueOf(records))
	assertError(isList(v), api.ErrInvalidValue, "%T is not a slice or array of records", records)
	size := b.t.size
	buf = make([]byte, v.Len()*size)
	for i := 0; i < v.Len(); i++ {
		b.encodeOne(v.Index(i), buf[i*size:(i+1)*size])
	}
	return buf, nil
}

func (b *Byteifyer) isRecord(v reflect.Value) bool {
	v = stripInterface(v)
	if !v.IsValid() {
		return false
	}
	rt := b.c.recordType()
	return v.Type() == rt || v.Type() == reflect.PointerTo(rt)
}

// ByteifyMD encodes a rectangular nest of slices or arrays of records in
// row-major order and returns the dimensions of the nest.
func (b *Byteifyer) ByteifyMD(records any) (buf []byte, dims []int, err error) {
	defer thrower.RecoverError(&err)
	v := stripInterface(reflect.ValueOf(records))
	for e := v; !b.isRecord(e); {
		e = stripInterface(e)
		assertError(isList(e), api.ErrInvalidValue, "%s is neither a record nor a list of records", e.Type())
		dims = append(dims, e.Len())
		if e.Len() == 0 {
			break
		}
		e = e.Index(0)
	}
	assertError(len(dims) > 0, api.ErrInvalidValue, "%T is a single record", records)
	size := b.t.size
	buf = make([]byte, product(dims)*size)
	pos := 0
	var walk func(e reflect.Value, level int)
	walk = func(e reflect.Value, level int) {
		e = stripInterface(e)
		if level == len(dims) {
			b.encodeOne(e, buf[pos*size:(pos+1)*size])
			pos++
			return
		}
		if !isList(e) || e.Len() != dims[level] {
			failError(api.ErrShapeMismatch, "ragged records at level %d, declared %s", level, dimString(dims))
		}
		for i := 0; i < e.Len(); i++ {
			walk(e.Index(i), level+1)
		}
	}
	walk(v, 0)
	return buf, dims, nil
}

func (b *Byteifyer) arrayify(raw []byte, count int) reflect.Value {
	size := b.t.size
	assertError(count >= 0 && len(raw) == count*size, api.ErrSizeMismatch,
		"%d bytes for %d records of %d bytes", len(raw), count, size)
	out := reflect.MakeSlice(reflect.SliceOf(b.c.recordType()), count, count)
	for i := 0; i < count; i++ {
		out.Index(i).Set(b.decodeOne(raw[i*size : (i+1)*size]))
	}
	return out
}

// Arrayify decodes exactly count records from raw, which must hold
// count*RecordSize bytes.  The result is a slice of RecordType; it is empty
// but not nil when count is 0.
func (b *Byteifyer) Arrayify(raw []byte, count int) (records any, err error) {
	defer thrower.RecoverError(&err)
	return b.arrayify(raw, count).Interface(), nil
}

// ArrayifyScalar decodes the single record in raw.
func (b *Byteifyer) ArrayifyScalar(raw []byte) (record any, err error) {
	defer thrower.RecoverError(&err)
	assertError(len(raw) == b.t.size, api.ErrSizeMismatch,
		"%d bytes for a record of %d", len(raw), b.t.size)
	return b.decodeOne(raw).Interface(), nil
}

// ArrayifyScalarInto decodes the single record in raw into rec, a pointer to
// a struct for struct containers or the map, ordered map or list to fill.
func (b *Byteifyer) ArrayifyScalarInto(raw []byte, rec any) (err error) {
	defer thrower.RecoverError(&err)
	assertError(len(raw) == b.t.size, api.ErrSizeMismatch,
		"%d bytes for a record of %d", len(raw), b.t.size)
	v := reflect.ValueOf(rec)
	assertError(v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Map || v.Kind() == reflect.Slice),
		api.ErrInvalidValue, "can't decode into %T", rec)
	for _, mb := range b.members {
		mb.decode(raw, v)
	}
	return nil
}

// ArrayifyMD decodes raw into nested slices of records with dimensions dims.
func (b *Byteifyer) ArrayifyMD(raw []byte, dims []int) (records any, err error) {
	defer thrower.RecoverError(&err)
	assertError(len(dims) > 0, api.ErrShapeMismatch, "no dimensions")
	for _, d := range dims {
		assertError(d >= 0, api.ErrShapeMismatch, "dimensions %s", dimString(dims))
	}
	count := product(dims)
	flat := b.arrayify(raw, count)
	pos := 0
	var build func(level int) reflect.Value
	build = func(level int) reflect.Value {
		if level == len(dims)-1 {
			s := flat.Slice3(pos, pos+dims[level], pos+dims[level])
			pos += dims[level]
			return s
		}
		t := flat.Type()
		for range dims[level+1:] {
			t = reflect.SliceOf(t)
		}
		out := reflect.MakeSlice(t, dims[level], dims[level])
		for i := 0; i < dims[level]; i++ {
			out.Index(i).Set(build(level + 1))
		}
		return out
	}
	return build(0).Interface(), nil
}

// ArrayifyAs decodes exactly count records as a []T.  T must be the
// byteifyer's RecordType.
func ArrayifyAs[T any](b *Byteifyer, raw []byte, count int) ([]T, error) {
	records, err := b.Arrayify(raw, count)
	if err != nil {
		return nil, err
	}
	out, ok := records.([]T)
	if !ok {
		return nil, fmt.Errorf("%w: records are %s, not %s", api.ErrInvalidValue,
			b.RecordType(), reflect.TypeFor[T]())
	}
	return out, nil
}

// CheckCompatible fails with api.ErrTypeMismatch unless the byteifyer's type
// has the same layout as disk.
func (b *Byteifyer) CheckCompatible(disk *Type) error {
	return CheckCompatible(b.t, disk)
}
