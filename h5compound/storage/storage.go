// Package storage implements api.Backend on top of ordered key-value stores:
// an in-memory map, bbolt and pebble.
//
// Every store holds the same keys.  Committed types, location metadata and
// attributes are msgpack encoded; raw record data is split into fixed-size
// chunks so that block reads and writes touch only the chunks they cover.
// Chunks never written read as the location's fill value.
package storage

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/batchatco/go-h5compound/h5compound/api"
	"github.com/batchatco/go-h5compound/h5compound/util"
	"github.com/batchatco/go-h5compound/internal"
	"github.com/batchatco/go-thrower"
	"github.com/segmentio/ksuid"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	logger = util.NewLogger("storage")
	log    = "don't use the log package" // prevents usage of standard log package
)

// SetLogLevel sets the level of this package's logger and returns the old one.
func SetLogLevel(level int) int {
	return logger.SetLogLevel(level)
}

const (
	// DefaultChunkSize is the size in bytes of a raw data chunk.
	DefaultChunkSize = 1 << 16

	heapCollectionSize = 1 << 12
)

// key prefixes
const (
	prefixType     = 't'
	prefixTypeDesc = 'd'
	prefixLocation = 'l'
	prefixChunk    = 'c'
	prefixAttr     = 'a'
	prefixHeap     = 'h'
)

var keyHeapSeq = []byte("heapseq")

// kvStore is the minimal store the backend needs.
type kvStore interface {
	// get returns nil for missing keys.  The result is owned by the caller.
	get(key []byte) ([]byte, error)
	put(key, value []byte) error
	close() error
}

// Options are common to all backends.
type Options struct {
	// ChunkSize is the size of raw data chunks; DefaultChunkSize if 0.
	ChunkSize int
}

// Backend is an api.Backend over a key-value store.  A single mutex
// serializes all operations.
type Backend struct {
	store     kvStore
	name      string
	chunkSize int64
	lock      sync.Mutex
	closed    bool
}

var _ api.Backend = (*Backend)(nil)

func newBackend(store kvStore, name string, opts Options) *Backend {
	cs := opts.ChunkSize
	if cs <= 0 {
		cs = DefaultChunkSize
	}
	logger.Infof("%s backend, chunk size %d", name, cs)
	return &Backend{store: store, name: name, chunkSize: int64(cs)}
}

type locationMeta struct {
	TypeID    string   `msgpack:"t"`
	Dims      []int64  `msgpack:"d"`
	BlockDims []int    `msgpack:"b,omitempty"`
	Fill      []byte   `msgpack:"f,omitempty"`
	Size      int64    `msgpack:"z"`
	Attrs     []string `msgpack:"a,omitempty"`
}

type attrMeta struct {
	TypeID string `msgpack:"t"`
	Data   []byte `msgpack:"v"`
}

func encodeMeta(v any) []byte {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	thrower.ThrowIfError(err)
	return buf.Bytes()
}

func decodeMeta(raw []byte, v any) {
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(raw))
	err := dec.Decode(v)
	msgpack.PutDecoder(dec)
	if err != nil {
		thrower.Throw(fmt.Errorf("%w: corrupt metadata: %v", api.ErrFormat, err))
	}
}

func key(prefix byte, parts ...string) []byte {
	k := []byte{prefix}
	for i, p := range parts {
		if i > 0 {
			k = append(k, 0)
		}
		k = append(k, p...)
	}
	return k
}

func chunkKey(location string, chunk int64) []byte {
	var buf bytes.Buffer
	buf.Write(key(prefixChunk, location))
	buf.WriteByte(0)
	util.MustWriteBE(&buf, uint64(chunk))
	return buf.Bytes()
}

func heapKey(addr uint64, index uint32) []byte {
	var buf bytes.Buffer
	buf.WriteByte(prefixHeap)
	util.MustWriteBE(&buf, addr)
	util.MustWriteBE(&buf, index)
	return buf.Bytes()
}

func (b *Backend) enter() {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		thrower.Throw(fmt.Errorf("%w: %s backend", api.ErrClosed, b.name))
	}
}

func (b *Backend) leave() {
	b.lock.Unlock()
}

func (b *Backend) mustGet(k []byte) []byte {
	v, err := b.store.get(k)
	thrower.ThrowIfError(err)
	return v
}

func (b *Backend) mustPut(k, v []byte) {
	thrower.ThrowIfError(b.store.put(k, v))
}

func checkName(kind, name string) {
	if !internal.IsValidMemberName(name) {
		thrower.Throw(fmt.Errorf("%w: %s name %q", api.ErrInvalidDescriptor, kind, name))
	}
}

func (b *Backend) loadType(id string) api.TypeHandle {
	raw := b.mustGet(key(prefixType, id))
	if raw == nil {
		thrower.Throw(fmt.Errorf("%w: type %s", api.ErrNotFound, id))
	}
	kid, err := ksuid.Parse(id)
	if err != nil {
		thrower.Throw(fmt.Errorf("%w: type id %q: %v", api.ErrFormat, id, err))
	}
	h := api.TypeHandle{ID: kid}
	decodeMeta(raw, &h.Desc)
	return h
}

func (b *Backend) mustType(typ api.TypeHandle) {
	if b.mustGet(key(prefixType, typ.ID.String())) == nil {
		thrower.Throw(fmt.Errorf("%w: type %s was not committed", api.ErrNotFound, typ.ID))
	}
}

func (b *Backend) loadLocation(name string) *locationMeta {
	raw := b.mustGet(key(prefixLocation, name))
	if raw == nil {
		thrower.Throw(fmt.Errorf("%w: location %q", api.ErrNotFound, name))
	}
	var m locationMeta
	decodeMeta(raw, &m)
	return &m
}

func (b *Backend) CreateOrOpenCompoundType(desc api.CompoundDescription) (h api.TypeHandle, err error) {
	defer thrower.RecoverError(&err)
	b.enter()
	defer b.leave()
	if desc.Size <= 0 {
		thrower.Throw(fmt.Errorf("%w: type %q has size %d", api.ErrInvalidDescriptor, desc.Name, desc.Size))
	}
	descKey := append([]byte{prefixTypeDesc}, encodeMeta(desc)...)
	if id := b.mustGet(descKey); id != nil {
		return b.loadType(string(id)), nil
	}
	id := ksuid.New()
	b.mustPut(key(prefixType, id.String()), encodeMeta(desc))
	b.mustPut(descKey, []byte(id.String()))
	logger.Infof("committed type %q as %s", desc.Name, id)
	return api.TypeHandle{ID: id, Desc: desc}, nil
}

func (b *Backend) CreateLocation(name string, typ api.TypeHandle, dims []int64, blockDims []int, fill []byte) (err error) {
	defer thrower.RecoverError(&err)
	b.enter()
	defer b.leave()
	checkName("location", name)
	b.mustType(typ)
	if b.mustGet(key(prefixLocation, name)) != nil {
		thrower.Throw(fmt.Errorf("%w: location %q exists", api.ErrInvalidDescriptor, name))
	}
	count := int64(1)
	for _, d := range dims {
		if d < 0 {
			thrower.Throw(fmt.Errorf("%w: location %q has dimensions %v", api.ErrInvalidDescriptor, name, dims))
		}
		count *= d
	}
	if fill != nil && len(fill) != typ.Desc.Size {
		thrower.Throw(fmt.Errorf("%w: fill value of %d bytes for records of %d", api.ErrSizeMismatch,
			len(fill), typ.Desc.Size))
	}
	m := locationMeta{
		TypeID:    typ.ID.String(),
		Dims:      slices.Clone(dims),
		BlockDims: slices.Clone(blockDims),
		Fill:      bytes.Clone(fill),
		Size:      count * int64(typ.Desc.Size),
	}
	b.mustPut(key(prefixLocation, name), encodeMeta(&m))
	logger.Infof("created location %q: %v x %d bytes", name, dims, typ.Desc.Size)
	return nil
}

func (b *Backend) OpenLocation(name string) (info api.LocationInfo, err error) {
	defer thrower.RecoverError(&err)
	b.enter()
	defer b.leave()
	m := b.loadLocation(name)
	return api.LocationInfo{
		Name:       name,
		Type:       b.loadType(m.TypeID),
		Dimensions: m.Dims,
		BlockDims:  m.BlockDims,
		FillValue:  m.Fill,
	}, nil
}

func (b *Backend) checkRange(name string, m *locationMeta, off, n int64) {
	if off < 0 || n < 0 || off+n > m.Size {
		thrower.Throw(fmt.Errorf("%w: %d bytes at %d of location %q holding %d", api.ErrOutOfRange,
			n, off, name, m.Size))
	}
}

// chunkLength is the stored length of a chunk; the last one may be short.
func (b *Backend) chunkLength(m *locationMeta, chunk int64) int64 {
	return min(b.chunkSize, m.Size-chunk*b.chunkSize)
}

// walkChunks calls fn for each chunk overlapping [off, off+n) with the
// chunk index, the offset inside the chunk, the offset inside the request
// and the length.
func (b *Backend) walkChunks(off, n int64, fn func(chunk, chunkOff, pos, length int64)) {
	for pos := off; pos < off+n; {
		chunk, chunkOff := pos/b.chunkSize, pos%b.chunkSize
		length := min(b.chunkSize-chunkOff, off+n-pos)
		fn(chunk, chunkOff, pos-off, length)
		pos += length
	}
}

func fillAt(p []byte, fill []byte, offset int64) {
	_, err := io.ReadFull(internal.NewFillValueReader(fill, offset), p)
	thrower.ThrowIfError(err)
}

func (b *Backend) ReadRaw(location string, byteOffset, length int64) (data []byte, err error) {
	defer thrower.RecoverError(&err)
	b.enter()
	defer b.leave()
	m := b.loadLocation(location)
	b.checkRange(location, m, byteOffset, length)
	data = make([]byte, length)
	b.walkChunks(byteOffset, length, func(chunk, chunkOff, pos, n int64) {
		raw := b.mustGet(chunkKey(location, chunk))
		if raw == nil {
			fillAt(data[pos:pos+n], m.Fill, byteOffset+pos)
			return
		}
		if int64(len(raw)) < chunkOff+n {
			thrower.Throw(fmt.Errorf("%w: chunk %d of %q has %d bytes", api.ErrFormat, chunk, location, len(raw)))
		}
		copy(data[pos:pos+n], raw[chunkOff:chunkOff+n])
	})
	return data, nil
}

func (b *Backend) WriteRaw(location string, byteOffset int64, data []byte) (err error) {
	defer thrower.RecoverError(&err)
	b.enter()
	defer b.leave()
	m := b.loadLocation(location)
	length := int64(len(data))
	b.checkRange(location, m, byteOffset, length)
	b.walkChunks(byteOffset, length, func(chunk, chunkOff, pos, n int64) {
		k := chunkKey(location, chunk)
		raw := b.mustGet(k)
		if raw == nil {
			raw = make([]byte, b.chunkLength(m, chunk))
			if chunkOff != 0 || n != int64(len(raw)) {
				fillAt(raw, m.Fill, chunk*b.chunkSize)
			}
		}
		copy(raw[chunkOff:chunkOff+n], data[pos:pos+n])
		b.mustPut(k, raw)
	})
	return nil
}

func (b *Backend) QueryDimensions(location string) (dims []int64, err error) {
	defer thrower.RecoverError(&err)
	b.enter()
	defer b.leave()
	return b.loadLocation(location).Dims, nil
}

func (b *Backend) QueryElementCount(location string) (count int64, err error) {
	defer thrower.RecoverError(&err)
	b.enter()
	defer b.leave()
	count = 1
	for _, d := range b.loadLocation(location).Dims {
		count *= d
	}
	return count, nil
}

func (b *Backend) SetAttribute(location, name string, typ api.TypeHandle, data []byte) (err error) {
	defer thrower.RecoverError(&err)
	b.enter()
	defer b.leave()
	checkName("attribute", name)
	b.mustType(typ)
	if len(data)%typ.Desc.Size != 0 {
		thrower.Throw(fmt.Errorf("%w: attribute %q of %d bytes for records of %d", api.ErrSizeMismatch,
			name, len(data), typ.Desc.Size))
	}
	m := b.loadLocation(location)
	if !slices.Contains(m.Attrs, name) {
		m.Attrs = append(m.Attrs, name)
		b.mustPut(key(prefixLocation, location), encodeMeta(m))
	}
	b.mustPut(key(prefixAttr, location, name), encodeMeta(&attrMeta{TypeID: typ.ID.String(), Data: data}))
	return nil
}

func (b *Backend) Attribute(location, name string) (typ api.TypeHandle, data []byte, err error) {
	defer thrower.RecoverError(&err)
	b.enter()
	defer b.leave()
	b.loadLocation(location)
	raw := b.mustGet(key(prefixAttr, location, name))
	if raw == nil {
		thrower.Throw(fmt.Errorf("%w: attribute %q of %q", api.ErrNotFound, name, location))
	}
	var a attrMeta
	decodeMeta(raw, &a)
	return b.loadType(a.TypeID), a.Data, nil
}

func (b *Backend) ListAttributes(location string) (names []string, err error) {
	defer thrower.RecoverError(&err)
	b.enter()
	defer b.leave()
	return slices.Clone(b.loadLocation(location).Attrs), nil
}

// PutHeap stores data as the next object of the current heap collection.
func (b *Backend) PutHeap(data []byte) (addr uint64, index uint32, err error) {
	defer thrower.RecoverError(&err)
	b.enter()
	defer b.leave()
	var seq uint64
	if raw := b.mustGet(keyHeapSeq); raw != nil {
		util.MustReadBE(bytes.NewReader(raw), &seq)
	}
	addr = seq/heapCollectionSize + 1
	index = uint32(seq % heapCollectionSize)
	var next bytes.Buffer
	util.MustWriteBE(&next, seq+1)
	b.mustPut(heapKey(addr, index), bytes.Clone(data))
	b.mustPut(keyHeapSeq, next.Bytes())
	return addr, index, nil
}

func (b *Backend) GetHeap(addr uint64, index uint32) (data []byte, err error) {
	defer thrower.RecoverError(&err)
	b.enter()
	defer b.leave()
	data = b.mustGet(heapKey(addr, index))
	if data == nil {
		thrower.Throw(fmt.Errorf("%w: heap object %d/%d", api.ErrNotFound, addr, index))
	}
	return data, nil
}

// Close closes the underlying store.  Later calls fail with api.ErrClosed.
func (b *Backend) Close() (err error) {
	defer thrower.RecoverError(&err)
	b.enter()
	defer b.leave()
	b.closed = true
	logger.Infof("closing %s backend", b.name)
	return b.store.close()
}
