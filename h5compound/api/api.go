// Package api is common to the record engine and the storage backends.
//
// The storage backend is a black box reachable through the narrow Backend
// contract below. Type descriptions crossing that boundary use the
// serializable CompoundDescription rather than the engine's planned types.
package api

import (
	"github.com/segmentio/ksuid"
)

// MemberDescription is the serializable form of a single compound member.
type MemberDescription struct {
	Name       string   `msgpack:"n"`
	Kind       string   `msgpack:"k"`
	Shape      string   `msgpack:"s"`
	Dims       []int    `msgpack:"d,omitempty"`
	Size       int      `msgpack:"z,omitempty"`
	Unit       string   `msgpack:"u,omitempty"`
	EnumName   string   `msgpack:"en,omitempty"`
	EnumValues []string `msgpack:"ev,omitempty"`
	Offset     int      `msgpack:"o"`
}

// CompoundDescription is the serializable form of a compound record type.
type CompoundDescription struct {
	Name    string              `msgpack:"n,omitempty"`
	Size    int                 `msgpack:"z"`
	Members []MemberDescription `msgpack:"m"`
}

// TypeHandle identifies a committed compound type inside a backend.
type TypeHandle struct {
	ID   ksuid.KSUID
	Desc CompoundDescription
}

// LocationInfo describes an array of records stored at a named location.
type LocationInfo struct {
	Name       string
	Type       TypeHandle
	Dimensions []int64
	BlockDims  []int
	FillValue  []byte
}

// RecordGetter reads a one-dimensional array of records lazily.
type RecordGetter interface {
	// Len is the number of records.
	Len() int64
	// Values reads every record.
	Values() (any, error)
	// GetSlice reads records begin (inclusive) to end (exclusive).
	GetSlice(begin, end int64) (any, error)
	// RecordType is the Go type of each record.
	RecordType() string
}

// Heap stores variable-length sequences referenced from records.
type Heap interface {
	// PutHeap stores data and returns the collection address and object index.
	PutHeap(data []byte) (addr uint64, index uint32, err error)
	// GetHeap returns the data stored at the given address and index.
	GetHeap(addr uint64, index uint32) ([]byte, error)
}

// Backend is the storage collaborator.  Implementations serialize access
// to their underlying store themselves.
type Backend interface {
	Heap

	// CreateOrOpenCompoundType commits desc, or returns the handle of an
	// identical type committed earlier.
	CreateOrOpenCompoundType(desc CompoundDescription) (TypeHandle, error)

	// CreateLocation creates a new array of records.  An empty dims slice
	// makes a scalar location holding one record.
	CreateLocation(name string, typ TypeHandle, dims []int64, blockDims []int, fill []byte) error

	// OpenLocation returns the description of an existing location or ErrNotFound.
	OpenLocation(name string) (LocationInfo, error)

	// ReadRaw reads length bytes starting at byteOffset.  Regions never
	// written read as the location's fill value.
	ReadRaw(location string, byteOffset, length int64) ([]byte, error)

	// WriteRaw writes data at byteOffset.
	WriteRaw(location string, byteOffset int64, data []byte) error

	// QueryDimensions returns the dimensions of the location.
	QueryDimensions(location string) ([]int64, error)

	// QueryElementCount returns the number of records in the location.
	QueryElementCount(location string) (int64, error)

	SetAttribute(location, name string, typ TypeHandle, data []byte) error
	// Attribute returns the attribute's type and raw bytes, or ErrNotFound.
	Attribute(location, name string) (TypeHandle, []byte, error)
	// ListAttributes returns attribute names in creation order.
	ListAttributes(location string) ([]string, error)

	Close() error
}
