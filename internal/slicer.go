package internal

import (
	"github.com/batchatco/go-h5compound/h5compound/api"
)

type slice struct {
	getSlice   func(begin, end int64) (any, error)
	length     int64
	recordType string
}

func (sl *slice) GetSlice(begin, end int64) (any, error) {
	return sl.getSlice(begin, end)
}

func (sl *slice) Values() (any, error) {
	return sl.getSlice(0, sl.length)
}

func (sl *slice) Len() int64 {
	return sl.length
}

func (sl *slice) RecordType() string {
	return sl.recordType
}

// NewSlicer returns a getter for length records read through getSlice.
func NewSlicer(getSlice func(begin, end int64) (any, error), length int64,
	recordType string) api.RecordGetter {
	return &slice{
		getSlice:   getSlice,
		length:     length,
		recordType: recordType,
	}
}
