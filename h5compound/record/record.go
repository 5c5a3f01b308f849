// Package record lays out compound records and converts them to and from
// their packed on-disk form.
//
// A Type describes the members of a record: name, semantic type and byte
// offset.  NewByteifyer plans one MemberByteifyer per member against a
// Container (structs, maps, ordered maps, lists or arrays of any) and composes
// them into a Byteifyer that converts whole records and arrays of records.
//
// Planning does all type dispatch once.  The resulting byteifyers are
// immutable and may be shared between goroutines.
package record

import (
	"github.com/batchatco/go-h5compound/h5compound/util"
)

var (
	logger = util.NewLogger("record")
	log    = "don't use the log package" // prevents usage of standard log package
)

// SetLogLevel sets the level of this package's logger and returns the old one.
func SetLogLevel(level int) int {
	return logger.SetLogLevel(level)
}
