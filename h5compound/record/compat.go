package record

import (
	"fmt"

	"github.com/batchatco/go-h5compound/h5compound/api"
)

// CheckCompatible fails with api.ErrTypeMismatch unless mem and disk lay out
// records identically: same record size, same members in the same order
// with equal names, semantic types, element sizes, units, enumeration
// values and offsets.  Type names are not compared.
func CheckCompatible(mem, disk *Type) error {
	if mem == nil || disk == nil {
		return fmt.Errorf("%w: missing record type", api.ErrTypeMismatch)
	}
	mismatch := func(format string, v ...any) error {
		msg := fmt.Sprintf(format, v...)
		logger.Info("type mismatch", mem.name, disk.name, msg)
		return fmt.Errorf("%w: %s", api.ErrTypeMismatch, msg)
	}
	if mem.size != disk.size {
		return mismatch("record size %d, on disk %d", mem.size, disk.size)
	}
	if len(mem.members) != len(disk.members) {
		return mismatch("%d members, on disk %d", len(mem.members), len(disk.members))
	}
	for i := range mem.members {
		m, d := &mem.members[i], &disk.members[i]
		switch {
		case m.Name != d.Name:
			return mismatch("member %d is %q, on disk %q", i, m.Name, d.Name)
		case !m.Type.equal(d.Type):
			return mismatch("member %q is %s, on disk %s", m.Name, m.Type, d.Type)
		case m.ElementSize() != d.ElementSize():
			return mismatch("member %q has %d-byte elements, on disk %d", m.Name, m.ElementSize(), d.ElementSize())
		case m.DiskOffset != d.DiskOffset:
			return mismatch("member %q at offset %d, on disk %d", m.Name, m.DiskOffset, d.DiskOffset)
		case m.Type.Kind == KindTimeDuration && m.Unit != d.Unit:
			return mismatch("member %q in %s, on disk %s", m.Name, m.Unit, d.Unit)
		case m.Type.Kind == KindEnum && !m.Enum.Equal(d.Enum):
			return mismatch("member %q is %s, on disk %s", m.Name, m.Enum, d.Enum)
		}
	}
	return nil
}
