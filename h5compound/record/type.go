package record

import (
	"fmt"
	"sort"
	"strings"

	"github.com/batchatco/go-h5compound/h5compound/api"
	"github.com/batchatco/go-h5compound/h5compound/duration"
	"github.com/batchatco/go-h5compound/h5compound/enumtype"
	"github.com/batchatco/go-h5compound/h5compound/primitive"
	"github.com/batchatco/go-h5compound/internal"
)

// EnumRepr selects how enumeration members decode into dynamic containers.
// Struct fields pick their representation from the field's Go type instead.
type EnumRepr int

const (
	// ReprWrapper decodes to enumtype.Value.
	ReprWrapper EnumRepr = iota
	// ReprName decodes to the value's name.
	ReprName
	// ReprOrdinal decodes to the ordinal as an int.
	ReprOrdinal
	// ReprNative decodes to a caller-defined integer type; only struct fields
	// can supply that type.
	ReprNative
)

// Size of a variable-length reference: sequence length, heap collection
// address and object index.
const vlenRefSize = 4 + 8 + 4

// MemberSpec describes one member of a record type.
type MemberSpec struct {
	Name string
	Type SemanticType

	// Enum is the enumeration type of KindEnum members.
	Enum     *enumtype.Type
	EnumRepr EnumRepr
	// Size is the length in bytes of each KindString or KindOpaque element.
	Size int
	// Unit is the stored unit of KindTimeDuration members.
	Unit duration.Unit

	DiskOffset   int
	MemoryOffset int
	ElementCount int

	// Accessor, if set, overrides the accessor chosen by the container.
	Accessor FieldAccessor
}

// ElementSize is the on-disk size of one element.  For variable-length
// members it is the size of the heap reference.
func (m *MemberSpec) ElementSize() int {
	if m.Type.Shape == ShapeVariableArray {
		return vlenRefSize
	}
	return m.baseSize()
}

// DiskSize is the member's on-disk footprint.
func (m *MemberSpec) DiskSize() int {
	return m.ElementSize() * m.ElementCount
}

func (m *MemberSpec) baseSize() int {
	if p, ok := m.Type.Kind.primitive(); ok {
		return primitive.MustLookup(p, nil).Size
	}
	switch m.Type.Kind {
	case KindEnum:
		if m.Enum == nil {
			return 0
		}
		return m.Enum.StorageSize()
	case KindString, KindOpaque:
		return m.Size
	case KindTimestamp, KindTimeDuration:
		return 8
	}
	return 0
}

// alignment of one element in the in-memory representation
func (m *MemberSpec) alignment() int {
	switch {
	case m.Type.Shape == ShapeVariableArray:
		return 8
	case m.Type.Kind == KindString || m.Type.Kind == KindOpaque:
		return 1
	}
	a := m.baseSize()
	if a == 0 {
		return 1
	}
	return a
}

func (m *MemberSpec) memorySize() int {
	if m.Type.Shape == ShapeVariableArray {
		return vlenRefSize
	}
	return m.baseSize() * m.ElementCount
}

// Layout controls the placement of members without an explicit offset.
type Layout int

const (
	// Packed places each member directly after the previous one.
	Packed Layout = iota
	// Aligned places each member at a multiple of its element alignment.
	Aligned
)

// Type is an immutable record type.
type Type struct {
	name    string
	members []MemberSpec
	byName  map[string]int
	size    int
	memSize int
}

func (t *Type) Name() string            { return t.name }
func (t *Type) Size() int               { return t.size }
func (t *Type) MemorySize() int         { return t.memSize }
func (t *Type) NumMembers() int         { return len(t.members) }
func (t *Type) Member(i int) MemberSpec { return t.members[i] }

// Members returns a copy of the member specs in declaration order.
func (t *Type) Members() []MemberSpec {
	m := make([]MemberSpec, len(t.members))
	copy(m, t.members)
	return m
}

// MemberByName returns the named member.
func (t *Type) MemberByName(name string) (MemberSpec, bool) {
	i, has := t.byName[name]
	if !has {
		return MemberSpec{}, false
	}
	return t.members[i], true
}

func (t *Type) String() string {
	members := make([]string, len(t.members))
	for i, m := range t.members {
		members[i] = fmt.Sprintf("\t%s %s @%d;\n", m.Type, m.Name, m.DiskOffset)
	}
	return fmt.Sprintf("compound %s {\n%s} (%d bytes)", t.name, strings.Join(members, ""), t.size)
}

// MemberOption sets optional properties of a member.
type MemberOption func(*MemberSpec)

// AtOffset places the member at an explicit on-disk offset.
func AtOffset(off int) MemberOption {
	return func(m *MemberSpec) { m.DiskOffset = off }
}

func WithEnum(e *enumtype.Type) MemberOption {
	return func(m *MemberSpec) { m.Enum = e }
}

func WithEnumRepr(r EnumRepr) MemberOption {
	return func(m *MemberSpec) { m.EnumRepr = r }
}

// WithSize sets the byte length of string and opaque elements.
func WithSize(n int) MemberOption {
	return func(m *MemberSpec) { m.Size = n }
}

func WithUnit(u duration.Unit) MemberOption {
	return func(m *MemberSpec) { m.Unit = u }
}

func WithAccessor(a FieldAccessor) MemberOption {
	return func(m *MemberSpec) { m.Accessor = a }
}

// TypeBuilder builds a Type member by member.
type TypeBuilder struct {
	name       string
	layout     Layout
	recordSize int
	members    []MemberSpec
}

func NewTypeBuilder(name string) *TypeBuilder {
	return &TypeBuilder{name: name}
}

func (b *TypeBuilder) Layout(l Layout) *TypeBuilder {
	b.layout = l
	return b
}

// RecordSize declares the on-disk record size, leaving trailing padding.
// It must not be smaller than the end of the last member.
func (b *TypeBuilder) RecordSize(n int) *TypeBuilder {
	b.recordSize = n
	return b
}

func (b *TypeBuilder) Member(name string, st SemanticType, opts ...MemberOption) *TypeBuilder {
	m := MemberSpec{Name: name, Type: st, DiskOffset: -1, Unit: duration.Milliseconds}
	for _, o := range opts {
		o(&m)
	}
	b.members = append(b.members, m)
	return b
}

// Build validates the members and computes their offsets.
func (b *TypeBuilder) Build() (*Type, error) {
	return newType(b.name, b.members, b.layout, b.recordSize)
}

// MustBuild is Build for types known to be valid.
func (b *TypeBuilder) MustBuild() *Type {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

func alignUp(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

func validateMember(m *MemberSpec) error {
	if !internal.IsValidMemberName(m.Name) {
		return fmt.Errorf("%w: member name %q", api.ErrInvalidDescriptor, m.Name)
	}
	st := m.Type
	if st.Kind < 0 || st.Kind >= numKinds {
		return fmt.Errorf("%w: member %q has unknown kind %d", api.ErrUnresolvedType, m.Name, st.Kind)
	}
	switch st.Shape {
	case ShapeScalar:
	case ShapeFixedArray:
		if len(st.Dims) == 0 || len(st.Dims) > MaxRank {
			return fmt.Errorf("%w: member %q has rank %d", api.ErrInvalidDescriptor, m.Name, len(st.Dims))
		}
		for _, d := range st.Dims {
			if d < 0 {
				return fmt.Errorf("%w: member %q has dimensions %s", api.ErrInvalidDescriptor,
					m.Name, dimString(st.Dims))
			}
		}
	case ShapeVariableArray:
		if !st.Kind.IsNumeric() {
			return fmt.Errorf("%w: variable-length member %q must be numeric, not %s",
				api.ErrInvalidDescriptor, m.Name, st.Kind)
		}
	default:
		return fmt.Errorf("%w: member %q has unknown shape %d", api.ErrUnresolvedType, m.Name, st.Shape)
	}
	switch st.Kind {
	case KindEnum:
		if m.Enum == nil {
			return fmt.Errorf("%w: no enumeration type for member %q", api.ErrUnresolvedType, m.Name)
		}
	case KindString, KindOpaque:
		if m.Size <= 0 {
			return fmt.Errorf("%w: member %q needs a positive size", api.ErrInvalidDescriptor, m.Name)
		}
		if st.Kind == KindOpaque && st.Shape != ShapeScalar {
			return fmt.Errorf("%w: opaque member %q must be scalar", api.ErrInvalidDescriptor, m.Name)
		}
	case KindTimeDuration:
		if !m.Unit.Valid() {
			return fmt.Errorf("%w: member %q has unit %s", api.ErrInvalidDescriptor, m.Name, m.Unit)
		}
	}
	return nil
}

func newType(name string, specs []MemberSpec, layout Layout, recordSize int) (*Type, error) {
	t := &Type{
		name:    name,
		members: make([]MemberSpec, len(specs)),
		byName:  make(map[string]int, len(specs)),
	}
	copy(t.members, specs)
	end, memEnd, maxAlign := 0, 0, 1
	for i := range t.members {
		m := &t.members[i]
		if err := validateMember(m); err != nil {
			return nil, err
		}
		if _, has := t.byName[m.Name]; has {
			return nil, fmt.Errorf("%w: duplicate member %q", api.ErrInvalidDescriptor, m.Name)
		}
		t.byName[m.Name] = i
		if m.Type.Shape == ShapeFixedArray {
			m.Type.Dims = append([]int(nil), m.Type.Dims...)
		}
		m.ElementCount = m.Type.ElementCount()
		align := m.alignment()
		if align > maxAlign {
			maxAlign = align
		}
		if m.DiskOffset < 0 {
			m.DiskOffset = end
			if layout == Aligned {
				m.DiskOffset = alignUp(end, align)
			}
		}
		if e := m.DiskOffset + m.DiskSize(); e > end {
			end = e
		}
		m.MemoryOffset = alignUp(memEnd, align)
		memEnd = m.MemoryOffset + m.memorySize()
	}
	if err := checkOverlap(t.members); err != nil {
		return nil, err
	}
	if layout == Aligned {
		end = alignUp(end, maxAlign)
	}
	if recordSize != 0 {
		if recordSize < end {
			return nil, fmt.Errorf("%w: record size %d is smaller than its members (%d)",
				api.ErrInvalidDescriptor, recordSize, end)
		}
		end = recordSize
	}
	t.size = end
	t.memSize = alignUp(memEnd, maxAlign)
	logger.Info("record type", name, "size", t.size, "memory size", t.memSize)
	return t, nil
}

func checkOverlap(members []MemberSpec) error {
	order := make([]int, len(members))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return members[order[a]].DiskOffset < members[order[b]].DiskOffset
	})
	for i := 1; i < len(order); i++ {
		prev, cur := &members[order[i-1]], &members[order[i]]
		if prev.DiskSize() > 0 && cur.DiskSize() > 0 && prev.DiskOffset+prev.DiskSize() > cur.DiskOffset {
			return fmt.Errorf("%w: members %q and %q overlap", api.ErrInvalidDescriptor, prev.Name, cur.Name)
		}
	}
	return nil
}

// Describe returns the serializable description of the type.
func (t *Type) Describe() api.CompoundDescription {
	d := api.CompoundDescription{
		Name:    t.name,
		Size:    t.size,
		Members: make([]api.MemberDescription, len(t.members)),
	}
	for i, m := range t.members {
		md := api.MemberDescription{
			Name:   m.Name,
			Kind:   m.Type.Kind.String(),
			Shape:  m.Type.Shape.String(),
			Dims:   append([]int(nil), m.Type.Dims...),
			Size:   m.Size,
			Offset: m.DiskOffset,
		}
		if m.Type.Kind == KindTimeDuration {
			md.Unit = m.Unit.String()
		}
		if m.Enum != nil {
			md.EnumName = m.Enum.Name()
			md.EnumValues = m.Enum.Values()
		}
		d.Members[i] = md
	}
	return d
}

// TypeFromDescription rebuilds a Type from its description.
func TypeFromDescription(d api.CompoundDescription) (*Type, error) {
	b := NewTypeBuilder(d.Name).RecordSize(d.Size)
	for _, md := range d.Members {
		kind, ok := ParseKind(md.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: member %q has kind %q", api.ErrUnresolvedType, md.Name, md.Kind)
		}
		shape, ok := parseShape(md.Shape)
		if !ok {
			return nil, fmt.Errorf("%w: member %q has shape %q", api.ErrUnresolvedType, md.Name, md.Shape)
		}
		st := SemanticType{Shape: shape, Kind: kind, Dims: md.Dims}
		opts := []MemberOption{AtOffset(md.Offset), WithSize(md.Size)}
		if md.Unit != "" {
			u, ok := duration.ParseUnit(md.Unit)
			if !ok {
				return nil, fmt.Errorf("%w: member %q has unit %q", api.ErrUnresolvedType, md.Name, md.Unit)
			}
			opts = append(opts, WithUnit(u))
		}
		if kind == KindEnum {
			e, err := enumtype.New(md.EnumName, md.EnumValues)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithEnum(e))
		}
		b.Member(md.Name, st, opts...)
	}
	return b.Build()
}
