package record

import (
	"fmt"
	"strings"

	"github.com/batchatco/go-h5compound/h5compound/primitive"
)

// Kind is the element kind of a member.
type Kind int

// The numeric kinds come first, in the same order as primitive.Kind.
const (
	KindInt8 Kind = iota
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindBool
	KindEnum
	KindString
	KindOpaque
	KindTimestamp
	KindTimeDuration
	numKinds
)

var extraKindNames = []string{"enum", "string", "opaque", "timestamp", "duration"}

func (k Kind) String() string {
	if p, ok := k.primitive(); ok {
		return p.String()
	}
	if k > KindBool && k < numKinds {
		return extraKindNames[k-KindEnum]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	if p, ok := primitive.ParseKind(s); ok {
		return Kind(p), true
	}
	for i, n := range extraKindNames {
		if n == s {
			return KindEnum + Kind(i), true
		}
	}
	return 0, false
}

func (k Kind) primitive() (primitive.Kind, bool) {
	if k >= KindInt8 && k <= KindBool {
		return primitive.Kind(k), true
	}
	return 0, false
}

// IsNumeric is true for the kinds handled directly by a primitive codec.
func (k Kind) IsNumeric() bool {
	_, ok := k.primitive()
	return ok
}

// Shape tells whether a member holds one element, a fixed array of them,
// or a variable-length sequence.
type Shape int

const (
	ShapeScalar Shape = iota
	ShapeFixedArray
	ShapeVariableArray
)

var shapeNames = []string{"scalar", "array", "vlen"}

func (s Shape) String() string {
	if s < ShapeScalar || s > ShapeVariableArray {
		return fmt.Sprintf("Shape(%d)", int(s))
	}
	return shapeNames[s]
}

func parseShape(s string) (Shape, bool) {
	for i, n := range shapeNames {
		if n == s {
			return Shape(i), true
		}
	}
	return 0, false
}

// MaxRank is the largest number of dimensions of a fixed array member.
const MaxRank = 32

// SemanticType is the type of a member, decided once when the record type
// is described.
type SemanticType struct {
	Shape Shape
	Kind  Kind
	Dims  []int
}

func Scalar(k Kind) SemanticType {
	return SemanticType{Shape: ShapeScalar, Kind: k}
}

func FixedArray(k Kind, dims ...int) SemanticType {
	d := make([]int, len(dims))
	copy(d, dims)
	return SemanticType{Shape: ShapeFixedArray, Kind: k, Dims: d}
}

func VariableArray(k Kind) SemanticType {
	return SemanticType{Shape: ShapeVariableArray, Kind: k}
}

// ElementCount is the number of elements stored inline: the product of the
// dimensions for fixed arrays, 1 otherwise.
func (st SemanticType) ElementCount() int {
	if st.Shape != ShapeFixedArray {
		return 1
	}
	n := 1
	for _, d := range st.Dims {
		n *= d
	}
	return n
}

// dims returns the dimensions used when walking values: none for scalars.
func (st SemanticType) dims() []int {
	if st.Shape == ShapeFixedArray {
		return st.Dims
	}
	return nil
}

func (st SemanticType) equal(o SemanticType) bool {
	if st.Shape != o.Shape || st.Kind != o.Kind || len(st.Dims) != len(o.Dims) {
		return false
	}
	for i := range st.Dims {
		if st.Dims[i] != o.Dims[i] {
			return false
		}
	}
	return true
}

func (st SemanticType) String() string {
	switch st.Shape {
	case ShapeFixedArray:
		return fmt.Sprintf("%s(%s)", st.Kind, dimString(st.Dims))
	case ShapeVariableArray:
		return fmt.Sprintf("%s(*)", st.Kind)
	}
	return st.Kind.String()
}

func dimString(dims []int) string {
	s := make([]string, len(dims))
	for i, d := range dims {
		s[i] = fmt.Sprint(d)
	}
	return strings.Join(s, "x")
}
