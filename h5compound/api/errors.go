package api

import "errors"

var (
	// ErrShapeMismatch is returned when an array's dimensions don't match the
	// dimensions declared for its member.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrSizeMismatch is returned when a byte buffer's length doesn't match the
	// expected record or member size.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrTypeMismatch is returned when an on-disk compound type differs
	// structurally from the type a byteifyer was planned for.
	ErrTypeMismatch = errors.New("compound type mismatch")

	// ErrUnresolvedType is returned when a member's type cannot be determined
	// at plan time.
	ErrUnresolvedType = errors.New("unresolved member type")

	// ErrFormat is returned for enumeration storage forms that are not 1, 2 or 4 bytes.
	ErrFormat = errors.New("invalid storage format")

	// ErrInvalidBlockSpec is returned for malformed block, offset or dimension arguments.
	ErrInvalidBlockSpec = errors.New("invalid block specification")

	// ErrInvalidValue is returned when a value can't be represented by its member type.
	ErrInvalidValue = errors.New("invalid value")

	// ErrInvalidDescriptor is returned for malformed type descriptions
	// (duplicate or invalid names, overlapping members).
	ErrInvalidDescriptor = errors.New("invalid type descriptor")

	// ErrNotFound is returned for items requested that don't exist
	ErrNotFound = errors.New("not found")

	// ErrOutOfRange is returned by backends for reads or writes beyond a location's extent.
	ErrOutOfRange = errors.New("out of range")

	// ErrClosed is returned when a backend is used after Close.
	ErrClosed = errors.New("backend closed")
)
