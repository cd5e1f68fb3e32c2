package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedKeyArgument is matched by every error returned when an
	// argument cannot be turned into a stable key component.
	ErrUnsupportedKeyArgument = errors.New("unsupported key argument")

	// ErrInvalidMember is returned for malformed member descriptors.
	ErrInvalidMember = errors.New("invalid member descriptor")

	// ErrInvalidInvocation is returned when the arguments of a call do not
	// fit the member kind, e.g. a property setter with two values.
	ErrInvalidInvocation = errors.New("invalid invocation")

	// ErrInvalidResultType is returned by GetOrFetch when the cached value
	// cannot be asserted to the requested type.
	ErrInvalidResultType = errors.New("cached value has unexpected type")
)

// UnsupportedKeyArgumentError reports which argument could not be serialized.
type UnsupportedKeyArgumentError struct {
	Index  int
	Type   string
	Reason string
}

// Error implements the error interface.
func (e *UnsupportedKeyArgumentError) Error() string {
	return fmt.Sprintf("unsupported key argument %d (%s): %s", e.Index, e.Type, e.Reason)
}

// Is lets errors.Is match ErrUnsupportedKeyArgument.
func (e *UnsupportedKeyArgumentError) Is(target error) bool {
	return target == ErrUnsupportedKeyArgument
}
