package cache

import (
	"fmt"
	"strings"
)

// MemberKind classifies the shape of a cacheable member.
type MemberKind int

const (
	// KindMethod is a regular method, any number of arguments.
	KindMethod MemberKind = iota
	// KindGetter is a property that only exposes a getter.
	KindGetter
	// KindSetter is a property that only exposes a setter.
	KindSetter
	// KindReadWriteProperty is a property with both getter and setter.
	KindReadWriteProperty
)

var kindNames = map[MemberKind]string{
	KindMethod:            "method",
	KindGetter:            "getter",
	KindSetter:            "setter",
	KindReadWriteProperty: "read_write_property",
}

// String returns the snake_case name of the kind, which is also the
// segment used in cache keys.
func (k MemberKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the known member kinds.
func (k MemberKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// kindSpelling strips the word separators policy files use between the
// words of a kind name.
var kindSpelling = strings.NewReplacer("_", "", "-", "", " ", "")

// kindsBySpelling maps the folded spelling of every kind to the kind.
var kindsBySpelling = map[string]MemberKind{
	"method":            KindMethod,
	"getter":            KindGetter,
	"setter":            KindSetter,
	"readwriteproperty": KindReadWriteProperty,
}

// ParseMemberKind accepts snake_case ("read_write_property"), CamelCase
// ("ReadWriteProperty") and spaced ("read-write property") spellings.
func ParseMemberKind(s string) (MemberKind, error) {
	folded := kindSpelling.Replace(strings.ToLower(strings.TrimSpace(s)))
	if kind, ok := kindsBySpelling[folded]; ok {
		return kind, nil
	}
	return 0, fmt.Errorf("%w: unknown member kind %q", ErrInvalidMember, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k MemberKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: unknown member kind %d", ErrInvalidMember, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *MemberKind) UnmarshalText(text []byte) error {
	parsed, err := ParseMemberKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MemberDescriptor identifies a cacheable unit. It is a comparable value and
// is meant to be created once, when the member is registered.
type MemberDescriptor struct {
	TypeName   string
	MemberName string
	Kind       MemberKind
}

// Method describes a cacheable method of typeName.
func Method(typeName, name string) MemberDescriptor {
	return MemberDescriptor{TypeName: typeName, MemberName: name, Kind: KindMethod}
}

// Getter describes a get-only property of typeName.
func Getter(typeName, name string) MemberDescriptor {
	return MemberDescriptor{TypeName: typeName, MemberName: name, Kind: KindGetter}
}

// Setter describes a set-only property of typeName.
func Setter(typeName, name string) MemberDescriptor {
	return MemberDescriptor{TypeName: typeName, MemberName: name, Kind: KindSetter}
}

// Property describes a read/write property of typeName.
func Property(typeName, name string) MemberDescriptor {
	return MemberDescriptor{TypeName: typeName, MemberName: name, Kind: KindReadWriteProperty}
}

// Validate rejects descriptors that could not produce an unambiguous key
// prefix. Names may not contain ':' at all, since a name ending or starting
// with one would shift the separator.
func (d MemberDescriptor) Validate() error {
	switch {
	case strings.TrimSpace(d.TypeName) == "":
		return fmt.Errorf("%w: type name is required", ErrInvalidMember)
	case strings.TrimSpace(d.MemberName) == "":
		return fmt.Errorf("%w: member name is required", ErrInvalidMember)
	case strings.ContainsRune(d.TypeName, ':'):
		return fmt.Errorf("%w: type name %q contains ':'", ErrInvalidMember, d.TypeName)
	case strings.ContainsRune(d.MemberName, ':'):
		return fmt.Errorf("%w: member name %q contains ':'", ErrInvalidMember, d.MemberName)
	case !d.Kind.Valid():
		return fmt.Errorf("%w: unknown member kind %d", ErrInvalidMember, int(d.Kind))
	}
	return nil
}

// Prefix returns the key prefix shared by every key derived from d.
func (d MemberDescriptor) Prefix() string {
	return strings.Join([]string{d.TypeName, d.MemberName, d.Kind.String()}, KeySeparator)
}

// String implements fmt.Stringer.
func (d MemberDescriptor) String() string {
	return d.TypeName + "." + d.MemberName + "(" + d.Kind.String() + ")"
}
