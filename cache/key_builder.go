package cache

import (
	"encoding"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/goliatone/go-method-cache/internal/cacheinfra"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = cacheinfra.KeySeparator

// maxKeyDepth bounds the reflection walk; self-referencing values hit it.
const maxKeyDepth = 32

var (
	keyComponentType  = reflect.TypeOf((*KeyComponent)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// KeyBuilderOption configures the default key builder.
type KeyBuilderOption func(*defaultKeyBuilder)

// WithHashedArguments replaces the argument segment of every key with its
// xxhash digest. Keys stay short, the member prefix stays readable.
func WithHashedArguments() KeyBuilderOption {
	return func(b *defaultKeyBuilder) {
		b.hashArgs = true
	}
}

// WithNamespace prefixes every key with ns, for stores shared between
// unrelated engines.
func WithNamespace(ns string) KeyBuilderOption {
	return func(b *defaultKeyBuilder) {
		b.namespace = ns
	}
}

// defaultKeyBuilder implements KeyBuilder by walking arguments with
// reflection and encoding them by value, tagged with their type.
type defaultKeyBuilder struct {
	namespace string
	hashArgs  bool
}

// NewDefaultKeyBuilder creates a new instance of the default key builder.
func NewDefaultKeyBuilder(opts ...KeyBuilderOption) KeyBuilder {
	b := &defaultKeyBuilder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// MemberPrefix implements KeyBuilder.
func (b *defaultKeyBuilder) MemberPrefix(member MemberDescriptor) string {
	if b.namespace == "" {
		return member.Prefix()
	}
	return b.namespace + KeySeparator + member.Prefix()
}

// BuildKey joins the member prefix and the encoded arguments. A call without
// arguments maps to the bare prefix.
func (b *defaultKeyBuilder) BuildKey(member MemberDescriptor, args ...any) (Key, error) {
	if err := member.Validate(); err != nil {
		return "", err
	}

	prefix := b.MemberPrefix(member)
	if len(args) == 0 {
		return Key(prefix), nil
	}

	parts := make([]string, 0, len(args))
	for i, arg := range args {
		serialized, err := b.serializeValue(reflect.ValueOf(arg), 0)
		if err != nil {
			return "", &UnsupportedKeyArgumentError{
				Index:  i,
				Type:   fmt.Sprintf("%T", arg),
				Reason: err.Error(),
			}
		}
		parts = append(parts, serialized)
	}

	segment := strings.Join(parts, KeySeparator)
	if b.hashArgs {
		segment = fmt.Sprintf("xxh:%016x", xxhash.Sum64String(segment))
	}

	return Key(prefix + KeySeparator + segment), nil
}

// serializeValue encodes a single value. Every encoding starts with the
// value's type so equal-looking values of different types never collide.
func (b *defaultKeyBuilder) serializeValue(rv reflect.Value, depth int) (string, error) {
	if depth > maxKeyDepth {
		return "", errors.New("value nested too deep or cyclic")
	}

	if !rv.IsValid() {
		return "nil", nil
	}

	rt := rv.Type()

	switch rt.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil", nil
		}
		return b.serializeValue(rv.Elem(), depth+1)
	}

	if custom, ok, err := b.serializeCustom(rv, rt); ok || err != nil {
		return custom, err
	}

	switch rt.Kind() {
	case reflect.Bool:
		return rt.String() + ":" + strconv.FormatBool(rv.Bool()), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rt.String() + ":" + strconv.FormatInt(rv.Int(), 10), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rt.String() + ":" + strconv.FormatUint(rv.Uint(), 10), nil

	case reflect.Float32, reflect.Float64:
		return rt.String() + ":" + strconv.FormatFloat(rv.Float(), 'g', -1, rt.Bits()), nil

	case reflect.Complex64, reflect.Complex128:
		return rt.String() + ":" + strconv.FormatComplex(rv.Complex(), 'g', -1, rt.Bits()), nil

	case reflect.String:
		return rt.String() + ":" + strconv.Quote(rv.String()), nil

	case reflect.Slice:
		if rv.IsNil() {
			return rt.String() + ":nil", nil
		}
		if rt.Elem().Kind() == reflect.Uint8 {
			return rt.String() + ":x" + hex.EncodeToString(rv.Bytes()), nil
		}
		return b.serializeSequence(rv, rt, depth)

	case reflect.Array:
		return b.serializeSequence(rv, rt, depth)

	case reflect.Map:
		if rv.IsNil() {
			return rt.String() + ":nil", nil
		}
		return b.serializeMap(rv, rt, depth)

	case reflect.Struct:
		return b.serializeStruct(rv, rt, depth)
	}

	// func, chan and unsafe.Pointer only have identity, never a value
	return "", fmt.Errorf("kind %s has no stable value identity", rt.Kind())
}

// serializeCustom handles KeyComponent and encoding.TextMarshaler values,
// including pointer-receiver implementations on addressable values.
func (b *defaultKeyBuilder) serializeCustom(rv reflect.Value, rt reflect.Type) (string, bool, error) {
	if !rv.CanInterface() {
		return "", false, nil
	}

	if target, ok := implementing(rv, rt, keyComponentType); ok {
		component, err := target.Interface().(KeyComponent).CacheKeyComponent()
		if err != nil {
			return "", true, err
		}
		return rt.String() + ":" + strconv.Quote(component), true, nil
	}

	if target, ok := implementing(rv, rt, textMarshalerType); ok {
		text, err := target.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "", true, err
		}
		return rt.String() + ":" + strconv.Quote(string(text)), true, nil
	}

	return "", false, nil
}

func implementing(rv reflect.Value, rt reflect.Type, iface reflect.Type) (reflect.Value, bool) {
	if rt.Implements(iface) {
		return rv, true
	}
	if rv.CanAddr() && reflect.PointerTo(rt).Implements(iface) {
		return rv.Addr(), true
	}
	return reflect.Value{}, false
}

func (b *defaultKeyBuilder) serializeSequence(rv reflect.Value, rt reflect.Type, depth int) (string, error) {
	length := rv.Len()
	parts := make([]string, length)

	for i := 0; i < length; i++ {
		elem, err := b.serializeValue(rv.Index(i), depth+1)
		if err != nil {
			return "", fmt.Errorf("element %d: %w", i, err)
		}
		parts[i] = elem
	}

	return rt.String() + ":{" + strings.Join(parts, ",") + "}", nil
}

// serializeMap sorts entries by their encoded key for deterministic output.
func (b *defaultKeyBuilder) serializeMap(rv reflect.Value, rt reflect.Type, depth int) (string, error) {
	pairs := make([]string, 0, rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		k, err := b.serializeValue(iter.Key(), depth+1)
		if err != nil {
			return "", fmt.Errorf("map key: %w", err)
		}
		v, err := b.serializeValue(iter.Value(), depth+1)
		if err != nil {
			return "", fmt.Errorf("map value for %s: %w", k, err)
		}
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	return rt.String() + ":{" + strings.Join(pairs, ",") + "}", nil
}

// serializeStruct includes unexported fields: two values that differ only
// in private state are still different arguments.
func (b *defaultKeyBuilder) serializeStruct(rv reflect.Value, rt reflect.Type, depth int) (string, error) {
	numFields := rv.NumField()
	parts := make([]string, 0, numFields)

	for i := 0; i < numFields; i++ {
		field := rt.Field(i)
		if field.Name == "_" {
			continue
		}

		serialized, err := b.serializeValue(rv.Field(i), depth+1)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", field.Name, err)
		}
		parts = append(parts, field.Name+"="+serialized)
	}

	return rt.String() + ":{" + strings.Join(parts, ",") + "}", nil
}
