package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"
)

// Kind tags the variant stored in a Value.
type Kind byte

const (
	// KindBool is a boolean value.
	KindBool Kind = iota + 1
	// KindInt is a signed 64-bit integer.
	KindInt
	// KindDouble is a 64-bit IEEE 754 float.
	KindDouble
	// KindString is a UTF-8 string.
	KindString
	// KindDate is a point in time with nanosecond precision.
	KindDate
	// KindBytes is an opaque byte sequence.
	KindBytes
	// KindArray is a homogeneous array of scalar values.
	KindArray
	// KindMap is a string-keyed map of scalar values.
	KindMap
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// scalar reports whether the kind may appear inside an array or map.
// Collections nest at most one level deep.
func (k Kind) scalar() bool {
	return k >= KindBool && k <= KindBytes
}

// Value is the tagged variant model for stored values. Exactly the field
// matching Kind is meaningful.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Double float64
	Str    string
	Date   time.Time
	Bytes  []byte
	Array  []Value
	Map    map[string]Value
}

// BoolValue returns a boolean Value.
func BoolValue(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// IntValue returns an integer Value.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// DoubleValue returns a floating-point Value.
func DoubleValue(v float64) Value { return Value{Kind: KindDouble, Double: v} }

// StringValue returns a string Value.
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }

// DateValue returns a date Value.
func DateValue(v time.Time) Value { return Value{Kind: KindDate, Date: v} }

// BytesValue returns an opaque bytes Value.
func BytesValue(v []byte) Value { return Value{Kind: KindBytes, Bytes: v} }

// EncodeValue serializes v into a tagged byte blob. It returns
// ErrUnsupported when v (or an element of it) does not match a variant,
// including arrays with mixed element kinds and collections nested more
// than one level deep.
func EncodeValue(v Value) ([]byte, error) {
	return appendValue(nil, v, true)
}

func appendValue(buf []byte, v Value, allowCollections bool) ([]byte, error) {
	switch v.Kind {
	case KindBool:
		buf = append(buf, byte(KindBool))
		if v.Bool {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case KindInt:
		buf = append(buf, byte(KindInt))
		return binary.BigEndian.AppendUint64(buf, uint64(v.Int)), nil
	case KindDouble:
		buf = append(buf, byte(KindDouble))
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(v.Double)), nil
	case KindString:
		buf = append(buf, byte(KindString))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.Str)))
		return append(buf, v.Str...), nil
	case KindDate:
		buf = append(buf, byte(KindDate))
		return binary.BigEndian.AppendUint64(buf, uint64(v.Date.UnixNano())), nil
	case KindBytes:
		buf = append(buf, byte(KindBytes))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.Bytes)))
		return append(buf, v.Bytes...), nil
	case KindArray:
		if !allowCollections {
			return nil, fmt.Errorf("%w: array nested inside a collection", ErrUnsupported)
		}
		buf = append(buf, byte(KindArray))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.Array)))
		var elemKind Kind
		for i, el := range v.Array {
			if !el.Kind.scalar() {
				return nil, fmt.Errorf("%w: array element %d has non-scalar kind %s", ErrUnsupported, i, el.Kind)
			}
			if i == 0 {
				elemKind = el.Kind
			} else if el.Kind != elemKind {
				return nil, fmt.Errorf("%w: heterogeneous array (%s vs %s)", ErrUnsupported, elemKind, el.Kind)
			}
			var err error
			if buf, err = appendValue(buf, el, false); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case KindMap:
		if !allowCollections {
			return nil, fmt.Errorf("%w: map nested inside a collection", ErrUnsupported)
		}
		buf = append(buf, byte(KindMap))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.Map)))
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			el := v.Map[k]
			if !el.Kind.scalar() {
				return nil, fmt.Errorf("%w: map entry %q has non-scalar kind %s", ErrUnsupported, k, el.Kind)
			}
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(k)))
			buf = append(buf, k...)
			var err error
			if buf, err = appendValue(buf, el, false); err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnsupported, v.Kind)
	}
}

// DecodeValue parses a tagged value blob produced by EncodeValue.
func DecodeValue(data []byte) (Value, error) {
	v, off, err := readValue(data, 0, true)
	if err != nil {
		return Value{}, err
	}
	if off != len(data) {
		return Value{}, fmt.Errorf("%w: %d trailing bytes after value", ErrMalformed, len(data)-off)
	}
	return v, nil
}

func readValue(data []byte, off int, allowCollections bool) (Value, int, error) {
	if off >= len(data) {
		return Value{}, 0, fmt.Errorf("%w: missing value tag", ErrMalformed)
	}
	kind := Kind(data[off])
	off++
	switch kind {
	case KindBool:
		if off >= len(data) {
			return Value{}, 0, fmt.Errorf("%w: truncated bool", ErrMalformed)
		}
		return BoolValue(data[off] != 0), off + 1, nil
	case KindInt:
		u, next, err := readUint64(data, off)
		if err != nil {
			return Value{}, 0, err
		}
		return IntValue(int64(u)), next, nil
	case KindDouble:
		u, next, err := readUint64(data, off)
		if err != nil {
			return Value{}, 0, err
		}
		return DoubleValue(math.Float64frombits(u)), next, nil
	case KindString:
		b, next, err := readChunk(data, off)
		if err != nil {
			return Value{}, 0, err
		}
		return StringValue(string(b)), next, nil
	case KindDate:
		u, next, err := readUint64(data, off)
		if err != nil {
			return Value{}, 0, err
		}
		return DateValue(time.Unix(0, int64(u)).UTC()), next, nil
	case KindBytes:
		b, next, err := readChunk(data, off)
		if err != nil {
			return Value{}, 0, err
		}
		return BytesValue(b), next, nil
	case KindArray:
		if !allowCollections {
			return Value{}, 0, fmt.Errorf("%w: nested array", ErrMalformed)
		}
		if off+4 > len(data) {
			return Value{}, 0, fmt.Errorf("%w: truncated array count", ErrMalformed)
		}
		count := int(binary.BigEndian.Uint32(data[off : off+4]))
		off += 4
		arr := make([]Value, 0, count)
		for i := 0; i < count; i++ {
			el, next, err := readValue(data, off, false)
			if err != nil {
				return Value{}, 0, err
			}
			arr = append(arr, el)
			off = next
		}
		return Value{Kind: KindArray, Array: arr}, off, nil
	case KindMap:
		if !allowCollections {
			return Value{}, 0, fmt.Errorf("%w: nested map", ErrMalformed)
		}
		if off+4 > len(data) {
			return Value{}, 0, fmt.Errorf("%w: truncated map count", ErrMalformed)
		}
		count := int(binary.BigEndian.Uint32(data[off : off+4]))
		off += 4
		m := make(map[string]Value, count)
		for i := 0; i < count; i++ {
			k, next, err := readChunk(data, off)
			if err != nil {
				return Value{}, 0, err
			}
			el, after, err := readValue(data, next, false)
			if err != nil {
				return Value{}, 0, err
			}
			m[string(k)] = el
			off = after
		}
		return Value{Kind: KindMap, Map: m}, off, nil
	default:
		return Value{}, 0, fmt.Errorf("%w: unknown value tag %d", ErrMalformed, kind)
	}
}

func readUint64(data []byte, off int) (uint64, int, error) {
	if off+8 > len(data) {
		return 0, 0, fmt.Errorf("%w: truncated 8-byte payload", ErrMalformed)
	}
	return binary.BigEndian.Uint64(data[off : off+8]), off + 8, nil
}

// FromNative converts a dynamically typed value (as produced by YAML or
// JSON decoding, or handed over by a legacy preference reader) into a
// Value. Heterogeneous arrays and collections nested more than one level
// deep are rejected with ErrUnsupported.
func FromNative(v any) (Value, error) {
	return fromNative(v, true)
}

func fromNative(v any, allowCollections bool) (Value, error) {
	switch t := v.(type) {
	case bool:
		return BoolValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int8:
		return IntValue(int64(t)), nil
	case int16:
		return IntValue(int64(t)), nil
	case int32:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: unsigned value %d overflows int64", ErrUnsupported, t)
		}
		return IntValue(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: unsigned value %d overflows int64", ErrUnsupported, t)
		}
		return IntValue(int64(t)), nil
	case float32:
		return DoubleValue(float64(t)), nil
	case float64:
		return DoubleValue(t), nil
	case string:
		return StringValue(t), nil
	case time.Time:
		return DateValue(t), nil
	case []byte:
		return BytesValue(t), nil
	case []any:
		if !allowCollections {
			return Value{}, fmt.Errorf("%w: array nested inside a collection", ErrUnsupported)
		}
		arr := make([]Value, 0, len(t))
		var elemKind Kind
		for i, el := range t {
			ev, err := fromNative(el, false)
			if err != nil {
				return Value{}, err
			}
			if i == 0 {
				elemKind = ev.Kind
			} else if ev.Kind != elemKind {
				return Value{}, fmt.Errorf("%w: heterogeneous array (%s vs %s)", ErrUnsupported, elemKind, ev.Kind)
			}
			arr = append(arr, ev)
		}
		return Value{Kind: KindArray, Array: arr}, nil
	case map[string]any:
		if !allowCollections {
			return Value{}, fmt.Errorf("%w: map nested inside a collection", ErrUnsupported)
		}
		m := make(map[string]Value, len(t))
		for k, el := range t {
			ev, err := fromNative(el, false)
			if err != nil {
				return Value{}, err
			}
			m[k] = ev
		}
		return Value{Kind: KindMap, Map: m}, nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
}
