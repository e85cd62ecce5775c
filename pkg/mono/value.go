package mono

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the kind of a decoded Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindArray
	KindObject
	KindStruct
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindInt:    "int",
	KindUint:   "uint",
	KindFloat:  "float",
	KindString: "string",
	KindArray:  "array",
	KindObject: "object",
	KindStruct: "struct",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is a decoded field or array element. The zero Value is null.
//
// Integers keep the type tag they were decoded from so that callers can
// tell an I1 from an I8; the numeric payload is always widened to 64 bits.
type Value struct {
	kind Kind
	tag  TypeTag
	bits uint64
	str  string
	arr  []Value
	obj  Object
	st   Struct
}

func boolValue(b bool) Value {
	v := Value{kind: KindBool, tag: TypeBoolean}
	if b {
		v.bits = 1
	}
	return v
}

func intValue(tag TypeTag, n int64) Value {
	return Value{kind: KindInt, tag: tag, bits: uint64(n)}
}

func uintValue(tag TypeTag, n uint64) Value {
	return Value{kind: KindUint, tag: tag, bits: n}
}

func floatValue(tag TypeTag, f float64) Value {
	return Value{kind: KindFloat, tag: tag, bits: math.Float64bits(f)}
}

func stringValue(s string) Value {
	return Value{kind: KindString, tag: TypeString, str: s}
}

func arrayValue(elems []Value) Value {
	return Value{kind: KindArray, tag: TypeSzArray, arr: elems}
}

func objectValue(o Object) Value {
	return Value{kind: KindObject, tag: TypeClass, obj: o}
}

func structValue(s Struct) Value {
	return Value{kind: KindStruct, tag: TypeValueType, st: s}
}

func (v Value) Kind() Kind { return v.kind }

// Tag returns the type tag the value was decoded from. Null values have
// TypeEnd.
func (v Value) Tag() TypeTag { return v.tag }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) {
	return v.bits != 0, v.kind == KindBool
}

// AsInt returns the value as a signed integer. Unsigned integers and
// booleans convert.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt, KindUint, KindBool:
		return int64(v.bits), true
	}
	return 0, false
}

// AsUint returns the value as an unsigned integer. Signed integers convert
// with two's complement.
func (v Value) AsUint() (uint64, bool) {
	switch v.kind {
	case KindInt, KindUint, KindBool:
		return v.bits, true
	}
	return 0, false
}

// AsFloat returns the value as a float. Integers convert.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return math.Float64frombits(v.bits), true
	case KindInt:
		return float64(int64(v.bits)), true
	case KindUint:
		return float64(v.bits), true
	}
	return 0, false
}

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// Array returns the elements of an array value. Null and non array values
// return nil.
func (v Value) Array() []Value {
	return v.arr
}

func (v Value) AsObject() (Object, bool) {
	return v.obj, v.kind == KindObject
}

func (v Value) AsStruct() (Struct, bool) {
	return v.st, v.kind == KindStruct
}

// Class returns the class of an object or struct value.
func (v Value) Class() (Class, bool) {
	switch v.kind {
	case KindObject:
		return v.obj.Class(), true
	case KindStruct:
		return v.st.class, true
	}
	return Class{}, false
}

// Len returns the number of elements of an array, or the number of runes
// of a string.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindString:
		return len([]rune(v.str))
	}
	return 0
}

// Field decodes the instance field name of an object or struct value.
func (v Value) Field(name string) (Value, error) {
	switch v.kind {
	case KindObject:
		return v.obj.Field(name)
	case KindStruct:
		return v.st.Field(name)
	case KindNull:
		return Value{}, fmt.Errorf("field %s: %w", name, ErrNullReference)
	}
	return Value{}, fmt.Errorf("field %s: value of kind %s has no fields", name, v.kind)
}

// Get follows a path of field names starting at v.
func (v Value) Get(path ...string) (Value, error) {
	cur := v
	for i, name := range path {
		next, err := cur.Field(name)
		if err != nil {
			return Value{}, fmt.Errorf("%s: %w", strings.Join(path[:i+1], "."), err)
		}
		cur = next
	}
	return cur, nil
}

// Index returns element i of an array value.
func (v Value) Index(i int) (Value, error) {
	switch v.kind {
	case KindArray:
		if i < 0 || i >= len(v.arr) {
			return Value{}, fmt.Errorf("index %d out of range [0, %d)", i, len(v.arr))
		}
		return v.arr[i], nil
	case KindNull:
		return Value{}, fmt.Errorf("index %d: %w", i, ErrNullReference)
	}
	return Value{}, fmt.Errorf("index %d: value of kind %s is not an array", i, v.kind)
}

// String formats v for display. Arrays show their length, objects and
// structs their class and address.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.bits != 0)
	case KindInt:
		return strconv.FormatInt(int64(v.bits), 10)
	case KindUint:
		if v.tag == TypeChar {
			return strconv.QuoteRune(rune(v.bits))
		}
		return strconv.FormatUint(v.bits, 10)
	case KindFloat:
		bitSize := 64
		if v.tag == TypeR4 {
			bitSize = 32
		}
		return strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, bitSize)
	case KindString:
		return strconv.Quote(v.str)
	case KindArray:
		return fmt.Sprintf("[%d]", len(v.arr))
	case KindObject:
		return v.obj.String()
	case KindStruct:
		return v.st.String()
	}
	return v.kind.String()
}
