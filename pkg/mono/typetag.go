package mono

import "fmt"

// TypeTag is the element type of a runtime type (MonoTypeEnum).
type TypeTag uint8

const (
	TypeEnd         TypeTag = 0x00
	TypeVoid        TypeTag = 0x01
	TypeBoolean     TypeTag = 0x02
	TypeChar        TypeTag = 0x03
	TypeI1          TypeTag = 0x04
	TypeU1          TypeTag = 0x05
	TypeI2          TypeTag = 0x06
	TypeU2          TypeTag = 0x07
	TypeI4          TypeTag = 0x08
	TypeU4          TypeTag = 0x09
	TypeI8          TypeTag = 0x0a
	TypeU8          TypeTag = 0x0b
	TypeR4          TypeTag = 0x0c
	TypeR8          TypeTag = 0x0d
	TypeString      TypeTag = 0x0e
	TypePtr         TypeTag = 0x0f
	TypeByRef       TypeTag = 0x10
	TypeValueType   TypeTag = 0x11
	TypeClass       TypeTag = 0x12
	TypeVar         TypeTag = 0x13
	TypeArray       TypeTag = 0x14
	TypeGenericInst TypeTag = 0x15
	TypeTypedByRef  TypeTag = 0x16
	TypeI           TypeTag = 0x18
	TypeU           TypeTag = 0x19
	TypeFnPtr       TypeTag = 0x1b
	TypeObject      TypeTag = 0x1c
	TypeSzArray     TypeTag = 0x1d
	TypeMVar        TypeTag = 0x1e
	TypeCModReqd    TypeTag = 0x1f
	TypeCModOpt     TypeTag = 0x20
	TypeInternal    TypeTag = 0x21
	TypeModifier    TypeTag = 0x40
	TypeSentinel    TypeTag = 0x41
	TypePinned      TypeTag = 0x45
	TypeEnum        TypeTag = 0x55
)

var typeTagNames = map[TypeTag]string{
	TypeEnd:         "End",
	TypeVoid:        "Void",
	TypeBoolean:     "Boolean",
	TypeChar:        "Char",
	TypeI1:          "I1",
	TypeU1:          "U1",
	TypeI2:          "I2",
	TypeU2:          "U2",
	TypeI4:          "I4",
	TypeU4:          "U4",
	TypeI8:          "I8",
	TypeU8:          "U8",
	TypeR4:          "R4",
	TypeR8:          "R8",
	TypeString:      "String",
	TypePtr:         "Ptr",
	TypeByRef:       "ByRef",
	TypeValueType:   "ValueType",
	TypeClass:       "Class",
	TypeVar:         "Var",
	TypeArray:       "Array",
	TypeGenericInst: "GenericInst",
	TypeTypedByRef:  "TypedByRef",
	TypeI:           "I",
	TypeU:           "U",
	TypeFnPtr:       "FnPtr",
	TypeObject:      "Object",
	TypeSzArray:     "SzArray",
	TypeMVar:        "MVar",
	TypeCModReqd:    "CModReqd",
	TypeCModOpt:     "CModOpt",
	TypeInternal:    "Internal",
	TypeModifier:    "Modifier",
	TypeSentinel:    "Sentinel",
	TypePinned:      "Pinned",
	TypeEnum:        "Enum",
}

func (tag TypeTag) String() string {
	if s, ok := typeTagNames[tag]; ok {
		return s
	}
	return fmt.Sprintf("TypeTag(%#x)", uint8(tag))
}

// primitiveSize returns the in-memory width of primitive tags, or 0 for
// anything that is not a fixed width primitive.
func (tag TypeTag) primitiveSize() int {
	switch tag {
	case TypeBoolean, TypeI1, TypeU1:
		return 1
	case TypeChar, TypeI2, TypeU2:
		return 2
	case TypeI4, TypeU4, TypeI, TypeU, TypeR4:
		return 4
	case TypeI8, TypeU8, TypeR8:
		return 8
	}
	return 0
}

// storage says how a field holds its value.
type storage uint8

const (
	// storedInline fields hold the value itself. Strings and single
	// dimension arrays are references for the runtime but are decoded into
	// their contents, so they are grouped here.
	storedInline storage = iota
	// storedByReference fields hold a pointer to a heap object.
	storedByReference
)

// classify is the only place the inline/reference policy is defined.
func classify(t Type) storage {
	switch t.Tag() {
	case TypeString, TypeSzArray:
		return storedInline
	case TypeObject, TypeClass, TypeArray:
		return storedByReference
	case TypeGenericInst:
		if t.GenericClass().IsValueType() {
			return storedInline
		}
		return storedByReference
	default:
		if t.ByRef() {
			return storedByReference
		}
		return storedInline
	}
}
