package mono

import (
	"golang.org/x/text/encoding/unicode"
)

// maxLength bounds string and array lengths; anything longer is treated as
// corrupt instead of being allocated.
const maxLength = 1 << 24

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// decodeField decodes a value of type typ stored at addr.
func (rt *Runtime) decodeField(typ Type, addr uint64) (Value, error) {
	if classify(typ) == storedByReference {
		return rt.readReference(addr), nil
	}
	switch tag := typ.Tag(); tag {
	case TypeValueType:
		return rt.readValueType(typ.Class(), addr)
	case TypeGenericInst:
		// Generic value types are not decoded.
		return Value{}, nil
	default:
		return rt.readValue(tag, addr)
	}
}

func (rt *Runtime) readReference(addr uint64) Value {
	p := rt.mem.ReadPointer(addr)
	if p == 0 {
		return Value{}
	}
	return objectValue(rt.ObjectAt(p))
}

// readValueType decodes an embedded value of class cls. Enums decode as
// their underlying integral type.
func (rt *Runtime) readValueType(cls Class, addr uint64) (Value, error) {
	if cls.IsEnum() {
		return rt.readValue(cls.ElementClass().ByvalArg().Tag(), addr)
	}
	return structValue(Struct{class: cls, addr: addr}), nil
}

func (rt *Runtime) readValue(tag TypeTag, addr uint64) (Value, error) {
	m := rt.mem
	switch tag {
	case TypeBoolean:
		return boolValue(m.ReadBool(addr)), nil
	case TypeChar, TypeU2:
		return uintValue(tag, uint64(m.ReadUint16(addr))), nil
	case TypeI1:
		return intValue(tag, int64(m.ReadInt8(addr))), nil
	case TypeU1:
		return uintValue(tag, uint64(m.ReadUint8(addr))), nil
	case TypeI2:
		return intValue(tag, int64(m.ReadInt16(addr))), nil
	case TypeI4, TypeI:
		return intValue(tag, int64(m.ReadInt32(addr))), nil
	case TypeU4, TypeU:
		return uintValue(tag, uint64(m.ReadUint32(addr))), nil
	case TypeI8:
		return intValue(tag, m.ReadInt64(addr)), nil
	case TypeU8:
		return uintValue(tag, m.ReadUint64(addr)), nil
	case TypeR4:
		return floatValue(tag, float64(m.ReadFloat32(addr))), nil
	case TypeR8:
		return floatValue(tag, m.ReadFloat64(addr)), nil
	case TypeString:
		return rt.readString(addr)
	case TypeSzArray:
		return rt.readArray(addr)
	}
	return Value{}, &UnsupportedTypeTagError{Tag: tag, Addr: addr}
}

// readString decodes the string referenced by the pointer at addr.
func (rt *Runtime) readString(addr uint64) (Value, error) {
	p := rt.mem.ReadPointer(addr)
	if p == 0 {
		return Value{}, nil
	}
	n := rt.mem.ReadInt32(p + uint64(rt.off.StringLength))
	if n < 0 || n > maxLength {
		return Value{}, &CorruptDataError{What: "string length", Addr: p, Value: int64(n)}
	}
	if n == 0 {
		return stringValue(""), nil
	}
	raw := rt.mem.Read(p+uint64(rt.off.StringChars), 2*int(n))
	s, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return Value{}, err
	}
	return stringValue(string(s)), nil
}

// readArray decodes the single dimension array referenced by the pointer
// at addr. Elements are laid out from the array data offset with a stride
// equal to the size of the array class.
func (rt *Runtime) readArray(addr uint64) (Value, error) {
	p := rt.mem.ReadPointer(addr)
	if p == 0 {
		return Value{}, nil
	}
	arrClass := rt.ClassAt(rt.mem.ReadPointer(rt.mem.ReadPointer(p)))
	elClass := arrClass.ElementClass()
	n := rt.mem.ReadInt32(p + uint64(rt.off.ArrayLength))
	if n < 0 || n > maxLength {
		return Value{}, &CorruptDataError{What: "array length", Addr: p, Value: int64(n)}
	}
	elems := make([]Value, n)
	if n == 0 {
		return arrayValue(elems), nil
	}
	stride := arrClass.Size()
	if stride <= 0 {
		return Value{}, &CorruptDataError{What: "array element size", Addr: arrClass.addr, Value: int64(stride)}
	}
	start := p + uint64(rt.off.ArrayData)
	inline := elClass.IsValueType()
	var tag TypeTag
	if inline {
		tag = elClass.ByvalArg().Tag()
	}
	for i := range elems {
		ea := start + uint64(i)*uint64(stride)
		if !inline {
			elems[i] = rt.readReference(ea)
			continue
		}
		var err error
		if tag == TypeValueType {
			elems[i], err = rt.readValueType(elClass, ea)
		} else {
			elems[i], err = rt.readValue(tag, ea)
		}
		if err != nil {
			return Value{}, err
		}
	}
	return arrayValue(elems), nil
}
