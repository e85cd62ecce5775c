package mono

const (
	attrStatic      = 0x10
	attrAccessMask  = 0x7
	attrPublic      = 0x6
	attrLiteral     = 0x40
	attrHasDefault  = 0x8000
	attrHasFieldRVA = 0x100
	attrByRef       = 0x40000000
)

// Type is a MonoType: a type tag, attribute bits and a tag specific data
// pointer.
type Type struct {
	rt   *Runtime
	addr uint64
}

func (t Type) Address() uint64 { return t.addr }

// Data is the tag specific payload: the class of a ValueType or Class, the
// element class of a SzArray, the generic class of a GenericInst.
func (t Type) Data() uint64 {
	return t.rt.mem.ReadPointer(t.addr)
}

func (t Type) Attrs() uint32 {
	return t.rt.mem.ReadUint32(t.addr + uint64(t.rt.off.TypeAttrs))
}

func (t Type) Tag() TypeTag {
	return TypeTag(t.Attrs() >> 16)
}

func (t Type) IsStatic() bool    { return t.Attrs()&attrStatic != 0 }
func (t Type) IsPublic() bool    { return t.Attrs()&attrAccessMask == attrPublic }
func (t Type) IsLiteral() bool   { return t.Attrs()&attrLiteral != 0 }
func (t Type) HasDefault() bool  { return t.Attrs()&attrHasDefault != 0 }
func (t Type) HasFieldRVA() bool { return t.Attrs()&attrHasFieldRVA != 0 }
func (t Type) ByRef() bool       { return t.Attrs()&attrByRef != 0 }

// Class returns the class named by a ValueType or Class type.
func (t Type) Class() Class {
	return t.rt.ClassAt(t.Data())
}

// GenericClass returns the container class of a GenericInst type.
func (t Type) GenericClass() Class {
	return t.rt.ClassAt(t.rt.mem.ReadPointer(t.Data()))
}

func (t Type) String() string {
	switch tag := t.Tag(); tag {
	case TypeValueType, TypeClass:
		return t.Class().FullName()
	case TypeGenericInst:
		return t.GenericClass().FullName()
	case TypeSzArray:
		return "[]" + t.Class().FullName()
	default:
		return tag.String()
	}
}
