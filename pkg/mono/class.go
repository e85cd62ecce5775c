package mono

import "strings"

const (
	classValueType = 0x8
	classEnum      = 0x10

	// maxFields bounds field_count; larger values are corrupt.
	maxFields = 1 << 16
)

// Class is a MonoClass. It is a stateless view: every accessor reads the
// target again. The zero Class is invalid.
type Class struct {
	rt   *Runtime
	addr uint64
}

func (c Class) Address() uint64 { return c.addr }

// Valid reports whether c refers to a class at all.
func (c Class) Valid() bool { return c.rt != nil && c.addr != 0 }

func (c Class) Name() string {
	return c.rt.mem.ReadCString(c.rt.ptr(c.addr, c.rt.off.ClassName))
}

func (c Class) Namespace() string {
	return c.rt.mem.ReadCString(c.rt.ptr(c.addr, c.rt.off.ClassNamespace))
}

// FullName returns the fully qualified name of c. Enclosing types are
// joined with '+' and the namespace is the one of the outermost type,
// e.g. "Ns.Outer+Inner+Innermost".
func (c Class) FullName() string {
	names := []string{c.Name()}
	ns := c.Namespace()
	for outer, ok := c.NestedIn(); ok; outer, ok = outer.NestedIn() {
		names = append(names, outer.Name())
		ns = outer.Namespace()
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	name := strings.Join(names, "+")
	if ns == "" {
		return name
	}
	return ns + "." + name
}

func (c Class) String() string {
	return c.FullName()
}

// NestedIn returns the enclosing class of a nested type.
func (c Class) NestedIn() (Class, bool) {
	p := c.rt.ptr(c.addr, c.rt.off.ClassNestedIn)
	return c.rt.ClassAt(p), p != 0
}

// Parent returns the base class.
func (c Class) Parent() (Class, bool) {
	p := c.rt.ptr(c.addr, c.rt.off.ClassParent)
	return c.rt.ClassAt(p), p != 0
}

// ElementClass returns the element class of an array class, or the class of
// the underlying integral type of an enum.
func (c Class) ElementClass() Class {
	return c.rt.ClassAt(c.rt.ptr(c.addr, c.rt.off.ClassElementClass))
}

// Size is the instance size for reference types and the element stride for
// array classes.
func (c Class) Size() int32 {
	return c.rt.mem.ReadInt32(c.addr + uint64(c.rt.off.ClassSizes))
}

func (c Class) bitfields() uint32 {
	return c.rt.mem.ReadUint32(c.addr + uint64(c.rt.off.ClassBitfields))
}

func (c Class) IsValueType() bool { return c.bitfields()&classValueType != 0 }
func (c Class) IsEnum() bool      { return c.bitfields()&classEnum != 0 }

// ByvalArg is the type describing a value of this class.
func (c Class) ByvalArg() Type {
	return Type{rt: c.rt, addr: c.addr + uint64(c.rt.off.ClassByvalArg)}
}

func (c Class) NumFields() int32 {
	return c.rt.mem.ReadInt32(c.addr + uint64(c.rt.off.ClassFieldCount))
}

// Fields returns the fields declared by c itself, not the inherited ones.
func (c Class) Fields() ([]Field, error) {
	n := c.NumFields()
	if n < 0 || n > maxFields {
		return nil, &CorruptDataError{What: "field count", Addr: c.addr, Value: int64(n)}
	}
	base := c.rt.ptr(c.addr, c.rt.off.ClassFields)
	fields := make([]Field, n)
	for i := range fields {
		fields[i] = Field{rt: c.rt, addr: base + uint64(i)*uint64(c.rt.off.FieldSize)}
	}
	return fields, nil
}

// VTable returns the vtable of c in the root domain, or 0 if the class has
// not been initialized yet.
func (c Class) VTable() uint64 {
	rti := c.rt.ptr(c.addr, c.rt.off.ClassRuntimeInfo)
	if rti == 0 {
		return 0
	}
	return c.rt.ptr(rti, c.rt.off.RuntimeInfoDomainVTables)
}

// StaticData returns the address of the static field storage of c, or 0 if
// the class has none yet.
func (c Class) StaticData() uint64 {
	vt := c.VTable()
	if vt == 0 {
		return 0
	}
	return c.rt.ptr(vt, c.rt.off.VTableData)
}

type fieldFilter uint8

const (
	anyField fieldFilter = iota
	instanceField
	staticField
)

func (ff fieldFilter) match(f Field) bool {
	switch ff {
	case instanceField:
		return !f.IsStatic()
	case staticField:
		return f.IsStatic()
	}
	return true
}

// lookupField searches c and then its parents for a field named name.
func (c Class) lookupField(name string, ff fieldFilter) (Field, error) {
	for cur, ok := c, true; ok; cur, ok = cur.Parent() {
		fields, err := cur.Fields()
		if err != nil {
			return Field{}, err
		}
		for _, f := range fields {
			if f.Name() == name && ff.match(f) {
				return f, nil
			}
		}
	}
	return Field{}, &UnresolvedFieldError{Class: c.FullName(), Field: name, Static: ff == staticField}
}

// Field returns the field named name declared by c or one of its parents.
func (c Class) Field(name string) (Field, error) {
	return c.lookupField(name, anyField)
}

// StaticValue decodes the static field name of c.
func (c Class) StaticValue(name string) (Value, error) {
	f, err := c.lookupField(name, staticField)
	if err != nil {
		return Value{}, err
	}
	return f.Value(nil)
}

// AllFields returns the fields of c and its parents, most derived first.
func (c Class) AllFields() ([]Field, error) {
	var out []Field
	for cur, ok := c, true; ok; cur, ok = cur.Parent() {
		fields, err := cur.Fields()
		if err != nil {
			return nil, err
		}
		out = append(out, fields...)
	}
	return out, nil
}
