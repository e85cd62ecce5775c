package mono

import "fmt"

// Field is a MonoClassField.
type Field struct {
	rt   *Runtime
	addr uint64
}

func (f Field) Address() uint64 { return f.addr }

func (f Field) Name() string {
	return f.rt.mem.ReadCString(f.rt.ptr(f.addr, f.rt.off.FieldName))
}

// Offset is the byte offset of the field in its instance, or in the static
// storage of its class.
func (f Field) Offset() int32 {
	return f.rt.mem.ReadInt32(f.addr + uint64(f.rt.off.FieldOffset))
}

func (f Field) Type() Type {
	return Type{rt: f.rt, addr: f.rt.ptr(f.addr, f.rt.off.FieldType)}
}

// Parent is the class declaring the field.
func (f Field) Parent() Class {
	return f.rt.ClassAt(f.rt.ptr(f.addr, f.rt.off.FieldParent))
}

func (f Field) IsStatic() bool {
	return f.Type().IsStatic()
}

func (f Field) String() string {
	s := fmt.Sprintf("%s %s", f.Type(), f.Name())
	if f.IsStatic() {
		s = "static " + s
	}
	return s
}

// Instance is a container of instance fields: an Object or a Struct.
type Instance interface {
	// fieldBase returns the address field offsets are relative to.
	fieldBase() uint64
}

// Value decodes the field. Static fields ignore inst; instance fields
// require one.
func (f Field) Value(inst Instance) (Value, error) {
	typ := f.Type()
	var base uint64
	if typ.IsStatic() {
		base = f.Parent().StaticData()
		if base == 0 {
			return Value{}, nil
		}
	} else {
		if inst == nil {
			return Value{}, fmt.Errorf("instance field %s: %w", f.Name(), ErrNullReference)
		}
		base = inst.fieldBase()
	}
	return f.rt.decodeField(typ, base+uint64(int64(f.Offset())))
}
