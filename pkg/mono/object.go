package mono

import "fmt"

// Object is a live heap instance of a reference type.
type Object struct {
	rt   *Runtime
	addr uint64
}

func (o Object) Address() uint64 { return o.addr }

func (o Object) fieldBase() uint64 { return o.addr }

// VTable returns the vtable address stored in the object header.
func (o Object) VTable() uint64 {
	return o.rt.mem.ReadPointer(o.addr)
}

// Class returns the runtime class of the object, which may be a subclass
// of the declared type of the field it was read from.
func (o Object) Class() Class {
	return o.rt.ClassAt(o.rt.mem.ReadPointer(o.VTable()))
}

// Field decodes the instance field name, searching the runtime class and
// its parents.
func (o Object) Field(name string) (Value, error) {
	f, err := o.Class().lookupField(name, instanceField)
	if err != nil {
		return Value{}, err
	}
	return f.Value(o)
}

// Fields decodes every instance field of the object.
func (o Object) Fields() ([]NamedValue, error) {
	return instanceFields(o.Class(), o)
}

func (o Object) String() string {
	return fmt.Sprintf("%s@%#x", o.Class().FullName(), o.addr)
}

// Struct is a value type instance embedded in an object, in static storage
// or in an array.
type Struct struct {
	class Class
	addr  uint64
}

func (s Struct) Address() uint64 { return s.addr }
func (s Struct) Class() Class    { return s.class }

// Value type field offsets include the boxed object header, so the base is
// moved back by its size.
func (s Struct) fieldBase() uint64 {
	return s.addr - uint64(s.class.rt.off.ObjectHeaderSize)
}

// Field decodes the instance field name of the struct.
func (s Struct) Field(name string) (Value, error) {
	f, err := s.class.lookupField(name, instanceField)
	if err != nil {
		return Value{}, err
	}
	return f.Value(s)
}

// Fields decodes every instance field of the struct.
func (s Struct) Fields() ([]NamedValue, error) {
	return instanceFields(s.class, s)
}

func (s Struct) String() string {
	return fmt.Sprintf("%s@%#x", s.class.FullName(), s.addr)
}

// NamedValue is a decoded field. Err is set when the field could not be
// decoded, the other fields are still listed.
type NamedValue struct {
	Name  string
	Value Value
	Err   error
}

func instanceFields(c Class, inst Instance) ([]NamedValue, error) {
	fields, err := c.AllFields()
	if err != nil {
		return nil, err
	}
	var out []NamedValue
	for _, f := range fields {
		if f.IsStatic() {
			continue
		}
		v, err := f.Value(inst)
		out = append(out, NamedValue{Name: f.Name(), Value: v, Err: err})
	}
	return out, nil
}
