package mono

import (
	"errors"
	"fmt"
)

// ErrNullReference is returned when navigating through a null value.
var ErrNullReference = errors.New("null reference")

// UnresolvedClassError is returned when an image has no class with the
// requested fully qualified name.
type UnresolvedClassError struct {
	Name string
}

func (e *UnresolvedClassError) Error() string {
	return fmt.Sprintf("could not find class %q", e.Name)
}

// UnresolvedFieldError is returned when a class, and none of its parents,
// declares the requested field. It is distinct from a field that exists and
// holds null.
type UnresolvedFieldError struct {
	Class  string
	Field  string
	Static bool
}

func (e *UnresolvedFieldError) Error() string {
	if e.Static {
		return fmt.Sprintf("class %s has no static field %q", e.Class, e.Field)
	}
	return fmt.Sprintf("class %s has no field %q", e.Class, e.Field)
}

// UnsupportedTypeTagError is returned for a field whose type can not be
// decoded into a value.
type UnsupportedTypeTagError struct {
	Tag  TypeTag
	Addr uint64
}

func (e *UnsupportedTypeTagError) Error() string {
	return fmt.Sprintf("can not decode value of type %s at %#x", e.Tag, e.Addr)
}

// CorruptDataError is returned when target memory holds a value no live
// runtime could have produced, usually because the structure was freed or
// moved while it was being read.
type CorruptDataError struct {
	What  string
	Addr  uint64
	Value int64
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("corrupt %s at %#x: %d", e.What, e.Addr, e.Value)
}
