package hearthstone

import (
	"errors"
	"fmt"

	"github.com/monomirror/monomirror/pkg/mono"
)

// reader walks the object graph and keeps the first error it meets, so
// that extraction code can read a long list of fields and check once.
type reader struct {
	img *mono.Image
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// static reads a static field of a class of the image.
func (r *reader) static(class, field string) mono.Value {
	if r.err != nil {
		return mono.Value{}
	}
	v, err := r.img.StaticValue(class, field)
	r.fail(err)
	return v
}

// instance reads the s_instance singleton of a manager class.
func (r *reader) instance(class string) mono.Value {
	return r.static(class, "s_instance")
}

// get follows path from v. A null on the way is an error.
func (r *reader) get(v mono.Value, path ...string) mono.Value {
	if r.err != nil {
		return mono.Value{}
	}
	out, err := v.Get(path...)
	r.fail(err)
	return out
}

// opt follows path from v. A null on the way makes the result null.
func (r *reader) opt(v mono.Value, path ...string) mono.Value {
	if r.err != nil {
		return mono.Value{}
	}
	out, err := v.Get(path...)
	if errors.Is(err, mono.ErrNullReference) {
		return mono.Value{}
	}
	r.fail(err)
	return out
}

func (r *reader) intOf(v mono.Value) int {
	n, ok := v.AsInt()
	if !ok && !v.IsNull() {
		r.fail(fmt.Errorf("expected integer, got %s", v.Kind()))
	}
	return int(n)
}

func (r *reader) int64Of(v mono.Value) int64 {
	n, ok := v.AsInt()
	if !ok && !v.IsNull() {
		r.fail(fmt.Errorf("expected integer, got %s", v.Kind()))
	}
	return n
}

func (r *reader) boolOf(v mono.Value) bool {
	b, ok := v.AsBool()
	if !ok && !v.IsNull() {
		r.fail(fmt.Errorf("expected bool, got %s", v.Kind()))
	}
	return b
}

func (r *reader) stringOf(v mono.Value) string {
	s, ok := v.AsString()
	if !ok && !v.IsNull() {
		r.fail(fmt.Errorf("expected string, got %s", v.Kind()))
	}
	return s
}

// list returns the live elements of a System.Collections.Generic.List.
func (r *reader) list(v mono.Value) []mono.Value {
	items := r.get(v, "_items")
	size := r.intOf(r.get(v, "_size"))
	if r.err != nil {
		return nil
	}
	if size < 0 || size > items.Len() {
		r.fail(&mono.CorruptDataError{What: "list size", Value: int64(size)})
		return nil
	}
	return items.Array()[:size]
}

// dictValues returns the value slots of a Dictionary, empty slots
// included.
func (r *reader) dictValues(v mono.Value) []mono.Value {
	return r.get(v, "valueSlots").Array()
}

// className returns the runtime class name of an object value, or "" for
// null.
func className(v mono.Value) string {
	if c, ok := v.Class(); ok {
		return c.Name()
	}
	return ""
}

// netCacheValue returns the first net cache entry of the given class.
func (r *reader) netCacheValue(values []mono.Value, class string) mono.Value {
	for _, v := range values {
		if className(v) == class {
			return v
		}
	}
	return mono.Value{}
}
