package starbind

import (
	"fmt"
	"reflect"

	"go.starlark.net/starlark"

	"github.com/monomirror/monomirror/pkg/mono"
)

// interfaceToStarlarkValue converts a Go value returned by the extraction
// helpers into a starlark.Value.
func (env *Env) interfaceToStarlarkValue(v interface{}) starlark.Value {
	switch v := v.(type) {
	case uint8:
		return starlark.MakeUint64(uint64(v))
	case uint16:
		return starlark.MakeUint64(uint64(v))
	case uint32:
		return starlark.MakeUint64(uint64(v))
	case uint64:
		return starlark.MakeUint64(v)
	case uint:
		return starlark.MakeUint64(uint64(v))
	case int8:
		return starlark.MakeInt64(int64(v))
	case int16:
		return starlark.MakeInt64(int64(v))
	case int32:
		return starlark.MakeInt64(int64(v))
	case int64:
		return starlark.MakeInt64(v)
	case int:
		return starlark.MakeInt64(int64(v))
	case bool:
		return starlark.Bool(v)
	case float64:
		return starlark.Float(v)
	case string:
		return starlark.String(v)
	case mono.Value:
		return env.valueToStarlarkValue(v)
	case nil:
		return starlark.None
	case error:
		return starlark.String(v.Error())
	default:
		vval := reflect.ValueOf(v)
		switch vval.Type().Kind() {
		case reflect.Ptr:
			if vval.IsNil() {
				return starlark.None
			}
			vval = vval.Elem()
			if vval.Type().Kind() == reflect.Struct {
				return structAsStarlarkValue{vval, env}
			}
		case reflect.Struct:
			return structAsStarlarkValue{vval, env}
		case reflect.Slice:
			return sliceAsStarlarkValue{vval, env}
		}
		return starlark.String(fmt.Sprintf("%v", v))
	}
}

// valueToStarlarkValue converts a decoded runtime value. Primitives become
// starlark primitives, arrays are indexable and objects and structs expose
// their instance fields as attributes.
func (env *Env) valueToStarlarkValue(v mono.Value) starlark.Value {
	switch v.Kind() {
	case mono.KindBool:
		b, _ := v.AsBool()
		return starlark.Bool(b)
	case mono.KindInt:
		n, _ := v.AsInt()
		return starlark.MakeInt64(n)
	case mono.KindUint:
		n, _ := v.AsUint()
		if v.Tag() == mono.TypeChar {
			return starlark.String(string(rune(n)))
		}
		return starlark.MakeUint64(n)
	case mono.KindFloat:
		f, _ := v.AsFloat()
		return starlark.Float(f)
	case mono.KindString:
		s, _ := v.AsString()
		return starlark.String(s)
	case mono.KindArray:
		return arrayAsStarlarkValue{v, env}
	case mono.KindObject, mono.KindStruct:
		return instanceAsStarlarkValue{v, env}
	}
	return starlark.None
}

// sliceAsStarlarkValue converts a reflect.Value containing a slice
// into a starlark value.
// The public methods of sliceAsStarlarkValue implement the Indexable and
// Sequence starlark interfaces.
type sliceAsStarlarkValue struct {
	v   reflect.Value
	env *Env
}

var _ starlark.Indexable = sliceAsStarlarkValue{}
var _ starlark.Sequence = sliceAsStarlarkValue{}

func (v sliceAsStarlarkValue) Freeze() {
}

func (v sliceAsStarlarkValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("not hashable")
}

func (v sliceAsStarlarkValue) String() string {
	return fmt.Sprintf("%v", v.v)
}

func (v sliceAsStarlarkValue) Truth() starlark.Bool {
	return v.v.Len() != 0
}

func (v sliceAsStarlarkValue) Type() string {
	return v.v.Type().String()
}

func (v sliceAsStarlarkValue) Index(i int) starlark.Value {
	if i >= v.v.Len() {
		return nil
	}
	return v.env.interfaceToStarlarkValue(v.v.Index(i).Interface())
}

func (v sliceAsStarlarkValue) Len() int {
	return v.v.Len()
}

func (v sliceAsStarlarkValue) Iterate() starlark.Iterator {
	return &sliceAsStarlarkValueIterator{0, v.v, v.env}
}

type sliceAsStarlarkValueIterator struct {
	cur int
	v   reflect.Value
	env *Env
}

func (it *sliceAsStarlarkValueIterator) Done() {
}

func (it *sliceAsStarlarkValueIterator) Next(p *starlark.Value) bool {
	if it.cur >= it.v.Len() {
		return false
	}
	*p = it.env.interfaceToStarlarkValue(it.v.Index(it.cur).Interface())
	it.cur++
	return true
}

// structAsStarlarkValue converts any Go struct into a starlark.Value.
// The public methods of structAsStarlarkValue implement the
// starlark.HasAttrs interface.
type structAsStarlarkValue struct {
	v   reflect.Value
	env *Env
}

var _ starlark.HasAttrs = structAsStarlarkValue{}

func (v structAsStarlarkValue) Freeze() {
}

func (v structAsStarlarkValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("not hashable")
}

func (v structAsStarlarkValue) String() string {
	return fmt.Sprintf("%+v", v.v.Interface())
}

func (v structAsStarlarkValue) Truth() starlark.Bool {
	return true
}

func (v structAsStarlarkValue) Type() string {
	return v.v.Type().String()
}

func (v structAsStarlarkValue) Attr(name string) (starlark.Value, error) {
	r := v.v.FieldByName(name)
	if r == (reflect.Value{}) {
		return starlark.None, fmt.Errorf("no field named %q in %T", name, v.v.Interface())
	}
	return v.env.interfaceToStarlarkValue(r.Interface()), nil
}

func (v structAsStarlarkValue) AttrNames() []string {
	typ := v.v.Type()
	r := make([]string, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		if typ.Field(i).IsExported() {
			r = append(r, typ.Field(i).Name)
		}
	}
	return r
}

// arrayAsStarlarkValue wraps a decoded array. Elements are converted
// lazily on access.
type arrayAsStarlarkValue struct {
	v   mono.Value
	env *Env
}

var _ starlark.Indexable = arrayAsStarlarkValue{}
var _ starlark.Sequence = arrayAsStarlarkValue{}

func (v arrayAsStarlarkValue) Freeze() {
}

func (v arrayAsStarlarkValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("not hashable")
}

func (v arrayAsStarlarkValue) String() string {
	return v.v.String()
}

func (v arrayAsStarlarkValue) Truth() starlark.Bool {
	return v.v.Len() != 0
}

func (v arrayAsStarlarkValue) Type() string {
	return "array"
}

func (v arrayAsStarlarkValue) Index(i int) starlark.Value {
	el, err := v.v.Index(i)
	if err != nil {
		return nil
	}
	return v.env.valueToStarlarkValue(el)
}

func (v arrayAsStarlarkValue) Len() int {
	return v.v.Len()
}

func (v arrayAsStarlarkValue) Iterate() starlark.Iterator {
	return &arrayIterator{v.v.Array(), v.env}
}

type arrayIterator struct {
	elems []mono.Value
	env   *Env
}

func (it *arrayIterator) Done() {
}

func (it *arrayIterator) Next(p *starlark.Value) bool {
	if len(it.elems) == 0 {
		return false
	}
	*p = it.env.valueToStarlarkValue(it.elems[0])
	it.elems = it.elems[1:]
	return true
}

// instanceAsStarlarkValue wraps an object or struct value. Attributes are
// the instance fields of its class and of its ancestors, decoded on
// access. The pseudo attributes __class__ and __address__ report the
// runtime class name and the remote address.
type instanceAsStarlarkValue struct {
	v   mono.Value
	env *Env
}

var _ starlark.HasAttrs = instanceAsStarlarkValue{}

const (
	classAttr   = "__class__"
	addressAttr = "__address__"
)

func (v instanceAsStarlarkValue) Freeze() {
}

func (v instanceAsStarlarkValue) Hash() (uint32, error) {
	return uint32(v.address()), nil
}

func (v instanceAsStarlarkValue) String() string {
	return v.v.String()
}

func (v instanceAsStarlarkValue) Truth() starlark.Bool {
	return true
}

func (v instanceAsStarlarkValue) Type() string {
	if cls, ok := v.v.Class(); ok {
		return cls.FullName()
	}
	return v.v.Kind().String()
}

func (v instanceAsStarlarkValue) address() uint64 {
	if o, ok := v.v.AsObject(); ok {
		return o.Address()
	}
	if s, ok := v.v.AsStruct(); ok {
		return s.Address()
	}
	return 0
}

func (v instanceAsStarlarkValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case classAttr:
		return starlark.String(v.Type()), nil
	case addressAttr:
		return starlark.MakeUint64(v.address()), nil
	}
	r, err := v.v.Field(name)
	if err != nil {
		return starlark.None, err
	}
	return v.env.valueToStarlarkValue(r), nil
}

func (v instanceAsStarlarkValue) AttrNames() []string {
	cls, ok := v.v.Class()
	if !ok {
		return nil
	}
	fields, err := cls.AllFields()
	if err != nil {
		return nil
	}
	r := make([]string, 0, len(fields))
	for _, f := range fields {
		if !f.IsStatic() {
			r = append(r, f.Name())
		}
	}
	return r
}
