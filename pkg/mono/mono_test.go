package mono_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/monomirror/monomirror/pkg/mono"
	"github.com/monomirror/monomirror/pkg/mono/monotest"
	"github.com/monomirror/monomirror/pkg/proc"
)

func newRuntime(b *monotest.Builder) *mono.Runtime {
	return mono.NewRuntime(proc.NewView(b.Mem, proc.DefaultCachePages), b.Off)
}

// staticClass allocates a class holding only static fields and returns it
// together with its static storage.
func staticClass(b *monotest.Builder, name string, fields ...monotest.FieldSpec) (cls, data uint64) {
	cls = b.Class(monotest.ClassSpec{Name: name, Namespace: "Test"})
	for i := range fields {
		fields[i].Static = true
	}
	b.SetFields(cls, fields...)
	return cls, b.StaticData(cls, 64)
}

func mustStatic(t *testing.T, rt *mono.Runtime, cls uint64, name string) mono.Value {
	t.Helper()
	v, err := rt.ClassAt(cls).StaticValue(name)
	if err != nil {
		t.Fatalf("StaticValue(%q): %v", name, err)
	}
	return v
}

func TestFullName(t *testing.T) {
	b := monotest.New(mono.DefaultOffsets())
	outer := b.Class(monotest.ClassSpec{Name: "Outer", Namespace: "Ns"})
	inner := b.Class(monotest.ClassSpec{Name: "Inner", NestedIn: outer})
	innermost := b.Class(monotest.ClassSpec{Name: "Innermost", NestedIn: inner})
	plain := b.Class(monotest.ClassSpec{Name: "Plain"})
	rt := newRuntime(b)

	tests := []struct {
		addr uint64
		want string
	}{
		{outer, "Ns.Outer"},
		{inner, "Ns.Outer+Inner"},
		{innermost, "Ns.Outer+Inner+Innermost"},
		{plain, "Plain"},
	}
	for _, tc := range tests {
		if got := rt.ClassAt(tc.addr).FullName(); got != tc.want {
			t.Errorf("FullName() = %q, want %q", got, tc.want)
		}
	}
}

func TestEndToEnd(t *testing.T) {
	b := monotest.New(mono.DefaultOffsets())
	cls := b.Class(monotest.ClassSpec{Name: "Data", Namespace: "Game", Size: 16})
	b.SetFields(cls,
		monotest.FieldSpec{Name: "s_instance", Tag: mono.TypeClass, Data: cls, Static: true},
		monotest.FieldSpec{Name: "intField", Tag: mono.TypeI4, Offset: 8},
		monotest.FieldSpec{Name: "stringField", Tag: mono.TypeString, Offset: 12},
	)
	obj := b.Object(cls, 16)
	b.Put32(obj+8, 42)
	b.PutPtr(obj+12, b.String("abc"))
	b.PutPtr(b.StaticData(cls, 4), obj)
	img := b.Image(cls, b.Class(monotest.ClassSpec{Name: "Other", Namespace: "Game"}))

	rt := newRuntime(b)
	image, err := rt.LoadImage(img)
	if err != nil {
		t.Fatal(err)
	}
	if image.Len() != 2 {
		t.Fatalf("image has %d classes, want 2", image.Len())
	}
	inst, err := image.StaticValue("Game.Data", "s_instance")
	if err != nil {
		t.Fatal(err)
	}
	o, ok := inst.AsObject()
	if !ok {
		t.Fatalf("s_instance is %s, want object", inst.Kind())
	}
	if o.Address() != obj {
		t.Fatalf("s_instance = %#x, want %#x", o.Address(), obj)
	}
	if name := o.Class().FullName(); name != "Game.Data" {
		t.Fatalf("runtime class %q", name)
	}

	n, err := inst.Get("intField")
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := n.AsInt(); !ok || got != 42 || n.Tag() != mono.TypeI4 {
		t.Errorf("intField = %v (%s), want 42", n, n.Tag())
	}
	s, err := inst.Get("stringField")
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := s.AsString(); !ok || got != "abc" {
		t.Errorf("stringField = %v, want \"abc\"", s)
	}

	fields, err := o.Fields()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range fields {
		names = append(names, f.Name)
	}
	if want := []string{"intField", "stringField"}; !reflect.DeepEqual(names, want) {
		t.Errorf("instance fields %v, want %v", names, want)
	}
}

func TestStrings(t *testing.T) {
	b := monotest.New(mono.DefaultOffsets())
	cls, data := staticClass(b, "Strings",
		monotest.FieldSpec{Name: "null", Tag: mono.TypeString, Offset: 0},
		monotest.FieldSpec{Name: "empty", Tag: mono.TypeString, Offset: 4},
		monotest.FieldSpec{Name: "text", Tag: mono.TypeString, Offset: 8},
	)
	const text = "Tirion Fordring é中 \U0001f0a1"
	b.PutPtr(data+4, b.String(""))
	b.PutPtr(data+8, b.String(text))
	rt := newRuntime(b)

	if v := mustStatic(t, rt, cls, "null"); !v.IsNull() {
		t.Errorf("null string decoded as %v", v)
	}
	if v := mustStatic(t, rt, cls, "empty"); v.Kind() != mono.KindString || v.Len() != 0 {
		t.Errorf("empty string decoded as %v", v)
	}
	v := mustStatic(t, rt, cls, "text")
	if got, _ := v.AsString(); got != text {
		t.Errorf("got %q, want %q", got, text)
	}
}

func TestPrimitives(t *testing.T) {
	b := monotest.New(mono.DefaultOffsets())
	cls, data := staticClass(b, "Primitives",
		monotest.FieldSpec{Name: "b", Tag: mono.TypeBoolean, Offset: 0},
		monotest.FieldSpec{Name: "c", Tag: mono.TypeChar, Offset: 2},
		monotest.FieldSpec{Name: "i1", Tag: mono.TypeI1, Offset: 4},
		monotest.FieldSpec{Name: "u1", Tag: mono.TypeU1, Offset: 5},
		monotest.FieldSpec{Name: "i2", Tag: mono.TypeI2, Offset: 6},
		monotest.FieldSpec{Name: "u2", Tag: mono.TypeU2, Offset: 8},
		monotest.FieldSpec{Name: "i4", Tag: mono.TypeI4, Offset: 12},
		monotest.FieldSpec{Name: "u4", Tag: mono.TypeU4, Offset: 16},
		monotest.FieldSpec{Name: "i8", Tag: mono.TypeI8, Offset: 24},
		monotest.FieldSpec{Name: "u8", Tag: mono.TypeU8, Offset: 32},
		monotest.FieldSpec{Name: "r4", Tag: mono.TypeR4, Offset: 40},
		monotest.FieldSpec{Name: "r8", Tag: mono.TypeR8, Offset: 44},
		monotest.FieldSpec{Name: "i", Tag: mono.TypeI, Offset: 52},
		monotest.FieldSpec{Name: "u", Tag: mono.TypeU, Offset: 56},
	)
	b.Put8(data+0, 1)
	b.Put16(data+2, 'x')
	b.Put8(data+4, 0x80)
	b.Put8(data+5, 0xff)
	b.Put16(data+6, 0xfffe)
	b.Put16(data+8, 0xfffe)
	b.Put32(data+12, 0xfffffffd)
	b.Put32(data+16, 0xfffffffd)
	b.Put64(data+24, 1<<63)
	b.Put64(data+32, 1<<63)
	b.PutFloat32(data+40, 1.5)
	b.PutFloat64(data+44, -2.25)
	b.Put32(data+52, 0xffffffff)
	b.Put32(data+56, 0xffffffff)
	rt := newRuntime(b)

	if v := mustStatic(t, rt, cls, "b"); v.Kind() != mono.KindBool || v.String() != "true" {
		t.Errorf("b = %v", v)
	}
	if v := mustStatic(t, rt, cls, "c"); v.String() != "'x'" {
		t.Errorf("c = %v", v)
	}
	signed := map[string]int64{
		"i1": -128,
		"i2": -2,
		"i4": -3,
		"i8": -1 << 63,
		"i":  -1,
	}
	for name, want := range signed {
		v := mustStatic(t, rt, cls, name)
		if got, ok := v.AsInt(); v.Kind() != mono.KindInt || !ok || got != want {
			t.Errorf("%s = %v (%s), want %d", name, v, v.Kind(), want)
		}
	}
	unsigned := map[string]uint64{
		"u1": 0xff,
		"u2": 0xfffe,
		"u4": 0xfffffffd,
		"u8": 1 << 63,
		"u":  0xffffffff,
	}
	for name, want := range unsigned {
		v := mustStatic(t, rt, cls, name)
		if got, ok := v.AsUint(); v.Kind() != mono.KindUint || !ok || got != want {
			t.Errorf("%s = %v (%s), want %d", name, v, v.Kind(), want)
		}
	}
	if v, _ := mustStatic(t, rt, cls, "r4").AsFloat(); v != 1.5 {
		t.Errorf("r4 = %v", v)
	}
	if v, _ := mustStatic(t, rt, cls, "r8").AsFloat(); v != -2.25 {
		t.Errorf("r8 = %v", v)
	}
}

func TestEnumUsesUnderlyingType(t *testing.T) {
	b := monotest.New(mono.DefaultOffsets())
	sbyte := b.Primitive("SByte", mono.TypeI1)
	ushort := b.Primitive("UInt16", mono.TypeU2)
	small := b.Class(monotest.ClassSpec{Name: "Small", ValueType: true, Enum: true, ElementClass: sbyte})
	wide := b.Class(monotest.ClassSpec{Name: "Wide", ValueType: true, Enum: true, ElementClass: ushort})
	cls, data := staticClass(b, "Enums",
		monotest.FieldSpec{Name: "small", Tag: mono.TypeValueType, Data: small, Offset: 0},
		monotest.FieldSpec{Name: "wide", Tag: mono.TypeValueType, Data: wide, Offset: 4},
	)
	b.Put32(data, 0xfffffffd)
	b.Put32(data+4, 0xfffffffe)
	rt := newRuntime(b)

	v := mustStatic(t, rt, cls, "small")
	if got, ok := v.AsInt(); !ok || got != -3 || v.Tag() != mono.TypeI1 {
		t.Errorf("small = %v (%s), want -3 (I1)", v, v.Tag())
	}
	v = mustStatic(t, rt, cls, "wide")
	if got, ok := v.AsUint(); !ok || got != 0xfffe || v.Tag() != mono.TypeU2 {
		t.Errorf("wide = %v (%s), want 65534 (U2)", v, v.Tag())
	}
}

func TestArrays(t *testing.T) {
	b := monotest.New(mono.DefaultOffsets())
	i4 := b.Primitive("Int32", mono.TypeI4)
	sbyte := b.Primitive("SByte", mono.TypeI1)
	mode := b.Class(monotest.ClassSpec{Name: "Mode", ValueType: true, Enum: true, ElementClass: sbyte})
	vec := b.Class(monotest.ClassSpec{Name: "Vec", ValueType: true, Size: 16})
	b.SetFields(vec,
		monotest.FieldSpec{Name: "x", Tag: mono.TypeI4, Offset: 8},
		monotest.FieldSpec{Name: "y", Tag: mono.TypeI4, Offset: 12},
	)
	item := b.Class(monotest.ClassSpec{Name: "Item", Size: 8})

	cls, data := staticClass(b, "Arrays",
		monotest.FieldSpec{Name: "ints", Tag: mono.TypeSzArray, Data: i4, Offset: 0},
		monotest.FieldSpec{Name: "empty", Tag: mono.TypeSzArray, Data: i4, Offset: 4},
		monotest.FieldSpec{Name: "null", Tag: mono.TypeSzArray, Data: i4, Offset: 8},
		monotest.FieldSpec{Name: "vecs", Tag: mono.TypeSzArray, Data: vec, Offset: 12},
		monotest.FieldSpec{Name: "items", Tag: mono.TypeSzArray, Data: item, Offset: 16},
		monotest.FieldSpec{Name: "modes", Tag: mono.TypeSzArray, Data: mode, Offset: 20},
	)

	ints, intData := b.Array(b.ArrayClass(i4, 4), 3)
	for i := 0; i < 3; i++ {
		b.Put32(intData+uint64(4*i), uint32(10*(i+1)))
	}
	b.PutPtr(data+0, ints)
	empty, _ := b.Array(b.ArrayClass(i4, 4), 0)
	b.PutPtr(data+4, empty)

	vecs, vecData := b.Array(b.ArrayClass(vec, 8), 2)
	for i := 0; i < 2; i++ {
		b.Put32(vecData+uint64(8*i), uint32(i))
		b.Put32(vecData+uint64(8*i+4), uint32(100+i))
	}
	b.PutPtr(data+12, vecs)

	it := b.Object(item, 8)
	items, itemData := b.Array(b.ArrayClass(item, 4), 2)
	b.PutPtr(itemData, it)
	b.PutPtr(data+16, items)

	modes, modeData := b.Array(b.ArrayClass(mode, 1), 2)
	b.Put8(modeData, 0xff)
	b.Put8(modeData+1, 2)
	b.PutPtr(data+20, modes)
	rt := newRuntime(b)

	v := mustStatic(t, rt, cls, "ints")
	if v.Kind() != mono.KindArray || v.Len() != 3 {
		t.Fatalf("ints = %v", v)
	}
	for i, e := range v.Array() {
		if got, _ := e.AsInt(); got != int64(10*(i+1)) {
			t.Errorf("ints[%d] = %v", i, e)
		}
	}
	if _, err := v.Index(3); err == nil {
		t.Errorf("ints[3] did not fail")
	}

	if v := mustStatic(t, rt, cls, "empty"); v.Kind() != mono.KindArray || v.Len() != 0 {
		t.Errorf("empty = %v (%s)", v, v.Kind())
	}
	if v := mustStatic(t, rt, cls, "null"); !v.IsNull() {
		t.Errorf("null = %v", v)
	}

	v = mustStatic(t, rt, cls, "vecs")
	for i, e := range v.Array() {
		s, ok := e.AsStruct()
		if !ok {
			t.Fatalf("vecs[%d] = %v", i, e)
		}
		if want := vecData + uint64(8*i); s.Address() != want {
			t.Errorf("vecs[%d] at %#x, want %#x", i, s.Address(), want)
		}
		y, err := e.Get("y")
		if err != nil {
			t.Fatal(err)
		}
		if got, _ := y.AsInt(); got != int64(100+i) {
			t.Errorf("vecs[%d].y = %v", i, y)
		}
	}

	v = mustStatic(t, rt, cls, "items")
	if o, ok := v.Array()[0].AsObject(); !ok || o.Address() != it {
		t.Errorf("items[0] = %v", v.Array()[0])
	}
	if !v.Array()[1].IsNull() {
		t.Errorf("items[1] = %v, want null", v.Array()[1])
	}

	v = mustStatic(t, rt, cls, "modes")
	if got, _ := v.Array()[0].AsInt(); got != -1 {
		t.Errorf("modes[0] = %v, want -1", v.Array()[0])
	}
	if got, _ := v.Array()[1].AsInt(); got != 2 {
		t.Errorf("modes[1] = %v, want 2", v.Array()[1])
	}
}

func TestCorruptArrayLength(t *testing.T) {
	b := monotest.New(mono.DefaultOffsets())
	i4 := b.Primitive("Int32", mono.TypeI4)
	cls, data := staticClass(b, "Corrupt",
		monotest.FieldSpec{Name: "ints", Tag: mono.TypeSzArray, Data: i4},
	)
	arr, _ := b.Array(b.ArrayClass(i4, 4), 0)
	b.Put32(arr+uint64(b.Off.ArrayLength), 0xffffffff)
	b.PutPtr(data, arr)
	rt := newRuntime(b)

	_, err := rt.ClassAt(cls).StaticValue("ints")
	var cerr *mono.CorruptDataError
	if !errors.As(err, &cerr) || cerr.Value != -1 {
		t.Fatalf("expected corrupt array length, got %v", err)
	}
}

func TestStructInstanceBase(t *testing.T) {
	b := monotest.New(mono.DefaultOffsets())
	vec := b.Class(monotest.ClassSpec{Name: "Vec", ValueType: true, Size: 16})
	b.SetFields(vec,
		monotest.FieldSpec{Name: "x", Tag: mono.TypeI4, Offset: 8},
		monotest.FieldSpec{Name: "y", Tag: mono.TypeI4, Offset: 12},
	)
	holder := b.Class(monotest.ClassSpec{Name: "Holder", Size: 24})
	b.SetFields(holder, monotest.FieldSpec{Name: "pos", Tag: mono.TypeValueType, Data: vec, Offset: 12})
	obj := b.Object(holder, 24)
	b.Put32(obj+12, 7)
	b.Put32(obj+16, 9)
	rt := newRuntime(b)

	pos, err := rt.ObjectAt(obj).Field("pos")
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := pos.AsStruct(); !ok || s.Address() != obj+12 || s.Class().Name() != "Vec" {
		t.Fatalf("pos = %v", pos)
	}
	for name, want := range map[string]int64{"x": 7, "y": 9} {
		v, err := pos.Field(name)
		if err != nil {
			t.Fatal(err)
		}
		if got, _ := v.AsInt(); got != want {
			t.Errorf("pos.%s = %v, want %d", name, v, want)
		}
	}
}

func TestInheritedField(t *testing.T) {
	b := monotest.New(mono.DefaultOffsets())
	base := b.Class(monotest.ClassSpec{Name: "Base"})
	b.SetFields(base, monotest.FieldSpec{Name: "id", Tag: mono.TypeI4, Offset: 8})
	derived := b.Class(monotest.ClassSpec{Name: "Derived", Parent: base})
	b.SetFields(derived, monotest.FieldSpec{Name: "count", Tag: mono.TypeI4, Offset: 12})
	obj := b.Object(derived, 16)
	b.Put32(obj+8, 5)
	b.Put32(obj+12, 6)
	rt := newRuntime(b)

	o := rt.ObjectAt(obj)
	v, err := o.Field("id")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := v.AsInt(); got != 5 {
		t.Errorf("id = %v", v)
	}
	all, err := o.Fields()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Name != "count" || all[1].Name != "id" {
		t.Errorf("fields %v", all)
	}
}

func TestGenericInst(t *testing.T) {
	b := monotest.New(mono.DefaultOffsets())
	nullable := b.Class(monotest.ClassSpec{Name: "Nullable`1", ValueType: true})
	list := b.Class(monotest.ClassSpec{Name: "List`1"})
	genericOf := func(container uint64) uint64 {
		gc := b.Alloc(4)
		b.PutPtr(gc, container)
		return gc
	}
	cls, data := staticClass(b, "Generics",
		monotest.FieldSpec{Name: "nullable", Tag: mono.TypeGenericInst, Data: genericOf(nullable), Offset: 0},
		monotest.FieldSpec{Name: "list", Tag: mono.TypeGenericInst, Data: genericOf(list), Offset: 8},
	)
	b.Put32(data, 1)
	obj := b.Object(list, 16)
	b.PutPtr(data+8, obj)
	rt := newRuntime(b)

	if v := mustStatic(t, rt, cls, "nullable"); !v.IsNull() {
		t.Errorf("generic value type decoded as %v", v)
	}
	if o, ok := mustStatic(t, rt, cls, "list").AsObject(); !ok || o.Address() != obj {
		t.Errorf("generic reference type not decoded as object")
	}
}

func TestErrors(t *testing.T) {
	b := monotest.New(mono.DefaultOffsets())
	cls, _ := staticClass(b, "Errors",
		monotest.FieldSpec{Name: "ptr", Tag: mono.TypePtr},
	)
	b.SetFields(cls,
		monotest.FieldSpec{Name: "ptr", Tag: mono.TypePtr, Static: true},
		monotest.FieldSpec{Name: "inst", Tag: mono.TypeI4, Offset: 8},
	)
	uninit := b.Class(monotest.ClassSpec{Name: "Uninitialized"})
	b.SetFields(uninit, monotest.FieldSpec{Name: "s", Tag: mono.TypeI4, Static: true})
	rt := newRuntime(b)
	image, err := rt.LoadImage(b.Image(cls))
	if err != nil {
		t.Fatal(err)
	}

	var cerr *mono.UnresolvedClassError
	if _, err := image.Class("Test.Missing"); !errors.As(err, &cerr) || cerr.Name != "Test.Missing" {
		t.Errorf("missing class: %v", err)
	}

	c := rt.ClassAt(cls)
	var ferr *mono.UnresolvedFieldError
	if _, err := c.Field("missing"); !errors.As(err, &ferr) || ferr.Field != "missing" || ferr.Class != "Test.Errors" {
		t.Errorf("missing field: %v", err)
	}
	if _, err := c.StaticValue("inst"); !errors.As(err, &ferr) || !ferr.Static {
		t.Errorf("instance field as static: %v", err)
	}

	var terr *mono.UnsupportedTypeTagError
	if _, err := c.StaticValue("ptr"); !errors.As(err, &terr) || terr.Tag != mono.TypePtr {
		t.Errorf("pointer field: %v", err)
	}

	f, err := c.Field("inst")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Value(nil); !errors.Is(err, mono.ErrNullReference) {
		t.Errorf("instance field without instance: %v", err)
	}

	v, err := rt.ClassAt(uninit).StaticValue("s")
	if err != nil || !v.IsNull() {
		t.Errorf("static field of uninitialized class = %v, %v", v, err)
	}
}

func TestValueNavigation(t *testing.T) {
	var null mono.Value
	if _, err := null.Get("a", "b"); !errors.Is(err, mono.ErrNullReference) {
		t.Errorf("Get through null: %v", err)
	}
	if _, err := null.Index(0); !errors.Is(err, mono.ErrNullReference) {
		t.Errorf("Index of null: %v", err)
	}
	if null.String() != "null" || null.Kind() != mono.KindNull || null.Len() != 0 {
		t.Errorf("zero value is not null")
	}
}

func TestImageNames(t *testing.T) {
	b := monotest.New(mono.DefaultOffsets())
	var classes []uint64
	for _, spec := range []monotest.ClassSpec{
		{Name: "Deck", Namespace: "Game"},
		{Name: "Data", Namespace: "Game"},
		{Name: "Thing", Namespace: "Other"},
		{Name: "NetCache"},
	} {
		classes = append(classes, b.Class(spec))
	}
	rt := newRuntime(b)
	image, err := rt.LoadImage(b.Image(classes...))
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"Game.Data", "Game.Deck", "NetCache", "Other.Thing"}
	if got := image.ClassNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("ClassNames() = %v, want %v", got, want)
	}
	if got := image.Complete("Game."); !reflect.DeepEqual(got, want[:2]) {
		t.Errorf("Complete() = %v", got)
	}
	if got := image.Search("Deck"); !reflect.DeepEqual(got, []string{"Game.Deck"}) {
		t.Errorf("Search() = %v", got)
	}
	if c, err := image.Class("NetCache"); err != nil || c.Address() != classes[3] {
		t.Errorf("Class(NetCache) = %v, %v", c, err)
	}
}

func TestTypeTagString(t *testing.T) {
	if s := mono.TypeSzArray.String(); s != "SzArray" {
		t.Errorf("got %q", s)
	}
	if s := mono.TypeTag(0x7f).String(); s != "TypeTag(0x7f)" {
		t.Errorf("got %q", s)
	}
}
