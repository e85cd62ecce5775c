// Package monotest lays out runtime structures in a fake address space so
// that the readers can be tested without a target process.
package monotest

import (
	"encoding/binary"
	"errors"
	"math"
	"sort"
	"unicode/utf16"

	"github.com/monomirror/monomirror/pkg/mono"
)

const (
	// ArenaBase is where Builder allocations start.
	ArenaBase = 0x10000

	pageSize = 0x1000
	align    = 16
)

var errUnmapped = errors.New("address not mapped")

type region struct {
	addr uint64
	data []byte
}

// end returns the end of the region rounded up to whole pages, as the
// operating system would map it.
func (r *region) end() uint64 {
	n := (uint64(len(r.data)) + pageSize - 1) &^ (pageSize - 1)
	return r.addr + n
}

// Memory is a sparse address space made of page granular regions.
type Memory struct {
	regions []*region
	Reads   int
}

// Map places data at addr.
func (m *Memory) Map(addr uint64, data []byte) {
	m.regions = append(m.regions, &region{addr: addr, data: data})
	sort.Slice(m.regions, func(i, j int) bool { return m.regions[i].addr < m.regions[j].addr })
}

func (m *Memory) find(addr uint64) *region {
	for _, r := range m.regions {
		if addr >= r.addr && addr < r.end() {
			return r
		}
	}
	return nil
}

// ReadMemory copies memory starting at addr into buf. Reads stop at the
// first unmapped byte.
func (m *Memory) ReadMemory(buf []byte, addr uint64) (int, error) {
	m.Reads++
	n := 0
	for n < len(buf) {
		r := m.find(addr + uint64(n))
		if r == nil {
			return n, errUnmapped
		}
		off := addr + uint64(n) - r.addr
		chunk := buf[n:]
		if room := r.end() - (addr + uint64(n)); uint64(len(chunk)) > room {
			chunk = chunk[:room]
		}
		c := 0
		if off < uint64(len(r.data)) {
			c = copy(chunk, r.data[off:])
		}
		for i := c; i < len(chunk); i++ {
			chunk[i] = 0
		}
		n += len(chunk)
	}
	return n, nil
}

// Builder allocates runtime structures laid out with Off.
type Builder struct {
	Off mono.Offsets
	Mem *Memory

	arena   *region
	vtables map[uint64]uint64
}

// New returns a Builder with an empty arena at ArenaBase.
func New(off mono.Offsets) *Builder {
	b := &Builder{
		Off:     off,
		Mem:     &Memory{},
		arena:   &region{addr: ArenaBase},
		vtables: make(map[uint64]uint64),
	}
	b.Mem.regions = []*region{b.arena}
	return b
}

// Alloc returns the address of size zeroed bytes.
func (b *Builder) Alloc(size int) uint64 {
	for len(b.arena.data)%align != 0 {
		b.arena.data = append(b.arena.data, 0)
	}
	addr := b.arena.addr + uint64(len(b.arena.data))
	b.arena.data = append(b.arena.data, make([]byte, size)...)
	return addr
}

func (b *Builder) bytes(addr uint64, n int) []byte {
	off := addr - b.arena.addr
	return b.arena.data[off : off+uint64(n)]
}

func (b *Builder) Put8(addr uint64, v uint8)   { b.bytes(addr, 1)[0] = v }
func (b *Builder) Put16(addr uint64, v uint16) { binary.LittleEndian.PutUint16(b.bytes(addr, 2), v) }
func (b *Builder) Put32(addr uint64, v uint32) { binary.LittleEndian.PutUint32(b.bytes(addr, 4), v) }
func (b *Builder) Put64(addr uint64, v uint64) { binary.LittleEndian.PutUint64(b.bytes(addr, 8), v) }
func (b *Builder) PutPtr(addr, p uint64)       { b.Put32(addr, uint32(p)) }

func (b *Builder) PutFloat32(addr uint64, f float32) { b.Put32(addr, math.Float32bits(f)) }
func (b *Builder) PutFloat64(addr uint64, f float64) { b.Put64(addr, math.Float64bits(f)) }

func (b *Builder) at(addr uint64, off uint32) uint64 { return addr + uint64(off) }

// CString allocates a NUL terminated string.
func (b *Builder) CString(s string) uint64 {
	addr := b.Alloc(len(s) + 1)
	copy(b.bytes(addr, len(s)), s)
	return addr
}

// ClassSpec describes a class to allocate.
type ClassSpec struct {
	Name      string
	Namespace string
	NestedIn  uint64
	Parent    uint64
	ValueType bool
	Enum      bool
	// Size is the instance size, or the element stride of an array class.
	Size int32
	// ByvalTag is the type tag of a value of the class. Defaults to
	// TypeClass, or TypeValueType for value types.
	ByvalTag mono.TypeTag
	// ElementClass is the element class of an array class, or the
	// underlying type class of an enum.
	ElementClass uint64
}

// Class allocates a class and returns its address.
func (b *Builder) Class(spec ClassSpec) uint64 {
	o := b.Off
	c := b.Alloc(int(o.ClassNextClassCache) + 4)
	b.PutPtr(b.at(c, o.ClassName), b.CString(spec.Name))
	b.PutPtr(b.at(c, o.ClassNamespace), b.CString(spec.Namespace))
	b.PutPtr(b.at(c, o.ClassNestedIn), spec.NestedIn)
	b.PutPtr(b.at(c, o.ClassParent), spec.Parent)
	b.PutPtr(b.at(c, o.ClassElementClass), spec.ElementClass)
	b.Put32(b.at(c, o.ClassSizes), uint32(spec.Size))
	var bits uint32
	if spec.ValueType {
		bits |= 0x8
	}
	if spec.Enum {
		bits |= 0x10
	}
	b.Put32(b.at(c, o.ClassBitfields), bits)
	tag := spec.ByvalTag
	if tag == 0 {
		tag = mono.TypeClass
		if spec.ValueType {
			tag = mono.TypeValueType
		}
	}
	byval := b.at(c, o.ClassByvalArg)
	b.PutPtr(byval, c)
	b.Put32(b.at(byval, o.TypeAttrs), uint32(tag)<<16)
	return c
}

// Primitive allocates the class of a primitive type, as used for array
// element classes and enum underlying types.
func (b *Builder) Primitive(name string, tag mono.TypeTag) uint64 {
	return b.Class(ClassSpec{Name: name, Namespace: "System", ValueType: true, ByvalTag: tag})
}

// FieldSpec describes a field to allocate.
type FieldSpec struct {
	Name   string
	Tag    mono.TypeTag
	Data   uint64
	Static bool
	ByRef  bool
	Offset int32
}

// Type allocates a MonoType.
func (b *Builder) Type(tag mono.TypeTag, data uint64, static, byRef bool) uint64 {
	t := b.Alloc(8)
	attrs := uint32(tag) << 16
	if static {
		attrs |= 0x10
	}
	if byRef {
		attrs |= 0x40000000
	}
	b.PutPtr(t, data)
	b.Put32(b.at(t, b.Off.TypeAttrs), attrs)
	return t
}

// SetFields allocates the field array of class.
func (b *Builder) SetFields(class uint64, fields ...FieldSpec) {
	o := b.Off
	arr := b.Alloc(len(fields) * int(o.FieldSize))
	for i, f := range fields {
		fa := arr + uint64(i)*uint64(o.FieldSize)
		b.PutPtr(b.at(fa, o.FieldName), b.CString(f.Name))
		b.PutPtr(b.at(fa, o.FieldType), b.Type(f.Tag, f.Data, f.Static, f.ByRef))
		b.PutPtr(b.at(fa, o.FieldParent), class)
		b.Put32(b.at(fa, o.FieldOffset), uint32(f.Offset))
	}
	b.Put32(b.at(class, o.ClassFieldCount), uint32(len(fields)))
	b.PutPtr(b.at(class, o.ClassFields), arr)
}

// VTable returns the root domain vtable of class, allocating it and the
// runtime info of the class on first use.
func (b *Builder) VTable(class uint64) uint64 {
	if vt, ok := b.vtables[class]; ok {
		return vt
	}
	o := b.Off
	vt := b.Alloc(int(o.VTableData) + 4)
	b.PutPtr(vt, class)
	rti := b.Alloc(int(o.RuntimeInfoDomainVTables) + 4)
	b.PutPtr(b.at(rti, o.RuntimeInfoDomainVTables), vt)
	b.PutPtr(b.at(class, o.ClassRuntimeInfo), rti)
	b.vtables[class] = vt
	return vt
}

// StaticData allocates size bytes of static storage for class.
func (b *Builder) StaticData(class uint64, size int) uint64 {
	data := b.Alloc(size)
	b.PutPtr(b.at(b.VTable(class), b.Off.VTableData), data)
	return data
}

// Object allocates an instance of class; size includes the header.
func (b *Builder) Object(class uint64, size int) uint64 {
	obj := b.Alloc(size)
	b.PutPtr(obj, b.VTable(class))
	return obj
}

// String allocates a managed string.
func (b *Builder) String(s string) uint64 {
	units := utf16.Encode([]rune(s))
	o := b.Off
	p := b.Alloc(int(o.StringChars) + 2*len(units))
	b.Put32(b.at(p, o.StringLength), uint32(len(units)))
	for i, u := range units {
		b.Put16(b.at(p, o.StringChars)+uint64(2*i), u)
	}
	return p
}

// Array allocates a single dimension array of n elements of arrClass and
// returns the array object and the address of its first element.
func (b *Builder) Array(arrClass uint64, n int) (obj, data uint64) {
	o := b.Off
	stride := int(int32(binary.LittleEndian.Uint32(b.bytes(b.at(arrClass, o.ClassSizes), 4))))
	obj = b.Object(arrClass, int(o.ArrayData)+n*stride)
	b.Put32(b.at(obj, o.ArrayLength), uint32(n))
	return obj, b.at(obj, o.ArrayData)
}

// ArrayClass allocates the array class of element with the given stride.
func (b *Builder) ArrayClass(element uint64, stride int32) uint64 {
	return b.Class(ClassSpec{Name: "Array", Namespace: "System", Size: stride, ElementClass: element, ByvalTag: mono.TypeSzArray})
}

// Image allocates an image whose class cache holds classes, spread over a
// few buckets so that chains are exercised.
func (b *Builder) Image(classes ...uint64) uint64 {
	o := b.Off
	const buckets = 3
	img := b.Alloc(int(o.ImageClassCache + o.HashTableTable + 4))
	table := b.Alloc(4 * buckets)
	ht := b.at(img, o.ImageClassCache)
	b.Put32(b.at(ht, o.HashTableSize), buckets)
	b.PutPtr(b.at(ht, o.HashTableTable), table)
	for i, c := range classes {
		slot := table + uint64(4*(i%buckets))
		head := uint64(binary.LittleEndian.Uint32(b.bytes(slot, 4)))
		b.PutPtr(b.at(c, o.ClassNextClassCache), head)
		b.PutPtr(slot, c)
	}
	return img
}

// Assembly allocates an assembly named name loaded from image.
func (b *Builder) Assembly(name string, image uint64) uint64 {
	o := b.Off
	a := b.Alloc(int(o.AssemblyImage) + 4)
	b.PutPtr(b.at(a, o.AssemblyName), b.CString(name))
	b.PutPtr(b.at(a, o.AssemblyImage), image)
	return a
}

// Domain allocates a domain with the given assemblies in list order.
func (b *Builder) Domain(assemblies ...uint64) uint64 {
	o := b.Off
	d := b.Alloc(int(o.DomainAssemblies) + 4)
	var next uint64
	for i := len(assemblies) - 1; i >= 0; i-- {
		node := b.Alloc(8)
		b.PutPtr(b.at(node, o.ListData), assemblies[i])
		b.PutPtr(b.at(node, o.ListNext), next)
		next = node
	}
	b.PutPtr(b.at(d, o.DomainAssemblies), next)
	return d
}
