package mono

import (
	"sort"

	"github.com/derekparker/trie"

	"github.com/monomirror/monomirror/pkg/logflags"
)

const (
	// maxBuckets and maxClasses bound the class cache scan.
	maxBuckets = 1 << 20
	maxClasses = 1 << 20
)

// Image is a MonoImage with every class it has loaded, indexed by fully
// qualified name. The index is built once, when the image is loaded.
type Image struct {
	rt      *Runtime
	addr    uint64
	classes map[string]Class
	names   *trie.Trie
}

// LoadImage scans the class cache of the image at addr.
func (rt *Runtime) LoadImage(addr uint64) (*Image, error) {
	img := &Image{
		rt:      rt,
		addr:    addr,
		classes: make(map[string]Class),
		names:   trie.New(),
	}
	ht := addr + uint64(rt.off.ImageClassCache)
	size := rt.mem.ReadUint32(ht + uint64(rt.off.HashTableSize))
	if size > maxBuckets {
		return nil, &CorruptDataError{What: "class cache size", Addr: ht, Value: int64(size)}
	}
	table := rt.ptr(ht, rt.off.HashTableTable)
	for i := uint64(0); i < uint64(size); i++ {
		for p := rt.mem.ReadPointer(table + i*4); p != 0; p = rt.ptr(p, rt.off.ClassNextClassCache) {
			if len(img.classes) >= maxClasses {
				return nil, &CorruptDataError{What: "class cache chain", Addr: p, Value: int64(len(img.classes))}
			}
			c := rt.ClassAt(p)
			name := c.FullName()
			if _, dup := img.classes[name]; !dup {
				img.names.Add(name, nil)
			}
			img.classes[name] = c
		}
	}
	if logflags.Mono() {
		rt.log.WithAddr("image", addr).Debugf("%d classes in %d buckets", len(img.classes), size)
	}
	return img, nil
}

func (img *Image) Address() uint64 { return img.addr }

// Runtime returns the runtime the image was read from.
func (img *Image) Runtime() *Runtime { return img.rt }

// Len returns the number of classes in the image.
func (img *Image) Len() int { return len(img.classes) }

// Class returns the class with the given fully qualified name.
func (img *Image) Class(name string) (Class, error) {
	c, ok := img.classes[name]
	if !ok {
		return Class{}, &UnresolvedClassError{Name: name}
	}
	return c, nil
}

// StaticValue decodes a static field of the named class.
func (img *Image) StaticValue(class, field string) (Value, error) {
	c, err := img.Class(class)
	if err != nil {
		return Value{}, err
	}
	return c.StaticValue(field)
}

// ClassNames returns the names of every class, sorted.
func (img *Image) ClassNames() []string {
	names := make([]string, 0, len(img.classes))
	for name := range img.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Complete returns the class names starting with prefix, sorted.
func (img *Image) Complete(prefix string) []string {
	names := img.names.PrefixSearch(prefix)
	sort.Strings(names)
	return names
}

// Search returns the class names that contain the runes of pattern in
// order, shortest first.
func (img *Image) Search(pattern string) []string {
	found := img.names.FuzzySearch(pattern)
	seen := make(map[string]bool, len(found))
	names := found[:0]
	for _, name := range found {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
