// Package petest builds synthetic mapped PE images for tests.
package petest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"sort"
)

const (
	lfanew    = 0x80
	exportDir = 0x200
)

// Image returns a mapped image for machine that exports the given symbols,
// each at the RVA it maps to. The image is at least size bytes long.
func Image(machine uint16, exports map[string]uint32, size int) []byte {
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)

	n := uint32(len(names))
	funcs := uint32(exportDir + 40)
	namePtrs := funcs + 4*n
	ords := namePtrs + 4*n
	strs := ords + 2*n

	var strtab bytes.Buffer
	nameRVAs := make([]uint32, n)
	for i, name := range names {
		nameRVAs[i] = strs + uint32(strtab.Len())
		strtab.WriteString(name)
		strtab.WriteByte(0)
	}
	end := int(strs) + strtab.Len()
	if size < end {
		size = end
	}
	img := make([]byte, size)

	img[0], img[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(img[0x3c:], lfanew)
	binary.LittleEndian.PutUint32(img[lfanew:], 0x4550)

	var hdr bytes.Buffer
	binary.Write(&hdr, binary.LittleEndian, pe.FileHeader{
		Machine:              machine,
		SizeOfOptionalHeader: uint16(binary.Size(pe.OptionalHeader32{})),
	})
	oh := pe.OptionalHeader32{Magic: 0x10b, SizeOfImage: uint32(size), NumberOfRvaAndSizes: 16}
	oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT] = pe.DataDirectory{VirtualAddress: exportDir, Size: uint32(end - exportDir)}
	binary.Write(&hdr, binary.LittleEndian, oh)
	copy(img[lfanew+4:], hdr.Bytes())

	put := func(off uint32, v interface{}) {
		var b bytes.Buffer
		binary.Write(&b, binary.LittleEndian, v)
		copy(img[off:], b.Bytes())
	}
	// IMAGE_EXPORT_DIRECTORY: Base, NumberOfFunctions, NumberOfNames,
	// AddressOfFunctions, AddressOfNames, AddressOfNameOrdinals.
	put(exportDir+16, []uint32{1, n, n, funcs, namePtrs, ords})

	for i, name := range names {
		// Functions are stored in reverse order so that a lookup that
		// ignores the ordinal table finds the wrong function.
		fn := n - 1 - uint32(i)
		put(funcs+4*fn, exports[name])
		put(namePtrs+4*uint32(i), nameRVAs[i])
		put(ords+2*uint32(i), uint16(fn))
	}
	copy(img[strs:], strtab.Bytes())
	return img
}
