// Package pe resolves exported symbols of a PE image that is mapped in the
// memory of another process.
//
// The image is a copy of the mapped module, not the file on disk: section
// data sits at its RVA, so every RVA is a direct offset into the copy.
package pe

import (
	"bytes"
	dpe "debug/pe"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/monomirror/monomirror/pkg/logflags"
)

const (
	dosLfanewOffset = 0x3c
	ntSignature     = 0x4550 // "PE\0\0"
)

// ErrHeaderInvalid is returned when the image does not carry a usable PE
// header or export directory.
var ErrHeaderInvalid = errors.New("invalid PE header")

// ArchitectureError is returned when the image was built for a different
// pointer width than the one supported. It can not be fixed by retrying.
type ArchitectureError struct {
	Machine uint16
}

func (e *ArchitectureError) Error() string {
	return fmt.Sprintf("expected a 32-bit (machine %#x) image, got machine %#x", dpe.IMAGE_FILE_MACHINE_I386, e.Machine)
}

type exportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// Resolver looks up exported symbols in a snapshot of a mapped image.
type Resolver struct {
	image []byte
	base  uint64
	dir   exportDirectory
}

// New validates the headers of image, which is mapped at base in the target.
func New(image []byte, base uint64) (*Resolver, error) {
	log := logflags.PELogger()

	lfanew, ok := u32(image, dosLfanewOffset)
	if !ok {
		return nil, fmt.Errorf("%w: image too small for a DOS header", ErrHeaderInvalid)
	}
	sig, ok := u32(image, int(lfanew))
	if !ok || sig != ntSignature {
		return nil, fmt.Errorf("%w: bad NT signature %#x at %#x", ErrHeaderInvalid, sig, lfanew)
	}

	var fh dpe.FileHeader
	if err := readAt(image, int(lfanew)+4, &fh); err != nil {
		return nil, fmt.Errorf("%w: file header: %v", ErrHeaderInvalid, err)
	}
	if fh.Machine != dpe.IMAGE_FILE_MACHINE_I386 {
		return nil, &ArchitectureError{Machine: fh.Machine}
	}

	var oh dpe.OptionalHeader32
	if err := readAt(image, int(lfanew)+4+binary.Size(fh), &oh); err != nil {
		return nil, fmt.Errorf("%w: optional header: %v", ErrHeaderInvalid, err)
	}
	if oh.NumberOfRvaAndSizes <= dpe.IMAGE_DIRECTORY_ENTRY_EXPORT {
		return nil, fmt.Errorf("%w: no export directory", ErrHeaderInvalid)
	}
	rva := oh.DataDirectory[dpe.IMAGE_DIRECTORY_ENTRY_EXPORT].VirtualAddress
	if rva == 0 || int(rva) >= len(image) {
		return nil, fmt.Errorf("%w: export directory at %#x outside of image (%#x bytes)", ErrHeaderInvalid, rva, len(image))
	}

	r := &Resolver{image: image, base: base}
	if err := readAt(image, int(rva), &r.dir); err != nil {
		return nil, fmt.Errorf("%w: export directory: %v", ErrHeaderInvalid, err)
	}
	for _, tbl := range []struct {
		name       string
		rva, count uint32
		width      uint64
	}{
		{"functions", r.dir.AddressOfFunctions, r.dir.NumberOfFunctions, 4},
		{"names", r.dir.AddressOfNames, r.dir.NumberOfNames, 4},
		{"name ordinals", r.dir.AddressOfNameOrdinals, r.dir.NumberOfNames, 2},
	} {
		if uint64(tbl.rva)+tbl.width*uint64(tbl.count) > uint64(len(image)) {
			return nil, fmt.Errorf("%w: export %s table at %#x with %d entries outside of image (%#x bytes)", ErrHeaderInvalid, tbl.name, tbl.rva, tbl.count, len(image))
		}
	}
	if logflags.PE() {
		log.WithAddr("image", base).WithAddr("exports", base+uint64(rva)).Debugf("%d exported names", r.dir.NumberOfNames)
	}
	return r, nil
}

// Base returns the load address of the image.
func (r *Resolver) Base() uint64 {
	return r.base
}

// GetExport returns the address of the exported symbol name, or 0 if the
// image does not export it.
func (r *Resolver) GetExport(name string) uint64 {
	for i := uint32(0); i < r.dir.NumberOfNames; i++ {
		if r.nameAt(i) != name {
			continue
		}
		ord, ok := u16(r.image, int(r.dir.AddressOfNameOrdinals)+2*int(i))
		if !ok || uint32(ord) >= r.dir.NumberOfFunctions {
			return 0
		}
		fn, ok := u32(r.image, int(r.dir.AddressOfFunctions)+4*int(ord))
		if !ok || fn == 0 {
			return 0
		}
		return r.base + uint64(fn)
	}
	return 0
}

// Exports returns every exported name in export table order.
func (r *Resolver) Exports() []string {
	names := make([]string, 0, r.dir.NumberOfNames)
	for i := uint32(0); i < r.dir.NumberOfNames; i++ {
		if name := r.nameAt(i); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (r *Resolver) nameAt(i uint32) string {
	rva, ok := u32(r.image, int(r.dir.AddressOfNames)+4*int(i))
	if !ok || int(rva) >= len(r.image) {
		return ""
	}
	s := r.image[rva:]
	if n := bytes.IndexByte(s, 0); n >= 0 {
		s = s[:n]
	}
	return string(s)
}

func readAt(image []byte, off int, data interface{}) error {
	if off < 0 || off > len(image) {
		return fmt.Errorf("offset %#x outside of image", off)
	}
	return binary.Read(bytes.NewReader(image[off:]), binary.LittleEndian, data)
}

func u32(b []byte, off int) (uint32, bool) {
	if off < 0 || off+4 > len(b) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[off:]), true
}

func u16(b []byte, off int) (uint16, bool) {
	if off < 0 || off+2 > len(b) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b[off:]), true
}
