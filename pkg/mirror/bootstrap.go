package mirror

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/monomirror/monomirror/pkg/logflags"
	"github.com/monomirror/monomirror/pkg/mono"
	"github.com/monomirror/monomirror/pkg/pe"
	"github.com/monomirror/monomirror/pkg/proc"
)

const (
	opMovEaxMoffs = 0xa1
	opRet         = 0xc3

	// maxAssemblies bounds the domain assembly list walk.
	maxAssemblies = 1 << 16
)

var (
	// ErrAssemblyNotFound is returned when the root domain has no assembly
	// with the configured name.
	ErrAssemblyNotFound = errors.New("assembly not found")
	// ErrExportNotFound is returned when the module does not export the
	// root domain accessor.
	ErrExportNotFound = errors.New("export not found")
	// ErrNoRootDomain is returned when the runtime has not created its root
	// domain yet.
	ErrNoRootDomain = errors.New("root domain not initialized")
)

// PatternMismatchError is returned when the root domain accessor is not
// the expected "mov eax, [addr]; ret" sequence, which means the runtime
// build is not one this reader understands.
type PatternMismatchError struct {
	Addr uint64
	Code [6]byte
}

func (e *PatternMismatchError) Error() string {
	return fmt.Sprintf("unexpected root domain accessor at %#x: % x (%s)", e.Addr, e.Code[:], formatCode(e.Code[:], e.Addr))
}

// decodeRootDomainStub extracts the address of the root domain variable
// from the code of mono_get_root_domain. This is the only part of the
// bootstrap that depends on how the runtime was compiled.
func decodeRootDomainStub(code [6]byte) (uint32, error) {
	if code[0] != opMovEaxMoffs || code[5] != opRet {
		return 0, &PatternMismatchError{Code: code}
	}
	return binary.LittleEndian.Uint32(code[1:5]), nil
}

// rootDomain locates the live MonoDomain through the exported accessor.
func rootDomain(view *proc.View, r *pe.Resolver, export string, indirect bool) (uint64, error) {
	log := logflags.BootstrapLogger()
	addr := r.GetExport(export)
	if addr == 0 {
		return 0, fmt.Errorf("%s: %w", export, ErrExportNotFound)
	}
	fn := addr
	if indirect {
		fn = view.ReadPointer(addr)
	}
	var code [6]byte
	view.ReadInto(code[:], fn)
	slot, err := decodeRootDomainStub(code)
	if err != nil {
		err.(*PatternMismatchError).Addr = fn
		return 0, err
	}
	domain := view.ReadPointer(uint64(slot))
	if logflags.Bootstrap() {
		log.WithAddr("export", addr).WithAddr("code", fn).WithAddr("slot", uint64(slot)).Debugf("%s: root domain at %#x", export, domain)
	}
	if domain == 0 {
		return 0, ErrNoRootDomain
	}
	return domain, nil
}

// assembly is an entry of the domain assembly list.
type assembly struct {
	addr  uint64
	name  string
	image uint64
}

// walkAssemblies calls fn for each assembly loaded in domain, in list
// order, until fn returns false.
func walkAssemblies(view *proc.View, off mono.Offsets, domain uint64, fn func(assembly) bool) error {
	n := 0
	for node := view.ReadPointer(domain + uint64(off.DomainAssemblies)); node != 0; node = view.ReadPointer(node + uint64(off.ListNext)) {
		if n++; n > maxAssemblies {
			return &mono.CorruptDataError{What: "assembly list", Addr: domain, Value: int64(n)}
		}
		data := view.ReadPointer(node + uint64(off.ListData))
		a := assembly{
			addr:  data,
			name:  view.ReadCString(view.ReadPointer(data + uint64(off.AssemblyName))),
			image: view.ReadPointer(data + uint64(off.AssemblyImage)),
		}
		if !fn(a) {
			return nil
		}
	}
	return nil
}

// findAssembly returns the image address of the assembly named name.
func findAssembly(view *proc.View, off mono.Offsets, domain uint64, name string) (uint64, error) {
	var image uint64
	found := false
	err := walkAssemblies(view, off, domain, func(a assembly) bool {
		if a.name == name {
			image, found = a.image, true
			return false
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%s: %w", name, ErrAssemblyNotFound)
	}
	return image, nil
}
