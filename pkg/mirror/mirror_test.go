package mirror

import (
	"debug/pe"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/monomirror/monomirror/pkg/mono"
	"github.com/monomirror/monomirror/pkg/mono/monotest"
	"github.com/monomirror/monomirror/pkg/pe/petest"
	monope "github.com/monomirror/monomirror/pkg/pe"
	"github.com/monomirror/monomirror/pkg/proc"
)

const (
	moduleBase = 0x400000
	moduleSize = 0x1000
	exportRVA  = 0x800
)

type fakeProcess struct {
	*monotest.Memory
	closed bool
}

func (p *fakeProcess) Pid() int { return 4242 }

func (p *fakeProcess) MainModule() (uint64, int) { return moduleBase, moduleSize }

func (p *fakeProcess) Close() error {
	p.closed = true
	return nil
}

type fixture struct {
	b       *monotest.Builder
	module  []byte
	data    uint64 // static storage of Game.Data
	attachs int
}

// newFixture lays out a target with a root domain holding mscorlib and
// Assembly-CSharp; the latter has a class Game.Data with a static int.
func newFixture(machine uint16, indirect bool) *fixture {
	b := monotest.New(mono.DefaultOffsets())
	cls := b.Class(monotest.ClassSpec{Name: "Data", Namespace: "Game"})
	b.SetFields(cls, monotest.FieldSpec{Name: "s_value", Tag: mono.TypeI4, Static: true})
	data := b.StaticData(cls, 4)
	b.Put32(data, 42)
	domain := b.Domain(
		b.Assembly("mscorlib", b.Image()),
		b.Assembly("Assembly-CSharp", b.Image(cls)),
	)
	slot := b.Alloc(4)
	b.PutPtr(slot, domain)

	module := petest.Image(machine, map[string]uint32{DefaultRootDomainExport: exportRVA, "mono_jit_init": 0x900}, moduleSize)
	stub := module[exportRVA:]
	if indirect {
		code := b.Alloc(6)
		writeStub(b, code, slot)
		putLE32(module[exportRVA:], uint32(code))
	} else {
		stub[0] = opMovEaxMoffs
		putLE32(stub[1:], uint32(slot))
		stub[5] = opRet
	}
	b.Mem.Map(moduleBase, module)
	return &fixture{b: b, module: module, data: data}
}

func writeStub(b *monotest.Builder, addr, slot uint64) {
	b.Put8(addr, opMovEaxMoffs)
	b.Put32(addr+1, uint32(slot))
	b.Put8(addr+5, opRet)
}

func putLE32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func (f *fixture) config(indirect bool) Config {
	cfg := DefaultConfig()
	cfg.ExportIndirect = indirect
	cfg.Attach = func(name string) (proc.Process, error) {
		f.attachs++
		return &fakeProcess{Memory: f.b.Mem}, nil
	}
	return cfg
}

func staticValue(image *mono.Image) (int64, error) {
	v, err := image.StaticValue("Game.Data", "s_value")
	if err != nil {
		return 0, err
	}
	n, _ := v.AsInt()
	return n, nil
}

func TestDecodeRootDomainStub(t *testing.T) {
	slot, err := decodeRootDomainStub([6]byte{0xa1, 0x78, 0x56, 0x34, 0x12, 0xc3})
	if err != nil {
		t.Fatal(err)
	}
	if slot != 0x12345678 {
		t.Errorf("slot = %#x", slot)
	}

	_, err = decodeRootDomainStub([6]byte{0x55, 0x89, 0xe5, 0x5d, 0xc3, 0x90})
	var perr *PatternMismatchError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PatternMismatchError, got %v", err)
	}
	if !strings.Contains(err.Error(), "push ebp") {
		t.Errorf("error does not disassemble the code: %v", err)
	}
}

func TestRoot(t *testing.T) {
	for _, indirect := range []bool{true, false} {
		f := newFixture(pe.IMAGE_FILE_MACHINE_I386, indirect)
		m := New(f.config(indirect))
		image, err := m.Root()
		if err != nil {
			t.Fatalf("indirect=%v: %v", indirect, err)
		}
		n, err := staticValue(image)
		if err != nil || n != 42 {
			t.Errorf("indirect=%v: s_value = %d, %v", indirect, n, err)
		}
		again, _ := m.Root()
		if again != image {
			t.Errorf("image not kept for the session")
		}
	}
}

func TestAssemblies(t *testing.T) {
	f := newFixture(pe.IMAGE_FILE_MACHINE_I386, true)
	m := New(f.config(true))
	names, err := m.Assemblies()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"mscorlib", "Assembly-CSharp"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Assemblies() = %v, want %v", names, want)
	}
}

func TestAssemblyNotFound(t *testing.T) {
	f := newFixture(pe.IMAGE_FILE_MACHINE_I386, true)
	cfg := f.config(true)
	cfg.AssemblyName = "Assembly-UnityScript"
	_, err := New(cfg).Root()
	if !errors.Is(err, ErrAssemblyNotFound) {
		t.Fatalf("expected ErrAssemblyNotFound, got %v", err)
	}
}

func TestExportNotFound(t *testing.T) {
	f := newFixture(pe.IMAGE_FILE_MACHINE_I386, true)
	cfg := f.config(true)
	cfg.RootDomainExport = "mono_missing"
	if _, err := New(cfg).Root(); !errors.Is(err, ErrExportNotFound) {
		t.Fatalf("expected ErrExportNotFound, got %v", err)
	}
}

func TestPatternMismatch(t *testing.T) {
	f := newFixture(pe.IMAGE_FILE_MACHINE_I386, false)
	f.module[exportRVA] = 0x55
	_, err := New(f.config(false)).Root()
	var perr *PatternMismatchError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PatternMismatchError, got %v", err)
	}
	if perr.Addr != moduleBase+exportRVA {
		t.Errorf("mismatch reported at %#x", perr.Addr)
	}
}

func TestQuery(t *testing.T) {
	f := newFixture(pe.IMAGE_FILE_MACHINE_I386, true)
	m := New(f.config(true))
	n, err := Query(m, staticValue)
	if err != nil || n != 42 {
		t.Fatalf("Query() = %d, %v", n, err)
	}
	if f.attachs != 1 {
		t.Errorf("attached %d times", f.attachs)
	}

	// The cache is cleared before every query.
	f.b.Put32(f.data, 43)
	n, err = Query(m, staticValue)
	if err != nil || n != 43 {
		t.Fatalf("Query() after update = %d, %v", n, err)
	}
}

func TestQueryRetriesOnce(t *testing.T) {
	f := newFixture(pe.IMAGE_FILE_MACHINE_I386, true)
	m := New(f.config(true))
	calls := 0
	n, err := Query(m, func(image *mono.Image) (int64, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return staticValue(image)
	})
	if err != nil || n != 42 {
		t.Fatalf("Query() = %d, %v", n, err)
	}
	if calls != 2 || f.attachs != 2 {
		t.Errorf("calls = %d, attachs = %d, want 2 and 2", calls, f.attachs)
	}
}

func TestQueryFailsTwice(t *testing.T) {
	f := newFixture(pe.IMAGE_FILE_MACHINE_I386, true)
	m := New(f.config(true))
	calls := 0
	s, err := Query(m, func(image *mono.Image) (string, error) {
		calls++
		var v mono.Value
		return v.Array()[0].String(), nil
	})
	if err != nil || s != "" {
		t.Fatalf("Query() = %q, %v, want zero value and no error", s, err)
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
}

func TestQueryFatal(t *testing.T) {
	attachs := 0
	cfg := DefaultConfig()
	cfg.Attach = func(name string) (proc.Process, error) {
		attachs++
		return nil, &proc.ProcessNotFoundError{Name: name}
	}
	_, err := Query(New(cfg), staticValue)
	var pnf *proc.ProcessNotFoundError
	if !errors.As(err, &pnf) || pnf.Name != DefaultProcessName {
		t.Fatalf("expected ProcessNotFoundError, got %v", err)
	}
	if attachs != 1 {
		t.Errorf("attached %d times, want 1", attachs)
	}

	f := newFixture(pe.IMAGE_FILE_MACHINE_AMD64, true)
	_, err = Query(New(f.config(true)), staticValue)
	var arch *monope.ArchitectureError
	if !errors.As(err, &arch) {
		t.Fatalf("expected ArchitectureError, got %v", err)
	}
	if f.attachs != 1 {
		t.Errorf("architecture mismatch retried")
	}
}

func TestCleanClosesProcess(t *testing.T) {
	f := newFixture(pe.IMAGE_FILE_MACHINE_I386, true)
	var p *fakeProcess
	cfg := f.config(true)
	cfg.Attach = func(string) (proc.Process, error) {
		p = &fakeProcess{Memory: f.b.Mem}
		return p, nil
	}
	m := New(cfg)
	if _, err := m.Root(); err != nil {
		t.Fatal(err)
	}
	if !m.Active() || m.Pid() != 4242 {
		t.Fatalf("not attached")
	}
	m.Clean()
	if !p.closed || m.Active() {
		t.Errorf("Clean did not end the session")
	}
}

func TestGetStatus(t *testing.T) {
	f := newFixture(pe.IMAGE_FILE_MACHINE_I386, true)
	if s := GetStatus(New(f.config(true))); s.Kind != StatusOK {
		t.Errorf("status %v", s.Kind)
	}

	// The module header is not looked at.
	wide := newFixture(pe.IMAGE_FILE_MACHINE_AMD64, true)
	m := New(wide.config(true))
	if s := GetStatus(m); s.Kind != StatusOK {
		t.Errorf("status of a 64-bit module %v", s.Kind)
	}
	var aerr *monope.ArchitectureError
	if _, err := m.Root(); !errors.As(err, &aerr) {
		t.Errorf("Root on a 64-bit module: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Attach = func(name string) (proc.Process, error) {
		return nil, &proc.ProcessNotFoundError{Name: name}
	}
	if s := GetStatus(New(cfg)); s.Kind != StatusProcNotFound {
		t.Errorf("status %v", s.Kind)
	}

	denied := errors.New("access denied")
	cfg.Attach = func(string) (proc.Process, error) { return nil, denied }
	if s := GetStatus(New(cfg)); s.Kind != StatusError || s.Err != denied {
		t.Errorf("status %v, %v", s.Kind, s.Err)
	}
}

func TestDisassemble(t *testing.T) {
	// call +0; mov eax, [0x1000]; ret
	code := []byte{0xe8, 0x00, 0x00, 0x00, 0x00, 0xa1, 0x00, 0x10, 0x00, 0x00, 0xc3}
	insts := Disassemble(code, 0x1000)
	if len(insts) != 3 {
		t.Fatalf("got %d instructions", len(insts))
	}
	kinds := []InstructionKind{CallInstruction, OtherInstruction, RetInstruction}
	for i, inst := range insts {
		if inst.Kind != kinds[i] {
			t.Errorf("instruction %d kind %d, want %d", i, inst.Kind, kinds[i])
		}
	}
	if insts[1].PC != 0x1005 || len(insts[1].Bytes) != 5 {
		t.Errorf("mov at %#x, %d bytes", insts[1].PC, len(insts[1].Bytes))
	}
	if text := insts[0].Text(IntelFlavour, nil); !strings.Contains(text, "0x1005") {
		t.Errorf("call target not resolved: %q", text)
	}
}
