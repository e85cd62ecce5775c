package proc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// fakeMemory implements MemoryReader by reading from a byte slice.
// Byte 0 of data is at address base. Reads outside of data fail.
type fakeMemory struct {
	base  uint64
	data  []byte
	reads []uint64
}

func newFakeMemory(base uint64, size int) *fakeMemory {
	mem := &fakeMemory{base: base, data: make([]byte, size)}
	for i := range mem.data {
		mem.data[i] = byte(i*7 + i/PageSize)
	}
	return mem
}

var errOutOfBounds = errors.New("read out of bounds")

func (mem *fakeMemory) ReadMemory(buf []byte, addr uint64) (int, error) {
	mem.reads = append(mem.reads, addr)
	if addr < mem.base || addr+uint64(len(buf)) > mem.base+uint64(len(mem.data)) {
		return 0, errOutOfBounds
	}
	return copy(buf, mem.data[addr-mem.base:]), nil
}

func TestViewReadSplitsAtAnyPoint(t *testing.T) {
	const base = 0x10000
	mem := newFakeMemory(base, 2*PageSize)
	v := NewView(mem, 4)

	whole := v.Read(base, PageSize)
	if !bytes.Equal(whole, mem.data[:PageSize]) {
		t.Fatalf("Read(base, PageSize) does not match memory")
	}
	for _, s := range []int{0, 1, 15, 16, 1000, PageSize - 1, PageSize} {
		got := append(v.Read(base, s), v.Read(base+uint64(s), PageSize-s)...)
		if !bytes.Equal(got, whole) {
			t.Errorf("split at %d: concatenation differs from whole page read", s)
		}
	}
}

func TestViewReadCrossesPages(t *testing.T) {
	const base = 0x20000
	mem := newFakeMemory(base, 4*PageSize)
	v := NewView(mem, 8)

	addr := uint64(base + PageSize - 3)
	got := v.Read(addr, 2*PageSize+10)
	want := mem.data[PageSize-3 : 3*PageSize+7]
	if !bytes.Equal(got, want) {
		t.Fatalf("read spanning four pages does not match memory")
	}
	if n := v.CachedPages(); n != 4 {
		t.Errorf("CachedPages() = %d; want 4", n)
	}
}

func TestViewReadIsCached(t *testing.T) {
	const base = 0x30000
	mem := newFakeMemory(base, PageSize)
	v := NewView(mem, 4)

	v.ReadUint32(base + 8)
	v.ReadUint32(base + 100)
	v.Read(base+200, 50)
	if len(mem.reads) != 1 {
		t.Fatalf("expected one page fetch, got %d: %#x", len(mem.reads), mem.reads)
	}

	v.ClearCache()
	v.ReadUint32(base + 8)
	if len(mem.reads) != 2 {
		t.Fatalf("expected a refetch after ClearCache, got %d fetches", len(mem.reads))
	}
}

func TestViewUnreadablePageIsZero(t *testing.T) {
	mem := newFakeMemory(0x40000, PageSize)
	v := NewView(mem, 4)

	if got := v.ReadUint32(0x90000); got != 0 {
		t.Fatalf("ReadUint32 of unmapped memory = %#x; want 0", got)
	}
	if got := v.ReadCString(0x90010); got != "" {
		t.Fatalf("ReadCString of unmapped memory = %q; want empty", got)
	}
	if !v.cache.Contains(0x90000) {
		t.Fatalf("zero page should be cached")
	}
}

func TestViewTypedReads(t *testing.T) {
	mem := &fakeMemory{base: 0x1000, data: make([]byte, PageSize)}
	var buf bytes.Buffer
	for _, x := range []interface{}{uint8(0xfe), int16(-2), uint32(0xdeadbeef), int64(-5), float32(1.5), float64(-2.25)} {
		binary.Write(&buf, binary.LittleEndian, x)
	}
	copy(mem.data, buf.Bytes())
	v := NewView(mem, 4)

	if got := v.ReadUint8(0x1000); got != 0xfe {
		t.Errorf("ReadUint8 = %#x", got)
	}
	if got := v.ReadInt8(0x1000); got != -2 {
		t.Errorf("ReadInt8 = %d", got)
	}
	if !v.ReadBool(0x1000) {
		t.Errorf("ReadBool = false")
	}
	if got := v.ReadInt16(0x1001); got != -2 {
		t.Errorf("ReadInt16 = %d", got)
	}
	if got := v.ReadUint32(0x1003); got != 0xdeadbeef {
		t.Errorf("ReadUint32 = %#x", got)
	}
	if got := v.ReadPointer(0x1003); got != 0xdeadbeef {
		t.Errorf("ReadPointer = %#x", got)
	}
	if got := v.ReadInt64(0x1007); got != -5 {
		t.Errorf("ReadInt64 = %d", got)
	}
	if got := v.ReadFloat32(0x100f); got != 1.5 {
		t.Errorf("ReadFloat32 = %v", got)
	}
	if got := v.ReadFloat64(0x1013); got != -2.25 || !math.Signbit(got) {
		t.Errorf("ReadFloat64 = %v", got)
	}
}

func TestViewReadCString(t *testing.T) {
	const tgt = "UnityEngine.CoreModule"
	for _, off := range []uint64{0, 1, 15, 16, 17, PageSize - 5} {
		mem := &fakeMemory{base: 0x5000, data: make([]byte, 2*PageSize)}
		copy(mem.data[off:], tgt)
		v := NewView(mem, 4)
		if got := v.ReadCString(0x5000 + off); got != tgt {
			t.Errorf("offset %#x: ReadCString = %q; want %q", off, got, tgt)
		}
	}
}

func TestViewSnapshot(t *testing.T) {
	mem := newFakeMemory(0x400000, 3*PageSize)
	v := NewView(mem, 4)

	snap, err := v.Snapshot(0x400000, 3*PageSize)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(snap, mem.data) {
		t.Fatalf("snapshot does not match memory")
	}
	if v.CachedPages() != 0 {
		t.Fatalf("snapshot should bypass the page cache")
	}

	// The last page is past the end of memory: it reads as zeroes.
	snap, err = v.Snapshot(0x400000+PageSize, 3*PageSize)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(snap[:2*PageSize], mem.data[PageSize:]) {
		t.Fatalf("readable part of the snapshot does not match memory")
	}
	for _, b := range snap[2*PageSize:] {
		if b != 0 {
			t.Fatalf("unreadable page is not zeroed")
		}
	}

	_, err = v.Snapshot(0x100000, PageSize)
	var rerr *ReadError
	if !errors.As(err, &rerr) || !errors.Is(err, errOutOfBounds) {
		t.Fatalf("expected *ReadError wrapping errOutOfBounds, got %v", err)
	}
}
