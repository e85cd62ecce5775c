package proc

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/monomirror/monomirror/pkg/logflags"
)

// cstringBlock is the size of the aligned blocks ReadCString scans.
const cstringBlock = 16

// View reads the memory of a target process through a page cache.
//
// The target is never paused: cached pages are a snapshot that goes stale
// as the target runs. Callers must call ClearCache before every logical
// traversal so that staleness is bounded to a single pass.
//
// Reads never fail. A page that can not be fetched is replaced with zeroes
// and cached as such, which callers observe as null pointers and zero
// values rather than as errors.
type View struct {
	mem   MemoryReader
	cache *PageCache
	log   logflags.Logger
}

// NewView returns a View over mem that caches at most pages pages.
func NewView(mem MemoryReader, pages int) *View {
	return &View{
		mem:   mem,
		cache: NewPageCache(pages),
		log:   logflags.MemoryLogger(),
	}
}

// ClearCache evicts every cached page.
func (v *View) ClearCache() {
	v.cache.Clear()
}

// CachedPages returns the number of pages currently cached.
func (v *View) CachedPages() int {
	return v.cache.Len()
}

func (v *View) page(addr uint64) []byte {
	if page, ok := v.cache.Get(addr); ok {
		return page
	}
	page := make([]byte, PageSize)
	n, err := v.mem.ReadMemory(page, addr)
	if err == nil && n != PageSize {
		err = ErrShortRead
	}
	if err != nil {
		if logflags.Memory() {
			v.log.WithAddr("page", addr).WithError(err).Debug("unreadable, using zero page")
		}
		page = make([]byte, PageSize)
	}
	v.cache.Add(addr, page)
	return page
}

// Read returns size bytes starting at addr. Ranges that cross page
// boundaries are assembled from consecutive pages in address order.
func (v *View) Read(addr uint64, size int) []byte {
	buf := make([]byte, size)
	v.ReadInto(buf, addr)
	return buf
}

// ReadInto fills buf with the memory starting at addr.
func (v *View) ReadInto(buf []byte, addr uint64) {
	for len(buf) > 0 {
		start := pageOf(addr)
		off := int(addr - start)
		n := copy(buf, v.page(start)[off:])
		buf = buf[n:]
		addr += uint64(n)
	}
}

// ReadBool reads a one byte boolean, any nonzero value is true.
func (v *View) ReadBool(addr uint64) bool {
	return v.ReadUint8(addr) != 0
}

func (v *View) ReadUint8(addr uint64) uint8 {
	return v.Read(addr, 1)[0]
}

func (v *View) ReadInt8(addr uint64) int8 {
	return int8(v.ReadUint8(addr))
}

func (v *View) ReadUint16(addr uint64) uint16 {
	return binary.LittleEndian.Uint16(v.Read(addr, 2))
}

func (v *View) ReadInt16(addr uint64) int16 {
	return int16(v.ReadUint16(addr))
}

func (v *View) ReadUint32(addr uint64) uint32 {
	return binary.LittleEndian.Uint32(v.Read(addr, 4))
}

func (v *View) ReadInt32(addr uint64) int32 {
	return int32(v.ReadUint32(addr))
}

func (v *View) ReadUint64(addr uint64) uint64 {
	return binary.LittleEndian.Uint64(v.Read(addr, 8))
}

func (v *View) ReadInt64(addr uint64) int64 {
	return int64(v.ReadUint64(addr))
}

func (v *View) ReadFloat32(addr uint64) float32 {
	return math.Float32frombits(v.ReadUint32(addr))
}

func (v *View) ReadFloat64(addr uint64) float64 {
	return math.Float64frombits(v.ReadUint64(addr))
}

// ReadPointer reads a target pointer and widens it to an address.
func (v *View) ReadPointer(addr uint64) uint64 {
	return uint64(v.ReadUint32(addr))
}

// ReadCString reads a NUL terminated string starting at addr. Memory is
// scanned in aligned 16 byte blocks starting at the block containing addr
// until a terminator is found. There is no length limit.
func (v *View) ReadCString(addr uint64) string {
	var out []byte
	blk := addr &^ (cstringBlock - 1)
	skip := int(addr - blk)
	var buf [cstringBlock]byte
	for {
		v.ReadInto(buf[:], blk)
		chunk := buf[skip:]
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			out = append(out, chunk[:i]...)
			return string(out)
		}
		out = append(out, chunk...)
		blk += cstringBlock
		skip = 0
	}
}

// Snapshot copies size bytes starting at addr directly from the target,
// bypassing the page cache. If the region can not be read in one go it is
// read page by page, unreadable pages are left zeroed; only a failure to
// read the first page is reported.
func (v *View) Snapshot(addr uint64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := v.mem.ReadMemory(buf, addr)
	if err == nil && n == size {
		return buf, nil
	}
	failed := 0
	for off := 0; off < size; off += PageSize {
		end := off + PageSize
		if end > size {
			end = size
		}
		chunk := buf[off:end]
		n, err := v.mem.ReadMemory(chunk, addr+uint64(off))
		if err == nil && n != len(chunk) {
			err = ErrShortRead
		}
		if err != nil {
			if off == 0 {
				return nil, &ReadError{Addr: addr, Size: len(chunk), Err: err}
			}
			for i := range chunk {
				chunk[i] = 0
			}
			failed++
		}
	}
	if failed > 0 {
		v.log.WithAddr("snapshot", addr).Warnf("%d of %d pages unreadable", failed, (size+PageSize-1)/PageSize)
	}
	return buf, nil
}
