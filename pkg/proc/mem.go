package proc

import (
	"errors"
	"fmt"
)

// PageSize is the granularity at which remote memory is fetched and cached.
const PageSize = 0x1000

// PtrSize is the pointer width of supported targets.
const PtrSize = 4

// MemoryReader is like io.ReaderAt, but the offset is a uint64 so that it
// can address all of the target's memory.
type MemoryReader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// ErrShortRead is returned by process backends when the operating system
// copied fewer bytes than requested.
var ErrShortRead = errors.New("short read")

// ReadError is returned when a remote read that can not degrade to zeroes
// fails.
type ReadError struct {
	Addr uint64
	Size int
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("could not read %d bytes at %#x: %v", e.Size, e.Addr, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

func pageOf(addr uint64) uint64 {
	return addr &^ (PageSize - 1)
}
