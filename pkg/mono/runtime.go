package mono

import (
	"github.com/monomirror/monomirror/pkg/logflags"
)

// Memory is the read surface the metadata model needs from the target.
// It is implemented by *proc.View; reads never fail, unreadable memory
// reads as zero.
type Memory interface {
	Read(addr uint64, size int) []byte
	ReadBool(addr uint64) bool
	ReadUint8(addr uint64) uint8
	ReadInt8(addr uint64) int8
	ReadUint16(addr uint64) uint16
	ReadInt16(addr uint64) int16
	ReadUint32(addr uint64) uint32
	ReadInt32(addr uint64) int32
	ReadUint64(addr uint64) uint64
	ReadInt64(addr uint64) int64
	ReadFloat32(addr uint64) float32
	ReadFloat64(addr uint64) float64
	ReadPointer(addr uint64) uint64
	ReadCString(addr uint64) string
}

// Runtime binds a memory view to the structure layout of the runtime that
// owns it. Every descriptor (Class, Field, Type, Object, Struct) carries a
// pointer to the Runtime it was read from.
type Runtime struct {
	mem Memory
	off Offsets
	log logflags.Logger
}

// NewRuntime returns a Runtime reading mem with layout off.
func NewRuntime(mem Memory, off Offsets) *Runtime {
	return &Runtime{mem: mem, off: off, log: logflags.MonoLogger()}
}

// Memory returns the memory view the runtime reads from.
func (rt *Runtime) Memory() Memory {
	return rt.mem
}

// Offsets returns the structure layout in use.
func (rt *Runtime) Offsets() Offsets {
	return rt.off
}

// ClassAt returns the class descriptor at addr.
func (rt *Runtime) ClassAt(addr uint64) Class {
	return Class{rt: rt, addr: addr}
}

// ObjectAt returns the heap object at addr.
func (rt *Runtime) ObjectAt(addr uint64) Object {
	return Object{rt: rt, addr: addr}
}

func (rt *Runtime) ptr(addr uint64, off uint32) uint64 {
	return rt.mem.ReadPointer(addr + uint64(off))
}
