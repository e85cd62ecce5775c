// Package mono reads the object graph of an embedded Mono runtime out of
// the memory of another process.
//
// Descriptors (Class, Field, Type, Object, Struct) are addresses paired
// with the Runtime they belong to; they hold no copy of target memory and
// every accessor reads again. Values decoded from fields are returned as a
// tagged Value.
package mono
