// Package types defines the value types shared between the heap and its host
// runtime: addresses, object references, thread handles and allocation kinds.
package types

import "fmt"

// Address is an opaque heap address. Zero is the "no address" sentinel.
// An Address is never dereferenced directly; memory is accessed through
// heap.Region typed loads and stores.
type Address uint64

// Zero is the sentinel address.
const Zero Address = 0

// IsZero reports whether a is the sentinel.
func (a Address) IsZero() bool { return a == 0 }

// Add returns a + n bytes.
func (a Address) Add(n uint64) Address { return a + Address(n) }

// Sub returns a - n bytes.
func (a Address) Sub(n uint64) Address { return a - Address(n) }

// Diff returns the byte distance a - b. a must not be below b.
func (a Address) Diff(b Address) uint64 { return uint64(a - b) }

// AlignDown rounds a down to align (a power of two).
func (a Address) AlignDown(align uint64) Address { return a &^ Address(align-1) }

// IsAligned reports whether a is a multiple of align (a power of two).
func (a Address) IsAligned(align uint64) bool { return uint64(a)&(align-1) == 0 }

// ToObjectReference treats the address as the start of an object.
func (a Address) ToObjectReference() ObjectReference { return ObjectReference(a) }

func (a Address) String() string { return fmt.Sprintf("0x%x", uint64(a)) }

// ObjectReference identifies an object by the address of its first byte.
type ObjectReference uint64

// Null is the null object reference.
const Null ObjectReference = 0

// IsNull reports whether the reference is null.
func (o ObjectReference) IsNull() bool { return o == 0 }

// ToAddress returns the object's start address.
func (o ObjectReference) ToAddress() Address { return Address(o) }

func (o ObjectReference) String() string { return fmt.Sprintf("obj@0x%x", uint64(o)) }

// Thread is an opaque identity for a mutator or GC worker thread.
type Thread uint64
