// Package block implements the layout of a mark-sweep block: a 64 KiB,
// 64 KiB aligned extent carved into same-size cells for one size class,
// with a three-word trailer at its end.
//
// # Layout
//
//	block start                                        block start + 64 KiB
//	| cell 0 | cell 1 | ... | cell n-1 | (slack) | next | free | size |
//	                                            ^ trailer (Data)
//
// A free cell stores the address of the next free cell in its last word.
// The trailer's free field heads that chain. Carving builds the chain so
// that cell n-1 is popped first.
//
// # Typed access
//
// Data wraps the trailer address. All loads and stores of trailer fields and
// cell links go through Data's accessors, which encapsulate the offsets in
// internal/format.
package block
