package types

// AllocationSemantics selects which allocator and space serve a request.
type AllocationSemantics uint8

const (
	// SemanticsDefault routes small requests to the free-list mark-sweep
	// space and oversized ones to the large object space.
	SemanticsDefault AllocationSemantics = iota

	// SemanticsImmortal allocates objects that are never reclaimed.
	SemanticsImmortal

	// SemanticsLos forces the large object space regardless of size.
	SemanticsLos
)

func (s AllocationSemantics) String() string {
	switch s {
	case SemanticsDefault:
		return "default"
	case SemanticsImmortal:
		return "immortal"
	case SemanticsLos:
		return "los"
	default:
		return "unknown"
	}
}
