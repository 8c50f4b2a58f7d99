package metadata

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/format"
)

// ErrOverlap indicates two specs whose ranges overlap.
var ErrOverlap = errors.New("metadata: overlapping side metadata specs")

// ErrBadSpec indicates a spec that cannot be laid out.
var ErrBadSpec = errors.New("metadata: invalid side metadata spec")

// maxLogNumOfBits caps per-granule width at one byte.
const maxLogNumOfBits = 3

// Spec describes one side metadata bit plane.
type Spec struct {
	Name          string
	IsGlobal      bool   // shared by every space (vs. local to one space)
	Offset        uint64 // byte offset of the plane within the context
	LogNumOfBits  uint   // log2 of bits per granule
	LogMinObjSize uint   // log2 of the granule size in bytes
}

func (s Spec) String() string {
	scope := "local"
	if s.IsGlobal {
		scope = "global"
	}
	return fmt.Sprintf("%s(%s, off=%d, bits=%d, gran=%d)",
		s.Name, scope, s.Offset, 1<<s.LogNumOfBits, 1<<s.LogMinObjSize)
}

// AllocBit is the global allocation bit: one bit per minimum object size.
var AllocBit = Spec{
	Name:          "alloc",
	IsGlobal:      true,
	LogNumOfBits:  0,
	LogMinObjSize: format.LogMinObjectSize,
}

// NewLocalBitSpec declares a one-bit-per-object plane private to a space.
func NewLocalBitSpec(name string) Spec {
	return Spec{Name: name, LogNumOfBits: 0, LogMinObjSize: format.LogMinObjectSize}
}

// AddressRangeSize returns the bytes a plane needs to cover heapSize bytes of
// heap, rounded up to a word.
func AddressRangeSize(s Spec, heapSize uint64) uint64 {
	bits := (heapSize >> s.LogMinObjSize) << s.LogNumOfBits
	return format.AlignWord((bits + 7) / 8)
}

// Layout assigns consecutive offsets to specs: globals first, then locals,
// each in declaration order. It returns the laid-out copies and the total
// context size in bytes.
func Layout(heapSize uint64, global, local []Spec) ([]Spec, []Spec, uint64) {
	var off uint64
	place := func(in []Spec) []Spec {
		out := make([]Spec, len(in))
		for i, s := range in {
			s.Offset = off
			off += AddressRangeSize(s, heapSize)
			out[i] = s
		}
		return out
	}
	g := place(global)
	l := place(local)
	return g, l, off
}

// Verify checks that every spec is well formed, fits in a context of
// contextSize bytes and that no two specs overlap.
func Verify(heapSize, contextSize uint64, specs ...Spec) error {
	sorted := make([]Spec, len(specs))
	copy(sorted, specs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	for i, s := range sorted {
		if s.LogNumOfBits > maxLogNumOfBits {
			return errors.Wrapf(ErrBadSpec, "%s: %d bits per granule", s.Name, 1<<s.LogNumOfBits)
		}
		if s.Offset%4 != 0 {
			return errors.Wrapf(ErrBadSpec, "%s: offset %d not word aligned", s.Name, s.Offset)
		}
		end := s.Offset + AddressRangeSize(s, heapSize)
		if end > contextSize {
			return errors.Wrapf(ErrBadSpec, "%s: ends at %d beyond context size %d", s.Name, end, contextSize)
		}
		if i+1 < len(sorted) && sorted[i+1].Offset < end {
			return errors.Wrapf(ErrOverlap, "%s overlaps %s", s, sorted[i+1])
		}
	}
	return nil
}

// MustVerify is Verify for startup: an inconsistent layout is fatal.
func MustVerify(heapSize, contextSize uint64, specs ...Spec) {
	if err := Verify(heapSize, contextSize, specs...); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "side metadata sanity check failed"))
	}
}
