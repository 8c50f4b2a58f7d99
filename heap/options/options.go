// Package options holds the read-only runtime options of a heap instance.
//
// Options is a value type: it is built and validated before the heap is
// constructed and copied into it, so later changes to the caller's copy
// have no effect.
package options

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/format"
)

var (
	// ErrUnknownOption indicates an option name that does not exist.
	ErrUnknownOption = errors.New("options: unknown option")

	// ErrInvalidValue indicates a value that does not parse or validate.
	ErrInvalidValue = errors.New("options: invalid value")
)

// EnvPrefix is the default environment variable prefix.
const EnvPrefix = "HEAPKIT_"

// DefaultHeapSize is the default heap budget.
const DefaultHeapSize = 64 << 20

// PlanSelector names a collection plan.
type PlanSelector int

const (
	// FreeListMarkSweep is the non-moving mark-sweep plan over free-list blocks.
	FreeListMarkSweep PlanSelector = iota
	// NoGC allocates without ever collecting.
	NoGC
	// Immix is a mark-region plan.
	Immix
)

var planNames = map[PlanSelector]string{
	FreeListMarkSweep: "FreeListMarkSweep",
	NoGC:              "NoGC",
	Immix:             "Immix",
}

func (p PlanSelector) String() string {
	if n, ok := planNames[p]; ok {
		return n
	}
	return fmt.Sprintf("PlanSelector(%d)", int(p))
}

// ParsePlan parses a plan name, case-insensitively.
func ParsePlan(s string) (PlanSelector, error) {
	for p, n := range planNames {
		if strings.EqualFold(n, s) {
			return p, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidValue, "plan %q", s)
}

// Options configures a heap instance.
type Options struct {
	Plan               PlanSelector
	Threads            int    // GC worker threads
	HeapSize           uint64 // heap budget in bytes
	StressFactor       uint64 // collect after this many bytes of new pages; 0 disables
	IgnoreSystemGC     bool   // ignore explicit collection requests
	ReclaimEmptyBlocks bool   // return empty mark-sweep blocks to the OS after sweep
}

// Default returns the default options.
func Default() Options {
	return Options{
		Plan:     FreeListMarkSweep,
		Threads:  runtime.NumCPU(),
		HeapSize: DefaultHeapSize,
	}
}

// Names returns every option name in declaration order.
func Names() []string {
	return []string{"plan", "threads", "heap_size", "stress_factor", "ignore_system_gc", "reclaim_empty_blocks"}
}

// Set parses value and assigns it to the option called name.
func (o *Options) Set(name, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(name) {
	case "plan":
		p, err := ParsePlan(value)
		if err != nil {
			return err
		}
		o.Plan = p
	case "threads":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return errors.Wrapf(ErrInvalidValue, "threads %q: must be a positive integer", value)
		}
		o.Threads = n
	case "heap_size":
		n, err := ParseBytes(value)
		if err != nil {
			return errors.Wrapf(ErrInvalidValue, "heap_size %q: %v", value, err)
		}
		if n < format.BytesInChunk {
			return errors.Wrapf(ErrInvalidValue, "heap_size %q: below the %d byte minimum", value, format.BytesInChunk)
		}
		o.HeapSize = n
	case "stress_factor":
		n, err := ParseBytes(value)
		if err != nil {
			return errors.Wrapf(ErrInvalidValue, "stress_factor %q: %v", value, err)
		}
		o.StressFactor = n
	case "ignore_system_gc":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(ErrInvalidValue, "ignore_system_gc %q", value)
		}
		o.IgnoreSystemGC = b
	case "reclaim_empty_blocks":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(ErrInvalidValue, "reclaim_empty_blocks %q", value)
		}
		o.ReclaimEmptyBlocks = b
	default:
		return errors.Wrapf(ErrUnknownOption, "%q", name)
	}
	return nil
}

// Validate checks values set directly on the struct.
func (o Options) Validate() error {
	if _, ok := planNames[o.Plan]; !ok {
		return errors.Wrapf(ErrInvalidValue, "plan %d", int(o.Plan))
	}
	if o.Threads <= 0 {
		return errors.Wrapf(ErrInvalidValue, "threads %d", o.Threads)
	}
	if o.HeapSize < format.BytesInChunk || o.HeapSize > format.MaxHeapBytes/4 {
		return errors.Wrapf(ErrInvalidValue, "heap_size %d", o.HeapSize)
	}
	return nil
}

// FromEnv returns Default() overridden by <prefix><NAME> environment
// variables, e.g. HEAPKIT_HEAP_SIZE=128M.
func FromEnv(prefix string) (Options, error) {
	return FromLookup(prefix, os.LookupEnv)
}

// FromLookup is FromEnv with a custom lookup function.
func FromLookup(prefix string, lookup func(string) (string, bool)) (Options, error) {
	o := Default()
	for _, name := range Names() {
		v, ok := lookup(prefix + strings.ToUpper(name))
		if !ok {
			continue
		}
		if err := o.Set(name, v); err != nil {
			return Options{}, errors.Wrapf(err, "%s%s", prefix, strings.ToUpper(name))
		}
	}
	return o, o.Validate()
}

// ParseBytes parses a byte count with an optional K, M or G suffix (powers
// of 1024). An optional trailing "B" or "iB" is accepted.
func ParseBytes(s string) (uint64, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	u = strings.TrimSuffix(u, "IB")
	u = strings.TrimSuffix(u, "B")

	shift := 0
	switch {
	case strings.HasSuffix(u, "K"):
		shift = 10
	case strings.HasSuffix(u, "M"):
		shift = 20
	case strings.HasSuffix(u, "G"):
		shift = 30
	}
	if shift != 0 {
		u = u[:len(u)-1]
	}
	n, err := strconv.ParseUint(u, 10, 64)
	if err != nil {
		return 0, errors.Newf("bad byte count %q", s)
	}
	if n > (1<<64-1)>>shift {
		return 0, errors.Newf("byte count %q overflows", s)
	}
	return n << shift, nil
}
