//go:build linux || darwin || freebsd

package heap

import (
	"golang.org/x/sys/unix"
)

// reserve creates an inaccessible anonymous mapping. No physical memory is
// committed until commit is called on a sub-range.
func reserve(size uint64) ([]byte, error) {
	return unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

// commit makes b readable and writable.
func commit(b []byte) error {
	return unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE)
}

// decommit returns the physical pages behind b to the OS; the range stays
// accessible. Contents are undefined afterwards, allocators zero on reuse.
func decommit(b []byte) error {
	return unix.Madvise(b, unix.MADV_DONTNEED)
}

// release unmaps the whole reservation.
func release(b []byte) error {
	return unix.Munmap(b)
}
