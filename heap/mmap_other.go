//go:build !(linux || darwin || freebsd)

package heap

// On platforms without mmap the reservation is ordinary Go memory. It is
// committed up front, so commit and decommit have nothing to do.

func reserve(size uint64) ([]byte, error) {
	return make([]byte, size), nil
}

func commit(_ []byte) error { return nil }

func decommit(b []byte) error {
	clear(b)
	return nil
}

func release(_ []byte) error { return nil }
