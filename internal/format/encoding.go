package format

import "encoding/binary"

// Word encoding for heap memory. Every word is stored little-endian so dumps
// and tests are byte-identical across hosts.

// PutWord writes a 64-bit word at off.
func PutWord(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+BytesInWord], v)
}

// ReadWord reads a 64-bit word at off.
func ReadWord(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+BytesInWord])
}

// PutU32 writes a uint32 value at off.
func PutU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// ReadU32 reads a uint32 value at off.
func ReadU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}
