package storage

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

// ltLanes is the number of 16-bit lanes in an ltHash.
const ltLanes = 1024

// ltHash is a lattice-based homomorphic multiset hash. The digest of a set
// of entries is the lane-wise sum, mod 2^16, of each entry's expansion, so
// entries can be added and removed independently of one another and of the
// order they were written in.
type ltHash [ltLanes]uint16

// entryDigest expands one length-prefixed key/value pair to an ltHash.
func entryDigest(key string, val []byte) (*ltHash, error) {
	xof, err := blake2b.NewXOF(ltLanes*2, nil)
	if err != nil {
		return nil, err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(key)))
	xof.Write(lenBuf[:])
	io.WriteString(xof, key)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(val)))
	xof.Write(lenBuf[:])
	xof.Write(val)

	var out [ltLanes * 2]byte
	if _, err := io.ReadFull(xof, out[:]); err != nil {
		return nil, err
	}
	var h ltHash
	for i := range h {
		h[i] = binary.LittleEndian.Uint16(out[2*i:])
	}
	return &h, nil
}

func (h *ltHash) add(o *ltHash) {
	for i := range h {
		h[i] += o[i]
	}
}

func (h *ltHash) sub(o *ltHash) {
	for i := range h {
		h[i] -= o[i]
	}
}

func (h *ltHash) bytes() []byte {
	out := make([]byte, ltLanes*2)
	for i, v := range h {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func ltHashFromBytes(b []byte) (*ltHash, error) {
	if len(b) != ltLanes*2 {
		return nil, fmt.Errorf("state digest: want %d bytes, got %d", ltLanes*2, len(b))
	}
	var h ltHash
	for i := range h {
		h[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return &h, nil
}
