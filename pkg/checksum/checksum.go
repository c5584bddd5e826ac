// Package checksum implements the two integrity checks used by Rockchip
// firmware images: the RKCRC running CRC that trails update containers and
// kernel blobs, and the hex MD5 trailer of ROM images.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
)

// Poly is the RKCRC generator polynomial. Bits are processed MSB first, the
// accumulator starts at zero and is never inverted.
const Poly uint32 = 0x04C10DB7

// Size is the encoded size of an RKCRC value.
const Size = 4

// streamBufSize bounds a single read in StreamCRC.
const streamBufSize = 16 * 1024

var table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ Poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
}

// Update folds p into the running accumulator crc and returns the result.
// Feeding a byte sequence in any number of pieces yields the same value as
// feeding it at once.
func Update(crc uint32, p []byte) uint32 {
	for _, b := range p {
		crc = (crc << 8) ^ table[byte(crc>>24)^b]
	}
	return crc
}

// Checksum returns the RKCRC of p.
func Checksum(p []byte) uint32 {
	return Update(0, p)
}

type digest struct {
	crc uint32
}

// New returns a hash.Hash32 computing RKCRC. Sum appends the value in
// big-endian order like hash/crc32; containers store it little endian.
func New() hash.Hash32 {
	return &digest{}
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { d.crc = 0 }
func (d *digest) Sum32() uint32  { return d.crc }

func (d *digest) Write(p []byte) (int, error) {
	d.crc = Update(d.crc, p)
	return len(p), nil
}

func (d *digest) Sum(in []byte) []byte {
	s := d.crc
	return append(in, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}

// StreamCRC reads up to n bytes from the current position of r and returns
// their RKCRC. Reading stops early when r runs dry; the partial result is
// returned and it is up to the caller to notice the mismatch.
func StreamCRC(r io.Reader, n int64) uint32 {
	var crc uint32
	if n <= 0 {
		return crc
	}
	buf := make([]byte, streamBufSize)
	for n > 0 {
		ask := int64(len(buf))
		if n < ask {
			ask = n
		}
		got, _ := io.ReadFull(r, buf[:ask])
		crc = Update(crc, buf[:got])
		n -= int64(got)
		if int64(got) < ask {
			break
		}
	}
	return crc
}

// MD5 hashes the first n bytes of r, starting at offset 0. Short sources are
// hashed as far as they go.
func MD5(r io.ReaderAt, n int64) [md5.Size]byte {
	h := md5.New()
	_, _ = io.Copy(h, io.NewSectionReader(r, 0, n))
	var sum [md5.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// MD5Hex is MD5 rendered as the 32 lowercase hex characters stored in ROM
// image trailers.
func MD5Hex(r io.ReaderAt, n int64) string {
	sum := MD5(r, n)
	return hex.EncodeToString(sum[:])
}
