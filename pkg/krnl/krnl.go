// Package krnl wraps raw kernel blobs the way Rockchip boot loaders expect
// them: "KRNL", a u32 length, the payload and its RKCRC, little endian.
package krnl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/samcharles93/rkafp/pkg/checksum"
)

const (
	Magic      = "KRNL"
	HeaderSize = 8
)

var (
	ErrInvalidMagic     = errors.New("invalid KRNL magic")
	ErrShortHeader      = errors.New("KRNL header truncated")
	ErrShortPayload     = errors.New("KRNL payload truncated")
	ErrMissingCRC       = errors.New("KRNL crc missing")
	ErrChecksumMismatch = errors.New("KRNL checksum mismatch")
	ErrTooLarge         = errors.New("KRNL payload exceeds 4 GiB")
)

// Pack writes the wrapped form of r to w. The payload is streamed, so w
// must be seekable to patch the length once it is known.
func Pack(w io.WriteSeeker, r io.Reader) (length, crc uint32, err error) {
	start, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, 0, err
	}
	var hdr [HeaderSize]byte
	copy(hdr[:], Magic)
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, 0, err
	}

	h := checksum.New()
	n, err := io.Copy(io.MultiWriter(w, h), r)
	if err != nil {
		return 0, 0, err
	}
	if n > math.MaxUint32 {
		return 0, 0, ErrTooLarge
	}
	length, crc = uint32(n), h.Sum32()

	if _, err := w.Write(binary.LittleEndian.AppendUint32(nil, crc)); err != nil {
		return 0, 0, err
	}
	end, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, 0, err
	}
	binary.LittleEndian.PutUint32(hdr[4:], length)
	if _, err := w.Seek(start, io.SeekStart); err != nil {
		return 0, 0, err
	}
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, 0, err
	}
	if _, err := w.Seek(end, io.SeekStart); err != nil {
		return 0, 0, err
	}
	return length, crc, nil
}

// Result describes an unpacked blob.
type Result struct {
	Length   uint32
	Stored   uint32
	Computed uint32
}

// Valid reports whether the stored checksum matched.
func (r Result) Valid() bool { return r.Stored == r.Computed }

// Unpack copies the payload of the wrapped blob in r to w. A checksum
// mismatch is not an error; callers decide what to do with Result.
func Unpack(w io.Writer, r io.Reader) (Result, error) {
	var res Result
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return res, fmt.Errorf("%w: %w", ErrShortHeader, err)
	}
	if string(hdr[:4]) != Magic {
		return res, ErrInvalidMagic
	}
	res.Length = binary.LittleEndian.Uint32(hdr[4:])

	h := checksum.New()
	n, err := io.Copy(io.MultiWriter(w, h), io.LimitReader(r, int64(res.Length)))
	if err != nil {
		return res, err
	}
	res.Computed = h.Sum32()
	if n < int64(res.Length) {
		return res, fmt.Errorf("%w: %d of %d bytes", ErrShortPayload, n, res.Length)
	}

	var trailer [checksum.Size]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return res, fmt.Errorf("%w: %w", ErrMissingCRC, err)
	}
	res.Stored = binary.LittleEndian.Uint32(trailer[:])
	return res, nil
}
