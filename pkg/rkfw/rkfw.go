// Package rkfw implements the RKFW ROM image: a small header, the boot
// loader, an RKAF update image and the hex MD5 of all of it.
package rkfw

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Magic = "RKFW"

	// HeaderSize is the encoded size of Header, stored in its HeadLen field.
	HeaderSize = 0x66

	// LoaderHeaderSize is the fixed part of a boot loader blob.
	LoaderHeaderSize = 25

	// TrailerSize is the length of the hex MD5 trailer.
	TrailerSize = 32
)

var (
	ErrInvalidMagic     = errors.New("invalid RKFW magic")
	ErrCorruptFile      = errors.New("corrupt RKFW file")
	ErrChecksumMismatch = errors.New("RKFW md5 mismatch")
	ErrUnknownChip      = errors.New("unknown chip")
	ErrLoaderTooShort   = errors.New("boot loader too short")
	ErrImageTooShort    = errors.New("update image too short")
	ErrTooLarge         = errors.New("ROM image exceeds 4 GiB")
	ErrOpenInput        = errors.New("cannot open input")
	ErrCreateOutput     = errors.New("cannot create output")
)

// Chip identifies a SoC family and the code stored alongside it.
type Chip struct {
	Name string
	ID   uint32
	Code uint32
}

var chips = []Chip{
	{Name: "rk29", ID: 0x50, Code: 0x01030000},
	{Name: "rk30", ID: 0x60, Code: 0x01050000},
	{Name: "rk31", ID: 0x70, Code: 0x01060000},
	{Name: "rk32", ID: 0x80, Code: 0x01060000},
}

// Chips lists the supported chip families.
func Chips() []Chip { return append([]Chip(nil), chips...) }

// ChipByName looks up a chip family; a leading '-' is accepted.
func ChipByName(name string) (Chip, error) {
	n := strings.ToLower(strings.TrimPrefix(name, "-"))
	for _, c := range chips {
		if c.Name == n {
			return c, nil
		}
	}
	return Chip{}, fmt.Errorf("%w: %q", ErrUnknownChip, name)
}

// ChipByID looks up a chip family by its header value.
func ChipByID(id uint32) (Chip, bool) {
	for _, c := range chips {
		if c.ID == id {
			return c, true
		}
	}
	return Chip{}, false
}

// Header is the decoded ROM header. Offsets are absolute.
type Header struct {
	HeadLen uint16
	// Version is major<<24 | minor<<16 | patch.
	Version      uint32
	Code         uint32
	Built        time.Time
	Chip         uint32
	LoaderOffset uint32
	LoaderLength uint32
	ImageOffset  uint32
	ImageLength  uint32
	Unknown1     uint32
	Unknown2     uint32
	SystemFSType uint32
	// BackupEndPos is the end of the "backup" partition in 0x800-sector units.
	BackupEndPos uint32
}

// Field offsets inside the packed header.
const (
	offHeadLen      = 0x04
	offVersion      = 0x06
	offCode         = 0x0a
	offYear         = 0x0e
	offMonth        = 0x10
	offChip         = 0x15
	offLoaderOffset = 0x19
	offLoaderLength = 0x1d
	offImageOffset  = 0x21
	offImageLength  = 0x25
	offUnknown1     = 0x29
	offUnknown2     = 0x2d
	offSystemFSType = 0x31
	offBackupEndPos = 0x35
)

func encodeHeader(dst []byte, h *Header) {
	clear(dst[:HeaderSize])
	le := binary.LittleEndian
	copy(dst, Magic)
	le.PutUint16(dst[offHeadLen:], h.HeadLen)
	le.PutUint32(dst[offVersion:], h.Version)
	le.PutUint32(dst[offCode:], h.Code)
	le.PutUint16(dst[offYear:], uint16(h.Built.Year()))
	dst[offMonth] = byte(h.Built.Month())
	dst[offMonth+1] = byte(h.Built.Day())
	dst[offMonth+2] = byte(h.Built.Hour())
	dst[offMonth+3] = byte(h.Built.Minute())
	dst[offMonth+4] = byte(h.Built.Second())
	le.PutUint32(dst[offChip:], h.Chip)
	le.PutUint32(dst[offLoaderOffset:], h.LoaderOffset)
	le.PutUint32(dst[offLoaderLength:], h.LoaderLength)
	le.PutUint32(dst[offImageOffset:], h.ImageOffset)
	le.PutUint32(dst[offImageLength:], h.ImageLength)
	le.PutUint32(dst[offUnknown1:], h.Unknown1)
	le.PutUint32(dst[offUnknown2:], h.Unknown2)
	le.PutUint32(dst[offSystemFSType:], h.SystemFSType)
	le.PutUint32(dst[offBackupEndPos:], h.BackupEndPos)
}

func decodeHeader(src []byte) (Header, error) {
	var h Header
	if len(src) < HeaderSize {
		return h, ErrCorruptFile
	}
	if string(src[:4]) != Magic {
		return h, ErrInvalidMagic
	}
	le := binary.LittleEndian
	h.HeadLen = le.Uint16(src[offHeadLen:])
	h.Version = le.Uint32(src[offVersion:])
	h.Code = le.Uint32(src[offCode:])
	h.Built = time.Date(int(le.Uint16(src[offYear:])), time.Month(src[offMonth]), int(src[offMonth+1]),
		int(src[offMonth+2]), int(src[offMonth+3]), int(src[offMonth+4]), 0, time.Local)
	h.Chip = le.Uint32(src[offChip:])
	h.LoaderOffset = le.Uint32(src[offLoaderOffset:])
	h.LoaderLength = le.Uint32(src[offLoaderLength:])
	h.ImageOffset = le.Uint32(src[offImageOffset:])
	h.ImageLength = le.Uint32(src[offImageLength:])
	h.Unknown1 = le.Uint32(src[offUnknown1:])
	h.Unknown2 = le.Uint32(src[offUnknown2:])
	h.SystemFSType = le.Uint32(src[offSystemFSType:])
	h.BackupEndPos = le.Uint32(src[offBackupEndPos:])
	return h, nil
}

// ChipName renders the chip field, falling back to hex.
func (h *Header) ChipName() string {
	if c, ok := ChipByID(h.Chip); ok {
		return c.Name
	}
	return fmt.Sprintf("%#x", h.Chip)
}
