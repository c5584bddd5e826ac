package rkaf

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/samcharles93/rkafp/pkg/param"
)

// Byte layout of the header and of one record inside it.
const (
	magicSize        = 4
	modelSize        = 0x22
	idSize           = 0x1e
	manufacturerSize = 0x38
	reservedTailSize = 0x74

	offLength       = 4
	offModel        = 8
	offID           = offModel + modelSize
	offManufacturer = offID + idSize
	offUnknown      = offManufacturer + manufacturerSize
	offVersion      = offUnknown + 4
	offNumParts     = offVersion + 4
	offRecords      = offNumParts + 4

	nameSize   = 32
	pathSize   = 60
	recordSize = nameSize + pathSize + 5*4

	offReservedTail = offRecords + MaxRecords*recordSize
)

// Header is the decoded image header.
type Header struct {
	Magic [magicSize]byte
	// Length counts every byte before the trailing CRC.
	Length       uint32
	Model        string
	ID           string
	Manufacturer string
	Unknown      uint32
	// Version is major<<24 | minor<<16 | patch.
	Version uint32
	Records []Record
}

// Record describes one partition.
type Record struct {
	Name string
	// Path is the file name the payload is unpacked to, or a sentinel.
	Path string
	// FlashSize is the size of the target partition in sectors.
	FlashSize uint32
	// Offset is where the payload starts inside the image.
	Offset uint32
	// FlashOffset is the target partition's first sector.
	FlashOffset uint32
	// PaddedSize is the number of image bytes the payload occupies.
	PaddedSize uint32
	// Size is the logical payload length.
	Size uint32
}

// Source interprets the record's path.
func (r Record) Source() param.Source { return param.ParseSource(r.Path) }

// IsParameter reports whether the payload is a PARM block. Unpacking matches
// on the prefix so variants like "parameter.bak" are unwrapped too.
func (r Record) IsParameter() bool { return strings.HasPrefix(r.Name, ParamName) }

// Find returns the last record with the given name.
func (h *Header) Find(name string) (Record, bool) {
	for i := len(h.Records) - 1; i >= 0; i-- {
		if h.Records[i].Name == name {
			return h.Records[i], true
		}
	}
	return Record{}, false
}

// encodeHeader writes h into dst, which must be HeaderSize bytes. Strings
// that do not leave room for a terminating NUL are rejected.
func encodeHeader(dst []byte, h *Header) error {
	if len(dst) < HeaderSize {
		return ErrCorruptFile
	}
	if len(h.Records) > MaxRecords {
		return ErrTooManyPackages
	}
	clear(dst[:HeaderSize])

	le := binary.LittleEndian
	copy(dst[0:magicSize], h.Magic[:])
	le.PutUint32(dst[offLength:], h.Length)
	if err := putString(dst[offModel:offID], "model", h.Model); err != nil {
		return err
	}
	if err := putString(dst[offID:offManufacturer], "id", h.ID); err != nil {
		return err
	}
	if err := putString(dst[offManufacturer:offUnknown], "manufacturer", h.Manufacturer); err != nil {
		return err
	}
	le.PutUint32(dst[offUnknown:], h.Unknown)
	le.PutUint32(dst[offVersion:], h.Version)
	le.PutUint32(dst[offNumParts:], uint32(len(h.Records)))

	for i := range h.Records {
		if err := encodeRecord(dst[offRecords+i*recordSize:][:recordSize], &h.Records[i]); err != nil {
			return err
		}
	}
	return nil
}

func encodeRecord(dst []byte, r *Record) error {
	if err := putString(dst[0:nameSize], "record name", r.Name); err != nil {
		return err
	}
	if err := putString(dst[nameSize:nameSize+pathSize], "record path", r.Path); err != nil {
		return err
	}
	le := binary.LittleEndian
	p := dst[nameSize+pathSize:]
	le.PutUint32(p[0:], r.FlashSize)
	le.PutUint32(p[4:], r.Offset)
	le.PutUint32(p[8:], r.FlashOffset)
	le.PutUint32(p[12:], r.PaddedSize)
	le.PutUint32(p[16:], r.Size)
	return nil
}

// decodeHeader parses a HeaderSize buffer. It checks the magic and the
// record count; offsets are validated by the caller.
func decodeHeader(src []byte) (Header, error) {
	var h Header
	if len(src) < HeaderSize {
		return h, ErrCorruptFile
	}
	le := binary.LittleEndian
	copy(h.Magic[:], src[0:magicSize])
	if string(h.Magic[:]) != Magic {
		return h, ErrInvalidMagic
	}
	h.Length = le.Uint32(src[offLength:])
	h.Model = getString(src[offModel:offID])
	h.ID = getString(src[offID:offManufacturer])
	h.Manufacturer = getString(src[offManufacturer:offUnknown])
	h.Unknown = le.Uint32(src[offUnknown:])
	h.Version = le.Uint32(src[offVersion:])

	n := le.Uint32(src[offNumParts:])
	if n > MaxRecords {
		return h, ErrCorruptFile
	}
	h.Records = make([]Record, n)
	for i := range h.Records {
		h.Records[i] = decodeRecord(src[offRecords+i*recordSize:][:recordSize])
	}
	return h, nil
}

func decodeRecord(src []byte) Record {
	le := binary.LittleEndian
	p := src[nameSize+pathSize:]
	return Record{
		Name:        getString(src[0:nameSize]),
		Path:        getString(src[nameSize : nameSize+pathSize]),
		FlashSize:   le.Uint32(p[0:]),
		Offset:      le.Uint32(p[4:]),
		FlashOffset: le.Uint32(p[8:]),
		PaddedSize:  le.Uint32(p[12:]),
		Size:        le.Uint32(p[16:]),
	}
}

func putString(dst []byte, field, s string) error {
	if len(s) >= len(dst) {
		return &param.FieldError{Field: field, Value: s, Max: len(dst) - 1}
	}
	copy(dst, s)
	return nil
}

func getString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return string(src)
}

// ParseHeader decodes the update image header at the start of b.
func ParseHeader(b []byte) (*Header, error) {
	h, err := decodeHeader(b)
	if err != nil {
		return nil, err
	}
	return &h, nil
}
