package rkaf

import (
	"encoding/binary"
	"io"

	"github.com/samcharles93/rkafp/internal/mapfile"
	"github.com/samcharles93/rkafp/pkg/checksum"
)

// File is an opened update image.
type File struct {
	Data   []byte
	Header *Header
	m      *mapfile.File
}

// Open maps an update image read-only and decodes its header.
// The returned file must be closed to release any mapping.
func Open(path string) (*File, error) {
	m, err := mapfile.Open(path)
	if err != nil {
		return nil, err
	}
	f, err := parseFileData(m)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return f, nil
}

// OpenReaderAt loads an update image from a random-access reader without mmap.
func OpenReaderAt(r io.ReaderAt, size int64) (*File, error) {
	if size < HeaderSize {
		return nil, ErrCorruptFile
	}
	m, err := mapfile.Load(r, size)
	if err != nil {
		return nil, err
	}
	return parseFileData(m)
}

func parseFileData(m *mapfile.File) (*File, error) {
	if len(m.Data) < HeaderSize {
		return nil, ErrCorruptFile
	}
	hdr, err := decodeHeader(m.Data[:HeaderSize])
	if err != nil {
		return nil, err
	}
	return &File{Data: m.Data, Header: &hdr, m: m}, nil
}

// Close releases the mapping, if any.
func (f *File) Close() error {
	if f == nil {
		return nil
	}
	f.Data = nil
	return f.m.Close()
}

// Size is the number of bytes available, which need not match the header.
func (f *File) Size() int64 { return int64(len(f.Data)) }

// CRCStatus is the outcome of VerifyCRC.
type CRCStatus int

const (
	// CRCValid means the trailer matches.
	CRCValid CRCStatus = iota
	// CRCSkipped means the image is shorter than its declared length plus
	// trailer, so there is nothing to compare against.
	CRCSkipped
	// CRCMismatchTrailing means the trailer did not match but data follows
	// it. The image is still usable.
	CRCMismatchTrailing
)

func (s CRCStatus) String() string {
	switch s {
	case CRCValid:
		return "valid"
	case CRCSkipped:
		return "skipped"
	case CRCMismatchTrailing:
		return "mismatch (trailing data)"
	default:
		return "unknown"
	}
}

// StoredCRC returns the trailer found right after the declared length.
func (f *File) StoredCRC() (uint32, bool) {
	end := uint64(f.Header.Length) + CRCSize
	if end > uint64(len(f.Data)) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(f.Data[f.Header.Length:end]), true
}

// VerifyCRC compares the trailer against the RKCRC of the first Length bytes.
// A mismatch is fatal only when the trailer is the last thing in the file.
func (f *File) VerifyCRC() (CRCStatus, error) {
	stored, ok := f.StoredCRC()
	if !ok {
		return CRCSkipped, nil
	}
	if checksum.Checksum(f.Data[:f.Header.Length]) == stored {
		return CRCValid, nil
	}
	if f.Size()-CRCSize > int64(f.Header.Length) {
		return CRCMismatchTrailing, nil
	}
	return CRCValid, ErrChecksumMismatch
}

// Payload returns the bytes of rec with PARM framing removed. The region
// must lie inside the declared length; if the file ends early the bytes
// that exist are returned together with ErrTruncated.
func (f *File) Payload(rec Record) ([]byte, error) {
	off, size := uint64(rec.Offset), uint64(rec.Size)
	if rec.IsParameter() {
		if size < paramOverhead {
			return nil, ErrShortRecord
		}
		off += paramHeaderSize
		size -= paramOverhead
	}
	if off+size > uint64(f.Header.Length) {
		return nil, ErrOutOfBounds
	}
	have := uint64(len(f.Data))
	if off+size > have {
		if off > have {
			off = have
		}
		return f.Data[off:have], ErrTruncated
	}
	return f.Data[off : off+size], nil
}
