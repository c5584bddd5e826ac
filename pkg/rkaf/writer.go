package rkaf

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"

	"github.com/samcharles93/rkafp/pkg/checksum"
	"github.com/samcharles93/rkafp/pkg/param"
)

// Metadata is the device identification stored in the header.
type Metadata struct {
	Model        string
	ID           string
	Manufacturer string
	Version      uint32
}

// Writer builds an update image in a streaming fashion.
//
// The writer reserves space for the header up-front, appends payloads block
// by block and patches the header during Finalise. Records keep the order
// in which they were added.
type Writer struct {
	f       *os.File
	records []Record
	self    bool
	closed  bool
	block   []byte
}

// NewWriter creates a writer targeting f. The file is truncated and the
// header area filled with zeros.
func NewWriter(f *os.File) (*Writer, error) {
	if f == nil {
		return nil, errors.New("rkaf: nil file")
	}
	if err := f.Truncate(0); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	w := &Writer{
		f:     f,
		block: make([]byte, BlockSize),
	}
	if err := writeFull(f, w.block[:HeaderSize]); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) check(rec Record) error {
	if w.closed {
		return errors.New("rkaf: writer already finalised")
	}
	if len(w.records) >= MaxRecords {
		return ErrTooManyPackages
	}
	if len(rec.Name) >= nameSize {
		return &param.FieldError{Field: "record name", Value: rec.Name, Max: nameSize - 1}
	}
	if len(rec.Path) >= pathSize {
		return &param.FieldError{Field: "record path", Value: rec.Path, Max: pathSize - 1}
	}
	return nil
}

// AddRecord records a partition without payload, such as a SELF or RESERVED
// entry. Offset and sizes other than the flash geometry are cleared.
func (w *Writer) AddRecord(rec Record) (Record, error) {
	if err := w.check(rec); err != nil {
		return rec, err
	}
	if rec.Source().Kind == param.SourceSelf {
		if w.self {
			return rec, ErrDuplicateSelf
		}
		w.self = true
	}
	rec.Offset, rec.PaddedSize, rec.Size = 0, 0, 0
	w.records = append(w.records, rec)
	return rec, nil
}

// WritePackage streams r into the image as rec's payload. Every block is
// padded to BlockSize with zeros; an empty source writes nothing.
func (w *Writer) WritePackage(rec Record, r io.Reader) (Record, error) {
	if err := w.check(rec); err != nil {
		return rec, err
	}
	if r == nil {
		return rec, errors.New("rkaf: nil reader")
	}
	offset, err := w.offset()
	if err != nil {
		return rec, err
	}

	rec.Offset, rec.PaddedSize, rec.Size = offset, 0, 0
	for {
		n, rerr := io.ReadFull(r, w.block)
		if n > 0 {
			clear(w.block[n:])
			if uint64(rec.PaddedSize)+BlockSize > math.MaxUint32 {
				return rec, ErrTooLarge
			}
			if err := writeFull(w.f, w.block); err != nil {
				return rec, err
			}
			rec.Size += uint32(n)
			rec.PaddedSize += BlockSize
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return rec, rerr
		}
	}

	w.records = append(w.records, rec)
	return rec, nil
}

// WriteParameter stores r as a PARM block. Only the first ParamPayloadMax
// bytes of r are kept.
func (w *Writer) WriteParameter(rec Record, r io.Reader) (Record, error) {
	if err := w.check(rec); err != nil {
		return rec, err
	}
	if r == nil {
		return rec, errors.New("rkaf: nil reader")
	}
	offset, err := w.offset()
	if err != nil {
		return rec, err
	}

	clear(w.block)
	copy(w.block, ParamMagic)
	payload := w.block[paramHeaderSize : paramHeaderSize+ParamPayloadMax]
	n, rerr := io.ReadFull(r, payload)
	if rerr != nil && rerr != io.EOF && rerr != io.ErrUnexpectedEOF {
		return rec, rerr
	}
	le := binary.LittleEndian
	le.PutUint32(w.block[4:], uint32(n))
	le.PutUint32(w.block[paramHeaderSize+n:], checksum.Checksum(payload[:n]))
	if err := writeFull(w.f, w.block); err != nil {
		return rec, err
	}

	rec.Offset = offset
	rec.Size = uint32(n + paramOverhead)
	rec.PaddedSize = BlockSize
	w.records = append(w.records, rec)
	return rec, nil
}

// Records returns the records written so far.
func (w *Writer) Records() []Record {
	return append([]Record(nil), w.records...)
}

// Finalise fills in the header, writes it at offset zero and appends the
// RKCRC of every byte before the trailer. SELF records are patched to cover
// the finished image.
func (w *Writer) Finalise(meta Metadata) (*Header, error) {
	if w.closed {
		return nil, errors.New("rkaf: writer already finalised")
	}

	end, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if end+CRCSize > math.MaxUint32 {
		return nil, ErrTooLarge
	}
	length := uint32(end)

	hdr := &Header{
		Length:       length,
		Model:        meta.Model,
		ID:           meta.ID,
		Manufacturer: meta.Manufacturer,
		Version:      meta.Version,
		Records:      w.Records(),
	}
	copy(hdr.Magic[:], Magic)
	for i := range hdr.Records {
		if hdr.Records[i].Source().Kind == param.SourceSelf {
			hdr.Records[i].Size = length + CRCSize
			hdr.Records[i].PaddedSize = roundUp(length+CRCSize, SelfAlign)
		}
	}

	buf := make([]byte, HeaderSize)
	if err := encodeHeader(buf, hdr); err != nil {
		return nil, err
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if err := writeFull(w.f, buf); err != nil {
		return nil, err
	}

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	crc := checksum.StreamCRC(w.f, int64(length))
	if _, err := w.f.Seek(end, io.SeekStart); err != nil {
		return nil, err
	}
	var trailer [CRCSize]byte
	binary.LittleEndian.PutUint32(trailer[:], crc)
	if err := writeFull(w.f, trailer[:]); err != nil {
		return nil, err
	}
	if err := w.f.Truncate(end + CRCSize); err != nil {
		return nil, err
	}

	w.closed = true
	return hdr, nil
}

func (w *Writer) offset() (uint32, error) {
	pos, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if pos > math.MaxUint32 {
		return 0, ErrTooLarge
	}
	return uint32(pos), nil
}

func roundUp(n, align uint32) uint32 {
	return (n + align - 1) / align * align
}

func writeFull(f *os.File, p []byte) error {
	for len(p) > 0 {
		n, err := f.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
