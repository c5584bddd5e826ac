package rkfw

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samcharles93/rkafp/internal/logger"
	"github.com/samcharles93/rkafp/internal/mapfile"
	"github.com/samcharles93/rkafp/pkg/checksum"
	"github.com/samcharles93/rkafp/pkg/param"
)

// File is an opened ROM image.
type File struct {
	Data   []byte
	Header *Header
	m      *mapfile.File
}

// Open maps a ROM image and decodes its header.
func Open(path string) (*File, error) {
	m, err := mapfile.Open(path)
	if err != nil {
		return nil, err
	}
	h, err := decodeHeader(m.Data)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return &File{Data: m.Data, Header: &h, m: m}, nil
}

// Close releases the mapping, if any.
func (f *File) Close() error {
	if f == nil {
		return nil
	}
	f.Data = nil
	return f.m.Close()
}

// end is where the trailer starts.
func (f *File) end() uint64 {
	return uint64(f.Header.ImageOffset) + uint64(f.Header.ImageLength)
}

// VerifyMD5 checks the hex trailer after the embedded update image. Case is
// ignored.
func (f *File) VerifyMD5() error {
	end := f.end()
	if end+TrailerSize > uint64(len(f.Data)) {
		return fmt.Errorf("%w: trailer missing", ErrChecksumMismatch)
	}
	stored := string(f.Data[end : end+TrailerSize])
	sum := checksum.MD5Hex(bytes.NewReader(f.Data), int64(end))
	if !strings.EqualFold(stored, sum) {
		return fmt.Errorf("%w: stored %s, computed %s", ErrChecksumMismatch, stored, sum)
	}
	return nil
}

func (f *File) slice(off, n uint32) ([]byte, error) {
	end := uint64(off) + uint64(n)
	if end > uint64(len(f.Data)) {
		return nil, fmt.Errorf("%w: region %#x+%#x beyond end of file", ErrCorruptFile, off, n)
	}
	return f.Data[off:end], nil
}

// Loader returns the embedded boot loader.
func (f *File) Loader() ([]byte, error) {
	return f.slice(f.Header.LoaderOffset, f.Header.LoaderLength)
}

// Image returns the embedded update image.
func (f *File) Image() ([]byte, error) {
	return f.slice(f.Header.ImageOffset, f.Header.ImageLength)
}

// UnpackOptions configures Unpack.
type UnpackOptions struct {
	InputPath string
	// ImagePath receives the update image.
	ImagePath string
	// LoaderPath optionally receives the boot loader.
	LoaderPath string
	Progress   io.Writer
	Logger     logger.Logger
}

// Unpack verifies a ROM image and exports its update image and, if asked,
// its boot loader. Nothing is written when the checksum does not match.
func Unpack(opts UnpackOptions) (*Header, error) {
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	f, err := Open(opts.InputPath)
	if err != nil {
		if errors.Is(err, ErrInvalidMagic) || errors.Is(err, ErrCorruptFile) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrOpenInput, err)
	}
	defer func() { _ = f.Close() }()

	h := f.Header
	PrintHeader(progress, h)
	fmt.Fprint(progress, "checking md5sum....")
	if err := f.VerifyMD5(); err != nil {
		fmt.Fprintln(progress, "FAILED")
		return h, err
	}
	fmt.Fprintln(progress, "OK")

	image, err := f.Image()
	if err != nil {
		return h, err
	}
	if err := export(opts.ImagePath, image); err != nil {
		return h, err
	}
	log.Debug("update image exported", "path", opts.ImagePath, "bytes", len(image))

	if opts.LoaderPath != "" {
		loader, err := f.Loader()
		if err != nil {
			return h, err
		}
		if err := export(opts.LoaderPath, loader); err != nil {
			return h, err
		}
		log.Debug("boot loader exported", "path", opts.LoaderPath, "bytes", len(loader))
	}
	return h, nil
}

// PrintHeader writes the human readable header summary.
func PrintHeader(w io.Writer, h *Header) {
	fmt.Fprintln(w, "ROM header:")
	fmt.Fprintf(w, " code: %#x\n", h.Code)
	fmt.Fprintf(w, " version: %s\n\n", param.FormatVersion(h.Version))
	fmt.Fprintf(w, " loader_offset: 0x%08x (%d)\n", h.LoaderOffset, h.LoaderOffset)
	fmt.Fprintf(w, " loader_length: 0x%08x (%d)\n", h.LoaderLength, h.LoaderLength)
	fmt.Fprintf(w, " image_offset : 0x%08x (%d)\n", h.ImageOffset, h.ImageOffset)
	fmt.Fprintf(w, " image_length : 0x%08x (%d)\n\n", h.ImageLength, h.ImageLength)
	fmt.Fprintf(w, " build time: %s\n", h.Built.Format(time.DateTime))
	fmt.Fprintf(w, " chip: %s\n\n", h.ChipName())
}

func export(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %w", ErrCreateOutput, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrCreateOutput, err)
	}
	return nil
}
