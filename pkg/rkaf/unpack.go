package rkaf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/rkafp/internal/logger"
)

// UnpackOptions configures Unpack.
type UnpackOptions struct {
	InputPath string
	OutputDir string
	// Progress receives the CRC verdict and one line per partition. Nil
	// discards.
	Progress io.Writer
	Logger   logger.Logger
}

// Problem records a partition that could not be extracted in full.
type Problem struct {
	Name string
	Path string
	Err  error
}

// Report summarises an Unpack run.
type Report struct {
	Header *Header
	CRC    CRCStatus
	// Extracted lists the files written below OutputDir, including
	// truncated ones.
	Extracted []string
	// Sentinels lists records without payload.
	Sentinels []string
	Problems  []Problem
}

// Unpack extracts every partition of an update image into OutputDir.
//
// A bad magic or a checksum mismatch on an image without trailing data
// aborts before anything is written. Problems with single partitions are
// logged, collected in the report and do not stop the remaining ones.
func Unpack(opts UnpackOptions) (*Report, error) {
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
		return nil, err
	}
	defer func() { _ = f.Close() }()

	rep := &Report{Header: f.Header}

	fmt.Fprint(progress, "Checking file's crc...")
	rep.CRC, err = f.VerifyCRC()
	if err != nil {
		fmt.Fprintln(progress, "FAILED")
		return rep, err
	}
	switch rep.CRC {
	case CRCSkipped:
		fmt.Fprintln(progress, "SKIPPED")
		log.Warn("image shorter than declared length, crc not checked",
			"length", f.Header.Length, "size", f.Size())
	case CRCMismatchTrailing:
		fmt.Fprintln(progress, "MISMATCH")
		log.Warn("crc mismatch ignored, image has trailing data",
			"length", f.Header.Length, "size", f.Size())
	default:
		fmt.Fprintln(progress, "OK")
	}

	fmt.Fprintf(progress, "------- UNPACKING %d parts -------\n", len(f.Header.Records))
	for _, rec := range f.Header.Records {
		fmt.Fprintf(progress, "%-32s0x%08x  0x%08x\n", rec.Path, rec.Offset, rec.Size)

		if !rec.Source().HasPayload() {
			fmt.Fprintf(progress, "Skip %s file.\n", rec.Path)
			rep.Sentinels = append(rep.Sentinels, rec.Name)
			continue
		}

		dest, err := extract(f, rec, opts.OutputDir)
		if dest != "" {
			rep.Extracted = append(rep.Extracted, dest)
		}
		if err != nil {
			log.Warn("partition not extracted in full", "name", rec.Name, "path", rec.Path, "err", err)
			rep.Problems = append(rep.Problems, Problem{Name: rec.Name, Path: rec.Path, Err: err})
		}
	}
	return rep, nil
}

// extract writes rec below dir and returns the file written, if any.
func extract(f *File, rec Record, dir string) (string, error) {
	dest, err := securePath(dir, rec.Path)
	if err != nil {
		return "", err
	}
	data, perr := f.Payload(rec)
	if perr != nil && !errors.Is(perr, ErrTruncated) {
		return "", perr
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", err
	}
	return dest, perr
}

// securePath joins name onto dir and rejects names that would land outside.
func securePath(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(dir, clean), nil
}
