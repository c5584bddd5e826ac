package rkaf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/samcharles93/rkafp/internal/logger"
	"github.com/samcharles93/rkafp/pkg/param"
)

// Names of the descriptor files inside a source directory.
const (
	ParameterFile = "parameter"
	PackageFile   = "package-file"
)

// PackOptions configures Pack.
type PackOptions struct {
	// SourceDir holds the parameter file, the package file and every
	// payload they reference.
	SourceDir  string
	OutputPath string
	// Progress receives one line per packed partition. Nil discards.
	Progress io.Writer
	Logger   logger.Logger
}

// Pack builds an update image from SourceDir. Descriptor problems are
// reported before OutputPath is touched.
func Pack(opts PackOptions) (*Header, error) {
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	params, err := param.LoadParameter(filepath.Join(opts.SourceDir, ParameterFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParameterFile, err)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	pkgs, err := param.LoadPackages(filepath.Join(opts.SourceDir, PackageFile), params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPackageFile, err)
	}
	if err := CheckPackages(pkgs); err != nil {
		return nil, err
	}
	log.Debug("descriptors loaded",
		"version", param.FormatVersion(params.Version),
		"partitions", len(params.Partitions),
		"packages", len(pkgs))

	out, err := os.OpenFile(opts.OutputPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateOutput, err)
	}
	hdr, err := pack(out, opts.SourceDir, pkgs, params, progress, log)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %w", ErrWrite, cerr)
	}
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(progress, "------ OK ------")
	return hdr, nil
}

// CheckPackages rejects package lists that cannot be encoded.
func CheckPackages(pkgs []param.Package) error {
	if len(pkgs) > MaxRecords {
		return fmt.Errorf("%w: %d > %d", ErrTooManyPackages, len(pkgs), MaxRecords)
	}
	self := 0
	for _, p := range pkgs {
		if p.Source.Kind == param.SourceSelf {
			self++
		}
	}
	if self > 1 {
		return ErrDuplicateSelf
	}
	return nil
}

func pack(out *os.File, dir string, pkgs []param.Package, params *param.Parameters, progress io.Writer, log logger.Logger) (*Header, error) {
	w, err := NewWriter(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	for _, p := range pkgs {
		rec := Record{
			Name:        p.Name,
			Path:        p.Source.String(),
			FlashOffset: p.FlashOffset,
			FlashSize:   p.FlashSize,
		}
		if !p.Resolved() {
			log.Debug("no partition for package", "name", p.Name)
		}
		if !p.Source.HasPayload() {
			if _, err := w.AddRecord(rec); err != nil {
				return nil, err
			}
			continue
		}

		fmt.Fprintf(progress, "Adding file: %s\n", p.Source.Path)
		rec, err = writePayload(w, rec, filepath.Join(dir, p.Source.Path))
		if err != nil {
			return nil, err
		}
		log.Debug("package written", "name", rec.Name, "offset", rec.Offset, "size", rec.Size)
	}

	hdr, err := w.Finalise(Metadata{
		Model:        params.MachineModel,
		ID:           params.MachineID,
		Manufacturer: params.Manufacturer,
		Version:      params.Version,
	})
	if err != nil {
		return nil, wrapWrite(err)
	}
	return hdr, nil
}

func writePayload(w *Writer, rec Record, path string) (Record, error) {
	src, err := os.Open(path)
	if err != nil {
		return rec, fmt.Errorf("%w: %w", ErrOpenPackage, err)
	}
	defer func() { _ = src.Close() }()

	if rec.Name == ParamName {
		rec, err = w.WriteParameter(rec, src)
	} else {
		rec, err = w.WritePackage(rec, src)
	}
	return rec, wrapWrite(err)
}

// wrapWrite tags I/O failures with ErrWrite and leaves format errors alone.
func wrapWrite(err error) error {
	var fe *param.FieldError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &fe), errors.Is(err, ErrTooManyPackages), errors.Is(err, ErrDuplicateSelf), errors.Is(err, ErrTooLarge):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
}
