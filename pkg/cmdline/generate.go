package cmdline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samcharles93/rkafp/pkg/param"
)

const sectorSize = param.SectorSize

var (
	ErrMissingSource = errors.New("package source missing")
	ErrTooLarge      = errors.New("partition exceeds 32-bit sector range")
	ErrEmptyLayout   = errors.New("no partitions to lay out")
	ErrPackageFile   = errors.New("package file")
)

// Entry is one partition of a computed layout.
type Entry struct {
	param.Partition
	// Bytes is the size of the source file.
	Bytes int64
	// Missing is set when an optional source file did not exist.
	Missing bool
}

// Layout sizes every package found in dir and places the partitions back to
// back from pol.BaseSector. The last partition grows to the end of the
// device.
func Layout(dir string, pkgs []param.Package, pol *Policy) ([]Entry, error) {
	var out []Entry
	next := uint64(pol.BaseSector)
	for _, p := range pkgs {
		rule := pol.Rule(p.Name)
		if rule.Exclude {
			continue
		}

		e := Entry{Partition: param.Partition{Name: p.Name}}
		if p.Source.HasPayload() {
			st, err := os.Stat(filepath.Join(dir, p.Source.Path))
			switch {
			case err == nil:
				e.Bytes = st.Size()
			case errors.Is(err, os.ErrNotExist) && rule.Optional:
				e.Missing = true
			default:
				return nil, fmt.Errorf("%w: %s: %w", ErrMissingSource, p.Name, err)
			}
		}

		size, err := rule.Sectors(e.Bytes)
		if err != nil {
			return nil, err
		}
		if next > 0xFFFFFFFF {
			return nil, fmt.Errorf("%s: %w", p.Name, ErrTooLarge)
		}
		e.Start = uint32(next)
		e.Size = size
		next += uint64(size)
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, ErrEmptyLayout
	}
	last := &out[len(out)-1]
	last.Grow = true
	last.Size = 0
	return out, nil
}

// Partitions strips the bookkeeping from a layout.
func Partitions(entries []Entry) []param.Partition {
	parts := make([]param.Partition, len(entries))
	for i, e := range entries {
		parts[i] = e.Partition
	}
	return parts
}

// Generate reads the package file in dir and renders the mtdparts fragment
// for it.
func Generate(dir, packageFile string, pol *Policy) (string, []Entry, error) {
	if pol == nil {
		pol = DefaultPolicy()
	}
	if err := pol.Validate(); err != nil {
		return "", nil, err
	}
	pkgs, err := param.LoadPackages(filepath.Join(dir, packageFile), nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrPackageFile, err)
	}
	entries, err := Layout(dir, pkgs, pol)
	if err != nil {
		return "", nil, err
	}
	return param.RenderMtdParts(pol.Device, Partitions(entries)), entries, nil
}
