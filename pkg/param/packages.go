package param

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Field widths of package records, excluding the terminating NUL.
const (
	MaxPackageNameLen = MaxNameLen
	MaxPackagePathLen = 59
)

// Unresolved is the flash offset of a package without a matching partition.
const Unresolved uint32 = 0xFFFFFFFF

// Sentinel paths with no backing file.
const (
	SelfPath     = "SELF"
	ReservedPath = "RESERVED"
)

// SourceKind tells what supplies a package's content.
type SourceKind int

const (
	// SourceFile is a regular file relative to the source directory.
	SourceFile SourceKind = iota
	// SourceSelf stands for the update image itself.
	SourceSelf
	// SourceReserved is a placeholder partition with no content.
	SourceReserved
)

func (k SourceKind) String() string {
	switch k {
	case SourceFile:
		return "file"
	case SourceSelf:
		return "self"
	case SourceReserved:
		return "reserved"
	default:
		return fmt.Sprintf("SourceKind(%d)", int(k))
	}
}

// Source is the content of a package.
type Source struct {
	Kind SourceKind
	// Path is set for SourceFile only.
	Path string
}

// ParseSource maps the sentinel spellings to their kinds.
func ParseSource(s string) Source {
	switch s {
	case SelfPath:
		return Source{Kind: SourceSelf}
	case ReservedPath:
		return Source{Kind: SourceReserved}
	default:
		return Source{Kind: SourceFile, Path: s}
	}
}

// String returns the on-disk spelling.
func (s Source) String() string {
	switch s.Kind {
	case SourceSelf:
		return SelfPath
	case SourceReserved:
		return ReservedPath
	default:
		return s.Path
	}
}

// HasPayload reports whether the package carries bytes of its own.
func (s Source) HasPayload() bool { return s.Kind == SourceFile }

// Package is one line of a package-file, resolved against the partitions of
// a parameter file.
type Package struct {
	Name   string
	Source Source
	// FlashOffset and FlashSize are in sectors. FlashOffset is Unresolved and
	// FlashSize zero when no partition carries the package's name.
	FlashOffset uint32
	FlashSize   uint32
}

// Resolved reports whether the package was matched to a partition.
func (p Package) Resolved() bool { return p.FlashOffset != Unresolved }

// LoadPackages parses the package-file at path. params may be nil.
func LoadPackages(path string, params *Parameters) ([]Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	pkgs, err := ParsePackages(f, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pkgs, nil
}

// ParsePackages reads "name path" lines in order. A name or path that does
// not fit its record field fails the whole list.
func ParsePackages(r io.Reader, params *Parameters) ([]Package, error) {
	var pkgs []Package
	err := ScanLines(r, func(lineno int, line string) error {
		name, path := splitPackageLine(line)
		if path == "" {
			return fmt.Errorf("line %d: %w: %q", lineno, ErrMissingPath, name)
		}
		if err := checkWidth("package name", name, MaxPackageNameLen); err != nil {
			return fmt.Errorf("line %d: %w", lineno, err)
		}
		if err := checkWidth("package path", path, MaxPackagePathLen); err != nil {
			return fmt.Errorf("line %d: %w", lineno, err)
		}

		pkg := Package{
			Name:        name,
			Source:      ParseSource(path),
			FlashOffset: Unresolved,
		}
		if part, ok := params.Lookup(name); ok {
			pkg.FlashOffset = part.Start
			pkg.FlashSize = part.Size
		}
		pkgs = append(pkgs, pkg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pkgs, nil
}

func splitPackageLine(line string) (name, path string) {
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimLeft(line[i:], " \t")
}
