package rkaf

import "errors"

var (
	ErrInvalidMagic     = errors.New("invalid RKAF magic")
	ErrCorruptFile      = errors.New("corrupt RKAF file")
	ErrChecksumMismatch = errors.New("RKAF checksum mismatch")
	ErrTooLarge         = errors.New("RKAF image exceeds 4 GiB")

	ErrParameterFile   = errors.New("cannot load parameter file")
	ErrPackageFile     = errors.New("cannot load package file")
	ErrTooManyPackages = errors.New("too many packages")
	ErrDuplicateSelf   = errors.New("more than one SELF package")
	ErrCreateOutput    = errors.New("cannot create output")
	ErrOpenPackage     = errors.New("cannot open package source")
	ErrWrite           = errors.New("cannot write image")

	// Per-partition problems found while unpacking.
	ErrOutOfBounds = errors.New("partition exceeds image length")
	ErrTruncated   = errors.New("image truncated inside partition")
	ErrUnsafePath  = errors.New("partition path escapes output directory")
	ErrShortRecord = errors.New("parameter record too short")
)
