package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rkafp/pkg/cmdline"
	"github.com/samcharles93/rkafp/pkg/krnl"
	"github.com/samcharles93/rkafp/pkg/param"
	"github.com/samcharles93/rkafp/pkg/rkaf"
	"github.com/samcharles93/rkafp/pkg/rkfw"
)

// Process exit codes.
const (
	exitGeneric    = 1
	exitUsage      = 2
	exitParameter  = 3
	exitPackage    = 4
	exitValidation = 5
	exitOutput     = 6
	exitSource     = 7
	exitHeader     = 8
	exitChecksum   = 9
	exitWrite      = 10
)

var (
	errOpenInput    = errors.New("cannot open input")
	errCreateOutput = errors.New("cannot create output")
)

// exitClasses is checked in order; the first match wins.
var exitClasses = []struct {
	code int
	errs []error
}{
	{exitValidation, []error{
		param.ErrFieldTooLong, rkaf.ErrTooManyPackages, rkaf.ErrDuplicateSelf, rkaf.ErrTooLarge,
		cmdline.ErrInvalidPolicy, cmdline.ErrTooLarge, cmdline.ErrEmptyLayout,
		rkfw.ErrUnknownChip, rkfw.ErrLoaderTooShort, rkfw.ErrImageTooShort, rkfw.ErrTooLarge,
		krnl.ErrTooLarge, param.ErrBadVersion,
	}},
	{exitParameter, []error{rkaf.ErrParameterFile}},
	{exitPackage, []error{rkaf.ErrPackageFile, cmdline.ErrPackageFile, param.ErrMissingPath, param.ErrLineTooLong}},
	{exitOutput, []error{rkaf.ErrCreateOutput, rkfw.ErrCreateOutput, errCreateOutput}},
	{exitSource, []error{rkaf.ErrOpenPackage, cmdline.ErrMissingSource, rkfw.ErrOpenInput, errOpenInput, fs.ErrNotExist}},
	{exitHeader, []error{
		rkaf.ErrInvalidMagic, rkaf.ErrCorruptFile, rkfw.ErrInvalidMagic, rkfw.ErrCorruptFile,
		krnl.ErrInvalidMagic, krnl.ErrShortHeader, krnl.ErrShortPayload, krnl.ErrMissingCRC,
	}},
	{exitChecksum, []error{rkaf.ErrChecksumMismatch, rkfw.ErrChecksumMismatch, krnl.ErrChecksumMismatch}},
	{exitWrite, []error{rkaf.ErrWrite}},
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	for _, class := range exitClasses {
		for _, target := range class.errs {
			if errors.Is(err, target) {
				return class.code
			}
		}
	}
	return exitGeneric
}

// fail turns err into a cli exit error carrying the mapped status.
func fail(err error) error {
	if err == nil {
		return nil
	}
	return cli.Exit(fmt.Sprintf("error: %v", err), exitCode(err))
}
