package rkfw

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/samcharles93/rkafp/internal/logger"
	"github.com/samcharles93/rkafp/pkg/checksum"
	"github.com/samcharles93/rkafp/pkg/param"
	"github.com/samcharles93/rkafp/pkg/rkaf"
)

// PackOptions configures Pack.
type PackOptions struct {
	Chip    Chip
	Version uint32
	// LoaderPath is the boot loader blob, ImagePath the RKAF update image.
	LoaderPath string
	ImagePath  string
	OutputPath string
	// Built is stored as the creation time. Zero means now.
	Built    time.Time
	Progress io.Writer
	Logger   logger.Logger
}

// Pack writes a ROM image. The output is removed again if packing fails
// after it was created.
func Pack(opts PackOptions) (_ *Header, err error) {
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	built := opts.Built
	if built.IsZero() {
		built = time.Now()
	}

	loader, err := os.Open(opts.LoaderPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenInput, err)
	}
	defer func() { _ = loader.Close() }()
	image, err := os.Open(opts.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenInput, err)
	}
	defer func() { _ = image.Close() }()

	out, err := os.OpenFile(opts.OutputPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateOutput, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(opts.OutputPath)
		}
	}()

	h := &Header{
		HeadLen:      HeaderSize,
		Version:      opts.Version,
		Code:         opts.Chip.Code,
		Built:        built,
		Chip:         opts.Chip.ID,
		LoaderOffset: HeaderSize,
		Unknown2:     1,
	}
	fmt.Fprintf(progress, "rom version: %s\n", param.FormatVersion(h.Version))
	fmt.Fprintf(progress, "build time: %s\n", built.Format(time.DateTime))
	fmt.Fprintf(progress, "chip: %s (%#x)\n", opts.Chip.Name, h.Chip)

	var buf [HeaderSize]byte
	if _, err := out.Write(buf[:]); err != nil {
		return nil, err
	}

	n, err := io.Copy(out, loader)
	if err != nil {
		return nil, err
	}
	if n < LoaderHeaderSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrLoaderTooShort, opts.LoaderPath, n)
	}
	h.LoaderLength, err = fit(n)
	if err != nil {
		return nil, err
	}
	h.ImageOffset, err = fit(int64(h.LoaderOffset) + n)
	if err != nil {
		return nil, err
	}

	inner := make([]byte, rkaf.HeaderSize)
	if _, err := io.ReadFull(image, inner); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %s", ErrImageTooShort, opts.ImagePath)
		}
		return nil, err
	}
	if _, err := out.Write(inner); err != nil {
		return nil, err
	}
	rest, err := io.Copy(out, image)
	if err != nil {
		return nil, err
	}
	h.ImageLength, err = fit(rkaf.HeaderSize + rest)
	if err != nil {
		return nil, err
	}
	total := int64(h.ImageOffset) + int64(h.ImageLength)
	if total+TrailerSize > math.MaxUint32 {
		return nil, ErrTooLarge
	}

	if ih, err := rkaf.ParseHeader(inner); err != nil {
		log.Warn("update image header not recognised, backup end left at zero", "image", opts.ImagePath, "err", err)
	} else if rec, ok := ih.Find("backup"); ok {
		h.BackupEndPos = (rec.FlashOffset + rec.FlashSize) / 0x800
	}

	encodeHeader(buf[:], h)
	if _, err := out.WriteAt(buf[:], 0); err != nil {
		return nil, err
	}

	sum := checksum.MD5(out, total)
	trailer := make([]byte, TrailerSize)
	hex.Encode(trailer, sum[:])
	if _, err := out.WriteAt(trailer, total); err != nil {
		return nil, err
	}
	return h, nil
}

func fit(n int64) (uint32, error) {
	if n < 0 || n > math.MaxUint32 {
		return 0, ErrTooLarge
	}
	return uint32(n), nil
}
