package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rkafp/pkg/krnl"
	"github.com/samcharles93/rkafp/pkg/param"
	"github.com/samcharles93/rkafp/pkg/rkaf"
	"github.com/samcharles93/rkafp/pkg/rkfw"
)

type recordJSON struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Kind        string `json:"kind"`
	FlashOffset uint32 `json:"flash_offset"`
	FlashSize   uint32 `json:"flash_size"`
	Offset      uint32 `json:"offset"`
	PaddedSize  uint32 `json:"padded_size"`
	Size        uint32 `json:"size"`
}

type updateJSON struct {
	Format       string       `json:"format"`
	Length       uint32       `json:"length"`
	FileSize     int64        `json:"file_size"`
	Model        string       `json:"model"`
	ID           string       `json:"id"`
	Manufacturer string       `json:"manufacturer"`
	Version      string       `json:"version"`
	CRC          string       `json:"crc"`
	Records      []recordJSON `json:"records"`
}

type romJSON struct {
	Format       string      `json:"format"`
	Version      string      `json:"version"`
	Code         uint32      `json:"code"`
	Chip         string      `json:"chip"`
	Built        string      `json:"built"`
	LoaderOffset uint32      `json:"loader_offset"`
	LoaderLength uint32      `json:"loader_length"`
	ImageOffset  uint32      `json:"image_offset"`
	ImageLength  uint32      `json:"image_length"`
	BackupEndPos uint32      `json:"backup_end_pos"`
	MD5          string      `json:"md5"`
	Image        *updateJSON `json:"image,omitempty"`
}

type kernelJSON struct {
	Format string `json:"format"`
	Length uint32 `json:"length"`
	CRC    string `json:"crc"`
}

func inspectCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Describe an RKAF update image, RKFW ROM image or KRNL blob",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print machine readable JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := args(cmd, 1)
			if err != nil {
				return err
			}
			path := a[0]

			magic, err := readMagic(path)
			if err != nil {
				return fail(err)
			}

			var doc any
			switch magic {
			case rkaf.Magic:
				f, err := rkaf.Open(path)
				if err != nil {
					return fail(err)
				}
				defer func() { _ = f.Close() }()
				doc = describeUpdate(f.Header, f.Size(), crcVerdict(f))
			case rkfw.Magic:
				f, err := rkfw.Open(path)
				if err != nil {
					return fail(err)
				}
				defer func() { _ = f.Close() }()
				doc = describeROM(f)
			case krnl.Magic:
				doc, err = describeKernel(path)
				if err != nil {
					return fail(err)
				}
			default:
				return cli.Exit(fmt.Sprintf("error: %s: unknown magic %q", path, magic), exitHeader)
			}

			w := cmd.Root().Writer
			if asJSON {
				out, err := json.MarshalIndent(doc, "", "  ")
				if err != nil {
					return fail(err)
				}
				_, err = fmt.Fprintln(w, string(out))
				return err
			}
			printDoc(w, doc)
			return nil
		},
	}
}

func readMagic(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errOpenInput, err)
	}
	defer func() { _ = f.Close() }()
	var b [4]byte
	if _, err := io.ReadFull(f, b[:]); err != nil {
		return "", fmt.Errorf("%w: %s: file too short", rkaf.ErrCorruptFile, path)
	}
	return string(b[:]), nil
}

func crcVerdict(f *rkaf.File) string {
	st, err := f.VerifyCRC()
	if err != nil {
		return "mismatch"
	}
	return st.String()
}

func describeUpdate(h *rkaf.Header, size int64, crc string) *updateJSON {
	doc := &updateJSON{
		Format:       rkaf.Magic,
		Length:       h.Length,
		FileSize:     size,
		Model:        h.Model,
		ID:           h.ID,
		Manufacturer: h.Manufacturer,
		Version:      param.FormatVersion(h.Version),
		CRC:          crc,
		Records:      make([]recordJSON, 0, len(h.Records)),
	}
	for _, r := range h.Records {
		doc.Records = append(doc.Records, recordJSON{
			Name:        r.Name,
			Path:        r.Path,
			Kind:        r.Source().Kind.String(),
			FlashOffset: r.FlashOffset,
			FlashSize:   r.FlashSize,
			Offset:      r.Offset,
			PaddedSize:  r.PaddedSize,
			Size:        r.Size,
		})
	}
	return doc
}

func describeROM(f *rkfw.File) *romJSON {
	h := f.Header
	doc := &romJSON{
		Format:       rkfw.Magic,
		Version:      param.FormatVersion(h.Version),
		Code:         h.Code,
		Chip:         h.ChipName(),
		Built:        h.Built.Format("2006-01-02 15:04:05"),
		LoaderOffset: h.LoaderOffset,
		LoaderLength: h.LoaderLength,
		ImageOffset:  h.ImageOffset,
		ImageLength:  h.ImageLength,
		BackupEndPos: h.BackupEndPos,
		MD5:          "valid",
	}
	if err := f.VerifyMD5(); err != nil {
		doc.MD5 = "mismatch"
	}
	if img, err := f.Image(); err == nil {
		if inner, err := rkaf.OpenReaderAt(bytes.NewReader(img), int64(len(img))); err == nil {
			doc.Image = describeUpdate(inner.Header, inner.Size(), crcVerdict(inner))
		}
	}
	return doc
}

func describeKernel(path string) (*kernelJSON, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errOpenInput, err)
	}
	defer func() { _ = f.Close() }()
	res, err := krnl.Unpack(io.Discard, f)
	if err != nil {
		return nil, err
	}
	doc := &kernelJSON{Format: krnl.Magic, Length: res.Length, CRC: "valid"}
	if !res.Valid() {
		doc.CRC = "mismatch"
	}
	return doc, nil
}

func printDoc(w io.Writer, doc any) {
	switch d := doc.(type) {
	case *updateJSON:
		printUpdate(w, d, "")
	case *romJSON:
		fmt.Fprintf(w, "ROM image %s, chip %s, built %s\n", d.Version, d.Chip, d.Built)
		fmt.Fprintf(w, "  loader  0x%08x  %s\n", d.LoaderOffset, humanize.IBytes(uint64(d.LoaderLength)))
		fmt.Fprintf(w, "  image   0x%08x  %s\n", d.ImageOffset, humanize.IBytes(uint64(d.ImageLength)))
		fmt.Fprintf(w, "  backup end 0x%x, md5 %s\n", d.BackupEndPos, d.MD5)
		if d.Image != nil {
			printUpdate(w, d.Image, "  ")
		}
	case *kernelJSON:
		fmt.Fprintf(w, "kernel blob, %s, crc %s\n", humanize.IBytes(uint64(d.Length)), d.CRC)
	}
}

func printUpdate(w io.Writer, d *updateJSON, indent string) {
	fmt.Fprintf(w, "%supdate image %s, model %q, manufacturer %q, id %q\n", indent, d.Version, d.Model, d.Manufacturer, d.ID)
	fmt.Fprintf(w, "%s  length 0x%08x (%s), crc %s\n", indent, d.Length, humanize.IBytes(uint64(d.Length)), d.CRC)
	fmt.Fprintf(w, "%s  %-16s %-28s %-10s %-10s %-10s %s\n", indent, "NAME", "PATH", "FLASH@", "FLASHSIZE", "OFFSET", "SIZE")
	for _, r := range d.Records {
		size := humanize.IBytes(uint64(r.Size))
		if r.Kind != "file" {
			size = "-"
		}
		fmt.Fprintf(w, "%s  %-16s %-28s 0x%08x 0x%08x 0x%08x %s\n", indent, r.Name, r.Path, r.FlashOffset, r.FlashSize, r.Offset, size)
	}
}
