package rkaf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/rkafp/pkg/checksum"
)

// buildImage encodes hdr, places body after it and appends the trailer.
// hdr.Length is taken from the body unless already set.
func buildImage(t *testing.T, hdr Header, body []byte, crc func(data []byte) []byte) string {
	t.Helper()
	copy(hdr.Magic[:], Magic)
	data := make([]byte, HeaderSize, HeaderSize+len(body)+CRCSize)
	data = append(data, body...)
	if hdr.Length == 0 {
		hdr.Length = uint32(len(data))
	}
	if err := encodeHeader(data[:HeaderSize], &hdr); err != nil {
		t.Fatalf("encodeHeader: %v", err)
	}
	if crc != nil {
		data = append(data, crc(data)...)
	}
	p := filepath.Join(t.TempDir(), "update.img")
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func goodCRC(length uint32) func([]byte) []byte {
	return func(data []byte) []byte {
		return binary.LittleEndian.AppendUint32(nil, checksum.Checksum(data[:length]))
	}
}

func TestUnpackBoundaryRecordSkipped(t *testing.T) {
	t.Parallel()

	body := pattern(0x2500-HeaderSize, 3)
	hdr := Header{
		Length: 0x2500,
		Records: []Record{
			{Name: "misc", Path: "misc.img", Offset: 0x1000, Size: 0x2000},
			{Name: "boot", Path: "boot.img", Offset: 0x800, Size: 0x100},
		},
	}
	img := buildImage(t, hdr, body, goodCRC(0x2500))

	out := t.TempDir()
	var progress bytes.Buffer
	rep, err := Unpack(UnpackOptions{InputPath: img, OutputDir: out, Progress: &progress})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if rep.CRC != CRCValid {
		t.Fatalf("crc status = %v", rep.CRC)
	}
	if len(rep.Problems) != 1 || rep.Problems[0].Name != "misc" || !errors.Is(rep.Problems[0].Err, ErrOutOfBounds) {
		t.Fatalf("problems = %+v", rep.Problems)
	}
	if _, err := os.Stat(filepath.Join(out, "misc.img")); !os.IsNotExist(err) {
		t.Fatalf("misc.img written: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(out, "boot.img"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body[:0x100]) {
		t.Fatalf("boot.img content mismatch")
	}
}

func TestUnpackCRC(t *testing.T) {
	t.Parallel()

	body := pattern(BlockSize, 5)
	hdr := Header{Records: []Record{{Name: "boot", Path: "boot.img", Offset: HeaderSize, Size: BlockSize}}}
	length := uint32(HeaderSize + BlockSize)
	badCRC := func(data []byte) []byte {
		return binary.LittleEndian.AppendUint32(nil, checksum.Checksum(data[:length])^1)
	}

	t.Run("mismatch is fatal", func(t *testing.T) {
		t.Parallel()
		img := buildImage(t, hdr, body, badCRC)
		out := t.TempDir()
		if _, err := Unpack(UnpackOptions{InputPath: img, OutputDir: out}); !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("err = %v, want ErrChecksumMismatch", err)
		}
		if entries, _ := os.ReadDir(out); len(entries) != 0 {
			t.Fatalf("files written despite mismatch: %v", entries)
		}
	})

	t.Run("trailing data tolerated", func(t *testing.T) {
		t.Parallel()
		img := buildImage(t, hdr, body, func(data []byte) []byte {
			return append(badCRC(data), "junk"...)
		})
		rep, err := Unpack(UnpackOptions{InputPath: img, OutputDir: t.TempDir()})
		if err != nil || rep.CRC != CRCMismatchTrailing || len(rep.Extracted) != 1 {
			t.Fatalf("rep = %+v, err = %v", rep, err)
		}
	})

	t.Run("missing trailer skips check", func(t *testing.T) {
		t.Parallel()
		img := buildImage(t, hdr, body, nil)
		rep, err := Unpack(UnpackOptions{InputPath: img, OutputDir: t.TempDir()})
		if err != nil || rep.CRC != CRCSkipped {
			t.Fatalf("rep = %+v, err = %v", rep, err)
		}
	})
}

func TestUnpackTruncatedImage(t *testing.T) {
	t.Parallel()

	body := pattern(0x800, 7)
	hdr := Header{
		Length: 0x3000,
		Records: []Record{
			{Name: "boot", Path: "boot.img", Offset: HeaderSize, Size: 0x1000},
			{Name: "recovery", Path: "recovery.img", Offset: 0x2000, Size: 0x800},
		},
	}
	img := buildImage(t, hdr, body, nil)
	out := t.TempDir()
	rep, err := Unpack(UnpackOptions{InputPath: img, OutputDir: out})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if len(rep.Problems) != 2 {
		t.Fatalf("problems = %+v", rep.Problems)
	}
	for _, p := range rep.Problems {
		if !errors.Is(p.Err, ErrTruncated) {
			t.Fatalf("problem %s: %v, want ErrTruncated", p.Name, p.Err)
		}
	}
	got, err := os.ReadFile(filepath.Join(out, "boot.img"))
	if err != nil || !bytes.Equal(got, body) {
		t.Fatalf("partial boot.img = %d bytes, err %v", len(got), err)
	}
	if got, err := os.ReadFile(filepath.Join(out, "recovery.img")); err != nil || len(got) != 0 {
		t.Fatalf("recovery.img = %d bytes, err %v", len(got), err)
	}
}

func TestUnpackPaths(t *testing.T) {
	t.Parallel()

	body := pattern(3*BlockSize, 11)
	hdr := Header{
		Records: []Record{
			{Name: "evil", Path: "../evil.img", Offset: HeaderSize, Size: 16},
			{Name: "abs", Path: "/tmp/abs.img", Offset: HeaderSize, Size: 16},
			{Name: "nested", Path: "Image/sub/nested.img", Offset: HeaderSize + BlockSize, Size: 100},
			{Name: "parameter", Path: "RESERVED"},
		},
	}
	img := buildImage(t, hdr, body, goodCRC(uint32(HeaderSize+len(body))))

	parent := t.TempDir()
	out := filepath.Join(parent, "out")
	rep, err := Unpack(UnpackOptions{InputPath: img, OutputDir: out})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if len(rep.Problems) != 2 {
		t.Fatalf("problems = %+v", rep.Problems)
	}
	for _, p := range rep.Problems {
		if !errors.Is(p.Err, ErrUnsafePath) {
			t.Fatalf("problem %s: %v", p.Name, p.Err)
		}
	}
	if _, err := os.Stat(filepath.Join(parent, "evil.img")); !os.IsNotExist(err) {
		t.Fatalf("escaped path written: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(out, "Image", "sub", "nested.img"))
	if err != nil || !bytes.Equal(got, body[BlockSize:BlockSize+100]) {
		t.Fatalf("nested.img = %d bytes, err %v", len(got), err)
	}
	if len(rep.Sentinels) != 1 {
		t.Fatalf("sentinels = %v", rep.Sentinels)
	}
}

func TestUnpackBadInputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.img")
	data := make([]byte, HeaderSize+CRCSize)
	copy(data, "RKFW")
	if err := os.WriteFile(bad, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Unpack(UnpackOptions{InputPath: bad, OutputDir: dir}); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("bad magic: err = %v", err)
	}

	short := filepath.Join(dir, "short.img")
	if err := os.WriteFile(short, []byte("RKAF"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Unpack(UnpackOptions{InputPath: short, OutputDir: dir}); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("short header: err = %v", err)
	}

	if _, err := Unpack(UnpackOptions{InputPath: filepath.Join(dir, "missing.img"), OutputDir: dir}); !os.IsNotExist(err) {
		t.Fatalf("missing input: err = %v", err)
	}
}

func TestPayloadParameterTooShort(t *testing.T) {
	t.Parallel()

	data := make([]byte, HeaderSize+16)
	f := &File{Data: data, Header: &Header{Length: uint32(len(data))}}
	if _, err := f.Payload(Record{Name: "parameter", Offset: HeaderSize, Size: 8}); !errors.Is(err, ErrShortRecord) {
		t.Fatalf("err = %v, want ErrShortRecord", err)
	}
}
