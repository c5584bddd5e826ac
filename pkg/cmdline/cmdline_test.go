package cmdline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/rkafp/pkg/param"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRuleSectors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rule  Rule
		bytes int64
		want  uint32
	}{
		{Rule{}, 0, 0},
		{Rule{}, 1, 1},
		{Rule{}, 512, 1},
		{Rule{}, 513, 2},
		{Rule{PadSectors: 0x2000}, 1024, 0x2002},
		// Padding is applied before the minimum.
		{Rule{MinSectors: 0x8000, PadSectors: 0x2000}, 1024, 0x8000},
		{Rule{MinSectors: 0x8000, PadSectors: 0x2000}, 0x7000 * 512, 0x9000},
	}
	for _, tc := range tests {
		got, err := tc.rule.Sectors(tc.bytes)
		if err != nil {
			t.Fatalf("Sectors(%d) with %+v: %v", tc.bytes, tc.rule, err)
		}
		if got != tc.want {
			t.Errorf("Sectors(%d) with %+v = %#x, want %#x", tc.bytes, tc.rule, got, tc.want)
		}
	}

	if _, err := (Rule{PadSectors: 0xFFFFFFFF}).Sectors(512); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("overflow: err = %v", err)
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "package-file"), []byte(
		"package-file package-file\n"+
			"parameter parameter\n"+
			"bootloader RK3188Loader.bin\n"+
			"misc Image/misc.img\n"+
			"boot Image/boot.img\n"+
			"swap Image/swap.img\n"+
			"backup RESERVED\n"+
			"linuxroot Image/root.img\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "RK3188Loader.bin"), 200*1024)
	writeFile(t, filepath.Join(dir, "Image", "misc.img"), 48*1024)
	writeFile(t, filepath.Join(dir, "Image", "boot.img"), 12*1024*1024)
	writeFile(t, filepath.Join(dir, "Image", "root.img"), 4096)

	line, entries, err := Generate(dir, "package-file", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := []param.Partition{
		{Name: "bootloader", Start: 0x2000, Size: 0x2000},
		{Name: "misc", Start: 0x4000, Size: 0x60},
		{Name: "boot", Start: 0x4060, Size: 0x8000},
		{Name: "swap", Start: 0xc060, Size: 0xC00000},
		{Name: "backup", Start: 0xc0c060, Size: 0},
		{Name: "linuxroot", Start: 0xc0c060, Grow: true},
	}
	if diff := cmp.Diff(want, Partitions(entries)); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}
	if !entries[3].Missing {
		t.Fatalf("swap not flagged missing: %+v", entries[3])
	}

	wantLine := "mtdparts=rk29xxnand:" +
		"0x00002000@0x00002000(bootloader)," +
		"0x00000060@0x00004000(misc)," +
		"0x00008000@0x00004060(boot)," +
		"0x00c00000@0x0000c060(swap)," +
		"0x00000000@0x00c0c060(backup)," +
		"-@0x00c0c060(linuxroot)"
	if line != wantLine {
		t.Fatalf("Generate =\n%s\nwant\n%s", line, wantLine)
	}

	// The fragment parses back to the same starts and names.
	back := param.ParseMtdParts(line)
	if len(back) != len(want) {
		t.Fatalf("re-parsed %d partitions, want %d", len(back), len(want))
	}
	for i := range want {
		if back[i].Name != want[i].Name || back[i].Start != want[i].Start {
			t.Errorf("re-parsed[%d] = %+v, want %+v", i, back[i], want[i])
		}
	}
}

func TestGenerateMissingRequiredSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "package-file"), []byte("boot Image/boot.img\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Generate(dir, "package-file", nil); !errors.Is(err, ErrMissingSource) {
		t.Fatalf("err = %v, want ErrMissingSource", err)
	}
}

func TestGenerateEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "package-file"), []byte("parameter parameter\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Generate(dir, "package-file", nil); !errors.Is(err, ErrEmptyLayout) {
		t.Fatalf("err = %v, want ErrEmptyLayout", err)
	}
}

func TestLoadPolicy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(`
device: rk30xxnand
rules:
  - name: boot
    min_sectors: 0x4000
  - name: cache
    exclude: true
`), 0o644); err != nil {
		t.Fatal(err)
	}

	pol, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	want := &Policy{
		Device:     "rk30xxnand",
		BaseSector: 0x2000,
		Rules: []Rule{
			{Name: "boot", MinSectors: 0x4000},
			{Name: "cache", Exclude: true},
		},
	}
	if diff := cmp.Diff(want, pol); diff != "" {
		t.Fatalf("policy mismatch (-want +got):\n%s", diff)
	}
	if r := pol.Rule("swap"); r.MinSectors != 0 || r.Optional {
		t.Fatalf("rule for swap after override = %+v", r)
	}

	if err := os.WriteFile(path, []byte("device: x\nrules:\n  - name: a\n  - name: a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPolicy(path); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("duplicate rule: err = %v", err)
	}
}
