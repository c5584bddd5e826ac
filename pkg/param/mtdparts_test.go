package param

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseMtdParts(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		desc string
		in   string
		want []Partition
	}{
		{
			desc: "typical layout",
			in:   "rk29xxnand:0x00002000@0x00002000(misc),0x00004000@0x00004000(kernel),-@0x0000a000(linuxroot)",
			want: []Partition{
				{Name: "misc", Start: 0x2000, Size: 0x2000},
				{Name: "kernel", Start: 0x4000, Size: 0x4000},
				{Name: "linuxroot", Start: 0xa000, Grow: true},
			},
		},
		{
			desc: "no prefix separator",
			in:   "0x2000@0x2000(misc)",
			want: nil,
		},
		{
			desc: "numbers without 0x are still hex",
			in:   "dev:2000@8000(boot)",
			want: []Partition{{Name: "boot", Start: 0x8000, Size: 0x2000}},
		},
		{
			desc: "malformed tokens are skipped",
			in:   "dev:0x2000(noat),zz@0x10(badsize),0x10@zz(badstart),0x10@0x20nameless,0x8@0x40(ok)",
			want: []Partition{{Name: "ok", Start: 0x40, Size: 0x8}},
		},
		{
			desc: "flags after the name are ignored",
			in:   "dev:0x100@0x200(ro-part)ro",
			want: []Partition{{Name: "ro-part", Start: 0x200, Size: 0x100}},
		},
		{
			desc: "long names are truncated",
			in:   "dev:0x1@0x2(" + strings.Repeat("n", 40) + ")",
			want: []Partition{{Name: strings.Repeat("n", MaxNameLen), Start: 0x2, Size: 0x1}},
		},
		{
			desc: "duplicates are kept",
			in:   "dev:0x1@0x2(a),0x3@0x4(a)",
			want: []Partition{{Name: "a", Start: 0x2, Size: 0x1}, {Name: "a", Start: 0x4, Size: 0x3}},
		},
	} {
		t.Run(tt.desc, func(t *testing.T) {
			got := ParseMtdParts(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("ParseMtdParts(%q): diff (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestRenderParseInverse(t *testing.T) {
	t.Parallel()

	parts := []Partition{
		{Name: "misc", Start: 0x2000, Size: 0x2000},
		{Name: "boot", Start: 0x4000, Size: 0x8000},
		{Name: "swap", Start: 0xc000, Size: 0x100000},
		{Name: "linuxroot", Start: 0x10c000, Size: 0xdeadbeef, Grow: true},
	}
	rendered := RenderMtdParts("rk29xxnand", parts)
	if !strings.HasPrefix(rendered, "mtdparts=rk29xxnand:") {
		t.Fatalf("unexpected prefix: %s", rendered)
	}
	if !strings.Contains(rendered, ",-@0x0010c000(linuxroot)") {
		t.Fatalf("last entry not rendered with grow token: %s", rendered)
	}

	_, body, _ := strings.Cut(rendered, "=")
	got := ParseMtdParts(body)
	if len(got) != len(parts) {
		t.Fatalf("re-parsed %d partitions, want %d", len(got), len(parts))
	}
	for i := range parts {
		if got[i].Name != parts[i].Name || got[i].Start != parts[i].Start {
			t.Errorf("entry %d: got (%s, %#x), want (%s, %#x)", i, got[i].Name, got[i].Start, parts[i].Name, parts[i].Start)
		}
		if i < len(parts)-1 && got[i].Size != parts[i].Size {
			t.Errorf("entry %d: size %#x, want %#x", i, got[i].Size, parts[i].Size)
		}
	}
	if !got[len(got)-1].Grow {
		t.Errorf("last entry lost its grow marker")
	}
}
