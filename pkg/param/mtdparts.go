package param

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// SectorSize is the addressing unit of mtdparts offsets and sizes.
	SectorSize = 512

	// MaxNameLen is the longest partition or package name a record can hold.
	MaxNameLen = 31

	// GrowToken is the size token of a partition that takes the rest of the device.
	GrowToken = "-"
)

// Partition is one size@offset(name) entry of an mtdparts string,
// measured in sectors.
type Partition struct {
	Name  string
	Start uint32
	Size  uint32
	// Grow is set for a "-" size; Size is then zero.
	Grow bool
}

// defaultParameter covers the parameter block at the start of the flash. It
// answers lookups for "parameter" when no explicit entry exists.
var defaultParameter = Partition{Name: "parameter", Start: 0, Size: 0x2000}

// ParseMtdParts extracts the partitions from "prefix:size@offset(name),...".
// Everything up to the first ':' is ignored. Numbers are hexadecimal with an
// optional 0x prefix. Tokens that cannot be understood are dropped and the
// rest are returned in order; duplicates are kept.
func ParseMtdParts(s string) []Partition {
	_, list, ok := strings.Cut(s, ":")
	if !ok {
		return nil
	}
	var parts []Partition
	for _, tok := range strings.Split(list, ",") {
		p, ok := parsePartition(tok)
		if !ok {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}

func parsePartition(tok string) (Partition, bool) {
	var p Partition

	sizeTok, rest, ok := strings.Cut(tok, "@")
	if !ok {
		return p, false
	}
	sizeTok = strings.TrimSpace(sizeTok)
	if sizeTok == GrowToken {
		p.Grow = true
	} else {
		n, ok := parseHexPrefix(sizeTok)
		if !ok {
			return p, false
		}
		p.Size = n
	}

	startTok, rest, ok := strings.Cut(rest, "(")
	if !ok {
		return p, false
	}
	n, ok := parseHexPrefix(startTok)
	if !ok {
		return p, false
	}
	p.Start = n

	name, _, _ := strings.Cut(rest, ")")
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	p.Name = name
	return p, true
}

// parseHexPrefix parses the hex number at the start of s and ignores whatever
// follows it.
func parseHexPrefix(s string) (uint32, bool) {
	s = strings.TrimLeft(s, " \t")
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	end := 0
	for end < len(s) && isHexDigit(s[end]) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(s[:end], 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// RenderMtdParts is the inverse of ParseMtdParts:
// "mtdparts=<device>:0x...@0x...(name),...". Partitions with Grow set are
// written with a "-" size.
func RenderMtdParts(device string, parts []Partition) string {
	var b strings.Builder
	b.WriteString("mtdparts=")
	b.WriteString(device)
	b.WriteByte(':')
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(',')
		}
		if p.Grow {
			b.WriteString(GrowToken)
		} else {
			fmt.Fprintf(&b, "0x%08x", p.Size)
		}
		fmt.Fprintf(&b, "@0x%08x(%s)", p.Start, p.Name)
	}
	return b.String()
}
