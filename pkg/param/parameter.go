// Package param reads the text inputs of an update image: the "parameter"
// file with firmware metadata and the mtdparts partition layout, and the
// "package-file" list naming the file behind each partition.
package param

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Field widths of the metadata strings, excluding the terminating NUL the
// container keeps in each buffer.
const (
	MaxModelLen        = 33
	MaxIDLen           = 29
	MaxManufacturerLen = 55
)

// Parameters is the firmware metadata read from a parameter file.
type Parameters struct {
	// Version is major<<24 | minor<<16 | patch.
	Version      uint32
	MachineModel string
	MachineID    string
	Manufacturer string
	// Partitions holds every mtdparts entry in file order.
	Partitions []Partition
}

// PackVersion builds the packed version word.
func PackVersion(major, minor, patch uint32) uint32 {
	return major<<24 + minor<<16 + patch
}

// ParseVersion reads "major.minor.patch" into a packed version word.
func ParseVersion(s string) (uint32, error) {
	var major, minor, patch uint32
	if _, err := fmt.Sscanf(s, "%d.%d.%d", &major, &minor, &patch); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadVersion, s)
	}
	return PackVersion(major, minor, patch), nil
}

// FormatVersion renders a packed version word as major.minor.patch.
func FormatVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>24&0xff, v>>16&0xff, v&0xffff)
}

// LoadParameter parses the parameter file at path.
func LoadParameter(path string) (*Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	p, err := ParseParameter(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseParameter reads KEY:value lines. Unknown keys are ignored. String
// values are kept verbatim; Validate checks them against their field widths.
func ParseParameter(r io.Reader) (*Parameters, error) {
	p := &Parameters{}
	err := ScanLines(r, func(lineno int, line string) error {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil
		}
		if err := p.set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("line %d: %w", lineno, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parameters) set(key, value string) error {
	switch key {
	case "FIRMWARE_VER":
		v, err := ParseVersion(value)
		if err != nil {
			return err
		}
		p.Version = v
	case "MACHINE_MODEL":
		p.MachineModel = value
	case "MACHINE_ID":
		p.MachineID = value
	case "MANUFACTURER":
		p.Manufacturer = value
	case "CMDLINE":
		for _, arg := range strings.Split(value, " ") {
			k, v, ok := strings.Cut(arg, "=")
			if ok && k == "mtdparts" {
				p.Partitions = append(p.Partitions, ParseMtdParts(v)...)
			}
		}
	}
	return nil
}

// Validate reports the first metadata string that does not fit its field.
func (p *Parameters) Validate() error {
	if err := checkWidth("MACHINE_MODEL", p.MachineModel, MaxModelLen); err != nil {
		return err
	}
	if err := checkWidth("MACHINE_ID", p.MachineID, MaxIDLen); err != nil {
		return err
	}
	return checkWidth("MANUFACTURER", p.Manufacturer, MaxManufacturerLen)
}

// Lookup finds a partition by name. Later entries shadow earlier ones. A
// lookup for "parameter" that finds nothing returns the default parameter
// block at sector 0.
func (p *Parameters) Lookup(name string) (Partition, bool) {
	if p != nil {
		for i := len(p.Partitions) - 1; i >= 0; i-- {
			if p.Partitions[i].Name == name {
				return p.Partitions[i], true
			}
		}
	}
	if name == defaultParameter.Name {
		return defaultParameter, true
	}
	return Partition{}, false
}
