// Package cmdline derives an mtdparts kernel command line fragment from a
// package list: every package becomes a partition sized after its source
// file, laid out back to back.
package cmdline

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule adjusts the partition generated for one package name.
type Rule struct {
	Name string `yaml:"name"`
	// MinSectors is the smallest partition handed out.
	MinSectors uint32 `yaml:"min_sectors,omitempty"`
	// PadSectors is added to the size of the source file.
	PadSectors uint32 `yaml:"pad_sectors,omitempty"`
	// Exclude drops the package from the layout.
	Exclude bool `yaml:"exclude,omitempty"`
	// Optional tolerates a missing source file, sizing it as empty.
	Optional bool `yaml:"optional,omitempty"`
}

// Policy is the sizing table used by Layout.
type Policy struct {
	// Device is the mtd device name written before the partition list.
	Device string `yaml:"device"`
	// BaseSector is where the first partition starts.
	BaseSector uint32 `yaml:"base_sector"`
	Rules      []Rule `yaml:"rules"`
}

var ErrInvalidPolicy = errors.New("invalid sector policy")

// DefaultPolicy returns the table Rockchip nand images have traditionally
// been generated with.
func DefaultPolicy() *Policy {
	return &Policy{
		Device:     "rk29xxnand",
		BaseSector: 0x2000,
		Rules: []Rule{
			{Name: "parameter", Exclude: true},
			{Name: "package-file", Exclude: true},
			{Name: "bootloader", MinSectors: 0x2000},
			{Name: "boot", MinSectors: 0x8000, PadSectors: 0x2000},
			{Name: "swap", MinSectors: 0xC00000, Optional: true},
			{Name: "recover-script", MinSectors: 0x800},
			{Name: "linuxroot", PadSectors: 0x100000},
		},
	}
}

// LoadPolicy reads a YAML policy. Fields left out keep their defaults; a
// rules list replaces the default one entirely.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pol := DefaultPolicy()
	if err := yaml.Unmarshal(data, pol); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPolicy, path, err)
	}
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pol, nil
}

// UnmarshalYAML decodes on top of DefaultPolicy.
func (p *Policy) UnmarshalYAML(n *yaml.Node) error {
	type plain Policy
	v := plain(*DefaultPolicy())
	if err := n.Decode(&v); err != nil {
		return err
	}
	*p = Policy(v)
	return nil
}

// Validate checks that the policy can render a command line.
func (p *Policy) Validate() error {
	if p.Device == "" {
		return fmt.Errorf("%w: empty device", ErrInvalidPolicy)
	}
	seen := make(map[string]struct{}, len(p.Rules))
	for _, r := range p.Rules {
		if r.Name == "" {
			return fmt.Errorf("%w: rule without name", ErrInvalidPolicy)
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("%w: duplicate rule %q", ErrInvalidPolicy, r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return nil
}

// Rule returns the rule for name, or the zero rule.
func (p *Policy) Rule(name string) Rule {
	for _, r := range p.Rules {
		if r.Name == name {
			return r
		}
	}
	return Rule{Name: name}
}

// Sectors applies r to a source of n bytes.
func (r Rule) Sectors(n int64) (uint32, error) {
	s := uint64(n+sectorSize-1) / sectorSize
	s += uint64(r.PadSectors)
	if s < uint64(r.MinSectors) {
		s = uint64(r.MinSectors)
	}
	if s > 0xFFFFFFFF {
		return 0, fmt.Errorf("%s: %w", r.Name, ErrTooLarge)
	}
	return uint32(s), nil
}
