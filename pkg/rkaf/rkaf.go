// Package rkaf implements the RKAF update image, the container Rockchip
// upgrade tools flash onto a device.
//
// An update image is a fixed 2 KiB header followed by the payload of every
// partition, each padded to a 2 KiB block, and a trailing RKCRC over all of
// the preceding bytes. The header lists at most 16 partition records.
package rkaf

// Format constants never change.
const (
	// Magic opens every update image.
	Magic = "RKAF"

	// HeaderSize is the encoded size of Header.
	HeaderSize = 0x800

	// MaxRecords is the capacity of the header's record table.
	MaxRecords = 16

	// BlockSize is the padding unit of package payloads.
	BlockSize = 2048

	// SelfAlign is the rounding applied to the size of a SELF record.
	SelfAlign = 512

	// CRCSize is the size of the trailing checksum.
	CRCSize = 4
)

// The parameter package is stored as a single block: "PARM", a u32 length,
// up to ParamPayloadMax bytes of the parameter file, and their RKCRC.
const (
	ParamMagic      = "PARM"
	ParamName       = "parameter"
	paramHeaderSize = 8
	paramOverhead   = paramHeaderSize + CRCSize

	// ParamPayloadMax is how much of a parameter file fits in its block.
	ParamPayloadMax = BlockSize - paramOverhead
)
