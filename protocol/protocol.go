// Package protocol implements the polyscan wire protocol: transfer commands,
// the status byte and the instruction word layout shared by host and core.
package protocol

// Version represents the polyscan firmware version
const Version = "0.1.0"

// Transfer command bytes. Every transfer starts with one of these; WRITE is
// followed by one payload word.
const (
	CmdEmpty  = 0
	CmdWrite  = 1
	CmdStatus = 2
	CmdStart  = 3
	CmdStop   = 4
)

// Word geometry
const (
	WordBits  = 32
	WordBytes = WordBits / 8

	// Bytes in front of the coefficient fields: opcode, aux, padding
	HeaderBytes = WordBytes

	// Coefficients per axis (c1, c2, c3)
	CoeffsPerAxis = 3
	CoeffBytes    = 4

	// MaxAxes bounds the per-instruction axis count
	MaxAxes = 8
)

// Fixed-point arithmetic
const (
	// BitShift is the number of fractional bits in positions and coefficients
	BitShift = 30

	// MaxTicks is the longest segment the header can declare
	MaxTicks = 0xFFFF
)

// CommandName returns a printable name for a transfer command byte
func CommandName(cmd byte) string {
	switch cmd {
	case CmdEmpty:
		return "EMPTY"
	case CmdWrite:
		return "WRITE"
	case CmdStatus:
		return "STATUS"
	case CmdStart:
		return "START"
	case CmdStop:
		return "STOP"
	default:
		return "INVALID"
	}
}

// ValidCommand reports whether cmd is a recognized transfer command
func ValidCommand(cmd byte) bool {
	return cmd <= CmdStop
}
