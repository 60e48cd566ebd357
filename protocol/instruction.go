package protocol

import (
	"encoding/binary"
	"errors"
)

var (
	ErrShortInstruction = errors.New("instruction truncated")
	ErrUnknownOpcode    = errors.New("unknown instruction opcode")
	ErrAxisCount        = errors.New("coefficient count does not match axes")
	ErrTicksRange       = errors.New("segment ticks out of range")
	ErrPixelRange       = errors.New("scanline pixel count out of range")
)

// Opcode is the first byte of an instruction header word
type Opcode uint8

const (
	OpEmpty    Opcode = 0 // Sentinel, ends a job
	OpMove     Opcode = 1 // Polynomial segment for every axis
	OpScanline Opcode = 2 // Bitmap for one facet pass
)

func (op Opcode) String() string {
	switch op {
	case OpEmpty:
		return "EMPTY"
	case OpMove:
		return "MOVE"
	case OpScanline:
		return "SCANLINE"
	default:
		return "UNKNOWN"
	}
}

// Auxiliary output bits carried in the header
const (
	AuxLaser   = 1 << 0 // Static laser enable
	AuxPolygon = 1 << 1 // Polygon motor enable
	AuxExpose  = 1 << 2 // Stream scanlines on facet pulses
	AuxGPIO0   = 1 << 3 // First general-purpose output
)

// Coeffs holds the fixed-point (c1, c2, c3) of one axis
type Coeffs [CoeffsPerAxis]int32

// Instruction is one decoded queue entry. Move uses Ticks and Coeffs,
// Scanline uses Pixels and Bitmap.
type Instruction struct {
	Op     Opcode
	Aux    uint8
	Ticks  uint16
	Coeffs []Coeffs
	Pixels uint16
	Bitmap []uint32
}

// InstructionBytes returns the byte length of a move instruction for the
// given number of axes, padded to whole words.
func InstructionBytes(axes int) int {
	const opcode, aux = 1, 1
	padding := (WordBytes - (opcode+aux)%WordBytes) % WordBytes
	n := opcode + aux + padding + axes*CoeffsPerAxis*CoeffBytes
	return (n + WordBytes - 1) / WordBytes * WordBytes
}

// InstructionWords returns the word length of a move instruction
func InstructionWords(axes int) int {
	return InstructionBytes(axes) / WordBytes
}

// ScanlineWords returns the word length of a scanline instruction
func ScanlineWords(pixels int) int {
	return 1 + BitmapWords(pixels)
}

// BitmapWords returns the number of words holding pixels bits
func BitmapWords(pixels int) int {
	return (pixels + WordBits - 1) / WordBits
}

// Header packs an instruction header word. The argument occupies the
// padding bytes: segment ticks for moves, pixel count for scanlines.
func Header(op Opcode, aux uint8, arg uint16) uint32 {
	return uint32(op)<<24 | uint32(aux)<<16 | uint32(arg)
}

// SplitHeader unpacks a header word
func SplitHeader(w uint32) (op Opcode, aux uint8, arg uint16) {
	return Opcode(w >> 24), uint8(w >> 16), uint16(w)
}

// Length returns the number of words the instruction starting with header
// occupies, or false if the opcode is unknown.
func Length(header uint32, axes int) (int, bool) {
	op, _, arg := SplitHeader(header)
	switch op {
	case OpEmpty:
		return 1, true
	case OpMove:
		return InstructionWords(axes), true
	case OpScanline:
		return ScanlineWords(int(arg)), true
	default:
		return 0, false
	}
}

// EncodeMove encodes a move segment. coeffs holds one entry per axis.
func EncodeMove(aux uint8, ticks int, coeffs []Coeffs) ([]uint32, error) {
	if ticks < 0 || ticks > MaxTicks {
		return nil, ErrTicksRange
	}
	if len(coeffs) == 0 || len(coeffs) > MaxAxes {
		return nil, ErrAxisCount
	}
	words := make([]uint32, 0, InstructionWords(len(coeffs)))
	words = append(words, Header(OpMove, aux, uint16(ticks)))
	for _, c := range coeffs {
		for _, v := range c {
			words = append(words, uint32(v))
		}
	}
	return words, nil
}

// EncodeScanline encodes a scanline of the given pixel count. bitmap is
// MSB-first, as produced by PackPixels.
func EncodeScanline(aux uint8, pixels int, bitmap []uint32) ([]uint32, error) {
	if pixels < 0 || pixels > MaxTicks {
		return nil, ErrPixelRange
	}
	n := BitmapWords(pixels)
	if len(bitmap) < n {
		return nil, ErrShortInstruction
	}
	words := make([]uint32, 0, n+1)
	words = append(words, Header(OpScanline, aux, uint16(pixels)))
	return append(words, bitmap[:n]...), nil
}

// EncodeEmpty encodes the end-of-job sentinel
func EncodeEmpty() []uint32 {
	return []uint32{Header(OpEmpty, 0, 0)}
}

// Encode encodes any instruction for a core with the given axis count
func Encode(in Instruction, axes int) ([]uint32, error) {
	switch in.Op {
	case OpEmpty:
		return EncodeEmpty(), nil
	case OpMove:
		if len(in.Coeffs) != axes {
			return nil, ErrAxisCount
		}
		return EncodeMove(in.Aux, int(in.Ticks), in.Coeffs)
	case OpScanline:
		return EncodeScanline(in.Aux, int(in.Pixels), in.Bitmap)
	default:
		return nil, ErrUnknownOpcode
	}
}

// Decode decodes the instruction at the start of words and returns the
// number of words consumed.
func Decode(words []uint32, axes int) (Instruction, int, error) {
	if len(words) == 0 {
		return Instruction{}, 0, ErrShortInstruction
	}
	n, ok := Length(words[0], axes)
	if !ok {
		return Instruction{}, 0, ErrUnknownOpcode
	}
	if len(words) < n {
		return Instruction{}, 0, ErrShortInstruction
	}
	op, aux, arg := SplitHeader(words[0])
	in := Instruction{Op: op, Aux: aux}
	switch op {
	case OpMove:
		in.Ticks = arg
		in.Coeffs = make([]Coeffs, axes)
		for i := range in.Coeffs {
			for j := range in.Coeffs[i] {
				in.Coeffs[i][j] = int32(words[1+i*CoeffsPerAxis+j])
			}
		}
	case OpScanline:
		in.Pixels = arg
		in.Bitmap = append([]uint32(nil), words[1:n]...)
	}
	return in, n, nil
}

// PackPixels packs laser on/off pixels MSB-first into words
func PackPixels(pixels []bool) []uint32 {
	words := make([]uint32, BitmapWords(len(pixels)))
	for i, on := range pixels {
		if on {
			words[i/WordBits] |= 1 << (WordBits - 1 - i%WordBits)
		}
	}
	return words
}

// Pixel returns pixel i of an MSB-first bitmap
func Pixel(bitmap []uint32, i int) bool {
	return bitmap[i/WordBits]>>(WordBits-1-i%WordBits)&1 != 0
}

// PutWord writes w to b in wire byte order
func PutWord(b []byte, w uint32) {
	binary.BigEndian.PutUint32(b, w)
}

// Word reads a word from b in wire byte order
func Word(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}
