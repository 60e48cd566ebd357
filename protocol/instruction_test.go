package protocol

import (
	"errors"
	"testing"
)

func TestInstructionBytes(t *testing.T) {
	testCases := []struct {
		axes  int
		bytes int
	}{
		{1, 16},
		{2, 28},
		{3, 40},
		{4, 52},
	}

	for _, tc := range testCases {
		if got := InstructionBytes(tc.axes); got != tc.bytes {
			t.Errorf("InstructionBytes(%d) = %d, want %d", tc.axes, got, tc.bytes)
		}
		if got := InstructionWords(tc.axes); got != tc.bytes/WordBytes {
			t.Errorf("InstructionWords(%d) = %d, want %d", tc.axes, got, tc.bytes/WordBytes)
		}
	}
}

func TestMoveRoundTrip(t *testing.T) {
	coeffs := []Coeffs{
		{1 << 29, -12345, 7},
		{-(1 << 31), 1<<31 - 1, -1},
		{0, 0, 0},
	}
	aux := uint8(AuxLaser | AuxPolygon | AuxGPIO0<<2)

	words, err := EncodeMove(aux, 10000, coeffs)
	if err != nil {
		t.Fatalf("EncodeMove failed: %v", err)
	}
	if len(words) != InstructionWords(len(coeffs)) {
		t.Fatalf("Encoded %d words, want %d", len(words), InstructionWords(len(coeffs)))
	}

	// Through wire bytes and back
	wire := make([]byte, len(words)*WordBytes)
	for i, w := range words {
		PutWord(wire[i*WordBytes:], w)
	}
	if wire[0] != byte(OpMove) || wire[1] != aux {
		t.Errorf("Header bytes on the wire: %v", wire[:WordBytes])
	}
	received := make([]uint32, len(words))
	for i := range received {
		received[i] = Word(wire[i*WordBytes:])
	}

	in, n, err := Decode(received, len(coeffs))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if n != len(words) {
		t.Errorf("Decode consumed %d words, want %d", n, len(words))
	}
	if in.Op != OpMove || in.Aux != aux || in.Ticks != 10000 {
		t.Errorf("Decoded header mismatch: %+v", in)
	}
	for i := range coeffs {
		if in.Coeffs[i] != coeffs[i] {
			t.Errorf("Axis %d: got %v, want %v", i, in.Coeffs[i], coeffs[i])
		}
	}
}

func TestScanlineRoundTrip(t *testing.T) {
	pixels := make([]bool, 70)
	for i := range pixels {
		pixels[i] = i%3 == 0
	}
	bitmap := PackPixels(pixels)

	words, err := EncodeScanline(AuxExpose, len(pixels), bitmap)
	if err != nil {
		t.Fatalf("EncodeScanline failed: %v", err)
	}
	if len(words) != ScanlineWords(len(pixels)) {
		t.Fatalf("Encoded %d words, want %d", len(words), ScanlineWords(len(pixels)))
	}

	in, _, err := Decode(words, 2)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if in.Op != OpScanline || int(in.Pixels) != len(pixels) {
		t.Fatalf("Decoded header mismatch: %+v", in)
	}
	for i, want := range pixels {
		if Pixel(in.Bitmap, i) != want {
			t.Errorf("Pixel %d: got %v, want %v", i, !want, want)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, _, err := Decode(nil, 1); !errors.Is(err, ErrShortInstruction) {
		t.Errorf("Empty input: got %v", err)
	}

	words, _ := EncodeMove(0, 5, []Coeffs{{1, 2, 3}})
	if _, _, err := Decode(words[:2], 1); !errors.Is(err, ErrShortInstruction) {
		t.Errorf("Truncated move: got %v", err)
	}

	if _, _, err := Decode([]uint32{Header(Opcode(9), 0, 0)}, 1); !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("Unknown opcode: got %v", err)
	}

	if _, err := EncodeMove(0, MaxTicks+1, []Coeffs{{}}); !errors.Is(err, ErrTicksRange) {
		t.Errorf("Ticks range: got %v", err)
	}

	if _, err := Encode(Instruction{Op: OpMove, Coeffs: []Coeffs{{}}}, 2); !errors.Is(err, ErrAxisCount) {
		t.Errorf("Axis count: got %v", err)
	}
}

func TestEmptySentinel(t *testing.T) {
	words := EncodeEmpty()
	if len(words) != 1 || words[0] != 0 {
		t.Fatalf("Sentinel should be a single zero word, got %v", words)
	}
	in, n, err := Decode(words, 3)
	if err != nil || n != 1 || in.Op != OpEmpty {
		t.Errorf("Decode sentinel: %+v %d %v", in, n, err)
	}
}
