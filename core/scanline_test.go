package core

import (
	"testing"

	"polyscan/protocol"
)

func line(pattern string) ([]uint32, int) {
	pixels := make([]bool, len(pattern))
	for i, c := range pattern {
		pixels[i] = c == '1'
	}
	return protocol.PackPixels(pixels), len(pixels)
}

func TestScanlineBuffer(t *testing.T) {
	b := NewScanlineBuffer(2, 40)
	if b.MaxPixels() != 64 {
		t.Errorf("MaxPixels() = %d, want 64", b.MaxPixels())
	}

	first, n1 := line("1010")
	second, n2 := line("0110011")
	if !b.Load(first, n1) || !b.Load(second, n2) {
		t.Fatal("Load rejected with space available")
	}
	if b.Load(first, n1) {
		t.Error("Load into full buffer should fail")
	}

	dst := make([]uint32, 2)
	if n, ok := b.NextLine(dst); !ok || n != n1 || dst[0] != first[0] {
		t.Errorf("First line: %d %v %08X", n, ok, dst[0])
	}
	if n, ok := b.NextLine(dst); !ok || n != n2 || dst[0] != second[0] {
		t.Errorf("Second line: %d %v %08X", n, ok, dst[0])
	}
	if _, ok := b.NextLine(dst); ok {
		t.Error("Empty buffer returned a line")
	}

	big := make([]uint32, 4)
	if b.Load(big, 100) {
		t.Error("Line longer than MaxPixels should be rejected")
	}
}

// run advances the gate once per pulse flag and returns the laser pattern
func run(g *ScanlineGate, pulses string) string {
	out := make([]byte, len(pulses))
	for i := range pulses {
		laser, _ := g.Advance(pulses[i] == 'P', true)
		out[i] = '0'
		if laser {
			out[i] = '1'
		}
	}
	return string(out)
}

func TestScanlineGateStreaming(t *testing.T) {
	b := NewScanlineBuffer(4, 32)
	g := NewScanlineGate(b, 32, 1)

	bitmap, n := line("1101")
	b.Load(bitmap, n)

	// Pixel 0 goes out on the pulse tick; the line ends after 4 pixels
	if got := run(g, "..P......"); got != "001101000" {
		t.Errorf("Laser pattern %s", got)
	}
	if g.Lines() != 1 || g.Underruns() != 0 {
		t.Errorf("Lines=%d Underruns=%d", g.Lines(), g.Underruns())
	}
}

func TestScanlineGateCutByNextPulse(t *testing.T) {
	b := NewScanlineBuffer(4, 32)
	g := NewScanlineGate(b, 32, 1)

	long, n := line("11111111")
	b.Load(long, n)
	short, n := line("01")
	b.Load(short, n)

	if got := run(g, "P...P...."); got != "111101000" {
		t.Errorf("Laser pattern %s", got)
	}
}

func TestScanlineGateTicksPerPixel(t *testing.T) {
	b := NewScanlineBuffer(1, 32)
	g := NewScanlineGate(b, 32, 3)

	bitmap, n := line("101")
	b.Load(bitmap, n)

	if got := run(g, "P.........."); got != "11100011100" {
		t.Errorf("Laser pattern %s", got)
	}
}

func TestScanlineGateUnderrun(t *testing.T) {
	b := NewScanlineBuffer(1, 32)
	g := NewScanlineGate(b, 32, 1)

	laser, underrun := g.Advance(true, true)
	if laser || !underrun {
		t.Errorf("Pulse without line: laser=%v underrun=%v", laser, underrun)
	}

	// Pulses are ignored while not exposing
	bitmap, n := line("1")
	b.Load(bitmap, n)
	if laser, underrun := g.Advance(true, false); laser || underrun {
		t.Errorf("Unexposed pulse: laser=%v underrun=%v", laser, underrun)
	}
	if b.Len() != 1 {
		t.Error("Unexposed pulse consumed a line")
	}
}

func TestScanlineGateExposeGap(t *testing.T) {
	b := NewScanlineBuffer(2, 32)
	g := NewScanlineGate(b, 32, 1)

	bitmap, n := line("111111")
	b.Load(bitmap, n)

	if laser, _ := g.Advance(true, true); !laser {
		t.Fatal("Line did not start on the pulse")
	}
	if laser, _ := g.Advance(false, true); !laser {
		t.Fatal("Second pixel dark")
	}

	for i := 0; i < 100; i++ {
		if laser, _ := g.Advance(false, false); laser {
			t.Fatal("Laser on while not exposing")
		}
	}
	if g.Streaming() {
		t.Error("Line still streaming after EXPOSE dropped")
	}

	// The old line does not resume without a new pulse
	if got := run(g, "......"); got != "000000" {
		t.Errorf("Laser pattern %s after EXPOSE returned", got)
	}
}
