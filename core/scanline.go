package core

import (
	"polyscan/protocol"
)

// ScanlineSource supplies one line of pixels per facet pulse.
// NextLine copies the next line into dst and returns its pixel count;
// ok is false when no line is ready.
type ScanlineSource interface {
	NextLine(dst []uint32) (pixels int, ok bool)
}

// ScanlineBuffer is a fixed ring of scanlines. The dispatcher fills it
// and the gate drains it, both from the tick domain.
type ScanlineBuffer struct {
	words  []uint32 // depth * lineWords
	pixels []uint16
	depth  int
	stride int
	head   int
	count  int
}

// NewScanlineBuffer allocates depth lines of up to maxPixels pixels
func NewScanlineBuffer(depth, maxPixels int) *ScanlineBuffer {
	if depth <= 0 {
		depth = 1
	}
	stride := protocol.BitmapWords(maxPixels)
	return &ScanlineBuffer{
		words:  make([]uint32, depth*stride),
		pixels: make([]uint16, depth),
		depth:  depth,
		stride: stride,
	}
}

// MaxPixels returns the longest line the buffer can hold
func (b *ScanlineBuffer) MaxPixels() int {
	return b.stride * protocol.WordBits
}

// Load copies a line in. It returns false when the ring is full or the
// line does not fit.
func (b *ScanlineBuffer) Load(bitmap []uint32, pixels int) bool {
	if b.count == b.depth || pixels > b.MaxPixels() || len(bitmap) < protocol.BitmapWords(pixels) {
		return false
	}
	slot := (b.head + b.count) % b.depth
	line := b.words[slot*b.stride : (slot+1)*b.stride]
	n := copy(line, bitmap[:protocol.BitmapWords(pixels)])
	for i := n; i < len(line); i++ {
		line[i] = 0
	}
	b.pixels[slot] = uint16(pixels)
	b.count++
	return true
}

// NextLine implements ScanlineSource
func (b *ScanlineBuffer) NextLine(dst []uint32) (int, bool) {
	if b.count == 0 {
		return 0, false
	}
	line := b.words[b.head*b.stride : (b.head+1)*b.stride]
	pixels := int(b.pixels[b.head])
	copy(dst, line)
	b.head = (b.head + 1) % b.depth
	b.count--
	if limit := len(dst) * protocol.WordBits; pixels > limit {
		pixels = limit
	}
	return pixels, true
}

// Len returns the number of lines waiting
func (b *ScanlineBuffer) Len() int {
	return b.count
}

// Full reports whether Load would be rejected for lack of space
func (b *ScanlineBuffer) Full() bool {
	return b.count == b.depth
}

// Reset drops every waiting line
func (b *ScanlineBuffer) Reset() {
	b.head, b.count = 0, 0
}

// ScanlineGate streams the current line onto the laser output, one pixel
// per TicksPerPixel ticks, starting on the tick of a facet pulse. It stops
// at the end of the line or at the next pulse, whichever comes first.
type ScanlineGate struct {
	src           ScanlineSource
	ticksPerPixel uint16

	line      []uint32
	pixels    int
	pos       int
	sub       uint16
	streaming bool

	lines     uint32
	underruns uint32
}

// NewScanlineGate creates a gate reading lines of up to maxPixels from src
func NewScanlineGate(src ScanlineSource, maxPixels int, ticksPerPixel uint16) *ScanlineGate {
	if ticksPerPixel == 0 {
		ticksPerPixel = 1
	}
	return &ScanlineGate{
		src:           src,
		ticksPerPixel: ticksPerPixel,
		line:          make([]uint32, protocol.BitmapWords(maxPixels)),
	}
}

// Advance runs one tick. When expose is false pulses are ignored, the gate
// stays dark and any line in progress ends. underrun is true on a pulse
// that found no line.
func (g *ScanlineGate) Advance(pulse, expose bool) (laser, underrun bool) {
	if !expose {
		g.streaming = false
		return false, false
	}

	if pulse {
		g.streaming = false
		pixels, ok := g.src.NextLine(g.line)
		if ok {
			g.pixels, g.pos, g.sub = pixels, 0, 0
			g.streaming = pixels > 0
			g.lines++
		} else {
			g.underruns++
			underrun = true
		}
	}

	if !g.streaming {
		return false, underrun
	}

	laser = protocol.Pixel(g.line, g.pos)
	g.sub++
	if g.sub == g.ticksPerPixel {
		g.sub = 0
		g.pos++
		if g.pos >= g.pixels {
			g.streaming = false
		}
	}
	return laser, underrun
}

// Streaming reports whether a line is being output
func (g *ScanlineGate) Streaming() bool {
	return g.streaming
}

// Lines returns the number of lines started
func (g *ScanlineGate) Lines() uint32 {
	return g.lines
}

// Underruns returns the number of pulses that found no line
func (g *ScanlineGate) Underruns() uint32 {
	return g.underruns
}

// Reset stops any line in progress
func (g *ScanlineGate) Reset() {
	g.streaming = false
	g.pos, g.sub, g.pixels = 0, 0, 0
}
