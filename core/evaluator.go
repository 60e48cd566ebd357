package core

// Fixed-point polynomial segment evaluation
// Same incremental idea as the interval/add stepping of the original stepper
// queue, extended to a third-order finite difference per tick.

import (
	"polyscan/protocol"
)

// FixedPointEvaluator advances one axis along a degree-3 segment, one tick
// at a time. Position and coefficients carry protocol.BitShift fractional
// bits. Each tick:
//
//	position += c1; c1 += c2; c2 += c3
//
// The running position persists across segments; a segment's constant term
// is whatever the previous segment left behind.
type FixedPointEvaluator struct {
	position int64
	c1       int64
	c2       int64
	c3       int64

	ticks   uint32 // declared segment duration
	elapsed uint32 // ticks evaluated in this segment
	active  bool

	step       int64 // integer part of position at the last tick
	overflowed bool
}

// Load starts a new segment. A zero-tick segment completes immediately and
// Load returns false.
func (e *FixedPointEvaluator) Load(c protocol.Coeffs, ticks uint16) bool {
	e.c1 = int64(c[0])
	e.c2 = int64(c[1])
	e.c3 = int64(c[2])
	e.ticks = uint32(ticks)
	e.elapsed = 0
	e.active = ticks > 0
	e.step = e.position >> protocol.BitShift
	return e.active
}

// Advance evaluates one tick. delta is the change of the integer position
// since the previous tick; done is true once the segment has run its
// declared duration.
func (e *FixedPointEvaluator) Advance() (delta int64, done bool) {
	if !e.active {
		return 0, true
	}

	e.position = e.add(e.position, e.c1)
	e.c1 = e.add(e.c1, e.c2)
	e.c2 = e.add(e.c2, e.c3)
	e.elapsed++

	step := e.position >> protocol.BitShift
	delta = step - e.step
	e.step = step

	if e.elapsed >= e.ticks {
		e.active = false
	}
	return delta, !e.active
}

// add is a plain addition that, in debug mode, traps signed overflow
func (e *FixedPointEvaluator) add(a, b int64) int64 {
	sum := a + b
	if debugEnabled && (a >= 0) == (b >= 0) && (sum >= 0) != (a >= 0) {
		e.overflowed = true
		DebugAsync("[EVAL] accumulator overflow")
	}
	return sum
}

// Active reports whether a segment is in progress
func (e *FixedPointEvaluator) Active() bool {
	return e.active
}

// Position returns the fixed-point position accumulator
func (e *FixedPointEvaluator) Position() int64 {
	return e.position
}

// Steps returns the integer part of the position
func (e *FixedPointEvaluator) Steps() int64 {
	return e.position >> protocol.BitShift
}

// Remaining returns the ticks left in the current segment
func (e *FixedPointEvaluator) Remaining() uint32 {
	if !e.active {
		return 0
	}
	return e.ticks - e.elapsed
}

// Overflowed reports whether a debug-mode overflow was trapped since the
// last Reset
func (e *FixedPointEvaluator) Overflowed() bool {
	return e.overflowed
}

// Halt ends the current segment and keeps the position
func (e *FixedPointEvaluator) Halt() {
	e.active = false
	e.c1, e.c2, e.c3 = 0, 0, 0
}

// Reset zeroes all state, including the position
func (e *FixedPointEvaluator) Reset() {
	*e = FixedPointEvaluator{}
}
