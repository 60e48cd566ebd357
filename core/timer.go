package core

import "sync/atomic"

// DefaultTickFreq is the control tick rate used when none is configured
const DefaultTickFreq = 1000000

var (
	tickFreq    uint32 = DefaultTickFreq
	systemTicks uint32
)

// SetTickFreq sets the control tick frequency in Hz
func SetTickFreq(hz uint32) {
	if hz == 0 {
		hz = DefaultTickFreq
	}
	tickFreq = hz
}

// TickFreq returns the control tick frequency in Hz
func TickFreq() uint32 {
	return tickFreq
}

// GetTime returns the current control tick count.
// Safe to call from the transfer domain.
func GetTime() uint32 {
	return atomic.LoadUint32(&systemTicks)
}

// SetTime sets the current control tick count
func SetTime(ticks uint32) {
	atomic.StoreUint32(&systemTicks, ticks)
}

// TicksFromUS converts microseconds to control ticks
func TicksFromUS(us uint32) uint32 {
	return uint32(uint64(us) * uint64(tickFreq) / 1000000)
}

// TicksToUS converts control ticks to microseconds
func TicksToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / uint64(tickFreq))
}

// timeBefore reports whether a is before b, tolerating counter wrap
func timeBefore(a, b uint32) bool {
	return int32(a-b) < 0
}
