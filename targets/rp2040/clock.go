//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"polyscan/core"
)

// RP2040/RP2350 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word
)

// The timer counts microseconds
const hardwareFreq = 1000000

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// InitClock sets the control tick to the hardware timer rate, so one tick
// is one microsecond
func InitClock() {
	core.SetTickFreq(hardwareFreq)
}

// GetHardwareTime reads the low 32 bits of the microsecond counter
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}
