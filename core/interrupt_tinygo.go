//go:build tinygo

package core

import "runtime/interrupt"

type irqState = interrupt.State

// lockTimers masks interrupts while the timer list is edited, since the
// transfer domain may schedule timers from USB interrupt context
func lockTimers() irqState {
	return interrupt.Disable()
}

func unlockTimers(state irqState) {
	interrupt.Restore(state)
}
