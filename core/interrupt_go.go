//go:build !tinygo

package core

// irqState stands in for the saved interrupt mask on hosted Go
type irqState uintptr

// lockTimers is a no-op off target; host tests drive the scheduler from
// a single goroutine
func lockTimers() irqState {
	return 0
}

func unlockTimers(irqState) {}
