//go:build rp2350

package main

import (
	"polyscan/core"
)

// newStepperBackend uses GPIO stepping on the RP2350
func newStepperBackend() core.StepperBackend {
	return NewStepperGPIO()
}
