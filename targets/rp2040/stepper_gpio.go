//go:build rp2040 || rp2350

package main

import (
	"machine"

	"polyscan/core"
)

// pulseSpin is the busy loop that stretches a GPIO step pulse to about a
// microsecond
const pulseSpin = 100

// StepperGPIO drives step and direction with plain GPIO writes
type StepperGPIO struct {
	stepPin    machine.Pin
	dirPin     machine.Pin
	invertStep bool
	invertDir  bool
}

// NewStepperGPIO creates a new GPIO-based stepper backend
func NewStepperGPIO() *StepperGPIO {
	return &StepperGPIO{}
}

// Init configures both pins as outputs, step idle and direction forward
func (s *StepperGPIO) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error {
	s.stepPin = machine.Pin(stepPin)
	s.dirPin = machine.Pin(dirPin)
	s.invertStep = invertStep
	s.invertDir = invertDir

	s.stepPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s.dirPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s.stepPin.Set(s.invertStep)
	s.SetDirection(false)

	core.DebugPrintln("[GPIO] stepper step=" + itoa(int(stepPin)) + " dir=" + itoa(int(dirPin)))
	return nil
}

// Step generates a single step pulse
func (s *StepperGPIO) Step() {
	s.stepPin.Set(!s.invertStep)
	for i := 0; i < pulseSpin; i++ {
	}
	s.stepPin.Set(s.invertStep)
}

// SetDirection sets the direction output
func (s *StepperGPIO) SetDirection(reverse bool) {
	s.dirPin.Set(reverse != s.invertDir)
}

// Stop returns the step pin to idle
func (s *StepperGPIO) Stop() {
	s.stepPin.Set(s.invertStep)
}

// GetName returns the backend name
func (s *StepperGPIO) GetName() string {
	return "GPIO"
}
