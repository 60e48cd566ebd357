//go:build rp2040

package main

// PIO stepper backend using tinygo-org/pio. The tick loop only pushes one
// word per step; the state machine times the pulse.

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"polyscan/core"
)

var errInvertStep = errors.New("pio: inverted step polarity not supported")

// Command word, shifted out LSB first:
//
//	Bits 0-15:  pulse count minus one
//	Bits 16-23: delay cycles after each pulse
//	Bit 24:     direction (1 = reverse)
const pioDirBit = 1 << 24

// buildStepperProgram creates the stepper PIO program using AssemblerV0
func buildStepperProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(),   // 1: out x, 16 (pulse count)
		asm.Out(rp2pio.OutDestY, 8).Encode(),    // 2: out y, 8 (delay cycles)
		asm.Out(rp2pio.OutDestPins, 1).Encode(), // 3: out pins, 1 (direction)
		// step_loop:
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(), // 4: set pins, 1 [7]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // 5: set pins, 0
		// delay_loop:
		asm.Jmp(6, rp2pio.JmpYNZeroDec).Encode(), // 6: jmp y--, 6
		asm.Jmp(4, rp2pio.JmpXNZeroDec).Encode(), // 7: jmp x--, 4
		// .wrap
	}
}

const stepperPIOOrigin = 0 // Load at offset 0 for correct jump addresses

var (
	// RP2040 has 2 PIO blocks with 4 state machines each
	pioAllocations = [2][4]bool{}
	pioOffsets     = [2]int16{-1, -1} // program offset per block, -1 = not loaded
)

// PIOStepperBackend implements core.StepperBackend on a PIO state machine
type PIOStepperBackend struct {
	pio       *rp2pio.PIO
	sm        rp2pio.StateMachine
	stepPin   machine.Pin
	dirPin    machine.Pin
	pioNum    uint8
	invertDir bool
	reverse   bool
}

// NewPIOStepperBackend creates a backend on state machine smNum of PIO
// block pioNum
func NewPIOStepperBackend(pioNum, smNum uint8) *PIOStepperBackend {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}
	return &PIOStepperBackend{
		pio:    pioHW,
		sm:     pioHW.StateMachine(smNum),
		pioNum: pioNum,
	}
}

// Init loads the program once per block and starts the state machine
func (b *PIOStepperBackend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error {
	if invertStep {
		return errInvertStep
	}
	b.stepPin = machine.Pin(stepPin)
	b.dirPin = machine.Pin(dirPin)
	b.invertDir = invertDir

	b.sm.TryClaim()

	program := buildStepperProgram()
	if pioOffsets[b.pioNum] < 0 {
		offset, err := b.pio.AddProgram(program, stepperPIOOrigin)
		if err != nil {
			return err
		}
		pioOffsets[b.pioNum] = int16(offset)
	}
	offset := uint8(pioOffsets[b.pioNum])

	b.stepPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})
	b.dirPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(b.stepPin, 1)
	cfg.SetOutPins(b.dirPin, 1)
	// Shift right, explicit PULL, 32-bit threshold
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	// 64ns per cycle at 125MHz: an 8-cycle pulse of about 0.5us
	cfg.SetClkDivIntFrac(8, 0)

	b.sm.Init(offset, cfg)

	// Pin directions must be set after Init
	b.sm.SetPindirsConsecutive(b.stepPin, 1, true)
	b.sm.SetPindirsConsecutive(b.dirPin, 1, true)
	b.sm.SetPinsConsecutive(b.stepPin, 1, false)
	b.sm.SetPinsConsecutive(b.dirPin, 1, invertDir)

	b.sm.SetEnabled(true)
	return nil
}

// Step queues a single pulse. The FIFO holds four, far more than the
// state machine needs between two ticks.
func (b *PIOStepperBackend) Step() {
	cmd := uint32(1) << 16 // one pulse, one delay cycle
	if b.reverse != b.invertDir {
		cmd |= pioDirBit
	}
	for b.sm.IsTxFIFOFull() {
	}
	b.sm.TxPut(cmd)
}

// SetDirection sets the direction sent with the next pulse
func (b *PIOStepperBackend) SetDirection(reverse bool) {
	b.reverse = reverse
}

// Stop drops queued pulses and restarts the state machine
func (b *PIOStepperBackend) Stop() {
	b.sm.SetEnabled(false)
	b.sm.ClearFIFOs()
	b.sm.Restart()
	b.sm.SetEnabled(true)
}

// GetName returns the backend name
func (b *PIOStepperBackend) GetName() string {
	return "PIO"
}

// allocatePIO returns the first free state machine
func allocatePIO() (uint8, uint8, bool) {
	for pioNum := uint8(0); pioNum < 2; pioNum++ {
		for smNum := uint8(0); smNum < 4; smNum++ {
			if !pioAllocations[pioNum][smNum] {
				pioAllocations[pioNum][smNum] = true
				return pioNum, smNum, true
			}
		}
	}
	return 0, 0, false
}

// newStepperBackend prefers PIO and falls back to GPIO once all eight
// state machines are taken
func newStepperBackend() core.StepperBackend {
	if pioNum, smNum, ok := allocatePIO(); ok {
		return NewPIOStepperBackend(pioNum, smNum)
	}
	return NewStepperGPIO()
}
