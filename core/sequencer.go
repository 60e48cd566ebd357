package core

// Multi-axis motion sequencing
// Each axis runs its own evaluator; all axes of a segment share its duration.

import (
	"polyscan/protocol"
)

// AxisConfig describes the pins of one axis
type AxisConfig struct {
	Name       string
	StepPin    uint8
	DirPin     uint8
	InvertStep bool
	InvertDir  bool
}

// AxisState is the per-axis state owned by the sequencer
type AxisState struct {
	Config AxisConfig
	Eval   FixedPointEvaluator

	Reverse   bool  // direction of the last step
	StepLevel bool  // step output level, toggles per step
	Position  int64 // net steps emitted since the last reset
	Done      bool  // current segment finished

	Backend StepperBackend
}

// StepOutput is the sequencer result for one tick. Bit i refers to axis i.
type StepOutput struct {
	Step uint32 // axes that stepped this tick
	Dir  uint32 // axes whose direction output is reverse
	Done uint32 // axes that finished their segment this tick
}

// MotionSequencer drives one evaluator per axis and turns their integer
// position changes into step and direction transitions
type MotionSequencer struct {
	axes   []AxisState
	active bool

	totalSteps uint64
	segments   uint32
}

// NewMotionSequencer creates a sequencer for the given axes. backends may be
// shorter than axes or contain nil entries; those axes use the platform
// factory if one is registered, otherwise a CountingBackend.
func NewMotionSequencer(axes []AxisConfig, backends []StepperBackend) (*MotionSequencer, error) {
	if len(axes) == 0 || len(axes) > protocol.MaxAxes {
		return nil, ErrInvalidConfig
	}

	s := &MotionSequencer{
		axes: make([]AxisState, len(axes)),
	}
	for i := range axes {
		ax := &s.axes[i]
		ax.Config = axes[i]

		var backend StepperBackend
		if i < len(backends) {
			backend = backends[i]
		}
		if backend == nil && stepperBackendFactory != nil {
			backend = stepperBackendFactory()
		}
		if backend == nil {
			backend = &CountingBackend{}
		}

		cfg := ax.Config
		if err := backend.Init(cfg.StepPin, cfg.DirPin, cfg.InvertStep, cfg.InvertDir); err != nil {
			return nil, err
		}
		ax.Backend = backend
		ax.Done = true
	}
	return s, nil
}

// Axes returns the number of axes
func (s *MotionSequencer) Axes() int {
	return len(s.axes)
}

// Axis returns the state of one axis
func (s *MotionSequencer) Axis(i int) *AxisState {
	return &s.axes[i]
}

// Load starts a segment on every axis. coeffs must hold one triple per
// axis. A zero-tick segment is complete on return.
func (s *MotionSequencer) Load(coeffs []protocol.Coeffs, ticks uint16) error {
	if len(coeffs) != len(s.axes) {
		return ErrMalformedInstruction
	}

	s.active = false
	for i := range s.axes {
		ax := &s.axes[i]
		ax.Done = !ax.Eval.Load(coeffs[i], ticks)
		if !ax.Done {
			s.active = true
		}
	}
	s.segments++
	return nil
}

// Active reports whether a segment is in progress
func (s *MotionSequencer) Active() bool {
	return s.active
}

// Complete reports whether every axis has finished its segment
func (s *MotionSequencer) Complete() bool {
	return !s.active
}

// Advance evaluates one tick on every active axis. A position change of
// more than one step in a tick returns ErrStepOverrun and leaves that axis
// without a pulse.
func (s *MotionSequencer) Advance() (StepOutput, error) {
	var out StepOutput
	if !s.active {
		return out, nil
	}

	var err error
	active := false
	for i := range s.axes {
		ax := &s.axes[i]
		bit := uint32(1) << uint(i)

		if !ax.Done {
			delta, done := ax.Eval.Advance()
			switch {
			case delta > 1 || delta < -1:
				RecordTiming(EvtStepOverrun, uint8(i), uint32(delta), 0)
				err = ErrStepOverrun
			case delta != 0:
				reverse := delta < 0
				if reverse != ax.Reverse {
					ax.Reverse = reverse
					ax.Backend.SetDirection(reverse)
				}
				ax.Backend.Step()
				ax.StepLevel = !ax.StepLevel
				ax.Position += delta
				s.totalSteps++
				out.Step |= bit
			}
			if done {
				ax.Done = true
				out.Done |= bit
			} else {
				active = true
			}
		}
		if ax.Reverse {
			out.Dir |= bit
		}
	}

	s.active = active
	if !active {
		RecordTiming(EvtSegmentDone, 0, out.Step, s.segments)
	}
	return out, err
}

// Position returns the net step count of one axis
func (s *MotionSequencer) Position(axis int) int64 {
	return s.axes[axis].Position
}

// TotalSteps returns the number of step pulses emitted since creation
func (s *MotionSequencer) TotalSteps() uint64 {
	return s.totalSteps
}

// Halt freezes every axis where it is
func (s *MotionSequencer) Halt() {
	for i := range s.axes {
		ax := &s.axes[i]
		ax.Eval.Halt()
		ax.Done = true
		ax.Backend.Stop()
	}
	s.active = false
}

// Reset halts every axis and zeroes its position and coefficients
func (s *MotionSequencer) Reset() {
	s.Halt()
	for i := range s.axes {
		ax := &s.axes[i]
		ax.Eval.Reset()
		ax.Position = 0
		ax.StepLevel = false
		if ax.Reverse {
			ax.Reverse = false
			ax.Backend.SetDirection(false)
		}
	}
}
