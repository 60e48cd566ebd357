package core

// StepperBackend is the hardware side of one axis.
// Implementations can use GPIO, PIO, or other methods.
type StepperBackend interface {
	// Init claims the step and direction pins
	Init(stepPin, dirPin uint8, invertStep, invertDir bool) error

	// Step emits a single step pulse. Called from the tick loop, so it
	// must not block.
	Step()

	// SetDirection sets the direction output (true = reverse).
	// Always called before the Step that needs it.
	SetDirection(reverse bool)

	// Stop immediately halts stepping
	Stop()

	// GetName returns backend implementation name
	GetName() string
}

// stepperBackendFactory creates backends for axes that were not given one
var stepperBackendFactory func() StepperBackend

// SetStepperBackendFactory sets the factory used for axes without an
// explicit backend. Called by platform-specific initialization code.
func SetStepperBackendFactory(factory func() StepperBackend) {
	stepperBackendFactory = factory
}

// CountingBackend is a StepperBackend that only counts pulses.
// It is the default in simulation.
type CountingBackend struct {
	Steps    int64
	Pulses   uint64
	Reverse  bool
	Reversal uint64
	Stopped  bool
}

func (b *CountingBackend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error {
	return nil
}

func (b *CountingBackend) Step() {
	b.Pulses++
	b.Stopped = false
	if b.Reverse {
		b.Steps--
	} else {
		b.Steps++
	}
}

func (b *CountingBackend) SetDirection(reverse bool) {
	if reverse != b.Reverse {
		b.Reversal++
	}
	b.Reverse = reverse
}

func (b *CountingBackend) Stop() {
	b.Stopped = true
}

func (b *CountingBackend) GetName() string {
	return "counting"
}
