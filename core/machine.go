package core

import (
	"sync/atomic"

	"polyscan/protocol"
)

// MachinePins maps the machine outputs and the photodiode input to GPIO
type MachinePins struct {
	Laser          GPIOPin
	Polygon        GPIOPin
	Photodiode     GPIOPin
	Aux            []GPIOPin // general-purpose outputs, aux bits 3..7
	LaserActiveLow bool
}

// MachineConfig sizes every fixed buffer of the machine
type MachineConfig struct {
	Axes          []AxisConfig
	QueueDepth    int // instruction queue depth in words
	ScanlineDepth int // buffered scanlines
	MaxPixels     int // longest scanline
	TicksPerPixel uint16
	Photodiode    PhotodiodeConfig

	// Optional collaborators
	Steppers []StepperBackend
	GPIO     GPIODriver   // nil falls back to the registered driver
	Pins     *MachinePins // nil leaves outputs simulated
}

// Validate checks that the configuration can run any legal instruction
func (c *MachineConfig) Validate() error {
	if len(c.Axes) == 0 || len(c.Axes) > protocol.MaxAxes {
		return ErrInvalidConfig
	}
	if c.QueueDepth < protocol.InstructionWords(len(c.Axes)) {
		return ErrInvalidConfig
	}
	if c.MaxPixels < 0 || c.MaxPixels > protocol.MaxTicks || c.QueueDepth < protocol.ScanlineWords(c.MaxPixels) {
		return ErrInvalidConfig
	}
	if c.ScanlineDepth <= 0 || c.Photodiode.NLow == 0 || c.Photodiode.NHigh == 0 {
		return ErrInvalidConfig
	}
	if c.Pins != nil && len(c.Pins.Aux) > 5 {
		return ErrInvalidConfig
	}
	return nil
}

// Outputs is the state of every machine output after a tick
type Outputs struct {
	Laser   bool
	Polygon bool
	Aux     uint8  // general-purpose outputs, bit 0 = aux bit 3
	Step    uint32 // axes that stepped
	Dir     uint32 // axes running in reverse
	Pulse   bool   // facet pulse on this tick
}

// Machine composes the control core. Receive and Transfer belong to the
// transfer domain; Tick belongs to the tick domain. The two may run on
// different goroutines.
type Machine struct {
	Queue      *InstructionQueue
	Status     *SystemStatus
	Parser     *ProtocolParser
	Dispatcher *Dispatcher
	Sequencer  *MotionSequencer
	Photodiode *PhotodiodeSync
	Lines      *ScanlineBuffer
	Gate       *ScanlineGate

	gpio    GPIODriver
	pins    *MachinePins
	laser   *DigitalOut
	polygon *DigitalOut
	aux     []*DigitalOut

	photodiodeLevel uint32 // simulated input, 1 = high
	out             Outputs
	ticks           uint64
}

// NewMachine builds a machine from cfg
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seq, err := NewMotionSequencer(cfg.Axes, cfg.Steppers)
	if err != nil {
		return nil, err
	}

	m := &Machine{
		Queue:           NewInstructionQueue(cfg.QueueDepth),
		Status:          &SystemStatus{},
		Sequencer:       seq,
		Photodiode:      NewPhotodiodeSync(cfg.Photodiode),
		Lines:           NewScanlineBuffer(cfg.ScanlineDepth, cfg.MaxPixels),
		gpio:            cfg.GPIO,
		pins:            cfg.Pins,
		photodiodeLevel: 1,
	}
	if m.gpio == nil {
		m.gpio = DefaultGPIO()
	}

	m.Gate = NewScanlineGate(m.Lines, m.Lines.MaxPixels(), cfg.TicksPerPixel)
	m.Parser = NewProtocolParser(m.Queue, m.Status)
	m.Dispatcher = NewDispatcher(m.Queue, m.Status, m.Sequencer, m.Lines, m.Gate)

	if err := m.initOutputs(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Machine) initOutputs() error {
	var driver GPIODriver
	var pins MachinePins
	if m.pins != nil && m.gpio != nil {
		driver = m.gpio
		pins = *m.pins
		if err := driver.ConfigureInputPullUp(pins.Photodiode); err != nil {
			return err
		}
	}

	var err error
	if m.laser, err = NewDigitalOut("laser", driver, pins.Laser, pins.LaserActiveLow, false); err != nil {
		return err
	}
	if m.polygon, err = NewDigitalOut("polygon", driver, pins.Polygon, false, false); err != nil {
		return err
	}
	for i, pin := range pins.Aux {
		out, err := NewDigitalOut("aux"+itoa(int64(i)), driver, pin, false, false)
		if err != nil {
			return err
		}
		m.aux = append(m.aux, out)
	}
	return nil
}

// Attach registers the machine tick with a scheduler
func (m *Machine) Attach(s *Scheduler) {
	s.Register(func() { m.Tick() })
}

// Tick advances the whole control core by one tick: photodiode, then
// dispatcher and sequencer, then the scanline gate, then the outputs.
func (m *Machine) Tick() Outputs {
	pulse := m.Photodiode.Advance(m.sample())
	if pulse {
		RecordTiming(EvtFacet, 0, m.Photodiode.Pulses(), 0)
	}

	steps := m.Dispatcher.Advance()
	aux := m.Dispatcher.Aux()

	expose := aux&protocol.AuxExpose != 0
	laser, underrun := m.Gate.Advance(pulse, expose)
	if underrun {
		m.Dispatcher.ReportUnderrun()
	}
	if !expose {
		laser = aux&protocol.AuxLaser != 0
	}

	m.out = Outputs{
		Laser:   laser,
		Polygon: aux&protocol.AuxPolygon != 0,
		Aux:     aux >> 3,
		Step:    steps.Step,
		Dir:     steps.Dir,
		Pulse:   pulse,
	}
	m.drive()
	m.ticks++
	return m.out
}

func (m *Machine) sample() bool {
	if m.pins != nil && m.gpio != nil {
		return m.gpio.ReadPin(m.pins.Photodiode)
	}
	return atomic.LoadUint32(&m.photodiodeLevel) != 0
}

func (m *Machine) drive() {
	m.laser.Set(m.out.Laser)
	m.polygon.Set(m.out.Polygon)
	for i, out := range m.aux {
		out.Set(m.out.Aux&(1<<uint(i)) != 0)
	}
}

// SetPhotodiode sets the simulated photodiode level (false = beam on the
// sensor). Ignored when a GPIO photodiode pin is configured.
func (m *Machine) SetPhotodiode(high bool) {
	var v uint32
	if high {
		v = 1
	}
	atomic.StoreUint32(&m.photodiodeLevel, v)
}

// Receive runs the parser over all available input
func (m *Machine) Receive(input protocol.InputBuffer, output protocol.OutputBuffer) int {
	return m.Parser.Receive(input, output)
}

// Transfer runs one whole transfer and returns its response byte
func (m *Machine) Transfer(cmd byte, word uint32) byte {
	return m.Parser.Transfer(cmd, word)
}

// Snapshot returns the status as the host would read it
func (m *Machine) Snapshot() protocol.Status {
	return m.Status.Snapshot(m.Queue.Full())
}

// Outputs returns the outputs of the last tick
func (m *Machine) Outputs() Outputs {
	return m.out
}

// Ticks returns the number of ticks run
func (m *Machine) Ticks() uint64 {
	return m.ticks
}

// Shutdown freezes motion and returns every output to its default
func (m *Machine) Shutdown() {
	m.Sequencer.Halt()
	m.Gate.Reset()
	m.laser.Shutdown()
	m.polygon.Shutdown()
	for _, out := range m.aux {
		out.Shutdown()
	}
	m.out = Outputs{}
}

// DumpTiming writes the timing ring to the debug writer
func (m *Machine) DumpTiming() {
	DumpTimingRing(m.Sequencer.TotalSteps())
}
