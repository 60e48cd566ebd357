package core

import (
	"errors"
	"testing"

	"polyscan/protocol"
)

func newTestSequencer(t *testing.T, axes int) (*MotionSequencer, []*CountingBackend) {
	t.Helper()
	configs := make([]AxisConfig, axes)
	backends := make([]StepperBackend, axes)
	counters := make([]*CountingBackend, axes)
	for i := range configs {
		configs[i] = AxisConfig{Name: "axis" + itoa(int64(i)), StepPin: uint8(2 * i), DirPin: uint8(2*i + 1)}
		counters[i] = &CountingBackend{}
		backends[i] = counters[i]
	}
	s, err := NewMotionSequencer(configs, backends)
	if err != nil {
		t.Fatalf("NewMotionSequencer failed: %v", err)
	}
	return s, counters
}

func runSegment(t *testing.T, s *MotionSequencer) (ticks int, outputs []StepOutput) {
	t.Helper()
	for s.Active() {
		out, err := s.Advance()
		if err != nil {
			t.Fatalf("Advance failed at tick %d: %v", ticks, err)
		}
		outputs = append(outputs, out)
		ticks++
	}
	return ticks, outputs
}

func TestSequencerSteps(t *testing.T) {
	s, backends := newTestSequencer(t, 2)

	// Axis 0 forward a quarter step per tick, axis 1 backward half a step
	err := s.Load([]protocol.Coeffs{
		{1 << 28, 0, 0},
		{-(1 << 29), 0, 0},
	}, 400)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ticks, outputs := runSegment(t, s)
	if ticks != 400 {
		t.Errorf("Segment ran %d ticks, want 400", ticks)
	}
	if s.Position(0) != 100 || s.Position(1) != -200 {
		t.Errorf("Positions %d, %d; want 100, -200", s.Position(0), s.Position(1))
	}
	if backends[0].Steps != 100 || backends[1].Steps != -200 {
		t.Errorf("Backend steps %d, %d", backends[0].Steps, backends[1].Steps)
	}
	if backends[1].Reversal != 1 {
		t.Errorf("Axis 1 direction changed %d times, want 1", backends[1].Reversal)
	}

	last := outputs[len(outputs)-1]
	if last.Done != 0x3 {
		t.Errorf("Final Done mask %02b, want 11", last.Done)
	}
	if last.Dir != 0x2 {
		t.Errorf("Final Dir mask %02b, want 10", last.Dir)
	}
	if s.TotalSteps() != 300 {
		t.Errorf("TotalSteps() = %d, want 300", s.TotalSteps())
	}
}

func TestSequencerContinuesPosition(t *testing.T) {
	s, _ := newTestSequencer(t, 1)

	s.Load([]protocol.Coeffs{{1 << 29, 0, 0}}, 3)
	runSegment(t, s)
	s.Load([]protocol.Coeffs{{1 << 29, 0, 0}}, 3)
	runSegment(t, s)

	// 6 half steps across the boundary
	if s.Position(0) != 3 {
		t.Errorf("Position %d, want 3", s.Position(0))
	}
}

func TestSequencerZeroDuration(t *testing.T) {
	s, backends := newTestSequencer(t, 1)
	s.Load([]protocol.Coeffs{{1 << 30, 0, 0}}, 0)
	if !s.Complete() {
		t.Error("Zero-tick segment should be complete immediately")
	}
	if out, _ := s.Advance(); out.Step != 0 || backends[0].Pulses != 0 {
		t.Error("Zero-tick segment emitted a step")
	}
}

func TestSequencerStepOverrun(t *testing.T) {
	s, _ := newTestSequencer(t, 1)
	s.Load([]protocol.Coeffs{{3 << 29, 0, 0}}, 10)

	var err error
	for i := 0; i < 10 && err == nil; i++ {
		_, err = s.Advance()
	}
	if !errors.Is(err, ErrStepOverrun) {
		t.Errorf("Expected ErrStepOverrun, got %v", err)
	}
}

func TestSequencerReset(t *testing.T) {
	s, backends := newTestSequencer(t, 1)
	s.Load([]protocol.Coeffs{{-(1 << 30), 0, 0}}, 100)
	s.Advance()
	s.Advance()

	s.Reset()
	if s.Active() || s.Position(0) != 0 {
		t.Errorf("After reset: active=%v position=%d", s.Active(), s.Position(0))
	}
	if !backends[0].Stopped || backends[0].Reverse {
		t.Error("Reset should stop the backend and restore forward direction")
	}
	if err := s.Load(make([]protocol.Coeffs, 2), 5); !errors.Is(err, ErrMalformedInstruction) {
		t.Errorf("Load with wrong axis count: %v", err)
	}
}
