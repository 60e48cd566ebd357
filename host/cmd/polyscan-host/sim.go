package main

import (
	"context"
	"time"

	"polyscan/core"
)

// simulator runs a machine in real time on its own goroutine, with a
// polygon that sweeps the beam over the photodiode once per facet
type simulator struct {
	m     *core.Machine
	sched *core.Scheduler
	facet core.Timer

	period uint32 // ticks between facet pulses
	width  uint32 // ticks the beam stays on the sensor
	dark   bool

	calls chan func()
}

func newSimulator(m *core.Machine, facetPeriod, pulseWidth uint32) *simulator {
	s := &simulator{
		m:      m,
		sched:  core.NewScheduler(),
		period: facetPeriod,
		width:  pulseWidth,
		calls:  make(chan func()),
	}
	m.Attach(s.sched)

	s.facet.WakeTime = facetPeriod
	s.facet.Handler = s.sweep
	s.sched.ScheduleTimer(&s.facet)
	return s
}

// sweep toggles the simulated photodiode. Only a spinning polygon
// produces pulses.
func (s *simulator) sweep(t *core.Timer) uint8 {
	if s.dark {
		s.dark = false
		s.m.SetPhotodiode(true)
		t.WakeTime += s.period - s.width
		return core.SF_RESCHEDULE
	}
	if s.m.Outputs().Polygon {
		s.dark = true
		s.m.SetPhotodiode(false)
		t.WakeTime += s.width
		return core.SF_RESCHEDULE
	}
	t.WakeTime += s.period
	return core.SF_RESCHEDULE
}

// run advances the machine in millisecond bursts until ctx ends
func (s *simulator) run(ctx context.Context) {
	perMS := int(core.TickFreq() / 1000)
	if perMS < 1 {
		perMS = 1
	}
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sched.Run(perMS)
		case fn := <-s.calls:
			fn()
		}
	}
}

// do runs fn on the simulation goroutine between two bursts of ticks, where
// it may read tick-domain state
func (s *simulator) do(ctx context.Context, fn func(m *core.Machine)) {
	done := make(chan struct{})
	call := func() {
		fn(s.m)
		close(done)
	}
	select {
	case s.calls <- call:
		<-done
	case <-ctx.Done():
	}
}
