package core

// PhotodiodeConfig tunes the facet-edge debounce
type PhotodiodeConfig struct {
	NLow        uint16 // consecutive active (low) samples that make a pulse
	NHigh       uint16 // consecutive inactive (high) samples that re-arm
	Synchronize bool   // pass the raw input through two registers first
}

// PhotodiodeSync debounces the active-low photodiode input and emits a
// one-tick pulse per facet edge.
//
// A pulse fires on the tick the low streak first reaches NLow, unless the
// refractory window is open. Firing opens the window; it closes after NHigh
// consecutive high samples.
type PhotodiodeSync struct {
	nLow        uint16
	nHigh       uint16
	synchronize bool

	sync1 bool // first synchronizer stage
	sync2 bool // second synchronizer stage

	level      bool
	lowCount   uint16
	highCount  uint16
	refractory bool

	pulses uint32
}

// NewPhotodiodeSync creates a debouncer. Thresholds of zero are raised to
// one. The synchronizer stages start inactive (high).
func NewPhotodiodeSync(cfg PhotodiodeConfig) *PhotodiodeSync {
	p := &PhotodiodeSync{
		nLow:        cfg.NLow,
		nHigh:       cfg.NHigh,
		synchronize: cfg.Synchronize,
	}
	if p.nLow == 0 {
		p.nLow = 1
	}
	if p.nHigh == 0 {
		p.nHigh = 1
	}
	p.Reset()
	return p
}

// Advance samples the raw input once and reports whether this tick carries
// a facet pulse
func (p *PhotodiodeSync) Advance(raw bool) bool {
	if p.synchronize {
		p.level = p.sync2
		p.sync2 = p.sync1
		p.sync1 = raw
	} else {
		p.level = raw
	}

	if !p.level {
		p.highCount = 0
		if p.lowCount < p.nLow {
			p.lowCount++
			if p.lowCount == p.nLow && !p.refractory {
				p.refractory = true
				p.pulses++
				return true
			}
		}
		return false
	}

	p.lowCount = 0
	if p.highCount < p.nHigh {
		p.highCount++
	}
	if p.highCount == p.nHigh {
		p.refractory = false
	}
	return false
}

// Level returns the synchronized input level
func (p *PhotodiodeSync) Level() bool {
	return p.level
}

// Refractory reports whether pulses are currently suppressed
func (p *PhotodiodeSync) Refractory() bool {
	return p.refractory
}

// Pulses returns the number of pulses emitted
func (p *PhotodiodeSync) Pulses() uint32 {
	return p.pulses
}

// Reset returns to the power-on state
func (p *PhotodiodeSync) Reset() {
	p.sync1, p.sync2, p.level = true, true, true
	p.lowCount, p.highCount = 0, 0
	p.refractory = false
}
