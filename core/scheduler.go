package core

// Timer is a one-shot or periodic event on the control tick clock
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

// Timer handler results
const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler is the single control loop. Every Step advances the tick
// clock by one, runs each registered ticker in registration order and
// then fires the timers that have come due.
type Scheduler struct {
	tickers []func()
	timers  *Timer
	now     uint32
}

// NewScheduler creates a scheduler starting at tick 0
func NewScheduler() *Scheduler {
	SetTime(0)
	return &Scheduler{}
}

// Register adds a per-tick step function
func (s *Scheduler) Register(fn func()) {
	s.tickers = append(s.tickers, fn)
}

// Now returns the number of ticks run so far
func (s *Scheduler) Now() uint32 {
	return s.now
}

// ScheduleTimer adds a timer, keeping the list sorted by WakeTime
func (s *Scheduler) ScheduleTimer(t *Timer) {
	state := lockTimers()
	defer unlockTimers(state)
	s.insertTimer(t)
}

// CancelTimer removes a pending timer. It returns false if the timer was
// not scheduled.
func (s *Scheduler) CancelTimer(t *Timer) bool {
	state := lockTimers()
	defer unlockTimers(state)

	for p := &s.timers; *p != nil; p = &(*p).Next {
		if *p == t {
			*p = t.Next
			t.Next = nil
			return true
		}
	}
	return false
}

func (s *Scheduler) insertTimer(t *Timer) {
	if s.timers == nil || timeBefore(t.WakeTime, s.timers.WakeTime) {
		t.Next = s.timers
		s.timers = t
		return
	}

	current := s.timers
	for current.Next != nil && !timeBefore(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Step runs one control tick
func (s *Scheduler) Step() {
	s.now++
	SetTime(s.now)

	for _, fn := range s.tickers {
		fn()
	}
	s.dispatchTimers()
}

// Run runs n control ticks
func (s *Scheduler) Run(n int) {
	for i := 0; i < n; i++ {
		s.Step()
	}
}

func (s *Scheduler) dispatchTimers() {
	state := lockTimers()
	defer unlockTimers(state)

	for s.timers != nil && !timeBefore(s.now, s.timers.WakeTime) {
		timer := s.timers
		s.timers = timer.Next
		timer.Next = nil

		if timer.Handler(timer) == SF_RESCHEDULE {
			s.insertTimer(timer)
		}
	}
}
