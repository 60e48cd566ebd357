package core

import (
	"sync/atomic"

	"polyscan/protocol"
)

// SystemStatus is shared between the transfer and tick domains. Every
// field has exactly one writer: the parser owns the request counters and
// its latches, the dispatcher owns the state and its own latches.
type SystemStatus struct {
	// parser-owned
	overflow uint32 // a write was rejected and not yet acknowledged
	invalid  uint32 // an invalid command byte was received
	startSeq uint32 // START requests received
	stopSeq  uint32 // STOP requests received
	stopMark uint32 // queue push count at the latest STOP
	rejected uint32 // total rejected writes

	// dispatcher-owned
	state    uint32 // protocol.State
	fault    uint32 // malformed instruction or step overrun
	underrun uint32 // facet pulse found no scanline
}

func storeFlag(p *uint32, v bool) {
	if v {
		atomic.StoreUint32(p, 1)
	} else {
		atomic.StoreUint32(p, 0)
	}
}

func loadFlag(p *uint32) bool {
	return atomic.LoadUint32(p) != 0
}

// Snapshot assembles the status byte fields. queueFull is the current
// queue fill condition.
func (s *SystemStatus) Snapshot(queueFull bool) protocol.Status {
	return protocol.Status{
		Full:          queueFull || loadFlag(&s.overflow),
		DispatchError: loadFlag(&s.invalid) || loadFlag(&s.fault),
		MemRead:       loadFlag(&s.underrun),
		State:         s.State(),
	}
}

// State returns the dispatcher state
func (s *SystemStatus) State() protocol.State {
	return protocol.State(atomic.LoadUint32(&s.state))
}

// Rejected returns the number of writes refused because the queue was full
func (s *SystemStatus) Rejected() uint32 {
	return atomic.LoadUint32(&s.rejected)
}

// Parser side

func (s *SystemStatus) noteWrite(accepted bool) {
	if !accepted {
		storeFlag(&s.overflow, true)
		atomic.AddUint32(&s.rejected, 1)
	}
}

// ackOverflow clears the overflow latch once a STATUS has reported it
func (s *SystemStatus) ackOverflow() {
	storeFlag(&s.overflow, false)
}

func (s *SystemStatus) latchInvalid() {
	storeFlag(&s.invalid, true)
}

func (s *SystemStatus) requestStart() {
	atomic.AddUint32(&s.startSeq, 1)
}

// requestStop clears the parser latches and records how many words had
// been pushed when the STOP arrived, then publishes the request. Only those
// words are flushed by the dispatcher.
func (s *SystemStatus) requestStop(pushed uint32) {
	storeFlag(&s.overflow, false)
	storeFlag(&s.invalid, false)
	atomic.StoreUint32(&s.stopMark, pushed)
	atomic.AddUint32(&s.stopSeq, 1)
}

// Dispatcher side

func (s *SystemStatus) invalidLatched() bool {
	return loadFlag(&s.invalid)
}

func (s *SystemStatus) faultLatched() bool {
	return loadFlag(&s.fault)
}

func (s *SystemStatus) startRequests() uint32 {
	return atomic.LoadUint32(&s.startSeq)
}

func (s *SystemStatus) stopRequests() uint32 {
	return atomic.LoadUint32(&s.stopSeq)
}

// flushMark is read after stopRequests, so it is never older than the
// requests counted
func (s *SystemStatus) flushMark() uint32 {
	return atomic.LoadUint32(&s.stopMark)
}

func (s *SystemStatus) setState(st protocol.State) {
	atomic.StoreUint32(&s.state, uint32(st))
}

func (s *SystemStatus) setFault(v bool) {
	storeFlag(&s.fault, v)
}

func (s *SystemStatus) setUnderrun(v bool) {
	storeFlag(&s.underrun, v)
}
