package core

import (
	"polyscan/protocol"
)

// Dispatcher is the top-level state machine of the tick domain. It is the
// only reader of the instruction queue and the only writer of the
// dispatcher half of SystemStatus.
//
//	IDLE --START--> MOVING --EMPTY/STOP--> STOPPED --START--> MOVING
//	any --invalid command/fault--> ERROR --STOP--> STOPPED
//	STOPPED --STOP--> IDLE
type Dispatcher struct {
	queue  *InstructionQueue
	status *SystemStatus
	seq    *MotionSequencer
	lines  *ScanlineBuffer
	gate   *ScanlineGate

	state protocol.State
	aux   uint8

	lastStart uint32
	lastStop  uint32

	// preallocated instruction scratch
	coeffs []protocol.Coeffs
	bitmap []uint32
}

// NewDispatcher wires a dispatcher to its collaborators
func NewDispatcher(queue *InstructionQueue, status *SystemStatus, seq *MotionSequencer, lines *ScanlineBuffer, gate *ScanlineGate) *Dispatcher {
	d := &Dispatcher{
		queue:  queue,
		status: status,
		seq:    seq,
		lines:  lines,
		gate:   gate,
		state:  protocol.StateIdle,
		coeffs: make([]protocol.Coeffs, seq.Axes()),
		bitmap: make([]uint32, protocol.BitmapWords(lines.MaxPixels())),
	}
	d.lastStart = status.startRequests()
	d.lastStop = status.stopRequests()
	status.setState(d.state)
	return d
}

// State returns the current top-level state
func (d *Dispatcher) State() protocol.State {
	return d.state
}

// Aux returns the auxiliary output bits of the running instruction
func (d *Dispatcher) Aux() uint8 {
	return d.aux
}

// Advance runs one control tick: host requests first, then instruction
// fetch, then one evaluation step of the active segment.
func (d *Dispatcher) Advance() StepOutput {
	if stop := d.status.stopRequests(); stop != d.lastStop {
		pending := stop - d.lastStop
		d.lastStop = stop
		mark := d.status.flushMark()
		// after the first STOP the state alternates STOPPED/IDLE
		for n := 1 + (pending-1)%2; n > 0; n-- {
			d.stop(mark)
		}
	}

	start := d.status.startRequests()
	started := start != d.lastStart
	d.lastStart = start

	if d.state != protocol.StateError && (d.status.invalidLatched() || d.status.faultLatched()) {
		d.fail(0)
	}

	switch d.state {
	case protocol.StateError:
		return StepOutput{}
	case protocol.StateIdle, protocol.StateStopped:
		if !started {
			return StepOutput{}
		}
		d.setState(protocol.StateMoving)
	}

	if !d.seq.Active() && !d.fetch() {
		return StepOutput{}
	}

	out, err := d.seq.Advance()
	if err != nil {
		d.fault(0)
		return StepOutput{}
	}
	return out
}

// fetch consumes at most one instruction. It returns true when a motion
// segment with a nonzero duration was loaded.
func (d *Dispatcher) fetch() bool {
	header, ok := d.queue.Peek(0)
	if !ok {
		return false
	}

	n, ok := protocol.Length(header, len(d.coeffs))
	if !ok || n > d.queue.Capacity() {
		d.fault(header)
		return false
	}
	if d.queue.Len() < n {
		// instruction still arriving
		return false
	}

	op, aux, arg := protocol.SplitHeader(header)
	switch op {
	case protocol.OpEmpty:
		d.queue.Discard(1)
		d.aux = 0
		d.gate.Reset()
		d.setState(protocol.StateStopped)
		return false

	case protocol.OpMove:
		for i := range d.coeffs {
			for j := range d.coeffs[i] {
				w, _ := d.queue.Peek(1 + i*protocol.CoeffsPerAxis + j)
				d.coeffs[i][j] = int32(w)
			}
		}
		d.queue.Discard(n)
		d.aux = aux
		if err := d.seq.Load(d.coeffs, arg); err != nil {
			d.fault(header)
			return false
		}
		RecordTiming(EvtLoadSegment, 0, uint32(arg), uint32(aux))
		return d.seq.Active()

	case protocol.OpScanline:
		pixels := int(arg)
		if pixels > d.lines.MaxPixels() {
			d.fault(header)
			return false
		}
		if d.lines.Full() {
			return false
		}
		words := d.bitmap[:n-1]
		for i := range words {
			words[i], _ = d.queue.Peek(1 + i)
		}
		d.lines.Load(words, pixels)
		d.queue.Discard(n)
		RecordTiming(EvtLoadLine, uint8(d.lines.Len()), uint32(pixels), 0)
		return false
	}
	return false
}

// ReportUnderrun latches a scanline underrun. Motion continues.
func (d *Dispatcher) ReportUnderrun() {
	RecordTiming(EvtUnderrun, 0, uint32(d.state), 0)
	d.status.setUnderrun(true)
}

// stop freezes and resets everything. Words written after the STOP
// survive the flush. A stop while already stopped returns to IDLE.
func (d *Dispatcher) stop(mark uint32) {
	d.queue.FlushTo(mark)
	d.seq.Reset()
	d.lines.Reset()
	d.gate.Reset()
	d.aux = 0
	d.status.setFault(false)
	d.status.setUnderrun(false)

	if d.state == protocol.StateStopped {
		d.setState(protocol.StateIdle)
	} else {
		d.setState(protocol.StateStopped)
	}
}

// fault latches a dispatch fault and enters ERROR
func (d *Dispatcher) fault(header uint32) {
	d.status.setFault(true)
	d.fail(header)
}

func (d *Dispatcher) fail(header uint32) {
	RecordTiming(EvtFault, 0, header, uint32(d.state))
	DebugAsync("[DISPATCH] fault in " + d.state.String())
	d.seq.Halt()
	d.gate.Reset()
	d.aux = 0
	d.setState(protocol.StateError)
}

func (d *Dispatcher) setState(st protocol.State) {
	if st == d.state {
		return
	}
	RecordTiming(EvtState, 0, uint32(d.state), uint32(st))
	d.state = st
	d.status.setState(st)
}
