package core

import (
	"polyscan/protocol"
)

// ProtocolParser decodes the host byte stream in the transfer domain. It
// is the only writer of the instruction queue. Every completed transfer
// produces exactly one response byte: the status captured when the command
// byte arrived.
//
// A WRITE is accepted only if FULL was clear in its captured status. Once a
// write is rejected the overflow latch rejects every following write until
// the host reads STATUS or sends STOP, so FULL in a WRITE response means
// exactly that the word was dropped.
type ProtocolParser struct {
	queue  *InstructionQueue
	status *SystemStatus

	// WRITE payload assembly
	inWrite  bool
	accept   bool
	payload  [protocol.WordBytes]byte
	have     int
	captured byte

	transfers uint32
	out       [1]byte
}

// NewProtocolParser creates a parser feeding queue and reporting status
func NewProtocolParser(queue *InstructionQueue, status *SystemStatus) *ProtocolParser {
	return &ProtocolParser{
		queue:  queue,
		status: status,
	}
}

// current returns the status byte as it stands now
func (p *ProtocolParser) current() byte {
	return p.status.Snapshot(p.queue.Full()).Byte()
}

// Feed consumes one byte. done is true when the byte completed a transfer,
// in which case resp is that transfer's response.
func (p *ProtocolParser) Feed(b byte) (resp byte, done bool) {
	if p.inWrite {
		p.payload[p.have] = b
		p.have++
		if p.have < protocol.WordBytes {
			return 0, false
		}
		p.inWrite = false
		accepted := p.accept && p.queue.TryPush(protocol.Word(p.payload[:]))
		p.status.noteWrite(accepted)
		return p.complete(p.captured), true
	}

	captured := p.current()
	switch b {
	case protocol.CmdEmpty:
		return p.complete(captured), true

	case protocol.CmdStatus:
		p.status.ackOverflow()
		return p.complete(captured), true

	case protocol.CmdWrite:
		p.inWrite = true
		p.accept = captured&protocol.StatusFull == 0
		p.have = 0
		p.captured = captured
		return 0, false

	case protocol.CmdStart:
		p.status.requestStart()
		return p.complete(captured), true

	case protocol.CmdStop:
		p.status.requestStop(p.queue.Pushed())
		return p.complete(captured), true

	default:
		p.status.latchInvalid()
		DebugAsync("[PARSER] invalid command 0x" + hex8(b))
		return p.complete(captured | protocol.StatusDispatchError), true
	}
}

func (p *ProtocolParser) complete(resp byte) byte {
	p.transfers++
	return resp
}

// Receive feeds every available input byte and writes one response byte
// per completed transfer. It returns the number of transfers completed.
func (p *ProtocolParser) Receive(input protocol.InputBuffer, output protocol.OutputBuffer) int {
	data := input.Data()
	completed := 0
	for _, b := range data {
		if resp, done := p.Feed(b); done {
			p.out[0] = resp
			output.Output(p.out[:])
			completed++
		}
	}
	input.Pop(len(data))
	return completed
}

// Transfer performs one whole transfer and returns its response. word is
// only sent for WRITE.
func (p *ProtocolParser) Transfer(cmd byte, word uint32) byte {
	resp, done := p.Feed(cmd)
	if done {
		return resp
	}
	var buf [protocol.WordBytes]byte
	protocol.PutWord(buf[:], word)
	for _, b := range buf {
		if resp, done = p.Feed(b); done {
			break
		}
	}
	return resp
}

// Pending reports whether a WRITE payload is partially received
func (p *ProtocolParser) Pending() bool {
	return p.inWrite
}

// Transfers returns the number of completed transfers
func (p *ProtocolParser) Transfers() uint32 {
	return p.transfers
}
