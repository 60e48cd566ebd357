package core

import (
	"testing"

	"polyscan/protocol"
)

func newTestParser(depth int) (*ProtocolParser, *InstructionQueue, *SystemStatus) {
	q := NewInstructionQueue(depth)
	st := &SystemStatus{}
	return NewProtocolParser(q, st), q, st
}

func TestParserStatusBeforeWrite(t *testing.T) {
	p, _, _ := newTestParser(8)

	resp := p.Transfer(protocol.CmdStatus, 0)
	if resp != 0 {
		t.Errorf("Initial status 0x%02X, want 0x00", resp)
	}
	if s := protocol.DecodeStatus(resp); s.State != protocol.StateIdle {
		t.Errorf("Initial state %s, want IDLE", s.State)
	}
}

func TestParserWriteUntilFull(t *testing.T) {
	const depth = 6
	p, q, st := newTestParser(depth)

	for i := 1; i <= depth+1; i++ {
		resp := p.Transfer(protocol.CmdWrite, uint32(i))
		full := resp&protocol.StatusFull != 0
		if i <= depth && full {
			t.Errorf("Write %d reported FULL", i)
		}
		if i == depth+1 && !full {
			t.Errorf("Write %d did not report FULL", i)
		}
	}

	if q.Len() != depth {
		t.Errorf("Queue holds %d words, want %d", q.Len(), depth)
	}
	if st.Rejected() != 1 {
		t.Errorf("Rejected() = %d, want 1", st.Rejected())
	}

	// Words went in big-endian and in order
	for want := uint32(1); want <= depth; want++ {
		if got, _ := q.TryPop(); got != want {
			t.Fatalf("Queued word %d, want %d", got, want)
		}
	}

	// Space is available again, but writes stay rejected until the
	// overflow has been reported by STATUS
	if resp := p.Transfer(protocol.CmdWrite, 42); resp&protocol.StatusFull == 0 {
		t.Error("Write accepted while the overflow latch was set")
	}
	if q.Len() != 0 {
		t.Errorf("Latched write reached the queue")
	}
	if resp := p.Transfer(protocol.CmdStatus, 0); resp&protocol.StatusFull == 0 {
		t.Error("STATUS did not report the overflow")
	}
	if resp := p.Transfer(protocol.CmdWrite, 99); resp&protocol.StatusFull != 0 {
		t.Error("Write rejected after STATUS acknowledged the overflow")
	}
	if w, ok := q.Peek(0); !ok || w != 99 {
		t.Errorf("Queue head %d, %v; want 99", w, ok)
	}
	if st.Rejected() != 2 {
		t.Errorf("Rejected() = %d, want 2", st.Rejected())
	}
}

func TestParserInvalidCommand(t *testing.T) {
	p, _, _ := newTestParser(4)

	resp := p.Transfer(250, 0)
	if resp&protocol.StatusDispatchError == 0 {
		t.Error("Invalid command response missing DISPATCHERROR")
	}
	// The parser resynchronizes on the next byte
	if resp := p.Transfer(protocol.CmdStatus, 0); resp&protocol.StatusDispatchError == 0 {
		t.Error("STATUS after invalid command missing DISPATCHERROR")
	}

	p.Transfer(protocol.CmdStop, 0)
	if resp := p.Transfer(protocol.CmdStatus, 0); resp&protocol.StatusDispatchError != 0 {
		t.Error("STOP did not clear the invalid command latch")
	}
}

func TestParserReceiveStream(t *testing.T) {
	p, q, _ := newTestParser(4)

	stream := []byte{
		protocol.CmdStatus,
		protocol.CmdWrite, 0x12, 0x34, 0x56, 0x78,
		250,
		protocol.CmdEmpty,
		protocol.CmdWrite, 0xAB, // partial
	}
	input := protocol.NewSliceInputBuffer(stream)
	output := protocol.NewScratchOutput()

	if n := p.Receive(input, output); n != 4 {
		t.Errorf("Completed %d transfers, want 4", n)
	}
	resp := output.Result()
	if len(resp) != 4 {
		t.Fatalf("Got %d response bytes, want 4", len(resp))
	}
	if resp[2]&protocol.StatusDispatchError == 0 {
		t.Errorf("Invalid byte response 0x%02X", resp[2])
	}
	if w, _ := q.Peek(0); w != 0x12345678 {
		t.Errorf("Queued word 0x%08X, want 0x12345678", w)
	}
	if !p.Pending() {
		t.Error("Partial WRITE should be pending")
	}
	if input.Available() != 0 {
		t.Error("Receive should consume all input")
	}

	// Finish the partial write in a second chunk
	input = protocol.NewSliceInputBuffer([]byte{0xCD, 0xEF, 0x01})
	if n := p.Receive(input, output); n != 1 {
		t.Errorf("Completed %d transfers, want 1", n)
	}
	if w, _ := q.Peek(1); w != 0xABCDEF01 {
		t.Errorf("Queued word 0x%08X, want 0xABCDEF01", w)
	}
}
