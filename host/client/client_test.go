package client

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"polyscan/core"
	"polyscan/host/job"
	"polyscan/host/link"
	"polyscan/protocol"
)

func newClient(t *testing.T, ticksPerExchange int) (*Client, *core.Machine) {
	t.Helper()
	m, err := core.NewMachine(core.MachineConfig{
		Axes:          []core.AxisConfig{{Name: "y"}},
		QueueDepth:    32,
		ScanlineDepth: 2,
		MaxPixels:     64,
		Photodiode:    core.PhotodiodeConfig{NLow: 1, NHigh: 1},
	})
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	c := New(link.NewLoopback(m, ticksPerExchange), 1)
	c.Batch = 16
	c.Backoff = 0
	c.Poll = 0
	return c, m
}

// halfStepJob moves 5 steps per segment
func halfStepJob(t *testing.T, segments int) []uint32 {
	t.Helper()
	j := job.New("half-step", 1)
	for i := 0; i < segments; i++ {
		if err := j.AddMove(protocol.AuxPolygon, 10, protocol.Coeffs{1 << 29, 0, 0}); err != nil {
			t.Fatalf("AddMove failed: %v", err)
		}
	}
	j.End()
	words, err := j.Words()
	if err != nil {
		t.Fatalf("Words failed: %v", err)
	}
	return words
}

func TestStatusStartStop(t *testing.T) {
	c, _ := newClient(t, 1)

	st, err := c.Status()
	if err != nil || st.State != protocol.StateIdle {
		t.Fatalf("Status = %s, %v", st, err)
	}
	if _, err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if st, _ := c.Status(); st.State != protocol.StateMoving {
		t.Errorf("After START state %s, want MOVING", st.State)
	}
	if _, err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if st, _ := c.Status(); st.State != protocol.StateStopped {
		t.Errorf("After STOP state %s, want STOPPED", st.State)
	}
	if c.Last().State != protocol.StateStopped {
		t.Errorf("Last() = %s", c.Last())
	}
}

func TestStreamWithBackpressure(t *testing.T) {
	c, m := newClient(t, 8)
	words := halfStepJob(t, 20)
	if len(words) <= m.Queue.Capacity() {
		t.Fatalf("Job of %d words fits the queue, test needs backpressure", len(words))
	}

	ctx := context.Background()
	if err := c.Stream(ctx, words); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	st, err := c.WaitState(ctx, protocol.StateStopped)
	if err != nil {
		t.Fatalf("WaitState failed: %v (%s)", err, st)
	}

	if pos := m.Sequencer.Position(0); pos != 100 {
		t.Errorf("Position %d, want 100", pos)
	}
	written, rejected := c.Stats()
	if written != uint64(len(words)) {
		t.Errorf("Written %d, want %d", written, len(words))
	}
	if rejected == 0 {
		t.Error("Expected rejected writes")
	}
	if st.Full || st.DispatchError {
		t.Errorf("Final status %s", st)
	}
}

func TestSendScanline(t *testing.T) {
	c, m := newClient(t, 0)
	err := c.Send(context.Background(), protocol.Instruction{
		Op:     protocol.OpScanline,
		Pixels: 3,
		Bitmap: protocol.PackPixels([]bool{true, false, true}),
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if m.Queue.Len() != 2 {
		t.Errorf("Queue holds %d words, want 2", m.Queue.Len())
	}

	err = c.Send(context.Background(), protocol.Instruction{Op: protocol.OpMove, Ticks: 1})
	if errors.Cause(err) != protocol.ErrAxisCount {
		t.Errorf("Move without coefficients: %v", err)
	}
}

func TestWriteBackpressureGivesUp(t *testing.T) {
	c, _ := newClient(t, 8)
	c.MaxRetries = 3

	err := c.Write(context.Background(), make([]uint32, 40))
	if errors.Cause(err) != ErrBackpressure {
		t.Errorf("Write to a stalled core: %v", err)
	}
	_, rejected := c.Stats()
	if rejected == 0 {
		t.Error("Expected rejected writes")
	}
}

func TestWriteToFaultedCore(t *testing.T) {
	c, _ := newClient(t, 1)

	resp, err := c.Exchange(protocol.Transfer{Cmd: 0x7F})
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if !resp[0].DispatchError {
		t.Errorf("Invalid command response %s", resp[0])
	}

	err = c.Write(context.Background(), make([]uint32, 40))
	if errors.Cause(err) != ErrFault {
		t.Errorf("Write to a faulted core: %v", err)
	}
	if _, err := c.WaitState(context.Background(), protocol.StateMoving); err != ErrFault {
		t.Errorf("WaitState on a faulted core: %v", err)
	}
}

func TestWaitStateCancelled(t *testing.T) {
	c, _ := newClient(t, 1)
	c.Poll = 1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.WaitState(ctx, protocol.StateMoving); err != context.Canceled {
		t.Errorf("WaitState = %v, want context.Canceled", err)
	}
}

func TestMonitor(t *testing.T) {
	c, _ := newClient(t, 1)
	if _, err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []protocol.State
	err := c.Monitor(ctx, time.Millisecond, func(st protocol.Status) {
		seen = append(seen, st.State)
		if len(seen) == 3 {
			cancel()
		}
	})
	if err != context.Canceled {
		t.Errorf("Monitor = %v, want context.Canceled", err)
	}
	if len(seen) != 3 {
		t.Fatalf("Monitor reported %d times, want 3", len(seen))
	}
	for i, st := range seen {
		if st != protocol.StateMoving {
			t.Errorf("Report %d state %s, want MOVING", i, st)
		}
	}
}
