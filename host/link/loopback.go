package link

import (
	"sync"

	"github.com/pkg/errors"

	"polyscan/core"
	"polyscan/protocol"
)

// Loopback runs transfers against an in-process machine. After every
// exchange it advances the machine by a fixed number of ticks, standing in
// for the tick domain running between host transfers.
type Loopback struct {
	mu    sync.Mutex
	m     *core.Machine
	ticks int
	out   responseBuffer
}

// NewLoopback wraps m. ticksPerExchange may be zero when something else
// drives the machine's ticks.
func NewLoopback(m *core.Machine, ticksPerExchange int) *Loopback {
	return &Loopback{m: m, ticks: ticksPerExchange}
}

// Machine returns the wrapped machine
func (l *Loopback) Machine() *core.Machine {
	return l.m
}

// Exchange implements Link
func (l *Loopback) Exchange(frame []byte, transfers int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.out = l.out[:0]
	l.m.Receive(protocol.NewSliceInputBuffer(frame), &l.out)
	for i := 0; i < l.ticks; i++ {
		l.m.Tick()
	}

	if len(l.out) != transfers {
		return nil, errors.Wrapf(ErrShortResponse, "got %d of %d", len(l.out), transfers)
	}
	return append([]byte(nil), l.out...), nil
}

// Close implements Link
func (l *Loopback) Close() error {
	return nil
}

// responseBuffer is an unbounded protocol.OutputBuffer
type responseBuffer []byte

func (b *responseBuffer) Output(data []byte) {
	*b = append(*b, data...)
}
