// Package client drives a polyscan core over a link: status polling,
// START/STOP and flow-controlled instruction streaming.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"polyscan/host/link"
	"polyscan/protocol"
)

var (
	// ErrFault is returned when the core is in ERROR
	ErrFault = errors.New("client: core in ERROR state")

	// ErrBackpressure is returned when the queue stayed full for more
	// than MaxRetries attempts
	ErrBackpressure = errors.New("client: queue did not drain")
)

// Defaults
const (
	DefaultBatch      = 64
	DefaultBackoff    = 2 * time.Millisecond
	DefaultMaxRetries = 5000
	DefaultPoll       = 10 * time.Millisecond
)

// Client talks to one core
type Client struct {
	link link.Link
	axes int

	Batch      int           // WRITE transfers per exchange
	Backoff    time.Duration // pause after a rejected write
	MaxRetries int           // rejected batches in a row before giving up, 0 = forever
	Poll       time.Duration // WaitState polling interval
	Verbose    bool

	frame []byte
	last  protocol.Status

	written  uint64
	rejected uint64
}

// New creates a client for a core with the given axis count
func New(l link.Link, axes int) *Client {
	return &Client{
		link:       l,
		axes:       axes,
		Batch:      DefaultBatch,
		Backoff:    DefaultBackoff,
		MaxRetries: DefaultMaxRetries,
		Poll:       DefaultPoll,
	}
}

// Axes returns the axis count instructions are encoded for
func (c *Client) Axes() int {
	return c.axes
}

// Close closes the link
func (c *Client) Close() error {
	return c.link.Close()
}

// Last returns the most recent status received
func (c *Client) Last() protocol.Status {
	return c.last
}

// Stats returns the number of words accepted and rejected by the core
func (c *Client) Stats() (written, rejected uint64) {
	return c.written, c.rejected
}

// Exchange sends transfers in one frame and returns their decoded responses
func (c *Client) Exchange(transfers ...protocol.Transfer) ([]protocol.Status, error) {
	c.frame = protocol.AppendTransfers(c.frame[:0], transfers...)
	resp, err := c.link.Exchange(c.frame, len(transfers))
	if err != nil {
		return nil, errors.Wrap(err, "client: exchange")
	}

	out := make([]protocol.Status, len(resp))
	for i, b := range resp {
		out[i] = protocol.DecodeStatus(b)
	}
	if len(out) > 0 {
		c.last = out[len(out)-1]
	}
	return out, nil
}

func (c *Client) command(cmd byte) (protocol.Status, error) {
	resp, err := c.Exchange(protocol.Transfer{Cmd: cmd})
	if err != nil {
		return protocol.Status{}, errors.Wrap(err, protocol.CommandName(cmd))
	}
	return resp[0], nil
}

// Status reads the status byte. It also clears the core's overflow latch.
func (c *Client) Status() (protocol.Status, error) {
	return c.command(protocol.CmdStatus)
}

// Start requests the dispatcher to start or resume
func (c *Client) Start() (protocol.Status, error) {
	return c.command(protocol.CmdStart)
}

// Stop requests the dispatcher to stop and flush the queue
func (c *Client) Stop() (protocol.Status, error) {
	return c.command(protocol.CmdStop)
}

// Send encodes and writes one instruction
func (c *Client) Send(ctx context.Context, in protocol.Instruction) error {
	words, err := protocol.Encode(in, c.axes)
	if err != nil {
		return errors.Wrapf(err, "client: encode %s", in.Op)
	}
	return c.Write(ctx, words)
}

// Write streams words into the instruction queue. A WRITE answered with
// FULL was dropped, as was every write after it in the same batch; those
// are resent after a STATUS read and a backoff.
func (c *Client) Write(ctx context.Context, words []uint32) error {
	return c.write(ctx, words, nil)
}

func (c *Client) write(ctx context.Context, words []uint32, stalled func() error) error {
	batch := c.Batch
	if batch <= 0 {
		batch = DefaultBatch
	}

	ts := make([]protocol.Transfer, 0, batch)
	retries := 0
	for sent := 0; sent < len(words); {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := sent + batch
		if end > len(words) {
			end = len(words)
		}
		ts = ts[:0]
		for _, w := range words[sent:end] {
			ts = append(ts, protocol.Transfer{Cmd: protocol.CmdWrite, Word: w})
		}

		resp, err := c.Exchange(ts...)
		if err != nil {
			return err
		}
		accepted := 0
		for _, st := range resp {
			if st.Full {
				break
			}
			accepted++
		}
		sent += accepted
		c.written += uint64(accepted)
		if accepted == len(ts) {
			retries = 0
			continue
		}
		c.rejected += uint64(len(ts) - accepted)

		st, err := c.Status()
		if err != nil {
			return err
		}
		if st.State == protocol.StateError {
			return errors.Wrapf(ErrFault, "after %d of %d words", sent, len(words))
		}
		if stalled != nil {
			if err := stalled(); err != nil {
				return err
			}
		}

		retries++
		if c.MaxRetries > 0 && retries > c.MaxRetries {
			return errors.Wrapf(ErrBackpressure, "after %d of %d words", sent, len(words))
		}
		if c.Verbose {
			fmt.Printf("  queue full at word %d (%s), backing off\n", sent, st)
		}
		if err := sleep(ctx, c.Backoff); err != nil {
			return err
		}
	}
	return nil
}

// Stream writes a job's words and starts the core once the queue first
// fills, or after the last word if it never does.
func (c *Client) Stream(ctx context.Context, words []uint32) error {
	started := false
	start := func() error {
		if started {
			return nil
		}
		started = true
		_, err := c.Start()
		return err
	}

	if err := c.write(ctx, words, start); err != nil {
		return err
	}
	return start()
}

// WaitState polls STATUS until the core reports want. ERROR ends the wait
// early unless it is the state asked for.
func (c *Client) WaitState(ctx context.Context, want protocol.State) (protocol.Status, error) {
	for {
		st, err := c.Status()
		if err != nil {
			return st, err
		}
		if st.State == want {
			return st, nil
		}
		if st.State == protocol.StateError {
			return st, ErrFault
		}
		if err := sleep(ctx, c.Poll); err != nil {
			return st, err
		}
	}
}

// Monitor calls fn with a fresh status every interval until ctx ends
func (c *Client) Monitor(ctx context.Context, interval time.Duration, fn func(protocol.Status)) error {
	for {
		st, err := c.Status()
		if err != nil {
			return err
		}
		fn(st)
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
