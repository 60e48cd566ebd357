// Package job stores instruction streams as CBOR files
package job

import (
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"polyscan/protocol"
)

// Entry is one instruction: its header fields and trailing words
type Entry struct {
	_    struct{} `cbor:",toarray"`
	Op   uint8
	Aux  uint8
	Arg  uint16
	Data []uint32
}

// Job is a complete instruction stream for a core with Axes axes
type Job struct {
	Name     string  `cbor:"1,keyasint"`
	Axes     int     `cbor:"2,keyasint"`
	TickFreq uint32  `cbor:"3,keyasint,omitempty"`
	Entries  []Entry `cbor:"4,keyasint"`
}

// New creates an empty job
func New(name string, axes int) *Job {
	return &Job{Name: name, Axes: axes}
}

// Add appends an instruction
func (j *Job) Add(in protocol.Instruction) error {
	words, err := protocol.Encode(in, j.Axes)
	if err != nil {
		return errors.Wrapf(err, "job: entry %d", len(j.Entries))
	}
	op, aux, arg := protocol.SplitHeader(words[0])
	j.Entries = append(j.Entries, Entry{
		Op:   uint8(op),
		Aux:  aux,
		Arg:  arg,
		Data: words[1:],
	})
	return nil
}

// AddMove appends a motion segment
func (j *Job) AddMove(aux uint8, ticks int, coeffs ...protocol.Coeffs) error {
	if ticks < 0 || ticks > protocol.MaxTicks {
		return errors.Wrapf(protocol.ErrTicksRange, "job: entry %d", len(j.Entries))
	}
	return j.Add(protocol.Instruction{Op: protocol.OpMove, Aux: aux, Ticks: uint16(ticks), Coeffs: coeffs})
}

// AddScanline appends one line of pixels
func (j *Job) AddScanline(aux uint8, pixels []bool) error {
	if len(pixels) > protocol.MaxTicks {
		return errors.Wrapf(protocol.ErrPixelRange, "job: entry %d", len(j.Entries))
	}
	return j.Add(protocol.Instruction{
		Op:     protocol.OpScanline,
		Aux:    aux,
		Pixels: uint16(len(pixels)),
		Bitmap: protocol.PackPixels(pixels),
	})
}

// End appends the end-of-job sentinel
func (j *Job) End() {
	j.Entries = append(j.Entries, Entry{Op: uint8(protocol.OpEmpty)})
}

// Words validates every entry and returns the queue words of the job
func (j *Job) Words() ([]uint32, error) {
	var words []uint32
	for i, e := range j.Entries {
		start := len(words)
		words = append(words, protocol.Header(protocol.Opcode(e.Op), e.Aux, e.Arg))
		words = append(words, e.Data...)
		_, n, err := protocol.Decode(words[start:], j.Axes)
		if err != nil {
			return nil, errors.Wrapf(err, "job: entry %d", i)
		}
		if n != len(words)-start {
			return nil, errors.Errorf("job: entry %d carries %d words, want %d", i, len(words)-start, n)
		}
	}
	return words, nil
}

// Instructions decodes every entry
func (j *Job) Instructions() ([]protocol.Instruction, error) {
	words, err := j.Words()
	if err != nil {
		return nil, err
	}
	var out []protocol.Instruction
	for len(words) > 0 {
		in, n, err := protocol.Decode(words, j.Axes)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
		words = words[n:]
	}
	return out, nil
}

// Save writes the job in deterministic CBOR
func (j *Job) Save(w io.Writer) error {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return errors.Wrap(err, "job: encoder")
	}
	b, err := enc.Marshal(j)
	if err != nil {
		return errors.Wrap(err, "job: encode")
	}
	_, err = w.Write(b)
	return errors.Wrap(err, "job: write")
}

// Load reads a job written by Save. Unknown fields are rejected.
func Load(r io.Reader) (*Job, error) {
	mode, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return nil, errors.Wrap(err, "job: decoder")
	}

	j := new(Job)
	if err := mode.NewDecoder(r).Decode(j); err != nil {
		return nil, errors.Wrap(err, "job: decode")
	}
	if j.Axes <= 0 || j.Axes > protocol.MaxAxes {
		return nil, errors.Wrapf(protocol.ErrAxisCount, "job: %d axes", j.Axes)
	}
	return j, nil
}
