package protocol

// InputBuffer provides an abstraction for reading incoming transfer bytes
type InputBuffer interface {
	// Data returns the available data slice
	Data() []byte

	// Available returns the number of bytes available
	Available() int

	// Pop removes n bytes from the front of the buffer
	Pop(n int)
}

// OutputBuffer receives response bytes, one per completed transfer
type OutputBuffer interface {
	Output(data []byte)
}

// SliceInputBuffer implements InputBuffer using a byte slice
type SliceInputBuffer struct {
	data []byte
}

// NewSliceInputBuffer creates a new SliceInputBuffer
func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte {
	return s.data
}

func (s *SliceInputBuffer) Available() int {
	return len(s.data)
}

func (s *SliceInputBuffer) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput implements OutputBuffer using a fixed-size scratch buffer.
// Bytes past the capacity are dropped.
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

// MessageMax is the response capacity of a ScratchOutput
const MessageMax = 512

// NewScratchOutput creates a new ScratchOutput
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
}

// Result returns the accumulated output data
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset clears the buffer
func (s *ScratchOutput) Reset() {
	s.pos = 0
}

// FifoBuffer is a circular byte buffer for link I/O. The fill level is
// tracked explicitly so every slot is usable.
type FifoBuffer struct {
	buf   []byte
	read  int
	count int
}

// NewFifoBuffer creates a new FifoBuffer with the specified capacity
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{
		buf: make([]byte, capacity),
	}
}

// Write appends data and returns the number of bytes accepted
func (f *FifoBuffer) Write(data []byte) int {
	written := 0
	for _, b := range data {
		if f.count == len(f.buf) {
			break
		}
		f.buf[(f.read+f.count)%len(f.buf)] = b
		f.count++
		written++
	}
	return written
}

// Read reads up to len(data) bytes from the FIFO buffer
func (f *FifoBuffer) Read(data []byte) int {
	n := 0
	for n < len(data) && f.count > 0 {
		data[n] = f.buf[f.read]
		f.read = (f.read + 1) % len(f.buf)
		f.count--
		n++
	}
	return n
}

// Available returns the number of bytes available for reading
func (f *FifoBuffer) Available() int {
	return f.count
}

// Free returns the number of bytes available for writing
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.count
}

// Data returns available data as a contiguous slice. When the data wraps it
// is copied, so callers must not hold on to the result across writes.
func (f *FifoBuffer) Data() []byte {
	end := f.read + f.count
	if end <= len(f.buf) {
		return f.buf[f.read:end]
	}
	result := make([]byte, f.count)
	first := copy(result, f.buf[f.read:])
	copy(result[first:], f.buf[:end-len(f.buf)])
	return result
}

// Pop removes n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	if n > f.count {
		n = f.count
	}
	f.read = (f.read + n) % len(f.buf)
	f.count -= n
}

// IsEmpty returns true if the buffer is empty
func (f *FifoBuffer) IsEmpty() bool {
	return f.count == 0
}

// Reset clears the buffer
func (f *FifoBuffer) Reset() {
	f.read = 0
	f.count = 0
}
