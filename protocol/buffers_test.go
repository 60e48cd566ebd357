package protocol

import "testing"

func TestSliceInputBuffer(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	buf := NewSliceInputBuffer(data)

	if buf.Available() != 5 {
		t.Errorf("Expected 5 bytes available, got %d", buf.Available())
	}

	buf.Pop(2)
	if buf.Available() != 3 {
		t.Errorf("After popping 2, expected 3 bytes available, got %d", buf.Available())
	}

	bufData := buf.Data()
	if len(bufData) != 3 || bufData[0] != 3 {
		t.Errorf("After popping 2, expected first byte to be 3, got %v", bufData)
	}

	buf.Pop(10)
	if buf.Available() != 0 {
		t.Errorf("Over-pop should empty the buffer, got %d", buf.Available())
	}
}

func TestScratchOutput(t *testing.T) {
	scratch := NewScratchOutput()

	scratch.Output([]byte{1, 2, 3})
	scratch.Output([]byte{4, 5})

	result := scratch.Result()
	if len(result) != 5 || result[0] != 1 || result[4] != 5 {
		t.Errorf("Unexpected result %v", result)
	}

	scratch.Reset()
	if len(scratch.Result()) != 0 {
		t.Errorf("After reset, expected empty result, got %v", scratch.Result())
	}
}

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(10)

	if !fifo.IsEmpty() {
		t.Error("New FIFO should be empty")
	}

	written := fifo.Write([]byte{1, 2, 3, 4, 5})
	if written != 5 {
		t.Errorf("Expected to write 5 bytes, wrote %d", written)
	}

	readBuf := make([]byte, 3)
	read := fifo.Read(readBuf)
	if read != 3 {
		t.Errorf("Expected to read 3 bytes, read %d", read)
	}
	if readBuf[0] != 1 || readBuf[1] != 2 || readBuf[2] != 3 {
		t.Errorf("Read data mismatch: got %v", readBuf)
	}

	fifo.Pop(1)
	if fifo.Available() != 1 {
		t.Errorf("After popping 1, expected 1 available, got %d", fifo.Available())
	}

	// Every slot is usable
	fifo.Reset()
	bigData := make([]byte, 12)
	written = fifo.Write(bigData)
	if written != 10 {
		t.Errorf("Expected to write 10 bytes to size-10 FIFO, wrote %d", written)
	}
	if fifo.Free() != 0 {
		t.Errorf("Expected no free space, got %d", fifo.Free())
	}
}

func TestFifoBufferWrapAround(t *testing.T) {
	fifo := NewFifoBuffer(5)

	fifo.Write([]byte{1, 2, 3, 4})
	fifo.Read(make([]byte, 2))

	if written := fifo.Write([]byte{5, 6, 7}); written != 3 {
		t.Errorf("Expected to write 3 bytes, wrote %d", written)
	}

	data := fifo.Data()
	want := []byte{3, 4, 5, 6, 7}
	if len(data) != len(want) {
		t.Fatalf("Wrapped Data() length %d, want %d", len(data), len(want))
	}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("Wrap-around data mismatch: got %v", data)
			break
		}
	}
}
