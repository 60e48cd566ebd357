//go:build !wasm

package link

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// Port represents a serial port
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// SerialConfig holds serial port configuration
type SerialConfig struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this)
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultSerialConfig returns the configuration for the USB CDC port of
// the rp2040 target
func DefaultSerialConfig(device string) *SerialConfig {
	return &SerialConfig{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 500,
	}
}

// StreamLink runs transfers over a byte stream: the request bytes go out
// and one response byte per transfer comes back
type StreamLink struct {
	port Port
	resp []byte
}

// NewStreamLink wraps an open port
func NewStreamLink(port Port) *StreamLink {
	return &StreamLink{port: port}
}

// OpenSerial opens a serial port with tarm/serial
func OpenSerial(cfg *SerialConfig) (*StreamLink, error) {
	if cfg == nil {
		return nil, errors.New("link: serial config cannot be nil")
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "link: open serial port %s", cfg.Device)
	}
	return NewStreamLink(&tarmPort{port}), nil
}

// Exchange implements Link
func (l *StreamLink) Exchange(frame []byte, transfers int) ([]byte, error) {
	if _, err := l.port.Write(frame); err != nil {
		return nil, errors.Wrap(err, "link: write")
	}
	if err := l.port.Flush(); err != nil {
		return nil, errors.Wrap(err, "link: flush")
	}

	if cap(l.resp) < transfers {
		l.resp = make([]byte, transfers)
	}
	resp := l.resp[:transfers]
	n, err := io.ReadFull(l.port, resp)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return resp[:n], errors.Wrapf(ErrShortResponse, "got %d of %d", n, transfers)
	}
	if err != nil {
		return nil, errors.Wrap(err, "link: read")
	}
	return resp, nil
}

// Close closes the port
func (l *StreamLink) Close() error {
	return l.port.Close()
}

// tarmPort adapts *serial.Port to Port
type tarmPort struct {
	*serial.Port
}

// Flush is a no-op: tarm/serial writes are unbuffered
func (p *tarmPort) Flush() error {
	return nil
}
