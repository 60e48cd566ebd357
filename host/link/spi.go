package link

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"polyscan/protocol"
)

// txer is the full-duplex transfer both SPI stacks provide
type txer interface {
	Tx(w, r []byte) error
}

// PipelinedLink talks to a core behind a full-duplex SPI front end. The
// response to a transfer is shifted out during the first byte of the next
// transfer, so every frame is followed by one EMPTY transfer to clock out
// the last response.
type PipelinedLink struct {
	bus    txer
	closer func() error
	tx, rx []byte
}

// NewSPILink runs transfers over a periph.io SPI connection
func NewSPILink(conn spi.Conn) *PipelinedLink {
	return &PipelinedLink{bus: conn}
}

// NewDriverSPILink runs transfers over a TinyGo drivers SPI bus, for a
// second MCU driving the core
func NewDriverSPILink(bus drivers.SPI) *PipelinedLink {
	return &PipelinedLink{bus: bus}
}

// OpenSPI opens an SPI port through the periph.io registry. An empty name
// selects the first available bus.
func OpenSPI(name string, freq physic.Frequency) (*PipelinedLink, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "link: periph host init")
	}
	p, err := spireg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "link: open spi %q", name)
	}
	c, err := p.Connect(freq, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, errors.Wrap(err, "link: spi connect")
	}
	l := NewSPILink(c)
	l.closer = p.Close
	return l, nil
}

// Exchange implements Link
func (l *PipelinedLink) Exchange(frame []byte, transfers int) ([]byte, error) {
	l.tx = append(append(l.tx[:0], frame...), protocol.CmdEmpty)
	if cap(l.rx) < len(l.tx) {
		l.rx = make([]byte, len(l.tx))
	}
	rx := l.rx[:len(l.tx)]
	if err := l.bus.Tx(l.tx, rx); err != nil {
		return nil, errors.Wrap(err, "link: spi tx")
	}

	// Response k sits at the start of transfer k+1
	starts := append(protocol.TransferStarts(frame), len(frame))
	if len(starts)-1 != transfers {
		return nil, errors.Wrapf(ErrShortResponse, "frame holds %d transfers, want %d", len(starts)-1, transfers)
	}
	resp := make([]byte, transfers)
	for k := range resp {
		resp[k] = rx[starts[k+1]]
	}
	return resp, nil
}

// Close releases the SPI port if this link opened it
func (l *PipelinedLink) Close() error {
	if l.closer != nil {
		return l.closer()
	}
	return nil
}
