// Package link carries transfers between the host and the control core.
// Every link answers one response byte per transfer, in order.
package link

import (
	"github.com/pkg/errors"
	bugst "go.bug.st/serial"
)

// ErrShortResponse is returned when fewer response bytes than transfers
// came back
var ErrShortResponse = errors.New("link: short response")

// Link exchanges encoded transfers with the core
type Link interface {
	// Exchange sends frame, which holds exactly transfers encoded
	// transfers, and returns their response bytes
	Exchange(frame []byte, transfers int) ([]byte, error)

	Close() error
}

// Ports lists the serial ports present on this host
func Ports() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "link: enumerate serial ports")
	}
	return ports, nil
}
