package protocol

// Status byte layout
const (
	StatusFull          = 1 << 0 // Queue full, or a write was rejected
	StatusDispatchError = 1 << 1 // Invalid command or dispatch fault latched
	StatusStateShift    = 2
	StatusStateMask     = 0x3 << StatusStateShift
	StatusMemRead       = 1 << 4 // Scanline underrun latched
)

// State is the dispatcher's top-level state
type State uint8

const (
	StateIdle State = iota
	StateMoving
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateMoving:
		return "MOVING"
	case StateStopped:
		return "STOPPED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Status is a decoded status byte
type Status struct {
	Full          bool
	DispatchError bool
	MemRead       bool
	State         State
}

// Byte encodes the status for the wire
func (s Status) Byte() byte {
	b := byte(s.State&0x3) << StatusStateShift
	if s.Full {
		b |= StatusFull
	}
	if s.DispatchError {
		b |= StatusDispatchError
	}
	if s.MemRead {
		b |= StatusMemRead
	}
	return b
}

// DecodeStatus decodes a status byte received from the core
func DecodeStatus(b byte) Status {
	return Status{
		Full:          b&StatusFull != 0,
		DispatchError: b&StatusDispatchError != 0,
		MemRead:       b&StatusMemRead != 0,
		State:         State((b & StatusStateMask) >> StatusStateShift),
	}
}

func (s Status) String() string {
	str := s.State.String()
	if s.Full {
		str += " FULL"
	}
	if s.DispatchError {
		str += " DISPATCHERROR"
	}
	if s.MemRead {
		str += " MEMREAD"
	}
	return str
}
