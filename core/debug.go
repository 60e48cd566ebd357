package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a control-loop event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Axis      uint8  // Axis or line index, when relevant
	Clock     uint32 // Control tick at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtLoadSegment = 1 // Move loaded: v1=ticks v2=aux
	EvtSegmentDone = 2 // Move completed: v1=step mask
	EvtFacet       = 3 // Photodiode facet pulse
	EvtUnderrun    = 4 // No scanline at facet pulse
	EvtLoadLine    = 5 // Scanline loaded: v1=pixels
	EvtState       = 6 // State change: v1=old v2=new
	EvtFault       = 7 // Dispatch fault: v1=header word
	EvtStepOverrun = 8 // Step delta above one: axis, v1=delta
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled gates debug output and the evaluator overflow trap
	debugEnabled bool = false

	// Timing capture ring, written only from the control tick domain
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8
	timingEnabled  bool = true

	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine.
// Call this from main() after SetDebugWriter.
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer.
// Blocks while the writer runs; the tick loop should use DebugAsync.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output.
// Drops the message if the channel is full.
func DebugAsync(msg string) {
	if debugEnabled && debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// RecordTiming captures an event in the ring buffer. Never blocks.
func RecordTiming(eventType, axis uint8, value1, value2 uint32) {
	if !timingEnabled {
		return
	}
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		Axis:      axis,
		Clock:     GetTime(),
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// TimingEvents returns the recorded events, oldest first
func TimingEvents() []TimingEvent {
	events := make([]TimingEvent, 0, TimingRingSize)
	start := timingRingHead
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := timingRing[(start+i)%TimingRingSize]
		if evt.EventType != 0 {
			events = append(events, evt)
		}
	}
	return events
}

func eventName(t uint8) string {
	switch t {
	case EvtLoadSegment:
		return "LOAD_SEGMENT"
	case EvtSegmentDone:
		return "SEGMENT_DONE"
	case EvtFacet:
		return "FACET"
	case EvtUnderrun:
		return "UNDERRUN!"
	case EvtLoadLine:
		return "LOAD_LINE"
	case EvtState:
		return "STATE"
	case EvtFault:
		return "FAULT!"
	case EvtStepOverrun:
		return "STEP_OVERRUN!"
	default:
		return "UNKNOWN"
	}
}

// DumpTimingRing outputs the timing ring buffer (call on shutdown/error).
// Call from outside the tick loop.
func DumpTimingRing(totalSteps uint64) {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")
	debugPrintln("[TIMING] Total steps executed: " + itoa(int64(totalSteps)))

	for _, evt := range TimingEvents() {
		debugPrintln("[TIMING] " + eventName(evt.EventType) +
			" axis=" + itoa(int64(evt.Axis)) +
			" clock=" + itoa(int64(evt.Clock)) +
			" v1=" + itoa(int64(evt.Value1)) +
			" v2=" + itoa(int64(evt.Value2)))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
}
