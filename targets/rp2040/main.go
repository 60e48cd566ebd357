//go:build rp2040 || rp2350

package main

import (
	"machine"
	"runtime"
	"time"

	"polyscan/config"
	"polyscan/core"
	"polyscan/protocol"
)

// boardConfig is the pin map of the reference board
const boardConfig = `{
	"axes": [{"name": "y", "step_pin": "gpio2", "dir_pin": "gpio3"}],
	"queue_depth": 1024,
	"scanline_depth": 4,
	"max_pixels": 2048,
	"photodiode": {"n_low": 3, "n_high": 10},
	"pins": {"laser": "gpio15", "polygon": "gpio14", "photodiode": "gpio13"}
}`

// maxCatchup bounds the ticks run in one pass before the loop services USB
// again; a longer stall drops ticks
const maxCatchup = 64

var (
	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput

	m *core.Machine

	// Debug counters
	droppedTicks             uint32
	msgerrors                uint32
	consecutiveWriteFailures uint32
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()

	core.SetGPIODriver(NewRPGPIODriver())
	core.SetStepperBackendFactory(newStepperBackend)

	cfg, err := config.LoadConfig([]byte(boardConfig))
	if err != nil {
		halt("config: " + err.Error())
	}
	cfg.Apply()
	// The tick rate is fixed by the hardware timer
	InitClock()
	if core.IsDebugEnabled() {
		core.SetDebugWriter(func(s string) { println(s) })
		core.InitAsyncDebug()
	}

	mc, err := cfg.MachineConfig(core.DefaultGPIO(), nil)
	if err != nil {
		halt("config: " + err.Error())
	}
	m, err = core.NewMachine(mc)
	if err != nil {
		halt("machine: " + err.Error())
	}

	sched := core.NewScheduler()
	m.Attach(sched)

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	go usbReaderLoop()

	last := GetHardwareTime()
	faulted := false
	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
					m.Shutdown()
				}
			}()

			// Transfer domain
			if inputBuffer.Available() > 0 {
				m.Receive(inputBuffer, outputBuffer)
			}
			writeUSB()

			// Tick domain: one tick per elapsed hardware microsecond
			now := GetHardwareTime()
			behind := now - last
			if behind > maxCatchup {
				droppedTicks += behind - maxCatchup
				behind = maxCatchup
			}
			last = now
			for ; behind > 0; behind-- {
				sched.Step()
			}

			// Dump the timing ring once per fault
			inError := m.Dispatcher.State() == protocol.StateError
			if inError && !faulted && core.IsDebugEnabled() {
				m.DumpTiming()
			}
			faulted = inError
		}()

		runtime.Gosched()
	}
}

// usbReaderLoop moves USB bytes into the input FIFO
func usbReaderLoop() {
	// Recover from panics to prevent a firmware crash
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 && inputBuffer.Free() > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(1 * time.Millisecond)
				continue
			}
			inputBuffer.Write([]byte{data})
			continue
		}
		runtime.Gosched()
	}
}

// writeUSB sends the pending response bytes
func writeUSB() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}

	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			// Likely disconnected: after several failures drop stale data
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}

// halt parks the firmware after a fatal setup error, repeating the message
// for a console that attaches late
func halt(msg string) {
	for {
		println(msg)
		time.Sleep(time.Second)
	}
}

// itoa converts int to string without importing strconv (for embedded)
func itoa(i int) string {
	if i == 0 {
		return "0"
	}

	negative := i < 0
	if negative {
		i = -i
	}

	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}

	if negative {
		pos--
		buf[pos] = '-'
	}

	return string(buf[pos:])
}
