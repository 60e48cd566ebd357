// Digital output lines driven by the control loop
package core

// DigitalOut flags
const (
	DF_ON         = 1 << 0 // Current pin state (1=high, 0=low)
	DF_INVERT     = 1 << 1 // Pin is active low
	DF_DEFAULT_ON = 1 << 3 // State applied on shutdown
)

// DigitalOut is one machine output line. It only touches the hardware
// when the logical value changes.
type DigitalOut struct {
	Name  string
	Pin   GPIOPin
	Flags uint8

	driver  GPIODriver
	changes uint32
}

// NewDigitalOut configures pin as an output and drives it to its default
// state. A nil driver gives a simulated line.
func NewDigitalOut(name string, driver GPIODriver, pin GPIOPin, invert, defaultOn bool) (*DigitalOut, error) {
	d := &DigitalOut{Name: name, Pin: pin, driver: driver}
	if invert {
		d.Flags |= DF_INVERT
	}
	if defaultOn {
		d.Flags |= DF_DEFAULT_ON
		d.Flags |= DF_ON
	}
	if driver != nil {
		if err := driver.ConfigureOutput(pin); err != nil {
			return nil, err
		}
		if err := d.write(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Set drives the logical value
func (d *DigitalOut) Set(on bool) {
	if on == d.On() {
		return
	}
	d.Flags ^= DF_ON
	d.changes++
	if d.driver != nil {
		d.write()
	}
}

func (d *DigitalOut) write() error {
	return d.driver.SetPin(d.Pin, d.On() != (d.Flags&DF_INVERT != 0))
}

// On returns the logical value
func (d *DigitalOut) On() bool {
	return d.Flags&DF_ON != 0
}

// Changes returns how many times the value changed
func (d *DigitalOut) Changes() uint32 {
	return d.changes
}

// Shutdown returns the line to its default state
func (d *DigitalOut) Shutdown() {
	d.Set(d.Flags&DF_DEFAULT_ON != 0)
}
