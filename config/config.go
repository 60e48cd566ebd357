// Package config loads the machine description: axes, buffer sizes,
// photodiode debounce and pin assignments.
package config

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"polyscan/core"
	"polyscan/protocol"
)

var (
	ErrNoAxes     = errors.New("config: at least one axis is required")
	ErrTooMany    = errors.New("config: too many axes for the instruction format")
	ErrQueueDepth = errors.New("config: queue depth cannot hold one instruction")
	ErrDebounce   = errors.New("config: photodiode thresholds must be nonzero")
	ErrPin        = errors.New("config: invalid pin name")
	ErrAuxPins    = errors.New("config: at most 5 aux pins")
)

// AxisConfig describes one stepper axis
type AxisConfig struct {
	Name       string `json:"name"`
	StepPin    string `json:"step_pin"`
	DirPin     string `json:"dir_pin"`
	InvertStep bool   `json:"invert_step,omitempty"`
	InvertDir  bool   `json:"invert_dir,omitempty"`
}

// PhotodiodeConfig tunes facet detection
type PhotodiodeConfig struct {
	NLow             uint16 `json:"n_low"`
	NHigh            uint16 `json:"n_high"`
	SkipSynchronizer bool   `json:"skip_synchronizer,omitempty"` // simulation only
}

// PinConfig assigns the machine I/O. Empty names leave outputs simulated.
type PinConfig struct {
	Laser          string   `json:"laser,omitempty"`
	Polygon        string   `json:"polygon,omitempty"`
	Photodiode     string   `json:"photodiode,omitempty"`
	Aux            []string `json:"aux,omitempty"`
	LaserActiveLow bool     `json:"laser_active_low,omitempty"`
}

// Config is the complete machine configuration
type Config struct {
	Axes          []AxisConfig     `json:"axes"`
	QueueDepth    int              `json:"queue_depth"`
	ScanlineDepth int              `json:"scanline_depth"`
	MaxPixels     int              `json:"max_pixels"`
	TicksPerPixel uint16           `json:"ticks_per_pixel"`
	TickFreq      uint32           `json:"tick_freq"`
	Photodiode    PhotodiodeConfig `json:"photodiode"`
	Pins          PinConfig        `json:"pins"`
	Debug         bool             `json:"debug,omitempty"`
}

// LoadConfig parses a JSON configuration and fills in defaults
func LoadConfig(jsonData []byte) (*Config, error) {
	var config Config

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(config *Config) {
	if config.ScanlineDepth == 0 {
		config.ScanlineDepth = 4
	}
	if config.MaxPixels == 0 {
		config.MaxPixels = 1024
	}
	if config.TicksPerPixel == 0 {
		config.TicksPerPixel = 1
	}
	if config.TickFreq == 0 {
		config.TickFreq = core.DefaultTickFreq
	}
	if config.Photodiode.NLow == 0 {
		config.Photodiode.NLow = 3
	}
	if config.Photodiode.NHigh == 0 {
		config.Photodiode.NHigh = 10
	}

	// Room for a full scanline plus a few moves
	minDepth := protocol.ScanlineWords(config.MaxPixels) + 4*protocol.InstructionWords(len(config.Axes))
	if config.QueueDepth == 0 {
		config.QueueDepth = 256
		if config.QueueDepth < minDepth {
			config.QueueDepth = minDepth
		}
	}

	for i := range config.Axes {
		if config.Axes[i].Name == "" {
			config.Axes[i].Name = defaultAxisName(i)
		}
	}
}

func defaultAxisName(i int) string {
	const names = "xyzabcuv"
	if i < len(names) {
		return names[i : i+1]
	}
	return "axis" + strconv.Itoa(i)
}

// Validate checks the configuration against the limits of the core
func (c *Config) Validate() error {
	if len(c.Axes) == 0 {
		return ErrNoAxes
	}
	if len(c.Axes) > protocol.MaxAxes {
		return ErrTooMany
	}
	if c.QueueDepth < protocol.InstructionWords(len(c.Axes)) || c.QueueDepth < protocol.ScanlineWords(c.MaxPixels) {
		return ErrQueueDepth
	}
	if c.Photodiode.NLow == 0 || c.Photodiode.NHigh == 0 {
		return ErrDebounce
	}
	if len(c.Pins.Aux) > 5 {
		return ErrAuxPins
	}
	return nil
}

// Default returns a single-axis configuration suitable for simulation
func Default() *Config {
	config := &Config{
		Axes: []AxisConfig{
			{Name: "y", StepPin: "gpio2", DirPin: "gpio3"},
		},
	}
	applyDefaults(config)
	return config
}

// ParsePin converts a pin name ("gpio12", "GP12" or "12") to a pin number
func ParsePin(name string) (core.GPIOPin, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.TrimPrefix(s, "gpio")
	s = strings.TrimPrefix(s, "gp")
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, ErrPin
	}
	return core.GPIOPin(n), nil
}

// MachineConfig converts the configuration for core.NewMachine. steppers
// and gpio may be nil for simulation.
func (c *Config) MachineConfig(gpio core.GPIODriver, steppers []core.StepperBackend) (core.MachineConfig, error) {
	mc := core.MachineConfig{
		QueueDepth:    c.QueueDepth,
		ScanlineDepth: c.ScanlineDepth,
		MaxPixels:     c.MaxPixels,
		TicksPerPixel: c.TicksPerPixel,
		Photodiode: core.PhotodiodeConfig{
			NLow:        c.Photodiode.NLow,
			NHigh:       c.Photodiode.NHigh,
			Synchronize: !c.Photodiode.SkipSynchronizer,
		},
		Steppers: steppers,
		GPIO:     gpio,
	}

	for _, axis := range c.Axes {
		ac := core.AxisConfig{
			Name:       axis.Name,
			InvertStep: axis.InvertStep,
			InvertDir:  axis.InvertDir,
		}
		if axis.StepPin != "" {
			pin, err := ParsePin(axis.StepPin)
			if err != nil {
				return mc, err
			}
			ac.StepPin = uint8(pin)
		}
		if axis.DirPin != "" {
			pin, err := ParsePin(axis.DirPin)
			if err != nil {
				return mc, err
			}
			ac.DirPin = uint8(pin)
		}
		mc.Axes = append(mc.Axes, ac)
	}

	if c.Pins.Photodiode == "" {
		return mc, nil
	}

	pins := &core.MachinePins{LaserActiveLow: c.Pins.LaserActiveLow}
	var err error
	if pins.Photodiode, err = ParsePin(c.Pins.Photodiode); err != nil {
		return mc, err
	}
	if pins.Laser, err = ParsePin(c.Pins.Laser); err != nil {
		return mc, err
	}
	if pins.Polygon, err = ParsePin(c.Pins.Polygon); err != nil {
		return mc, err
	}
	for _, name := range c.Pins.Aux {
		pin, err := ParsePin(name)
		if err != nil {
			return mc, err
		}
		pins.Aux = append(pins.Aux, pin)
	}
	mc.Pins = pins
	return mc, nil
}

// Apply sets the process-wide core settings: tick frequency and debug
func (c *Config) Apply() {
	core.SetTickFreq(c.TickFreq)
	core.SetDebugEnabled(c.Debug)
}
