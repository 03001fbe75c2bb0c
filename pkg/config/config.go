package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NumChannels is the number of current/power/energy channels of the BL0910.
const NumChannels = 10

// Transport modes.
const (
	ModeUART = "uart"
	ModeSPI  = "spi"
)

// Config represents the application configuration.
type Config struct {
	Transport   TransportConfig   `yaml:"transport"`
	Polling     PollingConfig     `yaml:"polling"`
	Reference   Reference         `yaml:"reference"`
	Sensors     SensorsConfig     `yaml:"sensors"`
	Channels    []ChannelConfig   `yaml:"channels"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Mock        MockConfig        `yaml:"mock"`
}

// TransportConfig selects and parameterizes the byte link.
type TransportConfig struct {
	Mode        string        `yaml:"mode"`         // "uart" or "spi"
	Port        string        `yaml:"port"`         // Serial port name (uart)
	BaudRate    int           `yaml:"baud_rate"`    // UART baud rate
	ReadTimeout time.Duration `yaml:"read_timeout"` // Bound on a single response read (uart)
	SPIDevice   string        `yaml:"spi_device"`   // periph SPI port name, empty for the first one
	SPIHz       int64         `yaml:"spi_hz"`       // SPI clock in Hz
}

// PollingConfig contains the scan cadence.
type PollingConfig struct {
	UpdateInterval time.Duration `yaml:"update_interval"` // Restart a scan pass this often
	TickInterval   time.Duration `yaml:"tick_interval"`   // Advance the scanner one step this often
}

// Reference holds the per-register scale factors converting raw register
// contents into physical units.
type Reference struct {
	Voltage          float64 `yaml:"voltage"`           // V per LSB
	Current          float64 `yaml:"current"`           // A per LSB
	Power            float64 `yaml:"power"`             // W per LSB (signed)
	Energy           float64 `yaml:"energy"`            // kWh per CF pulse
	Frequency        float64 `yaml:"frequency"`         // Hz × period LSB
	TotalPower       float64 `yaml:"total_power"`       // W per LSB (signed)
	TotalEnergy      float64 `yaml:"total_energy"`      // kWh per CF pulse
	CurrentTransform float64 `yaml:"current_transform"` // K_I, register counts per A
}

// SensorsConfig enables the shared measurements.
type SensorsConfig struct {
	Voltage     bool `yaml:"voltage"`
	Frequency   bool `yaml:"frequency"`
	Temperature bool `yaml:"temperature"`
	TotalPower  bool `yaml:"total_power"`
	TotalEnergy bool `yaml:"total_energy"`
}

// ChannelConfig enables the measurements of one channel.
type ChannelConfig struct {
	Current     bool `yaml:"current"`
	Power       bool `yaml:"power"`
	Energy      bool `yaml:"energy"`
	PowerFactor bool `yaml:"power_factor"`
}

// MeasurementConfig contains reading post-processing parameters.
type MeasurementConfig struct {
	WindowSeconds  float64 `yaml:"window_seconds"`  // History kept per measurement
	AverageSamples int     `yaml:"average_samples"` // Number of readings to average (0 = disabled, default)
}

// MockConfig contains simulated device configuration.
type MockConfig struct {
	Voltage     float64   `yaml:"voltage"`      // Line voltage (V)
	Frequency   float64   `yaml:"frequency"`    // Line frequency (Hz)
	Temperature float64   `yaml:"temperature"`  // Die temperature (°C)
	Currents    []float64 `yaml:"currents"`     // Per-channel load current (A)
	PowerFactor float64   `yaml:"power_factor"` // Load power factor
	NoiseLevel  float64   `yaml:"noise_level"`  // Relative noise amplitude
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	channels := make([]ChannelConfig, NumChannels)
	for i := range channels {
		channels[i] = ChannelConfig{Current: true, Power: true, Energy: true, PowerFactor: true}
	}

	return &Config{
		Transport: TransportConfig{
			Mode:        ModeUART,
			Port:        "/dev/ttyUSB0",
			BaudRate:    19200,
			ReadTimeout: 50 * time.Millisecond,
			SPIHz:       1000000,
		},
		Polling: PollingConfig{
			UpdateInterval: 10 * time.Second,
			TickInterval:   16 * time.Millisecond,
		},
		Reference: Reference{
			Voltage:          0.000017,
			Current:          0.0000012,
			Power:            0.0003,
			Energy:           0.0001,
			Frequency:        10000000,
			TotalPower:       0.0003,
			TotalEnergy:      0.0001,
			CurrentTransform: 833333.3,
		},
		Sensors: SensorsConfig{
			Voltage:     true,
			Frequency:   true,
			Temperature: true,
			TotalPower:  true,
			TotalEnergy: true,
		},
		Channels: channels,
		Measurement: MeasurementConfig{
			WindowSeconds:  600,
			AverageSamples: 0, // No averaging by default
		},
		Mock: MockConfig{
			Voltage:     230.0,
			Frequency:   50.0,
			Temperature: 35.0,
			Currents:    []float64{1.0, 2.0, 0.5, 0, 0, 0, 0, 0, 0, 0},
			PowerFactor: 0.95,
			NoiseLevel:  0.001,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for values the driver cannot work with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport.Mode {
	case ModeUART, ModeSPI:
	default:
		errs = append(errs, fmt.Errorf("transport.mode must be %q or %q, got %q", ModeUART, ModeSPI, c.Transport.Mode))
	}
	if c.Transport.Mode == ModeUART && c.Transport.Port == "" {
		errs = append(errs, errors.New("transport.port is required in uart mode"))
	}

	if len(c.Channels) > NumChannels {
		errs = append(errs, fmt.Errorf("at most %d channels are supported, got %d", NumChannels, len(c.Channels)))
	}

	if c.Polling.UpdateInterval <= 0 {
		errs = append(errs, errors.New("polling.update_interval must be positive"))
	}
	if c.Polling.TickInterval <= 0 {
		errs = append(errs, errors.New("polling.tick_interval must be positive"))
	}

	if c.Reference.Frequency == 0 {
		errs = append(errs, errors.New("reference.frequency must not be zero"))
	}
	if c.Reference.CurrentTransform == 0 {
		errs = append(errs, errors.New("reference.current_transform must not be zero"))
	}

	return errors.Join(errs...)
}

// Channel returns the configuration of channel n (1-based). Channels beyond
// the configured list are disabled.
func (c *Config) Channel(n int) ChannelConfig {
	if n < 1 || n > len(c.Channels) {
		return ChannelConfig{}
	}
	return c.Channels[n-1]
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Transport.Mode == "" {
		c.Transport.Mode = def.Transport.Mode
	}
	if c.Transport.BaudRate == 0 {
		c.Transport.BaudRate = def.Transport.BaudRate
	}
	if c.Transport.ReadTimeout == 0 {
		c.Transport.ReadTimeout = def.Transport.ReadTimeout
	}
	if c.Transport.SPIHz == 0 {
		c.Transport.SPIHz = def.Transport.SPIHz
	}

	if c.Polling.UpdateInterval == 0 {
		c.Polling.UpdateInterval = def.Polling.UpdateInterval
	}
	if c.Polling.TickInterval == 0 {
		c.Polling.TickInterval = def.Polling.TickInterval
	}

	if c.Reference.Voltage == 0 {
		c.Reference.Voltage = def.Reference.Voltage
	}
	if c.Reference.Current == 0 {
		c.Reference.Current = def.Reference.Current
	}
	if c.Reference.Power == 0 {
		c.Reference.Power = def.Reference.Power
	}
	if c.Reference.Energy == 0 {
		c.Reference.Energy = def.Reference.Energy
	}
	if c.Reference.Frequency == 0 {
		c.Reference.Frequency = def.Reference.Frequency
	}
	if c.Reference.TotalPower == 0 {
		c.Reference.TotalPower = def.Reference.TotalPower
	}
	if c.Reference.TotalEnergy == 0 {
		c.Reference.TotalEnergy = def.Reference.TotalEnergy
	}
	if c.Reference.CurrentTransform == 0 {
		c.Reference.CurrentTransform = def.Reference.CurrentTransform
	}

	if c.Measurement.WindowSeconds == 0 {
		c.Measurement.WindowSeconds = def.Measurement.WindowSeconds
	}

	if c.Mock.Voltage == 0 {
		c.Mock.Voltage = def.Mock.Voltage
	}
	if c.Mock.Frequency == 0 {
		c.Mock.Frequency = def.Mock.Frequency
	}
	if len(c.Mock.Currents) == 0 {
		c.Mock.Currents = def.Mock.Currents
	}
	if c.Mock.PowerFactor == 0 {
		c.Mock.PowerFactor = def.Mock.PowerFactor
	}
}
