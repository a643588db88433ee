package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the deployment configuration of the acquisition stage.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Sampling  SamplingConfig  `yaml:"sampling"`
	ADC       ADCConfig       `yaml:"adc"`
	Guard     GuardConfig     `yaml:"guard"`
	Notch     NotchConfig     `yaml:"notch"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Capture   CaptureConfig   `yaml:"capture"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// SamplingConfig contains the fixed sampling rate.
type SamplingConfig struct {
	RateHz int `yaml:"rate_hz"`
}

// Period returns the tick period derived from the sampling rate.
func (s SamplingConfig) Period() time.Duration {
	if s.RateHz <= 0 {
		return 0
	}
	return time.Second / time.Duration(s.RateHz)
}

// ADCConfig describes the analog front end.
type ADCConfig struct {
	VRef           float64 `yaml:"vref"`            // Reference voltage (V)
	ResolutionBits int     `yaml:"resolution_bits"` // ADC resolution in bits
}

// GuardConfig contains impedance guard parameters.
type GuardConfig struct {
	Threshold float64       `yaml:"threshold"` // Maximum accepted delta between consecutive readings (V)
	Lockout   time.Duration `yaml:"lockout"`   // Signal lockout after an anomaly
}

// NotchConfig contains the tuning of the notch filter bank.
type NotchConfig struct {
	Q           float64   `yaml:"q"`
	Frequencies []float64 `yaml:"frequencies"` // Center frequencies (Hz), in cascade order
}

// ToneConfig is a single sinusoid injected by the simulator.
type ToneConfig struct {
	Frequency float64 `yaml:"frequency"` // Hz
	Amplitude float64 `yaml:"amplitude"` // V, peak
}

// SimulatorConfig contains synthetic ADC configuration.
type SimulatorConfig struct {
	DC             float64       `yaml:"dc"`              // Baseline voltage (V)
	NoiseLevel     float64       `yaml:"noise_level"`     // Uniform noise amplitude (V)
	Tones          []ToneConfig  `yaml:"tones"`           // Injected tones
	SpikePeriod    time.Duration `yaml:"spike_period"`    // Time between probe spikes (0 = disabled)
	SpikeAmplitude float64       `yaml:"spike_amplitude"` // Spike offset (V)
	Seed           int64         `yaml:"seed"`            // Noise seed
}

// CaptureConfig contains bench capture configuration.
type CaptureConfig struct {
	Database string `yaml:"database"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyUSB0",
			BaudRate: 115200,
		},
		Sampling: SamplingConfig{
			RateHz: 250,
		},
		ADC: ADCConfig{
			VRef:           5.0,
			ResolutionBits: 10, // ATmega328P class ADC
		},
		Guard: GuardConfig{
			Threshold: 2.5,
			Lockout:   50 * time.Millisecond,
		},
		Notch: NotchConfig{
			Q:           30,
			Frequencies: []float64{8.57, 10.9, 15.0, 20.0},
		},
		Simulator: SimulatorConfig{
			DC:         2.0,
			NoiseLevel: 0.005,
			Tones: []ToneConfig{
				{Frequency: 15.0, Amplitude: 0.5},
			},
			SpikePeriod:    0,
			SpikeAmplitude: 3.0,
			Seed:           1,
		},
		Capture: CaptureConfig{
			Database: "capture.db",
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
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

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

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Sampling.RateHz <= 0 {
		c.Sampling.RateHz = def.Sampling.RateHz
	}

	if c.ADC.VRef == 0 {
		c.ADC.VRef = def.ADC.VRef
	}
	if c.ADC.ResolutionBits == 0 {
		c.ADC.ResolutionBits = def.ADC.ResolutionBits
	}

	if c.Guard.Threshold == 0 {
		c.Guard.Threshold = def.Guard.Threshold
	}
	if c.Guard.Lockout == 0 {
		c.Guard.Lockout = def.Guard.Lockout
	}

	if c.Notch.Q == 0 {
		c.Notch.Q = def.Notch.Q
	}
	if len(c.Notch.Frequencies) == 0 {
		c.Notch.Frequencies = def.Notch.Frequencies
	}

	if c.Capture.Database == "" {
		c.Capture.Database = def.Capture.Database
	}
}
