package robot

import (
	"errors"
	"fmt"
	"time"
)

// DefaultBaudRate is the Feetech STS bus speed.
const DefaultBaudRate = 1_000_000

// Config holds the hardware configuration of the robot.
type Config struct {
	Port     string        `json:"port" mapstructure:"port"`
	BaudRate int           `json:"baud_rate" mapstructure:"baud_rate"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
	Motors   Calibration   `json:"motors,omitempty" mapstructure:"motors"`
	Leds     LedConfig     `json:"leds" mapstructure:"leds"`
}

// DefaultConfig returns a configuration with default motors and LEDs but no port.
func DefaultConfig() Config {
	return Config{
		BaudRate: DefaultBaudRate,
		Timeout:  100 * time.Millisecond,
		Motors:   DefaultCalibration(),
		Leds:     DefaultLedConfig(),
	}
}

// IsCalibrated returns true if every motor has calibration data
func (c *Config) IsCalibrated() bool {
	for _, name := range AllMotors() {
		if _, ok := c.Motors[name]; !ok {
			return false
		}
	}
	return true
}

// Validate checks the hardware configuration for errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("bus port is required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if !c.IsCalibrated() {
		return errors.New("motors are not configured")
	}
	seen := make(map[int]MotorName, len(c.Motors))
	for name, mc := range c.Motors {
		if other, ok := seen[mc.ID]; ok {
			return fmt.Errorf("motors %s and %s share servo ID %d", other, name, mc.ID)
		}
		seen[mc.ID] = name
	}
	return nil
}
