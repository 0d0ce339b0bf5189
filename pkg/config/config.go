// Package config loads and saves the gadgetbot configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gwillem/gadgetbot/pkg/control"
	"github.com/gwillem/gadgetbot/pkg/gadget"
	"github.com/gwillem/gadgetbot/pkg/robot"
)

const (
	DefaultLogFile = "gadgetbot.log"
	DefaultName    = "GadgetBot"

	// EnvPrefix prefixes environment overrides, e.g. GADGETBOT_BROKER_URL.
	EnvPrefix = "GADGETBOT"
)

// BusConfig holds the servo bus settings.
type BusConfig struct {
	Port     string        `json:"port" mapstructure:"port"`
	BaudRate int           `json:"baud_rate" mapstructure:"baud_rate"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
}

// Config holds the gadgetbot configuration.
type Config struct {
	Name     string                 `json:"name" mapstructure:"name"`
	Bus      BusConfig              `json:"bus" mapstructure:"bus"`
	Motors   robot.Calibration      `json:"motors,omitempty" mapstructure:"motors"`
	Leds     robot.LedConfig        `json:"leds" mapstructure:"leds"`
	Broker   gadget.Config          `json:"broker" mapstructure:"broker"`
	Sequence control.SequenceConfig `json:"sequence" mapstructure:"sequence"`
	LogFile  string                 `json:"log_file" mapstructure:"log_file"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	rc := robot.DefaultConfig()
	return &Config{
		Name: DefaultName,
		Bus: BusConfig{
			BaudRate: rc.BaudRate,
			Timeout:  rc.Timeout,
		},
		Motors:   rc.Motors,
		Leds:     rc.Leds,
		Broker:   gadget.DefaultConfig(),
		Sequence: control.DefaultSequenceConfig(),
		LogFile:  DefaultLogFile,
	}
}

// Robot returns the hardware part of the configuration.
func (c *Config) Robot() robot.Config {
	return robot.Config{
		Port:     c.Bus.Port,
		BaudRate: c.Bus.BaudRate,
		Timeout:  c.Bus.Timeout,
		Motors:   c.Motors,
		Leds:     c.Leds,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	rc := c.Robot()
	if err := rc.Validate(); err != nil {
		return err
	}
	if c.Broker.URL == "" {
		return errors.New("broker url is required")
	}
	if c.Broker.DirectiveTopic == "" {
		return errors.New("broker directive topic is required")
	}
	return c.Sequence.Validate()
}

// LoadConfigFrom loads configuration from path, applying defaults and
// environment overrides. A missing file yields the defaults.
func LoadConfigFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return &cfg, nil
}

// Every leaf needs a default for AutomaticEnv to pick up its variable.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("name", d.Name)

	v.SetDefault("bus.port", d.Bus.Port)
	v.SetDefault("bus.baud_rate", d.Bus.BaudRate)
	v.SetDefault("bus.timeout", d.Bus.Timeout)

	for name, mc := range d.Motors {
		prefix := "motors." + string(name)
		v.SetDefault(prefix+".id", mc.ID)
		v.SetDefault(prefix+".drive_mode", mc.DriveMode)
		v.SetDefault(prefix+".max_velocity", mc.MaxVelocity)
	}

	v.SetDefault("leds.dir", d.Leds.Dir)
	v.SetDefault("leds.left_red", d.Leds.LeftRed)
	v.SetDefault("leds.left_green", d.Leds.LeftGreen)
	v.SetDefault("leds.right_red", d.Leds.RightRed)
	v.SetDefault("leds.right_green", d.Leds.RightGreen)

	v.SetDefault("broker.url", d.Broker.URL)
	v.SetDefault("broker.directive_topic", d.Broker.DirectiveTopic)
	v.SetDefault("broker.event_topic", d.Broker.EventTopic)
	v.SetDefault("broker.endpoint_id", d.Broker.EndpointID)
	v.SetDefault("broker.reconnect_delay", d.Broker.ReconnectDelay)
	v.SetDefault("broker.dedupe_window", d.Broker.DedupeWindow)

	v.SetDefault("sequence.power", d.Sequence.Power)
	v.SetDefault("sequence.duration", d.Sequence.Duration)
	v.SetDefault("sequence.turn_cycles", d.Sequence.TurnCycles)
	v.SetDefault("sequence.queue_size", d.Sequence.QueueSize)

	v.SetDefault("log_file", d.LogFile)
}

// SaveTo saves configuration to a specific file.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Exists returns true if the config file at path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
