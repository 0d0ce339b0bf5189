package robot

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LedGroup identifies one of the two status LEDs.
type LedGroup string

const (
	LeftLed  LedGroup = "LEFT"
	RightLed LedGroup = "RIGHT"
)

// Color is an LED color expressed as red and green brightness fractions [0, 1].
type Color struct {
	Name  string
	Red   float64
	Green float64
}

// Status LED colors.
var (
	Black  = Color{Name: "BLACK", Red: 0, Green: 0}
	Red    = Color{Name: "RED", Red: 1, Green: 0}
	Green  = Color{Name: "GREEN", Red: 0, Green: 1}
	Amber  = Color{Name: "AMBER", Red: 1, Green: 1}
	Orange = Color{Name: "ORANGE", Red: 1, Green: 0.5}
	Yellow = Color{Name: "YELLOW", Red: 0.1, Green: 1}
)

// Leds controls the robot's status LEDs.
type Leds interface {
	SetColor(group LedGroup, color Color) error
	AllOff() error
}

// LedConfig names the sysfs LED devices backing each group.
type LedConfig struct {
	Dir        string `json:"dir" mapstructure:"dir"`
	LeftRed    string `json:"left_red" mapstructure:"left_red"`
	LeftGreen  string `json:"left_green" mapstructure:"left_green"`
	RightRed   string `json:"right_red" mapstructure:"right_red"`
	RightGreen string `json:"right_green" mapstructure:"right_green"`
}

// DefaultLedConfig returns the LED names used by the ev3dev brick.
func DefaultLedConfig() LedConfig {
	return LedConfig{
		Dir:        "/sys/class/leds",
		LeftRed:    "led0:red:brick-status",
		LeftGreen:  "led0:green:brick-status",
		RightRed:   "led1:red:brick-status",
		RightGreen: "led1:green:brick-status",
	}
}

type sysfsLed struct {
	path          string
	maxBrightness int
}

func (l sysfsLed) set(fraction float64) error {
	value := int(math.Round(fraction * float64(l.maxBrightness)))
	return os.WriteFile(filepath.Join(l.path, "brightness"), []byte(strconv.Itoa(value)), 0644)
}

// SysfsLeds drives status LEDs through the Linux LED class.
type SysfsLeds struct {
	red   map[LedGroup]sysfsLed
	green map[LedGroup]sysfsLed
}

// OpenLeds opens the LEDs described by cfg. When the LED directory does not
// exist a no-op implementation is returned.
func OpenLeds(cfg LedConfig) (Leds, error) {
	if _, err := os.Stat(cfg.Dir); errors.Is(err, os.ErrNotExist) {
		return NopLeds{}, nil
	}

	leds := &SysfsLeds{
		red:   make(map[LedGroup]sysfsLed, 2),
		green: make(map[LedGroup]sysfsLed, 2),
	}

	devices := []struct {
		group  LedGroup
		name   string
		target map[LedGroup]sysfsLed
	}{
		{LeftLed, cfg.LeftRed, leds.red},
		{LeftLed, cfg.LeftGreen, leds.green},
		{RightLed, cfg.RightRed, leds.red},
		{RightLed, cfg.RightGreen, leds.green},
	}
	for _, d := range devices {
		led, err := openSysfsLed(filepath.Join(cfg.Dir, d.name))
		if err != nil {
			return nil, err
		}
		d.target[d.group] = led
	}

	return leds, nil
}

func openSysfsLed(path string) (sysfsLed, error) {
	data, err := os.ReadFile(filepath.Join(path, "max_brightness"))
	if err != nil {
		return sysfsLed{}, fmt.Errorf("read max brightness: %w", err)
	}
	maxBrightness, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return sysfsLed{}, fmt.Errorf("parse max brightness of %s: %w", path, err)
	}
	return sysfsLed{path: path, maxBrightness: maxBrightness}, nil
}

// SetColor sets both channels of the LED group.
func (l *SysfsLeds) SetColor(group LedGroup, color Color) error {
	red, ok := l.red[group]
	if !ok {
		return fmt.Errorf("unknown LED group %q", group)
	}
	if err := red.set(color.Red); err != nil {
		return fmt.Errorf("set %s red: %w", group, err)
	}
	if err := l.green[group].set(color.Green); err != nil {
		return fmt.Errorf("set %s green: %w", group, err)
	}
	return nil
}

// AllOff turns both LED groups black.
func (l *SysfsLeds) AllOff() error {
	return SetBoth(l, Black)
}

// SetBoth sets the left and right LEDs to the same color.
func SetBoth(leds Leds, color Color) error {
	if err := leds.SetColor(LeftLed, color); err != nil {
		return err
	}
	return leds.SetColor(RightLed, color)
}

// NopLeds is used on machines without status LEDs.
type NopLeds struct{}

func (NopLeds) SetColor(LedGroup, Color) error { return nil }
func (NopLeds) AllOff() error                  { return nil }
