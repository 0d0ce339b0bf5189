package robot

import (
	"context"
	"errors"
	"fmt"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// Robot owns the servo bus, the motor modules on it and the status LEDs.
type Robot struct {
	bus    *feetech.Bus
	motors map[MotorName]Motor
	leds   Leds
}

// NewRobot opens the servo bus and initializes every configured motor.
func NewRobot(ctx context.Context, cfg Config) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Open serial bus
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	motors := make(map[MotorName]Motor, len(cfg.Motors))
	for _, name := range AllMotors() {
		m, err := NewServoMotor(ctx, bus, cfg.Motors[name])
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("init %s motor: %w", name, err)
		}
		motors[name] = m
	}

	leds, err := OpenLeds(cfg.Leds)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open leds: %w", err)
	}

	return &Robot{
		bus:    bus,
		motors: motors,
		leds:   leds,
	}, nil
}

// Motors returns the robot's motor modules keyed by name.
func (r *Robot) Motors() map[MotorName]Motor {
	return r.motors
}

// Leds returns the robot's status LEDs.
func (r *Robot) Leds() Leds {
	return r.leds
}

// PowerOff lets every motor coast and turns the status LEDs off.
func (r *Robot) PowerOff(ctx context.Context) error {
	return PowerOff(ctx, r.motors, r.leds)
}

// Close closes the robot's bus connection.
func (r *Robot) Close() error {
	return r.bus.Close()
}

// PowerOff coasts all motors and turns the LEDs black. Every motor is
// attempted even when an earlier one fails.
func PowerOff(ctx context.Context, motors map[MotorName]Motor, leds Leds) error {
	var errs []error
	for _, name := range AllMotors() {
		m, ok := motors[name]
		if !ok {
			continue
		}
		if err := m.Off(ctx, false); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if leds != nil {
		if err := leds.AllOff(); err != nil {
			errs = append(errs, fmt.Errorf("leds: %w", err))
		}
	}
	return errors.Join(errs...)
}
