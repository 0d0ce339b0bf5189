package robot

import (
	"context"
	"fmt"
	"sync"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// servoDriver is the part of a Feetech servo a ServoMotor drives.
type servoDriver interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	SetVelocity(ctx context.Context, velocity int) error
}

// ServoMotor is a Feetech servo running in velocity (wheel) mode.
type ServoMotor struct {
	servo       servoDriver
	calibration MotorCalibration

	mu      sync.Mutex
	enabled bool
}

// NewServoMotor puts the servo into velocity mode with torque disabled.
func NewServoMotor(ctx context.Context, bus *feetech.Bus, cal MotorCalibration) (*ServoMotor, error) {
	servo := feetech.NewServo(bus, cal.ID, nil)

	// Torque must be off to change the operating mode
	if err := servo.Disable(ctx); err != nil {
		return nil, fmt.Errorf("disable servo %d: %w", cal.ID, err)
	}
	if err := servo.SetOperatingMode(ctx, feetech.ModeVelocity); err != nil {
		return nil, fmt.Errorf("set velocity mode on servo %d: %w", cal.ID, err)
	}

	return newServoMotor(servo, cal), nil
}

func newServoMotor(servo servoDriver, cal MotorCalibration) *ServoMotor {
	return &ServoMotor{
		servo:       servo,
		calibration: cal,
	}
}

// On spins the servo at the given power percentage.
func (m *ServoMotor) On(ctx context.Context, power float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		if err := m.servo.Enable(ctx); err != nil {
			return fmt.Errorf("enable servo %d: %w", m.calibration.ID, err)
		}
		m.enabled = true
	}

	if err := m.servo.SetVelocity(ctx, m.calibration.PowerToVelocity(power)); err != nil {
		return fmt.Errorf("set velocity on servo %d: %w", m.calibration.ID, err)
	}
	return nil
}

// Off stops the servo. Braking keeps torque enabled so the servo holds still,
// coasting disables torque.
func (m *ServoMotor) Off(ctx context.Context, brake bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if brake && !m.enabled {
		if err := m.servo.Enable(ctx); err != nil {
			return fmt.Errorf("enable servo %d: %w", m.calibration.ID, err)
		}
		m.enabled = true
	}

	if m.enabled {
		if err := m.servo.SetVelocity(ctx, 0); err != nil {
			return fmt.Errorf("stop servo %d: %w", m.calibration.ID, err)
		}
	}

	if brake {
		return nil
	}

	if err := m.servo.Disable(ctx); err != nil {
		return fmt.Errorf("disable servo %d: %w", m.calibration.ID, err)
	}
	m.enabled = false
	return nil
}
