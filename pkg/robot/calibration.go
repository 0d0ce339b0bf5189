package robot

import "math"

// DefaultMaxVelocity is the raw servo velocity used for 100% power.
const DefaultMaxVelocity = 2400

// MotorCalibration holds calibration data for a single motor module.
type MotorCalibration struct {
	ID          int `json:"id" mapstructure:"id"`
	DriveMode   int `json:"drive_mode" mapstructure:"drive_mode"`
	MaxVelocity int `json:"max_velocity" mapstructure:"max_velocity"`
}

// Calibration holds calibration data for all motors, keyed by motor name.
type Calibration map[MotorName]MotorCalibration

// DefaultCalibration returns servo IDs 1 and 2 for hand and claw.
func DefaultCalibration() Calibration {
	cal := make(Calibration, len(AllMotors()))
	for i, name := range AllMotors() {
		cal[name] = MotorCalibration{
			ID:          i + 1,
			MaxVelocity: DefaultMaxVelocity,
		}
	}
	return cal
}

// Inverted reports whether the motor's direction is reversed.
func (c MotorCalibration) Inverted() bool {
	return c.DriveMode == 1
}

// ClampPower limits power to the range [-100, 100].
func ClampPower(power float64) float64 {
	switch {
	case math.IsNaN(power):
		return 0
	case power > 100:
		return 100
	case power < -100:
		return -100
	}
	return power
}

// PowerToVelocity converts a power percentage [-100, 100] to a raw servo velocity.
func (c MotorCalibration) PowerToVelocity(power float64) int {
	v := int(math.Round(ClampPower(power) / 100 * float64(c.MaxVelocity)))
	if c.Inverted() {
		return -v
	}
	return v
}

// VelocityToPower converts a raw servo velocity to a power percentage.
func (c MotorCalibration) VelocityToPower(velocity int) float64 {
	if c.MaxVelocity == 0 {
		return 0
	}
	p := float64(velocity) / float64(c.MaxVelocity) * 100
	if c.Inverted() {
		p = -p
	}
	return ClampPower(p)
}

// MotorIDs returns the servo IDs for all motors in the calibration.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	// Use AllMotors() to ensure consistent ordering
	for _, name := range AllMotors() {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns motor name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (MotorName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}
