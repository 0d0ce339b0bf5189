// Package robot provides abstractions for the gadget robot's motor modules and status LEDs.
package robot

import "context"

// MotorName identifies a motor module on the robot.
type MotorName string

// Motor modules of the robot.
const (
	Hand MotorName = "hand"
	Claw MotorName = "claw"
)

// AllMotors returns all motor names in order (matching servo IDs 1-2).
func AllMotors() []MotorName {
	return []MotorName{
		Hand,
		Claw,
	}
}

// Motor is an open-loop actuator that can spin at a given power and stop.
type Motor interface {
	// On spins the motor at power percent in the range [-100, 100].
	On(ctx context.Context, power float64) error
	// Off stops the motor. With brake the motor holds its position,
	// without it the motor coasts.
	Off(ctx context.Context, brake bool) error
}
