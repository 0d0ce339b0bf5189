// Package pid provides a proportional-derivative helper for motor control.
package pid

// PID computes a correction from an error signal using proportional and
// derivative gains. The derivative term uses the previous error passed to
// Calculate.
type PID struct {
	Kp float64
	Kd float64

	e0 float64
}

// New creates a controller with the given gains.
func New(kp, kd float64) *PID {
	return &PID{Kp: kp, Kd: kd}
}

// Calculate returns Kp*e + (e-e0)*Kd and remembers e for the next call.
func (p *PID) Calculate(e float64) float64 {
	v := p.Kp*e + (e-p.e0)*p.Kd
	p.e0 = e
	return v
}

// Reset forgets the previous error.
func (p *PID) Reset() {
	p.e0 = 0
}
