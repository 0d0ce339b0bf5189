package control

import (
	"context"
	"fmt"
	"time"

	"github.com/gwillem/gadgetbot/pkg/robot"
)

// Step spins one motor at a fixed power for a fixed duration.
type Step struct {
	Motor    robot.MotorName
	Power    float64
	Duration time.Duration
}

// Sequence is an open-loop list of steps. The motors it uses are braked
// when it finishes.
type Sequence []Step

// Motors returns the distinct motors used by the sequence in order of first use.
func (s Sequence) Motors() []robot.MotorName {
	var names []robot.MotorName
	seen := make(map[robot.MotorName]bool)
	for _, step := range s {
		if !seen[step.Motor] {
			seen[step.Motor] = true
			names = append(names, step.Motor)
		}
	}
	return names
}

// Duration returns the total running time of the sequence.
func (s Sequence) Duration() time.Duration {
	var d time.Duration
	for _, step := range s {
		d += step.Duration
	}
	return d
}

// SequenceConfig holds the fixed power and timing of the motor sequences.
type SequenceConfig struct {
	Power      float64       `json:"power" mapstructure:"power"`
	Duration   time.Duration `json:"duration" mapstructure:"duration"`
	TurnCycles int           `json:"turn_cycles" mapstructure:"turn_cycles"`
	QueueSize  int           `json:"queue_size" mapstructure:"queue_size"`
}

// DefaultSequenceConfig returns 20% power for 2 seconds.
func DefaultSequenceConfig() SequenceConfig {
	return SequenceConfig{
		Power:      20,
		Duration:   2 * time.Second,
		TurnCycles: 2,
		QueueSize:  4,
	}
}

// Validate checks the sequence configuration for errors.
func (c SequenceConfig) Validate() error {
	if c.Power <= 0 || c.Power > 100 {
		return fmt.Errorf("sequence power %v must be in (0, 100]", c.Power)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("sequence duration %v must be positive", c.Duration)
	}
	if c.TurnCycles < 1 {
		return fmt.Errorf("turn cycles %d must be at least 1", c.TurnCycles)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue size %d must not be negative", c.QueueSize)
	}
	return nil
}

// SequenceFor returns the motor sequence for a command.
func (c SequenceConfig) SequenceFor(cmd Command) (Sequence, error) {
	switch cmd {
	case Go:
		return Sequence{{Motor: robot.Claw, Power: c.Power, Duration: c.Duration}}, nil
	case Back:
		return Sequence{{Motor: robot.Claw, Power: -c.Power, Duration: c.Duration}}, nil
	case Left:
		return Sequence{{Motor: robot.Hand, Power: c.Power, Duration: c.Duration}}, nil
	case Right:
		return Sequence{{Motor: robot.Hand, Power: -c.Power, Duration: c.Duration}}, nil
	case Turn:
		if c.TurnCycles < 1 {
			return nil, fmt.Errorf("turn cycles %d must be at least 1", c.TurnCycles)
		}
		seq := make(Sequence, 0, 2*c.TurnCycles)
		for i := 0; i < c.TurnCycles; i++ {
			seq = append(seq,
				Step{Motor: robot.Hand, Power: c.Power, Duration: c.Duration},
				Step{Motor: robot.Hand, Power: -c.Power, Duration: c.Duration},
			)
		}
		return seq, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
}

// Run executes the sequence on the given motors and brakes every motor it
// used. When ctx is cancelled the running motor is braked and ctx.Err() is
// returned. report is called after each power change.
func (s Sequence) Run(ctx context.Context, motors map[robot.MotorName]robot.Motor, report func(robot.MotorName, float64)) (err error) {
	for _, name := range s.Motors() {
		if _, ok := motors[name]; !ok {
			return fmt.Errorf("no %s motor", name)
		}
	}
	if report == nil {
		report = func(robot.MotorName, float64) {}
	}

	defer func() {
		// Brake with a fresh context so a cancelled sequence still stops
		brakeCtx := context.WithoutCancel(ctx)
		for _, name := range s.Motors() {
			if brakeErr := motors[name].Off(brakeCtx, true); brakeErr != nil && err == nil {
				err = fmt.Errorf("brake %s: %w", name, brakeErr)
			}
			report(name, 0)
		}
	}()

	for _, step := range s {
		if err := motors[step.Motor].On(ctx, step.Power); err != nil {
			return fmt.Errorf("start %s: %w", step.Motor, err)
		}
		report(step.Motor, robot.ClampPower(step.Power))

		if err := sleep(ctx, step.Duration); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
