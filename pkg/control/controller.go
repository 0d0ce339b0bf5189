// Package control turns gadget control directives into motor sequences.
package control

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gwillem/gadgetbot/pkg/gadget"
	"github.com/gwillem/gadgetbot/pkg/robot"
)

var (
	// ErrBusy is returned when the directive queue is full.
	ErrBusy = errors.New("controller is busy")
	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("controller already running")
)

// State represents the current state of the controller.
type State struct {
	Powers     map[robot.MotorName]float64
	Command    Command
	RobotState RobotState
	Connected  bool
	Timestamp  time.Time
	Error      error
}

type job struct {
	cmd      Command
	state    RobotState
	sequence Sequence
}

// Controller runs one motor sequence at a time for incoming directives.
type Controller struct {
	name       string
	motors     map[robot.MotorName]robot.Motor
	leds       robot.Leds
	cfg        SequenceConfig
	logger     *zap.Logger
	queue      chan job
	onComplete func(cmd Command, err error)

	mu      sync.RWMutex
	state   State
	running bool
	stateCh chan State
	logCh   chan string
}

// NewController creates a controller for the named robot.
func NewController(name string, motors map[robot.MotorName]robot.Motor, leds robot.Leds, cfg SequenceConfig, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if leds == nil {
		leds = robot.NopLeds{}
	}

	return &Controller{
		name:    name,
		motors:  motors,
		leds:    leds,
		cfg:     cfg,
		logger:  logger.Named("control"),
		queue:   make(chan job, cfg.QueueSize),
		state:   State{Powers: make(map[robot.MotorName]float64), RobotState: StateUnknown},
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
}

// OnComplete registers a callback fired after every sequence with the
// command and its result. It must be set before Start.
func (c *Controller) OnComplete(fn func(cmd Command, err error)) {
	c.onComplete = fn
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot()
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// HandleConnected turns both status LEDs green.
func (c *Controller) HandleConnected(addr string) {
	c.logger.Info("Connected", zap.String("name", c.name), zap.String("addr", addr))
	c.log("%s connected to Echo device", c.name)

	if err := robot.SetBoth(c.leds, robot.Green); err != nil {
		c.logger.Warn("Failed to set LEDs", zap.Error(err))
	}
	c.update(func(s *State) { s.Connected = true })
}

// HandleDisconnected turns both status LEDs off.
func (c *Controller) HandleDisconnected(addr string) {
	c.logger.Info("Disconnected", zap.String("name", c.name), zap.String("addr", addr))
	c.log("%s disconnected from Echo device", c.name)

	if err := robot.SetBoth(c.leds, robot.Black); err != nil {
		c.logger.Warn("Failed to set LEDs", zap.Error(err))
	}
	c.update(func(s *State) { s.Connected = false })
}

// HandleControl decodes a control directive and queues its motor sequence.
// It returns ErrBusy when the queue is full.
func (c *Controller) HandleControl(ctx context.Context, d gadget.Directive) error {
	payload, err := DecodePayload(d.Payload)
	if err != nil {
		c.log("Rejected directive: %v", err)
		return err
	}

	state := ParseState(payload.State)
	c.logger.Info("Control directive",
		zap.String("type", payload.Type),
		zap.String("state", string(state)),
		zap.String("location", payload.Location))

	cmd, err := ParseCommand(payload.Type)
	if err != nil {
		c.log("Unknown command %q", payload.Type)
		return err
	}
	seq, err := c.cfg.SequenceFor(cmd)
	if err != nil {
		return err
	}

	select {
	case c.queue <- job{cmd: cmd, state: state, sequence: seq}:
		c.log("Queued %s (state %s)", cmd, state)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		c.log("Busy, dropped %s", cmd)
		return fmt.Errorf("%w: dropped %s", ErrBusy, cmd)
	}
}

// Start runs queued sequences one at a time until ctx is done. All motors
// coast when it returns.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	c.log("Controller started")
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-c.queue:
			c.execute(ctx, j)
		}
	}
}

func (c *Controller) execute(ctx context.Context, j job) {
	c.log("Running %s for %s", j.cmd, j.sequence.Duration())
	c.logger.Debug("Running sequence",
		zap.String("command", string(j.cmd)),
		zap.Int("steps", len(j.sequence)))
	c.update(func(s *State) {
		s.Command = j.cmd
		s.RobotState = j.state
		s.Error = nil
	})

	err := j.sequence.Run(ctx, c.motors, func(name robot.MotorName, power float64) {
		c.update(func(s *State) { s.Powers[name] = power })
	})
	switch {
	case err == nil:
		c.log("Finished %s", j.cmd)
	case errors.Is(err, context.Canceled):
		c.log("Cancelled %s", j.cmd)
	default:
		c.log("Error running %s: %v", j.cmd, err)
		c.logger.Error("Sequence failed", zap.String("command", string(j.cmd)), zap.Error(err))
		c.update(func(s *State) { s.Error = err })
	}

	if c.onComplete != nil {
		c.onComplete(j.cmd, err)
	}
}

// update applies fn to the state and publishes the result.
func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	c.state.Timestamp = time.Now()
	s := c.snapshot()
	c.mu.Unlock()

	c.sendState(s)
}

func (c *Controller) snapshot() State {
	s := c.state
	s.Powers = maps.Clone(c.state.Powers)
	return s
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		select {
		case c.stateCh <- s:
		default:
		}
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if err := robot.PowerOff(context.Background(), c.motors, nil); err != nil {
		c.log("Warning: failed to stop motors: %v", err)
		c.logger.Warn("Failed to stop motors", zap.Error(err))
	}
	c.update(func(s *State) {
		for name := range s.Powers {
			s.Powers[name] = 0
		}
	})
	c.log("Controller stopped")
}
