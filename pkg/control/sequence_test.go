package control

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/gwillem/gadgetbot/pkg/robot"
)

func TestParseCommand(t *testing.T) {
	for _, c := range AllCommands() {
		got, err := ParseCommand(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	for _, s := range []string{"", "go", "TURN", "Stop"} {
		_, err := ParseCommand(s)
		assert.ErrorIs(t, err, ErrUnknownCommand, s)
	}
}

func TestParseState(t *testing.T) {
	assert.Equal(t, StateIdle, ParseState("idle"))
	assert.Equal(t, StateMoving, ParseState("moving"))
	assert.Equal(t, StateHolding, ParseState("holding"))
	assert.Equal(t, StateUnknown, ParseState(""))
	assert.Equal(t, StateUnknown, ParseState("flying"))
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload([]byte(`{"type":"Turn","state":"idle","location":"kitchen"}`))
	require.NoError(t, err)
	assert.Equal(t, Payload{Type: "Turn", State: "idle", Location: "kitchen"}, p)

	_, err = DecodePayload([]byte(`{}`))
	assert.Error(t, err)
	_, err = DecodePayload([]byte(`[]`))
	assert.Error(t, err)
}

func TestSequenceFor(t *testing.T) {
	cfg := DefaultSequenceConfig()

	seq, err := cfg.SequenceFor(Go)
	require.NoError(t, err)
	assert.Equal(t, Sequence{{Motor: robot.Claw, Power: 20, Duration: 2 * time.Second}}, seq)

	seq, err = cfg.SequenceFor(Right)
	require.NoError(t, err)
	assert.Equal(t, Sequence{{Motor: robot.Hand, Power: -20, Duration: 2 * time.Second}}, seq)

	seq, err = cfg.SequenceFor(Turn)
	require.NoError(t, err)
	assert.Len(t, seq, 4)
	assert.Equal(t, []robot.MotorName{robot.Hand}, seq.Motors())
	assert.Equal(t, 8*time.Second, seq.Duration())

	_, err = cfg.SequenceFor(Command("Jump"))
	assert.ErrorIs(t, err, ErrUnknownCommand)

	// A turn without cycles would never move or brake the hand
	cfg.TurnCycles = 0
	_, err = cfg.SequenceFor(Turn)
	assert.ErrorContains(t, err, "turn cycles 0")
}

func TestSequenceFor_TurnAlternates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := DefaultSequenceConfig()
		cfg.TurnCycles = rapid.IntRange(1, 20).Draw(t, "cycles")
		cfg.Power = rapid.Float64Range(1, 100).Draw(t, "power")

		seq, err := cfg.SequenceFor(Turn)
		if err != nil {
			t.Fatal(err)
		}
		if len(seq) != 2*cfg.TurnCycles {
			t.Fatalf("got %d steps, want %d", len(seq), 2*cfg.TurnCycles)
		}
		var net float64
		for i, step := range seq {
			want := cfg.Power
			if i%2 == 1 {
				want = -cfg.Power
			}
			if step.Power != want {
				t.Fatalf("step %d power %v, want %v", i, step.Power, want)
			}
			net += step.Power
		}
		if net != 0 {
			t.Fatalf("dance does not return to start: net power %v", net)
		}
	})
}

func TestSequenceConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultSequenceConfig().Validate())

	tests := map[string]func(*SequenceConfig){
		"zero power":      func(c *SequenceConfig) { c.Power = 0 },
		"power above 100": func(c *SequenceConfig) { c.Power = 101 },
		"zero duration":   func(c *SequenceConfig) { c.Duration = 0 },
		"negative cycles": func(c *SequenceConfig) { c.TurnCycles = -1 },
		"zero cycles":     func(c *SequenceConfig) { c.TurnCycles = 0 },
		"negative queue":  func(c *SequenceConfig) { c.QueueSize = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultSequenceConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSequence_RunMissingMotor(t *testing.T) {
	motors, _, rec := fakeRobot()
	delete(motors, robot.Claw)

	seq := Sequence{{Motor: robot.Claw, Power: 20, Duration: time.Millisecond}}
	err := seq.Run(context.Background(), motors, nil)
	assert.ErrorContains(t, err, "no claw motor")
	assert.Empty(t, rec.Calls())
}

func TestSequence_RunReportsPower(t *testing.T) {
	motors, _, _ := fakeRobot()
	seq := Sequence{
		{Motor: robot.Hand, Power: 150, Duration: time.Millisecond},
		{Motor: robot.Claw, Power: -30, Duration: time.Millisecond},
	}

	var reports []string
	err := seq.Run(context.Background(), motors, func(name robot.MotorName, power float64) {
		reports = append(reports, fmt.Sprintf("%s %v", name, power))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hand 100", "claw -30", "hand 0", "claw 0"}, reports)
}

func TestSequence_BrakeError(t *testing.T) {
	motors, _, rec := fakeRobot()
	rec.failOn = "hand brake"

	seq := Sequence{{Motor: robot.Hand, Power: 20, Duration: time.Millisecond}}
	err := seq.Run(context.Background(), motors, nil)
	assert.ErrorContains(t, err, "brake hand")
}
