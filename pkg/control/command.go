package control

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownCommand is returned for a payload type that has no sequence.
var ErrUnknownCommand = errors.New("unknown command")

// Command is the requested robot action carried in a control directive.
type Command string

// Commands understood by the robot.
const (
	Go    Command = "Go"
	Back  Command = "Back"
	Left  Command = "Left"
	Right Command = "Right"
	Turn  Command = "Turn"
)

// AllCommands returns every supported command.
func AllCommands() []Command {
	return []Command{Go, Back, Left, Right, Turn}
}

// ParseCommand validates a command name. Names are case-sensitive.
func ParseCommand(s string) (Command, error) {
	for _, c := range AllCommands() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// RobotState is the robot state reported by the skill alongside a command.
// It is informational only and does not drive transitions.
type RobotState string

const (
	StateUnknown RobotState = "unknown"
	StateIdle    RobotState = "idle"
	StateMoving  RobotState = "moving"
	StateHolding RobotState = "holding"
)

// ParseState looks up a state name, returning StateUnknown when it is not known.
func ParseState(s string) RobotState {
	switch st := RobotState(s); st {
	case StateIdle, StateMoving, StateHolding:
		return st
	default:
		return StateUnknown
	}
}

// Payload is the JSON payload of a control directive.
type Payload struct {
	Type     string `json:"type"`
	State    string `json:"state,omitempty"`
	Location string `json:"location,omitempty"`
}

// DecodePayload parses a control directive payload.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if p.Type == "" {
		return Payload{}, errors.New("payload has no type")
	}
	return p, nil
}
