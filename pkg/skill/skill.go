// Package skill builds the directives a voice skill sends to the gadget.
package skill

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gwillem/gadgetbot/pkg/control"
	"github.com/gwillem/gadgetbot/pkg/gadget"
)

// Directive namespace and names used between skill and gadget.
const (
	Namespace   = "Custom.Mindstorms.Gadget"
	NameControl = "control"
	NameStatus  = "status"
)

// ErrUnknownIntent is returned for an intent that maps to no command.
var ErrUnknownIntent = errors.New("unknown intent")

var intents = map[string]control.Command{
	"ClawOpen":  control.Go,
	"ClawClose": control.Back,
	"ClawUp":    control.Left,
	"ClawDown":  control.Right,
	"ClawDance": control.Turn,
}

// CommandForIntent returns the robot command for a skill intent.
func CommandForIntent(intent string) (control.Command, error) {
	cmd, ok := intents[intent]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownIntent, intent)
	}
	return cmd, nil
}

// Attributes is the robot state a skill keeps between requests.
type Attributes struct {
	State    control.RobotState `json:"state"`
	Location string             `json:"location,omitempty"`
}

// DefaultAttributes returns the state of a robot that has not moved yet.
func DefaultAttributes() Attributes {
	return Attributes{State: control.StateIdle}
}

// Payload returns a control payload for cmd carrying the attributes.
func (a Attributes) Payload(cmd control.Command) control.Payload {
	return control.Payload{
		Type:     string(cmd),
		State:    string(a.State),
		Location: a.Location,
	}
}

// Build returns a control directive for the given endpoint with a fresh message ID.
func Build(endpointID string, payload control.Payload) (gadget.Directive, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return gadget.Directive{}, fmt.Errorf("encode payload: %w", err)
	}
	return gadget.Directive{
		Header: gadget.Header{
			Namespace: Namespace,
			Name:      NameControl,
			MessageID: uuid.NewString(),
		},
		Endpoint: gadget.Endpoint{EndpointID: endpointID},
		Payload:  raw,
	}, nil
}

// Status is the payload of the event the gadget sends after each command.
type Status struct {
	Type  string `json:"type"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// NewStatus reports the outcome of running cmd.
func NewStatus(cmd control.Command, err error) Status {
	s := Status{Type: string(cmd), Done: err == nil}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}
