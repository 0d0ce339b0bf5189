package gadget

import (
	"context"
	"encoding/json"
	"fmt"
)

// Header identifies a directive or event.
type Header struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	MessageID string `json:"messageId,omitempty"`
}

// Endpoint addresses the gadget a directive is meant for.
type Endpoint struct {
	EndpointID string `json:"endpointId"`
}

// Directive is a command sent from the voice skill to the gadget.
type Directive struct {
	Header   Header          `json:"header"`
	Endpoint Endpoint        `json:"endpoint"`
	Payload  json.RawMessage `json:"payload"`
}

// Key returns the dispatch key "<namespace>.<name>".
func (d *Directive) Key() string {
	return directiveKey(d.Header.Namespace, d.Header.Name)
}

// Event is sent from the gadget back to the skill.
type Event struct {
	Header   Header          `json:"header"`
	Endpoint Endpoint        `json:"endpoint"`
	Payload  json.RawMessage `json:"payload"`
}

// DirectiveFunc handles a directive of a registered namespace and name.
type DirectiveFunc func(ctx context.Context, d Directive) error

func directiveKey(namespace, name string) string {
	return namespace + "." + name
}

// DecodeDirective parses a directive from a MESSAGE frame body.
func DecodeDirective(body []byte) (Directive, error) {
	var d Directive
	if err := json.Unmarshal(body, &d); err != nil {
		return Directive{}, fmt.Errorf("decode directive: %w", err)
	}
	if d.Header.Namespace == "" || d.Header.Name == "" {
		return Directive{}, fmt.Errorf("directive header is missing namespace or name")
	}
	return d, nil
}
