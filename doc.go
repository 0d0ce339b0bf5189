// Package gadgetbot drives a two-motor claw robot as a voice assistant gadget.
//
// The robot listens for control directives relayed by a STOMP broker and runs
// a short open-loop motor sequence for each one: the claw opens or closes, the
// hand turns left or right, or the hand dances back and forth.
//
// # Installation
//
//	go install github.com/gwillem/gadgetbot/cmd/gadgetbot@latest
//
// # Usage
//
// First, run setup to find the servo bus and assign the hand and claw motors:
//
//	gadgetbot setup
//
// Then connect to the broker and wait for directives:
//
//	gadgetbot run
//
// Directives can be sent by hand for testing:
//
//	gadgetbot send ClawOpen
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/gadgetbot: CLI with setup, info, run and send commands
//   - pkg/robot: motor modules, status LEDs and hardware configuration
//   - pkg/gadget: broker connection and directive dispatch
//   - pkg/control: directive controller and motor sequences
//   - pkg/skill: directives and intents on the skill side
//   - pkg/config: configuration file loading and saving
//   - pkg/pid: PD controller helper
package gadgetbot
