package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gwillem/gadgetbot/pkg/control"
	"github.com/gwillem/gadgetbot/pkg/gadget"
	"github.com/gwillem/gadgetbot/pkg/skill"
)

type SendCommand struct {
	State    string        `long:"state" default:"idle" description:"Robot state reported with the command"`
	Location string        `long:"location" description:"Location reported with the command"`
	Timeout  time.Duration `long:"timeout" default:"5s" description:"Broker timeout"`

	Args struct {
		Command string `positional-arg-name:"command" description:"Go, Back, Left, Right, Turn or a skill intent such as ClawOpen"`
	} `positional-args:"yes" required:"yes"`
}

func (c *SendCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Broker.URL == "" {
		return fmt.Errorf("no broker url in %s", opts.Config)
	}

	cmd, err := resolveCommand(c.Args.Command)
	if err != nil {
		return err
	}

	attrs := skill.Attributes{State: control.ParseState(c.State), Location: c.Location}
	d, err := skill.Build(cfg.Broker.EndpointID, attrs.Payload(cmd))
	if err != nil {
		return err
	}
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode directive: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	conn, err := gadget.Dial(ctx, cfg.Broker.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Send(ctx, cfg.Broker.DirectiveTopic, "application/json", body); err != nil {
		return err
	}

	fmt.Printf("%s %s to %s (%s)\n",
		successStyle.Render("Sent"), cmd, cfg.Broker.DirectiveTopic, d.Header.MessageID)
	return nil
}

// resolveCommand accepts a command name or a skill intent.
func resolveCommand(s string) (control.Command, error) {
	if cmd, err := control.ParseCommand(s); err == nil {
		return cmd, nil
	}
	return skill.CommandForIntent(s)
}
