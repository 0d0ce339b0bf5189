package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gwillem/gadgetbot/pkg/control"
	"github.com/gwillem/gadgetbot/pkg/gadget"
	"github.com/gwillem/gadgetbot/pkg/robot"
	"github.com/gwillem/gadgetbot/pkg/skill"
)

type RunCommand struct {
	Headless bool `long:"headless" description:"Log to stderr instead of showing the dashboard"`
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'gadgetbot setup' first.")
		os.Exit(1)
	}

	// The dashboard owns the terminal, so logs go to a file
	logPath := ""
	if !c.Headless {
		logPath = cfg.LogFile
	}
	logger, err := newLogger(logPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bot, err := robot.NewRobot(ctx, cfg.Robot())
	if err != nil {
		return fmt.Errorf("open robot: %w", err)
	}
	defer bot.Close()
	defer func() {
		if err := bot.PowerOff(context.Background()); err != nil {
			logger.Warn("Power off failed", zap.Error(err))
		}
	}()
	logger.Info("Robot ready", zap.String("port", cfg.Bus.Port))

	ctrl := control.NewController(cfg.Name, bot.Motors(), bot.Leds(), cfg.Sequence, logger)
	g := gadget.New(cfg.Name, cfg.Broker, logger)
	g.OnConnected(ctrl.HandleConnected)
	g.OnDisconnected(ctrl.HandleDisconnected)
	g.Handle(skill.Namespace, skill.NameControl, ctrl.HandleControl)

	ctrl.OnComplete(func(cmd control.Command, err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		if sendErr := g.SendEvent(ctx, skill.Namespace, skill.NameStatus, skill.NewStatus(cmd, err)); sendErr != nil {
			logger.Warn("Failed to send status", zap.String("command", string(cmd)), zap.Error(sendErr))
		}
	})

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	eg, egCtx := errgroup.WithContext(runCtx)

	eg.Go(func() error { return ctrl.Start(egCtx) })
	eg.Go(func() error { return g.Run(egCtx) })

	if !c.Headless {
		eg.Go(func() error {
			defer stop()
			p := tea.NewProgram(newDashboard(ctrl, cfg.Name, cfg.Broker.URL), tea.WithAltScreen())
			go func() {
				<-egCtx.Done()
				p.Quit()
			}()
			_, err := p.Run()
			return err
		})
	} else {
		logger.Info("Running headless", zap.String("broker", cfg.Broker.URL))
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Stopped")
	return nil
}
