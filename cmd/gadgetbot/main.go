package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gwillem/gadgetbot/pkg/config"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"gadgetbot.json" description:"Configuration file"`
	Verbose bool   `short:"v" long:"verbose" description:"Enable debug logging"`

	Setup SetupCommand `command:"setup" description:"Scan for servos and assign the hand and claw motors"`
	Info  InfoCommand  `command:"info" description:"List serial ports and the servos on each"`
	Run   RunCommand   `command:"run" description:"Connect to the broker and execute directives (default)"`
	Send  SendCommand  `command:"send" description:"Publish a control directive to the broker"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "GadgetBot - voice-controlled claw robot gadget"
	parser.SubcommandsOptional = true

	_, err := parser.Parse()
	if err == nil && parser.Active == nil {
		err = opts.Run.Execute(nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig loads the configuration file named on the command line.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigFrom(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", opts.Config, err)
	}
	return cfg, nil
}

// newLogger builds a production logger. An empty path logs to stderr.
func newLogger(path string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if path != "" {
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
