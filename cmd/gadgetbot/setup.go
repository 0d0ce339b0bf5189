package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/gadgetbot/pkg/config"
	"github.com/gwillem/gadgetbot/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const (
	spinVelocity = 400
	spinTime     = 700 * time.Millisecond
)

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("GadgetBot Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if config.Exists(opts.Config) {
		fmt.Println(dimStyle.Render("Updating existing configuration at " + opts.Config))
		fmt.Println()
	}

	// Step 1: find the servo bus
	fmt.Println("Scanning for servos...")
	fmt.Println()
	buses := findServoBuses(cfg.Bus.BaudRate)
	if len(buses) == 0 {
		fmt.Println("No servos found.")
		fmt.Println("Make sure the servo board is connected and powered on.")
		os.Exit(1)
	}
	sb := chooseBus(buses)
	for _, other := range buses {
		if other != sb {
			other.bus.Close()
		}
	}
	defer sb.bus.Close()
	cfg.Bus.Port = sb.port

	// Step 2: identify the motors by spinning them
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Identifying Motors ━━━"))
	fmt.Println()
	motors := identifyMotors(sb)
	for _, name := range robot.AllMotors() {
		if _, ok := motors[name]; !ok {
			fmt.Printf("The %s motor was not identified.\n", name)
			fmt.Println("Both hand and claw are required.")
			os.Exit(1)
		}
	}
	cfg.Motors = motors

	// Step 3: broker
	if err := askBroker(cfg); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	if err := cfg.SaveTo(opts.Config); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start the gadget with: " + headerStyle.Render("gadgetbot run"))

	return nil
}

func chooseBus(buses []*servoBus) *servoBus {
	if len(buses) == 1 {
		return buses[0]
	}

	options := make([]huh.Option[int], 0, len(buses))
	for i, sb := range buses {
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%d servos)", sb.port, len(sb.servos)), i))
	}

	var choice int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Which port is the robot on?").
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return buses[choice]
}

// identifyMotors spins every servo and asks which motor it drives.
func identifyMotors(sb *servoBus) robot.Calibration {
	ctx := context.Background()
	motors := make(robot.Calibration)

	for _, found := range sb.servos {
		need := missingMotors(motors)
		if len(need) == 0 {
			break
		}

		servo := feetech.NewServo(sb.bus, found.ID, found.Model)
		fmt.Printf("\n  Spinning servo %d on %s...\n", found.ID, sb.port)
		if err := spin(ctx, servo); err != nil {
			fmt.Printf("  Error spinning servo %d: %v\n", found.ID, err)
			continue
		}

		name, reversed := askMotor(found.ID, need)
		if name == "" {
			continue
		}

		mc := robot.MotorCalibration{ID: found.ID, MaxVelocity: robot.DefaultMaxVelocity}
		if reversed {
			mc.DriveMode = 1
		}
		motors[robot.MotorName(name)] = mc
	}
	return motors
}

func missingMotors(motors robot.Calibration) []robot.MotorName {
	var need []robot.MotorName
	for _, name := range robot.AllMotors() {
		if _, ok := motors[name]; !ok {
			need = append(need, name)
		}
	}
	return need
}

// spin turns the servo forward briefly in velocity mode and lets it coast.
func spin(ctx context.Context, servo *feetech.Servo) error {
	if err := servo.Disable(ctx); err != nil {
		return err
	}
	if err := servo.SetOperatingMode(ctx, feetech.ModeVelocity); err != nil {
		return err
	}
	if err := servo.Enable(ctx); err != nil {
		return err
	}
	defer servo.Disable(ctx)

	if err := servo.SetVelocity(ctx, spinVelocity); err != nil {
		return err
	}
	time.Sleep(spinTime)
	return servo.SetVelocity(ctx, 0)
}

func askMotor(id int, need []robot.MotorName) (name string, reversed bool) {
	descriptions := map[robot.MotorName]string{
		robot.Hand: "Hand (turns the arm left and right)",
		robot.Claw: "Claw (opens and closes)",
	}

	options := make([]huh.Option[string], 0, len(need)+1)
	for _, n := range need {
		options = append(options, huh.NewOption(descriptions[n], string(n)))
	}
	options = append(options, huh.NewOption("Skip this servo", "skip"))

	forward := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Which motor is servo %d?", id)).
				Description("The servo that just spun").
				Options(options...).
				Value(&name),
			huh.NewConfirm().
				Title("Did it move forward?").
				Description("Claw opening or hand turning left").
				Affirmative("Yes").
				Negative("No, reverse it").
				Value(&forward),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	if name == "skip" {
		return "", false
	}
	return name, !forward
}

func askBroker(cfg *config.Config) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Gadget name").
				Value(&cfg.Name),
			huh.NewInput().
				Title("Broker URL").
				Description("STOMP over websocket, e.g. ws://localhost:15674/ws").
				Value(&cfg.Broker.URL),
			huh.NewInput().
				Title("Endpoint ID").
				Description("Leave empty to accept directives for any endpoint").
				Value(&cfg.Broker.EndpointID),
		),
	)
	return form.Run()
}
