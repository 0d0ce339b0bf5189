package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/gadgetbot/pkg/robot"
)

// Servo IDs scanned on every port.
const (
	scanFirstID = 1
	scanLastID  = 10
)

type InfoCommand struct {
	BaudRate int `long:"baud" description:"Bus baud rate (defaults to the configured rate)"`
}

func (c *InfoCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("GadgetBot Port Scanner"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	baudRate := c.BaudRate
	if baudRate == 0 {
		baudRate = cfg.Bus.BaudRate
	}

	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	for _, port := range ports {
		fmt.Println(subHeaderStyle.Render(port))
		if skipPort(port) {
			fmt.Println(dimStyle.Render("  skipped"))
			continue
		}

		sb, err := scanPort(port, baudRate)
		if err != nil {
			fmt.Println(dimStyle.Render("  " + err.Error()))
			continue
		}
		sb.bus.Close()

		if len(sb.servos) == 0 {
			fmt.Println(dimStyle.Render("  no servos"))
			continue
		}
		for _, s := range sb.servos {
			fmt.Printf("  servo %d  model %v  %s\n", s.ID, s.Model, servoRole(cfg.Motors, s.ID))
		}

		// Only the configured port is expected to carry the motors
		if port != cfg.Bus.Port {
			continue
		}
		for _, id := range missingServos(cfg.Motors, sb.servos) {
			name, _, _ := cfg.Motors.ByID(id)
			fmt.Println(disconnectedStyle.Render(fmt.Sprintf("  servo %d (%s) did not answer", id, name)))
		}
	}
	return nil
}

// servoRole names the motor a servo ID is assigned to.
func servoRole(cal robot.Calibration, id int) string {
	name, _, ok := cal.ByID(id)
	if !ok {
		return dimStyle.Render("unassigned")
	}
	return successStyle.Render(string(name))
}

// missingServos returns the configured servo IDs absent from a scan.
func missingServos(cal robot.Calibration, found []feetech.FoundServo) []int {
	seen := make(map[int]bool, len(found))
	for _, s := range found {
		seen[s.ID] = true
	}

	var missing []int
	for _, id := range cal.MotorIDs() {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// servoBus is an open bus and the servos that answered a scan.
type servoBus struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

func skipPort(port string) bool {
	// Skip Bluetooth ports on macOS
	return strings.Contains(port, "Bluetooth")
}

// scanPort opens the bus on port and scans it for servos. The caller
// closes the bus.
func scanPort(port string, baudRate int) (*servoBus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	servos, err := bus.Scan(ctx, scanFirstID, scanLastID)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("scan: %w", err)
	}

	return &servoBus{port: port, servos: servos, bus: bus}, nil
}

// findServoBuses returns every port with at least one servo on it.
func findServoBuses(baudRate int) []*servoBus {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var found []*servoBus
	for _, port := range ports {
		if skipPort(port) {
			continue
		}
		sb, err := scanPort(port, baudRate)
		if err != nil {
			continue
		}
		if len(sb.servos) == 0 {
			sb.bus.Close()
			continue
		}
		fmt.Printf("  Found %d servo(s) on %s\n", len(sb.servos), port)
		found = append(found, sb)
	}
	return found
}
