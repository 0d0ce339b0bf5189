package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/gadgetbot/pkg/control"
	"github.com/gwillem/gadgetbot/pkg/robot"
)

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border

	chartInterval = 100 * time.Millisecond
)

// Motor colors - distinct colors for each motor
var motorColors = map[robot.MotorName]string{
	robot.Hand: "208", // orange
	robot.Claw: "51",  // cyan
}

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	connectedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	disconnectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type dashboard struct {
	ctrl      *control.Controller
	name      string
	broker    string
	chart     *streamlinechart.Model
	width     int // terminal width
	height    int // terminal height
	logs      []string
	state     control.State
	wasActive bool
	quitting  bool
}

// Messages from the controller
type stateMsg control.State
type logMsg string
type chartTickMsg time.Time

func waitForState(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func chartTick() tea.Cmd {
	return tea.Tick(chartInterval, func(t time.Time) tea.Msg {
		return chartTickMsg(t)
	})
}

func newDashboard(ctrl *control.Controller, name, broker string) dashboard {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-100, 100),
	)
	for _, motor := range robot.AllMotors() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColors[motor]))
		chart.SetDataSetStyles(string(motor), runes.ThinLineStyle, style)
	}

	return dashboard{
		ctrl:   ctrl,
		name:   name,
		broker: broker,
		chart:  &chart,
		state:  ctrl.State(),
	}
}

func (m *dashboard) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// active reports whether any motor is running.
func (m *dashboard) active() bool {
	for _, p := range m.state.Powers {
		if p != 0 {
			return true
		}
	}
	return false
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *dashboard) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m dashboard) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
		chartTick(),
	)
}

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		m.state = control.State(msg)
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)

	case chartTickMsg:
		// Freeze the chart while idle, but draw the final stop
		active := m.active()
		if active || m.wasActive {
			for _, motor := range robot.AllMotors() {
				m.chart.PushDataSet(string(motor), m.state.Powers[motor])
			}
			m.chart.DrawAll()
		}
		m.wasActive = active
		return m, chartTick()
	}

	return m, nil
}

func (m dashboard) View() string {
	if m.quitting {
		return "Gadget stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("GadgetBot"))
	sb.WriteString(" - " + m.name + "  ")
	if m.state.Connected {
		sb.WriteString(connectedStyle.Render("● connected"))
	} else {
		sb.WriteString(disconnectedStyle.Render("○ " + m.broker))
	}
	if m.state.Command != "" {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  last: %s (%s)", m.state.Command, m.state.RobotState)))
	}
	if m.state.Error != nil {
		sb.WriteString(disconnectedStyle.Render("  " + m.state.Error.Error()))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend(m.state.Powers))
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend(powers map[robot.MotorName]float64) string {
	var items []string
	for _, motor := range robot.AllMotors() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColors[motor])).Bold(true)
		item := colorStyle.Render("━━") + fmt.Sprintf(" %s %+.0f%%", motor, powers[motor])
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}
