package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"trackscan/internal/audio"
	"trackscan/internal/config"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

var (
	keyQuit   = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	keyUp     = key.NewBinding(key.WithKeys("up", "k"))
	keyDown   = key.NewBinding(key.WithKeys("down", "j"))
	keyEnter  = key.NewBinding(key.WithKeys("enter"))
	keyBack   = key.NewBinding(key.WithKeys("esc"))
	keySwitch = key.NewBinding(key.WithKeys("tab"))
)

// Capture rates offered on the settings screen; the device default is added.
var baseSampleRates = []float64{16000, 22050, 44100, 48000}

var durations = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second, 120 * time.Second}

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

type configField int

const (
	fieldRate configField = iota
	fieldDuration
)

// DeviceListModel lets the user pick an input device, capture rate and
// duration for the record command.
type DeviceListModel struct {
	fetch         func() ([]audio.Device, error)
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	field                configField
	availableSampleRates []float64
	sampleRateIndex      int
	durationIndex        int

	capture   config.CaptureConfig
	confirmed bool
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel starts from base; confirmed choices overwrite its
// device, rate and duration.
func NewDeviceListModel(base config.CaptureConfig, fetch func() ([]audio.Device, error)) DeviceListModel {
	if fetch == nil {
		fetch = audio.GetDevices
	}
	return DeviceListModel{fetch: fetch, capture: base, activeScreen: ListScreen}
}

// Init fetches the device list.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		// Only devices that can record are selectable.
		m.devices = slices.DeleteFunc(msg.devices, func(d audio.Device) bool { return !d.CanCapture() })
		m.selectedIndex = 0
		for i, d := range m.devices {
			if d.IsDefaultInput {
				m.selectedIndex = i
			}
		}
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}
		if m.activeScreen == ListScreen {
			return m.updateList(msg)
		}
		return m.updateConfig(msg)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m DeviceListModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keyUp):
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
	case key.Matches(msg, keyDown):
		if m.selectedIndex < len(m.devices)-1 {
			m.selectedIndex++
		}
	case key.Matches(msg, keyEnter):
		if len(m.devices) == 0 {
			return m, nil
		}
		m.activeScreen = ConfigScreen
		m.field = fieldRate
		def := m.devices[m.selectedIndex].DefaultSampleRate
		m.availableSampleRates = slices.Clone(baseSampleRates)
		if def > 0 && !slices.Contains(m.availableSampleRates, def) {
			m.availableSampleRates = append(m.availableSampleRates, def)
			slices.Sort(m.availableSampleRates)
		}
		m.sampleRateIndex = max(0, slices.Index(m.availableSampleRates, def))
		m.durationIndex = max(0, slices.Index(durations, m.capture.Duration))
	}
	m.refresh()
	return m, nil
}

func (m DeviceListModel) updateConfig(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keyBack):
		m.activeScreen = ListScreen
	case key.Matches(msg, keySwitch):
		m.field = (m.field + 1) % 2
	case key.Matches(msg, keyUp):
		if m.field == fieldRate && m.sampleRateIndex > 0 {
			m.sampleRateIndex--
		} else if m.field == fieldDuration && m.durationIndex > 0 {
			m.durationIndex--
		}
	case key.Matches(msg, keyDown):
		if m.field == fieldRate && m.sampleRateIndex < len(m.availableSampleRates)-1 {
			m.sampleRateIndex++
		} else if m.field == fieldDuration && m.durationIndex < len(durations)-1 {
			m.durationIndex++
		}
	case key.Matches(msg, keyEnter):
		m.capture.InputDevice = m.devices[m.selectedIndex].ID
		m.capture.SampleRate = m.availableSampleRates[m.sampleRateIndex]
		m.capture.Duration = durations[m.durationIndex]
		m.confirmed = true
		return m, tea.Quit
	}
	m.refresh()
	return m, nil
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ListScreen {
		m.viewport.SetContent(m.renderDevices())
	} else {
		m.viewport.SetContent(m.renderDeviceConfig())
	}
}

// Result returns the chosen settings and whether the user confirmed them.
func (m DeviceListModel) Result() (config.CaptureConfig, bool) {
	return m.capture, m.confirmed
}

// View renders the UI
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Input Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Capture Settings")
		help = infoStyle.Render("↑/↓: Change Value • Tab: Next Field • Enter: Record • Esc: Back")
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		marker := ""
		if device.IsDefaultInput {
			marker = " *"
		}
		deviceInfo := fmt.Sprintf("[%d] %s (%s)%s\n", device.ID, device.Name, device.Kind(), marker)
		deviceInfo += fmt.Sprintf("    Input channels: %d, Host API: %s\n", device.MaxInputChannels, device.HostAPI)
		deviceInfo += fmt.Sprintf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)

		if i == m.selectedIndex {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}
		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Device: %s\n\n", m.devices[m.selectedIndex].Name)

	section := func(name string, f configField, items []string, selected int) {
		heading := name + ":"
		if m.field == f {
			heading = highlightStyle.Render(heading)
		}
		sb.WriteString(heading + "\n")
		for i, item := range items {
			pointer := " "
			if i == selected {
				pointer = "▶"
			}
			line := fmt.Sprintf("  %s %s\n", pointer, item)
			if i == selected {
				line = highlightStyle.Render(line)
			}
			sb.WriteString(line)
		}
		sb.WriteString("\n")
	}

	rates := make([]string, len(m.availableSampleRates))
	for i, r := range m.availableSampleRates {
		rates[i] = fmt.Sprintf("%.0f Hz", r)
	}
	durs := make([]string, len(durations))
	for i, d := range durations {
		durs[i] = d.String()
	}
	section("Sample Rate", fieldRate, rates, m.sampleRateIndex)
	section("Duration", fieldDuration, durs, m.durationIndex)
	return sb.String()
}

// PickCaptureSettings runs the picker full screen. ok is false when the
// user quit without confirming.
func PickCaptureSettings(base config.CaptureConfig) (config.CaptureConfig, bool, error) {
	p := tea.NewProgram(NewDeviceListModel(base, nil), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return base, false, err
	}
	m := final.(DeviceListModel)
	if m.err != nil {
		return base, false, m.err
	}
	capture, ok := m.Result()
	return capture, ok, nil
}
