package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/vmwire"
	"github.com/wippyai/vmwire/device"
	"github.com/wippyai/vmwire/engine"
	"github.com/wippyai/vmwire/errors"
	"github.com/wippyai/vmwire/host"
	"github.com/wippyai/vmwire/router"
	"github.com/wippyai/vmwire/trace"
)

const (
	monitorEvents = 12
	monitorLines  = 8
	consoleLimit  = 16 << 10
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	portStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			MarginTop(1)
)

// console collects sink output for display.
type console struct {
	buf []byte
	mu  sync.Mutex
}

func (c *console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, p...)
	if len(c.buf) > consoleLimit {
		c.buf = c.buf[len(c.buf)-consoleLimit:]
	}
	return len(p), nil
}

// Lines returns the last n lines with control bytes shown as dots.
func (c *console) Lines(n int) []string {
	c.mu.Lock()
	text := string(c.buf)
	c.mu.Unlock()
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r >= ' ' {
			return r
		}
		return '.'
	}, text)
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// tail keeps the most recent routing events.
type tail struct {
	events []trace.Event
	n      int
	mu     sync.Mutex
}

func newTail(n int) *tail {
	return &tail{n: n}
}

func (t *tail) Record(ev trace.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, ev)
	if len(t.events) > t.n {
		t.events = append([]trace.Event(nil), t.events[len(t.events)-t.n:]...)
	}
}

func (t *tail) Events() []trace.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]trace.Event(nil), t.events...)
}

type monitorModel struct {
	ctx      context.Context
	err      error
	s        *session
	console  *console
	events   *tail
	path     string
	status   string
	input    textinput.Model
	selected int
}

func newMonitorModel(ctx context.Context, s *session, con *console, events *tail, path string) *monitorModel {
	ti := textinput.New()
	ti.Placeholder = "bytes to send"
	ti.Prompt = "> "
	ti.Width = 40
	ti.Focus()

	m := &monitorModel{
		ctx:     ctx,
		s:       s,
		console: con,
		events:  events,
		path:    path,
		input:   ti,
	}
	if s.input != nil {
		m.selected = int(s.input.ID())
	}
	return m
}

func (m *monitorModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "up":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil

		case "down":
			if m.selected < len(m.s.host.Instances())-1 {
				m.selected++
			}
			return m, nil

		case "enter":
			m.send(m.input.Value() + "\n")
			m.input.Reset()
			return m, nil

		case "ctrl+r":
			m.reset()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send delivers text to the data port of the selected instance, stopping
// early when it exits.
func (m *monitorModel) send(text string) {
	inst := m.s.host.Instance(vmwire.ID(m.selected))
	m.err = nil
	sent := 0
	for i := 0; i < len(text) && !inst.Exited(); i++ {
		if err := m.s.host.Send(m.ctx, inst.ID(), device.LinkData, text[i]); err != nil {
			m.err = err
			break
		}
		sent++
	}
	m.status = fmt.Sprintf("sent %d byte(s) to %s", sent, inst.Name())
}

// reset re-runs the selected instance at the reset vector.
func (m *monitorModel) reset() {
	inst := m.s.host.Instance(vmwire.ID(m.selected))
	halt, err := m.s.host.Eval(m.ctx, inst.ID(), vmwire.ResetVector)
	m.err = err
	m.status = fmt.Sprintf("reset %s: %s", inst.Name(), halt)
}

func (m *monitorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("vmwire"))
	b.WriteString(" ")
	b.WriteString(m.path)
	b.WriteString(" ")
	b.WriteString(helpStyle.Render(m.s.host.Session()))
	b.WriteString("\n\n")

	for _, inst := range m.s.host.Instances() {
		line := m.formatInstance(inst)
		if int(inst.ID()) == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString(sectionStyle.Render("output"))
	b.WriteString("\n")
	for _, line := range m.console.Lines(monitorLines) {
		b.WriteString(outputStyle.Render(line))
		b.WriteString("\n")
	}

	b.WriteString(sectionStyle.Render("events"))
	b.WriteString("\n")
	for _, ev := range m.events.Events() {
		b.WriteString(portStyle.Render(ev.String()))
		b.WriteString("\n")
	}

	if faults := m.s.host.Faults(); len(faults) > 0 {
		last := faults[len(faults)-1]
		b.WriteString(errorStyle.Render(fmt.Sprintf("\n%d fault(s), last in %s: %s",
			len(faults), m.s.host.Instance(last.Instance).Name(), last.Message)))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("↑/↓ select • enter send line • ctrl+r reset • esc quit"))

	return b.String()
}

func (m *monitorModel) formatInstance(inst *host.Instance) string {
	state := "running"
	switch {
	case inst.Exited():
		state = fmt.Sprintf("exited(%d)", inst.ExitCode())
	case !inst.Alive():
		state = "dead"
	}
	return fmt.Sprintf("%2d %s %-16s evals=%-6d vector=%s %s",
		inst.ID(),
		nameStyle.Render(fmt.Sprintf("%-10s", inst.Name())),
		inst.Program(),
		inst.Evals(),
		portStyle.Render(fmt.Sprintf("0x%04x", inst.Vector())),
		state,
	)
}

// runMonitor boots the wiring and drives it from a terminal UI. Sink output
// and logs are captured so they do not tear the display.
func runMonitor(ctx context.Context, rootOpts *RootOptions, opts *RunOptions, path string) error {
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return errors.InvalidInput(errors.PhaseConfig, "interactive mode needs a terminal")
	}

	con := &console{}
	log := zap.NewNop()
	engine.SetLogger(log)
	router.SetLogger(log)
	host.SetLogger(log)

	sink := host.NewWriterSink(con)
	events := newTail(monitorEvents)
	s, err := openSession(ctx, log, opts, path, map[string]host.Sink{
		"stdout": sink,
		"stderr": sink,
		"log":    sink,
	}, events)
	if err != nil {
		return err
	}

	p := tea.NewProgram(newMonitorModel(ctx, s, con, events, path), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if err != nil {
		err = errors.Wrap(errors.PhaseRuntime, errors.KindIO, err, "monitor")
	}
	if opts.DumpPath != "" {
		err = multierr.Append(err, s.dump(opts.DumpPath))
	}
	err = multierr.Append(err, s.close(ctx))
	if err != nil {
		return err
	}
	if code := s.exitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
