package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/dbscout/internal/discovery"
)

// maxActivity is how many recent progress messages the scan view keeps
const maxActivity = 5

// Messages for the event stream
type eventMsg discovery.Event
type eventsClosedMsg struct{}

// waitForEvent is a command that blocks on the next run event
func waitForEvent(events <-chan discovery.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// scanKeyMap defines key bindings while a scan is running
type scanKeyMap struct {
	Cancel key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k scanKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (k scanKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Cancel}}
}

// ScanConfig describes a scan to display
type ScanConfig struct {
	Label  string                 // e.g., "Scanning 192.168.1.0/24"
	Events <-chan discovery.Event // Run event stream; must close after completion
	Cancel func()                 // Requests cancellation of the run
	Output io.Writer              // Output writer (default: os.Stdout)
	Plain  bool                   // Line-oriented output without a TUI
}

// ScanModel is a Bubble Tea model that follows a discovery run
type ScanModel struct {
	events     <-chan discovery.Event
	cancel     func()
	progress   *Progress
	spinner    spinner.Model
	help       help.Model
	keys       scanKeyMap
	activity   []string
	hosts      int
	instances  int
	start      time.Time
	cancelling bool
	completion *discovery.CompletionEvent
	width      int
}

// NewScanModel creates a scan model reading from cfg.Events
func NewScanModel(cfg ScanConfig) ScanModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	width := GetTerminalWidth()
	return ScanModel{
		events:   cfg.Events,
		cancel:   cfg.Cancel,
		progress: NewProgress(cfg.Label).SetWidth(width),
		spinner:  s,
		help:     help.New(),
		keys: scanKeyMap{
			Cancel: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "cancel scan"),
			),
		},
		start: time.Now(),
		width: width,
	}
}

// Init implements tea.Model
func (m ScanModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), m.spinner.Tick)
}

// Update implements tea.Model
func (m ScanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Cancel) && !m.cancelling {
			// Keep reading events; the completion arrives once in-flight probes drain
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = min(max(msg.Width, MinTerminalWidth), MaxContentWidth)
		m.progress.SetWidth(m.width)
		return m, nil

	case eventMsg:
		m.apply(discovery.Event(msg))
		if m.completion != nil {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply folds one run event into the model
func (m *ScanModel) apply(ev discovery.Event) {
	switch ev.Type {
	case discovery.EventProgress:
		p := ev.Progress
		if !m.progress.Apply(p) {
			return
		}
		if p.Stage == discovery.StageSweep {
			m.hosts = p.Current
		}
		m.instances += p.Found
		if p.Message != "" {
			m.activity = append(m.activity, p.Message)
			if len(m.activity) > maxActivity {
				m.activity = m.activity[len(m.activity)-maxActivity:]
			}
		}

	case discovery.EventCompletion:
		if ev.Completion != nil {
			c := *ev.Completion
			m.completion = &c
			m.progress.Finish(c.Outcome)
		}
	}
}

// View implements tea.Model
func (m ScanModel) View() string {
	if m.completion != nil {
		// Final frame stays on screen; the caller prints results below it
		return m.progress.Render() + "\n\n"
	}

	status := fmt.Sprintf("%s %d host(s) reachable  %d instance(s)  %s elapsed",
		m.spinner.View(), m.hosts, m.instances, time.Since(m.start).Round(time.Second))
	if m.cancelling {
		status = StepRunningStyle.Render(m.spinner.View() + " Cancelling, waiting for in-flight probes...")
	}

	var activity []string
	for _, line := range m.activity {
		activity = append(activity, ActivityStyle.Render(truncate(line, m.width-6)))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.progress.Render(),
		"",
		"  "+status,
		"",
		lipgloss.JoinVertical(lipgloss.Left, activity...),
		"",
		"  "+m.help.View(m.keys),
	)
}

// Completion returns the completion event once the run has finished
func (m ScanModel) Completion() *discovery.CompletionEvent {
	return m.completion
}

// RunScan displays a discovery run until it completes and returns its
// completion event. Non-terminal output falls back to plain lines.
func RunScan(ctx context.Context, cfg ScanConfig) (discovery.CompletionEvent, error) {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	f, isFile := cfg.Output.(*os.File)
	if cfg.Plain || !isFile || !IsTerminal(f) {
		return RunScanPlain(cfg)
	}

	p := tea.NewProgram(NewScanModel(cfg),
		tea.WithOutput(cfg.Output),
		tea.WithContext(ctx),
	)
	final, err := p.Run()
	if err != nil {
		if cfg.Cancel != nil {
			cfg.Cancel()
		}
		// Drain so the run can finish
		return awaitCompletion(cfg.Events), fmt.Errorf("scan display failed: %w", err)
	}

	if m, ok := final.(ScanModel); ok && m.completion != nil {
		return *m.completion, nil
	}
	return awaitCompletion(cfg.Events), nil
}

// RunScanPlain prints stage transitions and findings as plain lines
func RunScanPlain(cfg ScanConfig) (discovery.CompletionEvent, error) {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Label != "" {
		fmt.Fprintln(cfg.Output, cfg.Label)
	}

	progress := NewProgress("")
	var completion *discovery.CompletionEvent
	active := 0

	for ev := range cfg.Events {
		switch ev.Type {
		case discovery.EventProgress:
			p := ev.Progress
			if !progress.Apply(p) {
				continue
			}
			if progress.Current != active {
				active = progress.Current
				fmt.Fprintf(cfg.Output, "[%d/%d] %s\n", active, progress.Total, progress.Steps[active-1].Name)
			}
			if plainWorthy(p) {
				fmt.Fprintf(cfg.Output, "  %s\n", p.Message)
			}
		case discovery.EventCompletion:
			if ev.Completion != nil {
				c := *ev.Completion
				completion = &c
			}
		}
	}

	if completion == nil {
		return discovery.CompletionEvent{}, fmt.Errorf("event stream closed without a completion")
	}
	fmt.Fprintln(cfg.Output, completion.Message)
	return *completion, nil
}

// plainWorthy filters progress messages that report a finding
func plainWorthy(p *discovery.ProgressEvent) bool {
	switch p.Stage {
	case discovery.StageSweep:
		return p.Node != nil
	case discovery.StagePorts, discovery.StageBrowser:
		return p.Found > 0
	case discovery.StageEnrich:
		return true
	}
	return false
}

// awaitCompletion drains events and returns the completion, if any
func awaitCompletion(events <-chan discovery.Event) discovery.CompletionEvent {
	var out discovery.CompletionEvent
	for ev := range events {
		if ev.Type == discovery.EventCompletion && ev.Completion != nil {
			out = *ev.Completion
		}
	}
	return out
}
