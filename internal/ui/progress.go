package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/dbscout/internal/discovery"
)

// StepStatus represents the current state of a step
type StepStatus int

const (
	StepPending  StepStatus = iota // Not yet started
	StepRunning                    // Currently executing
	StepComplete                   // Successfully completed
	StepFailed                     // Failed
	StepSkipped                    // Skipped
)

// Step represents one discovery stage
type Step struct {
	Number  int             // Step number (1-based)
	Stage   discovery.Stage // Stage this step tracks
	Name    string          // Step description
	Status  StepStatus      // Current status
	Message string          // Last progress message for the stage
	Current int             // Items finished in the stage
	Total   int             // Items expected in the stage
}

// Percent returns the stage completion in [0,1]
func (s Step) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return min(1, float64(s.Current)/float64(s.Total))
}

// DefaultSteps lists the stages of a discovery run in pipeline order
var DefaultSteps = []struct {
	Stage discovery.Stage
	Name  string
}{
	{discovery.StageSweep, "Ping sweep"},
	{discovery.StagePorts, "SQL port probe"},
	{discovery.StageBrowser, "SQL Browser query"},
	{discovery.StageEnrich, "mDNS host names"},
}

// Progress tracks the stages of a discovery run with a bar for the active one
type Progress struct {
	Label     string  // e.g., "Scanning 192.168.1.0/24"
	Steps     []Step  // One step per stage
	Current   int     // Active step (1-based, 0 before the first event)
	Total     int     // Total steps
	Percent   float64 // Active stage percentage (0.0 - 1.0)
	Width     int     // Terminal width
	ShowBar   bool    // Whether to show progress bar
	ShowSteps bool    // Whether to show step list
	bar       progress.Model
}

// NewProgress creates a progress display with one step per discovery stage
func NewProgress(label string) *Progress {
	steps := make([]Step, len(DefaultSteps))
	for i, s := range DefaultSteps {
		steps[i] = Step{
			Number: i + 1,
			Stage:  s.Stage,
			Name:   s.Name,
			Status: StepPending,
		}
	}

	p := &Progress{
		Label:     label,
		Steps:     steps,
		Total:     len(steps),
		ShowBar:   true,
		ShowSteps: true,
	}
	p.SetWidth(GetTerminalWidth())
	return p
}

// SetWidth sets the terminal width for responsive rendering
func (p *Progress) SetWidth(width int) *Progress {
	p.Width = width
	barWidth := width - 20 // Leave room for percentage and step count
	if barWidth < 20 {
		barWidth = 20
	}
	if barWidth > 50 {
		barWidth = 50
	}
	p.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)
	return p
}

// stepIndex returns the index of the step tracking stage, or -1
func (p *Progress) stepIndex(stage discovery.Stage) int {
	for i, s := range p.Steps {
		if s.Stage == stage {
			return i
		}
	}
	return -1
}

// Apply folds a progress event into the display. Earlier stages that were
// running are completed; earlier stages that never started are skipped.
// It returns false for stages the display does not track.
func (p *Progress) Apply(ev *discovery.ProgressEvent) bool {
	if ev == nil {
		return false
	}
	idx := p.stepIndex(ev.Stage)
	if idx < 0 {
		return false
	}

	for i := 0; i < idx; i++ {
		p.settle(i, StepComplete)
	}

	step := &p.Steps[idx]
	step.Status = StepRunning
	step.Current = ev.Current
	step.Total = ev.Total
	step.Message = ev.Message

	p.Current = idx + 1
	p.Percent = step.Percent()
	return true
}

// Finish settles every step once the run has ended
func (p *Progress) Finish(outcome discovery.Outcome) {
	final := StepComplete
	if outcome != discovery.OutcomeCompleted {
		final = StepFailed
	}
	for i := range p.Steps {
		p.settle(i, final)
	}
	if outcome == discovery.OutcomeCompleted {
		p.Percent = 1
	}
}

// settle moves a running step to status and a pending one to skipped
func (p *Progress) settle(i int, status StepStatus) {
	switch p.Steps[i].Status {
	case StepRunning:
		p.Steps[i].Status = status
	case StepPending:
		p.Steps[i].Status = StepSkipped
	}
}

// Render returns the styled progress display as a string
func (p *Progress) Render() string {
	var b strings.Builder

	if p.Label != "" {
		b.WriteString(ProgressLabelStyle.Render(p.Label))
		b.WriteString("\n\n")
	}

	if p.ShowBar {
		b.WriteString(p.renderProgressBar())
		b.WriteString("\n\n")
	}

	if p.ShowSteps {
		b.WriteString(p.renderStepList())
	}

	return b.String()
}

// renderProgressBar renders the progress bar line
func (p *Progress) renderProgressBar() string {
	barView := p.bar.ViewAs(p.Percent)
	percentStr := fmt.Sprintf("%3.0f%%", p.Percent*100)
	stepStr := fmt.Sprintf("[%d/%d]", p.Current, p.Total)

	return lipgloss.NewStyle().
		PaddingLeft(2).
		Render(fmt.Sprintf("%s  %s  %s", barView, percentStr, stepStr))
}

// renderStepList renders the list of steps
func (p *Progress) renderStepList() string {
	lines := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		lines = append(lines, p.renderStepLine(step))
	}
	return strings.Join(lines, "\n")
}

// renderStepLine renders a single step line
func (p *Progress) renderStepLine(step Step) string {
	prefix := fmt.Sprintf("  [%d/%d]", step.Number, p.Total)

	var marker string
	var nameStyle lipgloss.Style

	switch step.Status {
	case StepComplete:
		marker = StepMarkerComplete
		nameStyle = StepCompleteStyle
	case StepRunning:
		marker = StepMarkerRunning
		nameStyle = StepRunningStyle
	case StepFailed:
		marker = FailureMarker
		nameStyle = ErrorTitleStyle
	case StepSkipped:
		marker = StepMarkerSkipped
		nameStyle = StepPendingStyle
	default: // StepPending
		marker = StepMarkerPending
		nameStyle = StepPendingStyle
	}

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(" ")
	b.WriteString(nameStyle.Render(step.Name))

	// Keep markers in one column
	padding := 30 - lipgloss.Width(step.Name)
	if padding < 1 {
		padding = 1
	}
	b.WriteString(strings.Repeat(" ", padding))
	b.WriteString(nameStyle.Render(marker))

	if step.Total > 0 {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render(fmt.Sprintf("(%d/%d)", step.Current, step.Total)))
	}

	return b.String()
}

// String implements fmt.Stringer
func (p *Progress) String() string {
	return p.Render()
}
