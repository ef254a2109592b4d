package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/dbscout/internal/discovery"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Detail is one key/value row in a result box
type Detail struct {
	Key   string
	Value string
}

// Result represents a result box (success, failure, or warning)
type Result struct {
	Type            ResultType // Success, failure, or warning
	Title           string     // e.g., "Discovery complete"
	Details         []Detail   // Rows in display order
	Error           error      // Error (for failure results)
	Troubleshooting []string   // Troubleshooting tips (for failure results)
	Width           int        // Terminal width
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string) *Result {
	return &Result{
		Type:  ResultSuccess,
		Title: title,
		Width: GetTerminalWidth(),
	}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: troubleshooting,
		Width:           GetTerminalWidth(),
	}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string) *Result {
	return &Result{
		Type:  ResultWarning,
		Title: title,
		Width: GetTerminalWidth(),
	}
}

// ScanTroubleshooting is shown when a discovery run fails
var ScanTroubleshooting = []string{
	"Check the address is an IPv4 address of this machine's subnet",
	"Run 'dbscout interfaces' to list usable local addresses",
	"ICMP may need privileges: try --privileged as root/Administrator",
	"Set DBSCOUT_LOG_LEVEL=debug for probe-level logs",
}

// CompletionResult builds the summary box for a finished run
func CompletionResult(ev discovery.CompletionEvent) *Result {
	var r *Result
	switch ev.Outcome {
	case discovery.OutcomeCompleted:
		r = NewSuccessResult("Discovery complete")
	case discovery.OutcomeCancelled:
		r = NewWarningResult("Discovery cancelled")
	default:
		err := ev.Err
		if err == nil && ev.Error != "" {
			err = fmt.Errorf("%s", ev.Error)
		}
		return NewFailureResult("Discovery failed", err, ScanTroubleshooting)
	}

	accessible := 0
	for i := range ev.Nodes {
		accessible += ev.Nodes[i].AccessibleCount()
	}
	r.AddDetail("Hosts", fmt.Sprintf("%d", len(ev.Nodes)))
	r.AddDetail("Instances", fmt.Sprintf("%d", ev.InstanceCount()))
	r.AddDetail("Accessible", fmt.Sprintf("%d", accessible))
	r.AddDetail("Duration", ev.Duration.Round(time.Millisecond).String())
	return r
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail appends a detail key-value pair
func (r *Result) AddDetail(key, value string) *Result {
	r.Details = append(r.Details, Detail{Key: key, Value: value})
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	width := r.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	switch r.Type {
	case ResultFailure:
		return r.renderFailure(width)
	case ResultWarning:
		title := lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true).
			Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, r.Title))
		return WarningBoxStyle(width).Render(r.renderBody(title))
	default:
		title := SuccessTitleStyle.Render(fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title))
		return SuccessBoxStyle(width).Render(r.renderBody(title))
	}
}

// renderBody renders the title followed by the detail rows
func (r *Result) renderBody(title string) string {
	lines := []string{"", title, ""}
	for _, d := range r.Details {
		keyStyled := ResultKeyStyle.Render(fmt.Sprintf("   %s:", d.Key))
		valueStyled := ResultValueStyle.Render(d.Value)
		lines = append(lines, keyStyled+" "+valueStyled)
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// renderFailure renders a failure result box
func (r *Result) renderFailure(width int) string {
	titleLine := ErrorTitleStyle.Render(fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title))
	lines := []string{"", titleLine, ""}

	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
	}

	if len(r.Troubleshooting) > 0 {
		lines = append(lines, r.renderTroubleshootingBox(width), "")
	}

	return ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// renderTroubleshootingBox renders the inner troubleshooting box
func (r *Result) renderTroubleshootingBox(width int) string {
	lines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
	for _, tip := range r.Troubleshooting {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}
	return TroubleshootingBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}
