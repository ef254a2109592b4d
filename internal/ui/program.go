package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/muurk/dbscout/internal/discovery"
)

// Printer provides methods for printing UI components to a writer.
// This is the primary way commands should output styled content.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintLines writes multiple lines
func (p *Printer) PrintLines(lines ...string) {
	for _, line := range lines {
		_, _ = fmt.Fprintln(p.out, line)
	}
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params map[string]string) {
	p.Println(NewHeader(title, command, params).SetWidth(p.width).Render())
	p.Newline()
}

// PrintResult prints a result box
func (p *Printer) PrintResult(r *Result) {
	p.Println(r.SetWidth(p.width).Render())
}

// PrintError prints a failure box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.PrintResult(NewFailureResult(title, err, troubleshooting))
}

// PrintNodes prints scan results in detailed or compact form
func (p *Printer) PrintNodes(nodes []discovery.Node, compact, all bool) {
	if compact {
		p.Println(RenderNodesCompact(nodes))
		return
	}
	p.Println(RenderNodesDetailed(nodes, p.width, all))
}

// PrintCompletion prints the nodes followed by the summary box
func (p *Printer) PrintCompletion(ev discovery.CompletionEvent, compact, all bool) {
	if len(ev.Nodes) > 0 && ev.Outcome != discovery.OutcomeFailed {
		p.PrintNodes(ev.Nodes, compact, all)
		p.Newline()
	}
	p.PrintResult(CompletionResult(ev))
}
