package discovery

import (
	"fmt"
	"time"
)

// Stage names a pipeline step in progress events
type Stage string

const (
	StageSweep   Stage = "sweep"
	StagePorts   Stage = "ports"
	StageBrowser Stage = "browser"
	StageEnrich  Stage = "enrich"
)

// EventType discriminates Event payloads
type EventType string

const (
	EventProgress   EventType = "progress"
	EventCompletion EventType = "completion"
)

// Outcome is the terminal result of a run
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// ProgressEvent reports incremental progress within a stage. Current never
// decreases within one stage.
type ProgressEvent struct {
	Stage   Stage  `json:"stage" yaml:"stage"`
	Current int    `json:"current" yaml:"current"`
	Total   int    `json:"total" yaml:"total"`
	Message string `json:"message" yaml:"message"`

	// Found counts instances this step added to the result
	Found int   `json:"found,omitempty" yaml:"found,omitempty"`
	Node  *Node `json:"node,omitempty" yaml:"node,omitempty"`
}

// Percent returns Current/Total in [0,1]
func (p *ProgressEvent) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Current) / float64(p.Total)
	if pct > 1 {
		pct = 1
	}
	return pct
}

// CompletionEvent is the single terminal event of a run
type CompletionEvent struct {
	Nodes     []Node        `json:"nodes" yaml:"nodes"`
	Message   string        `json:"message" yaml:"message"`
	Succeeded bool          `json:"succeeded" yaml:"succeeded"`
	Outcome   Outcome       `json:"outcome" yaml:"outcome"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	Err       error         `json:"-" yaml:"-"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// InstanceCount totals the instances across all nodes
func (c *CompletionEvent) InstanceCount() int {
	return CountInstances(c.Nodes)
}

// Event is one element of a run's event stream
type Event struct {
	Type       EventType        `json:"type" yaml:"type"`
	RunID      string           `json:"run_id" yaml:"run_id"`
	Time       time.Time        `json:"time" yaml:"time"`
	Progress   *ProgressEvent   `json:"progress,omitempty" yaml:"progress,omitempty"`
	Completion *CompletionEvent `json:"completion,omitempty" yaml:"completion,omitempty"`
}

// String returns a one-line description of the event
func (e Event) String() string {
	switch {
	case e.Progress != nil:
		return fmt.Sprintf("[%s %d/%d] %s", e.Progress.Stage, e.Progress.Current, e.Progress.Total, e.Progress.Message)
	case e.Completion != nil:
		return fmt.Sprintf("[%s] %s", e.Completion.Outcome, e.Completion.Message)
	default:
		return string(e.Type)
	}
}

// Sink receives events. It may be called from any goroutine, but never
// concurrently within one run.
type Sink func(Event)

func completedMessage(nodes []Node) string {
	return fmt.Sprintf("Discovery complete: %d host(s), %d SQL Server instance(s)",
		len(nodes), CountInstances(nodes))
}
