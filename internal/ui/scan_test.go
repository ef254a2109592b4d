package ui

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/dbscout/internal/discovery"
)

func progressEvent(stage discovery.Stage, current, total, found int, msg string, node *discovery.Node) discovery.Event {
	return discovery.Event{
		Type: discovery.EventProgress,
		Progress: &discovery.ProgressEvent{
			Stage:   stage,
			Current: current,
			Total:   total,
			Found:   found,
			Message: msg,
			Node:    node,
		},
	}
}

func completionEvent(outcome discovery.Outcome, msg string) discovery.Event {
	return discovery.Event{
		Type: discovery.EventCompletion,
		Completion: &discovery.CompletionEvent{
			Outcome:   outcome,
			Succeeded: outcome == discovery.OutcomeCompleted,
			Message:   msg,
		},
	}
}

func TestRunScanPlain(t *testing.T) {
	events := make(chan discovery.Event, 8)
	node := &discovery.Node{Address: "10.0.0.20"}
	events <- progressEvent(discovery.StageSweep, 1, 254, 0, "Local machine 10.0.0.5", &discovery.Node{Address: "10.0.0.5"})
	events <- progressEvent(discovery.StageSweep, 2, 254, 0, "Found 10.0.0.20", node)
	events <- progressEvent(discovery.StagePorts, 1, 8, 0, "Checked 10.0.0.5:1433", nil)
	events <- progressEvent(discovery.StagePorts, 2, 8, 1, "Found SQL Server at 10.0.0.20:1433", nil)
	events <- completionEvent(discovery.OutcomeCompleted, "Discovery complete: 2 host(s), 1 SQL Server instance(s)")
	close(events)

	var out bytes.Buffer
	got, err := RunScanPlain(ScanConfig{Label: "Scanning", Events: events, Output: &out})
	if err != nil {
		t.Fatalf("RunScanPlain() error = %v", err)
	}
	if got.Outcome != discovery.OutcomeCompleted {
		t.Errorf("Outcome = %v", got.Outcome)
	}

	text := out.String()
	for _, want := range []string{"[1/4] Ping sweep", "Found 10.0.0.20", "[2/4] SQL port probe", "Found SQL Server at 10.0.0.20:1433", "Discovery complete"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Checked 10.0.0.5:1433") {
		t.Error("closed-port checks should not be printed")
	}
}

func TestRunScanPlain_NoCompletion(t *testing.T) {
	events := make(chan discovery.Event)
	close(events)
	if _, err := RunScanPlain(ScanConfig{Events: events, Output: &bytes.Buffer{}}); err == nil {
		t.Error("RunScanPlain() should fail when no completion arrives")
	}
}

func TestRunScan_NonTerminalFallsBack(t *testing.T) {
	events := make(chan discovery.Event, 1)
	events <- completionEvent(discovery.OutcomeCancelled, "Discovery cancelled: 1 host(s) found before cancellation")
	close(events)

	var out bytes.Buffer
	got, err := RunScan(t.Context(), ScanConfig{Events: events, Output: &out})
	if err != nil {
		t.Fatalf("RunScan() error = %v", err)
	}
	if got.Outcome != discovery.OutcomeCancelled {
		t.Errorf("Outcome = %v", got.Outcome)
	}
	if !strings.Contains(out.String(), "Discovery cancelled") {
		t.Errorf("output = %q", out.String())
	}
}

func TestScanModel_Update(t *testing.T) {
	cancelled := 0
	m := NewScanModel(ScanConfig{
		Label:  "Scanning",
		Events: make(chan discovery.Event),
		Cancel: func() { cancelled++ },
	})

	next, cmd := m.Update(eventMsg(progressEvent(discovery.StageSweep, 3, 254, 0, "Found 10.0.0.9", &discovery.Node{Address: "10.0.0.9"})))
	m = next.(ScanModel)
	if cmd == nil {
		t.Fatal("progress should schedule the next read")
	}
	if m.hosts != 3 || len(m.activity) != 1 {
		t.Errorf("hosts = %d, activity = %v", m.hosts, m.activity)
	}

	next, _ = m.Update(eventMsg(progressEvent(discovery.StagePorts, 1, 4, 1, "Found SQL Server at 10.0.0.9:1433", nil)))
	m = next.(ScanModel)
	if m.instances != 1 {
		t.Errorf("instances = %d, want 1", m.instances)
	}

	for i := 0; i < 2; i++ {
		next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
		m = next.(ScanModel)
	}
	if cancelled != 1 || !m.cancelling {
		t.Errorf("cancel called %d times, cancelling = %v", cancelled, m.cancelling)
	}
	if !strings.Contains(m.View(), "Cancelling") {
		t.Error("view should show the cancelling state")
	}

	next, cmd = m.Update(eventMsg(completionEvent(discovery.OutcomeCancelled, "Discovery cancelled")))
	m = next.(ScanModel)
	if m.Completion() == nil || m.Completion().Outcome != discovery.OutcomeCancelled {
		t.Fatalf("Completion() = %+v", m.Completion())
	}
	if cmd == nil {
		t.Fatal("completion should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("completion command should be tea.Quit")
	}
}

func TestScanModel_ActivityBounded(t *testing.T) {
	m := NewScanModel(ScanConfig{Events: make(chan discovery.Event)})
	for i := 1; i <= maxActivity+3; i++ {
		next, _ := m.Update(eventMsg(progressEvent(discovery.StageSweep, i, 254, 0, "Found host", nil)))
		m = next.(ScanModel)
	}
	if len(m.activity) != maxActivity {
		t.Errorf("len(activity) = %d, want %d", len(m.activity), maxActivity)
	}
}
