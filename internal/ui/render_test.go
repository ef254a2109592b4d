package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/muurk/dbscout/internal/discovery"
)

func sampleNodes() []discovery.Node {
	return []discovery.Node{
		{
			Address:        "10.0.0.5",
			Hostname:       "scanner",
			Responding:     true,
			IsLocalMachine: true,
		},
		{
			Address:        "10.0.0.20",
			Hostname:       "sqlhost",
			Responding:     true,
			ResponseTimeMs: 3,
			Instances: []discovery.Instance{
				{
					ServerName:   "sqlhost",
					InstanceName: "DEFAULT",
					Port:         1433,
					Version:      "Microsoft SQL Server 2019 (RTM) - 15.0.2000.5 (X64)",
					Accessible:   true,
					Descriptor:   "10.0.0.20:1433",
				},
				{
					ServerName:                   "SQLHOST",
					InstanceName:                 "SQLEXPRESS",
					Port:                         1533,
					IsNamedInstance:              true,
					DiscoveredViaBrowserProtocol: true,
					LastError:                    "Login failed for user 'sa'.",
					Descriptor:                   `10.0.0.20\SQLEXPRESS,1533`,
					Properties:                   map[string]string{"Version": "15.0.2000.5"},
				},
			},
		},
	}
}

func TestInstanceStatus(t *testing.T) {
	nodes := sampleNodes()
	if got := InstanceStatus(nodes[1].Instances[0]); got != "accessible" {
		t.Errorf("InstanceStatus() = %q", got)
	}
	if got := InstanceStatus(nodes[1].Instances[1]); got != "login rejected" {
		t.Errorf("InstanceStatus() = %q", got)
	}
	if got := InstanceStatus(discovery.Instance{}); got != "inaccessible" {
		t.Errorf("InstanceStatus() = %q", got)
	}
}

func TestRenderNodesDetailed(t *testing.T) {
	out := RenderNodesDetailed(sampleNodes(), 90, false)

	for _, want := range []string{"10.0.0.20 (sqlhost)", "10.0.0.20:1433", `10.0.0.20\SQLEXPRESS,1533`, "Login failed", "SQL Server 15.0.2000.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("detailed output missing %q", want)
		}
	}
	if strings.Contains(out, "this machine") {
		t.Error("hosts without instances should be hidden unless all is set")
	}

	all := RenderNodesDetailed(sampleNodes(), 90, true)
	if !strings.Contains(all, "this machine") {
		t.Error("all should include the local machine")
	}

	empty := RenderNodesDetailed(nil, 90, false)
	if !strings.Contains(empty, "No SQL Server instances found") {
		t.Errorf("empty output = %q", empty)
	}
}

func TestRenderNodesCompact(t *testing.T) {
	out := RenderNodesCompact(sampleNodes())
	for _, want := range []string{"DESCRIPTOR", "10.0.0.20:1433", `10.0.0.20\SQLEXPRESS,1533`, "login rejected"} {
		if !strings.Contains(out, want) {
			t.Errorf("compact output missing %q", want)
		}
	}
	if got := RenderNodesCompact(nil); got != "No SQL Server instances found" {
		t.Errorf("RenderNodesCompact(nil) = %q", got)
	}
}

func TestCompletionResult(t *testing.T) {
	done := CompletionResult(discovery.CompletionEvent{
		Nodes:    sampleNodes(),
		Outcome:  discovery.OutcomeCompleted,
		Duration: 1500 * time.Millisecond,
	})
	if done.Type != ResultSuccess {
		t.Fatalf("Type = %v, want success", done.Type)
	}
	want := []Detail{{"Hosts", "2"}, {"Instances", "2"}, {"Accessible", "1"}, {"Duration", "1.5s"}}
	for i, d := range want {
		if done.Details[i] != d {
			t.Errorf("Details[%d] = %+v, want %+v", i, done.Details[i], d)
		}
	}

	if r := CompletionResult(discovery.CompletionEvent{Outcome: discovery.OutcomeCancelled}); r.Type != ResultWarning {
		t.Errorf("cancelled Type = %v, want warning", r.Type)
	}

	failed := CompletionResult(discovery.CompletionEvent{Outcome: discovery.OutcomeFailed, Err: errors.New("boom")})
	if failed.Type != ResultFailure || failed.Error == nil {
		t.Errorf("failed result = %+v", failed)
	}
	if !strings.Contains(failed.SetWidth(80).Render(), "boom") {
		t.Error("failure box should include the error")
	}

	fromText := CompletionResult(discovery.CompletionEvent{Outcome: discovery.OutcomeFailed, Error: "remote failure"})
	if fromText.Error == nil || fromText.Error.Error() != "remote failure" {
		t.Errorf("Error = %v", fromText.Error)
	}
}

func TestHeaderRender(t *testing.T) {
	h := NewHeader("SQL Server discovery", "dbscout scan", map[string]string{
		"Subnet": "10.0.0.0/24",
		"Ports":  "1433",
	}).SetWidth(70)

	out := h.Render()
	if !strings.Contains(out, "SQL SERVER DISCOVERY") {
		t.Error("title should be upper-cased")
	}
	if strings.Index(out, "Ports:") > strings.Index(out, "Subnet:") {
		t.Error("params should render in sorted order")
	}
}

func TestChoices(t *testing.T) {
	nodes := sampleNodes()
	nodes[1].Instances[0], nodes[1].Instances[1] = nodes[1].Instances[1], nodes[1].Instances[0]

	choices := Choices(nodes)
	if len(choices) != 2 {
		t.Fatalf("len(Choices) = %d, want 2", len(choices))
	}
	if !choices[0].Instance.Accessible {
		t.Error("accessible instances should be listed first")
	}
	if choices[1].Node.Address != "10.0.0.20" {
		t.Errorf("Node = %q", choices[1].Node.Address)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Errorf("truncate() = %q", got)
	}
}
