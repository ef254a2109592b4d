package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/muurk/dbscout/internal/discovery"
)

// InstanceStatus returns a short label for an instance's classification
func InstanceStatus(inst discovery.Instance) string {
	switch {
	case inst.Accessible:
		return "accessible"
	case inst.LastError != "":
		return "login rejected"
	default:
		return "inaccessible"
	}
}

// instanceVersion prefers the handshake version and falls back to the
// version the browser advertised
func instanceVersion(inst discovery.Instance) string {
	if inst.Version != "" {
		return inst.Version
	}
	if v := inst.GetProperty("Version"); v != "" {
		return "SQL Server " + v
	}
	return ""
}

// RenderNodesDetailed renders one block per host with its instances
// indented below. Hosts without instances are shown only when all is set.
func RenderNodesDetailed(nodes []discovery.Node, width int, all bool) string {
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	var blocks []string
	for _, node := range nodes {
		if !all && !node.HasInstances() {
			continue
		}
		blocks = append(blocks, renderNode(node, width))
	}

	if len(blocks) == 0 {
		return lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true).
			PaddingLeft(2).
			Render(WarningMarker + " No SQL Server instances found")
	}
	return strings.Join(blocks, "\n\n")
}

// renderNode renders a single host block
func renderNode(node discovery.Node, width int) string {
	title := node.Address
	if node.Hostname != "" && node.Hostname != node.Address {
		title = fmt.Sprintf("%s (%s)", node.Address, node.Hostname)
	}
	if node.IsLocalMachine {
		title += " [this machine]"
	}

	var note string
	if node.Responding && !node.IsLocalMachine {
		note = StepNoteStyle.Render(fmt.Sprintf("%d ms", node.ResponseTimeMs))
	}

	lines := []string{"  " + NodeTitleStyle.Render("▸ "+title) + "  " + note}

	if len(node.Instances) == 0 {
		lines = append(lines, StepPendingStyle.Render("      no SQL Server instances"))
	}

	for _, inst := range node.Instances {
		lines = append(lines, renderInstance(inst, width)...)
	}
	return strings.Join(lines, "\n")
}

// renderInstance renders an instance line plus its detail lines
func renderInstance(inst discovery.Instance, width int) []string {
	marker := InstanceAccessibleStyle.Render(SuccessMarker)
	nameStyle := InstanceAccessibleStyle
	if !inst.Accessible {
		marker = InstanceDeniedStyle.Render(WarningMarker)
		nameStyle = InstanceDeniedStyle
	}

	var tags []string
	if inst.IsNamedInstance {
		tags = append(tags, "named")
	}
	if inst.DiscoveredViaBrowserProtocol {
		tags = append(tags, "browser")
	}
	tags = append(tags, InstanceStatus(inst))

	lines := []string{fmt.Sprintf("    %s %s  %s",
		marker,
		nameStyle.Render(inst.Descriptor),
		StepNoteStyle.Render("("+strings.Join(tags, ", ")+")"))}

	detail := lipgloss.NewStyle().
		Foreground(MutedColor).
		PaddingLeft(8).
		Width(width - 2)

	if inst.ServerName != "" {
		lines = append(lines, detail.Render(fmt.Sprintf("Server:  %s  Port: %d", inst.ServerName, inst.Port)))
	}
	if v := instanceVersion(inst); v != "" {
		lines = append(lines, detail.Render("Version: "+v))
	}
	if inst.LastError != "" {
		lines = append(lines, detail.Foreground(WarningColor).Render("Error:   "+inst.LastError))
	}
	return lines
}

// RenderNodesCompact renders one table row per instance
func RenderNodesCompact(nodes []discovery.Node) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(MutedColor)).
		Headers("DESCRIPTOR", "HOST", "STATUS", "VERSION").
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Foreground(PrimaryColor).Bold(true)
			}
			return s
		})

	rows := 0
	for _, node := range nodes {
		for _, inst := range node.Instances {
			t.Row(inst.Descriptor, node.Hostname, InstanceStatus(inst), truncate(instanceVersion(inst), 48))
			rows++
		}
	}

	if rows == 0 {
		return "No SQL Server instances found"
	}
	return t.String()
}

// truncate shortens s to n runes with an ellipsis
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
