package ui

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/dbscout/internal/discovery"
)

// ErrNoSelection is returned when the picker is dismissed without a choice
var ErrNoSelection = errors.New("no instance selected")

// Choice is an instance picked from scan results together with its host
type Choice struct {
	Node     discovery.Node
	Instance discovery.Instance
}

// instanceItem wraps an instance for use with bubbles/list
type instanceItem struct {
	choice Choice
}

// FilterValue implements list.Item
func (i instanceItem) FilterValue() string {
	return i.choice.Instance.Descriptor + " " + i.choice.Node.Hostname + " " + i.choice.Instance.ServerName
}

// Title returns the descriptor for list display
func (i instanceItem) Title() string {
	return i.choice.Instance.Descriptor
}

// Description returns instance details for list display
func (i instanceItem) Description() string {
	desc := fmt.Sprintf("%s • %s", i.choice.Node.Hostname, InstanceStatus(i.choice.Instance))
	if v := instanceVersion(i.choice.Instance); v != "" {
		desc += " • " + truncate(v, 40)
	}
	return desc
}

// PickerModel lets the user choose one discovered instance
type PickerModel struct {
	list     list.Model
	selected *Choice
	quitting bool
}

// Choices flattens nodes into pickable instances, accessible ones first
func Choices(nodes []discovery.Node) []Choice {
	var accessible, rest []Choice
	for _, node := range nodes {
		for _, inst := range node.Instances {
			c := Choice{Node: node, Instance: inst}
			if inst.Accessible {
				accessible = append(accessible, c)
			} else {
				rest = append(rest, c)
			}
		}
	}
	return append(accessible, rest...)
}

// NewPickerModel creates a picker over choices
func NewPickerModel(choices []Choice) PickerModel {
	items := make([]list.Item, len(choices))
	for i, c := range choices {
		items[i] = instanceItem{choice: c}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(SuccessColor).
		BorderForeground(PrimaryColor)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		BorderForeground(PrimaryColor)

	width, height := GetTerminalSize()
	l := list.New(items, delegate, width, max(10, min(height-2, len(items)*3+8)))
	l.Title = "Select a SQL Server instance"
	l.Styles.Title = lipgloss.NewStyle().
		Foreground(TextColor).
		Background(PrimaryColor).
		Padding(0, 1)
	l.SetShowStatusBar(false)

	return PickerModel{list: l}
}

// Init implements tea.Model
func (m PickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		// Let the filter input consume keys while it is open
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(instanceItem); ok {
				c := item.choice
				m.selected = &c
			}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m PickerModel) View() string {
	if m.selected != nil || m.quitting {
		return ""
	}
	return m.list.View()
}

// Selected returns the chosen instance, or nil
func (m PickerModel) Selected() *Choice {
	return m.selected
}

// PickInstance runs the picker and returns the chosen instance
func PickInstance(nodes []discovery.Node, out io.Writer) (Choice, error) {
	choices := Choices(nodes)
	if len(choices) == 0 {
		return Choice{}, fmt.Errorf("no SQL Server instances to choose from")
	}
	if out == nil {
		out = os.Stdout
	}

	final, err := tea.NewProgram(NewPickerModel(choices), tea.WithOutput(out)).Run()
	if err != nil {
		return Choice{}, fmt.Errorf("picker failed: %w", err)
	}
	m, ok := final.(PickerModel)
	if !ok || m.selected == nil {
		return Choice{}, ErrNoSelection
	}
	return *m.selected, nil
}
