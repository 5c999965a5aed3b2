package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	enginesync "taskbridge/backend/sync"
)

// pickerState is the step the picker is on.
type pickerState int

const (
	statePickConflict pickerState = iota
	statePickStrategy
	stateDone
)

var pickerStrategies = []enginesync.Strategy{
	enginesync.StrategyLocalWins,
	enginesync.StrategyRemoteWins,
	enginesync.StrategyNewestWins,
}

// pickerModel is the bubbletea model for interactive conflict
// resolution. A filter input narrows the conflict list by task id or
// title; enter moves to strategy choice, enter again resolves.
type pickerModel struct {
	engine    *enginesync.Engine
	conflicts []enginesync.Conflict
	filter    textinput.Model

	state    pickerState
	cursor   int
	strategy int
	resolved int
	lastErr  error
	quitting bool
}

func newPickerModel(engine *enginesync.Engine) pickerModel {
	ti := textinput.New()
	ti.Placeholder = "filter by id or title..."
	ti.Focus()
	ti.Width = 40

	return pickerModel{
		engine:    engine,
		conflicts: engine.GetConflicts(),
		filter:    ti,
	}
}

func (m pickerModel) Init() tea.Cmd {
	return textinput.Blink
}

// visible returns the conflicts matching the filter text.
func (m pickerModel) visible() []enginesync.Conflict {
	query := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	if query == "" {
		return m.conflicts
	}
	var out []enginesync.Conflict
	for _, c := range m.conflicts {
		if strings.Contains(fmt.Sprintf("%d", c.TaskID), query) ||
			strings.Contains(strings.ToLower(c.Local.Title), query) {
			out = append(out, c)
		}
	}
	return out
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		return m, cmd
	}

	switch keyMsg.String() {
	case "ctrl+c", "esc":
		if m.state == statePickStrategy {
			m.state = statePickConflict
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit

	case "up", "ctrl+p":
		if m.state == statePickStrategy {
			if m.strategy > 0 {
				m.strategy--
			}
		} else if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "ctrl+n":
		if m.state == statePickStrategy {
			if m.strategy < len(pickerStrategies)-1 {
				m.strategy++
			}
		} else if m.cursor < len(m.visible())-1 {
			m.cursor++
		}
		return m, nil

	case "enter":
		return m.handleEnter()
	}

	if m.state == statePickConflict {
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		if m.cursor >= len(m.visible()) {
			m.cursor = 0
		}
		return m, cmd
	}
	return m, nil
}

func (m pickerModel) handleEnter() (tea.Model, tea.Cmd) {
	switch m.state {
	case statePickConflict:
		if len(m.visible()) == 0 {
			return m, nil
		}
		m.state = statePickStrategy
		m.strategy = 0
		return m, nil

	case statePickStrategy:
		visible := m.visible()
		if m.cursor >= len(visible) {
			m.state = statePickConflict
			return m, nil
		}
		target := visible[m.cursor]
		_, err := m.engine.ResolveConflict(target.TaskID, pickerStrategies[m.strategy])
		m.lastErr = err
		if err == nil {
			m.resolved++
		}

		m.conflicts = m.engine.GetConflicts()
		m.cursor = 0
		m.state = statePickConflict
		if len(m.conflicts) == 0 {
			m.state = stateDone
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Resolve conflicts") + "\n\n")

	switch m.state {
	case statePickConflict:
		b.WriteString(m.filter.View() + "\n\n")
		visible := m.visible()
		if len(visible) == 0 {
			b.WriteString(dimStyle.Render("  no conflicts match") + "\n")
		}
		for i, c := range visible {
			marker := "  "
			line := fmt.Sprintf("task %d  %q vs %q", c.TaskID, c.Local.Title, c.Remote.Title)
			if i == m.cursor {
				marker = conflictMark.Render("> ")
				line = conflictMark.Render(line)
			}
			b.WriteString(marker + line + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter: choose  ↑/↓: move  esc: quit"))

	case statePickStrategy:
		visible := m.visible()
		if m.cursor < len(visible) {
			b.WriteString(renderConflict(visible[m.cursor]) + "\n\n")
		}
		for i, s := range pickerStrategies {
			marker := "  "
			line := string(s)
			if i == m.strategy {
				marker = conflictMark.Render("> ")
				line = conflictMark.Render(line)
			}
			b.WriteString(marker + line + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter: resolve  esc: back"))
	}

	if m.lastErr != nil {
		b.WriteString("\n" + errStyle.Render("error: "+m.lastErr.Error()))
	}
	return b.String()
}

// runConflictPicker drives the picker until quit and reports the tally.
func runConflictPicker(engine *enginesync.Engine) error {
	if len(engine.GetConflicts()) == 0 {
		fmt.Println("No live conflicts.")
		return nil
	}

	final, err := tea.NewProgram(newPickerModel(engine)).Run()
	if err != nil {
		return fmt.Errorf("interactive resolution failed: %w", err)
	}
	if m, ok := final.(pickerModel); ok {
		fmt.Printf("Resolved %d conflict(s); %d remaining.\n",
			m.resolved, len(engine.GetConflicts()))
	}
	return nil
}
