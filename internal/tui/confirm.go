package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"readit/internal/walker"
)

// approveRequestMsg asks the running program to confirm a changed-file list.
type approveRequestMsg struct {
	files []walker.SourceFile
	reply chan<- []walker.SourceFile
}

type confirmModel struct {
	files    []walker.SourceFile
	selected []bool
	cursor   int
	reply    chan<- []walker.SourceFile
	answered bool
}

func newConfirmModel(req approveRequestMsg) confirmModel {
	sel := make([]bool, len(req.files))
	for i := range sel {
		sel[i] = true
	}
	return confirmModel{files: req.files, selected: sel, reply: req.reply}
}

func (m confirmModel) chosen() []walker.SourceFile {
	var out []walker.SourceFile
	for i, f := range m.files {
		if m.selected[i] {
			out = append(out, f)
		}
	}
	return out
}

func (m confirmModel) answer(files []walker.SourceFile) confirmModel {
	if !m.answered {
		m.reply <- files
		m.answered = true
	}
	return m
}

func (m confirmModel) Update(msg tea.Msg) (confirmModel, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || m.answered {
		return m, nil
	}
	switch keyMsg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.files)-1 {
			m.cursor++
		}
	case " ", "x":
		if len(m.files) > 0 {
			m.selected[m.cursor] = !m.selected[m.cursor]
		}
	case "a":
		all := true
		for _, s := range m.selected {
			all = all && s
		}
		for i := range m.selected {
			m.selected[i] = !all
		}
	case "enter", "y":
		m = m.answer(m.chosen())
	case "n", "esc":
		m = m.answer(nil)
	}
	return m, nil
}

func (m confirmModel) View(width, height int) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("  %d changed files", len(m.files))) + "\n\n")

	// Keep the cursor visible: header and footer take about eight lines.
	visible := max(height-8, 3)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := min(start+visible, len(m.files))

	for i := start; i < end; i++ {
		b.WriteString("  ")
		box := dimStyle.Render("[ ]")
		if m.selected[i] {
			box = checkedStyle.Render("[x]")
		}
		if i == m.cursor {
			b.WriteString(box + " " + selectedStyle.Render(m.files[i].RelPath) + "\n")
		} else {
			b.WriteString(box + " " + listItemStyle.Render(m.files[i].RelPath) + "\n")
		}
	}
	if end < len(m.files) {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  ... %d more", len(m.files)-end)) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  space toggle • a toggle all • enter/y index selected • n/esc skip"))
	b.WriteString("\n")
	return b.String()
}

// standaloneConfirm wraps confirmModel as a full program for Confirm.
type standaloneConfirm struct {
	confirm confirmModel
	width   int
	height  int
}

func (m standaloneConfirm) Init() tea.Cmd { return nil }

func (m standaloneConfirm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.confirm = m.confirm.answer(nil)
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.confirm, cmd = m.confirm.Update(msg)
	if m.confirm.answered {
		return m, tea.Quit
	}
	return m, cmd
}

func (m standaloneConfirm) View() string {
	if m.confirm.answered {
		return ""
	}
	return m.confirm.View(m.width, m.height)
}

// Confirm shows the changed files and returns the ones the user approved.
// It satisfies index.ApproverFunc.
func Confirm(ctx context.Context, changed []walker.SourceFile) ([]walker.SourceFile, error) {
	reply := make(chan []walker.SourceFile, 1)
	model := standaloneConfirm{confirm: newConfirmModel(approveRequestMsg{files: changed, reply: reply})}
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		return nil, fmt.Errorf("confirm changed files: %w", err)
	}
	select {
	case files := <-reply:
		return files, nil
	default:
		return nil, nil
	}
}
