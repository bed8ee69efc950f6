package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readit/internal/walker"
)

func changedFiles() []walker.SourceFile {
	return []walker.SourceFile{
		{Path: "/p/a.go", RelPath: "a.go"},
		{Path: "/p/b.go", RelPath: "b.go"},
		{Path: "/p/c.go", RelPath: "c.go"},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestConfirm_DeselectAndAccept(t *testing.T) {
	reply := make(chan []walker.SourceFile, 1)
	m := newConfirmModel(approveRequestMsg{files: changedFiles(), reply: reply})

	m, _ = m.Update(key("down"))
	m, _ = m.Update(key(" "))
	m, _ = m.Update(key("enter"))

	require.True(t, m.answered)
	got := <-reply
	require.Len(t, got, 2)
	assert.Equal(t, "a.go", got[0].RelPath)
	assert.Equal(t, "c.go", got[1].RelPath)
}

func TestConfirm_ToggleAllAndDecline(t *testing.T) {
	reply := make(chan []walker.SourceFile, 1)
	m := newConfirmModel(approveRequestMsg{files: changedFiles(), reply: reply})

	m, _ = m.Update(key("a"))
	assert.Empty(t, m.chosen())
	m, _ = m.Update(key("a"))
	assert.Len(t, m.chosen(), 3)

	m, _ = m.Update(key("n"))
	assert.Nil(t, <-reply)

	// Later keys do not answer twice.
	m, _ = m.Update(key("enter"))
	assert.Empty(t, reply)
}

func TestModel_ApproveRequestSwitchesView(t *testing.T) {
	m := Model{state: ViewIndexing, indexing: newIndexingModel()}
	reply := make(chan []walker.SourceFile, 1)

	next, _ := m.Update(approveRequestMsg{files: changedFiles(), reply: reply})
	m = next.(Model)
	assert.Equal(t, ViewConfirm, m.state)
	assert.Contains(t, m.View(), "3 changed files")

	next, _ = m.Update(key("y"))
	m = next.(Model)
	assert.Equal(t, ViewIndexing, m.state)
	assert.Len(t, <-reply, 3)
}
