// Package tui is the interactive terminal front end: an indexing screen with
// change confirmation, followed by a streaming chat over the index.
package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"readit/internal/rag"
)

// ViewState represents which screen is active.
type ViewState int

const (
	ViewIndexing ViewState = iota
	ViewConfirm
	ViewChat
)

// programRef is an indirect pointer to the tea.Program so background goroutines
// can send messages. It must be set after tea.NewProgram returns but before Run.
type programRef struct {
	p *tea.Program
}

func (r *programRef) send(msg tea.Msg) {
	if r != nil && r.p != nil {
		r.p.Send(msg)
	}
}

// Config holds configuration passed from the CLI layer.
type Config struct {
	// Index, when set, runs before the chat opens.
	Index IndexFunc
	// Engine answers chat questions. Required.
	Engine *rag.Engine
}

// Model is the top-level Bubble Tea model.
type Model struct {
	ctx    context.Context
	state  ViewState
	config Config
	ref    *programRef
	width  int
	height int

	indexing indexingModel
	confirm  confirmModel
	chat     chatModel
}

func newModel(ctx context.Context, cfg Config, ref *programRef) Model {
	m := Model{
		ctx:    ctx,
		config: cfg,
		ref:    ref,
		chat:   newChatModel(ctx, cfg.Engine, ref),
	}
	if cfg.Index != nil {
		m.state = ViewIndexing
		m.indexing = newIndexingModel()
	} else {
		m.state = ViewChat
	}
	return m
}

func (m Model) Init() tea.Cmd {
	if m.state == ViewIndexing {
		return tea.Batch(m.indexing.spinner.Tick, runIndex(m.ctx, m.config.Index, m.ref))
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.state == ViewChat {
			var c tea.Cmd
			m.chat, c = m.chat.Update(msg)
			return m, c
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.state == ViewIndexing {
				return m, tea.Quit
			}
		}

	case approveRequestMsg:
		m.confirm = newConfirmModel(msg)
		m.state = ViewConfirm
		return m, nil
	}

	var cmd tea.Cmd

	switch m.state {
	case ViewConfirm:
		m.confirm, cmd = m.confirm.Update(msg)
		if m.confirm.answered {
			m.state = ViewIndexing
		}
		if _, isKey := msg.(tea.KeyMsg); !isKey {
			// Progress and completion still belong to the indexing screen.
			m.indexing, _ = m.indexing.Update(msg)
		}
		return m, cmd

	case ViewIndexing:
		m.indexing, cmd = m.indexing.Update(msg)
		if cmd != nil {
			return m, cmd
		}
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter && m.indexing.done {
			m.state = ViewChat
			m.chat.initViewport(m.width, m.height)
			return m, nil
		}

	case ViewChat:
		m.chat, cmd = m.chat.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	switch m.state {
	case ViewIndexing:
		return m.indexing.View(m.width, m.height)
	case ViewConfirm:
		return m.confirm.View(m.width, m.height)
	case ViewChat:
		return m.chat.View(m.width, m.height)
	}
	return ""
}

// Run starts the TUI program and blocks until the user quits. Background
// indexing is cancelled when the program exits.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Engine == nil {
		return errors.New("tui: nil engine")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ref := &programRef{}
	p := tea.NewProgram(newModel(ctx, cfg, ref), tea.WithAltScreen(), tea.WithContext(ctx))
	ref.p = p
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
