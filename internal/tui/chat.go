package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"readit/internal/rag"
)

type chatState int

const (
	chatIdle chatState = iota
	chatSearching
	chatGenerating
)

const chatHelp = `Commands:
  /summary - show the project summary
  /files   - list indexed files
  /clear   - clear the conversation
  /exit    - quit
  /help    - show this help`

type chatModel struct {
	ctx         context.Context
	viewport    viewport.Model
	input       textinput.Model
	spinner     spinner.Model
	renderer    *glamour.TermRenderer
	messages    []chatMessage
	engine      *rag.Engine
	ref         *programRef
	state       chatState
	tokens      int
	width       int
	height      int
	initialized bool
}

type chatMessage struct {
	role    string
	content string
}

// answerChunkMsg carries streamed answer text.
type answerChunkMsg string

// answerDoneMsg is sent when a query completes.
type answerDoneMsg struct {
	usage rag.Usage
	err   error
}

// infoMsg carries the output of a slash command that reads the index.
type infoMsg struct {
	content string
	err     error
}

// streamWriter forwards every write to the program as an answerChunkMsg.
type streamWriter struct {
	ref *programRef
}

func (w streamWriter) Write(p []byte) (int, error) {
	w.ref.send(answerChunkMsg(p))
	return len(p), nil
}

func newChatModel(ctx context.Context, engine *rag.Engine, ref *programRef) chatModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle

	ti := textinput.New()
	ti.Placeholder = "Ask a question about your codebase..."
	ti.CharLimit = 2000
	ti.Focus()

	return chatModel{
		ctx:     ctx,
		spinner: sp,
		input:   ti,
		engine:  engine,
		ref:     ref,
		state:   chatIdle,
	}
}

func (m *chatModel) initViewport(width, height int) {
	m.width = width
	m.height = height

	// viewport + status bar + input + gap
	vpHeight := max(height-3, 5)
	m.viewport = viewport.New(width, vpHeight)
	m.viewport.SetContent(dimStyle.Render("Ask a question about your codebase.\n\n" + chatHelp))

	m.input.Width = width - 4

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err == nil {
		m.renderer = r
	}

	m.initialized = true
}

func askQuestion(ctx context.Context, engine *rag.Engine, question string, ref *programRef) tea.Cmd {
	return func() tea.Msg {
		usage, err := engine.Ask(ctx, question, streamWriter{ref: ref})
		return answerDoneMsg{usage: usage, err: err}
	}
}

func showSummary(ctx context.Context, engine *rag.Engine) tea.Cmd {
	return func() tea.Msg {
		summary, ok, err := engine.Summary(ctx)
		if err != nil {
			return infoMsg{err: err}
		}
		if !ok {
			return infoMsg{content: "No project summary yet. Run `readit index` first."}
		}
		return infoMsg{content: summary}
	}
}

func listFiles(ctx context.Context, engine *rag.Engine) tea.Cmd {
	return func() tea.Msg {
		files, err := engine.Files(ctx)
		if err != nil {
			return infoMsg{err: err}
		}
		if len(files) == 0 {
			return infoMsg{content: "The index is empty."}
		}
		var sb strings.Builder
		for _, f := range files {
			fmt.Fprintf(&sb, "- `%s` %s\n", f.File, f.Purpose)
		}
		return infoMsg{content: sb.String()}
	}
}

func (m *chatModel) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m chatModel) Update(msg tea.Msg) (chatModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.initViewport(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case answerChunkMsg:
		if m.state != chatGenerating {
			m.state = chatGenerating
			m.messages = append(m.messages, chatMessage{role: "assistant"})
		}
		last := &m.messages[len(m.messages)-1]
		last.content += string(msg)
		m.refresh()
		return m, nil

	case answerDoneMsg:
		m.state = chatIdle
		m.tokens += msg.usage.Total()
		if msg.err != nil {
			m.messages = append(m.messages, chatMessage{role: "error", content: msg.err.Error()})
		}
		m.refresh()
		return m, nil

	case infoMsg:
		m.state = chatIdle
		if msg.err != nil {
			m.messages = append(m.messages, chatMessage{role: "error", content: msg.err.Error()})
		} else {
			m.messages = append(m.messages, chatMessage{role: "assistant", content: msg.content})
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.state != chatIdle {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			m.refresh()
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if m.state != chatIdle {
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			question := strings.TrimSpace(m.input.Value())
			if question == "" {
				return m, nil
			}
			m.input.Reset()

			switch question {
			case "/exit", "/quit":
				return m, tea.Quit
			case "/clear":
				m.messages = nil
				m.viewport.SetContent(dimStyle.Render("Conversation cleared."))
				return m, nil
			case "/help":
				m.messages = append(m.messages, chatMessage{role: "system", content: chatHelp})
				m.refresh()
				return m, nil
			case "/summary":
				m.state = chatSearching
				m.refresh()
				return m, tea.Batch(m.spinner.Tick, showSummary(m.ctx, m.engine))
			case "/files":
				m.state = chatSearching
				m.refresh()
				return m, tea.Batch(m.spinner.Tick, listFiles(m.ctx, m.engine))
			}

			m.messages = append(m.messages, chatMessage{role: "user", content: question})
			m.state = chatSearching
			m.refresh()

			return m, tea.Batch(
				m.spinner.Tick,
				askQuestion(m.ctx, m.engine, question, m.ref),
			)
		}
	}

	if m.state == chatIdle {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	// scrolling
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m chatModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return assistantMsgStyle.Render(content)
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return assistantMsgStyle.Render(content)
	}
	return strings.TrimRight(rendered, "\n")
}

func (m chatModel) renderMessages() string {
	var sb strings.Builder
	for _, msg := range m.messages {
		switch msg.role {
		case "user":
			sb.WriteString(userMsgStyle.Render("You: ") + msg.content + "\n\n")
		case "assistant":
			sb.WriteString(m.renderMarkdown(msg.content) + "\n\n")
		case "error":
			sb.WriteString(errorStyle.Render("Error: "+msg.content) + "\n\n")
		case "system":
			sb.WriteString(dimStyle.Render(msg.content) + "\n\n")
		}
	}

	if m.state == chatSearching {
		sb.WriteString(m.spinner.View() + " " + dimStyle.Render("Searching...") + "\n")
	} else if m.state == chatGenerating {
		sb.WriteString(m.spinner.View() + " " + dimStyle.Render("Generating...") + "\n")
	}

	return sb.String()
}

func (m chatModel) View(width, height int) string {
	if !m.initialized {
		return ""
	}

	statusText := "idle"
	switch m.state {
	case chatSearching:
		statusText = "searching..."
	case chatGenerating:
		statusText = "generating..."
	}
	statusBar := statusBarStyle.
		Width(m.width).
		Render(fmt.Sprintf(" readit chat • %s • %d tokens", statusText, m.tokens))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.viewport.View(),
		statusBar,
		m.input.View(),
	)
}
