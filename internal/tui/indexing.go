package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"readit/internal/index"
	"readit/internal/walker"
)

// IndexFunc runs one indexing pass. The TUI supplies an approver that asks
// the user inside the running program and a progress callback that feeds
// the spinner view.
type IndexFunc func(ctx context.Context, approver index.Approver, onProgress index.ProgressFunc) (*index.Stats, error)

type indexingModel struct {
	spinner        spinner.Model
	phase          string
	filesProcessed int
	filesTotal     int
	started        time.Time
	done           bool
	stats          *index.Stats
	err            error
}

func newIndexingModel() indexingModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle
	return indexingModel{
		spinner: sp,
		phase:   "Scanning files...",
		started: time.Now(),
	}
}

// indexDoneMsg is sent when indexing completes.
type indexDoneMsg struct {
	stats *index.Stats
	err   error
}

// indexProgressMsg is sent by the indexer's progress callback.
type indexProgressMsg struct {
	phase          string
	filesProcessed int
	filesTotal     int
}

// programApprover asks the running program to confirm the changed files and
// blocks until the user answers or ctx ends.
type programApprover struct {
	ref *programRef
}

func (a programApprover) Approve(ctx context.Context, changed []walker.SourceFile) ([]walker.SourceFile, error) {
	reply := make(chan []walker.SourceFile, 1)
	a.ref.send(approveRequestMsg{files: changed, reply: reply})
	select {
	case files := <-reply:
		return files, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func runIndex(ctx context.Context, run IndexFunc, ref *programRef) tea.Cmd {
	return func() tea.Msg {
		stats, err := run(ctx, programApprover{ref: ref}, func(phase string, processed, total int) {
			ref.send(indexProgressMsg{phase: phase, filesProcessed: processed, filesTotal: total})
		})
		return indexDoneMsg{stats: stats, err: err}
	}
}

func (m indexingModel) Update(msg tea.Msg) (indexingModel, tea.Cmd) {
	switch msg := msg.(type) {
	case indexDoneMsg:
		m.done = true
		m.stats = msg.stats
		m.err = msg.err
		return m, nil
	case indexProgressMsg:
		m.phase = msg.phase
		m.filesProcessed = msg.filesProcessed
		m.filesTotal = msg.filesTotal
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m indexingModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  Indexing") + "\n\n"

	if m.done {
		if m.err != nil {
			s += errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n"
			s += dimStyle.Render("  Press Enter to continue to chat anyway, or q to quit.") + "\n"
			return s
		}
		s += successStyle.Render("  ✓ Indexing complete!") + "\n\n"
		if st := m.stats; st != nil {
			mode := "incremental"
			if st.Full {
				mode = "full"
			}
			s += fmt.Sprintf("  Mode: %s (%s)\n", mode, time.Since(m.started).Round(time.Second))
			s += fmt.Sprintf("  Files: %d total, %d changed, %d processed, %d skipped, %d pruned\n",
				st.FilesTotal, st.FilesChanged, st.FilesProcessed, st.FilesSkipped, st.FilesPruned)
			s += fmt.Sprintf("  Rows written: %d\n", st.Rows)
			if declined := st.FilesChanged - st.FilesProcessed; !st.Full && declined > 0 {
				s += warnStyle.Render(fmt.Sprintf("  %d changed files were not approved and stay stale", declined)) + "\n"
			}
			if st.SummaryUpdated {
				s += "  Project summary regenerated\n"
			}
			s += fmt.Sprintf("  Tokens: %d\n", st.Tokens())
		}
		s += "\n"
		s += dimStyle.Render("  Press Enter to start chatting") + "\n"
		return s
	}

	s += fmt.Sprintf("  %s %s\n", m.spinner.View(), m.phase)
	if m.filesTotal > 0 {
		s += fmt.Sprintf("  %d / %d files processed\n", m.filesProcessed, m.filesTotal)
	}
	s += "\n"
	s += dimStyle.Render("  This may take a while for large codebases...") + "\n"
	return s
}
