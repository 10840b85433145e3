package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lvillar/bulkdoc/batch"
	"github.com/lvillar/bulkdoc/pipeline"
)

type jobFunc func(ctx context.Context, onProgress batch.ProgressFunc) (*pipeline.Outcome, error)

// reporter shows batch progress while a job runs.
type reporter interface {
	observe(ev batch.Event)
	run(ctx context.Context, job jobFunc) (*pipeline.Outcome, error)
}

type quietReporter struct{}

func (quietReporter) observe(batch.Event) {}

func (quietReporter) run(ctx context.Context, job jobFunc) (*pipeline.Outcome, error) {
	return job(ctx, nil)
}

// lineReporter prints one line per finished record.
type lineReporter struct {
	w      io.Writer
	mu     sync.Mutex
	failed int
}

func (r *lineReporter) observe(ev batch.Event) {
	if ev.Step != batch.Failed {
		return
	}
	r.mu.Lock()
	r.failed++
	r.mu.Unlock()
}

func (r *lineReporter) run(ctx context.Context, job jobFunc) (*pipeline.Outcome, error) {
	return job(ctx, func(done, total int) {
		r.mu.Lock()
		defer r.mu.Unlock()
		fmt.Fprintf(r.w, "[%d/%d] processed, %d failed\n", done, total, r.failed)
	})
}

type (
	progressMsg struct{ done, total int }
	failedMsg   struct{}
	finishedMsg struct{}
)

// tuiReporter drives a bubbletea progress bar on a terminal. Ctrl+C cancels
// the batch; the job still returns its partial outcome.
type tuiReporter struct {
	w     io.Writer
	title string

	mu      sync.Mutex
	program *tea.Program
}

func (r *tuiReporter) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (r *tuiReporter) observe(ev batch.Event) {
	if ev.Step == batch.Failed {
		r.send(failedMsg{})
	}
}

func (r *tuiReporter) run(parent context.Context, job jobFunc) (*pipeline.Outcome, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	model := newProgressModel(r.title, cancel)
	p := tea.NewProgram(model, tea.WithOutput(r.w), tea.WithContext(parent))
	r.mu.Lock()
	r.program = p
	r.mu.Unlock()

	type result struct {
		out *pipeline.Outcome
		err error
	}
	resc := make(chan result, 1)
	go func() {
		out, err := job(ctx, func(done, total int) { r.send(progressMsg{done, total}) })
		resc <- result{out, err}
		p.Send(finishedMsg{})
	}()

	// The program exits early with ErrProgramKilled when parent is
	// cancelled; the job result is still authoritative.
	_, _ = p.Run()
	res := <-resc
	return res.out, res.err
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

type progressModel struct {
	title       string
	bar         progress.Model
	spin        spinner.Model
	done, total int
	failed      int
	cancel      context.CancelFunc
	stopping    bool
	finished    bool
}

func newProgressModel(title string, cancel context.CancelFunc) progressModel {
	return progressModel{
		title:  title,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spin:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		cancel: cancel,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.stopping {
				m.stopping = true
				m.cancel()
			}
		}
		return m, nil
	case progressMsg:
		m.done, m.total = msg.done, msg.total
		return m, nil
	case failedMsg:
		m.failed++
		return m, nil
	case finishedMsg:
		m.finished = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

func (m progressModel) View() string {
	if m.finished {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.spin.View() + " " + titleStyle.Render(m.title) + "\n")
	b.WriteString(m.bar.ViewAs(m.percent()) + "\n")
	status := fmt.Sprintf("%d/%d records", m.done, m.total)
	if m.failed > 0 {
		status += ", " + errorStyle.Render(fmt.Sprintf("%d failed", m.failed))
	}
	if m.stopping {
		status += mutedStyle.Render(" (stopping after the current record)")
	} else {
		status += mutedStyle.Render(" (ctrl+c to stop)")
	}
	b.WriteString(status + "\n")
	return b.String()
}
