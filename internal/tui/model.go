// Package tui is an interactive chat session over the query engine.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/query"
)

// Answerer is the TUI-facing subset of the query engine.
type Answerer interface {
	Answer(ctx context.Context, question string) (*query.Result, error)
}

// exchange is one question and what came back for it.
type exchange struct {
	question string
	answer   string
	sources  []string
	err      error
	took     time.Duration
}

// answerMsg delivers the outcome of an asynchronous question.
type answerMsg struct {
	exchange
}

// Model is the Bubble Tea model for the chat session.
type Model struct {
	engine  Answerer
	timeout time.Duration

	input    textinput.Model
	viewport viewport.Model
	history  []exchange
	summary  string
	status   string
	pending  bool
	ready    bool
}

// New creates a chat model. timeout bounds each question; zero means none.
func New(engine Answerer, summary string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		engine:   engine,
		timeout:  timeout,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Ready. Ctrl+C to quit.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, qh := inputStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + summary, status, input box, input line
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case answerMsg:
		m.pending = false
		m.history = append(m.history, msg.exchange)
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Answered in %s", msg.took.Round(time.Millisecond))
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.status = fmt.Sprintf("Thinking about %q...", q)
			m.input.Reset()
			return m, m.ask(q)
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask runs the question off the UI loop.
func (m Model) ask(question string) tea.Cmd {
	engine, timeout := m.engine, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		res, err := engine.Answer(ctx, question)
		ex := exchange{question: question, err: err, took: time.Since(start)}
		if err == nil {
			ex.answer = res.Answer
			ex.sources = res.UniqueSources()
		}
		return answerMsg{ex}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Local RAG Chat")
	summary := summaryStyle.Render(m.summary)
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, ex := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + ex.question))
		b.WriteString("\n")
		if ex.err != nil {
			b.WriteString(errorStyle.Render("Error: " + ex.err.Error()))
			continue
		}
		b.WriteString(ex.answer)
		if len(ex.sources) > 0 {
			b.WriteString("\n")
			b.WriteString(sourceStyle.Render("Sources: " + strings.Join(ex.sources, ", ")))
		}
	}
	return b.String()
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	summaryStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Run starts the session on the terminal and blocks until the user quits.
func Run(engine Answerer, summary string, timeout time.Duration) error {
	_, err := tea.NewProgram(New(engine, summary, timeout), tea.WithAltScreen()).Run()
	return err
}
