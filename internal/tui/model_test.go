package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/query"
)

type fakeEngine struct {
	questions []string
	result    *query.Result
	err       error
}

func (f *fakeEngine) Answer(_ context.Context, q string) (*query.Result, error) {
	f.questions = append(f.questions, q)
	return f.result, f.err
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

// submit types q, presses enter and delivers the answer.
func submit(t *testing.T, m Model, q string) Model {
	t.Helper()
	m.input.SetValue(q)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.pending)
	assert.Empty(t, m.input.Value())

	next, _ = m.Update(cmd())
	return next.(Model)
}

func TestAskShowsAnswerAndSources(t *testing.T) {
	engine := &fakeEngine{result: &query.Result{
		Answer:  "Vision is an android.",
		Sources: []string{"data/vision.json", "data/vision.json", "notes.md"},
		Count:   3,
	}}
	m := sized(t, New(engine, "3 entries loaded", time.Second))
	assert.Contains(t, m.View(), "No questions yet.")

	m = submit(t, m, "  who is Vision?  ")
	assert.False(t, m.pending)
	assert.Equal(t, []string{"who is Vision?"}, engine.questions)

	require.Len(t, m.history, 1)
	assert.Equal(t, []string{"data/vision.json", "notes.md"}, m.history[0].sources)

	transcript := m.renderTranscript()
	assert.Contains(t, transcript, "You: who is Vision?")
	assert.Contains(t, transcript, "Vision is an android.")
	assert.Contains(t, transcript, "Sources: data/vision.json, notes.md")
	assert.Contains(t, m.status, "Answered in")
	assert.Contains(t, m.View(), "Local RAG Chat")
}

func TestAskShowsErrors(t *testing.T) {
	engine := &fakeEngine{err: query.ErrNoResults}
	m := submit(t, sized(t, New(engine, "", 0)), "anything")

	require.Len(t, m.history, 1)
	assert.True(t, errors.Is(m.history[0].err, query.ErrNoResults))
	assert.Contains(t, m.status, "no results found")
	assert.Contains(t, m.renderTranscript(), "Error: no results found")
}

func TestBlankInputIsIgnored(t *testing.T) {
	m := sized(t, New(&fakeEngine{}, "", 0))
	m.input.SetValue("   ")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, next.(Model).pending)
}

func TestQuitKeys(t *testing.T) {
	for _, k := range []tea.KeyType{tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc} {
		_, cmd := New(&fakeEngine{}, "", 0).Update(tea.KeyMsg{Type: k})
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	}
}

func TestViewBeforeResize(t *testing.T) {
	assert.Equal(t, "Loading...", New(&fakeEngine{}, "", 0).View())
}
