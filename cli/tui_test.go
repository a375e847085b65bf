package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahmaliyi/securevault/vault"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds a key and runs the resulting command once, feeding its
// message back, the way the tea runtime would for a single step.
func press(t *testing.T, m model, key string) model {
	t.Helper()
	next, cmd := m.Update(keyMsg(key))
	m = next.(model)
	return settle(t, m, cmd)
}

func settle(t *testing.T, m model, cmd tea.Cmd) model {
	t.Helper()
	for i := 0; cmd != nil && i < 4; i++ {
		msg := runCmd(cmd)
		if msg == nil {
			return m
		}
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(model)
	}
	return m
}

// runCmd executes cmd, unwrapping batches and skipping timers.
func runCmd(cmd tea.Cmd) tea.Msg {
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, c := range batch {
				if c == nil {
					continue
				}
				if m := runCmd(c); m != nil {
					return m
				}
			}
			return nil
		}
		return msg
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func loadedModel(t *testing.T, s *vault.Session) (model, *fakeClipboard) {
	t.Helper()
	clip, fake := testClipboard(time.Hour)
	m := newModel(context.Background(), s, clip, nil)
	m = settle(t, m, m.Init())
	return m, fake
}

func TestTUIListsAndNavigates(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, t.TempDir())
	_, err := AddNote(ctx, s, "first", "one")
	require.NoError(t, err)
	_, err = AddNote(ctx, s, "second", "two")
	require.NoError(t, err)

	m, _ := loadedModel(t, s)
	require.Len(t, m.entries, 2)
	assert.Contains(t, m.View(), "first")

	m = press(t, m, "j")
	assert.Equal(t, 1, m.cursor)
	m = press(t, m, "j")
	assert.Equal(t, 1, m.cursor, "cursor stops at the last row")
	m = press(t, m, "k")
	assert.Equal(t, 0, m.cursor)
}

func TestTUIShowAndReveal(t *testing.T) {
	s := newSession(t, t.TempDir())
	_, err := AddNote(context.Background(), s, "pin", "4321")
	require.NoError(t, err)
	m, _ := loadedModel(t, s)

	m = press(t, m, "enter")
	require.Equal(t, showScreen, m.state)
	assert.NotContains(t, m.View(), "4321")
	assert.Contains(t, m.View(), "********")

	next, cmd := m.Update(keyMsg("v"))
	m = next.(model)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "4321")

	next, _ = m.Update(hideSecretMsg{})
	m = next.(model)
	assert.NotContains(t, m.View(), "4321")

	m = press(t, m, "esc")
	assert.Equal(t, tableScreen, m.state)
}

func TestTUIAddNote(t *testing.T) {
	s := newSession(t, t.TempDir())
	m, _ := loadedModel(t, s)

	m = press(t, m, "a")
	require.Equal(t, addScreen, m.state)
	m = press(t, m, "ctrl+s")
	assert.Equal(t, addScreen, m.state, "a title is required")
	assert.Contains(t, m.msg, "needs a title")

	for _, r := range "todo" {
		m = press(t, m, string(r))
	}
	m = press(t, m, "tab")
	for _, r := range "buy milk" {
		m = press(t, m, string(r))
	}
	m = press(t, m, "ctrl+s")

	assert.Equal(t, tableScreen, m.state)
	assert.Equal(t, "Entry added.", m.msg)
	require.Len(t, m.entries, 1)
	assert.Equal(t, "todo", m.entries[0].Title)

	docs, err := s.Docs()
	require.NoError(t, err)
	for _, d := range docs {
		assert.Equal(t, "buy milk", d.Content)
	}
}

func TestTUIDeleteAndCopy(t *testing.T) {
	s := newSession(t, t.TempDir())
	_, err := AddNote(context.Background(), s, "secret", "hunter2")
	require.NoError(t, err)
	m, fake := loadedModel(t, s)

	m = press(t, m, "c")
	assert.Equal(t, "hunter2", fake.get())
	assert.Contains(t, m.msg, "Copied!")

	m = press(t, m, "d")
	assert.Equal(t, "Entry deleted.", m.msg)
	assert.Empty(t, m.entries)
	assert.Contains(t, m.View(), "The vault is empty.")

	m = press(t, m, "d")
	m = press(t, m, "enter")
	assert.Equal(t, tableScreen, m.state)
}

func TestTUIStatusMessages(t *testing.T) {
	s := newSession(t, t.TempDir())
	m, _ := loadedModel(t, s)

	next, _ := m.Update(errMsg{errors.New("boom")})
	m = next.(model)
	assert.Equal(t, "Error: boom", m.msg)
	stale := m.msgSeq

	next, _ = m.Update(fileChangedMsg{path: "/tmp/x.vault"})
	m = next.(model)
	assert.Contains(t, m.msg, "/tmp/x.vault")

	next, _ = m.Update(clearStatusMsg{seq: stale})
	m = next.(model)
	assert.NotEmpty(t, m.msg, "an older clear leaves a newer status")

	next, _ = m.Update(clearStatusMsg{seq: m.msgSeq})
	m = next.(model)
	assert.Empty(t, m.msg)
}

func TestTUIQuit(t *testing.T) {
	s := newSession(t, t.TempDir())
	m, _ := loadedModel(t, s)
	_, cmd := m.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

// exportedDocs exports s and reads the notes back through a fresh session.
func exportedDocs(t *testing.T, s *vault.Session, dir, name string) map[string]vault.Doc {
	t.Helper()
	ctx := context.Background()
	loc, err := s.ExportVault(ctx, name)
	require.NoError(t, err)
	other := newSession(t, dir)
	require.NoError(t, other.ImportVault(ctx, loc, []byte("pw")))
	docs, err := other.Docs()
	require.NoError(t, err)
	return docs
}

func typeText(t *testing.T, m model, text string) model {
	t.Helper()
	for _, r := range text {
		m = press(t, m, string(r))
	}
	return m
}

func TestTUIDraftSurvivesExport(t *testing.T) {
	dir := t.TempDir()
	s := newSession(t, dir)
	m, _ := loadedModel(t, s)

	m = press(t, m, "a")
	m = typeText(t, m, "plan")
	m = press(t, m, "tab")
	m = typeText(t, m, "step one")

	docs := exportedDocs(t, s, dir, "mid-edit")
	require.Len(t, docs, 1, "the open form is part of the export")
	var staged vault.Doc
	for _, d := range docs {
		staged = d
	}
	assert.Equal(t, "plan", staged.Title)
	assert.Equal(t, "step one", staged.Content)

	m = typeText(t, m, ", two")
	m = press(t, m, "ctrl+s")
	assert.Equal(t, "Entry added.", m.msg)
	require.Len(t, m.entries, 1, "saving the draft does not duplicate it")

	saved, err := s.Docs()
	require.NoError(t, err)
	require.Contains(t, saved, staged.ID)
	assert.Equal(t, "step one, two", saved[staged.ID].Content)

	assert.Len(t, exportedDocs(t, s, dir, "after-save"), 1)
}

func TestTUICancelledDraftIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	s := newSession(t, dir)
	m, _ := loadedModel(t, s)

	m = press(t, m, "a")
	m = typeText(t, m, "scratch")
	require.Len(t, exportedDocs(t, s, dir, "mid-edit"), 1)

	m = press(t, m, "esc")
	assert.Equal(t, tableScreen, m.state)
	assert.Nil(t, m.draft)

	assert.Empty(t, exportedDocs(t, s, dir, "after-cancel"))
	docs, err := s.Docs()
	require.NoError(t, err)
	assert.Empty(t, docs)
}
