package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fahmaliyi/securevault/vault"
)

type screen int

const (
	tableScreen screen = iota
	showScreen
	addScreen
)

const (
	statusTTL = 5 * time.Second
	revealTTL = 5 * time.Second
)

type model struct {
	ctx     context.Context
	session *vault.Session
	clip    *Clipboard
	changes <-chan string

	entries  []Entry
	cursor   int
	state    screen
	selected vault.Item
	revealed bool

	titleInput   textinput.Model
	contentInput textarea.Model
	draft        *draft

	msg string
	// bumps on every status so a stale clear does not wipe a newer one
	msgSeq int
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	msgStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("57")).Foreground(lipgloss.Color("0"))
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

type (
	entriesMsg     struct{ entries []Entry }
	statusMsg      struct{ text string }
	errMsg         struct{ err error }
	clearStatusMsg struct{ seq int }
	hideSecretMsg  struct{}
	fileChangedMsg struct{ path string }
)

// RunTUI runs the full-screen interface until the user quits. changes,
// when not nil, delivers paths of vault files rewritten by someone else.
func RunTUI(ctx context.Context, s *vault.Session, clip *Clipboard, changes <-chan string) error {
	m := newModel(ctx, s, clip, changes)
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func newModel(ctx context.Context, s *vault.Session, clip *Clipboard, changes <-chan string) model {
	title := textinput.New()
	title.Placeholder = "Title"
	title.CharLimit = 200

	content := textarea.New()
	content.Placeholder = "Content"
	content.ShowLineNumbers = false

	return model{
		ctx:          ctx,
		session:      s,
		clip:         clip,
		changes:      changes,
		titleInput:   title,
		contentInput: content,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(loadEntriesCmd(m.session), waitForChangeCmd(m.changes))
}

func loadEntriesCmd(s *vault.Session) tea.Cmd {
	return func() tea.Msg {
		entries, err := ListEntries(s)
		if err != nil {
			return errMsg{err}
		}
		return entriesMsg{entries}
	}
}

func deleteCmd(ctx context.Context, s *vault.Session, e Entry) tea.Cmd {
	return func() tea.Msg {
		if err := DeleteEntry(ctx, s, e); err != nil {
			return errMsg{err}
		}
		return statusMsg{"Entry deleted."}
	}
}

func saveDraftCmd(ctx context.Context, d *draft, title, content string) tea.Cmd {
	return func() tea.Msg {
		if _, err := d.save(ctx, title, content); err != nil {
			return errMsg{err}
		}
		return statusMsg{"Entry added."}
	}
}

func discardDraftCmd(ctx context.Context, d *draft) tea.Cmd {
	return func() tea.Msg {
		if err := d.discard(ctx); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func saveCmd(ctx context.Context, s *vault.Session) tea.Cmd {
	return func() tea.Msg {
		if err := s.Save(ctx); err != nil {
			return errMsg{err}
		}
		return statusMsg{"Saved."}
	}
}

func waitForChangeCmd(changes <-chan string) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		path, ok := <-changes
		if !ok {
			return nil
		}
		return fileChangedMsg{path}
	}
}

func clearStatusCmd(seq int) tea.Cmd {
	return tea.Tick(statusTTL, func(time.Time) tea.Msg { return clearStatusMsg{seq} })
}

func (m model) status(text string) (model, tea.Cmd) {
	m.msgSeq++
	m.msg = text
	return m, clearStatusCmd(m.msgSeq)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case entriesMsg:
		m.entries = msg.entries
		if m.cursor >= len(m.entries) {
			m.cursor = max(len(m.entries)-1, 0)
		}
		return m, nil
	case statusMsg:
		m, cmd := m.status(msg.text)
		return m, tea.Batch(cmd, loadEntriesCmd(m.session))
	case errMsg:
		return m.status("Error: " + Describe(msg.err))
	case clearStatusMsg:
		if msg.seq == m.msgSeq {
			m.msg = ""
		}
		return m, nil
	case hideSecretMsg:
		m.revealed = false
		return m, nil
	case fileChangedMsg:
		m, cmd := m.status("Vault file changed on disk by another program: " + msg.path)
		return m, tea.Batch(cmd, waitForChangeCmd(m.changes))
	}

	switch m.state {
	case showScreen:
		return m.updateShow(msg)
	case addScreen:
		return m.updateAdd(msg)
	default:
		return m.updateTable(msg)
	}
}

func (m model) current() (Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return Entry{}, false
	}
	return m.entries[m.cursor], true
}

func (m model) updateTable(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "j", "down":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "enter":
		e, ok := m.current()
		if !ok {
			return m, nil
		}
		it, err := m.session.Item(e.Collection, e.ID)
		if err != nil {
			return m.status("Error: " + Describe(err))
		}
		m.selected = it
		m.revealed = false
		m.state = showScreen
	case "a":
		m.state = addScreen
		m.draft = openDraft(m.session)
		m.titleInput.Reset()
		m.contentInput.Reset()
		m.contentInput.Blur()
		cmd := m.titleInput.Focus()
		return m, cmd
	case "d":
		if e, ok := m.current(); ok {
			return m, deleteCmd(m.ctx, m.session, e)
		}
	case "c":
		e, ok := m.current()
		if !ok {
			return m, nil
		}
		it, err := m.session.Item(e.Collection, e.ID)
		if err != nil {
			return m.status("Error: " + Describe(err))
		}
		text, ok := CopyText(it)
		if !ok {
			return m.status("Only notes can be copied.")
		}
		if err := m.clip.Copy(text); err != nil {
			return m.status("Error: " + Describe(err))
		}
		return m.status(fmt.Sprintf("Copied! (clears in %s)", m.clip.ClearAfter))
	case "s":
		return m, saveCmd(m.ctx, m.session)
	case "r":
		return m, loadEntriesCmd(m.session)
	}
	return m, nil
}

func (m model) updateShow(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "esc", "q":
		m.state = tableScreen
		m.selected = nil
		m.revealed = false
	case "v":
		m.revealed = true
		return m, tea.Tick(revealTTL, func(time.Time) tea.Msg { return hideSecretMsg{} })
	}
	return m, nil
}

func (m model) updateAdd(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc":
			m.state = tableScreen
			d := m.draft
			m.draft = nil
			return m, discardDraftCmd(m.ctx, d)
		case "tab", "shift+tab":
			var cmd tea.Cmd
			if m.titleInput.Focused() {
				m.titleInput.Blur()
				cmd = m.contentInput.Focus()
			} else {
				m.contentInput.Blur()
				cmd = m.titleInput.Focus()
			}
			return m, cmd
		case "ctrl+s":
			if strings.TrimSpace(m.titleInput.Value()) == "" {
				return m.status("A note needs a title.")
			}
			m.state = tableScreen
			d := m.draft
			m.draft = nil
			return m, saveDraftCmd(m.ctx, d, m.titleInput.Value(), m.contentInput.Value())
		}
	}

	var cmd tea.Cmd
	if m.titleInput.Focused() {
		m.titleInput, cmd = m.titleInput.Update(msg)
	} else {
		m.contentInput, cmd = m.contentInput.Update(msg)
	}
	if m.draft != nil {
		m.draft.set(m.titleInput.Value(), m.contentInput.Value())
	}
	return m, cmd
}

func (m model) View() string {
	var s string
	switch m.state {
	case showScreen:
		s = m.viewShow()
	case addScreen:
		s = m.viewAdd()
	default:
		s = m.viewTable()
	}
	if m.msg != "" {
		style := msgStyle
		if strings.HasPrefix(m.msg, "Error:") {
			style = errStyle
		}
		s += "\n" + style.Render(m.msg) + "\n"
	}
	return s
}

func (m model) viewTable() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Vault") + "\n\n")
	if len(m.entries) == 0 {
		sb.WriteString("The vault is empty.\n")
	}
	for i, e := range m.entries {
		line := fmt.Sprintf("%-7s %-36s %10s  %s", e.Collection, truncate(e.Title, 36), humanSize(e.Size),
			e.UpdatedAt.Local().Format("2006-01-02 15:04"))
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n" + helpStyle.Render("j/k=move, enter=show, a=add note, d=delete, c=copy, s=save, r=reload, q=quit"))
	return sb.String()
}

func (m model) viewShow() string {
	if m.selected == nil {
		return ""
	}
	body := DescribeItem(m.selected)
	if d, ok := m.selected.(vault.Doc); ok && !m.revealed {
		body = fmt.Sprintf("Title: %s\n\n%s\n", d.Title, "********")
	}
	return body + "\n" + helpStyle.Render("Press 'v' to reveal, Esc to return")
}

func (m model) viewAdd() string {
	return titleStyle.Render("Add New Note") + "\n\n" +
		m.titleInput.View() + "\n\n" +
		m.contentInput.View() + "\n\n" +
		helpStyle.Render("Tab to switch fields, Ctrl+S to save, Esc to cancel")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
