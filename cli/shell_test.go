package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahmaliyi/securevault/vault"
)

func runShell(t *testing.T, s *vault.Session, script string) (string, *fakeClipboard) {
	t.Helper()
	var out bytes.Buffer
	sh := NewShell(s, strings.NewReader(script), &out)
	clip, fake := testClipboard(time.Hour)
	sh.Clipboard = clip
	sh.ExtractDir = t.TempDir()
	require.NoError(t, sh.Run(context.Background()))
	return out.String(), fake
}

func TestShellNoteLifecycle(t *testing.T) {
	s := newSession(t, t.TempDir())

	out, fake := runShell(t, s, strings.Join([]string{
		"n",
		"Shopping",
		"milk",
		"eggs",
		".",
		"l",
		"s 1",
		"c 1",
		"q",
	}, "\n")+"\n")

	assert.Contains(t, out, "Entry added!")
	assert.Contains(t, out, "1) [docs] Shopping")
	assert.Contains(t, out, "milk\neggs")
	assert.Contains(t, out, "Copied to clipboard")
	assert.Equal(t, "milk\neggs", fake.get())
	assert.Contains(t, out, "Exiting.")

	docs, err := s.Docs()
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestShellDeleteAndErrors(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, t.TempDir())
	_, err := AddNote(ctx, s, "gone soon", "")
	require.NoError(t, err)

	out, _ := runShell(t, s, "s 1\nl\nd 1\nl\nbogus\nc\n")
	assert.Contains(t, out, "Invalid item number", "show before list has no rows")
	assert.Contains(t, out, "Entry deleted!")
	assert.Contains(t, out, "The vault is empty.")
	assert.Contains(t, out, "Unknown command")
	assert.Contains(t, out, "Specify item number")

	docs, err := s.Docs()
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestShellAddExtractExport(t *testing.T) {
	dir := t.TempDir()
	s := newSession(t, dir)
	src := filepath.Join(dir, "report.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n"), 0600))

	out, _ := runShell(t, s, "a "+src+"\nl\nx 1\nc 1\ne backup\nq\n")
	assert.Contains(t, out, "Added to files.")
	assert.Contains(t, out, "Written to ")
	assert.Contains(t, out, "Only notes can be copied")
	assert.Contains(t, out, "Exported to "+filepath.Join(dir, "backup.vault"))
	_, err := os.Stat(filepath.Join(dir, "backup.vault"))
	assert.NoError(t, err)
}

func TestShellSavesStagedChanges(t *testing.T) {
	s := newSession(t, t.TempDir())
	require.NoError(t, s.Stage(vault.PartialOf(vault.Doc{ID: "staged", Title: "later"})))
	require.True(t, s.Dirty())

	out, _ := runShell(t, s, "w\n")
	assert.Contains(t, out, "Saved.")
	assert.False(t, s.Dirty())
}

func TestShellReportsLockedVault(t *testing.T) {
	s := newSession(t, t.TempDir())
	s.Logout()

	out, _ := runShell(t, s, "l\n")
	assert.Contains(t, out, "The vault is locked.")
}

func TestShellNoteDraftSurvivesExport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newSession(t, dir)
	reader := newSession(t, dir)

	in, feed := io.Pipe()
	var out bytes.Buffer
	sh := NewShell(s, in, &out)
	sh.Clipboard, _ = testClipboard(time.Hour)
	done := make(chan error, 1)
	go func() { done <- sh.Run(ctx) }()

	_, err := io.WriteString(feed, "n\nJournal\ndear diary\n")
	require.NoError(t, err)

	n := 0
	assert.Eventually(t, func() bool {
		n++
		loc, err := s.ExportVault(ctx, fmt.Sprintf("mid-edit-%d", n))
		if err != nil {
			return false
		}
		if err := reader.ImportVault(ctx, loc, []byte("pw")); err != nil {
			return false
		}
		docs, err := reader.Docs()
		if err != nil {
			return false
		}
		for _, d := range docs {
			if d.Title == "Journal" && d.Content == "dear diary" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond, "the note being typed is part of the export")

	_, err = io.WriteString(feed, "more\n.\nq\n")
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.NoError(t, feed.Close())

	docs, err := s.Docs()
	require.NoError(t, err)
	require.Len(t, docs, 1, "saving the draft does not duplicate it")
	for _, d := range docs {
		assert.Equal(t, "dear diary\nmore", d.Content)
	}
	assert.Contains(t, out.String(), "Entry added!")
}
