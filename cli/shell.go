package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fahmaliyi/securevault/vault"
)

const shellHelp = "Commands: l=list, s N=show, c N=copy, d N=delete, n=new note, a PATH=add file, x N=extract, e [NAME]=export, w=save, q=quit"

// Shell is the line-oriented interface. N is a row number from the last
// listing or an id prefix.
type Shell struct {
	Session    *vault.Session
	Clipboard  *Clipboard
	ExtractDir string

	in  *bufio.Reader
	mu  sync.Mutex
	out io.Writer

	entries []Entry
}

func NewShell(s *vault.Session, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		Session:    s,
		Clipboard:  NewClipboard(),
		ExtractDir: ".",
		in:         bufio.NewReader(in),
		out:        out,
	}
}

func (sh *Shell) printf(format string, args ...any) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fmt.Fprintf(sh.out, format, args...)
}

// Notice prints a message from outside the command loop.
func (sh *Shell) Notice(msg string) {
	sh.printf("\n! %s\n> ", msg)
}

func (sh *Shell) readLine() (string, error) {
	line, err := sh.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Run reads commands until q, end of input or ctx is done.
func (sh *Shell) Run(ctx context.Context) error {
	sh.printf("%s\n", shellHelp)
	for {
		if ctx.Err() != nil {
			return nil
		}
		sh.printf("> ")
		line, err := sh.readLine()
		if errors.Is(err, io.EOF) {
			sh.printf("\n")
			return nil
		}
		if err != nil {
			return err
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		if parts[0] == "q" {
			sh.printf("Exiting.\n")
			return nil
		}
		if err := sh.exec(ctx, parts[0], parts[1:]); err != nil {
			sh.printf("%s\n", Describe(err))
		}
	}
}

func (sh *Shell) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "l":
		return sh.handleList()
	case "s", "c", "d", "x":
		if len(args) < 1 {
			sh.printf("Specify item number\n")
			return nil
		}
		e, ok := FindEntry(sh.entries, args[0])
		if !ok {
			sh.printf("Invalid item number\n")
			return nil
		}
		switch cmd {
		case "s":
			return sh.handleShow(e)
		case "c":
			return sh.handleCopy(e)
		case "d":
			return sh.handleDelete(ctx, e)
		case "x":
			return sh.handleExtract(e)
		}
	case "n":
		return sh.handleNote(ctx)
	case "a":
		if len(args) < 1 {
			sh.printf("Specify a path\n")
			return nil
		}
		it, err := AddPath(ctx, sh.Session, strings.Join(args, " "))
		if err != nil {
			return err
		}
		sh.entries = nil
		sh.printf("Added to %s.\n", it.Collection())
	case "e":
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		loc, err := sh.Session.ExportVault(ctx, name)
		if err != nil {
			return err
		}
		sh.printf("Exported to %s\n", loc)
	case "w":
		if err := sh.Session.Save(ctx); err != nil {
			return err
		}
		sh.printf("Saved.\n")
	case "h", "?":
		sh.printf("%s\n", shellHelp)
	default:
		sh.printf("Unknown command\n")
	}
	return nil
}

func (sh *Shell) handleList() error {
	entries, err := ListEntries(sh.Session)
	if err != nil {
		return err
	}
	sh.entries = entries
	if len(entries) == 0 {
		sh.printf("The vault is empty.\n")
		return nil
	}
	for i, e := range entries {
		sh.printf("%d) %s\n", i+1, e)
	}
	return nil
}

func (sh *Shell) handleShow(e Entry) error {
	it, err := sh.Session.Item(e.Collection, e.ID)
	if err != nil {
		return err
	}
	sh.printf("%s", DescribeItem(it))
	return nil
}

func (sh *Shell) handleCopy(e Entry) error {
	it, err := sh.Session.Item(e.Collection, e.ID)
	if err != nil {
		return err
	}
	text, ok := CopyText(it)
	if !ok {
		sh.printf("Only notes can be copied; use x to extract.\n")
		return nil
	}
	if err := sh.Clipboard.Copy(text); err != nil {
		return err
	}
	sh.printf("Copied to clipboard. Clearing in %s...\n", sh.Clipboard.ClearAfter)
	return nil
}

func (sh *Shell) handleDelete(ctx context.Context, e Entry) error {
	if err := DeleteEntry(ctx, sh.Session, e); err != nil {
		return err
	}
	sh.entries = nil
	sh.printf("Entry deleted!\n")
	return nil
}

func (sh *Shell) handleExtract(e Entry) error {
	path, err := Extract(sh.Session, e, sh.ExtractDir)
	if err != nil {
		return err
	}
	sh.printf("Written to %s\n", path)
	return nil
}

// handleNote reads a title and then content lines up to a lone ".".
func (sh *Shell) handleNote(ctx context.Context) error {
	sh.printf("Title: ")
	title, err := sh.readLine()
	if err != nil {
		return err
	}
	d := openDraft(sh.Session)
	d.set(title, "")
	sh.printf("Content, end with a line containing only '.':\n")
	var lines []string
	for {
		line, err := sh.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return errors.Join(err, d.discard(ctx))
		}
		if line == "." || err != nil {
			break
		}
		lines = append(lines, line)
		d.set(title, strings.Join(lines, "\n"))
	}
	if _, err := d.save(ctx, title, strings.Join(lines, "\n")); err != nil {
		return errors.Join(err, d.discard(ctx))
	}
	sh.entries = nil
	sh.printf("Entry added!\n")
	return nil
}
