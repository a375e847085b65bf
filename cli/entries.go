package cli

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fahmaliyi/securevault/vault"
)

// Entry is one listed row across the three collections.
type Entry struct {
	Collection vault.Collection
	ID         string
	Title      string
	Size       int64
	UpdatedAt  time.Time
}

func entryOf(it vault.Item) Entry {
	e := Entry{Collection: it.Collection(), ID: it.ItemID()}
	switch v := it.(type) {
	case vault.Doc:
		e.Title, e.Size, e.UpdatedAt = v.Title, int64(len(v.Content)), v.UpdatedAt
	case vault.Photo:
		e.Title, e.Size, e.UpdatedAt = v.Title, v.Size, v.UpdatedAt
	case vault.File:
		e.Title, e.Size, e.UpdatedAt = v.Name, v.Size, v.UpdatedAt
	}
	return e
}

// ListEntries returns every item, grouped by collection and sorted by
// title within each.
func ListEntries(s *vault.Session) ([]Entry, error) {
	var out []Entry
	for _, c := range vault.Collections() {
		items, err := s.Collection(c)
		if err != nil {
			return nil, err
		}
		start := len(out)
		for _, it := range items {
			out = append(out, entryOf(it))
		}
		slices.SortFunc(out[start:], func(a, b Entry) int {
			return cmp.Or(
				cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)),
				cmp.Compare(a.ID, b.ID),
			)
		})
	}
	return out, nil
}

func (e Entry) String() string {
	title := e.Title
	if title == "" {
		title = "(untitled)"
	}
	return fmt.Sprintf("[%s] %s  %s  %s", e.Collection, title, humanSize(e.Size), e.UpdatedAt.Local().Format("2006-01-02 15:04"))
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// FindEntry resolves a row by its 1-based number in list or by an item id
// prefix. An ambiguous prefix is not found.
func FindEntry(list []Entry, ref string) (Entry, bool) {
	var n int
	if _, err := fmt.Sscanf(ref, "%d", &n); err == nil && fmt.Sprint(n) == ref {
		if n >= 1 && n <= len(list) {
			return list[n-1], true
		}
		return Entry{}, false
	}
	var found Entry
	matches := 0
	for _, e := range list {
		if e.ID == ref {
			return e, true
		}
		if strings.HasPrefix(e.ID, ref) {
			found = e
			matches++
		}
	}
	return found, matches == 1
}

// DescribeItem renders an item for display. Binary payloads are summarized,
// never printed.
func DescribeItem(it vault.Item) string {
	var sb strings.Builder
	switch v := it.(type) {
	case vault.Doc:
		fmt.Fprintf(&sb, "Title: %s\n\n%s\n", v.Title, v.Content)
	case vault.Photo:
		fmt.Fprintf(&sb, "Title: %s\nType: %s\nDimensions: %dx%d\nSize: %s\n",
			v.Title, v.ContentType, v.Width, v.Height, humanSize(v.Size))
	case vault.File:
		fmt.Fprintf(&sb, "Name: %s\nType: %s\nSize: %s\n", v.Name, v.ContentType, humanSize(v.Size))
	}
	return sb.String()
}

// CopyText is what the copy command puts on the clipboard; only documents
// have any.
func CopyText(it vault.Item) (string, bool) {
	if d, ok := it.(vault.Doc); ok {
		return d.Content, true
	}
	return "", false
}

// Extract writes the payload of a file or photo into dir and returns the
// path written.
func Extract(s *vault.Session, e Entry, dir string) (string, error) {
	it, err := s.Item(e.Collection, e.ID)
	if err != nil {
		return "", err
	}
	var name string
	var data []byte
	switch v := it.(type) {
	case vault.File:
		name, data = v.Name, v.Data
	case vault.Photo:
		name, data = v.Title, v.Data
	default:
		return "", fmt.Errorf("%s items have no payload to extract", e.Collection)
	}
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = e.ID
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", err
	}
	return path, nil
}

// DeleteEntry removes the item behind e and persists the vault.
func DeleteEntry(ctx context.Context, s *vault.Session, e Entry) error {
	return s.DeleteItem(ctx, e.Collection, e.ID)
}
