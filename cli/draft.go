package cli

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fahmaliyi/securevault/vault"
)

const untitledDraft = "Untitled draft"

// draft is a note being written in an editor. While open it is registered
// as a flusher, so an export taken mid-edit stages what has been typed so
// far under the id the note will be saved with.
type draft struct {
	session *vault.Session
	id      string
	created time.Time

	mu      sync.Mutex
	title   string
	content string
	staged  bool

	unregister func()
}

func openDraft(s *vault.Session) *draft {
	d := &draft{session: s, id: uuid.NewString(), created: time.Now().UTC()}
	d.unregister = s.RegisterFlusher(d)
	return d
}

func (d *draft) set(title, content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.title, d.content = title, content
}

// Flush stages the draft as a note. An empty draft stages nothing.
func (d *draft) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	doc := vault.Doc{
		ID:        d.id,
		Title:     strings.TrimSpace(d.title),
		Content:   d.content,
		CreatedAt: d.created,
		UpdatedAt: time.Now().UTC(),
	}
	d.mu.Unlock()
	if doc.Title == "" && doc.Content == "" {
		return nil
	}
	if doc.Title == "" {
		doc.Title = untitledDraft
	}
	if err := d.session.Stage(vault.PartialOf(doc)); err != nil {
		return err
	}
	d.mu.Lock()
	d.staged = true
	d.mu.Unlock()
	return nil
}

// save stores the note under the draft's id and closes the draft. A
// draft without a title stays open.
func (d *draft) save(ctx context.Context, title, content string) (vault.Doc, error) {
	if strings.TrimSpace(title) == "" {
		return vault.Doc{}, errNoTitle
	}
	d.close()
	return SaveNote(ctx, d.session, d.id, title, content)
}

// discard closes the draft and removes whatever an earlier flush staged.
func (d *draft) discard(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.close()
	d.mu.Lock()
	staged := d.staged
	d.mu.Unlock()
	if !staged {
		return nil
	}
	err := d.session.DeleteItem(ctx, vault.CollectionDocs, d.id)
	if errors.Is(err, vault.ErrItemNotFound) {
		return nil
	}
	return err
}

func (d *draft) close() {
	if d.unregister != nil {
		d.unregister()
		d.unregister = nil
	}
}
