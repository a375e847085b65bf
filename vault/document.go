package vault

import (
	"bytes"
	"fmt"
	"maps"
	"time"
)

type Collection string

const (
	CollectionDocs   Collection = "docs"
	CollectionPhotos Collection = "photos"
	CollectionFiles  Collection = "files"
)

func Collections() []Collection {
	return []Collection{CollectionDocs, CollectionPhotos, CollectionFiles}
}

func (c Collection) Valid() bool {
	switch c {
	case CollectionDocs, CollectionPhotos, CollectionFiles:
		return true
	}
	return false
}

// Item is an entry of one of the three collections: Doc, Photo or File.
type Item interface {
	ItemID() string
	Collection() Collection
}

type Doc struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (d Doc) ItemID() string         { return d.ID }
func (Doc) Collection() Collection   { return CollectionDocs }
func (p Photo) ItemID() string       { return p.ID }
func (Photo) Collection() Collection { return CollectionPhotos }
func (f File) ItemID() string        { return f.ID }
func (File) Collection() Collection  { return CollectionFiles }

type Photo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Data        []byte    `json:"data"`
	Thumbnail   []byte    `json:"thumbnail,omitempty"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type File struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Data        []byte    `json:"data"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Meta struct {
	SchemaVersion int       `json:"schemaVersion"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Document is the decrypted vault payload.
type Document struct {
	Docs   map[string]Doc   `json:"docs"`
	Photos map[string]Photo `json:"photos"`
	Files  map[string]File  `json:"files"`
	Meta   Meta             `json:"meta"`
}

func NewDocument(now time.Time) Document {
	return Document{
		Docs:   map[string]Doc{},
		Photos: map[string]Photo{},
		Files:  map[string]File{},
		Meta:   Meta{SchemaVersion: SchemaVersion, UpdatedAt: now},
	}
}

// EnsureCollections returns d with every collection map non-nil. The maps it
// already had are shared, not copied.
func EnsureCollections(d Document) Document {
	if d.Docs == nil {
		d.Docs = map[string]Doc{}
	}
	if d.Photos == nil {
		d.Photos = map[string]Photo{}
	}
	if d.Files == nil {
		d.Files = map[string]File{}
	}
	return d
}

// Clone returns a deep copy, byte payloads included, with every collection
// present.
func (d Document) Clone() Document {
	out := Document{
		Docs:   maps.Clone(d.Docs),
		Photos: make(map[string]Photo, len(d.Photos)),
		Files:  make(map[string]File, len(d.Files)),
		Meta:   d.Meta,
	}
	for id, p := range d.Photos {
		out.Photos[id] = clonePhoto(p)
	}
	for id, f := range d.Files {
		out.Files[id] = cloneFile(f)
	}
	return EnsureCollections(out)
}

func clonePhoto(p Photo) Photo {
	p.Data = bytes.Clone(p.Data)
	p.Thumbnail = bytes.Clone(p.Thumbnail)
	return p
}

func cloneFile(f File) File {
	f.Data = bytes.Clone(f.Data)
	return f
}

func cloneItem(it Item) Item {
	switch v := it.(type) {
	case Photo:
		return clonePhoto(v)
	case File:
		return cloneFile(v)
	}
	return it
}

// Collection returns a copy of one collection keyed by id.
func (d Document) Collection(c Collection) (map[string]Item, error) {
	var out map[string]Item
	switch c {
	case CollectionDocs:
		out = make(map[string]Item, len(d.Docs))
		for id, v := range d.Docs {
			out[id] = v
		}
	case CollectionPhotos:
		out = make(map[string]Item, len(d.Photos))
		for id, v := range d.Photos {
			out[id] = clonePhoto(v)
		}
	case CollectionFiles:
		out = make(map[string]Item, len(d.Files))
		for id, v := range d.Files {
			out[id] = cloneFile(v)
		}
	default:
		return nil, fmt.Errorf("%w: unknown collection %q", ErrMergeConflict, c)
	}
	return out, nil
}

func (d Document) Get(c Collection, id string) (Item, bool) {
	switch c {
	case CollectionDocs:
		v, ok := d.Docs[id]
		return v, ok
	case CollectionPhotos:
		v, ok := d.Photos[id]
		return clonePhoto(v), ok
	case CollectionFiles:
		v, ok := d.Files[id]
		return cloneFile(v), ok
	}
	return nil, false
}

// Delete returns a copy of d without the item.
func (d Document) Delete(c Collection, id string) (Document, error) {
	if !c.Valid() {
		return Document{}, fmt.Errorf("%w: unknown collection %q", ErrMergeConflict, c)
	}
	if _, ok := d.Get(c, id); !ok {
		return Document{}, fmt.Errorf("%w: %s/%s", ErrItemNotFound, c, id)
	}
	out := d.Clone()
	switch c {
	case CollectionDocs:
		delete(out.Docs, id)
	case CollectionPhotos:
		delete(out.Photos, id)
	case CollectionFiles:
		delete(out.Files, id)
	}
	return out, nil
}

// Partial is an update touching some collections, as saved by a feature
// module that does not hold the whole document.
type Partial map[Collection]map[string]Item

// PartialOf groups items by their collection.
func PartialOf(items ...Item) Partial {
	p := Partial{}
	for _, it := range items {
		c := it.Collection()
		if p[c] == nil {
			p[c] = map[string]Item{}
		}
		p[c][it.ItemID()] = it
	}
	return p
}

func (p Partial) clone() Partial {
	out := make(Partial, len(p))
	for c, entries := range p {
		m := make(map[string]Item, len(entries))
		for id, it := range entries {
			m[id] = cloneItem(it)
		}
		out[c] = m
	}
	return out
}

// MergePartial applies p on top of base and returns the result; base is not
// modified. Ids present in p replace or add, ids absent from p are kept.
// Last write wins per id.
func MergePartial(base Document, p Partial) (Document, error) {
	out := base.Clone()
	for c, entries := range p {
		if !c.Valid() {
			return Document{}, fmt.Errorf("%w: unknown collection %q", ErrMergeConflict, c)
		}
		for id, it := range entries {
			if err := out.put(c, id, it); err != nil {
				return Document{}, err
			}
		}
	}
	return out, nil
}

func mergeAll(base Document, ps []Partial) (Document, error) {
	out := EnsureCollections(base)
	for _, p := range ps {
		var err error
		if out, err = MergePartial(out, p); err != nil {
			return Document{}, err
		}
	}
	return out, nil
}

func (d *Document) put(c Collection, id string, it Item) error {
	if it == nil || it.ItemID() != id || id == "" {
		return fmt.Errorf("%w: item id does not match key %q in %s", ErrMergeConflict, id, c)
	}
	switch v := it.(type) {
	case Doc:
		if c == CollectionDocs {
			d.Docs[id] = v
			return nil
		}
	case Photo:
		if c == CollectionPhotos {
			d.Photos[id] = clonePhoto(v)
			return nil
		}
	case File:
		if c == CollectionFiles {
			d.Files[id] = cloneFile(v)
			return nil
		}
	}
	return fmt.Errorf("%w: %T does not belong in %s", ErrMergeConflict, it, c)
}
