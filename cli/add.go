package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fahmaliyi/securevault/vault"
)

const MaxImportSize = 64 << 20

var errNoTitle = errors.New("a note needs a title")

func AddNote(ctx context.Context, s *vault.Session, title, content string) (vault.Doc, error) {
	return SaveNote(ctx, s, "", title, content)
}

// SaveNote stores a note under id, or under a new id when id is empty.
func SaveNote(ctx context.Context, s *vault.Session, id, title, content string) (vault.Doc, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return vault.Doc{}, errNoTitle
	}
	it, err := s.SaveItem(ctx, vault.CollectionDocs, id, vault.Doc{Title: title, Content: content})
	if err != nil {
		return vault.Doc{}, err
	}
	return it.(vault.Doc), nil
}

// AddPath stores the file at path. Images the standard decoders
// understand become photos; everything else is stored as a file.
func AddPath(ctx context.Context, s *vault.Session, path string) (vault.Item, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if fi.Size() > MaxImportSize {
		return nil, fmt.Errorf("%s is larger than %s", path, humanSize(MaxImportSize))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	contentType := detectType(name, data)

	if strings.HasPrefix(contentType, "image/") {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			return s.SaveItem(ctx, vault.CollectionPhotos, "", vault.Photo{
				Title:       name,
				Data:        data,
				Width:       cfg.Width,
				Height:      cfg.Height,
				ContentType: contentType,
			})
		}
	}
	return s.SaveItem(ctx, vault.CollectionFiles, "", vault.File{
		Name:        name,
		Data:        data,
		ContentType: contentType,
	})
}

func detectType(name string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
