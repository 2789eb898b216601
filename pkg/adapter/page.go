package adapter

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
)

// PageSource supplies the page content used as conversation context.
// Extraction may fail; callers treat failure as "no context available".
type PageSource interface {
	Extract(ctx context.Context) (string, error)
}

// FilePageSource reads the page content from a local text file.
type FilePageSource struct {
	path string
}

func NewFilePageSource(path string) *FilePageSource {
	return &FilePageSource{path: path}
}

func (s *FilePageSource) Extract(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read page content", goerr.V("path", s.path))
	}
	return string(data), nil
}

// StaticPageSource returns a fixed context string.
type StaticPageSource string

func (s StaticPageSource) Extract(ctx context.Context) (string, error) {
	return string(s), nil
}
