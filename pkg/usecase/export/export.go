package export

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/pagetalk/pkg/adapter"
	"github.com/m-mizutani/pagetalk/pkg/model"
)

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Writer renders a conversation transcript to an output stream.
type Writer interface {
	Write(w io.Writer, messages []*model.Message) error
}

// New returns the writer for the given format.
func New(format Format, renderer adapter.Renderer) (Writer, error) {
	switch format {
	case FormatMarkdown:
		return &MarkdownWriter{}, nil
	case FormatHTML:
		return &HTMLWriter{renderer: renderer}, nil
	default:
		return nil, goerr.New("unsupported export format", goerr.V("format", format))
	}
}

// FormatForPath guesses the export format from a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatMarkdown
	}
}
