package export

import (
	"fmt"
	"html"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/pagetalk/pkg/adapter"
	"github.com/m-mizutani/pagetalk/pkg/model"
)

// RenderDocument renders a markdown document into a standalone HTML page.
// Used to convert an already-exported markdown transcript.
func RenderDocument(w io.Writer, markdown string, renderer adapter.Renderer) error {
	body, err := renderer.Render(markdown)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<body>\n%s</body>\n</html>\n", body); err != nil {
		return goerr.Wrap(err, "failed to write document")
	}
	return nil
}

// HTMLWriter writes the transcript as a standalone HTML document, with
// model output rendered from markdown.
type HTMLWriter struct {
	renderer adapter.Renderer
}

func (e *HTMLWriter) Write(w io.Writer, messages []*model.Message) error {
	if _, err := fmt.Fprint(w, "<!DOCTYPE html>\n<html>\n<body>\n"); err != nil {
		return goerr.Wrap(err, "failed to write document header")
	}

	for _, msg := range messages {
		var body string
		if msg.Role == model.RoleModel && e.renderer != nil {
			rendered, err := e.renderer.Render(msg.Content)
			if err != nil {
				return goerr.Wrap(err, "failed to render message", goerr.V("message_id", msg.ID))
			}
			body = rendered
		} else {
			body = "<p>" + html.EscapeString(msg.Content) + "</p>"
		}

		if _, err := fmt.Fprintf(w, "<div class=%q>\n%s</div>\n", string(msg.Role), body); err != nil {
			return goerr.Wrap(err, "failed to write message")
		}
	}

	if _, err := fmt.Fprint(w, "</body>\n</html>\n"); err != nil {
		return goerr.Wrap(err, "failed to write document footer")
	}
	return nil
}
