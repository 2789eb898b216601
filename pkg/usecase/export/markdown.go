package export

import (
	"fmt"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/pagetalk/pkg/model"
)

// MarkdownWriter writes the transcript as a markdown document.
type MarkdownWriter struct{}

func (e *MarkdownWriter) Write(w io.Writer, messages []*model.Message) error {
	for _, msg := range messages {
		label := "Assistant"
		if msg.Role == model.RoleUser {
			label = "User"
		}

		if _, err := fmt.Fprintf(w, "## %s\n\n%s\n", label, msg.Content); err != nil {
			return goerr.Wrap(err, "failed to write transcript")
		}
		for _, att := range msg.Attachments {
			if _, err := fmt.Fprintf(w, "\n*(attachment: %s, %s)*\n", att.SourceRef, att.MimeType); err != nil {
				return goerr.Wrap(err, "failed to write attachment note")
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return goerr.Wrap(err, "failed to write transcript")
		}
	}
	return nil
}
