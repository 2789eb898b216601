package chat

import (
	"encoding/base64"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/pagetalk/pkg/adapter"
	"github.com/m-mizutani/pagetalk/pkg/model"
)

// pageContextPreamble introduces the extracted page content inside the
// leading instructional segment.
const pageContextPreamble = "The following is the content of the current web page. Use it to answer the user's questions:"

// BuildRequest assembles the wire payload from the active agent, the page
// context, the history tail and the current turn. It is a pure function:
// identical inputs yield an identical payload.
//
// The payload layout is fixed by the remote protocol: the system prompt
// (with page context folded in) is the first entry with role "user" since
// the protocol has no system-role slot, history follows role-for-role, and
// the current turn comes last with text parts before attachment parts.
func BuildRequest(agent *model.Agent, pageContext string, history []*model.Message, text string, attachments []*model.Attachment) (*adapter.GenerateRequest, error) {
	if agent == nil {
		return nil, goerr.New("no active agent")
	}
	if err := agent.Validate(); err != nil {
		return nil, err
	}
	if text == "" && len(attachments) == 0 {
		return nil, goerr.Wrap(model.ErrEmptyMessage, "nothing to send")
	}

	system := agent.SystemPrompt
	if pageContext != "" {
		system += "\n\n" + pageContextPreamble + "\n\n" + pageContext
	}

	contents := make([]*adapter.Content, 0, len(history)+2)
	contents = append(contents, &adapter.Content{
		Role:  string(model.RoleUser),
		Parts: []*adapter.Part{{Text: system}},
	})

	for _, msg := range history {
		role := string(model.RoleModel)
		if msg.Role == model.RoleUser {
			role = string(model.RoleUser)
		}
		contents = append(contents, &adapter.Content{
			Role:  role,
			Parts: []*adapter.Part{{Text: msg.Content}},
		})
	}

	parts := make([]*adapter.Part, 0, len(attachments)+1)
	if text != "" {
		parts = append(parts, &adapter.Part{Text: text})
	}
	for _, att := range attachments {
		parts = append(parts, &adapter.Part{
			InlineData: &adapter.InlineData{
				MimeType: att.MimeType,
				Data:     base64.StdEncoding.EncodeToString(att.Data),
			},
		})
	}
	contents = append(contents, &adapter.Content{
		Role:  string(model.RoleUser),
		Parts: parts,
	})

	return &adapter.GenerateRequest{
		Contents: contents,
		GenerationConfig: adapter.GenerationConfig{
			Temperature:     agent.Temperature,
			MaxOutputTokens: agent.MaxOutputTokens,
			TopP:            agent.TopP,
		},
	}, nil
}
