package chat_test

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/pagetalk/pkg/model"
	"github.com/m-mizutani/pagetalk/pkg/usecase/chat"
)

func testAgent() *model.Agent {
	agent := model.NewAgent("tester")
	agent.SystemPrompt = "You are a helpful assistant."
	return agent
}

func TestBuildRequestLayout(t *testing.T) {
	history := []*model.Message{
		model.NewUserMessage("first question", nil),
		model.NewModelMessage("first answer", "dummy"),
	}
	attachments := []*model.Attachment{
		{ID: model.NewAttachmentID(), MimeType: "image/png", Data: []byte{0x89, 0x50}},
		{ID: model.NewAttachmentID(), MimeType: "image/jpeg", Data: []byte{0xff, 0xd8}},
	}

	req, err := chat.BuildRequest(testAgent(), "page body", history, "what is this?", attachments)
	gt.NoError(t, err)

	// system segment first, with page context folded in, role user
	gt.A(t, req.Contents).Length(4)
	gt.Equal(t, req.Contents[0].Role, "user")
	gt.S(t, req.Contents[0].Parts[0].Text).Contains("You are a helpful assistant.")
	gt.S(t, req.Contents[0].Parts[0].Text).Contains("page body")

	// history mapped role-for-role in order
	gt.Equal(t, req.Contents[1].Role, "user")
	gt.Equal(t, req.Contents[1].Parts[0].Text, "first question")
	gt.Equal(t, req.Contents[2].Role, "model")
	gt.Equal(t, req.Contents[2].Parts[0].Text, "first answer")

	// current turn last: text part, then attachments in insertion order
	current := req.Contents[3]
	gt.Equal(t, current.Role, "user")
	gt.A(t, current.Parts).Length(3)
	gt.Equal(t, current.Parts[0].Text, "what is this?")
	gt.Equal(t, current.Parts[1].InlineData.MimeType, "image/png")
	gt.Equal(t, current.Parts[1].InlineData.Data, base64.StdEncoding.EncodeToString([]byte{0x89, 0x50}))
	gt.Equal(t, current.Parts[2].InlineData.MimeType, "image/jpeg")

	// generation config copied verbatim
	gt.Equal(t, req.GenerationConfig.Temperature, 0.7)
	gt.Equal(t, req.GenerationConfig.MaxOutputTokens, 8192)
	gt.Equal(t, req.GenerationConfig.TopP, 0.95)
}

func TestBuildRequestWithoutPageContext(t *testing.T) {
	req, err := chat.BuildRequest(testAgent(), "", nil, "hello", nil)
	gt.NoError(t, err)

	gt.A(t, req.Contents).Length(2)
	gt.Equal(t, req.Contents[0].Parts[0].Text, "You are a helpful assistant.")
	gt.Equal(t, req.Contents[1].Parts[0].Text, "hello")
}

func TestBuildRequestAttachmentOnly(t *testing.T) {
	attachments := []*model.Attachment{
		{ID: model.NewAttachmentID(), MimeType: "image/png", Data: []byte{0x01}},
	}

	req, err := chat.BuildRequest(testAgent(), "", nil, "", attachments)
	gt.NoError(t, err)

	current := req.Contents[len(req.Contents)-1]
	gt.A(t, current.Parts).Length(1)
	gt.V(t, current.Parts[0].InlineData).NotNil()
}

func TestBuildRequestDeterministic(t *testing.T) {
	history := []*model.Message{
		model.NewUserMessage("q", nil),
		model.NewModelMessage("a", "dummy"),
	}
	attachments := []*model.Attachment{
		{ID: model.NewAttachmentID(), MimeType: "image/png", Data: []byte("payload")},
	}
	agent := testAgent()

	first, err := chat.BuildRequest(agent, "ctx", history, "again", attachments)
	gt.NoError(t, err)
	second, err := chat.BuildRequest(agent, "ctx", history, "again", attachments)
	gt.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	gt.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	gt.NoError(t, err)
	gt.Equal(t, string(firstJSON), string(secondJSON))
}

func TestBuildRequestInvalidParameters(t *testing.T) {
	testCases := map[string]func(*model.Agent){
		"temperature too high": func(a *model.Agent) { a.Temperature = 2.5 },
		"temperature negative": func(a *model.Agent) { a.Temperature = -0.1 },
		"zero max tokens":      func(a *model.Agent) { a.MaxOutputTokens = 0 },
		"topP too high":        func(a *model.Agent) { a.TopP = 1.5 },
	}

	for name, mutate := range testCases {
		t.Run(name, func(t *testing.T) {
			agent := testAgent()
			mutate(agent)
			_, err := chat.BuildRequest(agent, "", nil, "hello", nil)
			gt.Error(t, err)
			gt.True(t, errors.Is(err, model.ErrInvalidParameter))
		})
	}
}

func TestBuildRequestEmptyTurn(t *testing.T) {
	_, err := chat.BuildRequest(testAgent(), "", nil, "", nil)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrEmptyMessage))
}
