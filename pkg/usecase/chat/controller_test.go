package chat_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/pagetalk/pkg/adapter"
	"github.com/m-mizutani/pagetalk/pkg/model"
	"github.com/m-mizutani/pagetalk/pkg/usecase/chat"
)

type mockCall struct {
	model string
	req   *adapter.GenerateRequest
}

// mockGemini is a hand-written stand-in for the generation client.
type mockGemini struct {
	mu      sync.Mutex
	calls   []*mockCall
	replies []string
	err     error

	// set both to make GenerateContent block until released
	entered chan struct{}
	release chan struct{}

	streamBody string
}

func (m *mockGemini) record(modelName string, req *adapter.GenerateRequest) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, &mockCall{model: modelName, req: req})
	if len(m.replies) == 0 {
		return "mock reply"
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply
}

func (m *mockGemini) lastCall() *mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

func (m *mockGemini) GenerateContent(ctx context.Context, modelName string, req *adapter.GenerateRequest) (string, error) {
	reply := m.record(modelName, req)
	if m.entered != nil {
		m.entered <- struct{}{}
		<-m.release
	}
	if m.err != nil {
		return "", m.err
	}
	return reply, nil
}

func (m *mockGemini) GenerateContentStream(ctx context.Context, modelName string, req *adapter.GenerateRequest, onChunk func(string)) (string, error) {
	m.record(modelName, req)
	if m.err != nil {
		return "", m.err
	}
	for i := 0; i < len(m.streamBody); i += 8 {
		end := i + 8
		if end > len(m.streamBody) {
			end = len(m.streamBody)
		}
		if onChunk != nil {
			onChunk(m.streamBody[:end])
		}
	}
	return m.streamBody, nil
}

type mockNotifier struct {
	mu       sync.Mutex
	kinds    []adapter.NotifyKind
	messages []string
}

func (m *mockNotifier) Notify(ctx context.Context, kind adapter.NotifyKind, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
	m.messages = append(m.messages, message)
}

func newTestController(client adapter.Gemini, notifier adapter.Notifier) *chat.Controller {
	return chat.NewController(chat.ControllerInput{
		Registry: chat.NewRegistry(),
		Client:   client,
		Notifier: notifier,
		Settings: &model.Settings{APIKey: "test-key"},
	})
}

func TestControllerSendRequiresCredential(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{}
	controller := chat.NewController(chat.ControllerInput{
		Registry: chat.NewRegistry(),
		Client:   client,
		Settings: &model.Settings{},
	})

	_, err := controller.Send(ctx, "hello")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrNoCredential))

	// the conversation stays untouched and no request was issued
	gt.Equal(t, controller.Conversation().Len(), 0)
	gt.A(t, client.calls).Length(0)
}

func TestControllerSendEmpty(t *testing.T) {
	ctx := context.Background()
	controller := newTestController(&mockGemini{}, nil)

	_, err := controller.Send(ctx, "   ")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrEmptyMessage))
	gt.Equal(t, controller.Conversation().Len(), 0)
}

func TestControllerSend(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{replies: []string{"the answer"}}
	controller := newTestController(client, nil)

	msg, err := controller.Send(ctx, "the question")
	gt.NoError(t, err)
	gt.Equal(t, msg.Content, "the answer")
	gt.Equal(t, controller.Status(), chat.StatusIdle)

	msgs := controller.Conversation().Messages()
	gt.A(t, msgs).Length(2)
	gt.Equal(t, msgs[0].Role, model.RoleUser)
	gt.Equal(t, msgs[0].Content, "the question")
	gt.Equal(t, msgs[1].Role, model.RoleModel)
	gt.NotNil(t, msgs[1].AnswersTo)
	gt.Equal(t, *msgs[1].AnswersTo, msgs[0].ID)

	call := client.lastCall()
	gt.NotNil(t, call)
	gt.Equal(t, call.model, model.DefaultModel)
	// system segment plus the current turn, no history yet
	gt.A(t, call.req.Contents).Length(2)
}

func TestControllerSendHistoryExcludesCurrentTurn(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{replies: []string{"a1", "a2"}}
	controller := newTestController(client, nil)

	_, err := controller.Send(ctx, "q1")
	gt.NoError(t, err)
	_, err = controller.Send(ctx, "q2")
	gt.NoError(t, err)

	// system + [q1, a1] + current turn; q2 appears once, as the last entry
	call := client.lastCall()
	gt.A(t, call.req.Contents).Length(4)
	gt.Equal(t, call.req.Contents[1].Parts[0].Text, "q1")
	gt.Equal(t, call.req.Contents[2].Parts[0].Text, "a1")
	gt.Equal(t, call.req.Contents[3].Parts[0].Text, "q2")
}

func seedExchanges(controller *chat.Controller, n int) {
	for i := 0; i < n; i++ {
		userMsg := model.NewUserMessage(fmt.Sprintf("q%d", i), nil)
		controller.Conversation().Append(userMsg)
		controller.Conversation().Append(model.NewModelMessage(fmt.Sprintf("a%d", i), userMsg.ID))
	}
}

func TestControllerSendCapsHistoryTail(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{}
	controller := newTestController(client, nil)

	seedExchanges(controller, 15)

	_, err := controller.Send(ctx, "latest")
	gt.NoError(t, err)

	// system + the 20 most recent of the 30 stored messages + current turn
	call := client.lastCall()
	gt.A(t, call.req.Contents).Length(22)
	gt.Equal(t, call.req.Contents[1].Parts[0].Text, "q5")
	gt.Equal(t, call.req.Contents[21].Parts[0].Text, "latest")
}

func TestControllerSendTighterTailWithImages(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{}
	controller := newTestController(client, nil)

	seedExchanges(controller, 15)
	_, err := controller.Attachments().Add("a.png", "image/png", []byte{0x01})
	gt.NoError(t, err)

	_, err = controller.Send(ctx, "latest with image")
	gt.NoError(t, err)

	// carrying an attachment halves the tail: system + 10 + current turn
	call := client.lastCall()
	gt.A(t, call.req.Contents).Length(12)
	gt.Equal(t, call.req.Contents[1].Parts[0].Text, "q10")
	gt.Equal(t, call.req.Contents[11].Parts[0].Text, "latest with image")
}

func TestControllerSendSnapshotsAttachments(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{}
	controller := newTestController(client, nil)

	_, err := controller.Attachments().Add("a.png", "image/png", []byte{0x01})
	gt.NoError(t, err)

	msg, err := controller.Send(ctx, "look at this")
	gt.NoError(t, err)
	gt.V(t, msg).NotNil()

	// staged attachments move onto the user message and the store empties
	gt.Equal(t, controller.Attachments().Len(), 0)
	userMsg := controller.Conversation().Messages()[0]
	gt.A(t, userMsg.Attachments).Length(1)

	call := client.lastCall()
	current := call.req.Contents[len(call.req.Contents)-1]
	gt.A(t, current.Parts).Length(2)
	gt.NotNil(t, current.Parts[1].InlineData)
}

func TestControllerSendFailureKeepsUserTurn(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{err: errors.New("upstream exploded")}
	notifier := &mockNotifier{}
	controller := newTestController(client, notifier)

	_, err := controller.Send(ctx, "hello")
	gt.Error(t, err)

	// the user's turn survives, the failure is rendered only
	msgs := controller.Conversation().Messages()
	gt.A(t, msgs).Length(1)
	gt.Equal(t, msgs[0].Role, model.RoleUser)
	gt.Equal(t, controller.Status(), chat.StatusIdle)

	gt.A(t, notifier.kinds).Length(1)
	gt.Equal(t, notifier.kinds[0], adapter.NotifyError)
	gt.S(t, notifier.messages[0]).Contains("failed to get response")
}

func TestControllerSendRejectsConcurrent(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	controller := newTestController(client, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = controller.Send(ctx, "slow question")
	}()
	<-client.entered

	_, err := controller.Send(ctx, "impatient question")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrBusy))

	close(client.release)
	<-done
	gt.Equal(t, controller.Status(), chat.StatusIdle)
	gt.Equal(t, controller.Conversation().Len(), 2)
}

func TestControllerRegenerateModelMessage(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{replies: []string{"a1", "a2", "a1 revised"}}
	controller := newTestController(client, nil)

	_, err := controller.Send(ctx, "q1")
	gt.NoError(t, err)
	_, err = controller.Send(ctx, "q2")
	gt.NoError(t, err)

	firstAnswer := controller.Conversation().Messages()[1]
	gt.Equal(t, firstAnswer.Content, "a1")

	revised, err := controller.Regenerate(ctx, firstAnswer.ID)
	gt.NoError(t, err)
	gt.Equal(t, revised.Content, "a1 revised")

	// the new answer occupies the old one's position
	msgs := controller.Conversation().Messages()
	gt.A(t, msgs).Length(4)
	gt.Equal(t, msgs[0].Content, "q1")
	gt.Equal(t, msgs[1].ID, revised.ID)
	gt.Equal(t, msgs[2].Content, "q2")
	gt.Equal(t, msgs[3].Content, "a2")
	gt.Equal(t, *msgs[1].AnswersTo, msgs[0].ID)

	// the regeneration request saw no history before q1
	call := client.lastCall()
	gt.A(t, call.req.Contents).Length(2)
	gt.Equal(t, call.req.Contents[1].Parts[0].Text, "q1")
}

func TestControllerRegenerateUserMessage(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{replies: []string{"a1", "a1 revised"}}
	controller := newTestController(client, nil)

	_, err := controller.Send(ctx, "q1")
	gt.NoError(t, err)
	userMsg := controller.Conversation().Messages()[0]

	revised, err := controller.Regenerate(ctx, userMsg.ID)
	gt.NoError(t, err)
	gt.Equal(t, revised.Content, "a1 revised")

	msgs := controller.Conversation().Messages()
	gt.A(t, msgs).Length(2)
	gt.Equal(t, msgs[0].ID, userMsg.ID)
	gt.Equal(t, msgs[1].ID, revised.ID)
}

func TestControllerRegenerateStructurallyIdempotent(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{replies: []string{"a1", "a2", "again", "and again"}}
	controller := newTestController(client, nil)

	_, err := controller.Send(ctx, "q1")
	gt.NoError(t, err)
	_, err = controller.Send(ctx, "q2")
	gt.NoError(t, err)
	userMsg := controller.Conversation().Messages()[0]

	_, err = controller.Regenerate(ctx, userMsg.ID)
	gt.NoError(t, err)
	_, err = controller.Regenerate(ctx, userMsg.ID)
	gt.NoError(t, err)

	// repeated regeneration replaces content but never changes the shape
	msgs := controller.Conversation().Messages()
	gt.A(t, msgs).Length(4)
	gt.Equal(t, msgs[0].Role, model.RoleUser)
	gt.Equal(t, msgs[1].Role, model.RoleModel)
	gt.Equal(t, msgs[1].Content, "and again")
	gt.Equal(t, msgs[2].Role, model.RoleUser)
	gt.Equal(t, msgs[3].Role, model.RoleModel)
}

func TestControllerRegenerateNotFound(t *testing.T) {
	ctx := context.Background()
	controller := newTestController(&mockGemini{}, nil)

	_, err := controller.Regenerate(ctx, "no-such-message")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrMessageNotFound))
	gt.Equal(t, controller.Status(), chat.StatusIdle)
}

func TestControllerDeleteMessageNoCascade(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{replies: []string{"a1"}}
	controller := newTestController(client, nil)

	_, err := controller.Send(ctx, "q1")
	gt.NoError(t, err)
	userMsg := controller.Conversation().Messages()[0]

	gt.NoError(t, controller.DeleteMessage(userMsg.ID))

	// the paired answer stays; deletion is strictly single-message
	msgs := controller.Conversation().Messages()
	gt.A(t, msgs).Length(1)
	gt.Equal(t, msgs[0].Role, model.RoleModel)
}

func TestControllerReset(t *testing.T) {
	ctx := context.Background()
	controller := newTestController(&mockGemini{}, nil)

	_, err := controller.Send(ctx, "q1")
	gt.NoError(t, err)
	_, err = controller.Attachments().Add("a.png", "image/png", []byte{0x01})
	gt.NoError(t, err)

	gt.NoError(t, controller.Reset())
	gt.Equal(t, controller.Conversation().Len(), 0)
	gt.Equal(t, controller.Attachments().Len(), 0)
}

func TestControllerSendStream(t *testing.T) {
	ctx := context.Background()
	body := `{"candidates":[{"content":{"role":"model","parts":[{"text":"streamed answer"}]}}]}`
	client := &mockGemini{streamBody: body}
	controller := newTestController(client, nil)

	var chunks []string
	msg, err := controller.SendStream(ctx, "hello", func(accumulated string) {
		chunks = append(chunks, accumulated)
	})
	gt.NoError(t, err)
	gt.Equal(t, msg.Content, "streamed answer")

	// each delivery extends the previous one and the last is the full body
	gt.A(t, chunks).Longer(1)
	for i := 1; i < len(chunks); i++ {
		gt.True(t, strings.HasPrefix(chunks[i], chunks[i-1]))
		gt.True(t, len(chunks[i]) > len(chunks[i-1]))
	}
	gt.Equal(t, chunks[len(chunks)-1], body)
}

func TestControllerSendStreamBadPayload(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{streamBody: "not json at all"}
	notifier := &mockNotifier{}
	controller := newTestController(client, notifier)

	_, err := controller.SendStream(ctx, "hello", nil)
	gt.Error(t, err)

	// the user's turn survives the unusable stream
	gt.Equal(t, controller.Conversation().Len(), 1)
	gt.Equal(t, controller.Status(), chat.StatusIdle)
	gt.A(t, notifier.kinds).Length(1)
}

func TestControllerPageContextInRequest(t *testing.T) {
	ctx := context.Background()
	client := &mockGemini{}
	controller := newTestController(client, nil)

	controller.SetPageContext("PAGE BODY HERE")
	_, err := controller.Send(ctx, "what does the page say?")
	gt.NoError(t, err)

	call := client.lastCall()
	gt.S(t, call.req.Contents[0].Parts[0].Text).Contains("PAGE BODY HERE")
}

func TestControllerRefreshPageContext(t *testing.T) {
	ctx := context.Background()
	controller := chat.NewController(chat.ControllerInput{
		Registry: chat.NewRegistry(),
		Client:   &mockGemini{},
		Page:     adapter.StaticPageSource("static page content"),
		Settings: &model.Settings{APIKey: "test-key"},
	})

	controller.RefreshPageContext(ctx)
	gt.Equal(t, controller.PageContext(), "static page content")
}
