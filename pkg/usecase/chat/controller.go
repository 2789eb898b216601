package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/pagetalk/pkg/adapter"
	"github.com/m-mizutani/pagetalk/pkg/model"
	"github.com/m-mizutani/pagetalk/pkg/utils/logging"
)

// Status is the controller's per-turn state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSending    Status = "sending"
	StatusWaiting    Status = "waiting"
	StatusStreaming  Status = "streaming"
	StatusCommitting Status = "committing"
	StatusErrored    Status = "errored"
)

const (
	// historyTailLimit bounds the context window for plain sends.
	historyTailLimit = 20
	// historyTailLimitWithImages is tighter when attachments are carried.
	historyTailLimitWithImages = 10
)

// Controller orchestrates send, regenerate and delete against the stores
// and the generation client. One controller serves one conversation;
// send/regenerate are single-flight (reject-if-busy).
type Controller struct {
	mu     sync.Mutex
	status Status

	conversation *Conversation
	attachments  *AttachmentStore
	registry     *Registry
	client       adapter.Gemini
	notifier     adapter.Notifier
	page         adapter.PageSource
	settings     *model.Settings

	pageContext string
}

// ControllerInput contains the controller's injected dependencies.
// Settings is read at call time, so credential and model changes take
// effect on the next operation.
type ControllerInput struct {
	Conversation *Conversation
	Attachments  *AttachmentStore
	Registry     *Registry
	Client       adapter.Gemini
	Notifier     adapter.Notifier
	Page         adapter.PageSource
	Settings     *model.Settings
}

func NewController(input ControllerInput) *Controller {
	c := &Controller{
		status:       StatusIdle,
		conversation: input.Conversation,
		attachments:  input.Attachments,
		registry:     input.Registry,
		client:       input.Client,
		notifier:     input.Notifier,
		page:         input.Page,
		settings:     input.Settings,
	}
	if c.conversation == nil {
		c.conversation = NewConversation()
	}
	if c.attachments == nil {
		c.attachments = NewAttachmentStore()
	}
	if c.notifier == nil {
		c.notifier = adapter.NewLogNotifier()
	}
	if c.settings == nil {
		c.settings = &model.Settings{}
	}
	return c
}

func (c *Controller) Conversation() *Conversation {
	return c.conversation
}

func (c *Controller) Attachments() *AttachmentStore {
	return c.attachments
}

func (c *Controller) Registry() *Registry {
	return c.registry
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// begin transitions Idle -> Sending, rejecting concurrent operations.
func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusIdle {
		return goerr.Wrap(model.ErrBusy, "controller is not idle", goerr.V("status", c.status))
	}
	c.status = StatusSending
	return nil
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

// fail surfaces the error as a rendered-only notification and returns the
// controller to Idle. Nothing is rolled back.
func (c *Controller) fail(ctx context.Context, err error) error {
	c.setStatus(StatusErrored)
	c.notifier.Notify(ctx, adapter.NotifyError, fmt.Sprintf("failed to get response: %s", err.Error()))
	logging.From(ctx).Error("generation failed", "error", err)
	c.setStatus(StatusIdle)
	return err
}

// modelName resolves the configured model, defaulting when unset.
func (c *Controller) modelName() string {
	if c.settings.Model == "" {
		return model.DefaultModel
	}
	return c.settings.Model
}

// Send appends the user's turn, generates an answer and commits it.
// The staged attachments are snapshotted into the user message and the
// attachment store is cleared. On generation failure the user's turn is
// kept; the error is surfaced, not stored as conversation history.
func (c *Controller) Send(ctx context.Context, text string) (*model.Message, error) {
	return c.send(ctx, text, nil)
}

// SendStream behaves like Send but consumes the response incrementally.
// onChunk receives the accumulated text so far, each call a
// prefix-extension of the previous one.
func (c *Controller) SendStream(ctx context.Context, text string, onChunk func(accumulated string)) (*model.Message, error) {
	return c.send(ctx, text, onChunk)
}

func (c *Controller) send(ctx context.Context, text string, onChunk func(string)) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && c.attachments.Len() == 0 {
		return nil, goerr.Wrap(model.ErrEmptyMessage, "type a message or attach an image")
	}
	if c.settings.APIKey == "" {
		return nil, goerr.Wrap(model.ErrNoCredential, "set an API key before sending")
	}

	if err := c.begin(); err != nil {
		return nil, err
	}

	snapshot := c.attachments.List()
	tailLimit := historyTailLimit
	if len(snapshot) > 0 {
		tailLimit = historyTailLimitWithImages
	}
	history := c.conversation.Tail(tailLimit)

	userMsg := model.NewUserMessage(text, snapshot)
	c.conversation.Append(userMsg)
	c.attachments.Clear()

	req, err := BuildRequest(c.registry.Active(), c.PageContext(), history, text, snapshot)
	if err != nil {
		return nil, c.fail(ctx, err)
	}

	reply, err := c.generate(ctx, req, onChunk)
	if err != nil {
		return nil, c.fail(ctx, err)
	}

	c.setStatus(StatusCommitting)
	modelMsg := model.NewModelMessage(reply, userMsg.ID)
	c.conversation.Append(modelMsg)
	c.setStatus(StatusIdle)

	return modelMsg, nil
}

// Regenerate re-issues generation for the turn the message belongs to and
// splices the new answer at the position the previous one occupied.
func (c *Controller) Regenerate(ctx context.Context, id model.MessageID) (*model.Message, error) {
	if c.settings.APIKey == "" {
		return nil, goerr.Wrap(model.ErrNoCredential, "set an API key before regenerating")
	}

	if err := c.begin(); err != nil {
		return nil, err
	}

	target, err := c.conversation.Get(id)
	if err != nil {
		c.setStatus(StatusIdle)
		return nil, err
	}

	var userMsg *model.Message
	switch target.Role {
	case model.RoleUser:
		userMsg = target
		// Drop the answer this turn already has, if any.
		if next := c.messageAfter(id); next != nil && next.Role == model.RoleModel {
			if err := c.conversation.RemoveByID(next.ID); err != nil {
				c.setStatus(StatusIdle)
				return nil, err
			}
		}

	case model.RoleModel:
		userMsg = c.generatingUserMessage(target)
		if userMsg == nil {
			c.setStatus(StatusIdle)
			return nil, goerr.Wrap(model.ErrMessageNotFound, "no user message generated this answer", goerr.V("message_id", id))
		}
		if err := c.conversation.RemoveByID(id); err != nil {
			c.setStatus(StatusIdle)
			return nil, err
		}
	}

	history := c.historyBefore(userMsg.ID)
	req, err := BuildRequest(c.registry.Active(), c.PageContext(), history, userMsg.Content, userMsg.Attachments)
	if err != nil {
		return nil, c.fail(ctx, err)
	}

	reply, err := c.generate(ctx, req, nil)
	if err != nil {
		return nil, c.fail(ctx, err)
	}

	c.setStatus(StatusCommitting)
	modelMsg := model.NewModelMessage(reply, userMsg.ID)
	if _, err := c.conversation.SpliceAfter(userMsg.ID, modelMsg); err != nil {
		return nil, c.fail(ctx, err)
	}
	c.setStatus(StatusIdle)

	return modelMsg, nil
}

// DeleteMessage removes a single message. It does not cascade to the
// paired answer.
func (c *Controller) DeleteMessage(id model.MessageID) error {
	c.mu.Lock()
	if c.status != StatusIdle {
		c.mu.Unlock()
		return goerr.Wrap(model.ErrBusy, "cannot delete while generating")
	}
	c.mu.Unlock()

	return c.conversation.RemoveByID(id)
}

// Reset clears the conversation and the staged attachments.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.status != StatusIdle {
		c.mu.Unlock()
		return goerr.Wrap(model.ErrBusy, "cannot reset while generating")
	}
	c.mu.Unlock()

	c.conversation.Clear()
	c.attachments.Clear()
	return nil
}

// RefreshPageContext replaces the page context wholesale from the page
// source. Extraction failure means "no context available", never fatal.
func (c *Controller) RefreshPageContext(ctx context.Context) {
	if c.page == nil {
		return
	}

	content, err := c.page.Extract(ctx)
	if err != nil {
		logging.From(ctx).Warn("page content extraction failed", "error", err)
		content = ""
	}
	c.SetPageContext(content)
}

func (c *Controller) SetPageContext(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageContext = content
}

func (c *Controller) PageContext() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageContext
}

func (c *Controller) generate(ctx context.Context, req *adapter.GenerateRequest, onChunk func(string)) (string, error) {
	modelName := c.modelName()

	if onChunk == nil {
		c.setStatus(StatusWaiting)
		return c.client.GenerateContent(ctx, modelName, req)
	}

	c.setStatus(StatusStreaming)
	accumulated, err := c.client.GenerateContentStream(ctx, modelName, req, onChunk)
	if err != nil {
		return "", err
	}

	// The final accumulation is the authoritative result; extract the
	// candidate text from it before committing.
	text, err := adapter.ParseResponseText([]byte(accumulated))
	if err != nil {
		return "", goerr.Wrap(err, "stream ended with unusable payload", goerr.V("accumulated", accumulated))
	}
	return text, nil
}

// messageAfter returns the message positioned immediately after id.
func (c *Controller) messageAfter(id model.MessageID) *model.Message {
	msgs := c.conversation.Messages()
	for i, msg := range msgs {
		if msg.ID == id && i+1 < len(msgs) {
			return msgs[i+1]
		}
	}
	return nil
}

// generatingUserMessage finds the user message that produced the given
// model message, preferring the explicit back-reference over a positional
// walk.
func (c *Controller) generatingUserMessage(target *model.Message) *model.Message {
	if target.AnswersTo != nil {
		if msg, err := c.conversation.Get(*target.AnswersTo); err == nil && msg.Role == model.RoleUser {
			return msg
		}
	}

	msgs := c.conversation.Messages()
	idx := -1
	for i, msg := range msgs {
		if msg.ID == target.ID {
			idx = i
			break
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			return msgs[i]
		}
	}
	return nil
}

// historyBefore returns all messages positioned before id.
func (c *Controller) historyBefore(id model.MessageID) []*model.Message {
	msgs := c.conversation.Messages()
	for i, msg := range msgs {
		if msg.ID == id {
			return msgs[:i]
		}
	}
	return msgs
}
