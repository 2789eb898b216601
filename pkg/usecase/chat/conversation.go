package chat

import (
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/pagetalk/pkg/model"
)

// Conversation is the ordered message list and the single source of truth
// for history. Append order is chronological order; positions are not
// stable identifiers, IDs are.
type Conversation struct {
	mu       sync.RWMutex
	messages []*model.Message
}

func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds a message at the end and returns its ID.
func (c *Conversation) Append(msg *model.Message) model.MessageID {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.ID == "" {
		msg.ID = model.NewMessageID()
	}
	c.messages = append(c.messages, msg)
	return msg.ID
}

// Get returns the message with the given ID.
func (c *Conversation) Get(id model.MessageID) (*model.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexOf(id); i >= 0 {
		return c.messages[i].Clone(), nil
	}
	return nil, goerr.Wrap(model.ErrMessageNotFound, "cannot get message", goerr.V("message_id", id))
}

// RemoveByID detaches the message. It never cascades; removing a paired
// answer is the controller's policy.
func (c *Conversation) RemoveByID(id model.MessageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return goerr.Wrap(model.ErrMessageNotFound, "cannot remove message", goerr.V("message_id", id))
	}
	c.messages = append(c.messages[:i], c.messages[i+1:]...)
	return nil
}

// SpliceAfter inserts msg immediately following the message with the given
// ID, preserving the relative order of all others.
func (c *Conversation) SpliceAfter(id model.MessageID, msg *model.Message) (model.MessageID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return "", goerr.Wrap(model.ErrMessageNotFound, "cannot splice after message", goerr.V("message_id", id))
	}

	if msg.ID == "" {
		msg.ID = model.NewMessageID()
	}
	c.messages = append(c.messages, nil)
	copy(c.messages[i+2:], c.messages[i+1:])
	c.messages[i+1] = msg
	return msg.ID, nil
}

// Tail returns the most recent n messages in order.
func (c *Conversation) Tail(n int) []*model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	start := 0
	if n >= 0 && len(c.messages) > n {
		start = len(c.messages) - n
	}
	tail := make([]*model.Message, len(c.messages)-start)
	for i, msg := range c.messages[start:] {
		tail[i] = msg.Clone()
	}
	return tail
}

// Messages returns a copy of the full message list. Stored content stays
// immutable: callers receive message clones, never store-owned pointers.
func (c *Conversation) Messages() []*model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := make([]*model.Message, len(c.messages))
	for i, msg := range c.messages {
		msgs[i] = msg.Clone()
	}
	return msgs
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Clear empties the conversation. Used only by an explicit reset.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

func (c *Conversation) indexOf(id model.MessageID) int {
	for i, msg := range c.messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}
