package model

import (
	"time"

	"github.com/google/uuid"
)

type MessageID string

// NewMessageID generates a new unique MessageID. IDs are never reused
// within a process lifetime, so stale references are detectable.
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one entry of a conversation. Content is immutable once the
// message is stored; only delete/regenerate may replace an entry.
type Message struct {
	ID      MessageID
	Role    Role
	Content string

	// Attachments are carried by user messages only. They are snapshots
	// taken at send time and never linked to later messages.
	Attachments []*Attachment

	// AnswersTo back-references the user message a model message answers,
	// so pairing does not depend on positional adjacency.
	AnswersTo *MessageID

	CreatedAt time.Time
}

// NewUserMessage creates a user message carrying the given attachments.
func NewUserMessage(content string, attachments []*Attachment) *Message {
	return &Message{
		ID:          NewMessageID(),
		Role:        RoleUser,
		Content:     content,
		Attachments: attachments,
		CreatedAt:   time.Now(),
	}
}

// NewModelMessage creates a model message answering the given user message.
func NewModelMessage(content string, answersTo MessageID) *Message {
	return &Message{
		ID:        NewMessageID(),
		Role:      RoleModel,
		Content:   content,
		AnswersTo: &answersTo,
		CreatedAt: time.Now(),
	}
}

// Clone returns a shallow copy. The attachment list and payloads are
// shared; message fields are not.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

type AttachmentID string

func NewAttachmentID() AttachmentID {
	return AttachmentID(uuid.New().String())
}

// Attachment is a binary (typically an image) staged for the next outgoing
// turn. Data is kept raw; base64 encoding happens at the wire layer.
type Attachment struct {
	ID        AttachmentID
	MimeType  string
	Data      []byte
	SourceRef string
}
