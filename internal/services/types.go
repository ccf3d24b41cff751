package services

import (
	"strings"
	"time"

	"parking-bot/internal/access"
	"parking-bot/internal/dialogue"
)

// UpdateKind tells what an inbound update carries
type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateAction   UpdateKind = "action"
	UpdateDocument UpdateKind = "document"
)

// ChatKind is where an update was sent
type ChatKind string

const (
	ChatPrivate ChatKind = "private"
	ChatGroup   ChatKind = "group"
)

// Sender identifies the author of an update
type Sender struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// Document is an attached file. Content is base64 in JSON.
type Document struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// Update is one platform-agnostic inbound event
type Update struct {
	Kind      UpdateKind `json:"kind"`
	Chat      ChatKind   `json:"chat"`
	From      Sender     `json:"from"`
	Text      string     `json:"text,omitempty"`
	Data      string     `json:"data,omitempty"`
	Document  *Document  `json:"document,omitempty"`
	Mentioned bool       `json:"mentioned,omitempty"`
}

// Button is an inline action attached to a reply
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Reply is a message sent back to the author of an update
type Reply struct {
	Text     string    `json:"text"`
	Buttons  []Button  `json:"buttons,omitempty"`
	Menu     bool      `json:"menu,omitempty"`
	Document *Document `json:"document,omitempty"`
}

// Notification is a message pushed to another identity
type Notification struct {
	Text     string    `json:"text"`
	Buttons  []Button  `json:"buttons,omitempty"`
	Menu     bool      `json:"menu,omitempty"`
	Document *Document `json:"document,omitempty"`
}

// Input is the context a handler works on
type Input struct {
	Sender   Sender
	Access   access.Access
	State    dialogue.State
	Text     string
	Document *Document
	Now      time.Time
}

// UserID returns the sender identity
func (in Input) UserID() int64 {
	return in.Sender.ID
}

// Result is what a handler produced. A nil Next returns the identity to idle.
type Result struct {
	Replies []Reply
	Next    dialogue.State
}

func say(lines ...string) Reply {
	return Reply{Text: strings.Join(lines, "\n")}
}

// done replies and returns to idle
func done(replies ...Reply) Result {
	return Result{Replies: replies}
}

// stay replies and keeps (or moves to) the given state
func stay(next dialogue.State, replies ...Reply) Result {
	return Result{Replies: replies, Next: next}
}
