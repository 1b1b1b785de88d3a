package domain

// Status is the delivery state of a message in a chat window.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Kind discriminates message content.
type Kind string

const (
	KindText         Kind = "text"
	KindMedia        Kind = "media-ref"
	KindMemberAdd    Kind = "member-add"
	KindMemberRemove Kind = "member-remove"
	KindLeaderAdd    Kind = "leader-add"
	KindLeaderRemove Kind = "leader-remove"
	KindChangeName   Kind = "change-name"
)

// IsAdmin reports whether messages of this kind mutate the conversation itself.
func (k Kind) IsAdmin() bool {
	switch k {
	case KindMemberAdd, KindMemberRemove, KindLeaderAdd, KindLeaderRemove, KindChangeName:
		return true
	}
	return false
}

// Reactions maps a reaction symbol to the ordered, unique set of reactors.
type Reactions map[string][]string

// Clone returns a deep copy.
func (r Reactions) Clone() Reactions {
	if r == nil {
		return nil
	}
	out := make(Reactions, len(r))
	for sym, voters := range r {
		out[sym] = append([]string(nil), voters...)
	}
	return out
}

// Message is a single chat message. ID is the server-assigned numeric id, or
// a provisional id (see IsProvisional) until the backend confirms it.
type Message struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier,omitempty"`
	Author     string    `json:"author"`
	Kind       Kind      `json:"kind"`
	Content    string    `json:"content"`
	Timestamp  int64     `json:"timestamp"`
	Edited     bool      `json:"edited"`
	Reactions  Reactions `json:"reactions,omitempty"`
	Reference  string    `json:"reference,omitempty"`
	Status     Status    `json:"status,omitempty"`
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	m.Reactions = m.Reactions.Clone()
	return m
}

// Conversation holds the server-side attributes of a conversation.
type Conversation struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Members    []string `json:"members"`
	Leaders    []string `json:"leaders"`
	Muted      bool     `json:"muted"`
	LastActive int64    `json:"last_active"`
	LastRead   string   `json:"last_read,omitempty"`
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	c.Members = append([]string(nil), c.Members...)
	c.Leaders = append([]string(nil), c.Leaders...)
	return c
}

// Chat is the view entity: a conversation plus its bounded message window,
// ordered newest first.
type Chat struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages,omitempty"`
	LastMessage  *Message     `json:"last_message,omitempty"`
	Unreads      int          `json:"unreads"`
}

// Clone returns a deep copy of the chat and its window.
func (c Chat) Clone() Chat {
	out := Chat{
		Conversation: c.Conversation.Clone(),
		Unreads:      c.Unreads,
	}
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i, m := range c.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	if c.LastMessage != nil {
		lm := c.LastMessage.Clone()
		out.LastMessage = &lm
	}
	return out
}

// SearchStatus is the lifecycle of a message search.
type SearchStatus string

const (
	SearchLoading SearchStatus = "loading"
	SearchDone    SearchStatus = "done"
	SearchError   SearchStatus = "error"
)

// SearchHit is one message matched by a search.
type SearchHit struct {
	Convo   string  `json:"convo"`
	Message Message `json:"message"`
}

// Search is the state of the most recent message search.
type Search struct {
	UID        string       `json:"uid"`
	Phrase     string       `json:"phrase"`
	OnlyIn     string       `json:"only_in,omitempty"`
	OnlyAuthor string       `json:"only_author,omitempty"`
	Status     SearchStatus `json:"status"`
	Results    []SearchHit  `json:"results,omitempty"`
	Err        string       `json:"error,omitempty"`
}

// Snapshot is a point-in-time copy of the directory handed to persistence.
type Snapshot struct {
	Ship    string `json:"ship"`
	Version int    `json:"version"`
	SavedAt int64  `json:"saved_at"`
	Chats   []Chat `json:"chats"`
}
