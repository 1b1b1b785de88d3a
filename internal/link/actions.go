package link

import (
	"context"
	"encoding/json"
)

// Action is an outbound write payload. Tag is its single key on the wire.
type Action interface {
	Tag() string
}

// Body wraps a in its tagged envelope: {"<tag>": {...}}.
func Body(a Action) map[string]Action {
	return map[string]Action{a.Tag(): a}
}

// Mark returns the poke mark for app.
func Mark(app string) string {
	return app + "-action"
}

// PokeAction sends a to app.
func PokeAction(ctx context.Context, p Poker, app string, a Action) error {
	return p.Poke(ctx, app, Mark(app), Body(a))
}

// ConversationConfig is the membership of a new conversation.
type ConversationConfig struct {
	Members []string `json:"members"`
	Leaders []string `json:"leaders"`
}

type MakeConversation struct {
	Name   string             `json:"name"`
	Config ConversationConfig `json:"config"`
}

func (MakeConversation) Tag() string { return "make-conversation" }

func (a MakeConversation) MarshalJSON() ([]byte, error) {
	type wire MakeConversation
	w := wire(a)
	w.Config.Members = nonNil(w.Config.Members)
	w.Config.Leaders = nonNil(w.Config.Leaders)
	return json.Marshal(w)
}

// SendMessage carries a new message. Reference is null when the message is
// not a reply.
type SendMessage struct {
	Convo      string   `json:"convo"`
	Kind       string   `json:"kind"`
	Content    string   `json:"content"`
	Identifier string   `json:"identifier"`
	Reference  *string  `json:"reference"`
	Mentions   []string `json:"mentions"`
}

func (SendMessage) Tag() string { return "send-message" }

func (a SendMessage) MarshalJSON() ([]byte, error) {
	type wire SendMessage
	w := wire(a)
	w.Mentions = nonNil(w.Mentions)
	return json.Marshal(w)
}

type SendMessageEdit struct {
	Convo string `json:"convo"`
	On    string `json:"on"`
	Edit  string `json:"edit"`
}

func (SendMessageEdit) Tag() string { return "send-message-edit" }

type SendReaction struct {
	Convo    string `json:"convo"`
	On       string `json:"on"`
	Reaction string `json:"reaction"`
}

func (SendReaction) Tag() string { return "send-reaction" }

type ReadMessage struct {
	Convo   string `json:"convo"`
	Message string `json:"message"`
}

func (ReadMessage) Tag() string { return "read-message" }

type LeaveConversation struct {
	Convo string `json:"convo"`
}

func (LeaveConversation) Tag() string { return "leave-conversation" }

type MakeInvite struct {
	ID string `json:"id"`
	To string `json:"to"`
}

func (MakeInvite) Tag() string { return "make-invite" }

type AcceptInvite struct {
	ID string `json:"id"`
}

func (AcceptInvite) Tag() string { return "accept-invite" }

type RejectInvite struct {
	ID string `json:"id"`
}

func (RejectInvite) Tag() string { return "reject-invite" }

type MuteConversation struct {
	ID string `json:"id"`
}

func (MuteConversation) Tag() string { return "mute-conversation" }

type UnmuteConversation struct {
	ID string `json:"id"`
}

func (UnmuteConversation) Tag() string { return "unmute-conversation" }

// Search asks the backend to search messages. Results arrive on the
// /search-results/<uid> subscription.
type Search struct {
	UID        string  `json:"uid"`
	Phrase     string  `json:"phrase"`
	OnlyIn     *string `json:"only-in"`
	OnlyAuthor *string `json:"only-author"`
}

func (Search) Tag() string { return "search" }

// Optional returns nil for an empty string.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
