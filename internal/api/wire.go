package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/chatsync/internal/domain"
)

// StatusReply describes the running session.
type StatusReply struct {
	Session       string `json:"session"`
	Ship          string `json:"ship"`
	Status        string `json:"status"`
	Live          bool   `json:"live"`
	Conversations int    `json:"conversations"`
	Active        string `json:"active,omitempty"`
	UptimeMs      int64  `json:"uptime_ms"`
}

// ChatsReply lists conversations in directory order, without windows.
type ChatsReply struct {
	Chats []domain.Chat `json:"chats"`
}

// MessagesRequest reads a conversation window. With an empty Anchor the
// cached window is returned as is; otherwise a page is fetched around Anchor.
type MessagesRequest struct {
	Convo     string `json:"convo"`
	Anchor    string `json:"anchor,omitempty"`
	Before    int    `json:"before,omitempty"`
	After     int    `json:"after,omitempty"`
	Direction string `json:"direction,omitempty"`
}

type MessagesReply struct {
	Messages []domain.Message `json:"messages"`
	Fetched  int              `json:"fetched"`
	End      bool             `json:"end"`
}

type SendRequest struct {
	Convo     string `json:"convo"`
	Content   string `json:"content"`
	Kind      string `json:"kind,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type SendReply struct {
	Message domain.Message `json:"message"`
}

type ResendRequest struct {
	Convo      string `json:"convo"`
	Identifier string `json:"identifier"`
}

type ReactRequest struct {
	Convo   string `json:"convo"`
	Message string `json:"message"`
	Symbol  string `json:"symbol"`
}

// ActionReply carries the id of an optimistic action.
type ActionReply struct {
	ActionID string `json:"action_id"`
}

type SearchRequest struct {
	Phrase     string `json:"phrase"`
	OnlyIn     string `json:"only_in,omitempty"`
	OnlyAuthor string `json:"only_author,omitempty"`
}

type WatchRequest struct {
	Prefix string `json:"prefix,omitempty"`
}

// Envelope is one bus event forwarded to a watcher.
type Envelope struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	OccurredAtMs int64           `json:"occurred_at_ms"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, out any) error {
	if s == nil {
		s = new(structpb.Struct)
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", out, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %T: %w", out, err)
	}
	return nil
}

// SearchResult is the finished search state.
type SearchResult = domain.Search
