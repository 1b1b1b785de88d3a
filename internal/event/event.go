// Package event decodes tagged push events and routes them to handlers.
package event

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/matheus3301/chatsync/internal/domain"
)

// Push event tags.
const (
	TagMessage       = "message"
	TagSending       = "sending"
	TagDelivered     = "delivered"
	TagConversations = "conversations"
	TagMessageList   = "message_list"
	TagInvite        = "invite"
	TagSearchResult  = "search_result"
)

// Event is one decoded push event. Exactly one of the concrete types below.
type Event interface {
	Tag() string
}

type Message struct {
	Convo   string         `json:"convo"`
	Message domain.Message `json:"message"`
}

type Sending struct {
	Convo      string `json:"convo"`
	Identifier string `json:"identifier"`
}

type Delivered struct {
	Convo      string `json:"convo"`
	Identifier string `json:"identifier"`
	ID         string `json:"id"`
}

type Invite struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Name string `json:"name"`
}

// Conversations, MessageList and SearchResult are reserved: their payloads
// are kept raw and have no reactive handling.
type Conversations struct{ Raw json.RawMessage }
type MessageList struct{ Raw json.RawMessage }
type SearchResult struct{ Raw json.RawMessage }

// Unknown is any object that is not a single known tag.
type Unknown struct {
	Keys []string
	Raw  json.RawMessage
}

func (Message) Tag() string       { return TagMessage }
func (Sending) Tag() string       { return TagSending }
func (Delivered) Tag() string     { return TagDelivered }
func (Invite) Tag() string        { return TagInvite }
func (Conversations) Tag() string { return TagConversations }
func (MessageList) Tag() string   { return TagMessageList }
func (SearchResult) Tag() string  { return TagSearchResult }
func (Unknown) Tag() string       { return "unknown" }

// Decode parses one push frame. A frame that is not a JSON object is an
// error; an object with zero, several, or unrecognized keys decodes to Unknown.
func Decode(data []byte) (Event, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if len(obj) != 1 {
		return unknown(obj, data), nil
	}

	var (
		tag  string
		body json.RawMessage
	)
	for k, v := range obj {
		tag, body = k, v
	}

	switch tag {
	case TagMessage:
		return decodeAs[Message](tag, body)
	case TagSending:
		return decodeAs[Sending](tag, body)
	case TagDelivered:
		return decodeAs[Delivered](tag, body)
	case TagInvite:
		return decodeAs[Invite](tag, body)
	case TagConversations:
		return Conversations{Raw: body}, nil
	case TagMessageList:
		return MessageList{Raw: body}, nil
	case TagSearchResult:
		return SearchResult{Raw: body}, nil
	}
	return unknown(obj, data), nil
}

func decodeAs[T Event](tag string, body json.RawMessage) (Event, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", tag, err)
	}
	return v, nil
}

func unknown(obj map[string]json.RawMessage, data []byte) Unknown {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return Unknown{Keys: keys, Raw: json.RawMessage(data)}
}
