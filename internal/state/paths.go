package state

import (
	"errors"
	"fmt"
	"slices"

	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/patch"
)

var (
	ErrUnknownConversation = errors.New("state: unknown conversation")
	ErrUnknownMessage      = errors.New("state: unknown message")
	ErrUnknownField        = errors.New("state: unknown field")
)

// Addressable fields. Conversation-level fields leave Path.Message empty;
// FieldActive is session-level and leaves Path.Convo empty too.
const (
	FieldActive = "active"

	FieldChat        = "chat"
	FieldName        = "name"
	FieldMembers     = "members"
	FieldLeaders     = "leaders"
	FieldMuted       = "muted"
	FieldLastActive  = "last_active"
	FieldLastRead    = "last_read"
	FieldUnreads     = "unreads"
	FieldLastMessage = "last_message"

	FieldMessage   = "message"
	FieldStatus    = "status"
	FieldReactions = "reactions"
)

// ActivePath addresses the open conversation marker.
func ActivePath() patch.Path {
	return patch.Path{Field: FieldActive}
}

// ChatPath addresses a conversation-level field.
func ChatPath(convo, field string) patch.Path {
	return patch.Path{Convo: convo, Field: field}
}

// MessagePath addresses a field of a message in a conversation window.
func MessagePath(convo, msgID, field string) patch.Path {
	return patch.Path{Convo: convo, Message: msgID, Field: field}
}

// ReactionPath addresses the voter set of one reaction symbol.
func ReactionPath(convo, msgID, symbol string) patch.Path {
	return patch.Path{Convo: convo, Message: msgID, Field: FieldReactions, Key: symbol}
}

// Get implements patch.Target. Returned values never alias live state.
func (s *State) Get(p patch.Path) (any, bool) {
	if p.Field == FieldActive {
		return s.Active, true
	}
	chat := s.Chats[p.Convo]
	if chat == nil {
		return nil, false
	}
	if p.Field == FieldChat {
		return chat.Clone(), true
	}
	if p.Message != "" {
		i := indexByID(chat.Messages, p.Message)
		if i < 0 {
			return nil, false
		}
		m := &chat.Messages[i]
		switch p.Field {
		case FieldMessage:
			return m.Clone(), true
		case FieldStatus:
			return m.Status, true
		case FieldReactions:
			voters, ok := m.Reactions[p.Key]
			if !ok {
				return nil, false
			}
			return slices.Clone(voters), true
		}
		return nil, false
	}
	c := &chat.Conversation
	switch p.Field {
	case FieldName:
		return c.Name, true
	case FieldMembers:
		return slices.Clone(c.Members), true
	case FieldLeaders:
		return slices.Clone(c.Leaders), true
	case FieldMuted:
		return c.Muted, true
	case FieldLastActive:
		return c.LastActive, true
	case FieldLastRead:
		return c.LastRead, true
	case FieldUnreads:
		return chat.Unreads, true
	case FieldLastMessage:
		if chat.LastMessage == nil {
			return (*domain.Message)(nil), true
		}
		lm := chat.LastMessage.Clone()
		return &lm, true
	}
	return nil, false
}

// Set implements patch.Target.
func (s *State) Set(p patch.Path, v any) error {
	if p.Field == FieldActive {
		active, ok := v.(string)
		if !ok {
			return typeErr(p, active, v)
		}
		s.Active = active
		return nil
	}
	if p.Field == FieldChat {
		c, ok := v.(domain.Chat)
		if !ok {
			return typeErr(p, c, v)
		}
		cc := c.Clone()
		s.Chats[p.Convo] = &cc
		return nil
	}
	chat := s.Chats[p.Convo]
	if chat == nil {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, p.Convo)
	}
	if p.Message != "" {
		return s.setMessageField(chat, p, v)
	}

	c := &chat.Conversation
	var ok bool
	switch p.Field {
	case FieldName:
		ok = assign(&c.Name, v)
	case FieldMembers:
		if ok = assign(&c.Members, v); ok {
			c.Members = slices.Clone(c.Members)
		}
	case FieldLeaders:
		if ok = assign(&c.Leaders, v); ok {
			c.Leaders = slices.Clone(c.Leaders)
		}
	case FieldMuted:
		ok = assign(&c.Muted, v)
	case FieldLastActive:
		ok = assign(&c.LastActive, v)
	case FieldLastRead:
		ok = assign(&c.LastRead, v)
	case FieldUnreads:
		ok = assign(&chat.Unreads, v)
	case FieldLastMessage:
		if ok = assign(&chat.LastMessage, v); ok && chat.LastMessage != nil {
			cp := chat.LastMessage.Clone()
			chat.LastMessage = &cp
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, p)
	}
	if !ok {
		return fmt.Errorf("state: %s: unexpected value type %T", p, v)
	}
	return nil
}

// assign stores v in dst only when it has dst's type.
func assign[T any](dst *T, v any) bool {
	x, ok := v.(T)
	if ok {
		*dst = x
	}
	return ok
}

func (s *State) setMessageField(chat *domain.Chat, p patch.Path, v any) error {
	i := indexByID(chat.Messages, p.Message)
	if p.Field == FieldMessage {
		m, ok := v.(domain.Message)
		if !ok {
			return typeErr(p, m, v)
		}
		m = m.Clone()
		if i >= 0 {
			chat.Messages[i] = m
			chat.Messages = domain.DedupeAndSort(chat.Messages)
			return nil
		}
		chat.Messages = domain.Prepend(chat.Messages, []domain.Message{m}, s.WindowSize)
		return nil
	}
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, p)
	}
	m := &chat.Messages[i]
	switch p.Field {
	case FieldStatus:
		st, ok := v.(domain.Status)
		if !ok {
			return typeErr(p, st, v)
		}
		m.Status = st
	case FieldReactions:
		voters, ok := v.([]string)
		if !ok {
			return typeErr(p, voters, v)
		}
		if m.Reactions == nil {
			m.Reactions = make(domain.Reactions)
		}
		m.Reactions[p.Key] = slices.Clone(voters)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, p)
	}
	return nil
}

// Delete implements patch.Target.
func (s *State) Delete(p patch.Path) error {
	if p.Field == FieldActive {
		s.Active = ""
		return nil
	}
	chat := s.Chats[p.Convo]
	if chat == nil {
		return nil
	}
	switch {
	case p.Field == FieldChat:
		delete(s.Chats, p.Convo)
		if s.Active == p.Convo {
			s.Active = ""
		}
	case p.Message != "" && p.Field == FieldMessage:
		if i := indexByID(chat.Messages, p.Message); i >= 0 {
			chat.Messages = slices.Delete(chat.Messages, i, i+1)
		}
	case p.Message != "" && p.Field == FieldReactions:
		if i := indexByID(chat.Messages, p.Message); i >= 0 {
			m := &chat.Messages[i]
			delete(m.Reactions, p.Key)
			if len(m.Reactions) == 0 {
				m.Reactions = nil
			}
		}
	case p.Message == "" && p.Field == FieldLastMessage:
		chat.LastMessage = nil
	default:
		return fmt.Errorf("state: %s cannot be deleted", p)
	}
	return nil
}

func indexByID(window []domain.Message, id string) int {
	return domain.IndexOf(window, func(m *domain.Message) bool { return m.ID == id })
}

func typeErr(p patch.Path, want, got any) error {
	return fmt.Errorf("state: %s expects %T, got %T", p, want, got)
}
