package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/matheus3301/chatsync/internal/domain"
)

// conversationRow is one row of the conversations table.
type conversationRow struct {
	ID          string
	Position    int
	Name        string
	Members     string
	Leaders     string
	Muted       bool
	LastActive  int64
	LastRead    string
	Unreads     int
	LastMessage sql.NullString
}

func toRow(pos int, c domain.Chat) (conversationRow, error) {
	members, err := json.Marshal(nonNil(c.Conversation.Members))
	if err != nil {
		return conversationRow{}, err
	}
	leaders, err := json.Marshal(nonNil(c.Conversation.Leaders))
	if err != nil {
		return conversationRow{}, err
	}
	row := conversationRow{
		ID:         c.Conversation.ID,
		Position:   pos,
		Name:       c.Conversation.Name,
		Members:    string(members),
		Leaders:    string(leaders),
		Muted:      c.Conversation.Muted,
		LastActive: c.Conversation.LastActive,
		LastRead:   c.Conversation.LastRead,
		Unreads:    c.Unreads,
	}
	if c.LastMessage != nil {
		lm, err := json.Marshal(c.LastMessage)
		if err != nil {
			return conversationRow{}, err
		}
		row.LastMessage = sql.NullString{String: string(lm), Valid: true}
	}
	return row, nil
}

func (r conversationRow) chat() (domain.Chat, error) {
	c := domain.Chat{
		Conversation: domain.Conversation{
			ID:         r.ID,
			Name:       r.Name,
			Muted:      r.Muted,
			LastActive: r.LastActive,
			LastRead:   r.LastRead,
		},
		Unreads: r.Unreads,
	}
	if err := json.Unmarshal([]byte(r.Members), &c.Conversation.Members); err != nil {
		return c, fmt.Errorf("members of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Leaders), &c.Conversation.Leaders); err != nil {
		return c, fmt.Errorf("leaders of %s: %w", r.ID, err)
	}
	if r.LastMessage.Valid {
		var lm domain.Message
		if err := json.Unmarshal([]byte(r.LastMessage.String), &lm); err != nil {
			return c, fmt.Errorf("last message of %s: %w", r.ID, err)
		}
		c.LastMessage = &lm
	}
	return c, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
