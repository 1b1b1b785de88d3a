// Package outbox sends messages optimistically: the provisional message is
// shown at once and marked failed in place if the backend rejects it.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/link"
	"github.com/matheus3301/chatsync/internal/optimistic"
	"github.com/matheus3301/chatsync/internal/patch"
	"github.com/matheus3301/chatsync/internal/state"
)

var (
	ErrEmptyMessage = errors.New("outbox: empty message")
	ErrNotFound     = errors.New("outbox: message not found")
	ErrNotFailed    = errors.New("outbox: message has not failed")
)

// SendRequest is a new outgoing message.
type SendRequest struct {
	Convo     string
	Kind      domain.Kind
	Content   string
	Reference string
	Mentions  []string
}

// Sender builds provisional messages and runs them through the optimistic
// engine.
type Sender struct {
	engine *optimistic.Engine
	poker  link.Poker
	app    string
	logger *zap.Logger

	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewSender creates a new outbox sender.
func NewSender(engine *optimistic.Engine, poker link.Poker, app string, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		engine: engine,
		poker:  poker,
		app:    app,
		logger: logger,
		now:    time.Now,
	}
}

// Send shows the message immediately with status pending and pokes the
// backend. It returns the provisional message.
func (s *Sender) Send(ctx context.Context, req SendRequest) (domain.Message, error) {
	if req.Content == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	if req.Kind == "" {
		req.Kind = domain.KindText
	}

	ts := s.nextStamp()
	id := domain.ProvisionalID(ts)
	msg := domain.Message{
		ID:         id,
		Identifier: id,
		Kind:       req.Kind,
		Content:    req.Content,
		Timestamp:  ts,
		Reference:  req.Reference,
		Status:     domain.StatusPending,
	}

	_, err := s.engine.Do(ctx, optimistic.Action{
		Name:  "send-message",
		Convo: req.Convo,
		Apply: func(tx *patch.Tx, st *state.State) error {
			if st.Chat(req.Convo) == nil {
				return fmt.Errorf("%w: %s", state.ErrUnknownConversation, req.Convo)
			}
			msg.Author = st.Self
			if err := tx.Set(state.MessagePath(req.Convo, id, state.FieldMessage), msg); err != nil {
				return err
			}
			return tx.Set(state.ChatPath(req.Convo, state.FieldUnreads), 0)
		},
		Remote: func(ctx context.Context) error {
			return link.PokeAction(ctx, s.poker, s.app, link.SendMessage{
				Convo:      req.Convo,
				Kind:       string(req.Kind),
				Content:    req.Content,
				Identifier: id,
				Reference:  link.Optional(req.Reference),
				Mentions:   req.Mentions,
			})
		},
		Compensate: markFailed(req.Convo, id),
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("send: %w", err)
	}

	s.logger.Debug("message queued", zap.String("convo", req.Convo), zap.String("identifier", id))
	return msg, nil
}

// Resend retries a failed message with its original identifier.
func (s *Sender) Resend(ctx context.Context, convo, identifier string) error {
	var msg domain.Message
	_, err := s.engine.Do(ctx, optimistic.Action{
		Name:  "send-message",
		Convo: convo,
		Apply: func(tx *patch.Tx, st *state.State) error {
			chat, i := st.FindMessage(convo, func(m *domain.Message) bool { return m.Identifier == identifier })
			if i < 0 {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, convo, identifier)
			}
			msg = chat.Messages[i].Clone()
			if msg.Status != domain.StatusFailed {
				return fmt.Errorf("%w: %s is %s", ErrNotFailed, identifier, msg.Status)
			}
			return tx.Set(state.MessagePath(convo, msg.ID, state.FieldStatus), domain.StatusPending)
		},
		Remote: func(ctx context.Context) error {
			return link.PokeAction(ctx, s.poker, s.app, link.SendMessage{
				Convo:      convo,
				Kind:       string(msg.Kind),
				Content:    msg.Content,
				Identifier: identifier,
				Reference:  link.Optional(msg.Reference),
			})
		},
		Compensate: markFailed(convo, identifier),
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// markFailed flags a still-pending message as failed. A message the backend
// already acknowledged through the push stream is left alone.
func markFailed(convo, identifier string) func(st *state.State) error {
	return func(st *state.State) error {
		chat, i := st.FindMessage(convo, func(m *domain.Message) bool { return m.Identifier == identifier })
		if i < 0 {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, convo, identifier)
		}
		if m := &chat.Messages[i]; m.Status == domain.StatusPending {
			m.Status = domain.StatusFailed
		}
		return nil
	}
}

// nextStamp returns a millisecond timestamp strictly greater than the last one.
func (s *Sender) nextStamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UnixMilli()
	if ts <= s.last {
		ts = s.last + 1
	}
	s.last = ts
	return ts
}
