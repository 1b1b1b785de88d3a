// Package actions implements the user-facing conversation actions on top of
// the optimistic engine.
package actions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/directory"
	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/link"
	"github.com/matheus3301/chatsync/internal/optimistic"
	"github.com/matheus3301/chatsync/internal/patch"
	"github.com/matheus3301/chatsync/internal/state"
)

var (
	ErrInvalidMessageID = errors.New("actions: invalid message id")
	ErrEmptyName        = errors.New("actions: empty name")
)

// Options configures a Service.
type Options struct {
	App           string
	SearchTimeout time.Duration
	InviteTimeout time.Duration
}

// Service runs conversation actions.
type Service struct {
	engine *optimistic.Engine
	store  *state.Store
	dir    *directory.Directory
	link   link.Link
	opts   Options
	bus    *bus.Bus
	logger *zap.Logger

	wg sync.WaitGroup
}

func New(engine *optimistic.Engine, store *state.Store, dir *directory.Directory, l link.Link, b *bus.Bus, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine: engine,
		store:  store,
		dir:    dir,
		link:   l,
		opts:   opts,
		bus:    b,
		logger: logger,
	}
}

// Wait blocks until background pokes and searches started by the service
// have finished. Optimistic actions are awaited through the engine.
func (s *Service) Wait() {
	s.wg.Wait()
	s.engine.Wait()
}

func (s *Service) poke(ctx context.Context, a link.Action) error {
	return link.PokeAction(ctx, s.link, s.opts.App, a)
}

// Edit requests an edit. The window changes only when the edited message
// comes back on the push stream.
func (s *Service) Edit(ctx context.Context, convo, msgID, content string) error {
	if _, ok := domain.ParseID(msgID); !ok {
		return fmt.Errorf("edit: %w: %q", ErrInvalidMessageID, msgID)
	}
	if err := s.poke(ctx, link.SendMessageEdit{Convo: convo, On: msgID, Edit: content}); err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	return nil
}

// React adds self to the voters of symbol on a message. If the backend
// rejects it, self is removed again.
func (s *Service) React(ctx context.Context, convo, msgID, symbol string) (string, error) {
	added := false
	return s.engine.Do(ctx, optimistic.Action{
		Name:  "send-reaction",
		Convo: convo,
		Apply: func(tx *patch.Tx, st *state.State) error {
			chat, i := st.FindMessage(convo, func(m *domain.Message) bool { return m.ID == msgID })
			if i < 0 {
				return fmt.Errorf("%w: %s/%s", state.ErrUnknownMessage, convo, msgID)
			}
			voters := append([]string(nil), chat.Messages[i].Reactions[symbol]...)
			voters, added = domain.AddUnique(voters, st.Self)
			if !added {
				return nil
			}
			return tx.Set(state.ReactionPath(convo, msgID, symbol), voters)
		},
		Remote: func(ctx context.Context) error {
			return s.poke(ctx, link.SendReaction{Convo: convo, On: msgID, Reaction: symbol})
		},
		Compensate: func(st *state.State) error {
			if !added {
				return nil
			}
			chat, i := st.FindMessage(convo, func(m *domain.Message) bool { return m.ID == msgID })
			if i < 0 {
				return fmt.Errorf("%w: %s/%s", state.ErrUnknownMessage, convo, msgID)
			}
			p := state.ReactionPath(convo, msgID, symbol)
			voters, removed := domain.Remove(chat.Messages[i].Reactions[symbol], st.Self)
			switch {
			case !removed:
				return nil
			case len(voters) == 0:
				return st.Delete(p)
			default:
				return st.Set(p, voters)
			}
		},
	})
}

// MarkRead marks convo read up to msgID.
func (s *Service) MarkRead(ctx context.Context, convo, msgID string) (string, error) {
	return s.engine.Do(ctx, optimistic.Action{
		Name:  "read-message",
		Convo: convo,
		Apply: func(tx *patch.Tx, _ *state.State) error {
			if err := tx.Set(state.ChatPath(convo, state.FieldLastRead), msgID); err != nil {
				return err
			}
			return tx.Set(state.ChatPath(convo, state.FieldUnreads), 0)
		},
		Remote: func(ctx context.Context) error {
			return s.poke(ctx, link.ReadMessage{Convo: convo, Message: msgID})
		},
	})
}

// NotifyRead tells the backend about a read already applied locally.
func (s *Service) NotifyRead(ctx context.Context, convo, id string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.poke(context.WithoutCancel(ctx), link.ReadMessage{Convo: convo, Message: id}); err != nil {
			s.logger.Warn("read notification failed", zap.String("convo", convo), zap.String("id", id), zap.Error(err))
		}
	}()
}

// Open makes convo the active conversation and marks it read.
func (s *Service) Open(ctx context.Context, convo string) error {
	var (
		found  bool
		latest string
	)
	s.store.Dispatch(func(st *state.State) {
		chat := st.Chat(convo)
		if chat == nil {
			return
		}
		found = true
		st.Active = convo
		latest = latestConfirmed(chat)
		if latest == chat.Conversation.LastRead && chat.Unreads == 0 {
			latest = ""
		}
	})
	if !found {
		return fmt.Errorf("open: %w: %s", state.ErrUnknownConversation, convo)
	}
	if latest == "" {
		return nil
	}
	if _, err := s.MarkRead(ctx, convo, latest); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	return nil
}

// Close clears the active conversation.
func (s *Service) Close() {
	s.store.Dispatch(func(st *state.State) {
		st.Active = ""
	})
}

func latestConfirmed(chat *domain.Chat) string {
	var best uint64
	id := ""
	if chat.LastMessage != nil {
		if n, ok := domain.ParseID(chat.LastMessage.ID); ok {
			best, id = n, chat.LastMessage.ID
		}
	}
	if n, ok := domain.HeadID(chat.Messages); ok && (id == "" || n > best) {
		id = strconv.FormatUint(n, 10)
	}
	return id
}

// SetMuted mutes or unmutes convo.
func (s *Service) SetMuted(ctx context.Context, convo string, muted bool) (string, error) {
	name := "unmute-conversation"
	var a link.Action = link.UnmuteConversation{ID: convo}
	if muted {
		name = "mute-conversation"
		a = link.MuteConversation{ID: convo}
	}
	return s.engine.Do(ctx, optimistic.Action{
		Name:  name,
		Convo: convo,
		Apply: func(tx *patch.Tx, _ *state.State) error {
			return tx.Set(state.ChatPath(convo, state.FieldMuted), muted)
		},
		Remote: func(ctx context.Context) error {
			return s.poke(ctx, a)
		},
	})
}

// Leave removes convo from the directory at once. It comes back if the
// backend refuses.
func (s *Service) Leave(ctx context.Context, convo string) (string, error) {
	return s.engine.Do(ctx, optimistic.Action{
		Name:  "leave-conversation",
		Convo: convo,
		Apply: func(tx *patch.Tx, st *state.State) error {
			if st.Chat(convo) == nil {
				return fmt.Errorf("%w: %s", state.ErrUnknownConversation, convo)
			}
			if st.Active == convo {
				if err := tx.Set(state.ActivePath(), ""); err != nil {
					return err
				}
			}
			return tx.Delete(state.ChatPath(convo, state.FieldChat))
		},
		Remote: func(ctx context.Context) error {
			return s.poke(ctx, link.LeaveConversation{Convo: convo})
		},
	})
}

// Invite adds ship to the member list and sends the invite.
func (s *Service) Invite(ctx context.Context, convo, ship string) (string, error) {
	return s.engine.Do(ctx, optimistic.Action{
		Name:  "make-invite",
		Convo: convo,
		Apply: func(tx *patch.Tx, st *state.State) error {
			chat := st.Chat(convo)
			if chat == nil {
				return fmt.Errorf("%w: %s", state.ErrUnknownConversation, convo)
			}
			members, added := domain.AddUnique(append([]string(nil), chat.Conversation.Members...), ship)
			if !added {
				return nil
			}
			return tx.Set(state.ChatPath(convo, state.FieldMembers), members)
		},
		Remote: func(ctx context.Context) error {
			return s.poke(ctx, link.MakeInvite{ID: convo, To: ship})
		},
	})
}

// AcceptInvite joins convo, waits for the backend to confirm, then refreshes
// the directory.
func (s *Service) AcceptInvite(ctx context.Context, convo string) error {
	_, err := link.AwaitOnceAfter(ctx, s.link, s.opts.App, "/invite/"+convo, s.opts.InviteTimeout,
		func(ctx context.Context) error {
			return s.poke(ctx, link.AcceptInvite{ID: convo})
		})
	if err != nil {
		s.logger.Warn("accept invite failed", zap.String("convo", convo), zap.Error(err))
		return fmt.Errorf("accept invite: %w", err)
	}
	if err := s.dir.Refresh(ctx); err != nil {
		return fmt.Errorf("accept invite: %w", err)
	}
	return nil
}

func (s *Service) RejectInvite(ctx context.Context, convo string) error {
	if err := s.poke(ctx, link.RejectInvite{ID: convo}); err != nil {
		return fmt.Errorf("reject invite: %w", err)
	}
	return nil
}

// MakeConversation creates a conversation and refreshes the directory.
func (s *Service) MakeConversation(ctx context.Context, name string, members, leaders []string) error {
	if name == "" {
		return ErrEmptyName
	}
	err := s.poke(ctx, link.MakeConversation{
		Name:   name,
		Config: link.ConversationConfig{Members: members, Leaders: leaders},
	})
	if err != nil {
		return fmt.Errorf("make conversation: %w", err)
	}
	if err := s.dir.Refresh(ctx); err != nil {
		return fmt.Errorf("make conversation: %w", err)
	}
	return nil
}
