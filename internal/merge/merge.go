// Package merge applies push-stream message events to the directory:
// contiguity checks, optimistic echo reconciliation, unread accounting and
// admin side effects.
package merge

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/state"
)

// ReadNotifier tells the backend a conversation was read up to id.
type ReadNotifier interface {
	NotifyRead(ctx context.Context, convo, id string)
}

// Outcome of merging one message into an open window.
const (
	OutcomeIgnored    = "ignored"
	OutcomePrepended  = "prepended"
	OutcomeReconciled = "reconciled"
	OutcomeDropped    = "dropped"
	OutcomeClosed     = "closed"
)

// Merged is the payload of bus.ChatMessageMerged and bus.ChatMessageDropped.
type Merged struct {
	Convo      string
	ID         string
	Outcome    string
	MostRecent bool
	Read       bool
}

// Engine implements event.MessageHandler.
type Engine struct {
	store   *state.Store
	reads   ReadNotifier
	bus     *bus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger
}

var _ event.MessageHandler = (*Engine)(nil)

func NewEngine(store *state.Store, reads ReadNotifier, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, reads: reads, bus: b, metrics: m, logger: logger}
}

// HandleMessage merges an authoritative message.
func (e *Engine) HandleMessage(ctx context.Context, ev event.Message) {
	var res Merged
	e.store.Dispatch(func(st *state.State) {
		res = apply(st, ev.Convo, ev.Message)
	})

	if res.Read && e.reads != nil {
		e.reads.NotifyRead(ctx, ev.Convo, ev.Message.ID)
	}

	switch res.Outcome {
	case OutcomeIgnored:
		e.logger.Debug("message for unknown conversation", zap.String("convo", ev.Convo), zap.String("id", ev.Message.ID))
		return
	case OutcomeDropped:
		e.metrics.GapDropped()
		e.logger.Debug("dropping non-contiguous message",
			zap.String("convo", ev.Convo), zap.String("id", ev.Message.ID))
		e.bus.Emit(bus.ChatMessageDropped, res)
		return
	}

	e.bus.Emit(bus.ChatMessageMerged, res)
}

func apply(st *state.State, convo string, m domain.Message) Merged {
	res := Merged{Convo: convo, ID: m.ID, Outcome: OutcomeIgnored}
	chat := st.Chat(convo)
	if chat == nil {
		return res
	}

	n, numeric := domain.ParseID(m.ID)
	head, hasHead := latestID(chat)
	res.MostRecent = numeric && (!hasHead || n > head)

	echo := numeric && !res.MostRecent && chat.LastMessage != nil && chat.LastMessage.ID == m.ID
	switch {
	case res.MostRecent:
		chat.Conversation.LastActive = m.Timestamp
	case echo:
		// Already confirmed by a delivered receipt; the echo carries the
		// server timestamp and final content.
		chat.Conversation.LastActive = max(chat.Conversation.LastActive, m.Timestamp)
	}
	if res.MostRecent || echo {
		lm := m.Clone()
		lm.Status = domain.StatusDelivered
		chat.LastMessage = &lm
	}

	switch {
	case m.Author == st.Self:
		chat.Unreads = 0
	case res.MostRecent:
		chat.Unreads++
	}

	res.Outcome = OutcomeClosed
	if st.Active == convo {
		if res.MostRecent {
			chat.Conversation.LastRead = m.ID
			chat.Unreads = 0
			res.Read = true
		}
		res.Outcome = mergeWindow(st, chat, m, n, numeric)
	}

	applyAdmin(&chat.Conversation, m)
	return res
}

// latestID is the highest confirmed id known for the chat, from the window
// or the cached last message.
func latestID(chat *domain.Chat) (uint64, bool) {
	head, ok := domain.HeadID(chat.Messages)
	if chat.LastMessage != nil {
		if lm, lok := domain.ParseID(chat.LastMessage.ID); lok && (!ok || lm > head) {
			return lm, true
		}
	}
	return head, ok
}

func mergeWindow(st *state.State, chat *domain.Chat, m domain.Message, n uint64, numeric bool) string {
	if i := findIdentity(chat.Messages, m); i >= 0 {
		x := &chat.Messages[i]
		x.ID = m.ID
		x.Content = m.Content
		x.Edited = m.Edited
		x.Reactions = m.Reactions.Clone()
		x.Reference = m.Reference
		x.Timestamp = m.Timestamp
		if numeric {
			x.Status = domain.StatusDelivered
		}
		chat.Messages = domain.DedupeAndSort(chat.Messages)
		return OutcomeReconciled
	}

	if !numeric {
		return OutcomeDropped
	}
	head, ok := domain.HeadID(chat.Messages)
	if ok && n != head+1 {
		return OutcomeDropped
	}
	in := m.Clone()
	in.Status = domain.StatusDelivered
	chat.Messages = domain.Prepend(chat.Messages, []domain.Message{in}, st.WindowSize)
	return OutcomePrepended
}

// findIdentity locates m in the window: by id, by the client identifier it
// was sent with, or by author, kind and content of a still-provisional entry.
// The content match prefers the oldest provisional entry.
func findIdentity(window []domain.Message, m domain.Message) int {
	i := domain.IndexOf(window, func(x *domain.Message) bool {
		if x.ID == m.ID {
			return true
		}
		return m.Identifier != "" && domain.IsProvisional(x.ID) && x.Identifier == m.Identifier
	})
	if i >= 0 {
		return i
	}
	for j := len(window) - 1; j >= 0; j-- {
		x := &window[j]
		if domain.IsProvisional(x.ID) && x.Author == m.Author && x.Kind == m.Kind && x.Content == m.Content {
			return j
		}
	}
	return -1
}

// applyAdmin applies membership and naming changes. Member and leader
// changes name the affected ships in the content, whitespace separated.
func applyAdmin(c *domain.Conversation, m domain.Message) {
	if !m.Kind.IsAdmin() {
		return
	}
	if m.Kind == domain.KindChangeName {
		c.Name = m.Content
		return
	}
	for _, ship := range strings.Fields(m.Content) {
		switch m.Kind {
		case domain.KindMemberAdd:
			c.Members, _ = domain.AddUnique(c.Members, ship)
		case domain.KindMemberRemove:
			c.Members, _ = domain.Remove(c.Members, ship)
		case domain.KindLeaderAdd:
			c.Leaders, _ = domain.AddUnique(c.Leaders, ship)
		case domain.KindLeaderRemove:
			c.Leaders, _ = domain.Remove(c.Leaders, ship)
		}
	}
}
