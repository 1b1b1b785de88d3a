package merge

import (
	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/state"
)

// HandleSending marks a locally sent message as accepted by the backend.
// Messages already delivered are left alone.
func (e *Engine) HandleSending(_ context.Context, ev event.Sending) {
	found := false
	e.store.Dispatch(func(st *state.State) {
		chat, i := st.FindMessage(ev.Convo, byIdentifier(ev.Identifier))
		if i < 0 {
			return
		}
		found = true
		m := &chat.Messages[i]
		if m.Status == domain.StatusPending || m.Status == domain.StatusFailed {
			m.Status = domain.StatusSent
		}
	})
	if !found {
		e.logger.Debug("sending receipt for unknown message",
			zap.String("convo", ev.Convo), zap.String("identifier", ev.Identifier))
	}
}

// HandleDelivered swaps a provisional id for the authoritative one. When the
// confirmed id is newer than anything known for the chat, the conversation
// is bumped as for any most-recent message.
func (e *Engine) HandleDelivered(ctx context.Context, ev event.Delivered) {
	n, ok := domain.ParseID(ev.ID)
	if !ok {
		e.logger.Warn("delivered receipt with invalid id",
			zap.String("convo", ev.Convo), zap.String("identifier", ev.Identifier), zap.String("id", ev.ID))
		return
	}

	found := false
	res := Merged{Convo: ev.Convo, ID: ev.ID, Outcome: OutcomeReconciled}
	e.store.Dispatch(func(st *state.State) {
		chat, i := st.FindMessage(ev.Convo, byIdentifier(ev.Identifier))
		if i < 0 {
			return
		}
		found = true
		head, hasHead := latestID(chat)

		m := &chat.Messages[i]
		m.ID = ev.ID
		m.Status = domain.StatusDelivered
		delivered := m.Clone()
		chat.Messages = domain.DedupeAndSort(chat.Messages)

		if hasHead && n <= head {
			return
		}
		res.MostRecent = true
		chat.Conversation.LastActive = delivered.Timestamp
		chat.LastMessage = &delivered
		if st.Active == ev.Convo {
			chat.Conversation.LastRead = ev.ID
			chat.Unreads = 0
			res.Read = true
		}
	})
	if !found {
		e.logger.Debug("delivered receipt for unknown message",
			zap.String("convo", ev.Convo), zap.String("identifier", ev.Identifier))
		return
	}
	if res.Read && e.reads != nil {
		e.reads.NotifyRead(ctx, ev.Convo, ev.ID)
	}
	e.bus.Emit(bus.ChatMessageMerged, res)
}

func byIdentifier(identifier string) func(*domain.Message) bool {
	return func(m *domain.Message) bool {
		return identifier != "" && m.Identifier == identifier
	}
}
