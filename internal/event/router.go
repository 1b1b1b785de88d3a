package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/metrics"
)

// MessageHandler applies message-level events to conversation windows.
type MessageHandler interface {
	HandleMessage(ctx context.Context, ev Message)
	HandleSending(ctx context.Context, ev Sending)
	HandleDelivered(ctx context.Context, ev Delivered)
}

// InviteHandler reacts to invitations.
type InviteHandler interface {
	HandleInvite(ctx context.Context, ev Invite)
}

// Router dispatches decoded events in arrival order. It never buffers.
type Router struct {
	messages MessageHandler
	invites  InviteHandler
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewRouter(messages MessageHandler, invites InviteHandler, m *metrics.Metrics, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{messages: messages, invites: invites, metrics: m, logger: logger}
}

// Route decodes one frame and hands it to its handler. Malformed frames and
// unrecognized tags are logged and dropped.
func (r *Router) Route(ctx context.Context, data []byte) {
	ev, err := Decode(data)
	if err != nil {
		r.metrics.EventRouted("malformed")
		r.logger.Warn("dropping malformed event", zap.Error(err))
		return
	}
	r.Dispatch(ctx, ev)
}

// Dispatch hands an already decoded event to its handler.
func (r *Router) Dispatch(ctx context.Context, ev Event) {
	r.metrics.EventRouted(ev.Tag())

	switch e := ev.(type) {
	case Message:
		r.messages.HandleMessage(ctx, e)
	case Sending:
		r.messages.HandleSending(ctx, e)
	case Delivered:
		r.messages.HandleDelivered(ctx, e)
	case Invite:
		r.invites.HandleInvite(ctx, e)
	case Conversations, MessageList, SearchResult:
		r.logger.Debug("ignoring reserved event", zap.String("tag", ev.Tag()))
	case Unknown:
		r.logger.Warn("ignoring unknown event", zap.Strings("keys", e.Keys))
	}
}
