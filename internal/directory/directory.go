// Package directory maintains the set of known conversations and pages their
// message windows in from the backend.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/link"
	"github.com/matheus3301/chatsync/internal/patch"
	"github.com/matheus3301/chatsync/internal/state"
)

var ErrInvalidAnchor = errors.New("directory: invalid anchor")

// Refreshed is the payload of bus.DirectoryRefreshed.
type Refreshed struct {
	Count int
}

// Directory owns conversation membership of the state.
type Directory struct {
	store  *state.Store
	log    *patch.Log
	scrier link.Scrier
	app    string
	bus    *bus.Bus
	logger *zap.Logger
}

var _ event.InviteHandler = (*Directory)(nil)

func New(store *state.Store, log *patch.Log, scrier link.Scrier, app string, b *bus.Bus, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{store: store, log: log, scrier: scrier, app: app, bus: b, logger: logger}
}

// Refresh replaces the conversation set with the backend's. Windows of
// conversations that survive are kept; the rest are dropped.
func (d *Directory) Refresh(ctx context.Context) error {
	var chats []domain.Chat
	if err := d.scrier.Scry(ctx, d.app, "/conversations", &chats); err != nil {
		return fmt.Errorf("refresh directory: %w", err)
	}

	d.store.Dispatch(func(st *state.State) {
		next := make(map[string]*domain.Chat, len(chats))
		for _, c := range chats {
			cc := c.Clone()
			id := cc.Conversation.ID
			if old := st.Chats[id]; old != nil {
				cc.Messages = old.Messages
				if cc.LastMessage == nil {
					cc.LastMessage = old.LastMessage
				}
			} else {
				cc.Messages = domain.DedupeAndSort(cc.Messages)
			}
			next[id] = &cc
		}
		st.Chats = next
		if next[st.Active] == nil {
			st.Active = ""
		}
	})

	d.logger.Debug("directory refreshed", zap.Int("conversations", len(chats)))
	d.bus.Emit(bus.DirectoryRefreshed, Refreshed{Count: len(chats)})
	return nil
}

// HandleInvite refetches the whole directory.
func (d *Directory) HandleInvite(ctx context.Context, ev event.Invite) {
	d.logger.Info("invited", zap.String("convo", ev.ID), zap.String("from", ev.From))
	if err := d.Refresh(ctx); err != nil {
		d.logger.Warn("refresh after invite failed", zap.String("convo", ev.ID), zap.Error(err))
	}
}

// Sorted returns every conversation, most recently active first.
func (d *Directory) Sorted() []domain.Chat {
	return d.store.Sorted()
}

// Load seeds the directory from a snapshot.
func (d *Directory) Load(chats []domain.Chat) {
	d.store.Load(chats)
}

// Clear tears down the session: all conversations and outstanding optimistic
// patch sets are dropped.
func (d *Directory) Clear() {
	d.log.Clear()
	d.store.Reset()
	d.bus.Emit(bus.DirectoryCleared, nil)
}

// Direction selects how a fetched page is merged into a window.
type Direction int

const (
	// Older extends the window at its old end.
	Older Direction = iota
	// Newer extends the window at its new end.
	Newer
	// Jump replaces the window with the page.
	Jump
)

// WindowRequest asks for the messages around Anchor.
type WindowRequest struct {
	Convo     string
	Anchor    string
	Before    int
	After     int
	Direction Direction
}

// Page is the result of GetMessages.
type Page struct {
	Window  []domain.Message
	Fetched int
	End     bool
}

// GetMessages fetches [anchor-before, anchor+after] and merges it into the
// conversation's window. An empty page means there is nothing further in that
// direction and leaves the window as it was.
func (d *Directory) GetMessages(ctx context.Context, req WindowRequest) (Page, error) {
	anchor, err := strconv.ParseUint(req.Anchor, 10, 64)
	if err != nil || req.Before < 0 || req.After < 0 {
		d.logger.Warn("rejecting window request",
			zap.String("convo", req.Convo), zap.String("anchor", req.Anchor),
			zap.Int("before", req.Before), zap.Int("after", req.After))
		return Page{}, fmt.Errorf("%w: %q", ErrInvalidAnchor, req.Anchor)
	}
	if _, ok := d.store.Chat(req.Convo); !ok {
		return Page{}, fmt.Errorf("get messages: %w: %s", state.ErrUnknownConversation, req.Convo)
	}

	path := fmt.Sprintf("/messages/%s/%d/%d/%d", url.PathEscape(req.Convo), anchor, req.Before, req.After)
	var fetched []domain.Message
	if err := d.scrier.Scry(ctx, d.app, path, &fetched); err != nil {
		return Page{}, fmt.Errorf("get messages: %w", err)
	}
	for i := range fetched {
		fetched[i].Status = domain.StatusDelivered
	}

	page := Page{Fetched: len(fetched), End: len(fetched) == 0}
	d.store.Dispatch(func(st *state.State) {
		chat := st.Chat(req.Convo)
		if chat == nil {
			return
		}
		if len(fetched) > 0 {
			switch req.Direction {
			case Older:
				chat.Messages = domain.Append(chat.Messages, fetched, st.WindowSize)
			case Newer:
				chat.Messages = domain.Prepend(chat.Messages, fetched, st.WindowSize)
			case Jump:
				chat.Messages = domain.Prepend(nil, fetched, st.WindowSize)
			}
		}
		page.Window = chat.Clone().Messages
	})
	return page, nil
}
