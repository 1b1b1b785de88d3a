package api

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/chatsync/internal/actions"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/directory"
	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/state"
	"github.com/matheus3301/chatsync/internal/status"
)

// Lifecycle reports the session's lifecycle state.
type Lifecycle interface {
	Status() status.State
	Live() bool
}

// Service implements ControlServer on top of the sync core.
type Service struct {
	sessionName string
	startedAt   time.Time
	life        Lifecycle
	store       *state.Store
	dir         *directory.Directory
	sender      *outbox.Sender
	actions     *actions.Service
	bus         *bus.Bus
	logger      *zap.Logger
}

var _ ControlServer = (*Service)(nil)

// NewService creates the control service.
func NewService(sessionName string, life Lifecycle, store *state.Store, dir *directory.Directory, sender *outbox.Sender, acts *actions.Service, b *bus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessionName: sessionName,
		startedAt:   time.Now(),
		life:        life,
		store:       store,
		dir:         dir,
		sender:      sender,
		actions:     acts,
		bus:         b,
		logger:      logger,
	}
}

func (s *Service) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return reply(StatusReply{
		Session:       s.sessionName,
		Ship:          s.store.Self(),
		Status:        string(s.life.Status()),
		Live:          s.life.Live(),
		Conversations: len(s.store.Sorted()),
		Active:        s.store.Active(),
		UptimeMs:      time.Since(s.startedAt).Milliseconds(),
	})
}

func (s *Service) ListChats(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	chats := s.dir.Sorted()
	for i := range chats {
		chats[i].Messages = nil
	}
	return reply(ChatsReply{Chats: chats})
}

func (s *Service) ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req MessagesRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Anchor == "" {
		chat, ok := s.store.Chat(req.Convo)
		if !ok {
			return nil, grpcstatus.Errorf(codes.NotFound, "unknown conversation %q", req.Convo)
		}
		return reply(MessagesReply{Messages: chat.Messages, Fetched: 0})
	}

	dir, err := parseDirection(req.Direction)
	if err != nil {
		return nil, err
	}
	page, err := s.dir.GetMessages(ctx, directory.WindowRequest{
		Convo:     req.Convo,
		Anchor:    req.Anchor,
		Before:    req.Before,
		After:     req.After,
		Direction: dir,
	})
	if err != nil {
		return nil, toStatus("get messages", err)
	}
	return reply(MessagesReply{Messages: page.Window, Fetched: page.Fetched, End: page.End})
}

func (s *Service) SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SendRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	msg, err := s.sender.Send(ctx, outbox.SendRequest{
		Convo:     req.Convo,
		Kind:      domain.Kind(req.Kind),
		Content:   req.Content,
		Reference: req.Reference,
	})
	if err != nil {
		return nil, toStatus("send", err)
	}
	return reply(SendReply{Message: msg})
}

func (s *Service) Resend(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var req ResendRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := s.sender.Resend(ctx, req.Convo, req.Identifier); err != nil {
		return nil, toStatus("resend", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) React(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ReactRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Symbol == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "symbol is required")
	}
	id, err := s.actions.React(ctx, req.Convo, req.Message, req.Symbol)
	if err != nil {
		return nil, toStatus("react", err)
	}
	return reply(ActionReply{ActionID: id})
}

// Search runs a search and waits for it to finish. The search's own timeout
// bounds the wait.
func (s *Service) Search(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SearchRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	ch, unsub := s.bus.Subscribe(bus.SearchFinished, 8)
	defer unsub()

	uid := s.actions.Search(ctx, actions.SearchRequest{
		Phrase:     req.Phrase,
		OnlyIn:     req.OnlyIn,
		OnlyAuthor: req.OnlyAuthor,
	})
	for {
		select {
		case evt := <-ch:
			res, ok := evt.Payload.(domain.Search)
			if !ok || res.UID != uid {
				continue
			}
			return reply(res)
		case <-ctx.Done():
			return nil, grpcstatus.FromContextError(ctx.Err()).Err()
		}
	}
}

func parseDirection(s string) (directory.Direction, error) {
	switch s {
	case "", "jump":
		return directory.Jump, nil
	case "older":
		return directory.Older, nil
	case "newer":
		return directory.Newer, nil
	}
	return 0, grpcstatus.Errorf(codes.InvalidArgument, "unknown direction %q", s)
}

func reply(v any) (*structpb.Struct, error) {
	s, err := toStruct(v)
	if err != nil {
		return nil, grpcstatus.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func decode(in *structpb.Struct, out any) error {
	if err := fromStruct(in, out); err != nil {
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func toStatus(op string, err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, directory.ErrInvalidAnchor),
		errors.Is(err, outbox.ErrEmptyMessage),
		errors.Is(err, actions.ErrInvalidMessageID):
		code = codes.InvalidArgument
	case errors.Is(err, state.ErrUnknownConversation),
		errors.Is(err, state.ErrUnknownMessage),
		errors.Is(err, outbox.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, outbox.ErrNotFailed):
		code = codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return grpcstatus.FromContextError(err).Err()
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
