package api

import (
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/chatsync/internal/bus"
)

// WatchEvents streams bus events whose kind starts with the requested prefix
// until the client goes away.
func (s *Service) WatchEvents(in *structpb.Struct, stream grpc.ServerStream) error {
	var req WatchRequest
	if err := decode(in, &req); err != nil {
		return err
	}
	ch, unsub := s.bus.Subscribe(req.Prefix, 64)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			msg, err := toStruct(s.envelope(evt))
			if err != nil {
				s.logger.Warn("dropping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *Service) envelope(evt bus.Event) Envelope {
	env := Envelope{
		ID:           uuid.NewString(),
		Kind:         evt.Kind,
		OccurredAtMs: evt.Timestamp.UnixMilli(),
	}
	if evt.Payload != nil {
		if b, err := json.Marshal(evt.Payload); err == nil {
			env.Payload = b
		} else {
			s.logger.Debug("event payload not encodable", zap.String("kind", evt.Kind), zap.Error(err))
		}
	}
	return env
}
