package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client talks to a daemon's control service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient("unix://"+socketPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req, out any) error {
	var in any = &emptypb.Empty{}
	if req != nil {
		s, err := toStruct(req)
		if err != nil {
			return err
		}
		in = s
	}
	res := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), in, res); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return fromStruct(res, out)
}

func (c *Client) Status(ctx context.Context) (StatusReply, error) {
	var out StatusReply
	err := c.call(ctx, "Status", nil, &out)
	return out, err
}

func (c *Client) ListChats(ctx context.Context) (ChatsReply, error) {
	var out ChatsReply
	err := c.call(ctx, "ListChats", nil, &out)
	return out, err
}

func (c *Client) ListMessages(ctx context.Context, req MessagesRequest) (MessagesReply, error) {
	var out MessagesReply
	err := c.call(ctx, "ListMessages", req, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, req SendRequest) (SendReply, error) {
	var out SendReply
	err := c.call(ctx, "SendMessage", req, &out)
	return out, err
}

func (c *Client) Resend(ctx context.Context, req ResendRequest) error {
	s, err := toStruct(req)
	if err != nil {
		return err
	}
	return c.conn.Invoke(ctx, fullMethod("Resend"), s, new(emptypb.Empty))
}

func (c *Client) React(ctx context.Context, req ReactRequest) (ActionReply, error) {
	var out ActionReply
	err := c.call(ctx, "React", req, &out)
	return out, err
}

func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	var out SearchResult
	err := c.call(ctx, "Search", req, &out)
	return out, err
}

// Watch calls fn for every event until ctx ends, the stream closes, or fn
// returns an error.
func (c *Client) Watch(ctx context.Context, prefix string, fn func(Envelope) error) error {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], fullMethod("WatchEvents"))
	if err != nil {
		return err
	}
	req, err := toStruct(WatchRequest{Prefix: prefix})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var env Envelope
		if err := fromStruct(msg, &env); err != nil {
			return err
		}
		if err := fn(env); err != nil {
			return err
		}
	}
}
