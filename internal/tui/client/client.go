package client

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/studyhall/chatsync/internal/rpc"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func call[Resp any](ctx context.Context, c *Client, service, method string, req any) (*Resp, error) {
	in, err := rpc.Encode(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, rpc.FullMethod(service, method), in, out); err != nil {
		return nil, err
	}
	resp := new(Resp)
	if err := rpc.Decode(out, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Status(ctx context.Context) (*rpc.StatusReport, error) {
	return call[rpc.StatusReport](ctx, c, rpc.SyncService, rpc.MethodStatus, rpc.Empty{})
}

func (c *Client) Foreground(ctx context.Context) (*rpc.Ack, error) {
	return call[rpc.Ack](ctx, c, rpc.SyncService, rpc.MethodForeground, rpc.Empty{})
}

func (c *Client) Background(ctx context.Context) (*rpc.Ack, error) {
	return call[rpc.Ack](ctx, c, rpc.SyncService, rpc.MethodBackground, rpc.Empty{})
}

func (c *Client) Refresh(ctx context.Context) (*rpc.Ack, error) {
	return call[rpc.Ack](ctx, c, rpc.SyncService, rpc.MethodRefresh, rpc.Empty{})
}

func (c *Client) Inbox(ctx context.Context, req rpc.ListRequest) (*rpc.InboxList, error) {
	return call[rpc.InboxList](ctx, c, rpc.InboxService, rpc.MethodList, req)
}

func (c *Client) Badge(ctx context.Context) (*rpc.BadgeReport, error) {
	return call[rpc.BadgeReport](ctx, c, rpc.InboxService, rpc.MethodBadge, rpc.Empty{})
}

func (c *Client) Open(ctx context.Context, peer string) (*rpc.Conversation, error) {
	return call[rpc.Conversation](ctx, c, rpc.ConversationService, rpc.MethodOpen, rpc.OpenRequest{Peer: peer})
}

func (c *Client) CloseConversation(ctx context.Context) (*rpc.Ack, error) {
	return call[rpc.Ack](ctx, c, rpc.ConversationService, rpc.MethodClose, rpc.Empty{})
}

func (c *Client) Messages(ctx context.Context, req rpc.MessagesRequest) (*rpc.Conversation, error) {
	return call[rpc.Conversation](ctx, c, rpc.ConversationService, rpc.MethodMessages, req)
}

func (c *Client) Send(ctx context.Context, peer, body string) (*rpc.Message, error) {
	return call[rpc.Message](ctx, c, rpc.ConversationService, rpc.MethodSend, rpc.SendRequest{Peer: peer, Body: body})
}

func (c *Client) MarkSeen(ctx context.Context, id int64) (*rpc.Ack, error) {
	return call[rpc.Ack](ctx, c, rpc.ConversationService, rpc.MethodMarkSeen, rpc.MarkSeenRequest{ID: id})
}

func (c *Client) Visible(ctx context.Context, id int64, ratio float64) (*rpc.Ack, error) {
	return call[rpc.Ack](ctx, c, rpc.ConversationService, rpc.MethodVisible, rpc.VisibleRequest{ID: id, Ratio: ratio})
}

func (c *Client) Search(ctx context.Context, req rpc.SearchRequest) (*rpc.SearchList, error) {
	return call[rpc.SearchList](ctx, c, rpc.ConversationService, rpc.MethodSearch, req)
}

// Watch streams bus events under namespace until ctx ends. fn runs on the
// receiving goroutine; returning an error stops the stream.
func (c *Client) Watch(ctx context.Context, namespace string, fn func(*rpc.Event) error) error {
	desc := &grpc.StreamDesc{StreamName: rpc.MethodWatch, ServerStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, rpc.FullMethod(rpc.EventsService, rpc.MethodWatch))
	if err != nil {
		return err
	}
	in, err := rpc.Encode(rpc.WatchRequest{Namespace: namespace})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return err
		}
		var evt rpc.Event
		if err := rpc.Decode(out, &evt); err != nil {
			return err
		}
		if err := fn(&evt); err != nil {
			return err
		}
	}
}
