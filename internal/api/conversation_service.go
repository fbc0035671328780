package api

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/studyhall/chatsync/internal/conversation"
	"github.com/studyhall/chatsync/internal/hub"
	"github.com/studyhall/chatsync/internal/rpc"
	"github.com/studyhall/chatsync/internal/status"
	"github.com/studyhall/chatsync/internal/store"
	intsync "github.com/studyhall/chatsync/internal/sync"
)

const (
	defaultMessageLimit = 100
	defaultSearchLimit  = 50
)

// ConversationService serves the open conversation and the message mirror.
type ConversationService struct {
	hub    *hub.Hub
	db     *store.DB
	logger *zap.Logger
}

// NewConversationService creates the conversation service.
func NewConversationService(h *hub.Hub, db *store.DB, logger *zap.Logger) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{hub: h, db: db, logger: logger.Named("api")}
}

// Desc describes the service for registration.
func (s *ConversationService) Desc() *grpc.ServiceDesc {
	return rpc.NewServiceDesc(rpc.ConversationService, []grpc.MethodDesc{
		rpc.Unary(rpc.ConversationService, rpc.MethodOpen, s.Open),
		rpc.Unary(rpc.ConversationService, rpc.MethodClose, s.Close),
		rpc.Unary(rpc.ConversationService, rpc.MethodMessages, s.Messages),
		rpc.Unary(rpc.ConversationService, rpc.MethodSend, s.Send),
		rpc.Unary(rpc.ConversationService, rpc.MethodMarkSeen, s.MarkSeen),
		rpc.Unary(rpc.ConversationService, rpc.MethodVisible, s.Visible),
		rpc.Unary(rpc.ConversationService, rpc.MethodSearch, s.Search),
	})
}

// Open makes req.Peer the active conversation. Load or connect failures are
// returned, but the conversation stays open so sends are queued.
func (s *ConversationService) Open(ctx context.Context, req *rpc.OpenRequest) (*rpc.Conversation, error) {
	peer := strings.TrimSpace(req.Peer)
	if peer == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "peer is required")
	}
	conv, err := s.hub.OpenConversation(ctx, peer)
	if err != nil {
		return nil, toStatus("open conversation", err)
	}
	return s.snapshot(conv), nil
}

func (s *ConversationService) Close(_ context.Context, _ *rpc.Empty) (*rpc.Ack, error) {
	s.hub.CloseConversation()
	return &rpc.Ack{OK: true}, nil
}

// Messages returns the active conversation, or the mirrored messages of
// another peer.
func (s *ConversationService) Messages(ctx context.Context, req *rpc.MessagesRequest) (*rpc.Conversation, error) {
	conv := s.hub.Active()
	if conv != nil && !req.Offline && (req.Peer == "" || req.Peer == conv.Peer()) {
		return s.snapshot(conv), nil
	}
	if req.Peer == "" {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "no conversation open")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	rows, err := s.db.ListMessages(req.Peer, req.BeforeMs, limit)
	if err != nil {
		return nil, toStatus("list messages", err)
	}
	msgs := make([]conversation.Message, len(rows))
	for i, r := range rows {
		msgs[i] = intsync.MessageFromRow(r)
	}
	me, _ := s.hub.Me(ctx)
	return &rpc.Conversation{Peer: req.Peer, Me: me, Messages: messagesToRPC(msgs, me)}, nil
}

// Send posts a message, opening req.Peer first when it is not active. A
// message that cannot go out now stays queued and is still returned.
func (s *ConversationService) Send(ctx context.Context, req *rpc.SendRequest) (*rpc.Message, error) {
	conv := s.hub.Active()
	if req.Peer != "" && (conv == nil || conv.Peer() != req.Peer) {
		var err error
		conv, err = s.hub.OpenConversation(ctx, req.Peer)
		if conv == nil {
			return nil, toStatus("open conversation", err)
		}
		if err != nil {
			s.logger.Warn("sending on a degraded conversation", zap.String("peer", req.Peer), zap.Error(err))
		}
	}
	if conv == nil {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "no conversation open")
	}
	m, err := conv.AppendOutgoing(ctx, req.Body)
	if err != nil && m.ClientID == "" {
		return nil, toStatus("send", err)
	}
	if err != nil {
		s.logger.Warn("message queued after send failure", zap.String("client_id", m.ClientID), zap.Error(err))
	}
	out := messageToRPC(m)
	return &out, nil
}

func (s *ConversationService) MarkSeen(ctx context.Context, req *rpc.MarkSeenRequest) (*rpc.Ack, error) {
	conv := s.hub.Active()
	if conv == nil {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "no conversation open")
	}
	if err := conv.MarkSeen(ctx, req.ID); err != nil {
		return nil, toStatus("mark seen", err)
	}
	return &rpc.Ack{OK: true}, nil
}

func (s *ConversationService) Visible(_ context.Context, req *rpc.VisibleRequest) (*rpc.Ack, error) {
	conv := s.hub.Active()
	if conv == nil {
		return &rpc.Ack{OK: false, Message: "no conversation open"}, nil
	}
	conv.ReportVisible(req.ID, req.Ratio)
	return &rpc.Ack{OK: true}, nil
}

// Search looks through the mirrored messages.
func (s *ConversationService) Search(_ context.Context, req *rpc.SearchRequest) (*rpc.SearchList, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	results, err := s.db.SearchMessages(req.Query, req.Peer, limit)
	if err != nil {
		return nil, toStatus("search messages", err)
	}
	out := &rpc.SearchList{Results: make([]rpc.SearchHit, len(results))}
	for i, r := range results {
		out.Results[i] = rpc.SearchHit{
			Message: messageToRPC(intsync.MessageFromRow(r.Message)),
			Peer:    r.Message.Peer,
			Snippet: r.Snippet,
		}
	}
	return out, nil
}

func (s *ConversationService) snapshot(conv *conversation.Synchronizer) *rpc.Conversation {
	live := s.hub.ChannelStates()["chat"] == status.Open
	return &rpc.Conversation{
		Peer:     conv.Peer(),
		Me:       conv.Me(),
		Live:     live,
		Profile:  profileToRPC(conv.Profile()),
		Messages: messagesToRPC(conv.Messages(), conv.Me()),
	}
}
