package api

import (
	"context"

	"google.golang.org/grpc"

	"github.com/studyhall/chatsync/internal/hub"
	"github.com/studyhall/chatsync/internal/inbox"
	"github.com/studyhall/chatsync/internal/rpc"
	"github.com/studyhall/chatsync/internal/status"
	"github.com/studyhall/chatsync/internal/store"
	intsync "github.com/studyhall/chatsync/internal/sync"
	"github.com/studyhall/chatsync/internal/transport"
)

const defaultListLimit = 200

// InboxService serves the conversation list and the unseen badge.
type InboxService struct {
	hub *hub.Hub
	db  *store.DB
}

// NewInboxService creates the inbox service.
func NewInboxService(h *hub.Hub, db *store.DB) *InboxService {
	return &InboxService{hub: h, db: db}
}

// Desc describes the service for registration.
func (s *InboxService) Desc() *grpc.ServiceDesc {
	return rpc.NewServiceDesc(rpc.InboxService, []grpc.MethodDesc{
		rpc.Unary(rpc.InboxService, rpc.MethodList, s.List),
		rpc.Unary(rpc.InboxService, rpc.MethodBadge, s.Badge),
	})
}

// List returns the live inbox. Until the first snapshot arrives, or when
// asked to, it serves the local mirror instead.
func (s *InboxService) List(_ context.Context, req *rpc.ListRequest) (*rpc.InboxList, error) {
	live := s.hub.Inbox().List()
	if !req.Offline && (len(live) > 0 || s.hub.ChannelStates()[string(transport.PurposeInbox)] == status.Open) {
		list := inbox.FilterSummaries(live, req.Query)
		if req.Limit > 0 && len(list) > req.Limit {
			list = list[:req.Limit]
		}
		return &rpc.InboxList{Entries: summariesToRPC(list)}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.ListConversations(req.Query, limit)
	if err != nil {
		return nil, toStatus("list conversations", err)
	}
	out := make([]rpc.Summary, len(rows))
	for i, r := range rows {
		out[i] = summaryToRPC(intsync.SummaryFromRow(r))
	}
	return &rpc.InboxList{Entries: out}, nil
}

func (s *InboxService) Badge(_ context.Context, _ *rpc.Empty) (*rpc.BadgeReport, error) {
	b := s.hub.Badge()
	return &rpc.BadgeReport{Count: b.Count(), ActivePeer: b.ActivePeer()}, nil
}
