package api

import (
	"context"
	"os"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/hub"
	"github.com/studyhall/chatsync/internal/rpc"
	intsync "github.com/studyhall/chatsync/internal/sync"
)

// SyncService reports daemon status and drives the app lifecycle.
type SyncService struct {
	account     string
	hub         *hub.Hub
	checkpoints *intsync.Checkpoints
	bus         *bus.Bus
	logger      *zap.Logger
}

// NewSyncService creates the sync service. checkpoints may be nil.
func NewSyncService(account string, h *hub.Hub, cp *intsync.Checkpoints, b *bus.Bus, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{account: account, hub: h, checkpoints: cp, bus: b, logger: logger.Named("api")}
}

// Desc describes the service for registration.
func (s *SyncService) Desc() *grpc.ServiceDesc {
	return rpc.NewServiceDesc(rpc.SyncService, []grpc.MethodDesc{
		rpc.Unary(rpc.SyncService, rpc.MethodStatus, s.Status),
		rpc.Unary(rpc.SyncService, rpc.MethodForeground, s.Foreground),
		rpc.Unary(rpc.SyncService, rpc.MethodBackground, s.Background),
		rpc.Unary(rpc.SyncService, rpc.MethodRefresh, s.Refresh),
	})
}

func (s *SyncService) Status(ctx context.Context, _ *rpc.Empty) (*rpc.StatusReport, error) {
	rep := &rpc.StatusReport{
		Account:       s.account,
		Channels:      map[string]string{},
		Badge:         s.hub.Badge().Count(),
		ActivePeer:    s.hub.Badge().ActivePeer(),
		DroppedEvents: s.bus.Dropped(),
		PID:           os.Getpid(),
	}
	for purpose, st := range s.hub.ChannelStates() {
		rep.Channels[purpose] = string(st)
	}
	if me, err := s.hub.Me(ctx); err == nil {
		rep.Me = me
	} else {
		s.logger.Debug("identity unavailable for status", zap.Error(err))
	}
	if s.checkpoints != nil {
		if at, err := s.checkpoints.LastSnapshot(); err == nil {
			rep.LastSnapshotMs = millis(at)
		}
	}
	return rep, nil
}

func (s *SyncService) Foreground(ctx context.Context, _ *rpc.Empty) (*rpc.Ack, error) {
	if err := s.hub.Foreground(ctx); err != nil {
		return nil, toStatus("foreground", err)
	}
	return &rpc.Ack{OK: true, Message: "channels open"}, nil
}

func (s *SyncService) Background(_ context.Context, _ *rpc.Empty) (*rpc.Ack, error) {
	s.hub.Background()
	return &rpc.Ack{OK: true, Message: "channels closed"}, nil
}

func (s *SyncService) Refresh(ctx context.Context, _ *rpc.Empty) (*rpc.Ack, error) {
	if err := s.hub.Refresh(ctx); err != nil {
		return nil, toStatus("refresh", err)
	}
	return &rpc.Ack{OK: true, Message: "channels reconnected"}, nil
}
