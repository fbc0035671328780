package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/studyhall/chatsync/internal/account"
	"github.com/studyhall/chatsync/internal/api"
	"github.com/studyhall/chatsync/internal/metrics"
)

// Server serves the local API on the account's Unix socket.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// Services are the local API handlers registered on the socket.
type Services struct {
	fx.In

	Sync         *api.SyncService
	Inbox        *api.InboxService
	Conversation *api.ConversationService
	Events       *api.EventsService
}

// NewServer binds the socket (mode 0600), replacing a stale one left by a
// crashed daemon. The account lock guarantees no live daemon owns it.
func NewServer(p Params, logger *zap.Logger, m *metrics.Metrics, svcs Services) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = account.SocketPath(p.Account)
	}
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unaryObserver(logger, m)),
		grpc.ChainStreamInterceptor(streamObserver(logger, m)),
	)
	srv.RegisterService(svcs.Sync.Desc(), svcs.Sync)
	srv.RegisterService(svcs.Inbox.Desc(), svcs.Inbox)
	srv.RegisterService(svcs.Conversation.Desc(), svcs.Conversation)
	srv.RegisterService(svcs.Events.Desc(), svcs.Events)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start serves until Stop. It blocks.
func (s *Server) Start() error {
	s.logger.Info("local API listening", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop drains in-flight calls, cutting open event streams when ctx ends,
// and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("local API stopping")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
	}
	_ = os.Remove(s.socketPath)
}

func unaryObserver(logger *zap.Logger, m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(logger, m, info.FullMethod, err, time.Since(start))
		return resp, err
	}
}

func streamObserver(logger *zap.Logger, m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		err := handler(srv, ss)
		observe(logger, m, info.FullMethod, err, 0)
		return err
	}
}

func observe(logger *zap.Logger, m *metrics.Metrics, method string, err error, d time.Duration) {
	code := status.Code(err)
	m.RPCHandled(method, code.String(), d)
	if err != nil {
		logger.Debug("local API call failed",
			zap.String("method", method),
			zap.String("code", code.String()),
			zap.Error(err))
	}
}
