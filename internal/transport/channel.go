package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/studyhall/chatsync/internal/apperr"
	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/protocol"
	"github.com/studyhall/chatsync/internal/status"
)

// Handler receives raw text frames. Calls for one channel never overlap.
type Handler func(raw []byte)

// ErrClosed is returned by Open when Close raced an in-flight connect.
var ErrClosed = errors.New("transport: channel closed")

// Channel is one WebSocket connection for a purpose (and, for chat, a peer).
type Channel struct {
	s       *Session
	purpose Purpose
	peer    string
	handler Handler
	state   *status.Machine
	logger  *zap.Logger

	mu     sync.Mutex
	gen    uint64
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
	me     string
}

// NewChannel creates a CLOSED channel. Nothing is dialed until Open.
func (s *Session) NewChannel(purpose Purpose, peer string, h Handler) *Channel {
	if h == nil {
		h = func([]byte) {}
	}
	return &Channel{
		s:       s,
		purpose: purpose,
		peer:    peer,
		handler: h,
		state:   status.NewMachine(string(purpose), peer, s.bus),
		logger:  s.logger.With(zap.String("purpose", string(purpose)), zap.String("peer", peer)),
	}
}

func (c *Channel) Purpose() Purpose { return c.purpose }

func (c *Channel) Peer() string { return c.peer }

// State returns the current lifecycle state.
func (c *Channel) State() status.State { return c.state.Current() }

// Me returns the username confirmed by the last successful identity check.
func (c *Channel) Me() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.me
}

// Open connects the channel. It is a no-op while the channel is OPEN or
// CONNECTING.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.Down() {
		c.mu.Unlock()
		return nil
	}
	if err := c.state.Transition(status.Connecting); err != nil {
		c.mu.Unlock()
		return err
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	res, err := c.s.dial(ctx, c.purpose, c.peer)
	if err != nil {
		c.failOpen(gen, err)
		return err
	}

	// A Close, or a Close followed by a newer Open, supersedes this attempt.
	c.mu.Lock()
	if c.gen != gen || c.state.Current() != status.Connecting {
		c.mu.Unlock()
		res.conn.CloseNow()
		return ErrClosed
	}
	readCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.conn, c.cancel, c.done, c.me = res.conn, cancel, done, res.me
	_ = c.state.Transition(status.Open)
	c.mu.Unlock()

	c.s.metrics.ConnectAttempt(string(c.purpose), "ok")
	c.s.metrics.SetChannelOpen(string(c.purpose), true)
	c.logger.Info("channel open")

	go c.readLoop(readCtx, res.conn, done)
	return nil
}

func (c *Channel) failOpen(gen uint64, err error) {
	kind := apperr.KindOf(err)
	c.mu.Lock()
	if c.gen == gen && c.state.Current() == status.Connecting {
		to := status.Error
		if kind == apperr.TokenUnavailable {
			to = status.Closed
		}
		_ = c.state.Transition(to)
	}
	c.mu.Unlock()

	c.s.metrics.ConnectAttempt(string(c.purpose), string(kind))
	switch kind {
	case apperr.TokenUnavailable:
		c.logger.Debug("no channel token, waiting for next trigger")
	case apperr.AuthExpired:
		c.logger.Warn("session expired", zap.Error(err))
		c.s.bus.Emit(bus.AuthExpired, err.Error())
	default:
		c.logger.Warn("channel open failed", zap.Error(err))
	}
}

// Send encodes v and writes it as one text frame.
func (c *Channel) Send(ctx context.Context, v any) error {
	c.mu.Lock()
	conn := c.conn
	live := c.state.Live()
	c.mu.Unlock()
	if !live || conn == nil {
		return apperr.New(apperr.NetworkFailure, "send", errors.New(string(c.purpose)+" channel not open"))
	}
	b, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		return apperr.FromIO("send", err)
	}
	return nil
}

// Close releases the socket and waits for the reader to exit. Safe to call
// repeatedly and from any state.
func (c *Channel) Close() {
	c.mu.Lock()
	conn, cancel, done := c.conn, c.cancel, c.done
	c.conn, c.cancel, c.done = nil, nil, nil
	c.gen++
	switch c.state.Current() {
	case status.Open, status.Connecting, status.Error:
		_ = c.state.Transition(status.Closed)
	}
	c.mu.Unlock()

	if conn == nil {
		return
	}
	c.s.metrics.SetChannelOpen(string(c.purpose), false)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	cancel()
	<-done
	c.logger.Info("channel closed")
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		typ, b, err := conn.Read(ctx)
		if err != nil {
			c.handleDrop(conn, err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		c.s.metrics.FrameReceived(string(c.purpose))
		c.handler(b)
	}
}

// handleDrop runs on the reader when the connection ends without Close.
func (c *Channel) handleDrop(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.conn, c.cancel, c.done = nil, nil, nil
	to := status.Error
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		to = status.Closed
	}
	_ = c.state.Transition(to)
	c.mu.Unlock()

	cancel()
	conn.CloseNow()
	c.s.metrics.SetChannelOpen(string(c.purpose), false)
	c.logger.Info("channel dropped", zap.String("state", string(to)), zap.Error(err))
}
