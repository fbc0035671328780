// Package hub owns the daemon's channels and synchronizers: the inbox and
// notification channels live for the whole session, the conversation
// channel for as long as one peer is open.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studyhall/chatsync/internal/badge"
	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/conversation"
	"github.com/studyhall/chatsync/internal/inbox"
	"github.com/studyhall/chatsync/internal/metrics"
	"github.com/studyhall/chatsync/internal/outbox"
	"github.com/studyhall/chatsync/internal/status"
	"github.com/studyhall/chatsync/internal/transport"
)

// Backend is the platform REST surface the hub needs.
type Backend interface {
	transport.Credentials
	conversation.HistoryFetcher
	conversation.ProfileFetcher
}

// Options wires a Hub.
type Options struct {
	Session  *transport.Session
	Backend  Backend
	Outbox   conversation.Outbox
	Bus      *bus.Bus
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Liveness time.Duration
}

type active struct {
	conv *conversation.Synchronizer
	sup  *transport.Supervisor
}

// Hub coordinates the synchronizers and their supervisors.
type Hub struct {
	session  *transport.Session
	backend  Backend
	outbox   conversation.Outbox
	bus      *bus.Bus
	logger   *zap.Logger
	metrics  *metrics.Metrics
	liveness time.Duration

	inbox    *inbox.Synchronizer
	badge    *badge.Bridge
	inboxSup *transport.Supervisor
	notifSup *transport.Supervisor

	// openMu serializes conversation switches.
	openMu sync.Mutex
	mu     sync.Mutex
	active *active
	me     string
}

// New builds the hub and its long-lived channels. Nothing connects until
// Start or Foreground.
func New(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Hub{
		session:  opts.Session,
		backend:  opts.Backend,
		outbox:   opts.Outbox,
		bus:      opts.Bus,
		logger:   opts.Logger.Named("hub"),
		metrics:  opts.Metrics,
		liveness: opts.Liveness,
		inbox:    inbox.NewSynchronizer(opts.Bus, opts.Logger, opts.Metrics),
		badge:    badge.New(opts.Bus, opts.Logger, opts.Metrics),
	}
	h.inboxSup = transport.NewSupervisor(
		opts.Session.NewChannel(transport.PurposeInbox, "", h.inbox.HandleFrame), h.liveness, opts.Logger)
	h.notifSup = transport.NewSupervisor(
		opts.Session.NewChannel(transport.PurposeNotifications, "", h.badge.HandleFrame), h.liveness, opts.Logger)
	return h
}

// Start launches liveness checks and the first connection attempt.
func (h *Hub) Start() {
	h.inboxSup.Start()
	h.notifSup.Start()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := h.Foreground(ctx); err != nil {
			h.logger.Warn("initial connect failed, liveness will retry", zap.Error(err))
		}
	}()
	h.bus.Emit(bus.Lifecycle, "started")
}

// Stop closes every channel.
func (h *Hub) Stop() {
	h.CloseConversation()
	h.inboxSup.Close()
	h.notifSup.Close()
	h.bus.Emit(bus.Lifecycle, "stopped")
}

func (h *Hub) supervisors() []*transport.Supervisor {
	sups := []*transport.Supervisor{h.inboxSup, h.notifSup}
	h.mu.Lock()
	if h.active != nil {
		sups = append(sups, h.active.sup)
	}
	h.mu.Unlock()
	return sups
}

// Foreground reconnects every channel that is not OPEN.
func (h *Hub) Foreground(ctx context.Context) error {
	var errs []error
	for _, s := range h.supervisors() {
		if err := s.Foreground(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	h.bus.Emit(bus.Lifecycle, "foreground")
	return errors.Join(errs...)
}

// Background closes every channel until the next Foreground or Refresh.
func (h *Hub) Background() {
	for _, s := range h.supervisors() {
		s.Background()
	}
	h.bus.Emit(bus.Lifecycle, "background")
}

// Refresh forces fresh connections on every channel.
func (h *Hub) Refresh(ctx context.Context) error {
	var errs []error
	for _, s := range h.supervisors() {
		if err := s.Refresh(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Me returns the signed-in username, checking identity on first use.
func (h *Hub) Me(ctx context.Context) (string, error) {
	h.mu.Lock()
	me := h.me
	h.mu.Unlock()
	if me != "" {
		return me, nil
	}
	id, err := h.backend.Me(ctx)
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	h.me = id.Username
	h.mu.Unlock()
	return id.Username, nil
}

// OpenConversation makes peer the active conversation, closing the previous
// one. The returned conversation is usable even when the error is non-nil:
// an offline conversation still accepts sends into the outbox.
func (h *Hub) OpenConversation(ctx context.Context, peer string) (*conversation.Synchronizer, error) {
	h.openMu.Lock()
	defer h.openMu.Unlock()

	if cur := h.Active(); cur != nil && cur.Peer() == peer {
		return cur, nil
	}
	h.CloseConversation()

	me, err := h.Me(ctx)
	if err != nil {
		return nil, err
	}

	var conv *conversation.Synchronizer
	ch := h.session.NewChannel(transport.PurposeChat, peer, func(raw []byte) { conv.HandleFrame(raw) })
	conv = conversation.New(conversation.Options{
		Peer:     peer,
		Me:       me,
		History:  h.backend,
		Profiles: h.backend,
		Channel:  ch,
		Outbox:   h.outbox,
		Bus:      h.bus,
		Logger:   h.logger,
		Metrics:  h.metrics,
	})
	sup := transport.NewSupervisor(ch, h.liveness, h.logger)

	h.mu.Lock()
	h.active = &active{conv: conv, sup: sup}
	h.mu.Unlock()
	h.badge.SetActivePeer(peer)
	h.bus.Emit(bus.ConversationOpened, peer)
	h.logger.Info("conversation opened", zap.String("peer", peer))

	sup.Start()
	var errs []error
	if err := conv.LoadHistory(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := sup.Foreground(ctx); err != nil {
		errs = append(errs, err)
	}
	if _, err := conv.LoadPeerProfile(ctx); err != nil {
		h.logger.Debug("peer profile unavailable", zap.Error(err))
	}
	return conv, errors.Join(errs...)
}

// CloseConversation tears down the active conversation, if any.
func (h *Hub) CloseConversation() {
	h.mu.Lock()
	a := h.active
	h.active = nil
	h.mu.Unlock()
	if a == nil {
		return
	}
	a.conv.Close()
	a.sup.Close()
	h.badge.SetActivePeer("")
	h.bus.Emit(bus.ConversationClosed, a.conv.Peer())
	h.logger.Info("conversation closed", zap.String("peer", a.conv.Peer()))
}

// Active returns the open conversation, or nil.
func (h *Hub) Active() *conversation.Synchronizer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return nil
	}
	return h.active.conv
}

// Inbox returns the inbox synchronizer.
func (h *Hub) Inbox() *inbox.Synchronizer { return h.inbox }

// Badge returns the notification bridge.
func (h *Hub) Badge() *badge.Bridge { return h.badge }

// ChannelStates reports each supervised channel's state by purpose.
func (h *Hub) ChannelStates() map[string]status.State {
	out := map[string]status.State{
		string(transport.PurposeInbox):         h.inboxSup.Channel().State(),
		string(transport.PurposeNotifications): h.notifSup.Channel().State(),
	}
	h.mu.Lock()
	if h.active != nil {
		out[string(transport.PurposeChat)] = h.active.sup.Channel().State()
	}
	h.mu.Unlock()
	return out
}

// FlushTarget returns the active conversation as an outbox target, or a nil
// interface when none is open.
func (h *Hub) FlushTarget() outbox.Target {
	if c := h.Active(); c != nil {
		return c
	}
	return nil
}
