package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhall/chatsync/internal/apperr"
	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/metrics"
	"github.com/studyhall/chatsync/internal/platform"
	"github.com/studyhall/chatsync/internal/protocol"
	"github.com/studyhall/chatsync/internal/status"
)

var (
	// ErrClosed is returned once the conversation has been torn down.
	ErrClosed = errors.New("conversation closed")
	// ErrEmptyBody rejects blank outgoing messages.
	ErrEmptyBody = errors.New("empty message body")
)

// HistoryFetcher loads the stored messages exchanged with a peer.
type HistoryFetcher interface {
	History(ctx context.Context, peer string) ([]protocol.HistoryRecord, error)
}

// ProfileFetcher loads a peer's profile header.
type ProfileFetcher interface {
	ProfileDetails(ctx context.Context, username string) (*platform.Profile, error)
}

// Channel is the conversation's live connection.
type Channel interface {
	Send(ctx context.Context, v any) error
	State() status.State
}

// Outbox persists outgoing messages until the server confirms them.
type Outbox interface {
	Queue(ctx context.Context, m Message) error
	Pending(ctx context.Context, peer string) ([]Message, error)
	MarkTransmitted(ctx context.Context, clientID string) error
	Ack(ctx context.Context, clientID string, serverID int64) error
}

// Event is the payload of message.* bus events.
type Event struct {
	Peer     string
	Messages []Message
}

// Options wires a Synchronizer. Only Peer and Me are required.
type Options struct {
	Peer     string
	Me       string
	History  HistoryFetcher
	Profiles ProfileFetcher
	Channel  Channel
	Outbox   Outbox
	Bus      *bus.Bus
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	// Dwell and Threshold tune auto-seen; zero picks the defaults.
	Dwell     time.Duration
	Threshold float64
	Now       func() time.Time
}

// Synchronizer owns the message log for one peer.
type Synchronizer struct {
	peer     string
	me       string
	history  HistoryFetcher
	profiles ProfileFetcher
	channel  Channel
	outbox   Outbox
	bus      *bus.Bus
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	vis      *Visibility

	// sendMu serializes AppendOutgoing and FlushOutbox so queued messages
	// go out in creation order.
	sendMu sync.Mutex

	mu       sync.Mutex
	msgs     []Message
	gen      uint64
	closed   bool
	lastTemp int64
	profile  *platform.Profile
}

// New creates a Synchronizer with an empty log.
func New(opts Options) *Synchronizer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Dwell <= 0 {
		opts.Dwell = DefaultDwell
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultVisibleThreshold
	}
	s := &Synchronizer{
		peer:     opts.Peer,
		me:       opts.Me,
		history:  opts.History,
		profiles: opts.Profiles,
		channel:  opts.Channel,
		outbox:   opts.Outbox,
		bus:      opts.Bus,
		logger:   opts.Logger.Named("conversation").With(zap.String("peer", opts.Peer)),
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	s.vis = NewVisibility(opts.Dwell, opts.Threshold, s.autoSeen)
	return s
}

// Peer returns the other participant.
func (s *Synchronizer) Peer() string { return s.peer }

// Me returns the local user.
func (s *Synchronizer) Me() string { return s.me }

// LoadHistory fetches the stored log once and merges live messages that
// arrived meanwhile. A response that arrives after Close, or after a newer
// load started, is discarded.
func (s *Synchronizer) LoadHistory(ctx context.Context) error {
	if s.history == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	recs, err := s.history.History(ctx, s.peer)
	if err != nil {
		return apperr.FromIO("load history", err)
	}

	loaded := make([]Message, 0, len(recs))
	index := make(map[int64]int, len(recs))
	for _, r := range recs {
		m := FromHistory(r)
		if m.ID != 0 {
			if _, dup := index[m.ID]; dup {
				continue
			}
			index[m.ID] = len(loaded)
		}
		loaded = append(loaded, m)
	}

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("discarding stale history", zap.Int("records", len(recs)))
		return nil
	}
	for _, m := range s.msgs {
		if i, ok := index[m.ID]; ok && m.ID != 0 {
			loaded[i].Status = loaded[i].Status.Advance(m.Status)
			continue
		}
		loaded = append(loaded, m)
	}
	s.msgs = loaded
	out := s.copyLocked()
	s.mu.Unlock()

	for _, m := range out {
		if m.Status == Seen && m.ID != 0 {
			s.vis.Forget(m.ID)
		}
	}
	s.logger.Info("history loaded", zap.Int("messages", len(out)))
	s.emit(bus.MessageUpserted, out...)
	return nil
}

// AppendIncoming appends a live message. A message whose server id is
// already in the log is skipped. An echo of our own pending message is
// reconciled in place instead of appended. Reports whether the log changed.
func (s *Synchronizer) AppendIncoming(m Message) bool {
	if m.Status == "" {
		m.Status = Sent
	}
	m.TempID = 0

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if m.ID != 0 && s.indexLocked(m.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	if m.Sender == s.me {
		if i := s.pendingMatchLocked(m); i >= 0 {
			p := &s.msgs[i]
			clientID := p.ClientID
			p.ID = m.ID
			p.TempID = 0
			p.Status = p.Status.Advance(m.Status)
			if !m.CreatedAt.IsZero() {
				p.CreatedAt = m.CreatedAt
			}
			reconciled := *p
			s.mu.Unlock()

			s.ackOutbox(clientID, m.ID)
			s.emit(bus.MessageUpserted, reconciled)
			return true
		}
	}
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()

	s.emit(bus.MessageUpserted, m)
	return true
}

// pendingMatchLocked finds the pending own message an echo confirms: by
// client id, else the oldest pending message with the same body.
func (s *Synchronizer) pendingMatchLocked(echo Message) int {
	if echo.ClientID != "" {
		for i, m := range s.msgs {
			if m.Pending() && m.ClientID == echo.ClientID {
				return i
			}
		}
	}
	for i, m := range s.msgs {
		if m.Pending() && m.Sender == s.me && m.Body == echo.Body {
			return i
		}
	}
	return -1
}

// AppendOutgoing adds a Sending message and transmits it when the channel
// is OPEN. Otherwise the message stays Sending, queued for the next open.
// A failed transmission is returned but the message is kept.
func (s *Synchronizer) AppendOutgoing(ctx context.Context, body string) (Message, error) {
	if strings.TrimSpace(body) == "" {
		return Message{}, ErrEmptyBody
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Message{}, ErrClosed
	}
	now := s.now()
	temp := now.UnixMilli()
	if temp <= s.lastTemp {
		temp = s.lastTemp + 1
	}
	s.lastTemp = temp
	m := Message{
		TempID:    temp,
		ClientID:  uuid.NewString(),
		Sender:    s.me,
		Receiver:  s.peer,
		Body:      body,
		CreatedAt: now,
		Status:    Sending,
	}
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()

	s.emit(bus.MessageUpserted, m)
	if s.outbox != nil {
		if err := s.outbox.Queue(ctx, m); err != nil {
			s.logger.Error("failed to queue message", zap.String("client_id", m.ClientID), zap.Error(err))
		}
	}

	if !s.channelOpen() {
		s.metrics.SendQueued()
		s.logger.Info("channel not open, message queued", zap.String("client_id", m.ClientID))
		return m, nil
	}
	if err := s.transmit(ctx, m); err != nil {
		s.metrics.SendQueued()
		return m, err
	}
	return m, nil
}

func (s *Synchronizer) transmit(ctx context.Context, m Message) error {
	frame := protocol.NewOutgoingChat(s.me, s.peer, m.Body, m.ClientID)
	if err := s.channel.Send(ctx, frame); err != nil {
		s.logger.Warn("send failed, message stays queued", zap.String("client_id", m.ClientID), zap.Error(err))
		return err
	}
	if s.outbox != nil {
		if err := s.outbox.MarkTransmitted(ctx, m.ClientID); err != nil {
			s.logger.Error("failed to mark message transmitted", zap.Error(err))
		}
	}
	return nil
}

// FlushOutbox transmits queued messages in creation order. It stops at the
// first failure; the rest stay queued. Messages missing from the log (for
// example after a restart) are restored as Sending.
func (s *Synchronizer) FlushOutbox(ctx context.Context) error {
	if !s.channelOpen() {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	var pending []Message
	if s.outbox != nil {
		var err error
		pending, err = s.outbox.Pending(ctx, s.peer)
		if err != nil {
			return err
		}
	} else {
		pending = s.unsent()
	}
	if len(pending) == 0 {
		return nil
	}

	s.restore(pending)
	for _, m := range pending {
		if err := s.transmit(ctx, m); err != nil {
			return err
		}
	}
	s.logger.Info("outbox flushed", zap.Int("messages", len(pending)))
	return nil
}

func (s *Synchronizer) unsent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.msgs {
		if m.Pending() && m.Status == Sending {
			out = append(out, m)
		}
	}
	return out
}

func (s *Synchronizer) restore(pending []Message) {
	s.mu.Lock()
	var added []Message
	for _, p := range pending {
		found := false
		for _, m := range s.msgs {
			if m.ClientID == p.ClientID {
				found = true
				break
			}
		}
		if !found {
			p.Status = Sending
			s.msgs = append(s.msgs, p)
			added = append(added, p)
		}
	}
	s.mu.Unlock()
	if len(added) > 0 {
		s.emit(bus.MessageUpserted, added...)
	}
}

// MarkSeen sends a read receipt for a peer message and marks it Seen. The
// user's own messages are left alone.
func (s *Synchronizer) MarkSeen(ctx context.Context, id int64) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 || s.msgs[i].Sender == s.me || s.msgs[i].Status == Seen {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.channel != nil {
		if err := s.channel.Send(ctx, protocol.NewSeen(id, s.me)); err != nil {
			return err
		}
	}

	s.mu.Lock()
	i = s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	s.msgs[i].Status = Seen
	m := s.msgs[i]
	s.mu.Unlock()

	s.vis.Forget(id)
	s.emit(bus.MessageSeen, m)
	return nil
}

// ApplySeen marks one of the user's messages Seen after the peer's receipt.
// Nothing is sent back.
func (s *Synchronizer) ApplySeen(id int64) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 || s.msgs[i].Sender != s.me || s.msgs[i].Status == Seen {
		s.mu.Unlock()
		return false
	}
	s.msgs[i].Status = Seen
	m := s.msgs[i]
	s.mu.Unlock()

	s.emit(bus.MessageSeen, m)
	return true
}

// HandleFrame applies one raw chat channel frame.
func (s *Synchronizer) HandleFrame(raw []byte) {
	f, err := protocol.Decode(raw)
	if err != nil {
		s.metrics.FrameDropped("chat")
		s.logger.Warn("dropping malformed frame", zap.Error(err))
		return
	}
	switch f := f.(type) {
	case *protocol.Chat:
		if !s.belongs(f) {
			s.logger.Debug("ignoring chat for another conversation", zap.String("sender", f.Sender))
			return
		}
		s.AppendIncoming(FromChat(f))
	case *protocol.Seen:
		s.ApplySeen(f.MessageID)
	default:
		s.logger.Debug("ignoring frame on chat channel")
	}
}

func (s *Synchronizer) belongs(c *protocol.Chat) bool {
	switch c.Sender {
	case s.peer:
		return c.Receiver == "" || c.Receiver == s.me
	case s.me:
		return c.Receiver == "" || c.Receiver == s.peer
	}
	return false
}

// ReportVisible feeds the auto-seen tracker. Only confirmed peer messages
// that are not yet seen are tracked.
func (s *Synchronizer) ReportVisible(id int64, ratio float64) {
	s.mu.Lock()
	i := s.indexLocked(id)
	track := i >= 0 && s.msgs[i].Sender != s.me && s.msgs[i].Status != Seen
	s.mu.Unlock()
	if track {
		s.vis.Report(id, ratio)
	}
}

func (s *Synchronizer) autoSeen(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.MarkSeen(ctx, id); err != nil {
		s.vis.Reset(id)
		s.logger.Warn("auto-seen receipt failed", zap.Int64("id", id), zap.Error(err))
	}
}

// LoadPeerProfile fetches the peer header.
func (s *Synchronizer) LoadPeerProfile(ctx context.Context) (*platform.Profile, error) {
	if s.profiles == nil {
		return &platform.Profile{Username: s.peer}, nil
	}
	p, err := s.profiles.ProfileDetails(ctx, s.peer)
	if err != nil {
		return nil, apperr.FromIO("load profile", err)
	}
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	return p, nil
}

// Profile returns the last loaded peer profile, or nil.
func (s *Synchronizer) Profile() *platform.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Messages returns a copy of the log.
func (s *Synchronizer) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Close discards in-flight loads and stops auto-seen timers.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.gen++
	s.mu.Unlock()
	s.vis.Stop()
}

func (s *Synchronizer) channelOpen() bool {
	return s.channel != nil && s.channel.State() == status.Open
}

func (s *Synchronizer) ackOutbox(clientID string, serverID int64) {
	if s.outbox == nil || clientID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.outbox.Ack(ctx, clientID, serverID); err != nil {
		s.logger.Error("failed to ack outbox entry", zap.String("client_id", clientID), zap.Error(err))
	}
}

func (s *Synchronizer) indexLocked(id int64) int {
	if id == 0 {
		return -1
	}
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Synchronizer) copyLocked() []Message {
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *Synchronizer) emit(kind string, msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	s.bus.Emit(kind, Event{Peer: s.peer, Messages: msgs})
}
