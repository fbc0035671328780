// Package badge tracks the global unseen-message count pushed on the
// notifications channel and raises local alerts when it grows.
package badge

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/metrics"
	"github.com/studyhall/chatsync/internal/protocol"
)

// Alert is raised when the unseen count grows while the user is not viewing
// the conversation responsible for it.
type Alert struct {
	Count    int
	Previous int
	Sender   string
	At       time.Time
}

// Change is the payload of bus.BadgeChanged.
type Change struct {
	Count    int
	Previous int
}

// Bridge holds the last known count.
type Bridge struct {
	mu       sync.Mutex
	previous int
	active   string

	bus     *bus.Bus
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a bridge with a zero count.
func New(b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{bus: b, logger: logger.Named("badge"), metrics: m, now: time.Now}
}

// SetActivePeer records the conversation currently on screen; "" when none.
func (br *Bridge) SetActivePeer(peer string) {
	br.mu.Lock()
	br.active = peer
	br.mu.Unlock()
}

// ActivePeer returns the peer set by SetActivePeer.
func (br *Bridge) ActivePeer() string {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.active
}

// Apply records a new count. An increase raises one alert unless sender is
// exactly the active peer. Unattributed increases always alert.
func (br *Bridge) Apply(count int, sender string) (Alert, bool) {
	br.mu.Lock()
	prev := br.previous
	br.previous = count
	suppressed := sender != "" && sender == br.active
	br.mu.Unlock()

	br.metrics.SetUnseen(count)
	br.bus.Emit(bus.BadgeChanged, Change{Count: count, Previous: prev})

	if count <= prev {
		return Alert{}, false
	}
	if suppressed {
		br.logger.Debug("alert suppressed for open conversation", zap.String("sender", sender))
		return Alert{}, false
	}
	a := Alert{Count: count, Previous: prev, Sender: sender, At: br.now()}
	br.metrics.AlertRaised()
	br.logger.Info("unseen messages", zap.Int("count", count))
	br.bus.Emit(bus.BadgeAlert, a)
	return a, true
}

// HandleFrame applies one raw notifications channel frame.
func (br *Bridge) HandleFrame(raw []byte) {
	f, err := protocol.Decode(raw)
	if err != nil {
		br.metrics.FrameDropped("notifications")
		br.logger.Warn("dropping malformed frame", zap.Error(err))
		return
	}
	if t, ok := f.(*protocol.TotalUnseen); ok {
		br.Apply(t.Count, t.Sender)
	}
}

// Count returns the last applied count.
func (br *Bridge) Count() int {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.previous
}
