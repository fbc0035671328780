package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/status"
	"github.com/studyhall/chatsync/internal/store"
)

// Target is the conversation whose queue gets flushed.
type Target interface {
	Peer() string
	FlushOutbox(ctx context.Context) error
}

// Flusher drains the outbox of the active conversation each time its chat
// channel reaches OPEN, and prunes confirmed entries periodically.
type Flusher struct {
	db       *store.DB
	active   func() Target
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	keep     time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewFlusher creates a flusher. active returns the open conversation, or nil.
func NewFlusher(db *store.DB, active func() Target, b *bus.Bus, logger *zap.Logger) *Flusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flusher{
		db:       db,
		active:   active,
		bus:      b,
		logger:   logger.Named("outbox"),
		interval: time.Hour,
		keep:     24 * time.Hour,
	}
}

// Start begins watching channel state changes.
func (f *Flusher) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	ch, unsub := f.bus.Subscribe("channel.", 64)
	go func() {
		defer close(f.done)
		defer unsub()
		f.loop(ctx, ch)
	}()
}

// Stop stops the flusher loop.
func (f *Flusher) Stop() {
	if f.cancel != nil {
		f.cancel()
		<-f.done
	}
}

func (f *Flusher) loop(ctx context.Context, ch <-chan bus.Event) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case evt := <-ch:
			change, ok := evt.Payload.(status.StatusChange)
			if !ok || change.Purpose != "chat" || change.To != status.Open {
				continue
			}
			f.flush(ctx, change.Peer)
		case <-ticker.C:
			f.prune()
		case <-ctx.Done():
			return
		}
	}
}

func (f *Flusher) flush(ctx context.Context, peer string) {
	t := f.active()
	if t == nil || t.Peer() != peer {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := t.FlushOutbox(ctx); err != nil {
		f.logger.Warn("outbox flush stopped, remaining messages stay queued", zap.String("peer", peer), zap.Error(err))
	}
}

func (f *Flusher) prune() {
	if f.db == nil {
		return
	}
	n, err := f.db.PruneOutbox(time.Now().Add(-f.keep))
	if err != nil {
		f.logger.Error("failed to prune outbox", zap.Error(err))
		return
	}
	if n > 0 {
		f.logger.Debug("outbox pruned", zap.Int64("entries", n))
	}
}
