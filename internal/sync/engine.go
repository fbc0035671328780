// Package sync mirrors the live inbox and conversation state into the local
// store so it can be listed and searched while channels are down.
package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/conversation"
	"github.com/studyhall/chatsync/internal/inbox"
	"github.com/studyhall/chatsync/internal/store"
)

// Engine handles idempotent ingestion of bus events into the store.
// It subscribes to "inbox." and "message." events.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	ckpt   *Checkpoints
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new mirror engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mirror")
	return &Engine{
		db:     db,
		bus:    b,
		ckpt:   NewCheckpoints(db, logger),
		logger: logger,
	}
}

// Start subscribes to the bus and ingests events until Stop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	inboxCh, unsubInbox := e.bus.Subscribe("inbox.", 256)
	msgCh, unsubMsg := e.bus.Subscribe("message.", 1024)

	go func() {
		defer close(e.done)
		defer unsubInbox()
		defer unsubMsg()
		for {
			select {
			case evt := <-inboxCh:
				e.handleEvent(evt)
			case evt := <-msgCh:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the current event to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.InboxChanged:
		c, ok := evt.Payload.(inbox.Changed)
		if !ok {
			return
		}
		if err := e.IngestInbox(c); err != nil {
			e.logger.Error("failed to mirror inbox", zap.Error(err), zap.Int("entries", len(c.Entries)))
		}
	case bus.MessageUpserted, bus.MessageSeen:
		ev, ok := evt.Payload.(conversation.Event)
		if !ok {
			return
		}
		if err := e.IngestMessages(ev); err != nil {
			e.logger.Error("failed to mirror messages", zap.Error(err), zap.String("peer", ev.Peer), zap.Int("count", len(ev.Messages)))
		}
	}
}

// IngestInbox mirrors an inbox change. Snapshots replace every row.
func (e *Engine) IngestInbox(c inbox.Changed) error {
	rows := make([]store.Conversation, len(c.Entries))
	for i, s := range c.Entries {
		rows[i] = ConversationRow(s)
	}
	if c.Snapshot {
		if err := e.db.ReplaceConversations(rows); err != nil {
			return fmt.Errorf("replace conversations: %w", err)
		}
		if err := e.ckpt.MarkSnapshot(time.Now()); err != nil {
			e.logger.Warn("failed to record snapshot checkpoint", zap.Error(err))
		}
		e.logger.Debug("inbox snapshot mirrored", zap.Int("conversations", len(rows)))
		return nil
	}
	for i := range rows {
		if err := e.db.UpsertConversation(&rows[i]); err != nil {
			return fmt.Errorf("upsert conversation %q: %w", rows[i].Peer, err)
		}
	}
	return nil
}

// IngestMessages mirrors messages of one conversation in a transaction.
func (e *Engine) IngestMessages(ev conversation.Event) error {
	rows := make([]*store.Message, len(ev.Messages))
	for i, m := range ev.Messages {
		row := MessageRow(ev.Peer, m)
		rows[i] = &row
	}
	if err := e.db.UpsertMessages(rows); err != nil {
		return fmt.Errorf("upsert messages: %w", err)
	}
	return nil
}
