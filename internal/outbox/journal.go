// Package outbox persists outgoing messages until the server confirms them
// and retransmits queued ones whenever the conversation channel opens.
package outbox

import (
	"context"
	"time"

	"github.com/studyhall/chatsync/internal/conversation"
	"github.com/studyhall/chatsync/internal/store"
)

// Journal is the store-backed conversation.Outbox.
type Journal struct {
	db *store.DB
}

// NewJournal creates a Journal over db.
func NewJournal(db *store.DB) *Journal {
	return &Journal{db: db}
}

// Queue records a new outgoing message.
func (j *Journal) Queue(_ context.Context, m conversation.Message) error {
	return j.db.QueueOutbox(&store.OutboxEntry{
		ClientID:  m.ClientID,
		Peer:      m.Receiver,
		Sender:    m.Sender,
		Body:      m.Body,
		TempID:    m.TempID,
		CreatedAt: m.CreatedAt.UnixMilli(),
	})
}

// Pending returns messages for peer that were never written to a channel.
func (j *Journal) Pending(_ context.Context, peer string) ([]conversation.Message, error) {
	entries, err := j.db.PendingOutbox(peer)
	if err != nil {
		return nil, err
	}
	out := make([]conversation.Message, len(entries))
	for i, e := range entries {
		out[i] = conversation.Message{
			TempID:    e.TempID,
			ClientID:  e.ClientID,
			Sender:    e.Sender,
			Receiver:  e.Peer,
			Body:      e.Body,
			CreatedAt: time.UnixMilli(e.CreatedAt),
			Status:    conversation.Sending,
		}
	}
	return out, nil
}

// MarkTransmitted records that the message went out on the channel.
func (j *Journal) MarkTransmitted(_ context.Context, clientID string) error {
	return j.db.MarkOutboxSending(clientID)
}

// Ack records the server id from the echo.
func (j *Journal) Ack(_ context.Context, clientID string, serverID int64) error {
	return j.db.MarkOutboxSent(clientID, serverID)
}
