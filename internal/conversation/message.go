// Package conversation keeps the ordered message log for the one peer the
// user has open, with delivery status and read receipts.
package conversation

import (
	"time"

	"github.com/studyhall/chatsync/internal/protocol"
)

// Status is a message's delivery state.
type Status string

const (
	Sending Status = "sending"
	Sent    Status = "sent"
	Seen    Status = "seen"
)

func (s Status) rank() int {
	switch s {
	case Sent:
		return 1
	case Seen:
		return 2
	}
	return 0
}

// Advance returns the later of s and to. Status never moves backwards, so
// a seen message stays seen.
func (s Status) Advance(to Status) Status {
	if to.rank() > s.rank() {
		return to
	}
	return s
}

// Message is one entry of the log. Exactly one of ID and TempID is set: ID
// once the server has confirmed the message, TempID while it is pending.
type Message struct {
	ID        int64
	TempID    int64
	ClientID  string
	Sender    string
	Receiver  string
	Body      string
	CreatedAt time.Time
	Status    Status
}

// Key returns the id the message is addressed by in the log.
func (m Message) Key() int64 {
	if m.ID != 0 {
		return m.ID
	}
	return m.TempID
}

// Pending reports whether the server has not confirmed the message yet.
func (m Message) Pending() bool { return m.ID == 0 }

// FromChat converts a live chat frame.
func FromChat(c *protocol.Chat) Message {
	return Message{
		ID:        c.ID,
		ClientID:  c.ClientID,
		Sender:    c.Sender,
		Receiver:  c.Receiver,
		Body:      c.Body(),
		CreatedAt: protocol.ParseTimestamp(c.CreatedAt),
		Status:    Sent,
	}
}

// FromHistory converts a history record. History never yields Sending.
func FromHistory(r protocol.HistoryRecord) Message {
	st := Sent
	if r.IsSeen {
		st = Seen
	}
	return Message{
		ID:        r.ID,
		Sender:    r.Sender,
		Receiver:  r.Receiver,
		Body:      r.Body(),
		CreatedAt: protocol.ParseTimestamp(r.CreatedAt),
		Status:    st,
	}
}
