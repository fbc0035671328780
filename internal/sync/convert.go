package sync

import (
	"time"

	"github.com/studyhall/chatsync/internal/conversation"
	"github.com/studyhall/chatsync/internal/inbox"
	"github.com/studyhall/chatsync/internal/store"
)

// ConversationRow converts an inbox summary for storage.
func ConversationRow(s inbox.Summary) store.Conversation {
	return store.Conversation{
		Peer:          s.Peer,
		FullName:      s.FullName,
		ProfilePic:    s.ProfilePic,
		Online:        s.Online,
		PreviewText:   s.Preview.Text,
		PreviewSender: s.Preview.Sender,
		PreviewSeen:   s.Preview.Seen,
		UnreadCount:   s.UnreadCount,
		LastActivity:  unixMilli(s.LastActivity),
	}
}

// SummaryFromRow converts a stored inbox row back to a summary.
func SummaryFromRow(c store.Conversation) inbox.Summary {
	return inbox.Summary{
		Peer:         c.Peer,
		FullName:     c.FullName,
		ProfilePic:   c.ProfilePic,
		Online:       c.Online,
		Preview:      inbox.Preview{Text: c.PreviewText, Sender: c.PreviewSender, Seen: c.PreviewSeen},
		UnreadCount:  c.UnreadCount,
		LastActivity: fromUnixMilli(c.LastActivity),
	}
}

// MessageRow converts a conversation message for storage under peer.
func MessageRow(peer string, m conversation.Message) store.Message {
	return store.Message{
		Peer:      peer,
		ServerID:  m.ID,
		TempID:    m.TempID,
		ClientID:  m.ClientID,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Body:      m.Body,
		Status:    string(m.Status),
		CreatedAt: unixMilli(m.CreatedAt),
	}
}

// MessageFromRow converts a stored message back.
func MessageFromRow(r store.Message) conversation.Message {
	return conversation.Message{
		ID:        r.ServerID,
		TempID:    r.TempID,
		ClientID:  r.ClientID,
		Sender:    r.Sender,
		Receiver:  r.Receiver,
		Body:      r.Body,
		CreatedAt: fromUnixMilli(r.CreatedAt),
		Status:    conversation.Status(r.Status),
	}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
