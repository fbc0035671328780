package api

import (
	"time"

	"github.com/studyhall/chatsync/internal/conversation"
	"github.com/studyhall/chatsync/internal/inbox"
	"github.com/studyhall/chatsync/internal/platform"
	"github.com/studyhall/chatsync/internal/rpc"
)

func summaryToRPC(s inbox.Summary) rpc.Summary {
	return rpc.Summary{
		Peer:           s.Peer,
		FullName:       s.FullName,
		ProfilePic:     s.ProfilePic,
		Online:         s.Online,
		Preview:        s.Preview.Text,
		PreviewSender:  s.Preview.Sender,
		PreviewSeen:    s.Preview.Seen,
		UnreadCount:    s.UnreadCount,
		LastActivityMs: millis(s.LastActivity),
	}
}

func summariesToRPC(list []inbox.Summary) []rpc.Summary {
	out := make([]rpc.Summary, len(list))
	for i, s := range list {
		out[i] = summaryToRPC(s)
	}
	return out
}

func messageToRPC(m conversation.Message) rpc.Message {
	return rpc.Message{
		ID:          m.ID,
		TempID:      m.TempID,
		ClientID:    m.ClientID,
		Sender:      m.Sender,
		Receiver:    m.Receiver,
		Body:        m.Body,
		CreatedAtMs: millis(m.CreatedAt),
		Status:      string(m.Status),
	}
}

// messagesToRPC converts a log and attaches bubble positions and the seen
// indicator, which is shown on at most one message.
func messagesToRPC(msgs []conversation.Message, me string) []rpc.Message {
	pos := conversation.Group(msgs)
	seen := conversation.SeenIndicatorIndex(msgs, me)
	out := make([]rpc.Message, len(msgs))
	for i, m := range msgs {
		out[i] = messageToRPC(m)
		out[i].Position = string(pos[i])
		out[i].ShowSeen = i == seen
	}
	return out
}

func profileToRPC(p *platform.Profile) *rpc.Profile {
	if p == nil {
		return nil
	}
	return &rpc.Profile{
		Username:   p.Username,
		FullName:   p.FullName,
		ProfilePic: p.ProfilePic,
		LastSeen:   p.LastSeen,
		Online:     p.IsOnline,
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
