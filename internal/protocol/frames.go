// Package protocol holds the JSON frames exchanged over the platform's chat,
// inbox and notification channels, and the raw REST records that feed them.
package protocol

import (
	"bytes"
	"encoding/json"
	"time"
)

// Frame types.
const (
	TypeInboxData        = "inbox_data"
	TypeInboxUpdate      = "inbox_update"
	TypeChat             = "chat"
	TypeSeen             = "seen"
	TypeTotalUnseenCount = "total_unseen_count"
)

// PeerRef identifies the other side of a conversation. The backend sends it
// either as a bare username or as a user object.
type PeerRef struct {
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	ProfilePic string `json:"profile_pic"`
	Online     *bool  `json:"is_online"`
}

func (p *PeerRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &p.Username)
	}
	type plain PeerRef
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = PeerRef(v)
	return nil
}

// LatestMessage is the preview attached to an inbox entry. It arrives either
// as the message text or as a message object.
type LatestMessage struct {
	Text   string
	Sender string
	Seen   bool
}

func (m *LatestMessage) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &m.Text)
	}
	var v struct {
		Content string          `json:"content"`
		Message string          `json:"message"`
		Sender  json.RawMessage `json:"sender"`
		IsSeen  bool            `json:"is_seen"`
		Seen    bool            `json:"seen"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	m.Text = firstNonEmpty(v.Content, v.Message)
	m.Seen = v.IsSeen || v.Seen
	if len(v.Sender) > 0 {
		var ref PeerRef
		if err := ref.UnmarshalJSON(v.Sender); err != nil {
			return err
		}
		m.Sender = ref.Username
	}
	return nil
}

// InboxEntry is one raw conversation summary, as found in an inbox_data
// snapshot or as the body of an inbox_update frame.
type InboxEntry struct {
	User          PeerRef        `json:"user"`
	Username      string         `json:"username"`
	FullName      string         `json:"full_name"`
	ProfilePic    string         `json:"profile_pic"`
	Online        *bool          `json:"is_online"`
	LatestMessage *LatestMessage `json:"latest_message"`
	UnreadCount   int            `json:"unread_count"`
	Timestamp     string         `json:"timestamp"`
}

// Peer returns the username keying this entry.
func (e InboxEntry) Peer() string {
	return firstNonEmpty(e.User.Username, e.Username)
}

// DisplayName returns the full name from whichever shape carried it.
func (e InboxEntry) DisplayName() string {
	return firstNonEmpty(e.User.FullName, e.FullName)
}

// Picture returns the profile picture URL from whichever shape carried it.
func (e InboxEntry) Picture() string {
	return firstNonEmpty(e.User.ProfilePic, e.ProfilePic)
}

// IsOnline returns the presence flag and whether the entry carried one.
func (e InboxEntry) IsOnline() (online, ok bool) {
	if e.User.Online != nil {
		return *e.User.Online, true
	}
	if e.Online != nil {
		return *e.Online, true
	}
	return false, false
}

// InboxData is a full inbox snapshot.
type InboxData struct {
	Type  string       `json:"type"`
	Inbox []InboxEntry `json:"inbox"`
}

// InboxUpdate is an incremental change to one conversation summary.
type InboxUpdate struct {
	Type string `json:"type"`
	InboxEntry
}

// Chat is a live message pushed on a conversation channel.
type Chat struct {
	Type      string `json:"type"`
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Content   string `json:"content"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
	ClientID  string `json:"client_id,omitempty"`
}

// Body returns the message text; older servers use "message" instead of
// "content".
func (c Chat) Body() string {
	return firstNonEmpty(c.Content, c.Message)
}

// Seen is a read receipt for one message.
type Seen struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	SeenBy    string `json:"seen_by,omitempty"`
}

// TotalUnseen carries the global unseen-message count.
type TotalUnseen struct {
	Type  string `json:"type"`
	Count int    `json:"total_unseen_count"`
	// Sender attributes the increase to a peer when the backend knows it.
	Sender string `json:"sender,omitempty"`
}

// OutgoingChat is sent by the client to post a message.
type OutgoingChat struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	ClientID string `json:"client_id,omitempty"`
}

// NewOutgoingChat builds a chat frame from sender to receiver.
func NewOutgoingChat(sender, receiver, body, clientID string) OutgoingChat {
	return OutgoingChat{Type: TypeChat, Message: body, Sender: sender, Receiver: receiver, ClientID: clientID}
}

// NewSeen builds the receipt sent when the local user has seen a message.
func NewSeen(messageID int64, seenBy string) Seen {
	return Seen{Type: TypeSeen, MessageID: messageID, SeenBy: seenBy}
}

// HistoryRecord is one raw message from the conversation history endpoint.
type HistoryRecord struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Content   string `json:"content"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
	IsSeen    bool   `json:"is_seen"`
}

// Body returns the record text.
func (r HistoryRecord) Body() string {
	return firstNonEmpty(r.Content, r.Message)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses the backend's timestamp formats. Missing or
// unparseable values yield the zero time, which orders as earliest.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
