package rpc

// Empty is the request of methods without arguments.
type Empty struct{}

// Ack reports the outcome of a command.
type Ack struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// StatusReport describes the daemon and its channels.
type StatusReport struct {
	Account        string            `json:"account"`
	Me             string            `json:"me,omitempty"`
	Channels       map[string]string `json:"channels"`
	Badge          int               `json:"badge"`
	ActivePeer     string            `json:"active_peer,omitempty"`
	LastSnapshotMs int64             `json:"last_snapshot_ms,omitempty"`
	DroppedEvents  int               `json:"dropped_events,omitempty"`
	PID            int               `json:"pid"`
}

// ListRequest asks for the inbox. Offline reads the local mirror instead of
// the live list.
type ListRequest struct {
	Query   string `json:"query,omitempty"`
	Offline bool   `json:"offline,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Summary is one inbox row.
type Summary struct {
	Peer           string `json:"peer"`
	FullName       string `json:"full_name,omitempty"`
	ProfilePic     string `json:"profile_pic,omitempty"`
	Online         bool   `json:"online,omitempty"`
	Preview        string `json:"preview,omitempty"`
	PreviewSender  string `json:"preview_sender,omitempty"`
	PreviewSeen    bool   `json:"preview_seen,omitempty"`
	UnreadCount    int    `json:"unread_count"`
	LastActivityMs int64  `json:"last_activity_ms,omitempty"`
}

// InboxList is the response of Inbox.List.
type InboxList struct {
	Entries []Summary `json:"entries"`
}

// BadgeReport is the response of Inbox.Badge.
type BadgeReport struct {
	Count      int    `json:"count"`
	ActivePeer string `json:"active_peer,omitempty"`
}

// OpenRequest opens the conversation with Peer.
type OpenRequest struct {
	Peer string `json:"peer"`
}

// MessagesRequest reads a conversation. With Offline or a Peer other than
// the open one, messages come from the local mirror.
type MessagesRequest struct {
	Peer     string `json:"peer,omitempty"`
	Offline  bool   `json:"offline,omitempty"`
	BeforeMs int64  `json:"before_ms,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Message is one conversation entry with its presentation hints.
type Message struct {
	ID          int64  `json:"id,omitempty"`
	TempID      int64  `json:"temp_id,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Sender      string `json:"sender"`
	Receiver    string `json:"receiver"`
	Body        string `json:"body"`
	CreatedAtMs int64  `json:"created_at_ms,omitempty"`
	Status      string `json:"status"`
	Position    string `json:"position,omitempty"`
	ShowSeen    bool   `json:"show_seen,omitempty"`
}

// Profile is the peer header.
type Profile struct {
	Username   string `json:"username"`
	FullName   string `json:"full_name,omitempty"`
	ProfilePic string `json:"profile_pic,omitempty"`
	LastSeen   string `json:"last_seen,omitempty"`
	Online     bool   `json:"online,omitempty"`
}

// Conversation is the response of Open and Messages.
type Conversation struct {
	Peer     string    `json:"peer"`
	Me       string    `json:"me,omitempty"`
	Live     bool      `json:"live"`
	Profile  *Profile  `json:"profile,omitempty"`
	Messages []Message `json:"messages"`
}

// SendRequest posts Body to the open conversation. Peer, when set, opens
// that conversation first.
type SendRequest struct {
	Peer string `json:"peer,omitempty"`
	Body string `json:"body"`
}

// MarkSeenRequest marks one peer message as seen.
type MarkSeenRequest struct {
	ID int64 `json:"id"`
}

// VisibleRequest reports how much of a rendered message is on screen.
type VisibleRequest struct {
	ID    int64   `json:"id"`
	Ratio float64 `json:"ratio"`
}

// SearchRequest searches the mirrored messages.
type SearchRequest struct {
	Query string `json:"query"`
	Peer  string `json:"peer,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// SearchHit is one search result.
type SearchHit struct {
	Message Message `json:"message"`
	Peer    string  `json:"peer"`
	Snippet string  `json:"snippet"`
}

// SearchList is the response of Conversation.Search.
type SearchList struct {
	Results []SearchHit `json:"results"`
}

// WatchRequest subscribes to bus events whose kind starts with Namespace.
// An empty namespace receives everything.
type WatchRequest struct {
	Namespace string `json:"namespace,omitempty"`
}

// Event is one streamed bus event.
type Event struct {
	ID      string         `json:"id"`
	Kind    string         `json:"kind"`
	AtMs    int64          `json:"at_ms"`
	Payload map[string]any `json:"payload,omitempty"`
}
