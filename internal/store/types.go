package store

// Conversation is a mirrored inbox row.
type Conversation struct {
	Peer          string
	FullName      string
	ProfilePic    string
	Online        bool
	PreviewText   string
	PreviewSender string
	PreviewSeen   bool
	UnreadCount   int
	LastActivity  int64 // unix ms, 0 when unknown
}

// Message is a mirrored conversation message. Key is "s:<server id>" once
// confirmed, "c:<client id>" while pending.
type Message struct {
	ID        int64
	Peer      string
	Key       string
	ServerID  int64
	TempID    int64
	ClientID  string
	Sender    string
	Receiver  string
	Body      string
	Status    string // sending, sent, seen
	CreatedAt int64
}

// OutboxEntry is an outgoing message awaiting transmission or confirmation.
type OutboxEntry struct {
	ID        int64
	ClientID  string
	Peer      string
	Sender    string
	Body      string
	TempID    int64
	Status    string // queued, sending, sent
	ServerID  int64
	CreatedAt int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
