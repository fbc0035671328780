// Package inbox keeps the sorted list of conversation summaries pushed on the
// inbox channel.
package inbox

import (
	"sort"
	"strings"
	"time"

	"github.com/studyhall/chatsync/internal/protocol"
)

// Preview is the latest message shown under a conversation.
type Preview struct {
	Text   string
	Sender string
	Seen   bool
}

// Summary is one inbox row, keyed by Peer.
type Summary struct {
	Peer         string
	FullName     string
	ProfilePic   string
	Online       bool
	Preview      Preview
	UnreadCount  int
	LastActivity time.Time
}

// Unread reports whether the row belongs in the unread group.
func (s Summary) Unread() bool { return s.UnreadCount > 0 }

// Normalize converts a raw entry. Missing or unparseable timestamps become
// the zero time.
func Normalize(e protocol.InboxEntry) Summary {
	s := Summary{
		Peer:         e.Peer(),
		FullName:     e.DisplayName(),
		ProfilePic:   e.Picture(),
		UnreadCount:  max(e.UnreadCount, 0),
		LastActivity: protocol.ParseTimestamp(e.Timestamp),
	}
	s.Online, _ = e.IsOnline()
	if e.LatestMessage != nil {
		s.Preview = Preview{Text: e.LatestMessage.Text, Sender: e.LatestMessage.Sender, Seen: e.LatestMessage.Seen}
	}
	return s
}

// merge builds the entry for an incremental update. Display fields the patch
// omits are carried over from prev.
func merge(prev *Summary, e protocol.InboxEntry) Summary {
	next := Normalize(e)
	if prev == nil {
		return next
	}
	if next.FullName == "" {
		next.FullName = prev.FullName
	}
	if next.ProfilePic == "" {
		next.ProfilePic = prev.ProfilePic
	}
	if _, ok := e.IsOnline(); !ok {
		next.Online = prev.Online
	}
	if e.LatestMessage == nil {
		next.Preview = prev.Preview
	}
	return next
}

// Sort orders summaries unread first, then by LastActivity descending, then
// by peer. Zero timestamps sort last within their group.
func Sort(list []Summary) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Unread() != b.Unread() {
			return a.Unread()
		}
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		return a.Peer < b.Peer
	})
}

// FilterSummaries returns the rows whose peer or full name contains query,
// case-insensitively. An empty query returns a copy of all rows.
func FilterSummaries(list []Summary, query string) []Summary {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Summary, 0, len(list))
	for _, s := range list {
		if q == "" ||
			strings.Contains(strings.ToLower(s.Peer), q) ||
			strings.Contains(strings.ToLower(s.FullName), q) {
			out = append(out, s)
		}
	}
	return out
}
