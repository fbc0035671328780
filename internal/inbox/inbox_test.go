package inbox

import (
	"testing"
	"time"

	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/protocol"
)

func entry(peer string, unread int, ts string) protocol.InboxEntry {
	return protocol.InboxEntry{Username: peer, UnreadCount: unread, Timestamp: ts}
}

func peers(list []Summary) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Peer
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSnapshotOrdering(t *testing.T) {
	s := NewSynchronizer(nil, nil, nil)
	s.ApplySnapshot([]protocol.InboxEntry{
		entry("ana", 0, "2024-05-01T09:00:00Z"),
		entry("bob", 2, "2024-05-01T08:00:00Z"),
		entry("cy", 0, "2024-05-01T11:00:00Z"),
		entry("dee", 1, "2024-05-01T10:00:00Z"),
	})
	want := []string{"dee", "bob", "cy", "ana"}
	if got := peers(s.List()); !equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestMissingTimestampSortsLastInGroup(t *testing.T) {
	s := NewSynchronizer(nil, nil, nil)
	s.ApplySnapshot([]protocol.InboxEntry{
		entry("nots", 0, ""),
		entry("old", 0, "2020-01-01T00:00:00Z"),
		entry("junk", 0, "not a time"),
		entry("unread", 3, ""),
	})
	want := []string{"unread", "old", "junk", "nots"}
	if got := peers(s.List()); !equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestSnapshotIsIdempotent(t *testing.T) {
	raw := []protocol.InboxEntry{
		entry("ana", 1, "2024-05-01T09:00:00Z"),
		entry("bob", 0, "2024-05-01T08:00:00Z"),
	}
	s := NewSynchronizer(nil, nil, nil)
	s.ApplySnapshot(raw)
	first := s.List()
	s.ApplySnapshot(raw)
	second := s.List()
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("row %d: %+v != %+v", i, first[i], second[i])
		}
	}
}

func TestSnapshotDedupsPeers(t *testing.T) {
	s := NewSynchronizer(nil, nil, nil)
	s.ApplySnapshot([]protocol.InboxEntry{entry("ana", 1, ""), entry("ana", 5, ""), entry("", 1, "")})
	list := s.List()
	if len(list) != 1 || list[0].UnreadCount != 1 {
		t.Errorf("list = %+v", list)
	}
}

func TestUpdateKeepsOneRowPerPeer(t *testing.T) {
	s := NewSynchronizer(nil, nil, nil)
	s.ApplySnapshot([]protocol.InboxEntry{
		{User: protocol.PeerRef{Username: "ana", FullName: "Ana Lima", ProfilePic: "/a.png"}, Timestamp: "2024-05-01T09:00:00Z"},
		entry("bob", 0, "2024-05-01T10:00:00Z"),
	})

	s.ApplyUpdate("ana", protocol.InboxEntry{
		Username:      "ana",
		UnreadCount:   2,
		Timestamp:     "2024-05-01T08:00:00Z",
		LatestMessage: &protocol.LatestMessage{Text: "hey", Sender: "ana"},
	})

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Peer != "ana" {
		t.Errorf("unread ana should lead, got %v", peers(list))
	}
	if list[0].FullName != "Ana Lima" || list[0].ProfilePic != "/a.png" {
		t.Errorf("display fields not carried: %+v", list[0])
	}
	if list[0].Preview.Text != "hey" {
		t.Errorf("preview = %+v", list[0].Preview)
	}

	s.ApplyUpdate("ana", entry("ana", 0, "2024-05-01T07:00:00Z"))
	if got := peers(s.List()); !equal(got, []string{"bob", "ana"}) {
		t.Errorf("order after read = %v", got)
	}
}

func TestUpdateForUnknownPeerIsAdded(t *testing.T) {
	s := NewSynchronizer(nil, nil, nil)
	s.ApplyUpdate("new", entry("new", 1, ""))
	if _, ok := s.Get("new"); !ok {
		t.Error("update for a new peer should add a row")
	}
}

func TestFilter(t *testing.T) {
	s := NewSynchronizer(nil, nil, nil)
	s.ApplySnapshot([]protocol.InboxEntry{
		{Username: "ana_l", FullName: "Ana Lima"},
		{Username: "bob", FullName: "Robert Stone"},
	})
	tests := []struct {
		q    string
		want int
	}{
		{"", 2},
		{"LIMA", 1},
		{"bo", 1},
		{"stone", 1},
		{"zzz", 0},
	}
	for _, tt := range tests {
		if got := len(s.Filter(tt.q)); got != tt.want {
			t.Errorf("Filter(%q) = %d rows, want %d", tt.q, got, tt.want)
		}
	}
	if len(s.List()) != 2 {
		t.Error("Filter must not mutate the list")
	}
}

func TestHandleFrame(t *testing.T) {
	b := bus.New()
	events, unsub := b.Subscribe("inbox.", 8)
	defer unsub()

	s := NewSynchronizer(b, nil, nil)
	s.HandleFrame([]byte(`{"type":"inbox_data","inbox":[{"user":"ana","unread_count":1}]}`))
	s.HandleFrame([]byte(`{"type":"inbox_update","user":"bob","unread_count":0}`))
	s.HandleFrame([]byte(`{"type":"inbox_update"`))
	s.HandleFrame([]byte(`{"type":"bogus"}`))

	if got := peers(s.List()); !equal(got, []string{"ana", "bob"}) {
		t.Errorf("list = %v", got)
	}

	var n int
	for n < 2 {
		select {
		case evt := <-events:
			if _, ok := evt.Payload.(Changed); !ok {
				t.Errorf("payload = %T", evt.Payload)
			}
			n++
		case <-time.After(time.Second):
			t.Fatalf("got %d events, want 2", n)
		}
	}
	select {
	case evt := <-events:
		t.Errorf("malformed frames must not publish: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
