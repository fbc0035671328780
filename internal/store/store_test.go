package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed() || result.Before != result.Version {
		t.Errorf("second Migrate() changed the schema: %+v", result)
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + outbox)", result.Version)
	}
}

func TestFirstMigrateReportsChange(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Changed() || result.Before != 0 || result.Version != 2 {
		t.Fatalf("first Migrate() = %+v, want 0 -> 2", result)
	}
	if err := db.CheckSchema(); err != nil {
		t.Fatalf("CheckSchema after migrate: %v", err)
	}
}

func TestOpenReadOnly(t *testing.T) {
	dir := t.TempDir()
	if _, err := OpenReadOnly(filepath.Join(dir, "missing.db")); !errors.Is(err, ErrNoCache) {
		t.Fatalf("OpenReadOnly(missing) error = %v, want ErrNoCache", err)
	}

	path := filepath.Join(dir, "cache.db")
	rw, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := rw.CheckSchema(); err == nil {
		t.Fatal("CheckSchema on an unmigrated cache should fail")
	}
	if _, err := rw.Migrate(); err != nil {
		t.Fatal(err)
	}
	if err := rw.ReplaceConversations([]Conversation{{Peer: "ana", LastActivity: 1000}}); err != nil {
		t.Fatal(err)
	}
	_ = rw.Close()

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ro.Close() }()
	if !ro.ReadOnly() {
		t.Fatal("ReadOnly() = false")
	}
	if err := ro.CheckSchema(); err != nil {
		t.Fatalf("CheckSchema: %v", err)
	}
	if _, err := ro.Migrate(); err == nil {
		t.Fatal("Migrate on a read-only cache should fail")
	}
	if err := ro.ReplaceConversations(nil); err == nil {
		t.Fatal("writes on a read-only cache should fail")
	}
}

func TestReplaceConversations(t *testing.T) {
	db := testDB(t)

	if err := db.ReplaceConversations([]Conversation{
		{Peer: "ana", FullName: "Ana Lima", LastActivity: 3000},
		{Peer: "bob", UnreadCount: 2, LastActivity: 1000},
		{Peer: "cy", LastActivity: 0},
	}); err != nil {
		t.Fatal(err)
	}
	list, err := db.ListConversations("", 0)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, c := range list {
		got = append(got, c.Peer)
	}
	if len(got) != 3 || got[0] != "bob" || got[1] != "ana" || got[2] != "cy" {
		t.Errorf("order = %v, want [bob ana cy]", got)
	}

	// a new snapshot drops rows it does not mention
	if err := db.ReplaceConversations([]Conversation{{Peer: "cy"}}); err != nil {
		t.Fatal(err)
	}
	list, err = db.ListConversations("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("got %d rows after replace, want 1", len(list))
	}
}

func TestConversationUpsertAndFilter(t *testing.T) {
	db := testDB(t)

	c := &Conversation{Peer: "ana_l", FullName: "Ana", PreviewText: "hi"}
	if err := db.UpsertConversation(c); err != nil {
		t.Fatal(err)
	}
	c.FullName = "Ana Lima"
	c.UnreadCount = 1
	if err := db.UpsertConversation(c); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertConversation(&Conversation{Peer: "bob", FullName: "Robert"}); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetConversation("ana_l")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.FullName != "Ana Lima" || got.UnreadCount != 1 {
		t.Errorf("got %+v", got)
	}
	missing, err := db.GetConversation("nobody")
	if err != nil || missing != nil {
		t.Errorf("missing = %+v, %v", missing, err)
	}

	tests := []struct {
		q    string
		want int
	}{
		{"LIMA", 1},
		{"rob", 1},
		{"_", 1}, // literal underscore, not a wildcard
		{"zzz", 0},
	}
	for _, tt := range tests {
		list, err := db.ListConversations(tt.q, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != tt.want {
			t.Errorf("ListConversations(%q) = %d rows, want %d", tt.q, len(list), tt.want)
		}
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	db := testDB(t)

	msg := &Message{Peer: "bob", ServerID: 1, Sender: "bob", Body: "hello", Status: "sent", CreatedAt: 1000}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	msg.Body = "hello edited"
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("bob", 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent upsert failed)", len(msgs))
	}
	if msgs[0].Body != "hello edited" || msgs[0].Key != "s:1" {
		t.Errorf("got %+v", msgs[0])
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{Peer: "bob", ServerID: 5, Sender: "me", Body: "x", Status: "seen", CreatedAt: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{Peer: "bob", ServerID: 5, Sender: "me", Body: "x", Status: "sent", CreatedAt: 1}); err != nil {
		t.Fatal(err)
	}
	msgs, err := db.ListMessages("bob", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if msgs[0].Status != "seen" {
		t.Errorf("status = %s, want seen", msgs[0].Status)
	}
}

func TestConfirmReplacesPendingRow(t *testing.T) {
	db := testDB(t)

	pending := &Message{Peer: "bob", TempID: 99, ClientID: "c-1", Sender: "me", Body: "hey", Status: "sending", CreatedAt: 1000}
	if err := db.UpsertMessage(pending); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{Peer: "bob", ServerID: 10, ClientID: "c-1", Sender: "me", Body: "hey", Status: "sent", CreatedAt: 1001}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("bob", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d rows, want 1", len(msgs))
	}
	if msgs[0].ServerID != 10 || msgs[0].Status != "sent" || msgs[0].ClientID != "c-1" {
		t.Errorf("got %+v", msgs[0])
	}
}

func TestListMessagesOldestFirst(t *testing.T) {
	db := testDB(t)
	for i := int64(1); i <= 5; i++ {
		if err := db.UpsertMessage(&Message{Peer: "bob", ServerID: i, Body: "m", Status: "sent", CreatedAt: i * 100}); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := db.ListMessages("bob", 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 || msgs[0].ServerID != 3 || msgs[2].ServerID != 5 {
		t.Errorf("got %+v", msgs)
	}

	older, err := db.ListMessages("bob", 300, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 2 {
		t.Errorf("got %d older messages, want 2", len(older))
	}
}

func TestMarkMessageSeen(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertMessage(&Message{Peer: "bob", ServerID: 3, Body: "m", Status: "sent", CreatedAt: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkMessageSeen("bob", 3); err != nil {
		t.Fatal(err)
	}
	msgs, _ := db.ListMessages("bob", 0, 1)
	if msgs[0].Status != "seen" {
		t.Errorf("status = %s", msgs[0].Status)
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessages([]*Message{
		{Peer: "bob", ServerID: 1, Body: "hello world", Status: "sent", CreatedAt: 1000},
		{Peer: "bob", ServerID: 2, Body: "goodbye world", Status: "sent", CreatedAt: 2000},
		{Peer: "ana", ServerID: 3, Body: "Hello again", Status: "sent", CreatedAt: 3000},
	}); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchMessages("hello", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Message.ServerID != 3 || results[0].Snippet != "<<Hello>> again" {
		t.Errorf("first = %+v", results[0])
	}

	results, err = db.SearchMessages("world", "bob", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results in bob, want 2", len(results))
	}
}

func TestSnippet(t *testing.T) {
	body := "the quick brown fox jumps over the lazy dog"
	if got := snippet(body, "fox", 4); got != "...own <<fox>> jum..." {
		t.Errorf("snippet = %q", got)
	}
	if got := snippet(body, "cat", 4); got != body {
		t.Errorf("no match should return body, got %q", got)
	}
}

func TestOutbox(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox(&OutboxEntry{ClientID: "c1", Peer: "bob", Body: "first", CreatedAt: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox(&OutboxEntry{ClientID: "c2", Peer: "bob", Body: "second", CreatedAt: 2}); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox(&OutboxEntry{ClientID: "c1", Peer: "bob", Body: "dup", CreatedAt: 3}); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox(&OutboxEntry{ClientID: "c3", Peer: "ana", Body: "other", CreatedAt: 4}); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].ClientID != "c1" || pending[0].Body != "first" || pending[1].ClientID != "c2" {
		t.Fatalf("pending = %+v", pending)
	}

	if err := db.MarkOutboxSending("c1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent("c2", 42); err != nil {
		t.Fatal(err)
	}
	pending, err = db.PendingOutbox("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0", len(pending))
	}

	all, err := db.PendingOutbox("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Peer != "ana" {
		t.Errorf("all pending = %+v", all)
	}

	n, err := db.PruneOutbox(time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
}

func TestSyncState(t *testing.T) {
	db := testDB(t)

	v, err := db.GetState("last_snapshot_at")
	if err != nil || v != "" {
		t.Fatalf("unset state = %q, %v", v, err)
	}
	if err := db.SetState("last_snapshot_at", "1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetState("last_snapshot_at", "2"); err != nil {
		t.Fatal(err)
	}
	v, err = db.GetState("last_snapshot_at")
	if err != nil || v != "2" {
		t.Errorf("state = %q, %v", v, err)
	}
}
