package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/studyhall/chatsync/internal/apperr"
)

func TestDecodeInboxData(t *testing.T) {
	raw := []byte(`{"type":"inbox_data","inbox":[
		{"user":{"username":"bob","full_name":"Bob Stone","profile_pic":"/m/bob.png","is_online":true},
		 "latest_message":{"content":"hi","sender":"bob","is_seen":false},
		 "unread_count":2,"timestamp":"2024-05-01T10:00:00Z"},
		{"user":"ana","latest_message":"see you","unread_count":0}
	]}`)

	f, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	data, ok := f.(*InboxData)
	if !ok {
		t.Fatalf("frame type = %T, want *InboxData", f)
	}
	if len(data.Inbox) != 2 {
		t.Fatalf("got %d entries, want 2", len(data.Inbox))
	}

	bob := data.Inbox[0]
	if bob.Peer() != "bob" || bob.DisplayName() != "Bob Stone" || bob.Picture() != "/m/bob.png" {
		t.Errorf("bob = %+v", bob)
	}
	if online, ok := bob.IsOnline(); !ok || !online {
		t.Errorf("IsOnline() = %v, %v; want true, true", online, ok)
	}
	if bob.LatestMessage == nil || bob.LatestMessage.Text != "hi" || bob.LatestMessage.Sender != "bob" {
		t.Errorf("latest message = %+v", bob.LatestMessage)
	}

	ana := data.Inbox[1]
	if ana.Peer() != "ana" {
		t.Errorf("peer = %q, want ana", ana.Peer())
	}
	if ana.LatestMessage == nil || ana.LatestMessage.Text != "see you" {
		t.Errorf("latest message = %+v", ana.LatestMessage)
	}
	if _, ok := ana.IsOnline(); ok {
		t.Error("ana carried no presence flag")
	}
}

func TestDecodeInboxUpdate(t *testing.T) {
	raw := []byte(`{"type":"inbox_update","user":"bob","latest_message":{"message":"new","sender":{"username":"bob"}},"unread_count":3,"timestamp":"2024-05-01 10:00:00"}`)
	f, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	up := f.(*InboxUpdate)
	if up.Peer() != "bob" || up.UnreadCount != 3 {
		t.Errorf("update = %+v", up)
	}
	if up.LatestMessage.Text != "new" || up.LatestMessage.Sender != "bob" {
		t.Errorf("latest = %+v", up.LatestMessage)
	}
}

func TestDecodeChatAndSeen(t *testing.T) {
	f, err := Decode([]byte(`{"type":"chat","id":42,"sender":"bob","receiver":"me","message":"yo","created_at":"2024-05-01T10:00:00Z","client_id":"c-1"}`))
	if err != nil {
		t.Fatal(err)
	}
	chat := f.(*Chat)
	if chat.ID != 42 || chat.Body() != "yo" || chat.ClientID != "c-1" {
		t.Errorf("chat = %+v", chat)
	}

	f, err = Decode([]byte(`{"type":"seen","message_id":42}`))
	if err != nil {
		t.Fatal(err)
	}
	if seen := f.(*Seen); seen.MessageID != 42 {
		t.Errorf("seen = %+v", seen)
	}
}

func TestDecodeTotalUnseen(t *testing.T) {
	f, err := Decode([]byte(`{"type":"total_unseen_count","total_unseen_count":0}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := f.(*TotalUnseen).Count; got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"type":`},
		{"no type", `{"inbox":[]}`},
		{"unknown type", `{"type":"typing"}`},
		{"update without user", `{"type":"inbox_update","unread_count":1}`},
		{"chat without sender", `{"type":"chat","id":1,"content":"x"}`},
		{"seen without id", `{"type":"seen"}`},
		{"unseen missing count", `{"type":"total_unseen_count"}`},
		{"unseen negative", `{"type":"total_unseen_count","total_unseen_count":-1}`},
		{"inbox wrong shape", `{"type":"inbox_data","inbox":{"a":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if !errors.Is(err, apperr.ErrMalformedFrame) {
				t.Errorf("Decode(%s) error = %v, want MalformedFrame", tt.raw, err)
			}
		})
	}
}

func TestEncodeOutgoing(t *testing.T) {
	b, err := Encode(NewOutgoingChat("me", "bob", "hello", "c-9"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"chat","message":"hello","sender":"me","receiver":"bob","client_id":"c-9"}`
	if string(b) != want {
		t.Errorf("Encode = %s, want %s", b, want)
	}

	b, err = Encode(NewSeen(7, "me"))
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"type":"seen","message_id":7,"seen_by":"me"}`; string(b) != want {
		t.Errorf("Encode = %s, want %s", b, want)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-05-01T10:00:00Z", "2024-05-01T10:00:00", "2024-05-01 10:00:00"} {
		if got := ParseTimestamp(s); !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", s, got, want)
		}
	}
	for _, s := range []string{"", "yesterday", "1714557600"} {
		if got := ParseTimestamp(s); !got.IsZero() {
			t.Errorf("ParseTimestamp(%q) = %v, want zero", s, got)
		}
	}
}
