package model

import (
	"context"
	"errors"
	"sync"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/rpc"
)

type fakeDaemon struct {
	mu       sync.Mutex
	status   *rpc.StatusReport
	entries  []rpc.Summary
	offline  []bool
	openErr  error
	conv     map[string]*rpc.Conversation
	closed   int
	sent     []string
	visible  map[int64][]float64
	search   []rpc.SearchHit
	lastPeer string
}

func newFakeDaemon() *fakeDaemon {
	return &fakeDaemon{
		status:  &rpc.StatusReport{Account: "main", Me: "sam", Channels: map[string]string{"inbox": "OPEN"}},
		conv:    make(map[string]*rpc.Conversation),
		visible: make(map[int64][]float64),
	}
}

func (f *fakeDaemon) Status(context.Context) (*rpc.StatusReport, error) { return f.status, nil }
func (f *fakeDaemon) Foreground(context.Context) (*rpc.Ack, error)      { return &rpc.Ack{OK: true}, nil }
func (f *fakeDaemon) Background(context.Context) (*rpc.Ack, error)      { return &rpc.Ack{OK: true}, nil }
func (f *fakeDaemon) Refresh(context.Context) (*rpc.Ack, error)         { return &rpc.Ack{OK: true}, nil }

func (f *fakeDaemon) Inbox(_ context.Context, req rpc.ListRequest) (*rpc.InboxList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, req.Offline)
	return &rpc.InboxList{Entries: f.entries}, nil
}

func (f *fakeDaemon) Open(_ context.Context, peer string) (*rpc.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPeer = peer
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.conversationLocked(peer), nil
}

func (f *fakeDaemon) conversationLocked(peer string) *rpc.Conversation {
	c, ok := f.conv[peer]
	if !ok {
		c = &rpc.Conversation{Peer: peer, Me: "sam"}
		f.conv[peer] = c
	}
	return c
}

func (f *fakeDaemon) CloseConversation(context.Context) (*rpc.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return &rpc.Ack{OK: true}, nil
}

func (f *fakeDaemon) Messages(_ context.Context, req rpc.MessagesRequest) (*rpc.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conversationLocked(req.Peer), nil
}

func (f *fakeDaemon) Send(_ context.Context, peer, body string) (*rpc.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, body)
	c := f.conversationLocked(peer)
	m := rpc.Message{ClientID: "c1", Sender: "sam", Receiver: peer, Body: body, Status: "sending"}
	c.Messages = append(c.Messages, m)
	return &m, nil
}

func (f *fakeDaemon) Visible(_ context.Context, id int64, ratio float64) (*rpc.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible[id] = append(f.visible[id], ratio)
	return &rpc.Ack{OK: true}, nil
}

func (f *fakeDaemon) Search(context.Context, rpc.SearchRequest) (*rpc.SearchList, error) {
	return &rpc.SearchList{Results: f.search}, nil
}

func TestLoadInboxHonorsOfflineToggle(t *testing.T) {
	d := newFakeDaemon()
	d.entries = []rpc.Summary{{Peer: "ana", UnreadCount: 1}}
	vm := NewViewModel(d)
	ctx := context.Background()

	if err := vm.LoadStatus(ctx); err != nil {
		t.Fatal(err)
	}
	if err := vm.LoadInbox(ctx); err != nil {
		t.Fatal(err)
	}
	if vm.InboxOffline() {
		t.Fatal("inbox should be live while the channel is open")
	}
	if !vm.ToggleOffline() {
		t.Fatal("toggle should enable offline")
	}
	if err := vm.LoadInbox(ctx); err != nil {
		t.Fatal(err)
	}
	if len(d.offline) != 2 || d.offline[0] || !d.offline[1] {
		t.Fatalf("offline flags = %v, want [false true]", d.offline)
	}
	if !vm.InboxOffline() {
		t.Fatal("InboxOffline should report the toggle")
	}
	if s := vm.Summary("ana"); s == nil || s.UnreadCount != 1 {
		t.Fatalf("Summary(ana) = %+v", s)
	}
	if vm.Summary("bob") != nil {
		t.Fatal("unknown peer should have no summary")
	}
}

func TestInboxOfflineWhenChannelDown(t *testing.T) {
	d := newFakeDaemon()
	d.status.Channels["inbox"] = "CONNECTING"
	vm := NewViewModel(d)
	if err := vm.LoadStatus(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !vm.InboxOffline() {
		t.Fatal("inbox should be reported offline while not OPEN")
	}
}

func TestOpenFallsBackToCachedMessages(t *testing.T) {
	d := newFakeDaemon()
	d.openErr = status.Error(codes.Unavailable, "connect: no network")
	d.conv["ana"] = &rpc.Conversation{Peer: "ana", Messages: []rpc.Message{{ID: 1, Sender: "ana", Body: "hola"}}}
	vm := NewViewModel(d)

	err := vm.Open(context.Background(), "ana")
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("Open error = %v, want Unavailable", err)
	}
	if vm.ActivePeer() != "ana" {
		t.Fatalf("ActivePeer = %q, want ana", vm.ActivePeer())
	}
	if conv := vm.Conversation(); conv == nil || len(conv.Messages) != 1 {
		t.Fatalf("Conversation = %+v, want cached history", conv)
	}
}

func TestSendRequiresConversation(t *testing.T) {
	vm := NewViewModel(newFakeDaemon())
	if _, err := vm.Send(context.Background(), "hi"); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("Send error = %v, want ErrNoConversation", err)
	}
}

func TestSendQueuedReloadsConversation(t *testing.T) {
	d := newFakeDaemon()
	vm := NewViewModel(d)
	ctx := context.Background()
	if err := vm.Open(ctx, "ana"); err != nil {
		t.Fatal(err)
	}

	msg, err := vm.Send(ctx, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != "sending" {
		t.Fatalf("status = %q, want sending", msg.Status)
	}
	if conv := vm.Conversation(); len(conv.Messages) != 1 || conv.Messages[0].Body != "hi" {
		t.Fatalf("conversation not reloaded: %+v", conv)
	}
	if vm.Flash.Get() == "" {
		t.Fatal("expected a queued notice")
	}
}

func TestCloseOnlyWhenOpen(t *testing.T) {
	d := newFakeDaemon()
	vm := NewViewModel(d)
	ctx := context.Background()

	if err := vm.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if d.closed != 0 {
		t.Fatal("Close without a conversation should not reach the daemon")
	}
	if err := vm.Open(ctx, "ana"); err != nil {
		t.Fatal(err)
	}
	if err := vm.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if d.closed != 1 || vm.ActivePeer() != "" || vm.Conversation() != nil {
		t.Fatalf("closed=%d active=%q", d.closed, vm.ActivePeer())
	}
}

func TestReportVisibleSendsChangesOnly(t *testing.T) {
	d := newFakeDaemon()
	vm := NewViewModel(d)
	ctx := context.Background()

	if err := vm.ReportVisible(ctx, map[int64]float64{1: 0, 2: 1}); err != nil {
		t.Fatal(err)
	}
	if err := vm.ReportVisible(ctx, map[int64]float64{1: 0, 2: 1}); err != nil {
		t.Fatal(err)
	}
	if err := vm.ReportVisible(ctx, map[int64]float64{1: 0.6, 2: 0.3}); err != nil {
		t.Fatal(err)
	}

	if got := d.visible[1]; len(got) != 1 || got[0] != 0.6 {
		t.Fatalf("reports for 1 = %v, want [0.6]", got)
	}
	if got := d.visible[2]; len(got) != 2 || got[0] != 1 || got[1] != 0.3 {
		t.Fatalf("reports for 2 = %v, want [1 0.3]", got)
	}
}

func TestRefreshSignalled(t *testing.T) {
	vm := NewViewModel(newFakeDaemon())
	if err := vm.LoadStatus(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-vm.RefreshCh():
	default:
		t.Fatal("expected a refresh signal")
	}
	if vm.Me() != "sam" {
		t.Fatalf("Me = %q, want sam", vm.Me())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		evt    rpc.Event
		active string
		want   Reload
	}{
		{"inbox", rpc.Event{Kind: bus.InboxChanged}, "", ReloadInbox},
		{"message for active", rpc.Event{Kind: bus.MessageUpserted, Payload: map[string]any{"peer": "ana"}}, "ana", ReloadConversation},
		{"message for other", rpc.Event{Kind: bus.MessageUpserted, Payload: map[string]any{"peer": "bob"}}, "ana", 0},
		{"seen without conversation", rpc.Event{Kind: bus.MessageSeen, Payload: map[string]any{"peer": "ana"}}, "", 0},
		{"chat state", rpc.Event{Kind: bus.ChannelStateChanged, Payload: map[string]any{"purpose": "chat", "peer": "ana"}}, "ana", ReloadStatus | ReloadConversation},
		{"inbox state", rpc.Event{Kind: bus.ChannelStateChanged, Payload: map[string]any{"purpose": "inbox"}}, "", ReloadStatus | ReloadInbox},
		{"badge", rpc.Event{Kind: bus.BadgeChanged}, "", ReloadStatus},
		{"unknown", rpc.Event{Kind: "other.thing"}, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(&tt.evt, tt.active); got != tt.want {
				t.Fatalf("Classify = %b, want %b", got, tt.want)
			}
		})
	}
}

func TestNotice(t *testing.T) {
	text, warn := Notice(&rpc.Event{Kind: bus.BadgeAlert, Payload: map[string]any{"sender": "ana"}})
	if text != "New message from ana" || warn {
		t.Fatalf("alert notice = %q warn=%v", text, warn)
	}
	if _, warn := Notice(&rpc.Event{Kind: bus.AuthExpired}); !warn {
		t.Fatal("auth expiry should warn")
	}
	text, warn = Notice(&rpc.Event{Kind: bus.ChannelStateChanged, Payload: map[string]any{"purpose": "inbox", "to": "ERROR"}})
	if text == "" || !warn {
		t.Fatalf("error state notice = %q warn=%v", text, warn)
	}
	if text, _ := Notice(&rpc.Event{Kind: bus.InboxChanged}); text != "" {
		t.Fatalf("inbox change should be silent, got %q", text)
	}
}
