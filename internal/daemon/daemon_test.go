package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/studyhall/chatsync/internal/api"
	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/hub"
	"github.com/studyhall/chatsync/internal/metrics"
	"github.com/studyhall/chatsync/internal/outbox"
	"github.com/studyhall/chatsync/internal/platform"
	"github.com/studyhall/chatsync/internal/protocol"
	"github.com/studyhall/chatsync/internal/rpc"
	"github.com/studyhall/chatsync/internal/store"
	intsync "github.com/studyhall/chatsync/internal/sync"
	"github.com/studyhall/chatsync/internal/transport"
	"github.com/studyhall/chatsync/internal/tui/client"
)

// offlineBackend identifies the user but never issues a channel token.
type offlineBackend struct{}

func (offlineBackend) Me(context.Context) (*platform.Identity, error) {
	return &platform.Identity{Username: "me"}, nil
}
func (offlineBackend) WSToken(context.Context) (string, error) { return "", nil }
func (offlineBackend) History(context.Context, string) ([]protocol.HistoryRecord, error) {
	return nil, nil
}
func (offlineBackend) ProfileDetails(_ context.Context, u string) (*platform.Profile, error) {
	return &platform.Profile{Username: u}, nil
}

type harness struct {
	db     *store.DB
	hub    *hub.Hub
	engine *intsync.Engine
	client *client.Client
}

func startDaemon(t *testing.T) *harness {
	t.Helper()
	// Use a short path to avoid macOS 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "chatsync-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })
	socketPath := filepath.Join(tmpDir, "d.sock")

	db, err := store.Open(filepath.Join(tmpDir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	b := bus.New()
	sess := transport.NewSession(offlineBackend{}, transport.Config{Host: "127.0.0.1:1", Scheme: "ws"}, b, logger, nil)
	h := hub.New(hub.Options{Session: sess, Backend: offlineBackend{}, Outbox: outbox.NewJournal(db), Bus: b, Logger: logger})
	engine := intsync.NewEngine(db, b, logger)
	engine.Start(context.Background())
	t.Cleanup(func() {
		h.Stop()
		engine.Stop()
	})

	srv, err := NewServer(
		Params{Account: "test", SocketPath: socketPath},
		logger,
		metrics.New(prometheus.NewRegistry()),
		Services{
			Sync:         api.NewSyncService("test", h, intsync.NewCheckpoints(db, logger), b, logger),
			Inbox:        api.NewInboxService(h, db),
			Conversation: api.NewConversationService(h, db, logger),
			Events:       api.NewEventsService(b),
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	c, err := client.New(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return &harness{db: db, hub: h, engine: engine, client: c}
}

func TestDaemonLifecycle(t *testing.T) {
	d := startDaemon(t)
	ctx := context.Background()

	st, err := d.client.Status(ctx)
	if err != nil {
		t.Fatalf("Status error = %v", err)
	}
	if st.Account != "test" || st.Me != "me" {
		t.Errorf("status = %+v", st)
	}
	if st.Channels["inbox"] != "CLOSED" || st.Channels["notifications"] != "CLOSED" {
		t.Errorf("channels = %v, want both CLOSED before start", st.Channels)
	}

	// Empty mirror, no live snapshot.
	list, err := d.client.Inbox(ctx, rpc.ListRequest{})
	if err != nil {
		t.Fatalf("Inbox error = %v", err)
	}
	if len(list.Entries) != 0 {
		t.Errorf("expected 0 entries, got %d", len(list.Entries))
	}

	// A live snapshot reaches both the API and the mirror.
	d.hub.Inbox().ApplySnapshot([]protocol.InboxEntry{
		{Username: "bob", UnreadCount: 2, Timestamp: "2024-05-01T10:00:00Z"},
		{Username: "ana", Timestamp: "2024-05-01T11:00:00Z"},
	})
	list, err = d.client.Inbox(ctx, rpc.ListRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Entries) != 2 || list.Entries[0].Peer != "bob" {
		t.Errorf("entries = %+v", list.Entries)
	}
	waitFor(t, func() bool {
		rows, _ := d.db.ListConversations("", 10)
		return len(rows) == 2
	})

	badge, err := d.client.Badge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if badge.Count != 0 {
		t.Errorf("badge = %+v", badge)
	}
}

func TestSendWhileOfflineIsQueued(t *testing.T) {
	d := startDaemon(t)
	ctx := context.Background()

	m, err := d.client.Send(ctx, "bob", "see you at the library")
	if err != nil {
		t.Fatalf("Send error = %v", err)
	}
	if m.Status != "sending" || m.ClientID == "" {
		t.Errorf("message = %+v", m)
	}

	pending, err := d.db.PendingOutbox("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ClientID != m.ClientID {
		t.Errorf("outbox = %+v", pending)
	}

	conv, err := d.client.Messages(ctx, rpc.MessagesRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if conv.Peer != "bob" || conv.Live || len(conv.Messages) != 1 {
		t.Errorf("conversation = %+v", conv)
	}

	// The mirror picked the pending message up, so search finds it.
	waitFor(t, func() bool {
		res, err := d.client.Search(ctx, rpc.SearchRequest{Query: "library"})
		return err == nil && len(res.Results) == 1
	})

	if _, err := d.client.CloseConversation(ctx); err != nil {
		t.Fatal(err)
	}
	_, err = d.client.MarkSeen(ctx, 1)
	if grpcstatus.Code(err) != codes.FailedPrecondition {
		t.Errorf("MarkSeen without conversation = %v", err)
	}
}

func TestOpenReportsUnavailable(t *testing.T) {
	d := startDaemon(t)
	_, err := d.client.Open(context.Background(), "bob")
	if grpcstatus.Code(err) != codes.Unavailable {
		t.Errorf("Open error = %v, want Unavailable without a channel token", err)
	}
}

func TestWatchStreamsEvents(t *testing.T) {
	d := startDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan *rpc.Event, 8)
	go func() {
		_ = d.client.Watch(ctx, "inbox.", func(evt *rpc.Event) error {
			got <- evt
			return nil
		})
	}()

	// The subscription is registered asynchronously; keep publishing until
	// the stream delivers.
	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case evt := <-got:
			if evt.Kind != bus.InboxChanged {
				t.Errorf("kind = %q", evt.Kind)
			}
			if evt.ID == "" || evt.Payload["snapshot"] != true {
				t.Errorf("event = %+v", evt)
			}
			return
		case <-tick.C:
			d.hub.Inbox().ApplySnapshot([]protocol.InboxEntry{{Username: "bob"}})
		case <-deadline:
			t.Fatal("no event received")
		}
	}
}

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
func TestFxModuleWiring(t *testing.T) {
	if err := fx.ValidateApp(Module(Params{Account: "fxtest"})); err != nil {
		t.Fatalf("fx graph invalid: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
