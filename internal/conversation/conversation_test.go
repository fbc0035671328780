package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/studyhall/chatsync/internal/apperr"
	"github.com/studyhall/chatsync/internal/protocol"
	"github.com/studyhall/chatsync/internal/status"
)

type fakeChannel struct {
	mu    sync.Mutex
	state status.State
	sent  []string
	err   error
}

func (f *fakeChannel) Send(ctx context.Context, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	b, _ := json.Marshal(v)
	f.sent = append(f.sent, string(b))
	return nil
}

func (f *fakeChannel) State() status.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) setState(s status.State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeChannel) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeHistory struct {
	recs    []protocol.HistoryRecord
	err     error
	release chan struct{}
}

func (f *fakeHistory) History(ctx context.Context, peer string) ([]protocol.HistoryRecord, error) {
	if f.release != nil {
		<-f.release
	}
	return f.recs, f.err
}

type memOutbox struct {
	mu     sync.Mutex
	queued []Message
	sent   map[string]bool
	acked  map[string]int64
}

func newMemOutbox() *memOutbox {
	return &memOutbox{sent: map[string]bool{}, acked: map[string]int64{}}
}

func (o *memOutbox) Queue(ctx context.Context, m Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queued = append(o.queued, m)
	return nil
}

func (o *memOutbox) Pending(ctx context.Context, peer string) ([]Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Message
	for _, m := range o.queued {
		if m.Receiver == peer && !o.sent[m.ClientID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (o *memOutbox) MarkTransmitted(ctx context.Context, clientID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent[clientID] = true
	return nil
}

func (o *memOutbox) Ack(ctx context.Context, clientID string, serverID int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.acked[clientID] = serverID
	return nil
}

func newSync(ch Channel, opts ...func(*Options)) *Synchronizer {
	o := Options{Peer: "bob", Me: "me", Channel: ch}
	for _, fn := range opts {
		fn(&o)
	}
	return New(o)
}

func TestLoadHistoryStatuses(t *testing.T) {
	h := &fakeHistory{recs: []protocol.HistoryRecord{
		{ID: 1, Sender: "bob", Content: "hi", IsSeen: true},
		{ID: 2, Sender: "me", Message: "hello"},
		{ID: 2, Sender: "me", Message: "hello"},
	}}
	s := newSync(nil, func(o *Options) { o.History = h })
	if err := s.LoadHistory(context.Background()); err != nil {
		t.Fatal(err)
	}
	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Status != Seen || msgs[1].Status != Sent {
		t.Errorf("statuses = %s, %s", msgs[0].Status, msgs[1].Status)
	}
}

func TestLoadHistoryErrorIsClassified(t *testing.T) {
	s := newSync(nil, func(o *Options) { o.History = &fakeHistory{err: errors.New("boom")} })
	if err := s.LoadHistory(context.Background()); !errors.Is(err, apperr.ErrNetworkFailure) {
		t.Errorf("error = %v, want NetworkFailure", err)
	}
}

func TestStaleHistoryDiscardedAfterClose(t *testing.T) {
	h := &fakeHistory{recs: []protocol.HistoryRecord{{ID: 1, Sender: "bob", Content: "x"}}, release: make(chan struct{})}
	s := newSync(nil, func(o *Options) { o.History = h })

	done := make(chan error)
	go func() { done <- s.LoadHistory(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	s.Close()
	close(h.release)

	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if n := len(s.Messages()); n != 0 {
		t.Errorf("stale history applied: %d messages", n)
	}
}

func TestLiveMessagesSurviveHistoryLoad(t *testing.T) {
	h := &fakeHistory{recs: []protocol.HistoryRecord{{ID: 1, Sender: "bob", Content: "old"}}, release: make(chan struct{})}
	s := newSync(nil, func(o *Options) { o.History = h })

	done := make(chan error)
	go func() { done <- s.LoadHistory(context.Background()) }()
	s.AppendIncoming(Message{ID: 2, Sender: "bob", Body: "live"})
	close(h.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	msgs := s.Messages()
	if len(msgs) != 2 || msgs[0].ID != 1 || msgs[1].ID != 2 {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestAppendIncomingDedup(t *testing.T) {
	s := newSync(nil)
	if !s.AppendIncoming(Message{ID: 5, Sender: "bob", Body: "a"}) {
		t.Fatal("first delivery should append")
	}
	if s.AppendIncoming(Message{ID: 5, Sender: "bob", Body: "a"}) {
		t.Error("duplicate delivery should be skipped")
	}
	if n := len(s.Messages()); n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
}

func TestOutgoingWhileOpen(t *testing.T) {
	ch := &fakeChannel{state: status.Open}
	s := newSync(ch)
	m, err := s.AppendOutgoing(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != Sending || m.TempID == 0 || m.ID != 0 || m.ClientID == "" {
		t.Errorf("message = %+v", m)
	}
	frames := ch.frames()
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want 1", len(frames))
	}
	want := `{"type":"chat","message":"hello","sender":"me","receiver":"bob","client_id":"` + m.ClientID + `"}`
	if frames[0] != want {
		t.Errorf("frame = %s, want %s", frames[0], want)
	}
}

func TestEmptyBodyRejected(t *testing.T) {
	s := newSync(&fakeChannel{state: status.Open})
	if _, err := s.AppendOutgoing(context.Background(), "  "); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("error = %v, want ErrEmptyBody", err)
	}
}

func TestReconcileByClientID(t *testing.T) {
	ob := newMemOutbox()
	s := newSync(&fakeChannel{state: status.Open}, func(o *Options) { o.Outbox = ob })
	first, _ := s.AppendOutgoing(context.Background(), "same")
	second, _ := s.AppendOutgoing(context.Background(), "same")

	s.AppendIncoming(Message{ID: 100, Sender: "me", Receiver: "bob", Body: "same", ClientID: second.ClientID})

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].ClientID != first.ClientID || !msgs[0].Pending() {
		t.Errorf("first should still be pending: %+v", msgs[0])
	}
	if msgs[1].ID != 100 || msgs[1].TempID != 0 || msgs[1].Status != Sent {
		t.Errorf("second not reconciled: %+v", msgs[1])
	}
	if ob.acked[second.ClientID] != 100 {
		t.Errorf("outbox ack = %v", ob.acked)
	}
}

func TestReconcileByBodyFallback(t *testing.T) {
	s := newSync(&fakeChannel{state: status.Open})
	first, _ := s.AppendOutgoing(context.Background(), "hey")
	s.AppendOutgoing(context.Background(), "hey")

	s.AppendIncoming(Message{ID: 7, Sender: "me", Body: "hey"})

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].ID != 7 || msgs[0].ClientID != first.ClientID {
		t.Errorf("oldest pending should be reconciled: %+v", msgs[0])
	}
	if !msgs[1].Pending() {
		t.Errorf("newer message should stay pending: %+v", msgs[1])
	}
}

func TestOfflineSendStaysSending(t *testing.T) {
	ch := &fakeChannel{state: status.Closed}
	ob := newMemOutbox()
	s := newSync(ch, func(o *Options) { o.Outbox = ob })

	m, err := s.AppendOutgoing(context.Background(), "offline")
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.frames()) != 0 {
		t.Fatal("nothing may be sent while the channel is down")
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Status != Sending {
		t.Fatalf("messages = %+v", msgs)
	}

	// still down: flushing is a no-op
	if err := s.FlushOutbox(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ch.frames()) != 0 {
		t.Fatal("flush must wait for OPEN")
	}

	ch.setState(status.Open)
	if err := s.FlushOutbox(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ch.frames()) != 1 {
		t.Fatalf("sent %d frames after open, want 1", len(ch.frames()))
	}
	if !ob.sent[m.ClientID] {
		t.Error("flushed entry should be marked transmitted")
	}
	if s.Messages()[0].Status != Sending {
		t.Error("status changes only on the server echo")
	}

	if err := s.FlushOutbox(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ch.frames()) != 1 {
		t.Error("a transmitted entry must not be sent twice")
	}
}

func TestFlushRestoresMissingMessages(t *testing.T) {
	ob := newMemOutbox()
	ob.queued = []Message{{TempID: 1, ClientID: "c-1", Sender: "me", Receiver: "bob", Body: "from before", Status: Sending}}
	ch := &fakeChannel{state: status.Open}
	s := newSync(ch, func(o *Options) { o.Outbox = ob })

	if err := s.FlushOutbox(context.Background()); err != nil {
		t.Fatal(err)
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].ClientID != "c-1" || msgs[0].Status != Sending {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestSendFailureKeepsMessage(t *testing.T) {
	ch := &fakeChannel{state: status.Open, err: errors.New("write failed")}
	s := newSync(ch)
	if _, err := s.AppendOutgoing(context.Background(), "x"); err == nil {
		t.Fatal("expected send error")
	}
	if msgs := s.Messages(); len(msgs) != 1 || msgs[0].Status != Sending {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestSeenIndicatorAfterOutgoingAndSeen(t *testing.T) {
	s := newSync(&fakeChannel{state: status.Open})
	s.AppendIncoming(Message{ID: 1, Sender: "bob", Body: "hi"})
	m, _ := s.AppendOutgoing(context.Background(), "yo")
	s.AppendIncoming(Message{ID: 2, Sender: "me", Body: "yo", ClientID: m.ClientID})

	if got := SeenIndicatorIndex(s.Messages(), "me"); got != -1 {
		t.Errorf("index before seen = %d, want -1", got)
	}
	s.HandleFrame([]byte(`{"type":"seen","message_id":2}`))
	if got := SeenIndicatorIndex(s.Messages(), "me"); got != 1 {
		t.Errorf("index after seen = %d, want 1", got)
	}
}

func TestSeenNeverRegresses(t *testing.T) {
	s := newSync(nil)
	s.AppendIncoming(Message{ID: 3, Sender: "me", Body: "a"})
	s.ApplySeen(3)
	if got := Seen.Advance(Sent); got != Seen {
		t.Errorf("Seen.Advance(Sent) = %s", got)
	}
	if got := Sending.Advance(Seen); got != Seen {
		t.Errorf("Sending.Advance(Seen) = %s", got)
	}
	if s.ApplySeen(3) {
		t.Error("second receipt should be a no-op")
	}
	if s.Messages()[0].Status != Seen {
		t.Error("message should stay seen")
	}
}

func TestMarkSeenSendsReceipt(t *testing.T) {
	ch := &fakeChannel{state: status.Open}
	s := newSync(ch)
	s.AppendIncoming(Message{ID: 9, Sender: "bob", Body: "read me"})

	if err := s.MarkSeen(context.Background(), 9); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSeen(context.Background(), 9); err != nil {
		t.Fatal(err)
	}
	frames := ch.frames()
	if len(frames) != 1 || frames[0] != `{"type":"seen","message_id":9,"seen_by":"me"}` {
		t.Errorf("frames = %v", frames)
	}
	if s.Messages()[0].Status != Seen {
		t.Error("message should be seen")
	}
}

func TestIncomingSeenIsNotEchoed(t *testing.T) {
	ch := &fakeChannel{state: status.Open}
	s := newSync(ch)
	s.AppendIncoming(Message{ID: 4, Sender: "me", Body: "x"})
	s.HandleFrame([]byte(`{"type":"seen","message_id":4}`))
	if len(ch.frames()) != 0 {
		t.Errorf("receipt echoed: %v", ch.frames())
	}
}

func TestHandleFrameFiltersConversation(t *testing.T) {
	s := newSync(nil)
	s.HandleFrame([]byte(`{"type":"chat","id":1,"sender":"bob","receiver":"me","content":"for us"}`))
	s.HandleFrame([]byte(`{"type":"chat","id":2,"sender":"eve","receiver":"me","content":"other room"}`))
	s.HandleFrame([]byte(`not json`))
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Body != "for us" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestAutoSeen(t *testing.T) {
	ch := &fakeChannel{state: status.Open}
	s := newSync(ch, func(o *Options) { o.Dwell = 30 * time.Millisecond })
	s.AppendIncoming(Message{ID: 1, Sender: "bob", Body: "look"})
	s.AppendIncoming(Message{ID: 2, Sender: "bob", Body: "glance"})

	s.ReportVisible(1, 0.8)
	s.ReportVisible(2, 0.8)
	time.Sleep(10 * time.Millisecond)
	s.ReportVisible(2, 0.2)

	deadline := time.Now().Add(time.Second)
	for len(ch.frames()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)

	frames := ch.frames()
	if len(frames) != 1 || frames[0] != `{"type":"seen","message_id":1,"seen_by":"me"}` {
		t.Errorf("frames = %v", frames)
	}
	if s.Messages()[1].Status == Seen {
		t.Error("message scrolled away before the dwell must not be seen")
	}
}

func TestAutoSeenRetriesAfterFailedReceipt(t *testing.T) {
	ch := &fakeChannel{state: status.Open, err: errors.New("socket reconnecting")}
	s := newSync(ch, func(o *Options) { o.Dwell = 30 * time.Millisecond })
	s.AppendIncoming(Message{ID: 1, Sender: "bob", Body: "look"})

	s.ReportVisible(1, 0.9)
	time.Sleep(80 * time.Millisecond)
	if s.Messages()[0].Status == Seen {
		t.Fatal("failed receipt must not mark the message seen")
	}

	ch.mu.Lock()
	ch.err = nil
	ch.mu.Unlock()
	s.ReportVisible(1, 0)
	s.ReportVisible(1, 0.9)

	deadline := time.Now().Add(time.Second)
	for s.Messages()[0].Status != Seen && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Messages()[0].Status != Seen {
		t.Fatalf("status = %s, want seen", s.Messages()[0].Status)
	}
	frames := ch.frames()
	if len(frames) != 1 || frames[0] != `{"type":"seen","message_id":1,"seen_by":"me"}` {
		t.Errorf("frames = %v", frames)
	}
}

func TestVisibilityReset(t *testing.T) {
	fired := make(chan int64, 4)
	v := NewVisibility(10*time.Millisecond, 0.5, func(id int64) { fired <- id })
	defer v.Stop()

	v.Report(5, 1)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("dwell never fired")
	}
	v.Report(5, 1)
	select {
	case <-fired:
		t.Fatal("fired twice without a reset")
	case <-time.After(40 * time.Millisecond):
	}

	v.Reset(5)
	v.Report(5, 1)
	select {
	case id := <-fired:
		if id != 5 {
			t.Errorf("fired %d", id)
		}
	case <-time.After(time.Second):
		t.Fatal("reset id did not fire again")
	}
}

func TestMarkSeenSkipsOwnMessages(t *testing.T) {
	ch := &fakeChannel{state: status.Open}
	s := newSync(ch)
	s.AppendIncoming(Message{ID: 6, Sender: "me", Body: "mine"})

	if err := s.MarkSeen(context.Background(), 6); err != nil {
		t.Fatal(err)
	}
	if len(ch.frames()) != 0 {
		t.Errorf("receipt sent for own message: %v", ch.frames())
	}
	if s.Messages()[0].Status == Seen {
		t.Error("own message must wait for the peer's receipt")
	}
}

func TestApplySeenIgnoresPeerMessages(t *testing.T) {
	s := newSync(nil)
	s.AppendIncoming(Message{ID: 7, Sender: "bob", Body: "theirs"})
	s.HandleFrame([]byte(`{"type":"seen","message_id":7}`))
	if s.ApplySeen(7) {
		t.Error("receipt applied to a peer message")
	}
	if s.Messages()[0].Status == Seen {
		t.Error("peer message marked seen by a receipt")
	}
}

func TestGroup(t *testing.T) {
	msgs := []Message{
		{Sender: "a"}, {Sender: "b"}, {Sender: "b"}, {Sender: "b"}, {Sender: "a"}, {Sender: "a"},
	}
	want := []Position{Single, First, Middle, Last, First, Last}
	got := Group(msgs)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Group[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSeenIndicatorIndex(t *testing.T) {
	tests := []struct {
		name string
		msgs []Message
		want int
	}{
		{"empty", nil, -1},
		{"last own seen", []Message{{Sender: "me", Status: Seen}, {Sender: "bob"}}, 0},
		{"last own sent", []Message{{Sender: "me", Status: Seen}, {Sender: "me", Status: Sent}}, -1},
		{"only peer", []Message{{Sender: "bob", Status: Seen}}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeenIndicatorIndex(tt.msgs, "me"); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
