package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FrameReceived("inbox")
	m.FrameReceived("inbox")
	m.FrameDropped("chat")
	m.ConnectAttempt("notifications", "ok")
	m.AlertRaised()
	m.SetUnseen(8)
	m.SetChannelOpen("inbox", true)

	if got := testutil.ToFloat64(m.framesReceived.WithLabelValues("inbox")); got != 2 {
		t.Errorf("frames_received{inbox} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.framesDropped.WithLabelValues("chat")); got != 1 {
		t.Errorf("frames_dropped{chat} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.alerts); got != 1 {
		t.Errorf("alerts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.unseen); got != 8 {
		t.Errorf("unseen = %v, want 8", got)
	}
	if got := testutil.ToFloat64(m.channelOpen.WithLabelValues("inbox")); got != 1 {
		t.Errorf("channel_open{inbox} = %v, want 1", got)
	}

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("registry gathered no series")
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.FrameReceived("inbox")
	m.FrameDropped("inbox")
	m.ConnectAttempt("inbox", "ok")
	m.SetChannelOpen("inbox", false)
	m.AlertRaised()
	m.SetUnseen(1)
	m.SendQueued()
	m.RPCHandled("/chatsync.v1.Sync/Status", "OK", time.Millisecond)
}

func TestRPCHandled(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RPCHandled("/chatsync.v1.Conversation/Send", "OK", 20*time.Millisecond)
	m.RPCHandled("/chatsync.v1.Conversation/Send", "Unavailable", time.Second)
	m.RPCHandled("/chatsync.v1.Events/Watch", "Canceled", 0)

	if got := testutil.ToFloat64(m.rpcs.WithLabelValues("/chatsync.v1.Conversation/Send", "OK")); got != 1 {
		t.Errorf("rpcs{Send,OK} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rpcs.WithLabelValues("/chatsync.v1.Events/Watch", "Canceled")); got != 1 {
		t.Errorf("rpcs{Watch,Canceled} = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.rpcLatency); n != 1 {
		t.Errorf("latency series = %d, want only the unary method", n)
	}
}
