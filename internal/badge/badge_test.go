package badge

import (
	"testing"
	"time"

	"github.com/studyhall/chatsync/internal/bus"
)

func TestDecreaseRaisesNoAlert(t *testing.T) {
	br := New(nil, nil, nil)
	if _, ok := br.Apply(5, ""); !ok {
		t.Error("0 -> 5 should alert")
	}
	if _, ok := br.Apply(3, ""); ok {
		t.Error("5 -> 3 must not alert")
	}
	if br.Count() != 3 {
		t.Errorf("Count() = %d, want 3", br.Count())
	}
}

func TestIncreaseOffConversationAlertsOnce(t *testing.T) {
	b := bus.New()
	alerts, unsub := b.Subscribe(bus.BadgeAlert, 8)
	defer unsub()

	br := New(b, nil, nil)
	br.HandleFrame([]byte(`{"type":"total_unseen_count","total_unseen_count":5}`))
	<-alerts

	br.HandleFrame([]byte(`{"type":"total_unseen_count","total_unseen_count":8}`))
	select {
	case evt := <-alerts:
		a := evt.Payload.(Alert)
		if a.Count != 8 || a.Previous != 5 {
			t.Errorf("alert = %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("no alert for 5 -> 8")
	}
	select {
	case evt := <-alerts:
		t.Errorf("extra alert: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
	if br.Count() != 8 {
		t.Errorf("Count() = %d, want 8", br.Count())
	}
}

func TestEqualCountNoAlert(t *testing.T) {
	br := New(nil, nil, nil)
	br.Apply(2, "")
	if _, ok := br.Apply(2, ""); ok {
		t.Error("unchanged count must not alert")
	}
}

func TestSuppression(t *testing.T) {
	tests := []struct {
		name   string
		active string
		sender string
		alert  bool
	}{
		{"no conversation open", "", "bob", true},
		{"open conversation matches", "bob", "bob", false},
		{"other conversation open", "ana", "bob", true},
		{"unattributed while open", "bob", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := New(nil, nil, nil)
			br.SetActivePeer(tt.active)
			_, ok := br.Apply(1, tt.sender)
			if ok != tt.alert {
				t.Errorf("alert = %v, want %v", ok, tt.alert)
			}
			if br.Count() != 1 {
				t.Errorf("count must update even when suppressed, got %d", br.Count())
			}
		})
	}
}

func TestMalformedFrameIgnored(t *testing.T) {
	br := New(nil, nil, nil)
	br.Apply(4, "")
	br.HandleFrame([]byte(`{"type":"total_unseen_count"}`))
	br.HandleFrame([]byte(`{`))
	if br.Count() != 4 {
		t.Errorf("Count() = %d, want 4", br.Count())
	}
}
