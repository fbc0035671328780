package model

import (
	"fmt"

	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/rpc"
)

// Reload is the set of view model parts a daemon event invalidates.
type Reload uint8

const (
	ReloadStatus Reload = 1 << iota
	ReloadInbox
	ReloadConversation
)

// Has reports whether r includes part.
func (r Reload) Has(part Reload) bool { return r&part != 0 }

// Classify maps a streamed event to the parts that need refetching. active
// is the peer of the open conversation.
func Classify(evt *rpc.Event, active string) Reload {
	switch evt.Kind {
	case bus.ChannelStateChanged:
		r := ReloadStatus
		if payloadString(evt, "purpose") == "chat" && payloadString(evt, "peer") == active {
			r |= ReloadConversation
		}
		if payloadString(evt, "purpose") == "inbox" {
			r |= ReloadInbox
		}
		return r
	case bus.InboxChanged:
		return ReloadInbox
	case bus.MessageUpserted, bus.MessageSeen:
		if active != "" && payloadString(evt, "peer") == active {
			return ReloadConversation
		}
		return 0
	case bus.BadgeChanged, bus.BadgeAlert, bus.ConversationOpened, bus.ConversationClosed,
		bus.Lifecycle, bus.AuthExpired:
		return ReloadStatus
	}
	return 0
}

// Notice returns the flash text an event deserves, if any. warn marks
// problems.
func Notice(evt *rpc.Event) (text string, warn bool) {
	switch evt.Kind {
	case bus.BadgeAlert:
		sender := payloadString(evt, "sender")
		if sender == "" {
			return "New message", false
		}
		return fmt.Sprintf("New message from %s", sender), false
	case bus.AuthExpired:
		return "Session expired, sign in again and restart the daemon", true
	case bus.ChannelStateChanged:
		if payloadString(evt, "to") == "ERROR" {
			return fmt.Sprintf("%s channel failed, retrying", payloadString(evt, "purpose")), true
		}
	}
	return "", false
}

func payloadString(evt *rpc.Event, key string) string {
	if evt.Payload == nil {
		return ""
	}
	s, _ := evt.Payload[key].(string)
	return s
}
