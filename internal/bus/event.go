package bus

import "time"

// Event kinds. Subscribers filter by namespace prefix ("inbox.", "message.").
const (
	ChannelStateChanged = "channel.state_changed"
	AuthExpired         = "session.auth_expired"
	Lifecycle           = "session.lifecycle"

	InboxChanged = "inbox.changed"

	MessageUpserted = "message.upserted"
	MessageSeen     = "message.seen"

	ConversationOpened = "conversation.opened"
	ConversationClosed = "conversation.closed"

	BadgeChanged = "badge.changed"
	BadgeAlert   = "badge.alert"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
