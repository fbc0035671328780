// Package rpc defines the daemon's gRPC surface: service and method names,
// the request and response shapes, and their google.protobuf.Struct codec.
// Server and clients share it so neither needs generated stubs.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Service names.
const (
	SyncService         = "chatsync.v1.Sync"
	InboxService        = "chatsync.v1.Inbox"
	ConversationService = "chatsync.v1.Conversation"
	EventsService       = "chatsync.v1.Events"
)

// Method names.
const (
	MethodStatus     = "Status"
	MethodForeground = "Foreground"
	MethodBackground = "Background"
	MethodRefresh    = "Refresh"

	MethodList  = "List"
	MethodBadge = "Badge"

	MethodOpen     = "Open"
	MethodClose    = "Close"
	MethodMessages = "Messages"
	MethodSend     = "Send"
	MethodMarkSeen = "MarkSeen"
	MethodVisible  = "Visible"
	MethodSearch   = "Search"

	MethodWatch = "Watch"
)

// FullMethod returns the "/service/method" path used on the wire.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// Encode converts v to a Struct through its JSON form.
func Encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

// Decode fills v from s. A nil Struct leaves v untouched.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
