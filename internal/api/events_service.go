package api

import (
	"encoding/json"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/studyhall/chatsync/internal/badge"
	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/conversation"
	"github.com/studyhall/chatsync/internal/inbox"
	"github.com/studyhall/chatsync/internal/rpc"
	"github.com/studyhall/chatsync/internal/status"
)

// EventsService streams bus events to front ends.
type EventsService struct {
	bus *bus.Bus
}

// NewEventsService creates the events service.
func NewEventsService(b *bus.Bus) *EventsService {
	return &EventsService{bus: b}
}

// Desc describes the service for registration.
func (s *EventsService) Desc() *grpc.ServiceDesc {
	return rpc.NewServiceDesc(rpc.EventsService, nil,
		rpc.ServerStream(rpc.MethodWatch, s.Watch))
}

// Watch forwards events under req.Namespace until the client goes away.
func (s *EventsService) Watch(req *rpc.WatchRequest, stream rpc.Sender[rpc.Event]) error {
	ch, unsub := s.bus.Subscribe(req.Namespace, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if err := stream.Send(eventToRPC(evt)); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func eventToRPC(evt bus.Event) *rpc.Event {
	return &rpc.Event{
		ID:      uuid.NewString(),
		Kind:    evt.Kind,
		AtMs:    evt.Timestamp.UnixMilli(),
		Payload: payloadToMap(evt.Payload),
	}
}

// payloadToMap gives each known payload a stable wire shape.
func payloadToMap(p any) map[string]any {
	var v any
	switch p := p.(type) {
	case nil:
		return nil
	case status.StatusChange:
		v = map[string]any{"purpose": p.Purpose, "peer": p.Peer, "from": string(p.From), "to": string(p.To)}
	case inbox.Changed:
		v = map[string]any{"snapshot": p.Snapshot, "entries": summariesToRPC(p.Entries)}
	case conversation.Event:
		msgs := make([]rpc.Message, len(p.Messages))
		for i, m := range p.Messages {
			msgs[i] = messageToRPC(m)
		}
		v = map[string]any{"peer": p.Peer, "messages": msgs}
	case badge.Change:
		v = map[string]any{"count": p.Count, "previous": p.Previous}
	case badge.Alert:
		v = map[string]any{"count": p.Count, "previous": p.Previous, "sender": p.Sender}
	case string:
		return map[string]any{"value": p}
	default:
		v = p
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if json.Unmarshal(b, &m) != nil {
		return map[string]any{"value": string(b)}
	}
	return m
}
