package inbox

import (
	"sync"

	"go.uber.org/zap"

	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/metrics"
	"github.com/studyhall/chatsync/internal/protocol"
)

// Changed is the payload of bus.InboxChanged.
type Changed struct {
	// Snapshot is true when the whole list was replaced.
	Snapshot bool
	Entries  []Summary
}

// Synchronizer owns the inbox list.
type Synchronizer struct {
	mu      sync.RWMutex
	list    []Summary
	bus     *bus.Bus
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewSynchronizer creates an empty inbox.
func NewSynchronizer(b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{bus: b, logger: logger.Named("inbox"), metrics: m}
}

// ApplySnapshot replaces the list wholesale. Entries repeating a peer keep
// the first occurrence.
func (s *Synchronizer) ApplySnapshot(raw []protocol.InboxEntry) {
	seen := make(map[string]bool, len(raw))
	list := make([]Summary, 0, len(raw))
	for _, e := range raw {
		sum := Normalize(e)
		if sum.Peer == "" || seen[sum.Peer] {
			continue
		}
		seen[sum.Peer] = true
		list = append(list, sum)
	}
	Sort(list)

	s.mu.Lock()
	s.list = list
	out := s.copyLocked()
	s.mu.Unlock()

	s.bus.Emit(bus.InboxChanged, Changed{Snapshot: true, Entries: out})
}

// ApplyUpdate replaces the entry for peer with one built from patch, keeping
// at most one row per peer.
func (s *Synchronizer) ApplyUpdate(peer string, patch protocol.InboxEntry) {
	if peer == "" {
		return
	}

	s.mu.Lock()
	var prev *Summary
	rest := make([]Summary, 0, len(s.list)+1)
	for i := range s.list {
		if s.list[i].Peer == peer {
			p := s.list[i]
			prev = &p
			continue
		}
		rest = append(rest, s.list[i])
	}
	next := merge(prev, patch)
	next.Peer = peer
	list := append([]Summary{next}, rest...)
	Sort(list)
	s.list = list
	s.mu.Unlock()

	s.bus.Emit(bus.InboxChanged, Changed{Entries: []Summary{next}})
}

// HandleFrame applies one raw inbox channel frame. Malformed or foreign
// frames are logged, counted and dropped.
func (s *Synchronizer) HandleFrame(raw []byte) {
	f, err := protocol.Decode(raw)
	if err != nil {
		s.drop(err)
		return
	}
	switch f := f.(type) {
	case *protocol.InboxData:
		s.ApplySnapshot(f.Inbox)
	case *protocol.InboxUpdate:
		s.ApplyUpdate(f.Peer(), f.InboxEntry)
	default:
		s.logger.Debug("ignoring frame on inbox channel", zap.String("type", frameType(f)))
	}
}

func (s *Synchronizer) drop(err error) {
	s.metrics.FrameDropped("inbox")
	s.logger.Warn("dropping malformed frame", zap.Error(err))
}

// List returns a copy of the sorted inbox.
func (s *Synchronizer) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Get returns the summary for peer.
func (s *Synchronizer) Get(peer string) (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sum := range s.list {
		if sum.Peer == peer {
			return sum, true
		}
	}
	return Summary{}, false
}

// Filter returns matching rows without touching state.
func (s *Synchronizer) Filter(query string) []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterSummaries(s.list, query)
}

func (s *Synchronizer) copyLocked() []Summary {
	out := make([]Summary, len(s.list))
	copy(out, s.list)
	return out
}

func frameType(f any) string {
	switch f.(type) {
	case *protocol.Chat:
		return protocol.TypeChat
	case *protocol.Seen:
		return protocol.TypeSeen
	case *protocol.TotalUnseen:
		return protocol.TypeTotalUnseenCount
	}
	return "unknown"
}
