package model

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/studyhall/chatsync/internal/rpc"
	"github.com/studyhall/chatsync/internal/tui/client"
	"github.com/studyhall/chatsync/internal/tui/ui"
)

// Daemon is the subset of the daemon client the view model drives.
type Daemon interface {
	Status(ctx context.Context) (*rpc.StatusReport, error)
	Foreground(ctx context.Context) (*rpc.Ack, error)
	Background(ctx context.Context) (*rpc.Ack, error)
	Refresh(ctx context.Context) (*rpc.Ack, error)
	Inbox(ctx context.Context, req rpc.ListRequest) (*rpc.InboxList, error)
	Open(ctx context.Context, peer string) (*rpc.Conversation, error)
	CloseConversation(ctx context.Context) (*rpc.Ack, error)
	Messages(ctx context.Context, req rpc.MessagesRequest) (*rpc.Conversation, error)
	Send(ctx context.Context, peer, body string) (*rpc.Message, error)
	Visible(ctx context.Context, id int64, ratio float64) (*rpc.Ack, error)
	Search(ctx context.Context, req rpc.SearchRequest) (*rpc.SearchList, error)
}

var _ Daemon = (*client.Client)(nil)

// ErrNoConversation is returned by Send when no conversation is open.
var ErrNoConversation = errors.New("no conversation open")

// ViewModel caches daemon state for the views and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	daemon   Daemon
	status   *rpc.StatusReport
	inbox    []rpc.Summary
	offline  bool
	conv     *rpc.Conversation
	active   string
	reported map[int64]float64
	Flash    *ui.FlashModel

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{
		daemon:    d,
		reported:  make(map[int64]float64),
		Flash:     ui.NewFlashModel(),
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.daemon.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadInbox fetches the inbox, live or from the mirror per the offline
// toggle.
func (vm *ViewModel) LoadInbox(ctx context.Context) error {
	vm.mu.RLock()
	offline := vm.offline
	vm.mu.RUnlock()

	resp, err := vm.daemon.Inbox(ctx, rpc.ListRequest{Offline: offline})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.inbox = resp.Entries
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// ToggleOffline flips between the live inbox and the local mirror and
// returns the new setting.
func (vm *ViewModel) ToggleOffline() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.offline = !vm.offline
	return vm.offline
}

// InboxOffline reports whether the inbox shown is not the live one.
func (vm *ViewModel) InboxOffline() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.offline {
		return true
	}
	return vm.status != nil && vm.status.Channels["inbox"] != "OPEN"
}

// Open opens the conversation with peer. A failed connect still leaves the
// conversation open on the daemon, so the cached history is loaded and the
// error returned for display.
func (vm *ViewModel) Open(ctx context.Context, peer string) error {
	conv, openErr := vm.daemon.Open(ctx, peer)
	if openErr != nil {
		var err error
		conv, err = vm.daemon.Messages(ctx, rpc.MessagesRequest{Peer: peer})
		if err != nil {
			return openErr
		}
	}
	vm.mu.Lock()
	vm.active = peer
	vm.conv = conv
	vm.reported = make(map[int64]float64)
	vm.mu.Unlock()
	vm.signalRefresh()
	return openErr
}

// Close closes the active conversation.
func (vm *ViewModel) Close(ctx context.Context) error {
	vm.mu.Lock()
	had := vm.active != ""
	vm.active = ""
	vm.conv = nil
	vm.mu.Unlock()
	if !had {
		return nil
	}
	_, err := vm.daemon.CloseConversation(ctx)
	vm.signalRefresh()
	return err
}

// LoadMessages refetches the active conversation.
func (vm *ViewModel) LoadMessages(ctx context.Context) error {
	peer := vm.ActivePeer()
	if peer == "" {
		return nil
	}
	conv, err := vm.daemon.Messages(ctx, rpc.MessagesRequest{Peer: peer})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.active == peer {
		vm.conv = conv
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Send posts body to the active conversation.
func (vm *ViewModel) Send(ctx context.Context, body string) (*rpc.Message, error) {
	peer := vm.ActivePeer()
	if peer == "" {
		return nil, ErrNoConversation
	}
	msg, err := vm.daemon.Send(ctx, peer, body)
	if err != nil {
		return nil, err
	}
	if msg.Status == "sending" {
		vm.Flash.Info("Message queued, it will be sent when the chat reconnects")
	}
	return msg, vm.LoadMessages(ctx)
}

// Search searches cached messages.
func (vm *ViewModel) Search(ctx context.Context, query string) ([]rpc.SearchHit, error) {
	resp, err := vm.daemon.Search(ctx, rpc.SearchRequest{Query: query, Limit: 50})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ReportVisible forwards the ratios that changed since the last report.
func (vm *ViewModel) ReportVisible(ctx context.Context, ratios map[int64]float64) error {
	vm.mu.Lock()
	changed := make(map[int64]float64)
	for id, r := range ratios {
		prev, ok := vm.reported[id]
		if (ok && math.Abs(prev-r) < 0.01) || (!ok && r == 0) {
			continue
		}
		vm.reported[id] = r
		changed[id] = r
	}
	vm.mu.Unlock()

	for id, r := range changed {
		if _, err := vm.daemon.Visible(ctx, id, r); err != nil {
			vm.mu.Lock()
			delete(vm.reported, id)
			vm.mu.Unlock()
			return err
		}
	}
	return nil
}

// Refresh asks the daemon to reconnect and reload everything.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	_, err := vm.daemon.Refresh(ctx)
	return err
}

// Foreground resumes the daemon's channels.
func (vm *ViewModel) Foreground(ctx context.Context) error {
	_, err := vm.daemon.Foreground(ctx)
	return err
}

// Background closes the daemon's channels.
func (vm *ViewModel) Background(ctx context.Context) error {
	_, err := vm.daemon.Background(ctx)
	return err
}

// Status returns the last fetched daemon status.
func (vm *ViewModel) Status() *rpc.StatusReport {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Me returns the signed-in username, if known.
func (vm *ViewModel) Me() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.status == nil {
		return ""
	}
	return vm.status.Me
}

// Inbox returns a snapshot of the inbox.
func (vm *ViewModel) Inbox() []rpc.Summary {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.inbox
}

// Summary returns the inbox row of peer, or nil.
func (vm *ViewModel) Summary(peer string) *rpc.Summary {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for i := range vm.inbox {
		if vm.inbox[i].Peer == peer {
			s := vm.inbox[i]
			return &s
		}
	}
	return nil
}

// Conversation returns the active conversation, or nil.
func (vm *ViewModel) Conversation() *rpc.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conv
}

// ActivePeer returns the peer of the active conversation.
func (vm *ViewModel) ActivePeer() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}
