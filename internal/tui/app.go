package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/studyhall/chatsync/internal/rpc"
	"github.com/studyhall/chatsync/internal/tui/client"
	"github.com/studyhall/chatsync/internal/tui/keys"
	"github.com/studyhall/chatsync/internal/tui/model"
	"github.com/studyhall/chatsync/internal/tui/ui"
	"github.com/studyhall/chatsync/internal/tui/views"
)

const (
	pageInbox        = "inbox"
	pageConversation = "conversation"
	pageDetails      = "details"
	pageShare        = "share"
	pageSearch       = "search"
	pageHelp         = "help"
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	root     *tview.Flex
	pages    *ui.Pages
	vm       *model.ViewModel
	client   *client.Client
	registry *keys.Registry
	theme    *ui.Theme
	account  string
	host     string

	session  *ui.SessionInfo
	logo     *ui.Logo
	menu     *ui.Menu
	crumbs   *ui.Crumbs
	flashBar *ui.FlashBar
	prompt   *ui.Prompt

	inbox   *views.ConversationList
	thread  *views.MessageThread
	details *views.ConversationInfo
	share   *views.ShareView
	search  *views.SearchView
	help    *views.HelpView

	reloadCh chan model.Reload
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewApp creates the TUI application. host is the platform host used for
// profile links.
func NewApp(c *client.Client, account, host string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		pages:    ui.NewPages(),
		vm:       model.NewViewModel(c),
		client:   c,
		registry: keys.NewRegistry(),
		theme:    theme,
		account:  account,
		host:     host,
		session:  ui.NewSessionInfo(theme),
		menu:     ui.NewMenu(theme, 6),
		crumbs:   ui.NewCrumbs(theme),
		flashBar: ui.NewFlashBar(theme),
		logo:     ui.NewLogo(theme),
		prompt:   ui.NewPrompt(theme),
		inbox:    views.NewConversationList(theme),
		thread:   views.NewMessageThread(theme),
		details:  views.NewConversationInfo(theme),
		share:    views.NewShareView(theme),
		search:   views.NewSearchView(theme),
		help:     views.NewHelpView(theme),
		reloadCh: make(chan model.Reload, 16),
		ctx:      ctx,
		cancel:   cancel,
	}
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() {
			if a.pages.Depth() > 1 {
				a.back()
				return
			}
			a.app.Stop()
		},
	})
	a.registry.AddGlobal("command", &keys.Action{
		Rune: ':', Key: tcell.KeyRune,
		Description: "::command", Visible: true,
		Handler: func() { a.activatePrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune,
		Description: "?:help", Visible: true,
		Handler: func() { a.push(pageHelp) },
	})

	a.registry.AddView(pageInbox, "filter", &keys.Action{
		Rune: '/', Key: tcell.KeyRune,
		Description: "/:filter", Visible: true,
		Handler: func() { a.activatePrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageInbox, "refresh", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:refresh", Visible: true,
		Handler: func() { a.refresh() },
	})
	a.registry.AddView(pageInbox, "clear", &keys.Action{
		Rune: '0', Key: tcell.KeyRune,
		Description: "0:all",
		Handler: func() { a.inbox.ClearFilter() },
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddView(pageInbox, fmt.Sprintf("jump%d", n), &keys.Action{
			Rune: rune('0' + n), Key: tcell.KeyRune,
			Handler: func() {
				if peer := a.inbox.PeerByIndex(n); peer != "" {
					a.openPeer(peer)
				}
			},
		})
	}

	a.registry.AddView(pageConversation, "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "i:compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageConversation, "details", &keys.Action{
		Rune: 'd', Key: tcell.KeyRune,
		Description: "d:details", Visible: true,
		Handler: func() { a.showDetails() },
	})
	a.registry.AddView(pageConversation, "share", &keys.Action{
		Rune: 'p', Key: tcell.KeyRune,
		Description: "p:profile qr", Visible: true,
		Handler: func() { a.showShare(a.thread.Peer()) },
	})
}

func (a *App) setupCallbacks() {
	a.pages.SetOnChange(func(stack []string, top ui.Page) {
		a.crumbs.Update(stack)
		if top != nil {
			a.menu.Update(top.Hints())
		}
	})

	a.inbox.SetSelectedFunc(func(row, col int) {
		if peer := a.inbox.SelectedPeer(); peer != "" {
			a.openPeer(peer)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, 15*time.Second)
			defer cancel()
			if _, err := a.vm.Send(ctx, text); err != nil {
				a.vm.Flash.Err(fmt.Errorf("send failed: %s", describe(err)))
			}
			a.app.QueueUpdateDraw(a.render)
		}()
	})

	a.search.SetOnQuery(func(query string) {
		if query == "" {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
			defer cancel()
			results, err := a.vm.Search(ctx, query)
			if err != nil {
				a.vm.Flash.Err(fmt.Errorf("search failed: %s", describe(err)))
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.search.Update(query, results)
				a.app.SetFocus(a.search.Results())
			})
		}()
	})
	a.search.Results().SetSelectedFunc(func(row, col int) {
		if peer := a.search.SelectedPeer(); peer != "" {
			a.openPeer(peer)
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.inbox.SetFilter(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)
}

func (a *App) setupLayout() {
	a.pages.Register(pageInbox, a.inbox)
	a.pages.Register(pageConversation, a.thread)
	a.pages.Register(pageDetails, a.details)
	a.pages.Register(pageShare, a.share)
	a.pages.Register(pageSearch, a.search)
	a.pages.Register(pageHelp, a.help)

	header := tview.NewFlex().
		AddItem(a.session, 0, 1, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(a.logo, 18, 0, false)

	footer := tview.NewFlex().
		AddItem(a.crumbs, 0, 1, false).
		AddItem(a.flashBar, 0, 2, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(footer, 1, 0, false)

	a.pages.Reset(pageInbox)
	a.app.SetRoot(a.root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		focused := a.app.GetFocus()
		if focused == a.prompt.InputField {
			return event
		}

		if event.Key() == tcell.KeyEscape {
			if focused == a.thread.Composer() {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			if a.pages.Depth() > 1 {
				a.back()
				return nil
			}
			return event
		}

		// Let text input widgets handle all other keys.
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		if a.registry.HandleEvent(a.pages.Current(), event) {
			return nil
		}
		return event
	})
}

func (a *App) push(page string) {
	if a.pages.Push(page) {
		a.focusCurrent()
	}
}

func (a *App) back() {
	if a.pages.Pop() == pageConversation {
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
			defer cancel()
			if err := a.vm.Close(ctx); err != nil {
				a.vm.Flash.Warn("close failed: " + describe(err))
			}
			a.reload(model.ReloadStatus | model.ReloadInbox)
		}()
	}
	a.focusCurrent()
}

func (a *App) focusCurrent() {
	if top := a.pages.Top(); top != nil {
		a.app.SetFocus(top.FocusTarget())
		return
	}
	a.app.SetFocus(a.inbox)
}

func (a *App) activatePrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusCurrent()
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.app.Stop()
	case "help":
		a.push(pageHelp)
	case "search":
		a.push(pageSearch)
		if cmd.Args != "" {
			a.search.Submit(cmd.Args)
		}
	case "chat":
		if cmd.Args == "" {
			a.vm.Flash.Warn("usage: :chat <username>")
			return
		}
		a.openPeer(cmd.Args)
	case "share":
		peer := cmd.Args
		if peer == "" {
			peer = a.vm.ActivePeer()
		}
		if peer == "" {
			peer = a.vm.Me()
		}
		a.showShare(peer)
	case "refresh":
		a.refresh()
	case "offline":
		if a.vm.ToggleOffline() {
			a.vm.Flash.Info("Showing the cached inbox")
		} else {
			a.vm.Flash.Info("Showing the live inbox")
		}
		a.reload(model.ReloadInbox)
	case "inbox":
		for a.pages.Depth() > 1 {
			a.back()
		}
	default:
		a.vm.Flash.Warn(fmt.Sprintf("unknown command %q", cmd.Name))
	}
}

func (a *App) openPeer(peer string) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
		defer cancel()
		err := a.vm.Open(ctx, peer)
		if err != nil && a.vm.ActivePeer() != peer {
			a.vm.Flash.Err(fmt.Errorf("open %s: %s", peer, describe(err)))
			return
		}
		if err != nil {
			a.vm.Flash.Warn("offline, showing cached messages: " + describe(err))
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.Update(a.vm.Conversation())
			a.crumbs.SetLabel(pageConversation, a.thread.Name())
			if a.pages.PopTo(pageConversation) {
				a.focusCurrent()
				return
			}
			a.pages.PopTo(pageInbox)
			a.push(pageConversation)
		})
	}()
}

func (a *App) showDetails() {
	conv := a.vm.Conversation()
	if conv == nil {
		return
	}
	a.details.Update(conv.Peer, conv.Profile, a.vm.Summary(conv.Peer))
	a.push(pageDetails)
}

func (a *App) showShare(peer string) {
	if peer == "" {
		a.vm.Flash.Warn("nothing to share yet")
		return
	}
	if a.host == "" {
		a.vm.Flash.Warn("no platform host configured")
		return
	}
	a.share.Show(views.ProfileLink(a.host, peer))
	a.push(pageShare)
}

func (a *App) refresh() {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
		defer cancel()
		if err := a.vm.Refresh(ctx); err != nil {
			a.vm.Flash.Warn("refresh incomplete: " + describe(err))
		} else {
			a.vm.Flash.Info("Refreshed")
		}
		a.reload(model.ReloadStatus | model.ReloadInbox | model.ReloadConversation)
	}()
}

// reload schedules refetches; bursts of events collapse into one pass.
func (a *App) reload(r model.Reload) {
	select {
	case a.reloadCh <- r:
	default:
	}
}

func (a *App) reloadLoop() {
	for {
		var r model.Reload
		select {
		case r = <-a.reloadCh:
		case <-a.ctx.Done():
			return
		}
	drain:
		for {
			select {
			case more := <-a.reloadCh:
				r |= more
			default:
				break drain
			}
		}

		ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
		if r.Has(model.ReloadStatus) {
			_ = a.vm.LoadStatus(ctx)
		}
		if r.Has(model.ReloadInbox) {
			if err := a.vm.LoadInbox(ctx); err != nil {
				a.vm.Flash.Err(fmt.Errorf("inbox: %s", describe(err)))
			}
		}
		if r.Has(model.ReloadConversation) {
			_ = a.vm.LoadMessages(ctx)
		}
		cancel()
		a.app.QueueUpdateDraw(a.render)
	}
}

// watchEvents follows the daemon's event stream, resubscribing after
// failures until the app stops.
func (a *App) watchEvents() {
	for a.ctx.Err() == nil {
		err := a.client.Watch(a.ctx, "", func(evt *rpc.Event) error {
			if text, warn := model.Notice(evt); text != "" {
				if warn {
					a.vm.Flash.Warn(text)
				} else {
					a.vm.Flash.Info(text)
				}
			}
			if r := model.Classify(evt, a.vm.ActivePeer()); r != 0 {
				a.reload(r)
			}
			return nil
		})
		if err != nil {
			a.vm.Flash.Warn("event stream lost: " + describe(err))
		}
		select {
		case <-time.After(2 * time.Second):
		case <-a.ctx.Done():
			return
		}
		a.reload(model.ReloadStatus | model.ReloadInbox | model.ReloadConversation)
	}
}

// tickLoop refreshes relative times and flash expiry, and reports which
// peer messages are on screen.
func (a *App) tickLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				a.flashBar.Update(a.vm.Flash.GetMessage())
				a.updateHeader()
				if a.pages.Current() != pageConversation {
					return
				}
				ratios := a.thread.VisibleRatios()
				go func() {
					ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
					defer cancel()
					_ = a.vm.ReportVisible(ctx, ratios)
				}()
			})
		case msg := <-a.vm.Flash.Watch():
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(&msg) })
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) updateHeader() {
	data := a.sessionData()
	a.session.Update(data)
	a.logo.SetBadge(data.Badge)
}

func (a *App) sessionData() *ui.SessionData {
	data := &ui.SessionData{Account: a.account}
	if st := a.vm.Status(); st != nil {
		data.Me = st.Me
		data.Channels = st.Channels
		data.Badge = st.Badge
		if st.LastSnapshotMs > 0 {
			data.LastSync = time.UnixMilli(st.LastSnapshotMs)
		}
	}
	return data
}

// render pushes view model state into the views. Must run on the UI
// goroutine.
func (a *App) render() {
	a.updateHeader()
	a.inbox.SetMe(a.vm.Me())
	a.inbox.Update(a.vm.Inbox(), a.vm.InboxOffline())
	if conv := a.vm.Conversation(); conv != nil {
		a.thread.Update(conv)
	}
	a.flashBar.Update(a.vm.Flash.GetMessage())
}

// Run starts the TUI application. Leaving it puts the daemon in the
// background.
func (a *App) Run() error {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
		defer cancel()
		if err := a.vm.Foreground(ctx); err != nil {
			a.vm.Flash.Warn("connecting: " + describe(err))
		}
		a.reload(model.ReloadStatus | model.ReloadInbox)
	}()
	go a.reloadLoop()
	go a.watchEvents()
	go a.tickLoop()

	err := a.app.Run()
	a.shutdown()
	return err
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.vm.Close(ctx)
	_ = a.vm.Background(ctx)
	a.cancel()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.app.Stop()
}

// describe shortens daemon errors for the flash bar.
func describe(err error) string {
	if st, ok := grpcstatus.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.Unauthenticated, codes.DeadlineExceeded, codes.FailedPrecondition:
			return st.Message()
		}
	}
	return err.Error()
}
