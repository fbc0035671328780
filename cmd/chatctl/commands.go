package main

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/studyhall/chatsync/internal/account"
	"github.com/studyhall/chatsync/internal/config"
	"github.com/studyhall/chatsync/internal/rpc"
	"github.com/studyhall/chatsync/internal/store"
	intsync "github.com/studyhall/chatsync/internal/sync"
	"github.com/studyhall/chatsync/internal/tui/client"
)

func init() {
	inboxCmd.Flags().StringP("filter", "f", "", "only show conversations matching this text")
	inboxCmd.Flags().Bool("offline", false, "read the local mirror instead of the live inbox")
	historyCmd.Flags().IntP("limit", "n", 50, "maximum number of messages")
	searchCmd.Flags().String("peer", "", "restrict the search to one conversation")
	searchCmd.Flags().IntP("limit", "n", 20, "maximum number of results")

	rootCmd.AddCommand(statusCmd, inboxCmd, badgeCmd, historyCmd, sendCmd, searchCmd,
		refreshCmd, foregroundCmd, backgroundCmd, shareCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and channel status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return describe(err)
			}
			if jsonFlag {
				outputJSON(st)
				return nil
			}
			fmt.Printf("Account:  %s (pid %d)\n", st.Account, st.PID)
			if st.Me != "" {
				fmt.Printf("User:     %s\n", st.Me)
			}
			purposes := make([]string, 0, len(st.Channels))
			for p := range st.Channels {
				purposes = append(purposes, p)
			}
			sort.Strings(purposes)
			for _, p := range purposes {
				fmt.Printf("%-9s %s\n", p+":", st.Channels[p])
			}
			fmt.Printf("Unseen:   %d\n", st.Badge)
			if st.ActivePeer != "" {
				fmt.Printf("Open:     %s\n", st.ActivePeer)
			}
			if st.LastSnapshotMs > 0 {
				fmt.Printf("Synced:   %s\n", humanize.Time(time.UnixMilli(st.LastSnapshotMs)))
			}
			return nil
		})
	},
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List conversations, unread first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")
		offline, _ := cmd.Flags().GetBool("offline")
		return withClient(func(ctx context.Context, c *client.Client) error {
			var entries []rpc.Summary
			if daemonUp(ctx, c) {
				list, err := c.Inbox(ctx, rpc.ListRequest{Query: filter, Offline: offline})
				if err != nil {
					return describe(err)
				}
				entries = list.Entries
			} else {
				rows, err := readMirror(func(db *store.DB) (any, error) {
					return db.ListConversations(filter, 200)
				})
				if err != nil {
					return err
				}
				for _, r := range rows.([]store.Conversation) {
					entries = append(entries, summaryFromRow(r))
				}
			}
			if jsonFlag {
				outputJSON(entries)
				return nil
			}
			if len(entries) == 0 {
				fmt.Println("No conversations.")
				return nil
			}
			for _, e := range entries {
				printSummary(e)
			}
			return nil
		})
	},
}

var badgeCmd = &cobra.Command{
	Use:   "badge",
	Short: "Show the unseen message count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			b, err := c.Badge(ctx)
			if err != nil {
				return describe(err)
			}
			if jsonFlag {
				outputJSON(b)
				return nil
			}
			fmt.Println(humanize.Comma(int64(b.Count)))
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <peer>",
	Short: "Show the messages exchanged with a peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		peer := args[0]
		return withClient(func(ctx context.Context, c *client.Client) error {
			var conv *rpc.Conversation
			if daemonUp(ctx, c) {
				var err error
				conv, err = c.Messages(ctx, rpc.MessagesRequest{Peer: peer, Limit: limit})
				if err != nil {
					return describe(err)
				}
			} else {
				rows, err := readMirror(func(db *store.DB) (any, error) {
					return db.ListMessages(peer, 0, limit)
				})
				if err != nil {
					return err
				}
				conv = &rpc.Conversation{Peer: peer}
				for _, r := range rows.([]store.Message) {
					conv.Messages = append(conv.Messages, messageFromRow(r))
				}
			}
			if jsonFlag {
				outputJSON(conv)
				return nil
			}
			if len(conv.Messages) == 0 {
				fmt.Printf("No messages with %s.\n", peer)
				return nil
			}
			for _, m := range conv.Messages {
				printMessage(m)
			}
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <peer> <text...>",
	Short: "Send a message (queued while offline)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := strings.Join(args[1:], " ")
		return withClient(func(ctx context.Context, c *client.Client) error {
			m, err := c.Send(ctx, args[0], body)
			if err != nil {
				return describe(err)
			}
			if jsonFlag {
				outputJSON(m)
				return nil
			}
			fmt.Printf("%s (%s)\n", m.Status, m.ClientID)
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search mirrored messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		peer, _ := cmd.Flags().GetString("peer")
		limit, _ := cmd.Flags().GetInt("limit")
		query := strings.Join(args, " ")
		return withClient(func(ctx context.Context, c *client.Client) error {
			var hits []rpc.SearchHit
			if daemonUp(ctx, c) {
				res, err := c.Search(ctx, rpc.SearchRequest{Query: query, Peer: peer, Limit: limit})
				if err != nil {
					return describe(err)
				}
				hits = res.Results
			} else {
				rows, err := readMirror(func(db *store.DB) (any, error) {
					return db.SearchMessages(query, peer, limit)
				})
				if err != nil {
					return err
				}
				for _, r := range rows.([]store.SearchResult) {
					hits = append(hits, rpc.SearchHit{Message: messageFromRow(r.Message), Peer: r.Message.Peer, Snippet: r.Snippet})
				}
			}
			if jsonFlag {
				outputJSON(hits)
				return nil
			}
			if len(hits) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, h := range hits {
				fmt.Printf("%-16s %-12s %s\n", h.Peer, ago(h.Message.CreatedAtMs), h.Snippet)
			}
			return nil
		})
	},
}

func lifecycleCmd(use, short string, call func(context.Context, *client.Client) (*rpc.Ack, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				ack, err := call(ctx, c)
				if err != nil {
					return describe(err)
				}
				if jsonFlag {
					outputJSON(ack)
					return nil
				}
				fmt.Println(ack.Message)
				return nil
			})
		},
	}
}

var (
	refreshCmd = lifecycleCmd("refresh", "Reconnect every channel",
		func(ctx context.Context, c *client.Client) (*rpc.Ack, error) { return c.Refresh(ctx) })
	foregroundCmd = lifecycleCmd("foreground", "Resume: reconnect channels that are down",
		func(ctx context.Context, c *client.Client) (*rpc.Ack, error) { return c.Foreground(ctx) })
	backgroundCmd = lifecycleCmd("background", "Pause: close every channel",
		func(ctx context.Context, c *client.Client) (*rpc.Ack, error) { return c.Background(ctx) })
)

var shareCmd = &cobra.Command{
	Use:   "share <peer>",
	Short: "Print a QR code linking to a peer's profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOrDefault(account.ConfigPath())
		if err != nil {
			return err
		}
		if cfg.Host == "" {
			return fmt.Errorf("no backend host configured")
		}
		link := (&url.URL{Scheme: "https", Host: cfg.Host, Path: "/profile/" + args[0] + "/"}).String()
		if jsonFlag {
			outputJSON(map[string]string{"peer": args[0], "url": link})
			return nil
		}
		qr, err := qrcode.New(link, qrcode.Medium)
		if err != nil {
			return fmt.Errorf("generate QR code: %w", err)
		}
		fmt.Println(qr.ToSmallString(false))
		fmt.Println(link)
		return nil
	},
}

// readMirror runs fn against the account's local cache, opened read-only.
// It is used when the daemon is not running.
func readMirror(fn func(db *store.DB) (any, error)) (any, error) {
	name, err := accountName()
	if err != nil {
		return nil, err
	}
	db, err := store.OpenReadOnly(account.CachePath(name))
	if err != nil {
		return nil, fmt.Errorf("open local cache: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.CheckSchema(); err != nil {
		return nil, fmt.Errorf("local cache: %w (start chatd once to upgrade it)", err)
	}
	return fn(db)
}

func summaryFromRow(r store.Conversation) rpc.Summary {
	s := intsync.SummaryFromRow(r)
	out := rpc.Summary{
		Peer:          s.Peer,
		FullName:      s.FullName,
		Online:        s.Online,
		Preview:       s.Preview.Text,
		PreviewSender: s.Preview.Sender,
		UnreadCount:   s.UnreadCount,
	}
	if !s.LastActivity.IsZero() {
		out.LastActivityMs = s.LastActivity.UnixMilli()
	}
	return out
}

func messageFromRow(r store.Message) rpc.Message {
	m := intsync.MessageFromRow(r)
	out := rpc.Message{
		ID:       m.ID,
		TempID:   m.TempID,
		ClientID: m.ClientID,
		Sender:   m.Sender,
		Receiver: m.Receiver,
		Body:     m.Body,
		Status:   string(m.Status),
	}
	if !m.CreatedAt.IsZero() {
		out.CreatedAtMs = m.CreatedAt.UnixMilli()
	}
	return out
}

func printSummary(e rpc.Summary) {
	marker := " "
	if e.UnreadCount > 0 {
		marker = "*"
	}
	name := e.Peer
	if e.FullName != "" {
		name = fmt.Sprintf("%s (%s)", e.Peer, e.FullName)
	}
	preview := e.Preview
	if r := []rune(preview); len(r) > 48 {
		preview = string(r[:45]) + "..."
	}
	unread := ""
	if e.UnreadCount > 0 {
		unread = fmt.Sprintf("[%d] ", e.UnreadCount)
	}
	fmt.Printf("%s %-32s %-14s %s%s\n", marker, name, ago(e.LastActivityMs), unread, preview)
}

func printMessage(m rpc.Message) {
	suffix := ""
	switch {
	case m.ShowSeen:
		suffix = "  (seen)"
	case m.Status == "sending":
		suffix = "  (sending)"
	}
	fmt.Printf("%-12s %-16s %s%s\n", ago(m.CreatedAtMs), m.Sender+":", m.Body, suffix)
}

func ago(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return humanize.Time(time.UnixMilli(ms))
}
