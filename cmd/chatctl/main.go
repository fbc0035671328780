package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/studyhall/chatsync/internal/account"
	"github.com/studyhall/chatsync/internal/tui/client"
)

var (
	accountFlag string
	jsonFlag    bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "chatctl",
	Short:         "Control the chatsync daemon",
	Long:          "chatctl talks to the per-account chatsync daemon over its Unix socket.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&accountFlag, "account", "", "account name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 15*time.Second, "request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func accountName() (string, error) {
	name := account.Resolve(accountFlag)
	if err := account.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// withClient dials the daemon and runs fn under the request timeout.
func withClient(fn func(ctx context.Context, c *client.Client) error) error {
	name, err := accountName()
	if err != nil {
		return err
	}
	c, err := client.New(account.SocketPath(name))
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for account %q: %w", name, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()
	return fn(ctx, c)
}

// daemonUp probes the daemon with a short status call.
func daemonUp(ctx context.Context, c *client.Client) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := c.Status(ctx)
	return err == nil
}

// describe turns gRPC errors from the daemon into readable messages.
func describe(err error) error {
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("session expired, sign in again and update access_token: %s", st.Message())
	case codes.Unavailable:
		return fmt.Errorf("unavailable: %s", st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("timed out: %s", st.Message())
	}
	return errors.New(st.Message())
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
