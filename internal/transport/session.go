// Package transport owns the WebSocket channels to the platform backend.
// A Session mints per-purpose channels; each Channel is an owned handle with
// a single reader goroutine, and a Supervisor keeps one channel alive.
package transport

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/studyhall/chatsync/internal/apperr"
	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/metrics"
	"github.com/studyhall/chatsync/internal/platform"
)

// Purpose scopes a channel and its token.
type Purpose string

const (
	PurposeInbox         Purpose = "inbox"
	PurposeChat          Purpose = "chat"
	PurposeNotifications Purpose = "notifications"
)

// Credentials performs the identity check and issues channel tokens.
// *platform.Client implements it.
type Credentials interface {
	Me(ctx context.Context) (*platform.Identity, error)
	WSToken(ctx context.Context) (string, error)
}

// Token is a short-lived channel credential. It is never persisted and its
// String form is redacted.
type Token string

func (t Token) String() string { return "[redacted]" }

// Config controls how channels are dialed.
type Config struct {
	// Host is the backend host[:port] serving /ws/<purpose>/.
	Host string
	// Scheme is "wss" in production; tests use "ws".
	Scheme string
	// ConnectTimeout bounds the identity check, token fetch and handshake.
	ConnectTimeout time.Duration
}

// Session dials channels on behalf of the signed-in user.
type Session struct {
	creds   Credentials
	cfg     Config
	bus     *bus.Bus
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewSession creates a Session. bus and m may be nil.
func NewSession(creds Credentials, cfg Config, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "wss"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Session{
		creds:   creds,
		cfg:     cfg,
		bus:     b,
		logger:  logger.Named("transport"),
		metrics: m,
	}
}

// Connect creates a channel and opens it. The returned channel is non-nil
// even on error so the caller can retry Open on the next trigger.
func (s *Session) Connect(ctx context.Context, purpose Purpose, peer string, h Handler) (*Channel, error) {
	ch := s.NewChannel(purpose, peer, h)
	return ch, ch.Open(ctx)
}

type dialResult struct {
	conn *websocket.Conn
	me   string
}

// dial runs the identity check, fetches a fresh token and completes the
// WebSocket handshake, all under ConnectTimeout.
func (s *Session) dial(ctx context.Context, purpose Purpose, peer string) (*dialResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	id, err := s.creds.Me(ctx)
	if err != nil {
		return nil, apperr.FromIO("identity check", err)
	}
	raw, err := s.creds.WSToken(ctx)
	if err != nil {
		return nil, apperr.FromIO("fetch ws token", err)
	}
	if raw == "" {
		return nil, apperr.New(apperr.TokenUnavailable, "fetch ws token", nil)
	}
	tok := Token(raw)
	s.logger.Debug("token issued",
		zap.String("purpose", string(purpose)),
		zap.Int("token_len", len(raw)))

	conn, _, err := websocket.Dial(ctx, s.channelURL(purpose, peer, tok), nil)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperr.New(apperr.ConnectionTimeout, "open "+string(purpose)+" channel", err)
		}
		return nil, apperr.FromIO("open "+string(purpose)+" channel", err)
	}
	conn.SetReadLimit(1 << 20)
	return &dialResult{conn: conn, me: id.Username}, nil
}

func (s *Session) channelURL(purpose Purpose, peer string, tok Token) string {
	q := url.Values{}
	q.Set("token", string(tok))
	if peer != "" {
		q.Set("receiver", peer)
	}
	u := url.URL{
		Scheme:   s.cfg.Scheme,
		Host:     s.cfg.Host,
		Path:     "/ws/" + string(purpose) + "/",
		RawQuery: q.Encode(),
	}
	return u.String()
}
