// Package platform is the REST client for the backend endpoints the sync
// layer depends on: identity, channel tokens, history and peer profiles.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/studyhall/chatsync/internal/apperr"
	"github.com/studyhall/chatsync/internal/protocol"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the REST root, e.g. https://api.example.com.
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	// RPS and Burst bound outgoing requests; zero picks 5 rps / 10 burst.
	RPS   float64
	Burst int
}

// Identity is the authenticated user as reported by /api/me/.
type Identity struct {
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	ProfilePic string `json:"profile_pic"`
}

// Profile is the peer header shown above a conversation.
type Profile struct {
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	ProfilePic string `json:"profile_pic"`
	LastSeen   string `json:"last_seen"`
	IsOnline   bool   `json:"is_online"`
}

// Client talks to the platform backend over fasthttp.
type Client struct {
	base    string
	token   string
	timeout time.Duration
	http    *fasthttp.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a Client.
func New(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 10
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.AccessToken,
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                "chatsync",
			MaxIdleConnDuration: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger.Named("platform"),
		now:     time.Now,
	}
}

// Me performs the identity check. 401/403 become apperr.AuthExpired.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, fasthttp.MethodGet, "/api/me/", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// WSToken fetches a fresh channel token. An empty token is
// apperr.TokenUnavailable.
func (c *Client) WSToken(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"ws_token"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/ws-token/", nil, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", apperr.New(apperr.TokenUnavailable, "fetch ws token", nil)
	}
	return resp.Token, nil
}

// History returns the ordered message records exchanged with peer.
func (c *Client) History(ctx context.Context, peer string) ([]protocol.HistoryRecord, error) {
	var raw json.RawMessage
	if err := c.do(ctx, fasthttp.MethodGet, "/api/chatting/"+url.PathEscape(peer)+"/", nil, &raw); err != nil {
		return nil, err
	}
	recs, err := decodeHistory(raw)
	if err != nil {
		return nil, apperr.New(apperr.NetworkFailure, "decode history", err)
	}
	return recs, nil
}

// ProfileDetails fetches the profile header for username.
func (c *Client) ProfileDetails(ctx context.Context, username string) (*Profile, error) {
	var p Profile
	body := map[string]string{"username": username}
	if err := c.do(ctx, fasthttp.MethodPost, "/api/Profile/details/", body, &p); err != nil {
		return nil, err
	}
	if p.Username == "" {
		p.Username = username
	}
	return &p, nil
}

// decodeHistory accepts a bare array or a paginated {"results": [...]} /
// {"messages": [...]} envelope.
func decodeHistory(raw json.RawMessage) ([]protocol.HistoryRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var recs []protocol.HistoryRecord
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	}
	var env struct {
		Results  []protocol.HistoryRecord `json:"results"`
		Messages []protocol.HistoryRecord `json:"messages"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Results != nil {
		return env.Results, nil
	}
	return env.Messages, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + path
	if err := c.checkToken(); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return apperr.FromIO(op, err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", op, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(b)
	}

	deadline := c.now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return apperr.New(apperr.ConnectionTimeout, op, err)
		}
		return apperr.FromIO(op, err)
	}
	if err := ctx.Err(); err != nil {
		return apperr.FromIO(op, err)
	}

	code := resp.StatusCode()
	switch {
	case code == fasthttp.StatusUnauthorized || code == fasthttp.StatusForbidden:
		return apperr.New(apperr.AuthExpired, op, fmt.Errorf("status %d", code))
	case code < 200 || code > 299:
		return apperr.New(apperr.NetworkFailure, op, fmt.Errorf("status %d", code))
	}
	c.logger.Debug("request done", zap.String("op", op), zap.Int("status", code), zap.Int("bytes", len(resp.Body())))

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return apperr.New(apperr.NetworkFailure, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// checkToken rejects an access token whose exp claim has passed, without a
// round trip. Opaque tokens are not checked.
func (c *Client) checkToken() error {
	if c.token == "" {
		return apperr.New(apperr.AuthExpired, "check access token", errors.New("no access token"))
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(c.now()) {
		return apperr.New(apperr.AuthExpired, "check access token",
			fmt.Errorf("expired at %s", claims.ExpiresAt.Format(time.RFC3339)))
	}
	return nil
}
