// Package api talks to the COMPASS agent backend: the session directory
// endpoints and the per-query event stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Created parses CreatedAt, returning the zero time when absent or invalid.
func (s Session) Created() time.Time {
	value := strings.TrimSpace(s.CreatedAt)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NetworkError reports a directory or stream request that did not complete.
// Status is zero when no HTTP response was received.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Client is safe for concurrent use.
type Client struct {
	baseURL        string
	http           *http.Client
	stream         *http.Client
	requestTimeout time.Duration
	log            zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the transport used for both request kinds.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
		cl.stream = c
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.requestTimeout = d }
}

func WithLogger(log zerolog.Logger) Option {
	return func(cl *Client) { cl.log = log }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:           http.DefaultClient,
		stream:         http.DefaultClient,
		requestTimeout: 15 * time.Second,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var out []Session
	if err := c.doJSON(ctx, "list sessions", http.MethodGet, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Session{}
	}
	return out, nil
}

func (c *Client) CreateSession(ctx context.Context, initialMessage string) (string, error) {
	body := map[string]string{"message": initialMessage}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, "create session", http.MethodPost, "/sessions", body, &out); err != nil {
		return "", err
	}
	id := strings.TrimSpace(out.ID)
	if id == "" {
		return "", &NetworkError{Op: "create session", Err: errors.New("response carried no session id")}
	}
	return id, nil
}

func (c *Client) FetchHistory(ctx context.Context, sessionID string) ([]Message, error) {
	path := "/sessions/" + url.PathEscape(sessionID) + "/messages"
	var out []Message
	if err := c.doJSON(ctx, "fetch history", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Message{}
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &NetworkError{Op: op, Err: errors.Wrap(err, "encode request")}
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Str("path", path).Msg("request failed")
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: errors.Wrap(err, "read response")}
	}
	c.log.Debug().
		Str("op", op).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(started)).
		Msg("request done")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: errors.New(compactSingleLine(string(payload), 240))}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: errors.Wrap(err, "decode response")}
	}
	return nil
}

func compactSingleLine(text string, limit int) string {
	joined := strings.Join(strings.Fields(text), " ")
	if joined == "" {
		return "empty response body"
	}
	if limit > 3 && len(joined) > limit {
		return joined[:limit-3] + "..."
	}
	return joined
}
