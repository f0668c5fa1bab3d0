// Package remote is an AssignmentStore backed by a running VoxPro server:
// rows over HTTP, changes over the realtime websocket.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"voxpro/core/realtime"
	"voxpro/logger"
	"voxpro/model"

	"github.com/gorilla/websocket"
)

const (
	assignmentsPath = "/api/assignments"
	realtimePath    = "/api/realtime"
	maxErrorBody    = 512
	maxReconnect    = 30 * time.Second
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

type Client struct {
	base           *url.URL
	http           *http.Client
	dialer         *websocket.Dialer
	token          string
	reconnectDelay time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithToken sets the admin bearer token used for writes.
func WithToken(token string) Option {
	return func(cl *Client) { cl.token = token }
}

// WithReconnectDelay sets the first delay before re-dialing a dropped
// change stream; it doubles up to 30s.
func WithReconnectDelay(d time.Duration) Option {
	return func(cl *Client) { cl.reconnectDelay = d }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:           u,
		http:           &http.Client{Timeout: 15 * time.Second},
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		reconnectDelay: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// FetchAll lists every assignment row.
func (c *Client) FetchAll(ctx context.Context) ([]model.Assignment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(assignmentsPath), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var rows []model.Assignment
	if err := c.do(req, http.StatusOK, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert creates a row; a is updated with the stored id and timestamp.
func (c *Client) Insert(ctx context.Context, a *model.Assignment) error {
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(assignmentsPath), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.do(req, http.StatusCreated, a)
}

func (c *Client) do(req *http.Request, want int, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) realtimeURL(table string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + realtimePath
	u.RawQuery = url.Values{"table": {table}}.Encode()
	return u.String()
}

// Subscribe dials the assignments change stream. The first dial must
// succeed; later drops are re-dialed in the background and a synthetic
// update is delivered after each reconnect so the caller re-fetches.
func (c *Client) Subscribe(ctx context.Context, h realtime.Handler) (realtime.Subscription, error) {
	target := c.realtimeURL(realtime.TableAssignments)
	conn, err := c.dial(ctx, target)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		client: c,
		target: target,
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(subCtx, h)
	return s, nil
}

func (c *Client) dial(ctx context.Context, target string) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", target, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return conn, nil
}

type subscription struct {
	client *Client
	target string

	mu   sync.Mutex
	conn *websocket.Conn

	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (s *subscription) run(ctx context.Context, h realtime.Handler) {
	defer close(s.done)

	delay := s.client.reconnectDelay
	for {
		s.read(ctx, h)
		if ctx.Err() != nil {
			return
		}

		for {
			logger.Warn("change stream dropped, reconnecting",
				logger.String("url", s.target),
				logger.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > maxReconnect {
				delay = maxReconnect
			}

			conn, err := s.client.dial(ctx, s.target)
			if err != nil {
				continue
			}
			if !s.swap(conn) {
				return
			}
			delay = s.client.reconnectDelay
			h(realtime.ChangeEvent{
				Table:     realtime.TableAssignments,
				Event:     realtime.EventUpdate,
				Timestamp: time.Now().UnixMilli(),
			})
			break
		}
	}
}

// swap installs a new connection unless the subscription was closed.
func (s *subscription) swap(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		conn.Close()
		return false
	}
	s.conn = conn
	return true
}

func (s *subscription) read(ctx context.Context, h realtime.Handler) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				logger.Debug("change stream read failed", logger.ErrorField(err))
			}
			return
		}
		var ev realtime.ChangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Warn("malformed change event", logger.ErrorField(err))
			continue
		}
		if ctx.Err() != nil {
			return
		}
		h(ev)
	}
}

// Close stops the stream and waits for the reader. It must not be called
// from the handler.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()
		if conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		}
	})
	<-s.done
	return nil
}
