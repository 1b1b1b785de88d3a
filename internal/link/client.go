package link

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is the HTTP/WebSocket implementation of Link.
type Client struct {
	baseURL    string
	code       string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *zap.Logger

	mu     sync.Mutex
	next   int
	subs   map[int]*subscription
	closed bool
}

type subscription struct {
	path    string
	conn    *websocket.Conn
	closing atomic.Bool
	done    chan struct{}
}

// New creates a client for the backend at baseURL, authenticating with code.
func New(baseURL, code string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		code:    code,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
		logger: logger,
		subs:   make(map[int]*subscription),
	}
}

type pokeRequest struct {
	App  string `json:"app"`
	Mark string `json:"mark"`
	JSON any    `json:"json"`
}

// Poke sends payload to app under mark.
func (c *Client) Poke(ctx context.Context, app, mark string, payload any) error {
	body := pokeRequest{App: app, Mark: mark, JSON: payload}
	if err := c.doRequest(ctx, http.MethodPost, "/~/poke", body, nil); err != nil {
		return fmt.Errorf("link.Poke %s: %w", mark, err)
	}
	return nil
}

// Scry reads path from app and decodes the JSON result into out.
func (c *Client) Scry(ctx context.Context, app, path string, out any) error {
	if err := c.doRequest(ctx, http.MethodGet, "/~/scry/"+url.PathEscape(app)+path+".json", nil, out); err != nil {
		return fmt.Errorf("link.Scry %s: %w", path, err)
	}
	return nil
}

// Subscribe opens a push stream for path. Each frame is handed to onEvent on
// the stream's own goroutine, in arrival order.
func (c *Client) Subscribe(ctx context.Context, app, path string, onEvent func(json.RawMessage), onQuit func(error)) (int, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	params := url.Values{}
	params.Set("app", app)
	params.Set("path", path)
	target := wsURL(c.baseURL) + "/~/subscribe?" + params.Encode()

	headers := http.Header{}
	if c.code != "" {
		headers.Set("Authorization", "Bearer "+c.code)
	}
	conn, resp, err := c.dialer.DialContext(ctx, target, headers)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			err = &HTTPError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return 0, fmt.Errorf("link.Subscribe %s: %w", path, err)
	}

	sub := &subscription{path: path, conn: conn, done: make(chan struct{})}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return 0, ErrClosed
	}
	c.next++
	id := c.next
	c.subs[id] = sub
	c.mu.Unlock()

	go c.readLoop(id, sub, onEvent, onQuit)
	go c.pingLoop(sub)
	return id, nil
}

// Unsubscribe closes subscription id. Its onQuit is not called.
func (c *Client) Unsubscribe(id int) error {
	c.mu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSubscription, id)
	}
	sub.close()
	return nil
}

// SubscribeOnce waits for the first event on path.
func (c *Client) SubscribeOnce(ctx context.Context, app, path string, timeout time.Duration) (json.RawMessage, error) {
	data, err := AwaitOnce(ctx, c, app, path, timeout)
	if err != nil {
		return nil, fmt.Errorf("link.SubscribeOnce: %w", err)
	}
	return data, nil
}

// Close ends every subscription. Later subscriptions fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	subs := c.subs
	c.subs = make(map[int]*subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	return nil
}

func (s *subscription) close() {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	deadline := time.Now().Add(writeWait)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	s.conn.Close()
}

func (c *Client) readLoop(id int, sub *subscription, onEvent func(json.RawMessage), onQuit func(error)) {
	defer close(sub.done)

	sub.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			if sub.closing.Load() {
				return
			}
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			sub.conn.Close()
			c.logger.Warn("subscription ended", zap.Int("sub", id), zap.String("path", sub.path), zap.Error(err))
			if onQuit != nil {
				onQuit(err)
			}
			return
		}
		sub.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
		if onEvent != nil {
			onEvent(json.RawMessage(data))
		}
	}
}

func (c *Client) pingLoop(sub *subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.code != "" {
		req.Header.Set("Authorization", "Bearer "+c.code)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
