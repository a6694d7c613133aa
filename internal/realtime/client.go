// Package realtime keeps a live subscription to the backend's change feed
// for the signed-in user's tasks.
//
// The Client maintains at most one WebSocket connection, joins the user's
// channel, keeps it alive with heartbeats, and turns row change
// notifications into a single debounced signal on Changes(). Transport
// failures are retried with exponential backoff until Disconnect or Close.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Default timings.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultDebounceInterval  = 500 * time.Millisecond
	DefaultSuppressDuration  = 2 * time.Second
	DefaultBaseBackoff       = 1 * time.Second
	DefaultMaxBackoff        = 30 * time.Second

	dialTimeout  = 15 * time.Second
	writeTimeout = 5 * time.Second
	readLimit    = 1 << 20
)

// Phase is the connection phase of the Client.
type Phase int

const (
	// Disconnected means no transport is open.
	Disconnected Phase = iota
	// Connecting means the transport is being dialed.
	Connecting
	// Joining means the transport is open and the join is in flight.
	Joining
	// Joined means the channel join was acknowledged.
	Joined
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	default:
		return "unknown"
	}
}

// State is a snapshot of the connection state.
type State struct {
	Phase         Phase
	Attempt       int
	SuppressUntil time.Time
}

// Config holds client configuration.
type Config struct {
	// BaseURL is the backend project URL (https://<ref>.supabase.co).
	BaseURL string

	// APIKey is the project's anon key.
	APIKey string

	// HeartbeatInterval between keepalive messages (default: 30s)
	HeartbeatInterval time.Duration

	// DebounceInterval for change notifications (default: 500ms)
	DebounceInterval time.Duration

	// SuppressDuration used by SuppressChanges(0) (default: 2s)
	SuppressDuration time.Duration

	// BaseBackoff is the first reconnect delay (default: 1s)
	BaseBackoff time.Duration

	// MaxBackoff caps the reconnect delay (default: 30s)
	MaxBackoff time.Duration

	// HTTPClient used for the WebSocket handshake (default: http.DefaultClient)
	HTTPClient *http.Client

	// Logger for connection activity (default: stderr logger)
	Logger *log.Logger

	// Now returns the current time (default: time.Now)
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		DebounceInterval:  DefaultDebounceInterval,
		SuppressDuration:  DefaultSuppressDuration,
		BaseBackoff:       DefaultBaseBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		Logger:            log.New(os.Stderr, "[realtime] ", log.LstdFlags),
		Now:               time.Now,
	}
}

// Client is the realtime subscription client.
type Client struct {
	config  Config
	wsURL   string
	logger  *log.Logger
	changes chan struct{}

	mu            sync.Mutex
	phase         Phase
	attempt       int
	suppressUntil time.Time
	token         string
	userID        string
	ref           int
	conn          *websocket.Conn
	cancel        context.CancelFunc
	gen           uint64 // bumped whenever the current connection is abandoned
	epoch         uint64 // bumped by Disconnect; invalidates pending timers
	reconnect     *time.Timer
	debounce      *time.Timer
	closed        bool
}

// New creates a client with default timings for baseURL and apiKey.
func New(baseURL, apiKey string) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.APIKey = apiKey
	return NewWithConfig(cfg)
}

// NewWithConfig creates a client. Zero fields fall back to defaults.
func NewWithConfig(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = def.DebounceInterval
	}
	if cfg.SuppressDuration <= 0 {
		cfg.SuppressDuration = def.SuppressDuration
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Client{
		config:  cfg,
		wsURL:   websocketURL(cfg.BaseURL, cfg.APIKey),
		logger:  cfg.Logger,
		changes: make(chan struct{}, 1),
	}
}

// websocketURL maps the project URL to the realtime endpoint.
func websocketURL(baseURL, apiKey string) string {
	u := strings.TrimRight(baseURL, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	q := url.Values{}
	q.Set("apikey", apiKey)
	q.Set("vsn", "1.0.0")
	return u + "/realtime/v1/websocket?" + q.Encode()
}

// BackoffDelay returns the default reconnect delay for an attempt:
// 1s doubling per attempt, capped at 30s.
func BackoffDelay(attempt int) time.Duration {
	return backoff(attempt, DefaultBaseBackoff, DefaultMaxBackoff)
}

func backoff(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt && d < ceiling; i++ {
		if d > math.MaxInt64/2 {
			return ceiling
		}
		d *= 2
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// Changes delivers one value per debounced batch of remote task changes.
// Signals coalesce while unread. The channel is closed by Close.
func (c *Client) Changes() <-chan struct{} {
	return c.changes
}

// State returns a snapshot of the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Phase: c.phase, Attempt: c.attempt, SuppressUntil: c.suppressUntil}
}

// Connect opens the transport and joins the user's channel.
// It is a no-op while a connection is being set up or is already joined.
func (c *Client) Connect(accessToken, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.phase != Disconnected {
		return
	}
	c.token = accessToken
	c.userID = userID
	c.connectLocked()
}

func (c *Client) connectLocked() {
	c.phase = Connecting
	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.logger.Printf("Connecting (attempt %d)", c.attempt)
	go c.run(ctx, c.gen, c.token, c.userID)
}

// Disconnect closes the transport with a normal closure and cancels every
// pending timer. No reconnect follows.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.epoch++
	conn, cancel := c.abandonLocked()
	c.stopTimersLocked()
	c.attempt = 0
	c.phase = Disconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "Client disconnect")
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.logger.Println("Disconnected")
	}
}

// Close disconnects and closes the Changes channel. Idempotent.
func (c *Client) Close() {
	c.Disconnect()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.changes)
	}
}

// UpdateToken stores a refreshed access token. When joined, the token is
// also pushed on the live channel without reconnecting.
func (c *Client) UpdateToken(accessToken string) {
	c.mu.Lock()
	c.token = accessToken
	if c.phase != Joined || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	msg := Message{Ref: c.nextRefLocked(), Topic: Topic(c.userID), Event: EventAccessToken}
	c.mu.Unlock()

	msg.Payload, _ = json.Marshal(map[string]string{"access_token": accessToken})
	if err := c.send(context.Background(), conn, msg); err != nil {
		c.logger.Printf("Failed to push token: %v", err)
		return
	}
	c.logger.Println("Token updated on channel")
}

// SuppressChanges drops change notifications for d from now, so the echo of
// a write this client just made does not trigger a reload. d <= 0 uses the
// configured default.
func (c *Client) SuppressChanges(d time.Duration) {
	if d <= 0 {
		d = c.config.SuppressDuration
	}
	c.mu.Lock()
	c.suppressUntil = c.config.Now().Add(d)
	c.mu.Unlock()
}

// run dials, joins and reads until the connection ends.
func (c *Client) run(ctx context.Context, gen uint64, token, userID string) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.wsURL, &websocket.DialOptions{HTTPClient: c.config.HTTPClient})
	cancel()
	if err != nil {
		c.logger.Printf("WebSocket failure: %v", err)
		c.abnormal(gen)
		return
	}
	conn.SetReadLimit(readLimit)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	c.conn = conn
	c.phase = Joining
	joinRef := c.nextRefLocked()
	c.mu.Unlock()

	c.logger.Println("WebSocket opened")

	payload, err := json.Marshal(newJoinPayload(userID, token))
	if err != nil {
		c.logger.Printf("Failed to encode join: %v", err)
		c.abnormal(gen)
		return
	}
	join := Message{JoinRef: joinRef, Ref: joinRef, Topic: Topic(userID), Event: EventJoin, Payload: payload}
	if err := c.send(ctx, conn, join); err != nil {
		c.logger.Printf("Failed to send join: %v", err)
		c.abnormal(gen)
		return
	}
	c.logger.Printf("Joining channel: %s", join.Topic)

	go c.heartbeat(ctx, conn)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.readEnded(gen, err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Printf("Error parsing message: %v", err)
			continue
		}
		c.handle(gen, msg)
	}
}

// readEnded handles the end of the read loop. Only a normal closure is
// final; anything else reconnects.
func (c *Client) readEnded(gen uint64, err error) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}

	code := websocket.CloseStatus(err)
	if code == websocket.StatusNormalClosure {
		c.logger.Printf("WebSocket closed: %d", code)
		c.mu.Lock()
		if gen == c.gen {
			_, cancel := c.abandonLocked()
			c.phase = Disconnected
			if cancel != nil {
				cancel()
			}
		}
		c.mu.Unlock()
		return
	}

	c.logger.Printf("WebSocket closed abnormally: %v", err)
	c.abnormal(gen)
}

func (c *Client) handle(gen uint64, msg Message) {
	switch msg.Event {
	case EventReply:
		var reply replyPayload
		_ = json.Unmarshal(msg.Payload, &reply)
		switch {
		case reply.joined():
			c.mu.Lock()
			if gen == c.gen {
				c.phase = Joined
				c.attempt = 0
			}
			c.mu.Unlock()
			c.logger.Println("Channel joined")
		case reply.Status == "error":
			c.logger.Printf("Channel error: %s", msg.Payload)
			c.abnormal(gen)
		}

	case EventPostgresChanges:
		c.onChange(gen)

	case EventError:
		c.logger.Printf("Phoenix error: %s", msg.Payload)
		c.abnormal(gen)

	case EventClose:
		c.logger.Println("Phoenix close")
		c.abnormal(gen)

	case EventSystem:
		// Informational only

	default:
		c.logger.Printf("Unhandled event: %s", msg.Event)
	}
}

// onChange applies suppression and restarts the debounce timer. Changes read
// by an abandoned connection are dropped.
func (c *Client) onChange(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.closed {
		return
	}
	if c.config.Now().Before(c.suppressUntil) {
		c.logger.Println("Change suppressed (self-change)")
		return
	}

	if c.debounce != nil {
		c.debounce.Stop()
	}
	epoch := c.epoch
	c.debounce = time.AfterFunc(c.config.DebounceInterval, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if epoch != c.epoch || c.closed {
			return
		}
		c.debounce = nil
		select {
		case c.changes <- struct{}{}:
		default:
			// A signal is already pending
		}
	})
}

// abnormal tears down the connection identified by gen and schedules a
// reconnect.
func (c *Client) abnormal(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	conn, cancel := c.abandonLocked()
	c.phase = Disconnected
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.CloseNow()
	}
}

// scheduleReconnectLocked arms the reconnect timer unless one is pending.
func (c *Client) scheduleReconnectLocked() {
	if c.reconnect != nil || c.closed {
		return
	}
	delay := backoff(c.attempt, c.config.BaseBackoff, c.config.MaxBackoff)
	c.attempt++
	c.logger.Printf("Scheduling reconnect in %v (attempt %d)", delay, c.attempt)

	epoch := c.epoch
	c.reconnect = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if epoch != c.epoch {
			return
		}
		c.reconnect = nil
		if c.closed || c.phase != Disconnected || c.token == "" || c.userID == "" {
			return
		}
		c.connectLocked()
	})
}

// abandonLocked detaches the current connection so its goroutines become
// stale. The caller closes the returned conn and calls cancel.
func (c *Client) abandonLocked() (*websocket.Conn, context.CancelFunc) {
	c.gen++
	conn, cancel := c.conn, c.cancel
	c.conn = nil
	c.cancel = nil
	return conn, cancel
}

func (c *Client) stopTimersLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
}

func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			ref := c.nextRefLocked()
			c.mu.Unlock()
			msg := Message{Ref: ref, Topic: heartbeatTopic, Event: EventHeartbeat}
			if err := c.send(ctx, conn, msg); err != nil {
				if !errors.Is(err, context.Canceled) {
					c.logger.Printf("Heartbeat failed: %v", err)
				}
				return
			}
		}
	}
}

func (c *Client) send(ctx context.Context, conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Event, err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Event, err)
	}
	return nil
}

func (c *Client) nextRefLocked() string {
	ref := strconv.Itoa(c.ref)
	c.ref++
	return ref
}
