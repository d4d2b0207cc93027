// Package wsconn provides a reconnecting WebSocket client for quote feeds.
package wsconn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// MessageHandler is invoked for every message read from the connection.
type MessageHandler func(ctx context.Context, msg []byte)

// StateChangeHandler is invoked on every state transition. err is non-nil
// when the transition was caused by a failure.
type StateChangeHandler func(state State, err error)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string // used in error messages and logs
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// Client is a reconnecting WebSocket client.
type Client struct {
	config Config

	mu      sync.RWMutex
	conn    *websocket.Conn
	state   State
	onMsg   MessageHandler
	onState StateChangeHandler

	writeMu sync.Mutex // serializes writes; coder/websocket allows one writer

	reconnects int
	cancelRead context.CancelFunc
	closed     chan struct{}
	closeOnce  sync.Once
}

// New creates a new WebSocket client.
func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("wsconn: URL is required")
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 30 * time.Second
	}
	return &Client{
		config: config,
		state:  StateDisconnected,
		closed: make(chan struct{}),
	}, nil
}

// OnMessage registers the message handler. Must be called before Connect.
func (c *Client) OnMessage(h MessageHandler) {
	c.mu.Lock()
	c.onMsg = h
	c.mu.Unlock()
}

// OnStateChange registers the state transition handler.
func (c *Client) OnStateChange(h StateChangeHandler) {
	c.mu.Lock()
	c.onState = h
	c.mu.Unlock()
}

// Connect dials the endpoint and starts the read loop. On read failure the
// client reconnects with exponential backoff until Close is called or the
// reconnect budget is exhausted.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting, nil)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected, err)
		return fmt.Errorf("wsconn %s: dial: %w", c.config.Name, err)
	}

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	c.conn = conn
	c.cancelRead = cancel
	c.reconnects = 0
	c.mu.Unlock()

	c.setState(StateConnected, nil)

	go c.readLoop(readCtx)
	if c.config.PingInterval > 0 {
		go c.pingLoop(readCtx)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.config.URL, nil)
	if err != nil {
		return nil, err
	}
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}
	return conn, nil
}

// Send writes a raw message.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("wsconn %s: not connected", c.config.Name)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.Write(ctx, websocket.MessageText, msg)
}

// SendJSON marshals v and writes it as a text message.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wsconn %s: marshal: %w", c.config.Name, err)
	}
	return c.Send(ctx, data)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the connection is established.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Close gracefully closes the connection. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		if c.cancelRead != nil {
			c.cancelRead()
		}
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "client shutdown")
		}
		c.setState(StateClosed, nil)
	})
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.RLock()
		conn := c.conn
		handler := c.onMsg
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-c.closed:
				return
			case <-ctx.Done():
				return
			default:
			}
			c.reconnect(ctx, err)
			return
		}

		if handler != nil {
			handler(ctx, data)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()
			if conn == nil {
				return
			}
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_ = conn.Ping(pingCtx)
			cancel()
		}
	}
}

// reconnect re-dials with exponential backoff after a read failure.
func (c *Client) reconnect(ctx context.Context, cause error) {
	c.setState(StateReconnecting, cause)

	backoff := c.config.InitialBackoff
	for {
		c.mu.Lock()
		c.reconnects++
		attempts := c.reconnects
		c.mu.Unlock()

		if c.config.MaxReconnects > 0 && attempts > c.config.MaxReconnects {
			c.setState(StateDisconnected, fmt.Errorf("wsconn %s: reconnect budget exhausted", c.config.Name))
			return
		}

		select {
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.reconnects = 0
			c.mu.Unlock()
			c.setState(StateConnected, nil)
			go c.readLoop(ctx)
			return
		}

		backoff *= 2
		if backoff > c.config.MaxBackoff {
			backoff = c.config.MaxBackoff
		}
	}
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	if c.state == StateClosed && state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = state
	handler := c.onState
	c.mu.Unlock()

	if handler != nil {
		handler(state, err)
	}
}
