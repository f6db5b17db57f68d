package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	apperrors "pizza-phone-agent/backend/pkg/errors"
)

// ConnState is the transport-level state of the AI leg.
type ConnState int

const (
	// StateDisconnected means no socket is open.
	StateDisconnected ConnState = iota
	// StateConnecting means a dial (or re-dial) is in progress.
	StateConnecting
	// StateConnected means the socket is open and the session config was sent.
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// Handler receives everything the client reads. Calls come from the
// client's reader goroutine, one at a time.
type Handler interface {
	HandleServerEvent(ev ServerEvent)
	HandleConnState(state ConnState, reconnect bool)
}

// Options configures a Client.
type Options struct {
	URL              string
	APIKey           string
	Model            string
	Session          SessionConfig
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Client is one call's connection to the realtime model. It redials with
// capped exponential back-off until Close is called.
type Client struct {
	opts    Options
	handler Handler
	logger  *zap.Logger
	dialer  *websocket.Dialer

	mu      sync.Mutex // guards conn, session and writes
	conn    *websocket.Conn
	session SessionConfig

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// NewClient creates a client. Nothing is dialed until Start.
func NewClient(opts Options, handler Handler, logger *zap.Logger) *Client {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 8 * time.Second
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:    opts,
		handler: handler,
		logger:  logger,
		dialer:  &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		session: opts.Session,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start dials in the background and keeps the connection alive.
func (c *Client) Start() {
	go c.run()
}

// Send writes one event. It fails with ErrTransportNotOpen while the
// socket is down; callers log and drop.
func (c *Client) Send(ev ClientEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(ev)
}

func (c *Client) writeLocked(ev ClientEvent) error {
	if c.conn == nil {
		return apperrors.ErrTransportNotOpen
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := c.conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("write %s failed: %w", ev.Type, err)
	}
	return nil
}

// UpdateSession replaces the session configuration and sends it when connected.
// The latest configuration is re-sent after every reconnect.
func (c *Client) UpdateSession(cfg SessionConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = cfg
	if c.conn == nil {
		return nil
	}
	return c.writeLocked(SessionUpdate(cfg))
}

// Connected reports whether the socket is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close stops reconnecting and closes the socket. Safe to call many times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
	})
}

// Done is closed once the client has stopped for good.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) run() {
	defer close(c.done)

	reconnect := false
	for {
		if c.ctx.Err() != nil {
			return
		}
		c.handler.HandleConnState(StateConnecting, reconnect)

		conn, err := c.dialWithBackoff()
		if err != nil {
			// Only a closed client stops the dial loop.
			c.handler.HandleConnState(StateDisconnected, reconnect)
			return
		}

		c.mu.Lock()
		c.conn = conn
		sendErr := c.writeLocked(SessionUpdate(c.session))
		c.mu.Unlock()
		if sendErr != nil {
			c.logger.Warn("Failed to send session config", zap.Error(sendErr))
		}
		c.handler.HandleConnState(StateConnected, reconnect)

		c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()

		c.handler.HandleConnState(StateDisconnected, reconnect)
		reconnect = true
	}
}

func (c *Client) dialWithBackoff() (*websocket.Conn, error) {
	backoff := retry.NewExponential(c.opts.InitialBackoff)
	backoff = retry.WithCappedDuration(c.opts.MaxBackoff, backoff)
	backoff = retry.WithJitterPercent(10, backoff)

	target, err := c.dialURL()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.opts.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	attempt := 0
	var conn *websocket.Conn
	err = retry.Do(c.ctx, backoff, func(ctx context.Context) error {
		attempt++
		ws, resp, dialErr := c.dialer.DialContext(ctx, target, header)
		if dialErr != nil {
			fields := []zap.Field{zap.Int("attempt", attempt), zap.Error(dialErr)}
			if resp != nil {
				fields = append(fields, zap.Int("status", resp.StatusCode))
			}
			c.logger.Warn("Realtime dial failed, retrying", fields...)
			return retry.RetryableError(dialErr)
		}
		conn = ws
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("Realtime connection established", zap.Int("attempt", attempt))
	return conn, nil
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if c.opts.Model != "" {
		q := u.Query()
		q.Set("model", c.opts.Model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// readLoop delivers events until the socket fails.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("Realtime connection lost", zap.Error(err))
			}
			return
		}

		ev, err := ParseServerEvent(data)
		if err != nil {
			c.logger.Warn("Dropping undecodable realtime event", zap.Error(err))
			continue
		}
		c.handler.HandleServerEvent(ev)
	}
}
