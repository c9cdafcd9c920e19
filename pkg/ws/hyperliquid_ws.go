package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrNotReady is returned by Post while the connection is not open.
	ErrNotReady = errors.New("websocket not connected")
	// ErrConnectionLost is returned to in-flight posts when the connection drops.
	ErrConnectionLost = errors.New("websocket connection lost")
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// PostRequest is the inner request of a "post" message.
// Type is "info" or "action".
type PostRequest struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// PostResponse is the inner response of a "post" channel message.
// Type is "info", "action" or "error".
type PostResponse struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type postMessage struct {
	Method  string      `json:"method"`
	ID      uint64      `json:"id"`
	Request PostRequest `json:"request"`
}

type pingMessage struct {
	Method string `json:"method"`
}

type channelMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type postData struct {
	ID       uint64       `json:"id"`
	Response PostResponse `json:"response"`
}

type Option func(*Client)

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

// WithBackoff sets the reconnect delay bounds. The delay doubles per failed
// dial and resets after a successful one.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Client) {
		c.minBackoff = min
		c.maxBackoff = max
	}
}

// WithStateHook registers a callback fired on every state transition.
func WithStateHook(fn func(State)) Option {
	return func(c *Client) { c.onState = fn }
}

// Client keeps one persistent connection to the Hyperliquid websocket and
// multiplexes request/response "post" messages over it by id.
//
// States run Connecting -> Open -> Closed(reason) -> Connecting ... until
// Close. A peer silent for two ping intervals is treated as disconnected.
type Client struct {
	url          string
	log          *zap.Logger
	dialer       *websocket.Dialer
	pingInterval time.Duration
	minBackoff   time.Duration
	maxBackoff   time.Duration
	onState      func(State)

	state   atomic.Int32
	nextID  atomic.Uint64
	started atomic.Bool

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[uint64]chan PostResponse
	lastErr error

	writeMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:          url,
		log:          zap.NewNop(),
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pingInterval: 30 * time.Second,
		minBackoff:   500 * time.Millisecond,
		maxBackoff:   30 * time.Second,
		pending:      make(map[uint64]chan PostResponse),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Client) State() State { return State(c.state.Load()) }

// LastError is the reason for the most recent disconnect, or nil.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.log.Info("websocket state", zap.String("url", c.url), zap.Stringer("state", s))
	if c.onState != nil {
		c.onState(s)
	}
}

// Start runs the connect/serve/reconnect loop in the background until ctx
// is done or Close is called.
func (c *Client) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.run(ctx)
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateClosed)

	backoff := c.minBackoff
	for {
		c.setState(StateConnecting)
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if c.stopped(ctx) {
				return
			}
			c.closeWith(err)
			c.log.Warn("websocket dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !c.sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = c.minBackoff

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateOpen)

		err = c.serve(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.failPending()
		_ = conn.Close()

		if c.stopped(ctx) {
			return
		}
		c.closeWith(err)
		c.log.Warn("websocket disconnected", zap.Error(err), zap.Duration("retry_in", backoff))
		if !c.sleep(ctx, backoff) {
			return
		}
	}
}

// closeWith records why the connection is gone and enters Closed until the
// next dial starts.
func (c *Client) closeWith(err error) {
	c.recordError(err)
	c.setState(StateClosed)
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	serveDone := make(chan struct{})
	defer close(serveDone)

	go c.pingLoop(conn, serveDone)
	go func() {
		select {
		case <-ctx.Done():
		case <-c.stopCh:
		case <-serveDone:
			return
		}
		_ = conn.Close()
	}()

	// any inbound frame, including the pong to our ping, proves the peer is alive
	readTimeout := 2 * c.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var msg channelMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		c.log.Warn("websocket: undecodable message", zap.Error(err))
		return
	}

	switch msg.Channel {
	case "pong", "subscriptionResponse":
	case "post":
		var pd postData
		if err := sonic.Unmarshal(msg.Data, &pd); err != nil {
			c.log.Warn("websocket: bad post response", zap.Error(err))
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[pd.ID]
		delete(c.pending, pd.ID)
		c.mu.Unlock()
		if !ok {
			c.log.Debug("websocket: response for unknown id", zap.Uint64("id", pd.ID))
			return
		}
		ch <- pd.Response
	case "error":
		c.log.Warn("websocket error message", zap.ByteString("data", msg.Data))
	default:
		c.log.Debug("websocket: ignored channel", zap.String("channel", msg.Channel))
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(conn, pingMessage{Method: "ping"}); err != nil {
				c.log.Warn("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

// Post sends one request and waits for the matching response or ctx.
func (c *Client) Post(ctx context.Context, req PostRequest) (PostResponse, error) {
	id := c.nextID.Add(1)
	ch := make(chan PostResponse, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.State() != StateOpen {
		c.mu.Unlock()
		return PostResponse{}, ErrNotReady
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(conn, postMessage{Method: "post", ID: id, Request: req}); err != nil {
		return PostResponse{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return PostResponse{}, ErrConnectionLost
		}
		return resp, nil
	case <-ctx.Done():
		return PostResponse{}, ctx.Err()
	}
}

func (c *Client) write(conn *websocket.Conn, msg any) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) recordError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Client) stopped(ctx context.Context) bool {
	select {
	case <-c.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.stopCh:
		return false
	}
}

// Close stops the loop and waits for it to exit.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if c.started.Load() {
		<-c.done
	} else {
		c.setState(StateClosed)
	}
	return err
}
