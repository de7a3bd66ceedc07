package solana

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrClientClosed is returned by operations on a closed WSClient.
var ErrClientClosed = errors.New("websocket client closed")

// WSConfig configures WebSocket client behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential reconnect backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// BufferSize is the capacity of each notification channel.
	BufferSize int

	Logger zerolog.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		BufferSize:        1024,
		Logger:            zerolog.Nop(),
	}
}

// wsSubscription is a caller-visible subscription that survives reconnects.
// Its server-side id changes every time it is re-established.
type wsSubscription struct {
	filter LogsFilter
	ch     chan LogNotification
	ack    chan wsAck
}

type wsAck struct {
	id  int64
	err error
}

// WSClient implements LogsSubscriber using gorilla/websocket.
type WSClient struct {
	endpoint string
	cfg      WSConfig
	log      zerolog.Logger

	// mu guards conn and all writes to it.
	mu   sync.Mutex
	conn *websocket.Conn

	subsMu  sync.Mutex
	subs    []*wsSubscription
	pending map[uint64]*wsSubscription
	active  map[int64]*wsSubscription

	requestID atomic.Uint64
	closed    atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, cfg *WSConfig) (*WSClient, error) {
	c := &WSClient{
		endpoint: endpoint,
		cfg:      DefaultWSConfig(),
		pending:  make(map[uint64]*wsSubscription),
		active:   make(map[int64]*wsSubscription),
		done:     make(chan struct{}),
	}
	if cfg != nil {
		c.cfg = *cfg
	}
	if c.cfg.BufferSize <= 0 {
		c.cfg.BufferSize = 1
	}
	c.log = c.cfg.Logger.With().Str("component", "ws").Logger()

	if err := c.dial(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClient) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		_ = conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	return nil
}

// SubscribeLogs subscribes to transaction logs matching the filter and waits
// for the server to confirm the subscription.
func (c *WSClient) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	sub := &wsSubscription{
		filter: filter,
		ch:     make(chan LogNotification, c.cfg.BufferSize),
		ack:    make(chan wsAck, 1),
	}

	reqID, err := c.sendSubscribe(sub)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.cfg.SubscribeTimeout)
	defer timer.Stop()

	select {
	case ack := <-sub.ack:
		if ack.err != nil {
			return nil, fmt.Errorf("logsSubscribe: %w", ack.err)
		}
	case <-timer.C:
		c.dropPending(reqID)
		return nil, fmt.Errorf("logsSubscribe: no confirmation after %s", c.cfg.SubscribeTimeout)
	case <-ctx.Done():
		c.dropPending(reqID)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClientClosed
	}

	c.subsMu.Lock()
	c.subs = append(c.subs, sub)
	c.subsMu.Unlock()

	c.log.Debug().Strs("mentions", filter.Mentions).Msg("logs subscription established")
	return sub.ch, nil
}

// sendSubscribe registers sub as pending and writes a logsSubscribe request.
func (c *WSClient) sendSubscribe(sub *wsSubscription) (uint64, error) {
	reqID := c.requestID.Add(1)

	mentions := map[string]interface{}{"mentions": sub.filter.Mentions}
	if len(sub.filter.Mentions) == 0 {
		mentions = map[string]interface{}{"all": nil}
	}
	commitment := sub.filter.Commitment
	if commitment == "" {
		commitment = CommitmentConfirmed
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentions,
			map[string]string{"commitment": commitment},
		},
	}

	c.subsMu.Lock()
	c.pending[reqID] = sub
	c.subsMu.Unlock()

	if err := c.writeJSON(req); err != nil {
		c.dropPending(reqID)
		return 0, fmt.Errorf("write subscribe: %w", err)
	}
	return reqID, nil
}

func (c *WSClient) writeJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *WSClient) dropPending(reqID uint64) {
	c.subsMu.Lock()
	delete(c.pending, reqID)
	c.subsMu.Unlock()
}

// Close closes the WebSocket connection and all subscription channels.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for _, sub := range c.subs {
		close(sub.ch)
	}
	c.subs = nil
	c.pending = make(map[uint64]*wsSubscription)
	c.active = make(map[int64]*wsSubscription)
	c.subsMu.Unlock()

	return nil
}

// readLoop is the only reader of the connection. On read failure it
// reconnects with exponential backoff and re-establishes every subscription.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	delay := c.cfg.ReconnectDelay
	for !c.closed.Load() {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
			_, message, err := conn.ReadMessage()
			if err == nil {
				delay = c.cfg.ReconnectDelay
				c.handleMessage(message)
				continue
			}
			if c.closed.Load() {
				return
			}
			c.log.Warn().Err(err).Msg("websocket read failed, reconnecting")
		}

		if !c.sleep(delay) {
			return
		}
		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}

		if err := c.reconnect(); err != nil {
			c.log.Warn().Err(err).Dur("next_attempt", delay).Msg("websocket reconnect failed")
			continue
		}
		c.log.Info().Msg("websocket reconnected")
	}
}

func (c *WSClient) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.done:
		return false
	case <-t.C:
		return true
	}
}

func (c *WSClient) reconnect() error {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.dial(ctx); err != nil {
		return err
	}

	c.subsMu.Lock()
	subs := append([]*wsSubscription(nil), c.subs...)
	c.active = make(map[int64]*wsSubscription)
	c.subsMu.Unlock()

	for _, sub := range subs {
		if _, err := c.sendSubscribe(sub); err != nil {
			return fmt.Errorf("resubscribe: %w", err)
		}
	}
	return nil
}

// handleMessage dispatches subscription confirmations and notifications.
func (c *WSClient) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.log.Debug().Err(err).Msg("ignoring undecodable websocket message")
		return
	}

	switch {
	case msg.ID != nil:
		c.handleResponse(*msg.ID, &msg)
	case msg.Method == "logsNotification" && msg.Params != nil:
		c.handleLogsNotification(msg.Params)
	}
}

func (c *WSClient) handleResponse(reqID uint64, msg *wsMessage) {
	c.subsMu.Lock()
	sub, ok := c.pending[reqID]
	delete(c.pending, reqID)

	var ack wsAck
	if ok {
		switch {
		case msg.Error != nil:
			ack.err = msg.Error
		default:
			if err := json.Unmarshal(msg.Result, &ack.id); err != nil {
				ack.err = fmt.Errorf("decode subscription id: %w", err)
			} else {
				c.active[ack.id] = sub
			}
		}
	}
	c.subsMu.Unlock()

	if !ok {
		return
	}
	if ack.err != nil {
		c.log.Warn().Err(ack.err).Uint64("request_id", reqID).Msg("subscription rejected")
	}
	select {
	case sub.ack <- ack:
	default:
	}
}

// handleLogsNotification delivers a notification, blocking until the
// subscriber has room or the client closes.
func (c *WSClient) handleLogsNotification(params *wsNotificationParams) {
	c.subsMu.Lock()
	sub, ok := c.active[params.Subscription]
	c.subsMu.Unlock()
	if !ok {
		return
	}

	notif := LogNotification{
		Signature: params.Result.Value.Signature,
		Logs:      params.Result.Value.Logs,
		Err:       params.Result.Value.Err,
	}
	if params.Result.Context != nil {
		notif.Slot = params.Result.Context.Slot
	}

	select {
	case sub.ch <- notif:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			}
			c.mu.Unlock()
		}
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsMessage is the union of responses and notifications.
type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      *uint64               `json:"id,omitempty"`
	Result  json.RawMessage       `json:"result,omitempty"`
	Error   *RPCError             `json:"error,omitempty"`
	Method  string                `json:"method,omitempty"`
	Params  *wsNotificationParams `json:"params,omitempty"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}

var _ LogsSubscriber = (*WSClient)(nil)
