package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"market_maker/internal/core"
	"market_maker/pkg/telemetry"
	"market_maker/pkg/websocket"
)

// ConnState is the per-connection lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateOpen
	StateSubscribed
	StateDegraded
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateDegraded:
		return "DEGRADED"
	default:
		return "UNKNOWN"
	}
}

// Connection owns one category's public WebSocket: subscription bookkeeping,
// topic-prefix routing into the shared FusionStore, the inactivity watchdog,
// and the heartbeat log line.
type Connection struct {
	category core.Category
	symbols  []string
	store    *FusionStore
	logger   core.ILogger
	metrics  *telemetry.MetricsHolder
	watchdog time.Duration
	now      func() time.Time

	ws *websocket.Client

	mu               sync.Mutex
	state            ConnState
	topicLastMessage map[string]time.Time
	subscribedTopics map[string]bool

	reqSeq   int64
	msgCount int64
}

// NewConnection builds a Connection for category against url, pre-seeded
// with the universe it subscribes to on connect. watchdogThreshold <= 0
// disables the inactivity watchdog.
func NewConnection(category core.Category, url string, symbols []string, store *FusionStore, logger core.ILogger, metrics *telemetry.MetricsHolder, watchdogThreshold time.Duration) *Connection {
	c := &Connection{
		category:         category,
		symbols:          symbols,
		store:            store,
		logger:           logger.WithField("category", string(category)),
		metrics:          metrics,
		watchdog:         watchdogThreshold,
		now:              time.Now,
		topicLastMessage: make(map[string]time.Time),
		subscribedTopics: make(map[string]bool),
	}
	c.ws = websocket.NewClient(url, c.handleMessage, c.logger)
	c.ws.SetOnConnected(c.onConnected)
	return c
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens the connection and begins the watchdog/heartbeat background
// tasks, tied to ctx.
func (c *Connection) Start(ctx context.Context) {
	c.setState(StateConnecting)
	c.ws.Start()
	go c.runWatchdog(ctx)
	go c.runHeartbeat(ctx)
}

// Stop closes the connection and stops its background tasks.
func (c *Connection) Stop() {
	c.ws.Stop()
	c.setState(StateDisconnected)
}

func (c *Connection) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) onConnected() {
	c.setState(StateOpen)

	topics := subscriptionTopics(c.symbols)
	if len(topics) == 0 {
		c.setState(StateSubscribed)
		return
	}

	reqID := parseNextReqID(atomic.AddInt64(&c.reqSeq, 1))
	if err := c.ws.Send(formatSubscribeFrame(reqID, topics)); err != nil {
		c.logger.Error("failed to send initial subscription", "error", err)
		c.setState(StateDegraded)
		return
	}

	c.mu.Lock()
	for _, t := range topics {
		c.subscribedTopics[t] = true
	}
	c.mu.Unlock()

	c.logger.Info("[WS SUBSCRIBE]", "topics", len(topics), "req_id", reqID)
	c.setState(StateSubscribed)
}

// SubscribeTurbo sends an incremental subscribe frame for symbol's three
// topics on an OPEN/SUBSCRIBED connection. It fails fast without retrying;
// the caller (turbo's activation path) owns the retry policy.
func (c *Connection) SubscribeTurbo(symbol string) error {
	state := c.State()
	if state != StateOpen && state != StateSubscribed {
		return fmt.Errorf("stream: no suitable connection for %s (state=%s)", symbol, state)
	}

	topics := subscriptionTopics([]string{symbol})
	reqID := parseNextReqID(atomic.AddInt64(&c.reqSeq, 1))
	if err := c.ws.Send(formatSubscribeFrame(reqID, topics)); err != nil {
		return fmt.Errorf("stream: subscribe %s: %w", symbol, err)
	}

	c.mu.Lock()
	for _, t := range topics {
		c.subscribedTopics[t] = true
	}
	c.mu.Unlock()
	c.logger.Info("[WS SUBSCRIBE]", "symbol", symbol, "topics", len(topics), "req_id", reqID)
	return nil
}

func (c *Connection) handleMessage(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return
	}

	if f.isSubscriptionResponse() {
		c.handleSubscriptionResponse(f)
		return
	}
	if f.Topic == "" {
		return
	}

	now := c.now()
	c.mu.Lock()
	c.topicLastMessage[f.Topic] = now
	c.mu.Unlock()
	atomic.AddInt64(&c.msgCount, 1)
	if c.metrics != nil {
		c.metrics.RecordWSMessage(context.Background(), string(c.category))
	}

	switch topicPrefix(f.Topic) {
	case "tickers":
		if t := parseTickerPayload(c.category, f.Data, now); t != nil {
			c.store.Merge(t)
		}
	case "publicTrade", "orderbook":
		symbol := topicSymbol(f.Topic)
		if symbol != "" {
			c.store.MarkStreamData(symbol, c.category)
		}
	}
}

func (c *Connection) handleSubscriptionResponse(f frame) {
	if f.Success != nil && !*f.Success {
		c.logger.Warn("subscription rejected", "ret_msg", f.RetMsg, "req_id", f.ReqID)
	}
}

// runWatchdog scans per-topic last-message timestamps and logs a warning for
// any topic silent beyond the configured threshold. It never reconnects on its own.
func (c *Connection) runWatchdog(ctx context.Context) {
	if c.watchdog <= 0 {
		return
	}
	ticker := time.NewTicker(c.watchdog)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := c.now()
			c.mu.Lock()
			for topic, last := range c.topicLastMessage {
				if now.Sub(last) > c.watchdog {
					c.logger.Warn("stream topic inactive", "topic", topic, "silent_for", now.Sub(last).String())
				}
			}
			c.mu.Unlock()
		}
	}
}

// runHeartbeat emits "N messages in last T seconds" at a fixed 10s cadence,
// resetting the counter after each emission.
func (c *Connection) runHeartbeat(ctx context.Context) {
	const interval = 10 * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := atomic.SwapInt64(&c.msgCount, 0)
			c.logger.Info("stream heartbeat", "messages", n, "window", interval.String())
		}
	}
}
