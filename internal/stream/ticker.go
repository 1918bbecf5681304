package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ChannelRealtime marks ticks that arrived over the live websocket, as
// opposed to cached or replayed prices. The safety gate only trusts
// realtime-channel ticks.
const ChannelRealtime = "realtime"

// Tick is one last-traded-price update from the realtime channel.
type Tick struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Channel    string    `json:"channel"`
	ReceivedAt time.Time `json:"received_at"`
}

// tickMessage is the wire format of the upstream ticker feed.
type tickMessage struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// subscribeMessage is the wire format for (un)subscribing a symbol.
type subscribeMessage struct {
	Action string `json:"action"` // subscribe | unsubscribe
	Symbol string `json:"symbol"`
}

// TickerClient maintains a websocket connection to the realtime price feed
// and caches the last tick per subscribed symbol. Reads are lock-cheap so the
// safety gate can consult it on every decision.
type TickerClient struct {
	url string

	mu     sync.RWMutex
	conn   *websocket.Conn
	ticks  map[string]Tick
	subs   map[string]bool
	closed bool

	reconnectWait time.Duration
	now           func() time.Time
}

// NewTickerClient creates a client for the given websocket endpoint. Connect
// must be called before ticks flow.
func NewTickerClient(url string) *TickerClient {
	return &TickerClient{
		url:           url,
		ticks:         make(map[string]Tick),
		subs:          make(map[string]bool),
		reconnectWait: 2 * time.Second,
		now:           time.Now,
	}
}

// Connect dials the feed and starts the read loop. The loop reconnects with
// a fixed wait on read errors until Close is called.
func (c *TickerClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial ticker feed %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(ctx)

	log.Info().Str("url", c.url).Msg("ticker feed connected")
	return nil
}

// Subscribe registers a symbol on the realtime channel.
func (c *TickerClient) Subscribe(symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("ticker feed not connected")
	}
	msg := subscribeMessage{Action: "subscribe", Symbol: symbol}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}
	c.subs[symbol] = true
	return nil
}

// Unsubscribe removes a symbol from the realtime channel.
func (c *TickerClient) Unsubscribe(symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("ticker feed not connected")
	}
	msg := subscribeMessage{Action: "unsubscribe", Symbol: symbol}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", symbol, err)
	}
	delete(c.subs, symbol)
	return nil
}

// LastTick returns the most recent tick for a symbol, if any.
func (c *TickerClient) LastTick(symbol string) (Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tick, ok := c.ticks[symbol]
	return tick, ok
}

// IsSubscribed reports whether the symbol is active on the realtime channel.
func (c *TickerClient) IsSubscribed(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[symbol]
}

// Close shuts the connection down and stops the read loop.
func (c *TickerClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *TickerClient) readLoop(ctx context.Context) {
	for {
		c.mu.RLock()
		conn := c.conn
		closed := c.closed
		c.mu.RUnlock()

		if closed || conn == nil {
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			log.Warn().Err(err).Dur("wait", c.reconnectWait).Msg("ticker feed read failed, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.reconnectWait):
			}
			if err := c.reconnect(ctx); err != nil {
				log.Warn().Err(err).Msg("ticker feed reconnect failed")
			}
			continue
		}

		var msg tickMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Debug().Err(err).Msg("discarding malformed tick")
			continue
		}
		c.record(msg)
	}
}

// record stores a tick under the realtime channel tag.
func (c *TickerClient) record(msg tickMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks[msg.Symbol] = Tick{
		Symbol:     msg.Symbol,
		Price:      msg.Price,
		Channel:    ChannelRealtime,
		ReceivedAt: c.now(),
	}
}

func (c *TickerClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *TickerClient) reconnect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	subs := make([]string, 0, len(c.subs))
	for symbol := range c.subs {
		subs = append(subs, symbol)
	}
	c.mu.Unlock()

	// Re-establish the subscription set on the fresh connection.
	for _, symbol := range subs {
		if err := c.Subscribe(symbol); err != nil {
			log.Warn().Str("symbol", symbol).Err(err).Msg("resubscribe failed")
		}
	}
	return nil
}
