package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/teslashibe/go-framestream/pkg/metrics"
	"github.com/teslashibe/go-framestream/pkg/protocol"
)

// maxMessageSize bounds inbound messages; processed frames are base64 JPEGs.
const maxMessageSize = 16 << 20

// Config configures a Client.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration // 0 disables keepalive pings
	LatencyPings     bool          // also send protocol pings to measure round trip
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	AckTimeout       time.Duration
	RequireAck       bool // Send waits for the server's ack
	BreakerFailures  uint32
	BreakerCooldown  time.Duration
}

// DefaultConfig returns defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     25 * time.Second,
		ReconnectMin:     500 * time.Millisecond,
		ReconnectMax:     10 * time.Second,
		AckTimeout:       5 * time.Second,
		BreakerFailures:  5,
		BreakerCooldown:  15 * time.Second,
	}
}

// Stats is a point-in-time view of the client.
type Stats struct {
	URL            string    `json:"url"`
	Connected      bool      `json:"connected"`
	ConnectedSince time.Time `json:"connected_since,omitempty"`
	Sent           uint64    `json:"sent"`
	Received       uint64    `json:"received"`
	Reconnects     uint64    `json:"reconnects"`
	PendingAcks    int       `json:"pending_acks"`
	PingRTTMs      int64     `json:"ping_rtt_ms"`
	Pongs          uint64    `json:"pongs"`
	Breaker        string    `json:"breaker"`
	Subscribers    int       `json:"subscribers"`
}

// Client is a websocket Channel that reconnects until its context ends.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	dialer  *websocket.Dialer
	breaker *gobreaker.CircuitBreaker[*websocket.Conn]
	events  *fanout

	mu             sync.Mutex
	conn           *websocket.Conn
	connectedSince time.Time

	writeMu sync.Mutex

	acksMu sync.Mutex
	acks   map[string]chan error

	connected  atomic.Bool
	sent       atomic.Uint64
	received   atomic.Uint64
	reconnects atomic.Uint64
	pongs      atomic.Uint64
	pingRTT    atomic.Int64
}

// NewClient creates a client. Call Run to connect.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	def := DefaultConfig(cfg.URL)
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = def.ReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = def.AckTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		logger: logger.With("component", "channel.client"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		events: newFanout(),
		acks:   make(map[string]chan error),
	}
	c.breaker = gobreaker.NewCircuitBreaker[*websocket.Conn](gobreaker.Settings{
		Name:        "channel-dial",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.RecordBreakerTransition(name, from.String(), to.String(), stateToFloat(to))
		},
	})
	return c
}

// Endpoint implements Channel.
func (c *Client) Endpoint() string {
	return c.cfg.URL
}

// Connected implements Channel.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Subscribe implements Channel.
func (c *Client) Subscribe(buffer int) (<-chan Event, func()) {
	return c.events.subscribe(buffer)
}

// Run connects and keeps the channel up until ctx is canceled.
// Dial failures back off exponentially between ReconnectMin and ReconnectMax.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectMin
	bo.MaxInterval = c.cfg.ReconnectMax
	bo.MaxElapsedTime = 0 // retry forever
	bo.Reset()

	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.breaker.Execute(func() (*websocket.Conn, error) {
			conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
			return conn, err
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := bo.NextBackOff()
			c.logger.Warn("dial failed",
				"url", c.cfg.URL,
				"error", err,
				"retry_in", wait,
			)
			c.events.publish(ctx, Event{Kind: EventError, Err: fmt.Errorf("channel: dial: %w", err), Time: time.Now()})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		bo.Reset()
		if !first {
			c.reconnects.Add(1)
			metrics.ChannelReconnects.Inc()
		}
		first = false

		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("channel disconnected", "error", err)
	}
}

// serve owns one connection until it fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.connectedSince = time.Now()
	c.mu.Unlock()
	c.connected.Store(true)
	metrics.SetChannelConnected(true)

	c.logger.Info("channel connected", "url", c.cfg.URL)
	c.events.publish(ctx, Event{Kind: EventConnect, Time: time.Now()})

	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-connCtx.Done()
		conn.Close()
	}()
	if c.cfg.PingInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.keepAlive(connCtx, conn)
		}()
	}

	err := c.readLoop(ctx, conn)

	c.connected.Store(false)
	metrics.SetChannelConnected(false)
	c.mu.Lock()
	c.conn = nil
	c.connectedSince = time.Time{}
	c.mu.Unlock()
	cancel()
	wg.Wait()

	c.failPendingAcks(ErrNotConnected)
	c.events.publish(ctx, Event{Kind: EventDisconnect, Err: err, Time: time.Now()})
	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	extend := func() {
		if c.cfg.PingInterval > 0 {
			conn.SetReadDeadline(time.Now().Add(2*c.cfg.PingInterval + c.cfg.WriteTimeout))
		}
	}
	extend()
	conn.SetPongHandler(func(string) error {
		c.pongs.Add(1)
		extend()
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		extend()
		c.received.Add(1)

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			c.logger.Warn("invalid message", "error", err)
			c.events.publish(ctx, Event{Kind: EventError, Err: err, Time: time.Now()})
			continue
		}
		metrics.RecordChannelMessage("in", string(msg.Type))
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeAck:
		ack, err := msg.GetAckData()
		if err != nil {
			c.logger.Warn("invalid ack", "error", err)
			return
		}
		var ackErr error
		if ack.Error != "" {
			ackErr = &AckError{ID: ack.ID, Message: ack.Error}
		}
		c.resolveAck(ack.ID, ackErr)

	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return
		}
		pong, err := protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli())
		if err == nil {
			_ = c.write(pong)
		}

	case protocol.TypePong:
		pong, err := msg.GetPongData()
		if err != nil {
			return
		}
		rtt := time.Now().UnixMilli() - pong.PingTS
		c.pingRTT.Store(rtt)
		metrics.ChannelLatency.Set(float64(rtt) / 1000)

	default:
		c.events.publish(ctx, Event{Kind: EventMessage, Message: msg, Time: time.Now()})
	}
}

// keepAlive sends websocket pings; the peer's pong refreshes the read
// deadline. With LatencyPings it also sends protocol pings, which only
// servers that implement them answer.
func (c *Client) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}
			if !c.cfg.LatencyPings {
				continue
			}
			ping, err := protocol.NewPingMessage(fmt.Sprintf("ping-%d", time.Now().UnixNano()))
			if err != nil {
				continue
			}
			if err := c.write(ping); err != nil {
				c.logger.Debug("latency ping failed", "error", err)
				return
			}
		}
	}
}

// Send implements Channel. With RequireAck it waits for the server's ack.
func (c *Client) Send(ctx context.Context, msg *protocol.Message) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	var ack chan error
	if c.cfg.RequireAck && msg.ID != "" {
		ack = make(chan error, 1)
		c.acksMu.Lock()
		c.acks[msg.ID] = ack
		c.acksMu.Unlock()
		defer c.dropAck(msg.ID)
	}

	if err := c.write(msg); err != nil {
		return err
	}
	c.sent.Add(1)
	metrics.RecordChannelMessage("out", string(msg.Type))

	if ack == nil {
		return nil
	}

	timer := time.NewTimer(c.cfg.AckTimeout)
	defer timer.Stop()
	select {
	case err := <-ack:
		return err
	case <-timer.C:
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) write(msg *protocol.Message) error {
	b, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("channel: encode: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("channel: write: %w", err)
	}
	return nil
}

func (c *Client) resolveAck(id string, err error) {
	c.acksMu.Lock()
	ch, ok := c.acks[id]
	delete(c.acks, id)
	c.acksMu.Unlock()
	if ok {
		ch <- err
	}
}

func (c *Client) dropAck(id string) {
	c.acksMu.Lock()
	delete(c.acks, id)
	c.acksMu.Unlock()
}

func (c *Client) failPendingAcks(err error) {
	c.acksMu.Lock()
	defer c.acksMu.Unlock()
	for id, ch := range c.acks {
		ch <- err
		delete(c.acks, id)
	}
}

// Stats returns current counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	since := c.connectedSince
	c.mu.Unlock()
	c.acksMu.Lock()
	pending := len(c.acks)
	c.acksMu.Unlock()

	return Stats{
		URL:            c.cfg.URL,
		Connected:      c.connected.Load(),
		ConnectedSince: since,
		Sent:           c.sent.Load(),
		Received:       c.received.Load(),
		Reconnects:     c.reconnects.Load(),
		PendingAcks:    pending,
		PingRTTMs:      c.pingRTT.Load(),
		Pongs:          c.pongs.Load(),
		Breaker:        c.breaker.State().String(),
		Subscribers:    c.events.len(),
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// IsTransient reports whether err is a per-message failure that leaves the
// channel usable.
func IsTransient(err error) bool {
	var ackErr *AckError
	return errors.Is(err, ErrAckTimeout) || errors.As(err, &ackErr)
}
