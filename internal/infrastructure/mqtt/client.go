package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/airrelay/internal/infrastructure/config"
)

// State is the connection state of a Client.
type State int

// Connection states. A client moves Disconnected → Connecting → Connected,
// then on connection loss Reconnecting → Connecting → Connected again.
// Close moves any state straight to Disconnected.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on paho's router goroutine and must return quickly; hand
// slow work to another goroutine.
type MessageHandler func(topic string, payload []byte) error

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Client maintains one logical broker connection.
//
// Subscriptions registered with Subscribe are (re)applied on every
// connection, and the client reports Connected only once the broker has
// acknowledged all of them. When the connection drops the client retries
// at a fixed interval until it succeeds or Close is called.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	cfg               config.MQTTConfig
	reconnectInterval time.Duration

	// newPaho builds the underlying paho client. Tests replace it.
	newPaho func(*pahomqtt.ClientOptions) pahomqtt.Client

	mu            sync.Mutex
	client        pahomqtt.Client
	state         State
	closed        bool
	subscriptions map[string]subscription

	// lostDuringAttempt records a connection-lost callback that fired while
	// an attempt was still Connecting.
	lostDuringAttempt bool

	cancel  context.CancelFunc
	loopCtx context.Context
	wg      sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a client in the Disconnected state. Register subscriptions,
// then call Connect.
func New(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:               cfg,
		reconnectInterval: cfg.ReconnectInterval(),
		newPaho:           pahomqtt.NewClient,
		state:             StateDisconnected,
		subscriptions:     make(map[string]subscription),
	}
}

// Connect performs the first connection attempt: connect, subscribe to
// every registered topic, then publish online presence.
//
// A failed first attempt is returned to the caller and leaves the client
// Disconnected; only losses after a successful Connect trigger the
// background reconnect loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.client != nil && !c.closed {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}

	opts := buildClientOptions(c.cfg)
	configureLWT(opts, c.cfg.Broker.ClientID)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = c.newPaho(opts)
	c.closed = false
	c.loopCtx, c.cancel = context.WithCancel(context.Background())
	c.beginAttemptLocked()
	c.mu.Unlock()

	err := c.connectOnce(ctx)

	c.mu.Lock()
	if err == nil {
		err = c.finishAttemptLocked()
	}
	if err != nil || c.closed {
		closedDuringConnect := c.closed && err == nil
		c.cancel()
		c.closed = true
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		if closedDuringConnect {
			c.client.Disconnect(0)
			return ErrNotConnected
		}
		return err
	}
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.publishPresence("online", "")
	return nil
}

// beginAttemptLocked enters Connecting. Must be called with c.mu held.
func (c *Client) beginAttemptLocked() {
	c.lostDuringAttempt = false
	c.setStateLocked(StateConnecting)
}

// finishAttemptLocked reports a connection that dropped while subscriptions
// were being applied. Must be called with c.mu held.
func (c *Client) finishAttemptLocked() error {
	if c.lostDuringAttempt {
		c.lostDuringAttempt = false
		c.client.Disconnect(0)
		return fmt.Errorf("%w: connection lost while subscribing", ErrConnectionFailed)
	}
	return nil
}

// connectOnce opens the connection and subscribes to every registered
// topic, waiting for each acknowledgement.
func (c *Client) connectOnce(ctx context.Context) error {
	if err := waitToken(ctx, c.client.Connect(), defaultConnectTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	for _, sub := range c.snapshotSubscriptions() {
		if err := c.subscribeNow(ctx, sub); err != nil {
			c.client.Disconnect(0)
			return err
		}
	}
	return nil
}

func (c *Client) subscribeNow(ctx context.Context, sub subscription) error {
	token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	if err := waitToken(ctx, token, defaultAckTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, sub.topic, err)
	}
	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		for topic, code := range st.Result() {
			if code == subscribeFailureCode {
				return fmt.Errorf("%w: broker rejected %s", ErrSubscribeFailed, topic)
			}
		}
	}
	return nil
}

func (c *Client) snapshotSubscriptions() []subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := make([]subscription, 0, len(c.subscriptions))
	for _, s := range c.subscriptions {
		subs = append(subs, s)
	}
	return subs
}

// handleConnectionLost is paho's connection-lost callback.
func (c *Client) handleConnectionLost(err error) {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.lostDuringAttempt = true
		c.mu.Unlock()
		return
	}
	if c.closed || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateReconnecting)
	ctx := c.loopCtx
	c.wg.Add(1)
	c.mu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost, reconnecting",
			"error", err,
			"interval", c.reconnectInterval,
		)
	}
	go c.reconnectLoop(ctx)
}

// reconnectLoop retries at a fixed interval until a connection attempt
// succeeds or ctx is cancelled by Close.
func (c *Client) reconnectLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.reconnectInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.beginAttemptLocked()
		c.mu.Unlock()

		err := c.connectOnce(ctx)

		c.mu.Lock()
		if err == nil {
			err = c.finishAttemptLocked()
		}
		if c.closed {
			c.mu.Unlock()
			if err == nil {
				c.client.Disconnect(0)
			}
			return
		}
		if err != nil {
			c.setStateLocked(StateReconnecting)
			c.mu.Unlock()
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT reconnect attempt failed", "attempt", attempt, "error", err)
			}
			continue
		}
		c.setStateLocked(StateConnected)
		c.mu.Unlock()

		c.publishPresence("online", "")
		if logger := c.getLogger(); logger != nil {
			logger.Info("MQTT reconnected", "attempt", attempt)
		}
		return
	}
}

// setStateLocked must be called with c.mu held.
func (c *Client) setStateLocked(s State) {
	c.state = s
}

// publishPresence publishes retained bridge presence, best effort.
func (c *Client) publishPresence(status, reason string) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	token := client.Publish(TopicBridgeStatus, 1, true, presencePayload(status, c.cfg.Broker.ClientID, reason))
	if !token.WaitTimeout(defaultAckTimeout) || token.Error() != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT presence publish failed", "status", status, "error", token.Error())
		}
	}
}

// Close publishes graceful offline presence when connected, cancels any
// pending reconnect and disconnects. The client ends Disconnected.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.client == nil || c.closed {
		c.closed = true
		c.state = StateDisconnected
		c.mu.Unlock()
		return nil
	}
	wasConnected := c.state == StateConnected
	c.closed = true
	c.cancel()
	c.setStateLocked(StateDisconnected)
	client := c.client
	c.mu.Unlock()

	if wasConnected {
		c.publishPresence("offline", "graceful_shutdown")
	}

	c.wg.Wait()
	client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the client is in the Connected state.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// HealthCheck reports ErrNotConnected unless the client is Connected.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return fmt.Errorf("%w (state %s)", ErrNotConnected, c.State())
	}
	return nil
}

// SetLogger sets a logger for connection events and handler failures.
// If not set, they are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}

// waitToken waits for a paho token, the context, or the timeout, whichever
// comes first.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}
