package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/airrelay/internal/infrastructure/mqtt"
)

// deviceQoS is used for every device topic: at least once.
const deviceQoS = 1

// Drop reasons reported in metrics and logs.
const (
	dropMalformed    = "malformed"
	dropUnknownTopic = "unknown_topic"
	dropClosed       = "closed"
)

// Transport is the broker connection the channel runs on.
// Satisfied by *mqtt.Client.
type Transport interface {
	// Subscribe registers a handler for a topic; it is re-applied on every
	// reconnect.
	Subscribe(ctx context.Context, topic string, qos byte, handler mqtt.MessageHandler) error

	// Publish sends a message and waits for the broker acknowledgement.
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
}

// Handler receives decoded inbound messages.
//
// Each call runs on its own goroutine; calls for different messages may
// run concurrently and in any order.
type Handler interface {
	HandleIncomingSMS(ctx context.Context, msg IncomingSMS)
	HandleSMSStatus(ctx context.Context, status SMSStatus)
	HandleDeviceStatus(ctx context.Context, status DeviceStatus)
}

// Logger defines the logging interface used by the channel.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option configures a Channel.
type Option func(*Channel) error

// WithMetrics exports message counters through reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Channel) error {
		if reg == nil {
			return nil
		}
		m, err := newChannelMetrics(reg)
		if err != nil {
			return err
		}
		c.metrics = m
		return nil
	}
}

// Channel decodes device traffic arriving over the broker, dispatches it to
// a Handler and publishes outbound SMS requests.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Channel struct {
	transport Transport
	handler   Handler
	metrics   *channelMetrics
	newID     func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a channel. Call Start before connecting the transport so the
// inbound subscriptions are part of the first connection.
func New(transport Transport, handler Handler, opts ...Option) (*Channel, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		transport: transport,
		handler:   handler,
		newID:     func() string { return uuid.New().String() },
		ctx:       ctx,
		cancel:    cancel,
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			cancel()
			return nil, err
		}
	}
	return c, nil
}

// SetLogger sets the logger for the channel.
func (c *Channel) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Channel) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// Start registers the inbound subscriptions on the transport.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.started:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	for _, topic := range (mqtt.Topics{}).Inbound() {
		if err := c.transport.Subscribe(ctx, topic, deviceQoS, c.receive); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	return nil
}

// receive is the transport callback. It never returns an error: bad
// payloads are logged and dropped here so one message cannot disturb the
// subscription.
func (c *Channel) receive(topic string, payload []byte) error {
	env, err := Decode(topic, payload)
	if err != nil {
		reason := dropMalformed
		if errors.Is(err, ErrUnknownTopic) {
			reason = dropUnknownTopic
		}
		c.metrics.incDropped(reason)
		c.getLogger().Warn("dropping device message",
			"topic", topic,
			"reason", reason,
			"error", err,
		)
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.metrics.incDropped(dropClosed)
		return nil
	}
	c.wg.Add(1)
	c.mu.Unlock()

	c.metrics.incReceived(env.Kind())
	c.metrics.addInFlight(1)
	go c.dispatch(env)
	return nil
}

// dispatch runs one message through the handler.
func (c *Channel) dispatch(env Envelope) {
	defer c.wg.Done()
	defer c.metrics.addInFlight(-1)
	defer func() {
		if r := recover(); r != nil {
			c.getLogger().Error("device message handler panic recovered",
				"kind", env.Kind().String(),
				"panic", r,
			)
		}
	}()

	switch msg := env.(type) {
	case IncomingSMS:
		c.handler.HandleIncomingSMS(c.ctx, msg)
	case SMSStatus:
		c.handler.HandleSMSStatus(c.ctx, msg)
	case DeviceStatus:
		c.handler.HandleDeviceStatus(c.ctx, msg)
	}
}

// SendSMS publishes an outbound SMS request for the device and returns the
// correlation id once the broker has acknowledged it.
//
// Delivery is reported later on sms/status. When the transport is not
// Connected the error wraps mqtt.ErrNotConnected.
func (c *Channel) SendSMS(ctx context.Context, imei, recipient, content string) (string, error) {
	if recipient == "" || content == "" {
		return "", fmt.Errorf("%w: recipient and content are required", ErrInvalidMessage)
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return "", ErrClosed
	}

	topic, err := mqtt.Topics{}.SMSOutgoing(imei)
	if err != nil {
		return "", fmt.Errorf("%w: imei: %w", ErrInvalidMessage, err)
	}

	out := OutgoingSMS{
		Recipient: recipient,
		Content:   content,
		MessageID: c.newID(),
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encoding outgoing sms: %w", err)
	}

	if err := c.transport.Publish(ctx, topic, payload, deviceQoS, false); err != nil {
		c.metrics.incSent("error")
		return "", fmt.Errorf("sending sms via %s: %w", imei, err)
	}

	c.metrics.incSent("ok")
	c.getLogger().Info("sms queued for device",
		"imei", imei,
		"message_id", out.MessageID,
	)
	return out.MessageID, nil
}

// Close stops dispatching new messages and waits for in-flight handlers.
// The handler context is cancelled first.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}
