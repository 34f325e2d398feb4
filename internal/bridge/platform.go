package bridge

import (
	"context"
	"time"
)

// OutboundMessage is a chat message the bridge asks the platform to post.
//
// TopicID places the message in a topic; ReplyTo makes it a reply to an
// earlier message. Zero means unset for both.
type OutboundMessage struct {
	GroupID int64
	TopicID int64
	ReplyTo int64
	Text    string
}

// Platform is the chat platform the bridge relays to.
type Platform interface {
	// CreateTopic creates a topic in a group. ok is false when the platform
	// returned no topic id.
	CreateTopic(ctx context.Context, groupID int64, title string) (topicID int64, ok bool, err error)

	// SendMessage posts a message and returns its platform message id.
	SendMessage(ctx context.Context, msg OutboundMessage) (int64, error)

	// ResolveUser turns a user reference (numeric id or @username) into a
	// user id.
	ResolveUser(ctx context.Context, ref string) (int64, error)
}

// SMSSender queues an SMS on a device. Satisfied by *gateway.Channel.
type SMSSender interface {
	SendSMS(ctx context.Context, imei, recipient, content string) (messageID string, err error)
}

// Telemetry records relay events. Satisfied by *influxdb.Client.
type Telemetry interface {
	WriteDeviceStatus(imei, status string, signalStrength, batteryLevel int, at time.Time)
	WriteSMSEvent(imei, direction, result string)
}

type noopTelemetry struct{}

func (noopTelemetry) WriteDeviceStatus(string, string, int, int, time.Time) {}
func (noopTelemetry) WriteSMSEvent(string, string, string)                  {}

// Logger defines the logging interface used by the bridge.
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
