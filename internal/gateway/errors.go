package gateway

import "errors"

// Domain errors for the device channel.
var (
	// ErrMalformedPayload is returned when an inbound payload is not valid
	// JSON or lacks a required field.
	ErrMalformedPayload = errors.New("gateway: malformed payload")

	// ErrUnknownTopic is returned when a message arrives on a topic the
	// channel does not handle.
	ErrUnknownTopic = errors.New("gateway: unknown topic")

	// ErrInvalidMessage is returned by SendSMS for an empty recipient or
	// content.
	ErrInvalidMessage = errors.New("gateway: invalid outgoing message")

	// ErrClosed is returned when the channel has been closed.
	ErrClosed = errors.New("gateway: channel closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("gateway: channel already started")
)
