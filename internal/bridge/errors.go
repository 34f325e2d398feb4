package bridge

import (
	"errors"
	"fmt"
)

// Domain errors for binding, authorization and relay.
//
// Rejections meant for the user are returned as *CommandError wrapping one
// of these, so callers can both test the class with errors.Is and show
// the message.
var (
	// ErrConflict is returned when a binding already exists for the other
	// side of the requested pair.
	ErrConflict = errors.New("bridge: binding conflict")

	// ErrNotBound is returned when the binding to act on does not exist.
	ErrNotBound = errors.New("bridge: not bound")

	// ErrMismatch is returned when a given identifier is bound, but not to
	// the calling group or topic.
	ErrMismatch = errors.New("bridge: binding mismatch")

	// ErrNoTopicContext is returned when a topic-scoped command runs
	// outside a topic.
	ErrNoTopicContext = errors.New("bridge: no topic context")

	// ErrUnauthorized is returned when a privileged command is invoked by a
	// non-admin while admins exist.
	ErrUnauthorized = errors.New("bridge: requires admin privileges")

	// ErrInvalidArgument is returned for missing or malformed command
	// arguments.
	ErrInvalidArgument = errors.New("bridge: invalid argument")

	// ErrTopicUnavailable is returned when the platform could not create a
	// topic for a phone.
	ErrTopicUnavailable = errors.New("bridge: topic could not be created")

	// ErrNoSender is returned when a reply arrives before an SMS sender is
	// configured.
	ErrNoSender = errors.New("bridge: no sms sender configured")
)

// CommandError is a rejection with a message suitable for the user.
type CommandError struct {
	Kind error
	Msg  string
}

func (e *CommandError) Error() string { return e.Kind.Error() + ": " + e.Msg }
func (e *CommandError) Unwrap() error { return e.Kind }

func reject(kind error, format string, args ...any) error {
	return &CommandError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
