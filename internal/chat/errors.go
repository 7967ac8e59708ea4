package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned by Submit when the message text is empty
	// after trimming whitespace.
	ErrInvalidInput = errors.New("message text is empty")

	// ErrUnknownModel is returned when a model identifier is not registered.
	// Registry implementations wrap this error so callers can match it with
	// errors.Is.
	ErrUnknownModel = errors.New("unknown model")

	// ErrConflict is returned when an operation is attempted in a session
	// state that does not permit it, e.g. Submit while a stream is in flight.
	ErrConflict = errors.New("operation conflicts with current session state")

	// ErrAlreadyIdle is a soft signal returned by Cancel when there is no
	// stream in progress. It is not a failure.
	ErrAlreadyIdle = errors.New("no stream in progress")
)

// StreamAbortedError reports a stream that failed mid-flight. Partial holds
// the content delivered before the failure; it stays in the transcript and
// is never discarded.
type StreamAbortedError struct {
	Partial string
	Cause   error
}

func (e *StreamAbortedError) Error() string {
	return fmt.Sprintf("stream aborted after %d bytes: %v", len(e.Partial), e.Cause)
}

func (e *StreamAbortedError) Unwrap() error {
	return e.Cause
}
