package live

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionUnavailable is returned when an operation needs a connected session
	ErrSessionUnavailable = errors.New("live session unavailable")
	// ErrTurnTimeout is returned when the model never signals turn completion
	ErrTurnTimeout = errors.New("live turn timed out")
	// ErrSessionBusy is returned when Connect races another Connect
	ErrSessionBusy = errors.New("live session is connecting")
	// ErrQueueClosed is returned by FrameQueue.Next once the queue is closed
	ErrQueueClosed = errors.New("frame queue closed")
)

// TransportError wraps a failure of the underlying live transport
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("live transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a *TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
