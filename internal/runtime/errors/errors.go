// Package errors defines the error taxonomy shared by the nsqlink runtime:
// sentinel errors for simple preconditions plus typed errors that carry the
// broker address, operation, or broker-supplied reason.
package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrTopicRequired    = sterrors.New("nsqlink: topic is required")
	ErrMessageRequired  = sterrors.New("nsqlink: message body is required")
	ErrNoMessages       = sterrors.New("nsqlink: batch publish requires at least one message")
	ErrPublisherStopped = sterrors.New("nsqlink: publisher is stopped")
	ErrPoolStopped      = sterrors.New("nsqlink: worker pool is stopped")
	ErrPoolSaturated    = sterrors.New("nsqlink: worker pool queue is full")
	ErrSchedulerStopped = sterrors.New("nsqlink: scheduler is stopped")
	ErrConnClosed       = sterrors.New("nsqlink: connection is closed")
	ErrAckTimeout       = sterrors.New("nsqlink: timed out waiting for acknowledgement")
)

// ConnectionError reports a failure to establish a connection to a broker.
// Establishment is not retried by the runtime; retry policy belongs to the
// publisher or subscriber that owns the connection.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("nsqlink: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports an error frame returned by the broker, or a response
// the client cannot interpret as an acknowledgement.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "nsqlink: protocol error: " + e.Reason
}

// IOError reports a transport failure in the middle of a request cycle.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("nsqlink: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// StateError reports illegal lifecycle usage, such as replacing a worker pool
// that has already been created. It signals a bug in the embedding
// application, not a runtime condition worth retrying.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("nsqlink: %s: %s", e.Op, e.Reason)
}
