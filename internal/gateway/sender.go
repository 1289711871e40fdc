// Package gateway wraps the external push gateways and classifies their
// outcomes. Nothing above this package sees gateway specific errors.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"notify-delivery-backend/internal/model"
)

// PermanentSignature prefixes the stored error text of permanent failures.
// The endpoint cleanup job matches delivery logs on it.
const PermanentSignature = "destination no longer valid"

// Message is the content pushed to a device.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Link  string `json:"link,omitempty"`
}

// Sender delivers one message to one endpoint. It returns nil on success and
// a *SendError otherwise.
type Sender interface {
	Send(ctx context.Context, endpoint model.Endpoint, msg Message) error
}

// Kind classifies a send failure.
type Kind int

const (
	// Transient failures may succeed on retry.
	Transient Kind = iota
	// Permanent failures mean the destination will never accept a message
	// again without re-registration.
	Permanent
)

func (k Kind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// SendError is a classified send failure.
type SendError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *SendError) Error() string {
	if e.Kind == Permanent {
		return fmt.Sprintf("%s: %s", PermanentSignature, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// TransientError builds a retryable failure.
func TransientError(reason string, err error) *SendError {
	return &SendError{Kind: Transient, Reason: reason, Err: err}
}

// PermanentError builds a failure for a destination that is gone.
func PermanentError(reason string, err error) *SendError {
	return &SendError{Kind: Permanent, Reason: reason, Err: err}
}

// Classify maps any error returned by a Sender to a Kind. Unclassified
// errors are treated as transient.
func Classify(err error) Kind {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	return Transient
}

var marshalPayload = json.Marshal

// encodePayload renders the message body sent to push services. A failure
// says nothing about the endpoint, so it stays unclassified.
func encodePayload(msg Message) ([]byte, error) {
	payload, err := marshalPayload(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode push payload: %w", err)
	}
	return payload, nil
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, endpoint model.Endpoint, msg Message) error

func (f SenderFunc) Send(ctx context.Context, endpoint model.Endpoint, msg Message) error {
	return f(ctx, endpoint, msg)
}
