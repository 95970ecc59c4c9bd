package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/city-osm-features/internal/infrastructure/resilience"
)

var (
	retryAndRecord = resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	failFast       = resilience.ErrorClassification{Retryable: false, RecordFailure: true}
)

// classifyNATSError retries publishes that failed on connection state. A
// payload the server refuses is the job's fault, not the broker's.
func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return retryAndRecord
	case errors.Is(err, nats.ErrMaxPayload), errors.Is(err, nats.ErrBadSubject):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrStaleConnection):
		return retryAndRecord
	default:
		return failFast
	}
}
