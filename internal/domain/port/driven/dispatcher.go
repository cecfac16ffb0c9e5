package driven

import (
	"context"

	"github.com/ericfisherdev/rollouthub/internal/domain/model"
)

// Dispatcher defines the driven port for delivering a rollout trigger event
// to the configured external target. Delivery is synchronous and never
// retried here: a blind retry could duplicate a rollout trigger, so retries
// are an operator decision.
type Dispatcher interface {
	// Dispatch delivers one event of the given type to the configured
	// owner/repository target.
	Dispatch(ctx context.Context, eventType string, event model.DispatchEvent) error

	// Target returns the configured owner/repository the events go to,
	// for audit attribution.
	Target() string
}
