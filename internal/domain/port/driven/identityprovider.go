package driven

import (
	"context"

	"github.com/ericfisherdev/rollouthub/internal/domain/model"
)

// IdentityProvider defines the driven port for exchanging an opaque external
// credential for a verified identity. Implementations must never embed the
// raw credential in returned errors; credential validity is not transient,
// so no retries happen at this layer.
type IdentityProvider interface {
	VerifyCredential(ctx context.Context, credential string) (*model.Identity, error)
}
