package repositories

import (
	"context"

	"github.com/alyanaluz/gatekeeper/internal/domain/entities"
)

// Entitlements is the durable store of per-identity billing state.
// The reconciler is the only writer; handlers and middleware are read-only
// consumers. Implementations must make Upsert atomic per identity so that
// concurrent pull and push reconciliation cannot interleave into a lost
// update.
type Entitlements interface {
	// Upsert writes the record for record.Identity, overwriting any prior
	// values and refreshing UpdatedAt. Idempotent.
	Upsert(ctx context.Context, record *entities.EntitlementRecord) error

	// Get returns the record for an identity, or ErrEntitlementNotFound.
	Get(ctx context.Context, identity string) (*entities.EntitlementRecord, error)

	// GetByAccountRef resolves a billing account reference back to its
	// identity's record, or ErrEntitlementNotFound. Used by the webhook
	// push path, which only carries the provider-side handle.
	GetByAccountRef(ctx context.Context, accountRef string) (*entities.EntitlementRecord, error)
}
