package billing

import (
	"context"

	"github.com/alyanaluz/gatekeeper/internal/domain/entities"
)

// Outcome discriminates a provider answer from a provider failure. Callers
// must be able to tell "provider said no" apart from "we couldn't ask", so
// network and timeout errors are never coerced into NotFound or an unknown
// status.
type Outcome string

const (
	// OutcomeFound means the provider answered with data
	OutcomeFound Outcome = "found"

	// OutcomeNotFound means the provider answered and has no such record
	OutcomeNotFound Outcome = "not_found"

	// OutcomeUnavailable means the provider could not be asked
	// (network error, timeout, provider-side failure)
	OutcomeUnavailable Outcome = "unavailable"
)

// AccountResult is the tagged result of an account lookup
type AccountResult struct {
	Outcome    Outcome
	AccountRef string // set when Outcome is OutcomeFound
	Identity   string // account email, set on reverse lookups
	Reason     string // failure detail, set when Outcome is OutcomeUnavailable
}

// StatusResult is the tagged result of a subscription status query
type StatusResult struct {
	Outcome Outcome
	Status  entities.Status // set when Outcome is OutcomeFound
	Detail  string          // human-readable status detail (plan, raw state)
	Reason  string          // failure detail, set when Outcome is OutcomeUnavailable
}

// Provider is the synchronous query interface to the external billing
// system. Calls are network I/O: implementations apply their own timeouts
// and a small bounded retry for transient failures, and may be called
// concurrently without coordination.
type Provider interface {
	// FindAccount resolves an identity to its billing account reference.
	// If the provider reports multiple candidate accounts, the most
	// recently created one wins.
	FindAccount(ctx context.Context, identity string) AccountResult

	// CurrentStatus returns the winning subscription status for an
	// account. With multiple concurrent grants the highest-ranked status
	// wins (active > trialing > past_due > canceled/others), so a customer
	// with one lapsed and one active grant reads as entitled.
	CurrentStatus(ctx context.Context, accountRef string) StatusResult

	// AccountIdentity resolves a billing account reference back to the
	// identity (email) on the account. Used for webhook events about
	// accounts this service has not seen yet.
	AccountIdentity(ctx context.Context, accountRef string) AccountResult

	// PortalURL creates a self-service billing portal session for an
	// account and returns its URL.
	PortalURL(ctx context.Context, accountRef, returnURL string) (string, error)
}
