package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/alyanaluz/gatekeeper/internal/domain/entities"
	"github.com/alyanaluz/gatekeeper/internal/pkg/metrics"
)

const (
	// defaultCallTimeout bounds each provider round trip
	defaultCallTimeout = 4 * time.Second

	// maxNetworkRetries is handed to the Stripe backend for transient
	// network failures; permanent errors (4xx) are not retried
	maxNetworkRetries = 2
)

// StripeClient implements Provider against the Stripe API
type StripeClient struct {
	sc      *client.API
	timeout time.Duration
	log     *slog.Logger
}

// NewStripeClient creates a Stripe-backed billing provider client
func NewStripeClient(apiKey string) *StripeClient {
	config := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(maxNetworkRetries),
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, config),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, config),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, config),
	}

	return &StripeClient{
		sc:      client.New(apiKey, backends),
		timeout: defaultCallTimeout,
		log:     slog.Default().With(slog.String("component", "stripe")),
	}
}

// FindAccount looks up the Stripe customer for an identity by email.
// Multiple candidates resolve to the most recently created customer.
func (c *StripeClient) FindAccount(ctx context.Context, identity string) (res AccountResult) {
	start := time.Now()
	defer func() {
		metrics.RecordProviderCall("find_account", string(res.Outcome), time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.CustomerListParams{
		Email: stripe.String(identity),
	}
	params.Context = ctx

	var newest *stripe.Customer
	iter := c.sc.Customers.List(params)
	for iter.Next() {
		cust := iter.Customer()
		if newest == nil || cust.Created > newest.Created {
			newest = cust
		}
	}
	if err := iter.Err(); err != nil {
		return c.accountFailure("find_account", identity, err)
	}

	if newest == nil {
		return AccountResult{Outcome: OutcomeNotFound}
	}

	return AccountResult{
		Outcome:    OutcomeFound,
		AccountRef: newest.ID,
		Identity:   newest.Email,
	}
}

// CurrentStatus lists the account's subscriptions across all states and
// returns the highest-ranked status.
func (c *StripeClient) CurrentStatus(ctx context.Context, accountRef string) (res StatusResult) {
	start := time.Now()
	defer func() {
		metrics.RecordProviderCall("current_status", string(res.Outcome), time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(accountRef),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var statuses []entities.Status
	var rawStates []string
	iter := c.sc.Subscriptions.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		statuses = append(statuses, MapSubscriptionStatus(string(sub.Status)))
		rawStates = append(rawStates, string(sub.Status))
	}
	if err := iter.Err(); err != nil {
		if isMissingResource(err) {
			return StatusResult{Outcome: OutcomeNotFound}
		}
		c.log.Warn("subscription list failed",
			slog.String("account_ref", accountRef),
			slog.String("error", err.Error()))
		return StatusResult{Outcome: OutcomeUnavailable, Reason: err.Error()}
	}

	if len(statuses) == 0 {
		return StatusResult{
			Outcome: OutcomeFound,
			Status:  entities.StatusCanceled,
			Detail:  "no subscriptions",
		}
	}

	return StatusResult{
		Outcome: OutcomeFound,
		Status:  entities.HighestRanked(statuses),
		Detail:  fmt.Sprintf("subscriptions: %v", rawStates),
	}
}

// AccountIdentity resolves an account reference back to its email
func (c *StripeClient) AccountIdentity(ctx context.Context, accountRef string) (res AccountResult) {
	start := time.Now()
	defer func() {
		metrics.RecordProviderCall("account_identity", string(res.Outcome), time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := c.sc.Customers.Get(accountRef, params)
	if err != nil {
		if isMissingResource(err) {
			return AccountResult{Outcome: OutcomeNotFound}
		}
		return c.accountFailure("account_identity", accountRef, err)
	}

	if cust.Deleted || cust.Email == "" {
		return AccountResult{Outcome: OutcomeNotFound}
	}

	return AccountResult{
		Outcome:    OutcomeFound,
		AccountRef: cust.ID,
		Identity:   entities.NormalizeIdentity(cust.Email),
	}
}

// PortalURL creates a Stripe billing portal session for the account
func (c *StripeClient) PortalURL(ctx context.Context, accountRef, returnURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(accountRef),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := c.sc.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create billing portal session: %w", err)
	}

	return sess.URL, nil
}

// accountFailure logs and wraps a provider failure into an Unavailable result
func (c *StripeClient) accountFailure(operation, subject string, err error) AccountResult {
	c.log.Warn("provider call failed",
		slog.String("operation", operation),
		slog.String("subject", subject),
		slog.String("error", err.Error()))
	return AccountResult{Outcome: OutcomeUnavailable, Reason: err.Error()}
}

// isMissingResource reports whether a Stripe error means "no such record"
// rather than a transport or provider failure
func isMissingResource(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 404 || stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}

// MapSubscriptionStatus maps a raw Stripe subscription state onto the
// closed status set. States outside the set that still mean "not paying"
// collapse into canceled; anything unrecognized becomes unknown so the
// gate fails closed on ambiguity.
func MapSubscriptionStatus(raw string) entities.Status {
	switch raw {
	case "active":
		return entities.StatusActive
	case "trialing":
		return entities.StatusTrialing
	case "past_due":
		return entities.StatusPastDue
	case "canceled", "unpaid", "incomplete_expired", "paused":
		return entities.StatusCanceled
	default:
		return entities.StatusUnknown
	}
}
