package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alyanaluz/gatekeeper/internal/billing"
	"github.com/alyanaluz/gatekeeper/internal/domain/entities"
	"github.com/alyanaluz/gatekeeper/internal/domain/repositories"
	"github.com/alyanaluz/gatekeeper/internal/pkg/metrics"
)

// Reconciler merges the two update paths into one consistent status per
// identity: the pull path (Sync, on-demand provider queries) and the push
// path (ApplyEvent, inbound webhook events). Both converge on idempotent
// upserts of the entitlement store; the provider, not this service, is the
// order-establishing authority, so no version vectors are needed.
//
// The Reconciler is the only writer of the entitlement store.
type Reconciler struct {
	store    repositories.Entitlements
	provider billing.Provider
	log      *slog.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(store repositories.Entitlements, provider billing.Provider) *Reconciler {
	return &Reconciler{
		store:    store,
		provider: provider,
		log:      slog.Default().With(slog.String("service", "reconciler")),
	}
}

// Sync is the pull path: query the provider for the identity's current
// status, persist it, and return it. When the provider is unreachable the
// last cached status is served instead (availability over freshness: a
// just-canceled subscription may stay entitled for one request cycle, an
// accepted tradeoff). With no cached record the sync fails closed and
// returns unknown without persisting anything.
func (r *Reconciler) Sync(ctx context.Context, identity string) (entities.Status, error) {
	identity = entities.NormalizeIdentity(identity)

	cached, err := r.store.Get(ctx, identity)
	if err != nil && !errors.Is(err, repositories.ErrEntitlementNotFound) {
		return entities.StatusUnknown, fmt.Errorf("failed to read entitlement record: %w", err)
	}

	accountRef := ""
	if cached != nil {
		accountRef = cached.BillingAccountRef
	}

	if accountRef == "" {
		acct := r.provider.FindAccount(ctx, identity)
		switch acct.Outcome {
		case billing.OutcomeNotFound:
			return r.persist(ctx, &entities.EntitlementRecord{
				Identity:     identity,
				Status:       entities.StatusNoAccount,
				StatusDetail: "no billing account for identity",
			})
		case billing.OutcomeUnavailable:
			return r.cacheFallback(cached, identity, "find_account", acct.Reason), nil
		}
		accountRef = acct.AccountRef
	}

	status := r.provider.CurrentStatus(ctx, accountRef)
	switch status.Outcome {
	case billing.OutcomeNotFound:
		// The account vanished on the provider side. Drop the stale
		// reference so the next sync re-resolves from scratch.
		return r.persist(ctx, &entities.EntitlementRecord{
			Identity:     identity,
			Status:       entities.StatusNoAccount,
			StatusDetail: "billing account no longer exists",
		})
	case billing.OutcomeUnavailable:
		return r.cacheFallback(cached, identity, "current_status", status.Reason), nil
	}

	return r.persist(ctx, &entities.EntitlementRecord{
		Identity:          identity,
		BillingAccountRef: accountRef,
		Status:            status.Status,
		StatusDetail:      status.Detail,
	})
}

// ApplyEvent is the push path: apply an authenticated provider event to the
// entitlement store. Idempotent regardless of ordering or duplication
// because the final state depends only on the event's own status field.
// Events about accounts no store record or provider lookup can resolve are
// accepted and ignored.
func (r *Reconciler) ApplyEvent(ctx context.Context, event *billing.Event) error {
	if !event.Type.Actionable() {
		r.log.Debug("ignoring non-actionable event",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)))
		return nil
	}

	identity := ""
	record, err := r.store.GetByAccountRef(ctx, event.AccountRef)
	switch {
	case err == nil:
		identity = record.Identity
	case errors.Is(err, repositories.ErrEntitlementNotFound):
		// Unseen account: ask the provider who it belongs to
		acct := r.provider.AccountIdentity(ctx, event.AccountRef)
		switch acct.Outcome {
		case billing.OutcomeFound:
			identity = acct.Identity
		case billing.OutcomeNotFound:
			r.log.Warn("event references an unknown billing account, ignoring",
				slog.String("event_id", event.ID),
				slog.String("account_ref", event.AccountRef))
			return nil
		default:
			return fmt.Errorf("provider unavailable resolving account %s: %s", event.AccountRef, acct.Reason)
		}
	default:
		return fmt.Errorf("failed to resolve account ref %s: %w", event.AccountRef, err)
	}

	_, err = r.persist(ctx, &entities.EntitlementRecord{
		Identity:          identity,
		BillingAccountRef: event.AccountRef,
		Status:            event.Status,
		StatusDetail:      event.Detail,
	})
	if err != nil {
		return err
	}

	r.log.Info("applied billing event",
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.String("identity", identity),
		slog.String("status", string(event.Status)))
	return nil
}

// persist upserts a record and returns its status
func (r *Reconciler) persist(ctx context.Context, record *entities.EntitlementRecord) (entities.Status, error) {
	if err := r.store.Upsert(ctx, record); err != nil {
		return entities.StatusUnknown, fmt.Errorf("failed to persist entitlement: %w", err)
	}
	return record.Status, nil
}

// cacheFallback decides what to answer when the provider cannot be asked.
// A cached record, however stale, wins; no record fails closed to unknown.
// Unavailability is absorbed here, never surfaced to the caller as a hard
// failure.
func (r *Reconciler) cacheFallback(cached *entities.EntitlementRecord, identity, operation, reason string) entities.Status {
	if cached == nil {
		r.log.Warn("provider unavailable and no cached record, failing closed",
			slog.String("identity", identity),
			slog.String("operation", operation),
			slog.String("reason", reason))
		return entities.StatusUnknown
	}

	metrics.SyncFallbacks.Inc()
	r.log.Warn("provider unavailable, serving cached status",
		slog.String("identity", identity),
		slog.String("operation", operation),
		slog.String("reason", reason),
		slog.String("cached_status", string(cached.Status)),
		slog.Duration("cache_age", time.Since(cached.UpdatedAt)))
	return cached.Status
}
