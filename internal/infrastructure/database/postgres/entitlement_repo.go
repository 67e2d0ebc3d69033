package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/alyanaluz/gatekeeper/internal/domain/entities"
	"github.com/alyanaluz/gatekeeper/internal/domain/repositories"
	"github.com/alyanaluz/gatekeeper/internal/pkg/metrics"
)

// EntitlementRepository implements the Entitlements interface for PostgreSQL
type EntitlementRepository struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewEntitlementRepository creates a new PostgreSQL entitlement repository
func NewEntitlementRepository(db *sqlx.DB) repositories.Entitlements {
	return &EntitlementRepository{
		db:  db,
		log: slog.Default().With(slog.String("repo", "entitlement")),
	}
}

// entitlementRow represents an entitlement record as stored in the database
type entitlementRow struct {
	Identity          string         `db:"identity"`
	BillingAccountRef sql.NullString `db:"billing_account_ref"`
	Status            string         `db:"status"`
	StatusDetail      string         `db:"status_detail"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

// toEntity converts an entitlementRow to a domain entity
func (r *entitlementRow) toEntity() *entities.EntitlementRecord {
	return &entities.EntitlementRecord{
		Identity:          r.Identity,
		BillingAccountRef: r.BillingAccountRef.String, // empty string if NULL
		Status:            entities.ParseStatus(r.Status),
		StatusDetail:      r.StatusDetail,
		UpdatedAt:         r.UpdatedAt,
	}
}

// rowFromEntity converts a domain entity to an entitlementRow
func rowFromEntity(record *entities.EntitlementRecord) *entitlementRow {
	return &entitlementRow{
		Identity:          record.Identity,
		BillingAccountRef: sql.NullString{String: record.BillingAccountRef, Valid: record.BillingAccountRef != ""},
		Status:            string(record.Status),
		StatusDetail:      record.StatusDetail,
		UpdatedAt:         record.UpdatedAt,
	}
}

// Upsert writes the record for an identity. The single atomic
// INSERT ... ON CONFLICT statement is the per-key write serialization:
// concurrent pull and push reconciliation for the same identity cannot
// interleave into a lost update, and no advisory locking is needed.
func (r *EntitlementRepository) Upsert(ctx context.Context, record *entities.EntitlementRecord) error {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordDBOperation("entitlement", "upsert", time.Since(start), 1, err)
	}()

	if !record.Status.Valid() {
		err = fmt.Errorf("refusing to store status %q outside the closed set", record.Status)
		return err
	}

	r.log.Debug("upserting entitlement",
		slog.String("identity", record.Identity),
		slog.String("status", string(record.Status)))

	record.UpdatedAt = time.Now()
	row := rowFromEntity(record)

	query := `INSERT INTO entitlements (
			identity, billing_account_ref, status, status_detail, updated_at
		) VALUES (
			:identity, :billing_account_ref, :status, :status_detail, :updated_at
		)
		ON CONFLICT (identity) DO UPDATE SET
			billing_account_ref = EXCLUDED.billing_account_ref,
			status = EXCLUDED.status,
			status_detail = EXCLUDED.status_detail,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("failed to upsert entitlement: %w", err)
	}

	return nil
}

// Get retrieves the entitlement record for an identity
func (r *EntitlementRepository) Get(ctx context.Context, identity string) (*entities.EntitlementRecord, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation("entitlement", "get", time.Since(start), rowCount, err)
	}()

	var row entitlementRow
	query := `
		SELECT identity, billing_account_ref, status, status_detail, updated_at
		FROM entitlements
		WHERE identity = $1`

	err = r.db.GetContext(ctx, &row, query, identity)
	if err != nil {
		if err == sql.ErrNoRows {
			err = repositories.ErrEntitlementNotFound
			return nil, err
		}
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}

	rowCount = 1
	return row.toEntity(), nil
}

// GetByAccountRef resolves a billing account reference to its record.
// If historical data ever maps one reference to several identities, the
// most recently updated record wins.
func (r *EntitlementRepository) GetByAccountRef(ctx context.Context, accountRef string) (*entities.EntitlementRecord, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation("entitlement", "get_by_account_ref", time.Since(start), rowCount, err)
	}()

	var row entitlementRow
	query := `
		SELECT identity, billing_account_ref, status, status_detail, updated_at
		FROM entitlements
		WHERE billing_account_ref = $1
		ORDER BY updated_at DESC
		LIMIT 1`

	err = r.db.GetContext(ctx, &row, query, accountRef)
	if err != nil {
		if err == sql.ErrNoRows {
			err = repositories.ErrEntitlementNotFound
			return nil, err
		}
		return nil, fmt.Errorf("failed to get entitlement by account ref: %w", err)
	}

	rowCount = 1
	return row.toEntity(), nil
}
