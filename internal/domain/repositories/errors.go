package repositories

import "errors"

// Domain-specific repository errors
var (
	// ErrEntitlementNotFound is returned when no record exists for an
	// identity or billing account reference
	ErrEntitlementNotFound = errors.New("entitlement record not found")
)
