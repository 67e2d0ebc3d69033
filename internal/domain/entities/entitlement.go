package entities

import "time"

// Status is the last-known subscription state for an identity, as reported
// by the billing provider. The set is closed: anything the provider reports
// that does not map onto one of these values becomes StatusUnknown.
type Status string

const (
	// StatusNoAccount means the provider has no billing account for the identity
	StatusNoAccount Status = "no_account"

	// StatusActive means the identity has a paid, current subscription
	StatusActive Status = "active"

	// StatusTrialing means the identity is inside a trial period
	StatusTrialing Status = "trialing"

	// StatusPastDue means payment has lapsed but the subscription is not yet canceled
	StatusPastDue Status = "past_due"

	// StatusCanceled means the subscription has ended
	StatusCanceled Status = "canceled"

	// StatusUnknown means the provider was reachable but returned no
	// parseable subscription state. Treated as not entitled.
	StatusUnknown Status = "unknown"
)

// statusRank orders statuses for accounts that carry more than one grant:
// a customer with one lapsed and one active subscription must read as
// entitled, so the highest-ranked status wins.
var statusRank = map[Status]int{
	StatusActive:    5,
	StatusTrialing:  4,
	StatusPastDue:   3,
	StatusCanceled:  2,
	StatusUnknown:   1,
	StatusNoAccount: 0,
}

// Valid reports whether s is a member of the closed status set
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Entitled reports whether s grants access to premium features.
// Only active and trialing qualify; past_due does not.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

// Rank returns the priority of s when multiple grants exist on one account
func (s Status) Rank() int {
	return statusRank[s]
}

// HighestRanked returns the winning status among concurrent grants.
// An empty slice yields StatusUnknown.
func HighestRanked(statuses []Status) Status {
	best := StatusUnknown
	bestRank := -1
	for _, s := range statuses {
		if s.Rank() > bestRank {
			best = s
			bestRank = s.Rank()
		}
	}
	if bestRank < 0 {
		return StatusUnknown
	}
	return best
}

// ParseStatus maps a raw provider status string onto the closed set
func ParseStatus(raw string) Status {
	s := Status(raw)
	if s.Valid() {
		return s
	}
	return StatusUnknown
}

// EntitlementRecord is the durable per-identity view of billing state.
// Records are created on first lookup or webhook event and updated in place;
// they are never deleted (absence of entitlement is a status value).
type EntitlementRecord struct {
	Identity          string    `json:"identity" db:"identity"`
	BillingAccountRef string    `json:"billing_account_ref,omitempty" db:"billing_account_ref"`
	Status            Status    `json:"status" db:"status"`
	StatusDetail      string    `json:"status_detail,omitempty" db:"status_detail"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// Entitled reports whether the record's status grants premium access
func (r *EntitlementRecord) Entitled() bool {
	return r.Status.Entitled()
}
