// Package records is the adapter to the external registration record table,
// keyed by the provider-issued billing request id. Writes are optimistic
// last-writer-wins; the table itself arbitrates concurrent updates.
package records

import (
	"context"
	"errors"

	"github.com/regdesk/regdesk/pkg/models"
)

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("records: not found")

	// ErrUnavailable is returned when the table cannot be reached. Callers
	// surface this as db_unavailable.
	ErrUnavailable = errors.New("records: table unavailable")
)

// Team is one row of the team table used for code validation and kit policy.
type Team struct {
	Name        string
	AgeGroup    string
	KitRequired bool
}

// Store is the record-table contract the core consumes.
type Store interface {
	// Get returns the record for a billing request id, or ErrNotFound.
	Get(ctx context.Context, billingRequestID string) (*models.RegistrationRecord, error)

	// Save writes the full record, creating it when absent. Last writer wins.
	Save(ctx context.Context, record *models.RegistrationRecord) error

	// FindByParentChild locates a returning player's record by parent and
	// child full names (case-insensitive), or ErrNotFound.
	FindByParentChild(ctx context.Context, parentName, childName string) (*models.RegistrationRecord, error)

	// FindActiveSiblings returns active records sharing the parent's full
	// name and the child's surname, excluding the given billing request id.
	FindActiveSiblings(ctx context.Context, parentFullName, playerLastName, excludeBillingRequestID string) ([]*models.RegistrationRecord, error)

	// TeamExists reports whether (team, ageGroup) is a known row.
	TeamExists(ctx context.Context, team, ageGroup string) (bool, error)

	// KitNeeded reports the kit policy for (team, ageGroup).
	KitNeeded(ctx context.Context, team, ageGroup string) (bool, error)

	// ShirtNumberConflicts counts records in (team, ageGroup) already
	// holding the shirt number.
	ShirtNumberConflicts(ctx context.Context, team, ageGroup string, number int) (int, error)

	// Health probes connectivity for the /health endpoint.
	Health(ctx context.Context) error
}
