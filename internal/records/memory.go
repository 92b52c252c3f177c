package records

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/regdesk/regdesk/pkg/models"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	rows    map[string]*models.RegistrationRecord
	teams   []Team
}

// NewMemoryStore creates an empty in-memory record store with the given team
// table.
func NewMemoryStore(teams []Team) *MemoryStore {
	return &MemoryStore{
		rows:  map[string]*models.RegistrationRecord{},
		teams: teams,
	}
}

func (m *MemoryStore) Get(ctx context.Context, billingRequestID string) (*models.RegistrationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[billingRequestID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(row), nil
}

func (m *MemoryStore) Save(ctx context.Context, record *models.RegistrationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := cloneRecord(record)
	now := time.Now()
	if existing, ok := m.rows[record.BillingRequestID]; ok {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	m.rows[record.BillingRequestID] = clone
	return nil
}

func (m *MemoryStore) FindByParentChild(ctx context.Context, parentName, childName string) (*models.RegistrationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, row := range m.rows {
		if strings.EqualFold(row.ParentFullName, parentName) && strings.EqualFold(row.PlayerFullName, childName) {
			return cloneRecord(row), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindActiveSiblings(ctx context.Context, parentFullName, playerLastName, excludeBillingRequestID string) ([]*models.RegistrationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.RegistrationRecord
	for _, row := range m.rows {
		if row.BillingRequestID == excludeBillingRequestID {
			continue
		}
		if row.Status != models.StatusActive {
			continue
		}
		if !strings.EqualFold(row.ParentFullName, parentFullName) {
			continue
		}
		if !strings.EqualFold(row.PlayerLastName(), playerLastName) {
			continue
		}
		out = append(out, cloneRecord(row))
	}
	return out, nil
}

func (m *MemoryStore) TeamExists(ctx context.Context, team, ageGroup string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.teams {
		if strings.EqualFold(t.Name, team) && strings.EqualFold(t.AgeGroup, ageGroup) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) KitNeeded(ctx context.Context, team, ageGroup string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.teams {
		if strings.EqualFold(t.Name, team) && strings.EqualFold(t.AgeGroup, ageGroup) {
			return t.KitRequired, nil
		}
	}
	return false, ErrNotFound
}

func (m *MemoryStore) ShirtNumberConflicts(ctx context.Context, team, ageGroup string, number int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, row := range m.rows {
		if strings.EqualFold(row.Team, team) && strings.EqualFold(row.AgeGroup, ageGroup) && row.ShirtNumber == number {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) Health(ctx context.Context) error { return nil }

func cloneRecord(r *models.RegistrationRecord) *models.RegistrationRecord {
	clone := *r
	if r.PaymentMonths != nil {
		clone.PaymentMonths = make(map[string]string, len(r.PaymentMonths))
		for k, v := range r.PaymentMonths {
			clone.PaymentMonths[k] = v
		}
	}
	return &clone
}
