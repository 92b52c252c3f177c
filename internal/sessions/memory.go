package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/regdesk/regdesk/pkg/models"
)

// MemoryStore is the in-process Store implementation. Session state lives
// only for the lifetime of the process.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	maxHistory int
}

// NewMemoryStore creates an in-memory session store. maxHistory <= 0 uses
// DefaultMaxHistory.
func NewMemoryStore(maxHistory int) *MemoryStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &MemoryStore{
		sessions:   map[string]*Session{},
		maxHistory: maxHistory,
	}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(session), nil
}

func (m *MemoryStore) Append(ctx context.Context, id string, msg *models.Message) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.getOrCreateLocked(id)
	clone := *msg
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	clone.SessionID = id
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	session.History = append(session.History, &clone)
	session.UpdatedAt = clone.CreatedAt
	m.evictLocked(session)
	return nil
}

// evictLocked drops the oldest non-preserved messages until the non-preserved
// tail length fits the cap. Preserved entries (tool records, system markers)
// may push the effective size above it.
func (m *MemoryStore) evictLocked(session *Session) {
	plain := 0
	for _, msg := range session.History {
		if !msg.Preserved() {
			plain++
		}
	}
	if plain <= m.maxHistory {
		return
	}
	kept := make([]*models.Message, 0, len(session.History))
	for _, msg := range session.History {
		if plain > m.maxHistory && !msg.Preserved() {
			plain--
			continue
		}
		kept = append(kept, msg)
	}
	session.History = kept
}

func (m *MemoryStore) SetLastAgent(ctx context.Context, id string, agent models.AgentName) error {
	return m.mutate(id, func(s *Session) error {
		s.LastAgent = agent
		return nil
	})
}

func (m *MemoryStore) SetRoutine(ctx context.Context, id string, n int) error {
	return m.mutate(id, func(s *Session) error {
		s.RoutineNumber = n
		return nil
	})
}

func (m *MemoryStore) SetCode(ctx context.Context, id string, code *models.CodeContext) error {
	return m.mutate(id, func(s *Session) error {
		if s.Code != nil {
			return ErrCodeAlreadySet
		}
		clone := *code
		s.Code = &clone
		return nil
	})
}

func (m *MemoryStore) SetAgeGroup(ctx context.Context, id string, ageGroup string) error {
	return m.mutate(id, func(s *Session) error {
		s.AgeGroup = ageGroup
		return nil
	})
}

func (m *MemoryStore) SetPendingUpload(ctx context.Context, id string, upload *models.PendingUpload) error {
	return m.mutate(id, func(s *Session) error {
		if upload == nil {
			s.PendingUpload = nil
			return nil
		}
		clone := *upload
		s.PendingUpload = &clone
		return nil
	})
}

func (m *MemoryStore) Clear(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Sweep(ctx context.Context, now time.Time, idleTimeout time.Duration) int {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	cutoff := now.Add(-idleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, session := range m.sessions {
		last := session.UpdatedAt
		if len(session.History) > 0 {
			last = session.History[len(session.History)-1].CreatedAt
		}
		if last.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) mutate(id string, fn func(*Session) error) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.getOrCreateLocked(id)
	if err := fn(session); err != nil {
		return err
	}
	session.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) getOrCreateLocked(id string) *Session {
	if session, ok := m.sessions[id]; ok {
		return session
	}
	now := time.Now()
	session := &Session{ID: id, CreatedAt: now, UpdatedAt: now}
	m.sessions[id] = session
	return session
}

func cloneSession(s *Session) *Session {
	clone := *s
	clone.History = make([]*models.Message, len(s.History))
	for i, msg := range s.History {
		msgClone := *msg
		clone.History[i] = &msgClone
	}
	if s.Code != nil {
		code := *s.Code
		clone.Code = &code
	}
	if s.PendingUpload != nil {
		upload := *s.PendingUpload
		clone.PendingUpload = &upload
	}
	return &clone
}
