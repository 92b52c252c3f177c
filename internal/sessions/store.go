// Package sessions owns the in-memory session map: bounded chat history and
// per-session registration context. All other components read and write
// session state only through the Store interface.
package sessions

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/regdesk/regdesk/pkg/models"
)

// DefaultMaxHistory bounds the non-preserved tail of a session's history.
const DefaultMaxHistory = 40

// DefaultIdleTimeout is how long an untouched session survives before the
// janitor removes it.
const DefaultIdleTimeout = 24 * time.Hour

var (
	// ErrInvalidSessionID rejects ids over 100 chars or outside [A-Za-z0-9_-].
	ErrInvalidSessionID = errors.New("sessions: invalid session id")

	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("sessions: not found")

	// ErrSessionBusy is returned when a turn is already in flight for the
	// session and the wait queue is full.
	ErrSessionBusy = errors.New("sessions: session busy")

	// ErrCodeAlreadySet guards the immutability of a parsed registration code.
	ErrCodeAlreadySet = errors.New("sessions: code context already set")
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// ValidateID checks a client-supplied session identifier.
func ValidateID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return ErrInvalidSessionID
	}
	return nil
}

// Session holds one conversation's state.
type Session struct {
	ID            string                 `json:"id"`
	History       []*models.Message      `json:"history"`
	LastAgent     models.AgentName       `json:"last_agent"`
	RoutineNumber int                    `json:"routine_number,omitempty"` // 0 = absent
	Code          *models.CodeContext    `json:"code_context,omitempty"`
	PendingUpload *models.PendingUpload  `json:"pending_upload,omitempty"`
	// AgeGroup is the group computed from the child's date of birth. It
	// drives the server-internal age hop at step 22.
	AgeGroup  string    `json:"age_group,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the interface for session state. Implementations must be safe for
// concurrent use; per-session mutations are serialized internally.
type Store interface {
	// Get returns a copy of the session, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Append adds a message, creating the session on first use, then evicts
	// oldest non-preserved entries until the non-preserved tail fits the cap.
	Append(ctx context.Context, id string, msg *models.Message) error

	// SetLastAgent records which agent variant handled the latest turn.
	SetLastAgent(ctx context.Context, id string, agent models.AgentName) error

	// SetRoutine records the current routine step (0 clears it).
	SetRoutine(ctx context.Context, id string, n int) error

	// SetCode stores the parsed registration code. It is immutable once set.
	SetCode(ctx context.Context, id string, code *models.CodeContext) error

	// SetAgeGroup records the age group computed at the DOB step.
	SetAgeGroup(ctx context.Context, id string, ageGroup string) error

	// SetPendingUpload tracks an in-flight photo (nil clears it).
	SetPendingUpload(ctx context.Context, id string, upload *models.PendingUpload) error

	// Clear removes a session entirely.
	Clear(ctx context.Context, id string) error

	// Sweep removes sessions idle longer than idleTimeout and returns the
	// number removed.
	Sweep(ctx context.Context, now time.Time, idleTimeout time.Duration) int

	// Len returns the current session count.
	Len() int
}
