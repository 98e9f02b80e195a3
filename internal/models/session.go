package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionOrigin records how a token session came to exist.
type SessionOrigin string

const (
	// OriginScheduler marks sessions minted by the rotation scheduler.
	OriginScheduler SessionOrigin = "scheduler"
	// OriginManual marks sessions minted on demand by a read request.
	OriginManual SessionOrigin = "manual"
)

// TokenSession is one rotation of the presence token. ExpiresAt is always
// CreatedAt plus the validity window and never changes after creation.
type TokenSession struct {
	ID            uuid.UUID     `json:"id"`
	Token         string        `json:"token"`
	Label         string        `json:"label,omitempty"`
	Origin        SessionOrigin `json:"origin"`
	Active        bool          `json:"active"`
	CreatedAt     time.Time     `json:"created_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
	ExpiredSeenAt *time.Time    `json:"expired_seen_at,omitempty"`
}

// Expired reports whether the session's validity window has passed,
// independent of the active flag.
func (s *TokenSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionAttendee is one entry in a session's consumer set.
type SessionAttendee struct {
	SessionID uuid.UUID `json:"session_id"`
	StudentID string    `json:"student_id"`
	AddedAt   time.Time `json:"added_at"`
}
