package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceRecord is one validated proof of presence. Records are written
// once and never updated; the (StudentID, SessionDate) pair is unique.
type AttendanceRecord struct {
	ID          uuid.UUID `json:"id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	// SessionDate is the local calendar day with time-of-day zeroed.
	SessionDate time.Time `json:"session_date"`
	Token       string    `json:"token"`
	// SessionID points at the redeemed session. After a keep-attendance purge
	// the session may no longer exist; the reference is informational.
	SessionID uuid.UUID `json:"session_id"`
	MarkedAt  time.Time `json:"marked_at"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// DayBucket truncates t to its local calendar day.
func DayBucket(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
