package models

import (
	"time"

	"github.com/google/uuid"
)

// Student is one roster entry. The roster is read-only from the validation
// engine's perspective.
type Student struct {
	ID         uuid.UUID `json:"id"`
	StudentID  string    `json:"student_id"`
	Name       string    `json:"name"`
	Department string    `json:"department,omitempty"`
	Year       string    `json:"year,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}
