package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/presenza-app/backend/internal/models"
	"github.com/presenza-app/backend/pkg/queue"
)

// RosterStore is the read-only roster lookup the validator needs.
type RosterStore interface {
	FindByStudentID(ctx context.Context, studentID string) (*models.Student, error)
}

// SessionStore is the slice of the token store the validator needs.
type SessionStore interface {
	GetByToken(ctx context.Context, token string) (*models.TokenSession, error)
	HasAttendee(ctx context.Context, sessionID uuid.UUID, studentID string) (bool, error)
	AddAttendee(ctx context.Context, sessionID uuid.UUID, studentID string) error
}

// RecordStore is the slice of the attendance store the validator needs.
// Create must return ErrDuplicateDay when the (student, day) constraint fires.
type RecordStore interface {
	Create(ctx context.Context, rec *models.AttendanceRecord) error
	GetByStudentAndDay(ctx context.Context, studentID string, day time.Time) (*models.AttendanceRecord, error)
}

// RepairEnqueuer schedules a consumer-set repair when the best-effort
// AddAttendee write fails after the record was persisted.
type RepairEnqueuer interface {
	EnqueueConsumerSetRepair(ctx context.Context, payload queue.ConsumerSetRepairPayload) error
}

// Input is one incoming proof-of-presence submission.
type Input struct {
	Token       string
	StudentID   string
	StudentName string
	IPAddress   string
	UserAgent   string
}

// Result is the structured outcome of a validation. Rejections are ordinary
// results, never process errors.
type Result struct {
	Accepted         bool       `json:"accepted"`
	Kind             Kind       `json:"kind,omitempty"`
	Message          string     `json:"message"`
	StudentName      string     `json:"student_name,omitempty"`
	AttendanceID     uuid.UUID  `json:"attendance_id,omitempty"`
	MarkedAt         time.Time  `json:"marked_at,omitempty"`
	ExistingMarkedAt *time.Time `json:"existing_marked_at,omitempty"`
}

// Validator decides whether one (token, student) submission counts as proof
// of presence, and persists the record exactly once when it does. It holds no
// state beyond the in-flight request.
type Validator struct {
	roster   RosterStore
	sessions SessionStore
	records  RecordStore
	repairs  RepairEnqueuer
	// acceptRotated admits tokens retired by a later rotation as long as their
	// validity window has not passed.
	acceptRotated bool
	logger        *zap.Logger
	now           func() time.Time
}

// NewValidator creates a validation engine. repairs may be nil; the consumer
// set then degrades to a log line on write failure.
func NewValidator(roster RosterStore, sessions SessionStore, records RecordStore, repairs RepairEnqueuer, acceptRotated bool, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		roster:        roster,
		sessions:      sessions,
		records:       records,
		repairs:       repairs,
		acceptRotated: acceptRotated,
		logger:        logger,
		now:           time.Now,
	}
}

func reject(kind Kind, message string) *Result {
	return &Result{Accepted: false, Kind: kind, Message: message}
}

// Validate applies the full check sequence: input shape, roster membership,
// token existence, expiry, rotation policy, per-token dedup, per-day dedup.
// The record insert is the authoritative write; the consumer-set append is a
// best-effort optimization repaired asynchronously if it fails.
func (v *Validator) Validate(ctx context.Context, in Input) *Result {
	token := strings.TrimSpace(in.Token)
	studentID := strings.TrimSpace(in.StudentID)
	if token == "" {
		return reject(KindInvalidInput, "token is required")
	}
	if studentID == "" {
		return reject(KindInvalidInput, "student ID is required")
	}

	student, err := v.roster.FindByStudentID(ctx, studentID)
	if err != nil {
		v.logger.Error("roster lookup failed", zap.Error(err), zap.String("student_id", studentID))
		return reject(KindStoreUnavailable, "roster unavailable, try again")
	}
	if student == nil {
		return reject(KindUnknownConsumer, fmt.Sprintf("student ID %s not found in roster", studentID))
	}

	session, err := v.sessions.GetByToken(ctx, token)
	if err != nil {
		v.logger.Error("session lookup failed", zap.Error(err))
		return reject(KindStoreUnavailable, "token store unavailable, try again")
	}
	if session == nil {
		return reject(KindInvalidToken, "invalid token, scan the displayed code")
	}

	now := v.now()
	// Expiry wins over the active flag: a session past its window is expired
	// no matter how it was retired.
	if session.Expired(now) {
		return reject(KindTokenExpired, "token has expired, scan a new one")
	}
	if !session.Active && !v.acceptRotated {
		return reject(KindTokenRotated, "token was rotated, re-scan the currently displayed code")
	}

	used, err := v.sessions.HasAttendee(ctx, session.ID, studentID)
	if err != nil {
		v.logger.Error("consumer set lookup failed", zap.Error(err))
		return reject(KindStoreUnavailable, "token store unavailable, try again")
	}
	if used {
		return reject(KindDuplicateForToken, "already marked with this token")
	}

	day := models.DayBucket(now)
	existing, err := v.records.GetByStudentAndDay(ctx, studentID, day)
	if err != nil {
		v.logger.Error("attendance lookup failed", zap.Error(err))
		return reject(KindStoreUnavailable, "attendance store unavailable, try again")
	}
	if existing != nil {
		return v.duplicateForDay(existing)
	}

	name := student.Name
	if name == "" {
		name = strings.TrimSpace(in.StudentName)
	}
	rec := &models.AttendanceRecord{
		StudentID:   studentID,
		StudentName: name,
		SessionDate: day,
		Token:       session.Token,
		SessionID:   session.ID,
		MarkedAt:    now,
		IPAddress:   in.IPAddress,
		UserAgent:   in.UserAgent,
	}
	if err := v.records.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateDay) {
			// Lost a concurrent race for the same day; surface the winner.
			winner, lookupErr := v.records.GetByStudentAndDay(ctx, studentID, day)
			if lookupErr == nil && winner != nil {
				return v.duplicateForDay(winner)
			}
			return reject(KindDuplicateForDay, "attendance already marked today")
		}
		v.logger.Error("attendance insert failed", zap.Error(err), zap.String("student_id", studentID))
		return reject(KindStoreUnavailable, "failed to save attendance record, try again")
	}

	// The record above is the source of truth. This append only serves the
	// once-per-token fast path and is repaired, never rolled back.
	if err := v.sessions.AddAttendee(ctx, session.ID, studentID); err != nil {
		v.logger.Warn("consumer set update failed, scheduling repair",
			zap.Error(err),
			zap.String("session_id", session.ID.String()),
			zap.String("student_id", studentID),
		)
		if v.repairs != nil {
			payload := queue.ConsumerSetRepairPayload{SessionID: session.ID, StudentID: studentID}
			if qErr := v.repairs.EnqueueConsumerSetRepair(ctx, payload); qErr != nil {
				v.logger.Error("enqueue consumer set repair failed", zap.Error(qErr))
			}
		}
	}

	return &Result{
		Accepted:     true,
		Message:      fmt.Sprintf("Attendance marked successfully for %s", name),
		StudentName:  name,
		AttendanceID: rec.ID,
		MarkedAt:     rec.MarkedAt,
	}
}

func (v *Validator) duplicateForDay(existing *models.AttendanceRecord) *Result {
	markedAt := existing.MarkedAt
	res := reject(KindDuplicateForDay,
		fmt.Sprintf("attendance already marked today at %s", markedAt.Format("15:04:05")))
	res.ExistingMarkedAt = &markedAt
	return res
}
