// Package sweeper bounds token session and attendance growth without breaking
// the validation invariants.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/presenza-app/backend/config"
)

// SessionStore is the slice of the token store the sweeper needs.
type SessionStore interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// RecordStore is the slice of the attendance store the sweeper needs.
type RecordStore interface {
	DeleteBySessions(ctx context.Context, sessionIDs []uuid.UUID) (int64, error)
}

// Sweeper runs two independent, idempotent passes: the expiry pass flips
// overdue sessions inactive, the purge pass hard-deletes sessions past the
// retention horizon in bounded batches. Both are safe to run concurrently
// with validation.
type Sweeper struct {
	sessions     SessionStore
	records      RecordStore
	cfg          config.RetentionConfig
	storeTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// New creates a retention sweeper.
func New(sessions SessionStore, records RecordStore, cfg config.RetentionConfig, storeTimeout time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Sweeper{
		sessions:     sessions,
		records:      records,
		cfg:          cfg,
		storeTimeout: storeTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Run executes the expiry pass and then the purge pass. A failure in one pass
// does not block the other from running on the next invocation.
func (s *Sweeper) Run(ctx context.Context) error {
	now := s.now()
	if err := s.expiryPass(ctx, now); err != nil {
		return err
	}
	return s.purgePass(ctx, now)
}

// expiryPass flips every active session whose expiry has passed. It never
// deletes a session or a record.
func (s *Sweeper) expiryPass(ctx context.Context, now time.Time) error {
	callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	n, err := s.sessions.DeactivateExpired(callCtx, now)
	if err != nil {
		return fmt.Errorf("expiry pass: %w", err)
	}
	if n > 0 {
		s.logger.Debug("expired sessions deactivated", zap.Int64("count", n))
	}
	return nil
}

// purgePass hard-deletes sessions whose expiry is older than the retention
// horizon, at most PurgeBatchSize per run. Sessions younger than the horizon
// are never touched.
func (s *Sweeper) purgePass(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.cfg.Horizon)

	callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	ids, err := s.sessions.ListPurgeable(callCtx, cutoff, s.cfg.PurgeBatchSize)
	cancel()
	if err != nil {
		return fmt.Errorf("purge pass select: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	var recordsDeleted int64
	if !s.cfg.KeepAttendance {
		callCtx, cancel = context.WithTimeout(ctx, s.storeTimeout)
		recordsDeleted, err = s.records.DeleteBySessions(callCtx, ids)
		cancel()
		if err != nil {
			return fmt.Errorf("purge pass records: %w", err)
		}
	}

	callCtx, cancel = context.WithTimeout(ctx, s.storeTimeout)
	sessionsDeleted, err := s.sessions.DeleteByIDs(callCtx, ids)
	cancel()
	if err != nil {
		return fmt.Errorf("purge pass sessions: %w", err)
	}

	s.logger.Info("retention purge completed",
		zap.Int64("sessions_deleted", sessionsDeleted),
		zap.Int64("records_deleted", recordsDeleted),
		zap.Time("cutoff", cutoff),
		zap.Bool("keep_attendance", s.cfg.KeepAttendance),
	)
	return nil
}
