// Package worker repairs session consumer sets whose best-effort write failed.
// The attendance record is authoritative; this restores the per-token dedup
// optimization.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/presenza-app/backend/pkg/queue"
)

// AttendeeWriter is the slice of the token store the reconciler needs.
// AddAttendee must be idempotent for repeated repair attempts.
type AttendeeWriter interface {
	AddAttendee(ctx context.Context, sessionID uuid.UUID, studentID string) error
}

// Reconciler processes consumer-set repair jobs from the queue.
type Reconciler struct {
	sessions AttendeeWriter
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewReconciler creates a consumer-set reconciler.
func NewReconciler(sessions AttendeeWriter, q *queue.Queue, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{sessions: sessions, queue: q, logger: logger}
}

// Process executes one repair job.
func (r *Reconciler) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeConsumerSetRepair {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ConsumerSetRepairPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := r.sessions.AddAttendee(ctx, payload.SessionID, payload.StudentID); err != nil {
		return fmt.Errorf("add attendee: %w", err)
	}
	r.logger.Info("consumer set repaired",
		zap.String("session_id", payload.SessionID.String()),
		zap.String("student_id", payload.StudentID),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconcile worker stopping")
			return
		default:
		}

		job, _, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("reconcile worker stopping")
				return
			}
			r.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		r.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := r.Process(ctx, job); err != nil {
			r.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := r.queue.Retry(ctx, job); reErr != nil {
				r.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
