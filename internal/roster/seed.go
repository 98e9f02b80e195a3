package roster

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SeedDefault populates the roster with the default student block
// (2410080001 through 2410080085) when the roster is empty. Idempotent:
// existing entries are left untouched.
func (r *Repository) SeedDefault(ctx context.Context, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	count, err := r.CountAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("count roster: %w", err)
	}
	if count > 0 {
		logger.Info("roster already seeded", zap.Int("students", count))
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin seed tx: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for i := 1; i <= 85; i++ {
		studentID := fmt.Sprintf("2410080%03d", i)
		_, err := tx.Exec(ctx,
			`INSERT INTO students (student_id, name, department, year, email, phone)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (student_id) DO NOTHING`,
			studentID,
			fmt.Sprintf("Student %03d", i),
			"AIDS",
			"2024",
			fmt.Sprintf("student%03d@university.example", i),
			fmt.Sprintf("9876543%03d", i),
		)
		if err != nil {
			return 0, fmt.Errorf("seed student %s: %w", studentID, err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit seed tx: %w", err)
	}
	logger.Info("roster seeded", zap.Int("students", inserted))
	return inserted, nil
}
