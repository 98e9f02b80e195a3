package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/presenza-app/backend/internal/models"
)

// ErrDuplicateDay is returned by Create when the (student, day) uniqueness
// constraint rejects the insert. This is the race-proof form of the
// one-presence-per-day rule.
var ErrDuplicateDay = errors.New("attendance already recorded for this day")

const uniqueViolation = "23505"

// Repository handles attendance record persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a record. Records are immutable once written.
func (r *Repository) Create(ctx context.Context, rec *models.AttendanceRecord) error {
	const q = `INSERT INTO attendance_records
		(id, student_id, student_name, session_date, token, session_id, marked_at, ip_address, user_agent)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := r.pool.QueryRow(ctx, q,
		rec.StudentID, rec.StudentName, rec.SessionDate, rec.Token, rec.SessionID,
		rec.MarkedAt, rec.IPAddress, rec.UserAgent,
	).Scan(&rec.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateDay
		}
		return err
	}
	return nil
}

// GetByStudentAndDay returns the record for (student, day), or nil.
func (r *Repository) GetByStudentAndDay(ctx context.Context, studentID string, day time.Time) (*models.AttendanceRecord, error) {
	const q = `SELECT id, student_id, student_name, session_date, token, session_id, marked_at, ip_address, user_agent
		FROM attendance_records WHERE student_id = $1 AND session_date = $2`
	return r.scanOne(r.pool.QueryRow(ctx, q, studentID, day))
}

// ListBySession returns all records redeemed against a session, oldest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, student_id, student_name, session_date, token, session_id, marked_at, ip_address, user_agent
		 FROM attendance_records WHERE session_id = $1 ORDER BY marked_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

// ListByDay returns all records for a calendar day, ordered by student.
func (r *Repository) ListByDay(ctx context.Context, day time.Time) ([]models.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, student_id, student_name, session_date, token, session_id, marked_at, ip_address, user_agent
		 FROM attendance_records WHERE session_date = $1 ORDER BY student_id ASC`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

// Latest returns the most recently marked record, or nil when none exist.
func (r *Repository) Latest(ctx context.Context) (*models.AttendanceRecord, error) {
	const q = `SELECT id, student_id, student_name, session_date, token, session_id, marked_at, ip_address, user_agent
		FROM attendance_records ORDER BY marked_at DESC LIMIT 1`
	return r.scanOne(r.pool.QueryRow(ctx, q))
}

// DeleteBySessions removes records tied to purged sessions. Only the purge
// pass calls this, and only under the purge-attendance policy.
func (r *Repository) DeleteBySessions(ctx context.Context, sessionIDs []uuid.UUID) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM attendance_records WHERE session_id = ANY($1)`, sessionIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountByDay returns the number of records for a calendar day.
func (r *Repository) CountByDay(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attendance_records WHERE session_date = $1`, day).Scan(&n)
	return n, err
}

// CountAll returns the total number of records.
func (r *Repository) CountAll(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attendance_records`).Scan(&n)
	return n, err
}

func (r *Repository) scanOne(row pgx.Row) (*models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.StudentName, &rec.SessionDate, &rec.Token,
		&rec.SessionID, &rec.MarkedAt, &rec.IPAddress, &rec.UserAgent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanAll(rows pgx.Rows) ([]models.AttendanceRecord, error) {
	var list []models.AttendanceRecord
	for rows.Next() {
		var rec models.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.StudentName, &rec.SessionDate, &rec.Token,
			&rec.SessionID, &rec.MarkedAt, &rec.IPAddress, &rec.UserAgent); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}
