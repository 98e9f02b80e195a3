package roster

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/presenza-app/backend/internal/models"
)

// Repository handles the student roster. The validation engine only reads it.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a roster repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByStudentID returns the roster entry for an external student ID, or nil.
func (r *Repository) FindByStudentID(ctx context.Context, studentID string) (*models.Student, error) {
	const q = `SELECT id, student_id, name, department, year, email, phone, is_active, created_at
		FROM students WHERE student_id = $1 AND is_active = TRUE`
	var s models.Student
	err := r.pool.QueryRow(ctx, q, studentID).Scan(
		&s.ID, &s.StudentID, &s.Name, &s.Department, &s.Year, &s.Email, &s.Phone, &s.IsActive, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns the full roster ordered by student ID.
func (r *Repository) List(ctx context.Context) ([]models.Student, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, student_id, name, department, year, email, phone, is_active, created_at
		 FROM students ORDER BY student_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Student
	for rows.Next() {
		var s models.Student
		if err := rows.Scan(&s.ID, &s.StudentID, &s.Name, &s.Department, &s.Year, &s.Email, &s.Phone, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// CountAll returns the number of roster entries.
func (r *Repository) CountAll(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM students`).Scan(&n)
	return n, err
}

// Upsert inserts or refreshes one roster entry keyed by student_id.
func (r *Repository) Upsert(ctx context.Context, s *models.Student) error {
	const q = `INSERT INTO students (id, student_id, name, department, year, email, phone, is_active)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (student_id) DO UPDATE SET
			name = EXCLUDED.name, department = EXCLUDED.department, year = EXCLUDED.year,
			email = EXCLUDED.email, phone = EXCLUDED.phone, is_active = TRUE
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, s.StudentID, s.Name, s.Department, s.Year, s.Email, s.Phone).
		Scan(&s.ID, &s.CreatedAt)
}
