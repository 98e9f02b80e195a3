package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/presenza-app/backend/internal/models"
)

// Repository handles staff account persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByEmail returns a staff user by email, or nil.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.StaffUser, error) {
	const q = `SELECT id, email, password_hash, full_name, role, created_at, updated_at
		FROM staff_users WHERE email = $1`
	var u models.StaffUser
	var role string
	err := r.pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = models.StaffRole(role)
	return &u, nil
}

// Create inserts a staff user.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName string, role models.StaffRole) (*models.StaffUser, error) {
	const q = `INSERT INTO staff_users (email, password_hash, full_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, password_hash, full_name, role, created_at, updated_at`
	var u models.StaffUser
	var roleStr string
	err := r.pool.QueryRow(ctx, q, email, passwordHash, fullName, string(role)).
		Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &roleStr, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = models.StaffRole(roleStr)
	return &u, nil
}

// CountAll returns the number of staff accounts.
func (r *Repository) CountAll(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM staff_users`).Scan(&n)
	return n, err
}
