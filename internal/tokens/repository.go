package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/presenza-app/backend/internal/models"
)

// Repository handles token session persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a token session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a session. CreatedAt and ExpiresAt are set by the caller so
// that expiry is always creation plus the validity window.
func (r *Repository) Create(ctx context.Context, s *models.TokenSession) error {
	const q = `INSERT INTO token_sessions (id, token, label, origin, active, created_at, expires_at)
		VALUES (gen_random_uuid(), $1, $2, $3, TRUE, $4, $5)
		RETURNING id`
	return r.pool.QueryRow(ctx, q, s.Token, s.Label, string(s.Origin), s.CreatedAt, s.ExpiresAt).
		Scan(&s.ID)
}

// GetByToken returns the newest session carrying this token value, or nil.
// Token values are random but not unique at the data layer, so the newest
// mint wins.
func (r *Repository) GetByToken(ctx context.Context, token string) (*models.TokenSession, error) {
	const q = `SELECT id, token, label, origin, active, created_at, expires_at, expired_seen_at
		FROM token_sessions WHERE token = $1 ORDER BY created_at DESC LIMIT 1`
	return r.scanOne(r.pool.QueryRow(ctx, q, token))
}

// GetByID returns a session by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.TokenSession, error) {
	const q = `SELECT id, token, label, origin, active, created_at, expires_at, expired_seen_at
		FROM token_sessions WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, q, id))
}

// GetLatestActive returns the newest active, unexpired session, or nil.
func (r *Repository) GetLatestActive(ctx context.Context, now time.Time) (*models.TokenSession, error) {
	const q = `SELECT id, token, label, origin, active, created_at, expires_at, expired_seen_at
		FROM token_sessions WHERE active = TRUE AND expires_at > $1
		ORDER BY created_at DESC LIMIT 1`
	return r.scanOne(r.pool.QueryRow(ctx, q, now))
}

// Deactivate flips a session's active flag. Records and the session itself
// are left in place.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE token_sessions SET active = FALSE WHERE id = $1`, id)
	return err
}

// HasAttendee reports whether the student is already in the session's consumer set.
func (r *Repository) HasAttendee(ctx context.Context, sessionID uuid.UUID, studentID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM session_attendees WHERE session_id = $1 AND student_id = $2)`
	var exists bool
	err := r.pool.QueryRow(ctx, q, sessionID, studentID).Scan(&exists)
	return exists, err
}

// AddAttendee appends a student to the session's consumer set. The set only
// grows; a concurrent duplicate insert is a no-op.
func (r *Repository) AddAttendee(ctx context.Context, sessionID uuid.UUID, studentID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_attendees (session_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		sessionID, studentID)
	return err
}

// ListByDay returns sessions created within the given local calendar day,
// newest first.
func (r *Repository) ListByDay(ctx context.Context, dayStart time.Time) ([]models.TokenSession, error) {
	dayEnd := dayStart.AddDate(0, 0, 1)
	rows, err := r.pool.Query(ctx,
		`SELECT id, token, label, origin, active, created_at, expires_at, expired_seen_at
		 FROM token_sessions WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at DESC`,
		dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.TokenSession
	for rows.Next() {
		var s models.TokenSession
		var origin string
		if err := rows.Scan(&s.ID, &s.Token, &s.Label, &origin, &s.Active, &s.CreatedAt, &s.ExpiresAt, &s.ExpiredSeenAt); err != nil {
			return nil, err
		}
		s.Origin = models.SessionOrigin(origin)
		list = append(list, s)
	}
	return list, rows.Err()
}

// DeactivateExpired flips every active session whose expiry has passed and
// stamps the time the expiry was observed. Expiry-pass of the sweeper; never
// deletes anything.
func (r *Repository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE token_sessions SET active = FALSE, expired_seen_at = $1
		 WHERE active = TRUE AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListPurgeable returns up to limit session IDs whose expiry is older than
// cutoff, oldest first.
func (r *Repository) ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM token_sessions WHERE expires_at < $1 ORDER BY expires_at ASC LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteByIDs hard-deletes sessions (and their consumer sets via cascade).
func (r *Repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM token_sessions WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountCreatedBetween returns the number of sessions created in [from, to).
func (r *Repository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM token_sessions WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(&n)
	return n, err
}

// CountAll returns the total number of sessions.
func (r *Repository) CountAll(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM token_sessions`).Scan(&n)
	return n, err
}

// CountActive returns the number of active, unexpired sessions.
func (r *Repository) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM token_sessions WHERE active = TRUE AND expires_at > $1`, now).Scan(&n)
	return n, err
}

func (r *Repository) scanOne(row pgx.Row) (*models.TokenSession, error) {
	var s models.TokenSession
	var origin string
	err := row.Scan(&s.ID, &s.Token, &s.Label, &origin, &s.Active, &s.CreatedAt, &s.ExpiresAt, &s.ExpiredSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Origin = models.SessionOrigin(origin)
	return &s, nil
}
