package tokens

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/presenza-app/backend/config"
	"github.com/presenza-app/backend/internal/models"
	"github.com/presenza-app/backend/pkg/qrimage"
	"github.com/presenza-app/backend/pkg/response"
)

// RecordLister provides the attendance rows shown on session listings.
type RecordLister interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.AttendanceRecord, error)
}

// Handler handles token read endpoints.
type Handler struct {
	repo     *Repository
	records  RecordLister
	renderer qrimage.Renderer
	cache    *Cache
	sweeper  Sweeper
	cfg      config.RotationConfig
	logger   *zap.Logger
}

// NewHandler creates a tokens handler. cache may be nil.
func NewHandler(repo *Repository, records RecordLister, renderer qrimage.Renderer, cache *Cache, sweeper Sweeper, cfg config.RotationConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, records: records, renderer: renderer, cache: cache, sweeper: sweeper, cfg: cfg, logger: logger}
}

type currentTokenResponse struct {
	Token       string    `json:"token"`
	Image       string    `json:"image,omitempty"`
	SessionID   string    `json:"session_id"`
	SessionName string    `json:"session_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int       `json:"expires_in"`
}

// Current handles GET /qr. With the rotation scheduler enabled it serves the
// newest active session from the store (cache first); with it disabled it
// mints a session on demand, the way simpler deployments run.
func (h *Handler) Current(c *gin.Context) {
	now := time.Now()

	if !h.cfg.Enabled {
		h.mintOnDemand(c, now)
		return
	}

	if h.cache != nil {
		if ct := h.cache.GetCurrent(c.Request.Context()); ct != nil {
			response.OK(c, currentTokenResponse{
				Token:       ct.Token,
				Image:       ct.Image,
				SessionID:   ct.SessionID,
				SessionName: ct.Label,
				CreatedAt:   ct.CreatedAt,
				ExpiresAt:   ct.ExpiresAt,
				ExpiresIn:   secondsUntil(ct.ExpiresAt, now),
			})
			return
		}
	}

	session, err := h.repo.GetLatestActive(c.Request.Context(), now)
	if err != nil {
		h.logger.Error("read current session failed", zap.Error(err))
		response.ServiceUnavailable(c, "token store unavailable")
		return
	}
	if session == nil {
		response.NotFound(c, "no active token yet")
		return
	}
	h.respondWithSession(c, session, now)
}

// mintOnDemand mirrors the original per-request mint: sweep opportunistically,
// then create a fresh manual-origin session.
func (h *Handler) mintOnDemand(c *gin.Context, now time.Time) {
	ctx := c.Request.Context()
	if h.sweeper != nil {
		if err := h.sweeper.Run(ctx); err != nil {
			h.logger.Warn("opportunistic sweep failed", zap.Error(err))
		}
	}

	token, err := GenerateToken(h.cfg.TokenLength)
	if err != nil {
		h.logger.Error("generate token failed", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}
	session := &models.TokenSession{
		Token:     token,
		Label:     "Session_" + now.Format("150405"),
		Origin:    models.OriginManual,
		Active:    true,
		CreatedAt: now,
		ExpiresAt: now.Add(h.cfg.ValidityWindow),
	}
	if err := h.repo.Create(ctx, session); err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		response.ServiceUnavailable(c, "token store unavailable")
		return
	}
	h.respondWithSession(c, session, now)
}

func (h *Handler) respondWithSession(c *gin.Context, session *models.TokenSession, now time.Time) {
	var image string
	if h.renderer != nil {
		var err error
		image, err = h.renderer.Render(session.Token)
		if err != nil {
			// Non-fatal: the token is still served as text.
			h.logger.Warn("qr render failed", zap.Error(err), zap.String("session_id", session.ID.String()))
		}
	}
	response.OK(c, currentTokenResponse{
		Token:       session.Token,
		Image:       image,
		SessionID:   session.ID.String(),
		SessionName: session.Label,
		CreatedAt:   session.CreatedAt,
		ExpiresAt:   session.ExpiresAt,
		ExpiresIn:   secondsUntil(session.ExpiresAt, now),
	})
}

type sessionAttendee struct {
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	MarkedAt    time.Time `json:"marked_at"`
}

type sessionInfo struct {
	SessionID       string            `json:"session_id"`
	Token           string            `json:"token"`
	SessionName     string            `json:"session_name,omitempty"`
	Origin          string            `json:"origin"`
	CreatedAt       time.Time         `json:"created_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
	IsExpired       bool              `json:"is_expired"`
	AttendanceCount int               `json:"attendance_count"`
	Attendees       []sessionAttendee `json:"attendees"`
}

// ActiveSessions handles GET /sessions/active: today's sessions with attendees.
func (h *Handler) ActiveSessions(c *gin.Context) {
	h.listDay(c, models.DayBucket(time.Now()))
}

// SessionsByDate handles GET /sessions/by-date/:date for a YYYY-MM-DD day.
func (h *Handler) SessionsByDate(c *gin.Context) {
	day, err := time.ParseInLocation("2006-01-02", c.Param("date"), time.Local)
	if err != nil {
		response.BadRequest(c, "invalid date format, use YYYY-MM-DD")
		return
	}
	h.listDay(c, day)
}

func (h *Handler) listDay(c *gin.Context, dayStart time.Time) {
	ctx := c.Request.Context()
	now := time.Now()

	sessions, err := h.repo.ListByDay(ctx, dayStart)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		response.ServiceUnavailable(c, "token store unavailable")
		return
	}

	infos := make([]sessionInfo, 0, len(sessions))
	totalAttendance := 0
	for i := range sessions {
		s := &sessions[i]
		records, err := h.records.ListBySession(ctx, s.ID)
		if err != nil {
			h.logger.Error("list session attendance failed", zap.Error(err), zap.String("session_id", s.ID.String()))
			response.ServiceUnavailable(c, "attendance store unavailable")
			return
		}
		attendees := make([]sessionAttendee, 0, len(records))
		for _, rec := range records {
			attendees = append(attendees, sessionAttendee{
				StudentID:   rec.StudentID,
				StudentName: rec.StudentName,
				MarkedAt:    rec.MarkedAt,
			})
		}
		totalAttendance += len(records)
		infos = append(infos, sessionInfo{
			SessionID:       s.ID.String(),
			Token:           s.Token,
			SessionName:     s.Label,
			Origin:          string(s.Origin),
			CreatedAt:       s.CreatedAt,
			ExpiresAt:       s.ExpiresAt,
			IsExpired:       s.Expired(now),
			AttendanceCount: len(records),
			Attendees:       attendees,
		})
	}

	response.OK(c, gin.H{
		"date":           dayStart.Format("2006-01-02"),
		"sessions":       infos,
		"total_sessions": len(infos),
		"total_attendees": totalAttendance,
	})
}

func secondsUntil(t, now time.Time) int {
	d := t.Sub(now)
	if d < 0 {
		return 0
	}
	return int(d.Seconds())
}
