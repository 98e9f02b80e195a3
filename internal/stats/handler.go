// Package stats exposes counters over sessions, attendance, and the roster.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/presenza-app/backend/internal/models"
	"github.com/presenza-app/backend/pkg/response"
)

// SessionCounter is the slice of the token store the stats handler needs.
type SessionCounter interface {
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
	CountAll(ctx context.Context) (int, error)
	CountActive(ctx context.Context, now time.Time) (int, error)
}

// RecordCounter is the slice of the attendance store the stats handler needs.
type RecordCounter interface {
	CountByDay(ctx context.Context, day time.Time) (int, error)
	CountAll(ctx context.Context) (int, error)
}

// RosterCounter counts roster entries.
type RosterCounter interface {
	CountAll(ctx context.Context) (int, error)
}

// Handler handles GET /stats.
type Handler struct {
	sessions SessionCounter
	records  RecordCounter
	roster   RosterCounter
	logger   *zap.Logger
}

// NewHandler creates a stats handler.
func NewHandler(sessions SessionCounter, records RecordCounter, roster RosterCounter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, records: records, roster: roster, logger: logger}
}

// Get handles GET /stats.
func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now()
	dayStart := models.DayBucket(now)
	dayEnd := dayStart.AddDate(0, 0, 1)

	todaySessions, err := h.sessions.CountCreatedBetween(ctx, dayStart, dayEnd)
	if err != nil {
		h.fail(c, err)
		return
	}
	todayAttendance, err := h.records.CountByDay(ctx, dayStart)
	if err != nil {
		h.fail(c, err)
		return
	}
	totalSessions, err := h.sessions.CountAll(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	totalAttendance, err := h.records.CountAll(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	totalStudents, err := h.roster.CountAll(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	activeSessions, err := h.sessions.CountActive(ctx, now)
	if err != nil {
		h.fail(c, err)
		return
	}

	rate := "0%"
	if totalStudents > 0 {
		rate = fmt.Sprintf("%.1f%%", float64(todayAttendance)/float64(totalStudents)*100)
	}

	response.OK(c, gin.H{
		"today": gin.H{
			"sessions":        todaySessions,
			"attendance":      todayAttendance,
			"attendance_rate": rate,
		},
		"total": gin.H{
			"sessions":           totalSessions,
			"attendance_records": totalAttendance,
			"students":           totalStudents,
		},
		"active_sessions": activeSessions,
		"timestamp":       now,
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	h.logger.Error("stats query failed", zap.Error(err))
	response.ServiceUnavailable(c, "stats unavailable")
}
