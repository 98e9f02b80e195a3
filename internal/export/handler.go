// Package export produces downloadable attendance reports.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/presenza-app/backend/internal/models"
	"github.com/presenza-app/backend/pkg/response"
)

// RosterLister returns the full roster for the day report.
type RosterLister interface {
	List(ctx context.Context) ([]models.Student, error)
}

// RecordReader is the slice of the attendance store exports need.
type RecordReader interface {
	ListByDay(ctx context.Context, day time.Time) ([]models.AttendanceRecord, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.AttendanceRecord, error)
	Latest(ctx context.Context) (*models.AttendanceRecord, error)
}

// SessionReader resolves sessions referenced by reports.
type SessionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.TokenSession, error)
}

// Sweeper is run opportunistically before session downloads.
type Sweeper interface {
	Run(ctx context.Context) error
}

// Handler handles report downloads (staff only).
type Handler struct {
	roster   RosterLister
	records  RecordReader
	sessions SessionReader
	sweeper  Sweeper
	logger   *zap.Logger
}

// NewHandler creates an export handler. sweeper may be nil.
func NewHandler(roster RosterLister, records RecordReader, sessions SessionReader, sweeper Sweeper, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{roster: roster, records: records, sessions: sessions, sweeper: sweeper, logger: logger}
}

// Day handles GET /export/day?date=YYYY-MM-DD (default today): one row per
// roster entry with present/absent status.
func (h *Handler) Day(c *gin.Context) {
	ctx := c.Request.Context()

	day := models.DayBucket(time.Now())
	if dateStr := c.Query("date"); dateStr != "" {
		parsed, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
		if err != nil {
			response.BadRequest(c, "invalid date format, use YYYY-MM-DD")
			return
		}
		day = parsed
	}

	students, err := h.roster.List(ctx)
	if err != nil {
		h.logger.Error("export roster read failed", zap.Error(err))
		response.ServiceUnavailable(c, "roster unavailable")
		return
	}
	records, err := h.records.ListByDay(ctx, day)
	if err != nil {
		h.logger.Error("export attendance read failed", zap.Error(err))
		response.ServiceUnavailable(c, "attendance store unavailable")
		return
	}
	byStudent := make(map[string]*models.AttendanceRecord, len(records))
	for i := range records {
		byStudent[records[i].StudentID] = &records[i]
	}

	filename := fmt.Sprintf("attendance_report_%s.csv", day.Format("20060102"))
	w := beginCSV(c, filename)
	_ = w.Write([]string{"Student_ID", "Name", "Department", "Year", "Email", "Phone", "Attendance_Status", "Attendance_Time", "Token_Used"})
	for _, s := range students {
		row := []string{s.StudentID, s.Name, s.Department, s.Year, s.Email, s.Phone, "Absent", "", ""}
		if rec, ok := byStudent[s.StudentID]; ok {
			row[6] = "Present"
			row[7] = rec.MarkedAt.Format("15:04:05")
			row[8] = rec.Token
		}
		_ = w.Write(row)
	}
	w.Flush()
}

// Session handles GET /export/session/:id: the attendance for one token
// session with audit columns.
func (h *Handler) Session(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}

	if h.sweeper != nil {
		if err := h.sweeper.Run(ctx); err != nil {
			h.logger.Warn("opportunistic sweep failed", zap.Error(err))
		}
	}

	session, err := h.sessions.GetByID(ctx, id)
	if err != nil {
		h.logger.Error("export session read failed", zap.Error(err))
		response.ServiceUnavailable(c, "token store unavailable")
		return
	}
	if session == nil {
		response.NotFound(c, "session not found")
		return
	}
	records, err := h.records.ListBySession(ctx, id)
	if err != nil {
		h.logger.Error("export attendance read failed", zap.Error(err))
		response.ServiceUnavailable(c, "attendance store unavailable")
		return
	}
	if len(records) == 0 {
		response.NotFound(c, "no attendance records for this session")
		return
	}

	filename := fmt.Sprintf("attendance_session_%s_%s.csv",
		session.CreatedAt.Format("20060102_150405"), shortID(id))
	w := beginCSV(c, filename)
	_ = w.Write([]string{"Session_ID", "Token", "Session_Created", "Session_Expired", "Student_ID", "Student_Name", "Attendance_Time", "Status", "IP_Address", "User_Agent"})
	for _, rec := range records {
		_ = w.Write([]string{
			id.String(),
			rec.Token,
			session.CreatedAt.Format("2006-01-02 15:04:05"),
			session.ExpiresAt.Format("2006-01-02 15:04:05"),
			rec.StudentID,
			rec.StudentName,
			rec.MarkedAt.Format("2006-01-02 15:04:05"),
			"Present",
			rec.IPAddress,
			rec.UserAgent,
		})
	}
	w.Flush()
}

// LatestSession handles GET /export/latest-session: redirects to the session
// download for the most recent record.
func (h *Handler) LatestSession(c *gin.Context) {
	latest, err := h.records.Latest(c.Request.Context())
	if err != nil {
		h.logger.Error("latest record read failed", zap.Error(err))
		response.ServiceUnavailable(c, "attendance store unavailable")
		return
	}
	if latest == nil {
		response.NotFound(c, "no attendance records found")
		return
	}
	c.Redirect(http.StatusFound, "/export/session/"+latest.SessionID.String())
}

func beginCSV(c *gin.Context, filename string) *csv.Writer {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)
	return csv.NewWriter(c.Writer)
}

func shortID(id uuid.UUID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
