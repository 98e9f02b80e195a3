package roster

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/presenza-app/backend/pkg/response"
)

// Handler handles roster endpoints (staff only).
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a roster handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /roster.
func (h *Handler) List(c *gin.Context) {
	students, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list roster failed", zap.Error(err))
		response.ServiceUnavailable(c, "roster unavailable")
		return
	}
	response.OK(c, gin.H{"students": students, "total": len(students)})
}

// Seed handles POST /roster/seed: idempotent default roster population.
func (h *Handler) Seed(c *gin.Context) {
	inserted, err := h.repo.SeedDefault(c.Request.Context(), h.logger)
	if err != nil {
		h.logger.Error("seed roster failed", zap.Error(err))
		response.Internal(c, "failed to seed roster")
		return
	}
	response.OK(c, gin.H{"inserted": inserted})
}
