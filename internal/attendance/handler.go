package attendance

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SubmitRequest is the body for POST /validate.
type SubmitRequest struct {
	Token       string `json:"token" binding:"required"`
	StudentID   string `json:"student_id" binding:"required"`
	StudentName string `json:"student_name"`
}

// Handler handles proof-of-presence submissions.
type Handler struct {
	validator *Validator
	logger    *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(validator *Validator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{validator: validator, logger: logger}
}

// Submit handles POST /validate. Every outcome, accepted or not, is a
// structured response; validation never surfaces as a process error.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Result{
			Accepted: false,
			Kind:     KindInvalidInput,
			Message:  "invalid request body: " + err.Error(),
		})
		return
	}

	result := h.validator.Validate(c.Request.Context(), Input{
		Token:       req.Token,
		StudentID:   req.StudentID,
		StudentName: req.StudentName,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.GetHeader("User-Agent"),
	})

	c.JSON(statusFor(result), result)
}

func statusFor(r *Result) int {
	if r.Accepted {
		return http.StatusOK
	}
	if r.Kind == KindStoreUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}
