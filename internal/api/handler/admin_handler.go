package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/core/ports"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// AdminHandler exposes read-only identity data to operators. Embeddings and
// fingerprints never leave the service.
type AdminHandler struct {
	enrollment ports.EnrollmentService
	logger     zerolog.Logger
}

func NewAdminHandler(enrollment ports.EnrollmentService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{enrollment: enrollment, logger: logger}
}

// GetUser handles GET /v1/admin/users/:user_id.
//
// @Summary      Get a user's identity and enrollment history
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  path      string  true   "User identifier"
// @Param        limit    query     int     false  "Maximum enrollments to return (default 20, max 100)"
// @Success      200      {object}  userProfileResponse
// @Failure      400      {object}  errorResponse
// @Failure      401      {object}  errorResponse
// @Failure      403      {object}  errorResponse
// @Failure      404      {object}  errorResponse
// @Failure      500      {object}  errorResponse
// @Router       /v1/admin/users/{user_id} [get]
func (h *AdminHandler) GetUser(c echo.Context) error {
	username, role, err := ctxClaims(c)
	if err != nil {
		return err
	}

	userID := c.Param("user_id")
	if err := domain.ValidateUserID(userID); err != nil {
		return err
	}
	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			return fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxHistoryLimit)
		}
		limit = n
	}

	profile, err := h.enrollment.Profile(c.Request().Context(), userID, limit)
	if err != nil {
		return err
	}

	h.logger.Info().
		Str("operator", username).
		Str("role", role).
		Str("user_id", userID).
		Msg("identity profile viewed")

	resp := userProfileResponse{
		UserID:          profile.Identity.UserID,
		CreatedAt:       profile.Identity.CreatedAt,
		LastEnrolledAt:  profile.Identity.LastEnrolledAt,
		EnrollmentCount: profile.Identity.EnrollmentCount,
		Enrollments:     make([]enrollmentSummary, 0, len(profile.Enrollments)),
	}
	for _, rec := range profile.Enrollments {
		resp.Enrollments = append(resp.Enrollments, enrollmentSummary{
			ID:           rec.ID,
			ModelVersion: rec.ModelVersion,
			Checksum:     rec.Checksum,
			CreatedAt:    rec.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}
