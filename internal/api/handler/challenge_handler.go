package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/truevoice/voice-verification/internal/api/metrics"
	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/core/ports"
)

type ChallengeHandler struct {
	service ports.ChallengeService
}

func NewChallengeHandler(service ports.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{service: service}
}

// Generate handles GET /generate-challenge.
//
// @Summary      Issue a challenge phrase
// @Description  Returns a one-time phrase to speak during secure verification. The same caller never gets the same phrase twice in a row.
// @Tags         voice
// @Produce      json
// @Param        user_id  query     string  false  "Caller identifier; the client IP is used when absent"
// @Success      200      {object}  challengeResponse
// @Failure      400      {object}  errorResponse
// @Failure      500      {object}  errorResponse
// @Router       /generate-challenge [get]
func (h *ChallengeHandler) Generate(c echo.Context) error {
	if id := c.QueryParam("user_id"); id != "" {
		if err := domain.ValidateUserID(id); err != nil {
			return err
		}
	}

	ch, err := h.service.Issue(c.Request().Context(), callerKey(c))
	if err != nil {
		return err
	}
	metrics.ChallengesIssuedTotal.Inc()

	return c.JSON(http.StatusOK, challengeResponse{
		ChallengePhrase: ch.Phrase,
		ChallengeID:     ch.ID,
		ExpiresAt:       ch.ExpiresAt,
	})
}
