package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/truevoice/voice-verification/internal/api/metrics"
	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/core/ports"
)

const (
	flowPlain  = "plain"
	flowSecure = "secure"
)

// VoiceHandler serves enrollment and both verification flows.
type VoiceHandler struct {
	enrollment   ports.EnrollmentService
	verification ports.VerificationService
	maxBytes     int64
}

func NewVoiceHandler(
	enrollment ports.EnrollmentService,
	verification ports.VerificationService,
	maxBytes int64,
) *VoiceHandler {
	return &VoiceHandler{
		enrollment:   enrollment,
		verification: verification,
		maxBytes:     maxBytes,
	}
}

// Enroll handles POST /enroll-voice.
//
// @Summary      Enroll a voice
// @Description  Extracts a speaker embedding from the sample and stores it as the user's new reference.
// @Tags         voice
// @Accept       multipart/form-data
// @Produce      json
// @Param        user_id  formData  string  true  "User identifier"
// @Param        audio    formData  file    true  "WAV recording"
// @Success      200      {object}  enrollResponse
// @Failure      400      {object}  errorResponse
// @Failure      413      {object}  errorResponse
// @Failure      415      {object}  errorResponse
// @Failure      422      {object}  errorResponse
// @Failure      500      {object}  errorResponse
// @Router       /enroll-voice [post]
func (h *VoiceHandler) Enroll(c echo.Context) error {
	limitBody(c, h.maxBytes)

	var form enrollForm
	if err := bindForm(c, &form); err != nil {
		metrics.EnrollmentsTotal.WithLabelValues("invalid").Inc()
		return err
	}
	data, format, err := readAudio(c, h.maxBytes)
	if err != nil {
		metrics.EnrollmentsTotal.WithLabelValues("invalid").Inc()
		return err
	}

	rec, err := h.enrollment.Enroll(c.Request().Context(), domain.AudioSample{
		Data:   data,
		Format: format,
		UserID: form.UserID,
	})
	if err != nil {
		metrics.EnrollmentsTotal.WithLabelValues(enrollResult(err)).Inc()
		return err
	}
	metrics.EnrollmentsTotal.WithLabelValues("success").Inc()

	return c.JSON(http.StatusOK, enrollResponse{
		Status:  "success",
		Message: fmt.Sprintf("Voice enrolled for %s", rec.UserID),
		UserID:  rec.UserID,
	})
}

// Verify handles POST /verify-voice.
//
// @Summary      Verify a voice
// @Description  Scores the sample against the user's latest enrollment without a challenge.
// @Tags         voice
// @Accept       multipart/form-data
// @Produce      json
// @Param        user_id    formData  string  true   "User identifier"
// @Param        audio      formData  file    true   "WAV recording"
// @Param        threshold  formData  number  false  "Speaker threshold override in [0, 1]"
// @Success      200        {object}  verifyResponse
// @Failure      400        {object}  errorResponse
// @Failure      404        {object}  errorResponse
// @Failure      413        {object}  errorResponse
// @Failure      415        {object}  errorResponse
// @Failure      500        {object}  errorResponse
// @Router       /verify-voice [post]
func (h *VoiceHandler) Verify(c echo.Context) error {
	limitBody(c, h.maxBytes)

	var form verifyForm
	if err := bindForm(c, &form); err != nil {
		return err
	}
	in := ports.VerifyInput{UserID: form.UserID}
	if form.Threshold != "" {
		v, err := strconv.ParseFloat(form.Threshold, 64)
		if err != nil {
			return fmt.Errorf("%w: threshold must be a number", domain.ErrValidation)
		}
		in.Threshold = &v
	}
	data, _, err := readAudio(c, h.maxBytes)
	if err != nil {
		return err
	}
	in.Audio = data

	verdict, err := h.verification.Verify(c.Request().Context(), in)
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues(flowPlain, "error").Inc()
		return err
	}
	observeVerdict(flowPlain, verdict)

	resp := verifyResponse{
		Status:           "success",
		Score:            verdict.SimilarityScore,
		IsMatch:          verdict.IdentityVerified,
		LivenessVerified: verdict.LivenessVerified,
		Message: fmt.Sprintf("Verification completed. Score: %.3f, Match: %t",
			verdict.SimilarityScore, verdict.IdentityVerified),
	}
	if verdict.Rejected() {
		resp.Status = "rejected"
		resp.Reason = string(verdict.Reason)
		resp.Message = "Verification rejected: " + string(verdict.Reason)
	}
	return c.JSON(http.StatusOK, resp)
}

// SecureVerify handles POST /secure-verify-voice.
//
// @Summary      Verify a voice against a challenge
// @Description  Consumes the challenge, transcribes the sample and returns the combined identity and liveness verdict.
// @Description  Challenge and audio quality failures return 200 with status "rejected" and a reason.
// @Tags         voice
// @Accept       multipart/form-data
// @Produce      json
// @Param        user_id           formData  string  true   "User identifier"
// @Param        challenge_phrase  formData  string  true   "Phrase the user was asked to say"
// @Param        challenge_id      formData  string  false  "Challenge id from /generate-challenge"
// @Param        audio             formData  file    true   "WAV recording"
// @Success      200               {object}  verdictResponse
// @Failure      400               {object}  errorResponse
// @Failure      404               {object}  errorResponse
// @Failure      413               {object}  errorResponse
// @Failure      415               {object}  errorResponse
// @Failure      500               {object}  errorResponse
// @Router       /secure-verify-voice [post]
func (h *VoiceHandler) SecureVerify(c echo.Context) error {
	limitBody(c, h.maxBytes)

	var form secureVerifyForm
	if err := bindForm(c, &form); err != nil {
		return err
	}
	data, _, err := readAudio(c, h.maxBytes)
	if err != nil {
		return err
	}

	verdict, err := h.verification.SecureVerify(c.Request().Context(), ports.SecureVerifyInput{
		UserID:          form.UserID,
		ChallengeID:     form.ChallengeID,
		ChallengePhrase: form.ChallengePhrase,
		Audio:           data,
		Callers:         verifyCallers(c, form.UserID),
	})
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues(flowSecure, "error").Inc()
		return err
	}
	observeVerdict(flowSecure, verdict)

	return c.JSON(http.StatusOK, verdictResponse{
		IdentityVerified: verdict.IdentityVerified,
		LivenessVerified: verdict.LivenessVerified,
		SpeakerScore:     verdict.SpeakerScore,
		Transcript:       verdict.Transcript,
		ChallengePhrase:  verdict.ChallengePhrase,
		SimilarityScore:  verdict.SimilarityScore,
		LivenessScore:    verdict.LivenessScore,
		Status:           string(verdict.State),
		Reason:           string(verdict.Reason),
	})
}

func observeVerdict(flow string, v *domain.VerificationVerdict) {
	switch {
	case v.Rejected():
		metrics.VerificationsTotal.WithLabelValues(flow, "rejected").Inc()
		metrics.VerificationRejectionsTotal.WithLabelValues(string(v.Reason)).Inc()
		return
	case v.IdentityVerified:
		metrics.VerificationsTotal.WithLabelValues(flow, "verified").Inc()
	default:
		metrics.VerificationsTotal.WithLabelValues(flow, "not_verified").Inc()
	}
	metrics.SimilarityScore.WithLabelValues(flow).Observe(v.SimilarityScore)
}

func enrollResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnsupportedMedia),
		errors.Is(err, domain.ErrUnintelligibleAudio):
		return "invalid"
	}
	return "error"
}
