package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/truevoice/voice-verification/docs"
	"github.com/truevoice/voice-verification/internal/api/handler"
	"github.com/truevoice/voice-verification/internal/api/middleware"
	"github.com/truevoice/voice-verification/internal/core/domain"
	"github.com/truevoice/voice-verification/internal/core/ports"
)

// Deps is everything the router needs; cmd/server builds it.
type Deps struct {
	Challenges   ports.ChallengeService
	Enrollment   ports.EnrollmentService
	Verification ports.VerificationService
	Auth         ports.AuthService
	HealthChecks map[string]handler.Checker

	JWTSecret     string
	MaxAudioBytes int64
	CORSOrigins   []string
	Logger        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: d.CORSOrigins,
	}))
	e.Use(echoprometheus.NewMiddleware("voiceid"))

	// --- Handlers ---
	challengeHandler := handler.NewChallengeHandler(d.Challenges)
	voiceHandler := handler.NewVoiceHandler(d.Enrollment, d.Verification, d.MaxAudioBytes)
	adminHandler := handler.NewAdminHandler(d.Enrollment, d.Logger)
	authHandler := handler.NewAuthHandler(d.Auth)
	healthHandler := handler.NewHealthHandler(d.HealthChecks)

	// --- Voice routes (public, called by the browser clients) ---
	e.GET("/generate-challenge", challengeHandler.Generate)
	e.POST("/enroll-voice", voiceHandler.Enroll)
	e.POST("/verify-voice", voiceHandler.Verify)
	e.POST("/secure-verify-voice", voiceHandler.SecureVerify)

	// --- Auth routes ---
	e.POST("/auth/login", authHandler.Login)

	// --- Admin routes (JWT) ---
	admin := e.Group("/v1/admin", middleware.Auth(d.JWTSecret))
	admin.GET("/users/:user_id", adminHandler.GetUser, middleware.RBAC(domain.RoleAdmin, domain.RoleAuditor))
	admin.POST("/operators", authHandler.Register, middleware.RBAC(domain.RoleAdmin))

	// --- Health probes, metrics and docs (no auth required) ---
	e.GET("/health", healthHandler.Liveness)        // liveness: is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness: are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger writes one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil || v.Status >= 500 {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
