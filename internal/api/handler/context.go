package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ctxClaims extracts the claims injected by the Auth middleware. A missing
// role means the middleware did not run.
func ctxClaims(c echo.Context) (username, role string, err error) {
	role, _ = c.Get("role").(string)
	if role == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	username, _ = c.Get("username").(string)
	return username, role, nil
}

// callerKey identifies who asked for a challenge: the user_id query
// parameter when present, the client IP otherwise.
func callerKey(c echo.Context) string {
	if id := c.QueryParam("user_id"); id != "" {
		return "user:" + id
	}
	return "ip:" + c.RealIP()
}

// verifyCallers lists the caller keys a secure-verify request may have been
// issued its challenge under, most specific first.
func verifyCallers(c echo.Context, userID string) []string {
	return []string{"user:" + userID, "ip:" + c.RealIP()}
}
