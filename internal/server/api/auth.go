package api

import (
	"log/slog"
	"net/http"
	"strings"

	"merkaz/internal/server/auth"

	"github.com/labstack/echo/v4"
)

const sessionKey = "session"

// Session is the caller's identity for the current request.
type Session struct {
	Identity string
	UserID   string
	Admin    bool
}

// Authenticate attaches a Session when the request carries a valid bearer
// token. Requests without one continue anonymously; RequireLogin and
// RequireAdmin decide what that means for each route.
func Authenticate(issuer *auth.Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return next(c)
			}

			claims, err := issuer.Parse(token)
			if err != nil {
				slog.Debug("rejected bearer token", "ip", c.RealIP(), "error", err)
				return next(c)
			}

			c.Set(sessionKey, &Session{
				Identity: claims.Identity,
				UserID:   claims.UserID,
				Admin:    claims.Admin,
			})
			return next(c)
		}
	}
}

// RequireLogin rejects anonymous callers with 401.
func RequireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if sessionFrom(c) == nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "login required"})
		}
		return next(c)
	}
}

// RequireAdmin rejects anonymous callers with 401 and non-admins with 403.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess := sessionFrom(c)
		if sess == nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "login required"})
		}
		if !sess.Admin {
			slog.Warn("admin route denied", "identity", sess.Identity, "path", c.Path())
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
		}
		return next(c)
	}
}

func sessionFrom(c echo.Context) *Session {
	sess, _ := c.Get(sessionKey).(*Session)
	return sess
}
