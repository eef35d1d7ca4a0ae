package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const userIDKey = "user_id"

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(token string) (int64, error)
}

// RequireAuth rejects requests without a valid "Authorization: Bearer" token
// and stores the caller's user id in the echo context.
func RequireAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return jsonError(c, http.StatusUnauthorized, "missing bearer token")
			}
			userID, err := auth.Authenticate(token)
			if err != nil {
				return jsonError(c, http.StatusUnauthorized, err.Error())
			}
			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

func currentUserID(c echo.Context) int64 {
	id, _ := c.Get(userIDKey).(int64)
	return id
}
