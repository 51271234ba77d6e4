package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// HeaderAPIKey carries the local API key
const HeaderAPIKey = "X-API-Key"

// apiKeyMiddleware checks the caller's key against the configured bcrypt hash.
// With no hash configured the API is open.
func (s *Server) apiKeyMiddleware() echo.MiddlewareFunc {
	hash := []byte(s.config.Security.APIKeyHash)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if len(hash) == 0 {
			return next
		}

		return func(c echo.Context) error {
			key := extractAPIKey(c.Request())
			if key == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing API key")
			}

			if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
				s.logger.Warnw("Rejected API key", "ip", c.RealIP(), "path", c.Request().URL.Path)
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
			}

			return next(c)
		}
	}
}

func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}

	authHeader := r.Header.Get(echo.HeaderAuthorization)
	if token := strings.TrimPrefix(authHeader, "Bearer "); token != authHeader {
		return token
	}
	return ""
}

// HashAPIKey returns the bcrypt hash to store in security.api_key_hash
func HashAPIKey(key string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func newRequestID() string {
	return uuid.NewString()
}
