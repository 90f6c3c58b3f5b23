package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/auth"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/models"
)

const (
	ContextKeyPrincipal = "principal"
)

// JWTAuth verifies the bearer token and stores the caller's
// models.Principal in the context. WebSocket upgrades may pass the token
// as the "token" query parameter since browsers cannot set headers there.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims, err := auth.VerifyJWT(secret, tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(ContextKeyPrincipal, claims.Principal())
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if isWebSocket(c.Request()) {
			if t := c.QueryParam("token"); t != "" {
				return t, nil
			}
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return parts[1], nil
}

func isWebSocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// RequireRole rejects principals whose role is not listed. It must run
// after JWTAuth.
func RequireRole(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			for _, r := range roles {
				if p.Role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "Unauthorized")
		}
	}
}

// PrincipalFrom returns the authenticated caller set by JWTAuth.
func PrincipalFrom(c echo.Context) (models.Principal, bool) {
	p, ok := c.Get(ContextKeyPrincipal).(models.Principal)
	return p, ok
}
