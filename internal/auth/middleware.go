package auth

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/vaultshop/internal/presentation/http/response"
	"github.com/Additional-Code/vaultshop/pkg/errorbank"
)

const principalKey = "auth.principal"

// RequireAdmin rejects requests without a valid "Bearer <token>" header.
func RequireAdmin(issuer *Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return response.New(c).WithError(errorbank.Unauthorized("missing bearer token")).Build()
			}

			principal, err := issuer.Parse(strings.TrimSpace(parts[1]))
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, ErrNotConfigured) {
					msg = "admin access is not configured"
				}
				return response.New(c).WithError(errorbank.Unauthorized(msg, errorbank.WithCause(err))).Build()
			}

			c.Set(principalKey, principal)
			return next(c)
		}
	}
}

// FromContext returns the principal stored by RequireAdmin.
func FromContext(c echo.Context) (*Principal, bool) {
	p, ok := c.Get(principalKey).(*Principal)
	return p, ok
}
