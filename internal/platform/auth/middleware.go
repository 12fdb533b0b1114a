package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const principalKey contextKey = "principal"

// Skipper returns a predicate that skips authentication for the given path
// prefixes (health checks, login, QR resolution, emergency access).
func Skipper(prefixes ...string) func(echo.Context) bool {
	return func(c echo.Context) bool {
		path := c.Request().URL.Path
		for _, p := range prefixes {
			if strings.HasPrefix(path, p) {
				return true
			}
		}
		return false
	}
}

// Middleware validates the bearer credential and stores the resulting
// Principal in the request context. SESSION and EMERGENCY tokens open a
// request-scoped identity; SHARE tokens are rejected here, they are only
// honoured by the dedicated share-resolution endpoint.
func Middleware(signer *Signer, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := signer.Verify(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidToken.Error())
			}

			principal, err := principalFromClaims(claims)
			if err != nil {
				// Wrong token type or malformed subject: indistinguishable
				// from any other bad credential.
				return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidToken.Error())
			}

			ctx := context.WithValue(c.Request().Context(), principalKey, principal)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func principalFromClaims(claims *Claims) (Principal, error) {
	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("parse subject: %w", err)
	}

	switch claims.Type {
	case TokenSession:
		if !claims.Role.Valid() || claims.Role == RoleEmergency {
			return Principal{}, fmt.Errorf("invalid session role %q", claims.Role)
		}
		return Principal{ID: subject, Role: claims.Role}, nil
	case TokenEmergency:
		patientID, err := uuid.Parse(claims.PatientID)
		if err != nil {
			return Principal{}, fmt.Errorf("parse patient_id: %w", err)
		}
		return Principal{ID: subject, Role: RoleEmergency, ScopedPatientID: patientID}, nil
	default:
		return Principal{}, fmt.Errorf("token type %q cannot open a session", claims.Type)
	}
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// WithPrincipal returns a context carrying the given principal. Used by
// tests and by the share-resolution path.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// RequireRole checks that the principal has one of the given roles.
// ADMIN passes every role check.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			if p.IsAdmin() {
				return next(c)
			}
			for _, r := range roles {
				if p.Role == r {
					return next(c)
				}
			}
			names := make([]string, len(roles))
			for i, r := range roles {
				names[i] = string(r)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(names, " or ")))
		}
	}
}
