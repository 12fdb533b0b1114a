package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medvault/medvault/internal/platform/auth"
)

// AuditEntry captures who touched which protected resource, when, from
// where, and how. Emergency-role access is flagged so break-glass use is
// always visible in the trail.
type AuditEntry struct {
	PrincipalID string
	Role        string
	Resource    string // records, consents, patients, auth
	Action      string // read, create, update, delete
	Path        string
	Method      string
	IPAddress   string
	UserAgent   string
	RequestID   string
	StatusCode  int
	IsEmergency bool
	Timestamp   time.Time
}

// AuditRecorder persists audit entries. The default recorder is structured
// zerolog output; tests and future sinks supply their own.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error { return f(entry) }

// auditedResources maps path segments under /api/v1 to resource names.
// Auth endpoints are included so failed logins land in the trail; their
// entries carry no principal. Emergency-access routes live under patients.
var auditedResources = map[string]string{
	"records":  "records",
	"consents": "consents",
	"patients": "patients",
	"auth":     "auth",
}

func resourceFromPath(path string) string {
	const prefix = "/api/v1/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	seg := strings.TrimPrefix(path, prefix)
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	return auditedResources[seg]
}

func actionFromMethod(method string) string {
	switch method {
	case "GET":
		return "read"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	}
	return strings.ToLower(method)
}

// Audit returns middleware that logs every access to protected resources.
// Entries are written after the handler runs so the response status is
// captured. Denied requests are audited too: a refused read attempt is as
// interesting as a granted one.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			resource := resourceFromPath(req.URL.Path)
			if resource == "" {
				return next(c)
			}

			err := next(c)

			// Echo writes error statuses only after the chain unwinds,
			// so c.Response().Status still reads 200 here when the
			// handler returned an HTTPError. Resolve it from the error.
			status := c.Response().Status
			if err != nil {
				var httpErr *echo.HTTPError
				if errors.As(err, &httpErr) {
					status = httpErr.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			entry := AuditEntry{
				Resource:   resource,
				Action:     actionFromMethod(req.Method),
				Path:       req.URL.Path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			if p, ok := auth.PrincipalFromContext(req.Context()); ok {
				entry.PrincipalID = p.ID.String()
				entry.Role = string(p.Role)
				entry.IsEmergency = p.Role == auth.RoleEmergency
			}

			for _, r := range recorders {
				if rerr := r.RecordAccess(entry); rerr != nil {
					logger.Error().Err(rerr).Msg("audit recorder failed")
				}
			}

			evt := logger.Info()
			if entry.IsEmergency {
				// Break-glass access is always worth a WARN.
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("principal_id", entry.PrincipalID).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("action", entry.Action).
				Str("path", entry.Path).
				Str("method", entry.Method).
				Int("status", entry.StatusCode).
				Str("remote_ip", entry.IPAddress).
				Str("request_id", entry.RequestID).
				Bool("emergency", entry.IsEmergency).
				Msg("access")

			return err
		}
	}
}
