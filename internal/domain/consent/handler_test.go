package consent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medvault/medvault/internal/platform/auth"
)

func serveAs(t *testing.T, h *Handler, p auth.Principal, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGrantEndpointStatusMapping(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)

	body := `{"grantee_id":"` + f.doctor.String() + `","scope_all":true}`
	rec := serveAs(t, h, f.patient, http.MethodPost, "/api/v1/consents", body)
	if rec.Code != http.StatusCreated {
		t.Errorf("valid grant: status = %d, want 201: %s", rec.Code, rec.Body)
	}

	// Unknown doctor grantee is a semantic rejection.
	body = `{"grantee_id":"` + uuid.NewString() + `","scope_all":true}`
	rec = serveAs(t, h, f.patient, http.MethodPost, "/api/v1/consents", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown grantee: status = %d, want 422", rec.Code)
	}

	// Granting on another patient's behalf without ADMIN.
	body = `{"patient_id":"` + uuid.NewString() + `","grantee_id":"` + f.doctor.String() + `","scope_all":true}`
	rec = serveAs(t, h, f.patient, http.MethodPost, "/api/v1/consents", body)
	if rec.Code != http.StatusForbidden {
		t.Errorf("on-behalf grant: status = %d, want 403", rec.Code)
	}
}

func TestRevokeEndpointStatusMapping(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)

	g, err := f.svc.Grant(context.Background(), f.patient, GrantRequest{GranteeID: f.doctor, ScopeAll: true})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	stranger := auth.Principal{ID: uuid.New(), Role: auth.RolePatient}
	rec := serveAs(t, h, stranger, http.MethodDelete, "/api/v1/consents/"+g.ID.String(), "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("stranger revoke: status = %d, want 403", rec.Code)
	}

	rec = serveAs(t, h, f.patient, http.MethodDelete, "/api/v1/consents/"+g.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Errorf("owner revoke: status = %d, want 200: %s", rec.Code, rec.Body)
	}

	rec = serveAs(t, h, f.patient, http.MethodDelete, "/api/v1/consents/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown grant: status = %d, want 404", rec.Code)
	}

	rec = serveAs(t, h, f.patient, http.MethodDelete, "/api/v1/consents/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id: status = %d, want 400", rec.Code)
	}
}
