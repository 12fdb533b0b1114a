package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func doAuthedRequest(t *testing.T, signer *Signer, authHeader string) (*httptest.ResponseRecorder, *Principal) {
	t.Helper()
	e := echo.New()
	var captured *Principal
	e.GET("/protected", func(c echo.Context) error {
		if p, ok := PrincipalFromContext(c.Request().Context()); ok {
			captured = &p
		}
		return c.NoContent(http.StatusOK)
	}, Middleware(signer, nil))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, captured
}

func TestMiddlewareAcceptsSessionToken(t *testing.T) {
	s := newTestSigner(t, 1)
	principalID := uuid.New()
	token, err := s.Mint(SessionClaims(principalID, RoleDoctor), time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	rec, p := doAuthedRequest(t, s, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if p == nil {
		t.Fatal("principal missing from context")
	}
	if p.ID != principalID || p.Role != RoleDoctor {
		t.Errorf("principal = %+v", p)
	}
}

func TestMiddlewareAcceptsEmergencyToken(t *testing.T) {
	s := newTestSigner(t, 1)
	patientID := uuid.New()
	token, err := s.Mint(EmergencyClaims(patientID), 15*time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	rec, p := doAuthedRequest(t, s, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if p == nil {
		t.Fatal("principal missing from context")
	}
	if p.Role != RoleEmergency || p.ScopedPatientID != patientID {
		t.Errorf("principal = %+v, want EMERGENCY scoped to %s", p, patientID)
	}
}

func TestMiddlewareRejectsShareToken(t *testing.T) {
	s := newTestSigner(t, 1)
	token, err := s.Mint(ShareClaims(uuid.New(), uuid.New()), 15*time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	rec, _ := doAuthedRequest(t, s, "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("share token opened a session: status = %d", rec.Code)
	}
}

func TestMiddlewareRejectsBadHeaders(t *testing.T) {
	s := newTestSigner(t, 1)
	for _, header := range []string{"", "Bearer", "Bearer bad.token.here", "Basic dXNlcg=="} {
		rec, _ := doAuthedRequest(t, s, header)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, rec.Code)
		}
	}
}

func TestSkipperBypassesAuth(t *testing.T) {
	s := newTestSigner(t, 1)
	e := echo.New()
	e.GET("/public/ping", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, Middleware(s, Skipper("/public/")))

	req := httptest.NewRequest(http.MethodGet, "/public/ping", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	serve := func(p *Principal, roles ...Role) int {
		e := echo.New()
		e.GET("/r", handler, RequireRole(roles...))
		req := httptest.NewRequest(http.MethodGet, "/r", nil)
		if p != nil {
			req = req.WithContext(WithPrincipal(req.Context(), *p))
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	doctor := &Principal{ID: uuid.New(), Role: RoleDoctor}
	admin := &Principal{ID: uuid.New(), Role: RoleAdmin}
	patient := &Principal{ID: uuid.New(), Role: RolePatient}

	if code := serve(nil, RolePatient); code != http.StatusUnauthorized {
		t.Errorf("unauthenticated: status = %d, want 401", code)
	}
	if code := serve(doctor, RoleDoctor); code != http.StatusOK {
		t.Errorf("doctor on doctor route: status = %d, want 200", code)
	}
	if code := serve(patient, RoleDoctor); code != http.StatusForbidden {
		t.Errorf("patient on doctor route: status = %d, want 403", code)
	}
	if code := serve(admin, RolePatient); code != http.StatusOK {
		t.Errorf("admin passes every role check: status = %d, want 200", code)
	}
}
