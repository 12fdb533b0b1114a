package records

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medvault/medvault/internal/platform/auth"
	"github.com/medvault/medvault/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// RegisterRoutes mounts the record endpoints. EMERGENCY principals only
// reach the read routes; write and share routes never accept them, which is
// how the read-only bound on break-glass access is enforced.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/records")

	g.GET("", h.List, auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleEmergency))
	g.GET("/:id", h.Get, auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleEmergency))
	g.GET("/:id/download", h.Download, auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleEmergency))

	g.POST("", h.Create, auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	g.PATCH("/:id/consent", h.ToggleConsent, auth.RequireRole(auth.RolePatient))
	g.POST("/:id/qr", h.IssueShare, auth.RequireRole(auth.RolePatient))

	// Token is the capability; no session required.
	g.GET("/qr/:token", h.ResolveShare)
}

func (h *Handler) Create(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())

	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.Create(c.Request().Context(), principal, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		case errors.Is(err, ErrPatientNotFound):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) List(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())
	params := pagination.FromContext(c)

	recs, total, err := h.svc.List(c.Request().Context(), principal, params.Limit, params.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if recs == nil {
		recs = []*HealthRecord{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(recs, total, params.Limit, params.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	rec, err := h.svc.Get(c.Request().Context(), principal, id)
	if err != nil {
		return recordError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type toggleConsentRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) ToggleConsent(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	var req toggleConsentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.ToggleConsent(c.Request().Context(), principal, id, req.Enabled)
	if err != nil {
		return recordError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) IssueShare(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	token, expiresAt, err := h.svc.IssueShare(c.Request().Context(), principal, id)
	if err != nil {
		if errors.Is(err, ErrSharingDisabled) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return recordError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt,
	})
}

func (h *Handler) ResolveShare(c echo.Context) error {
	rec, err := h.svc.ResolveShare(c.Request().Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return recordError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Download(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	fileRef, err := h.svc.Download(c.Request().Context(), principal, id)
	if err != nil {
		if errors.Is(err, ErrNoFile) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return recordError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"file_ref": fileRef})
}

// recordError maps service errors onto HTTP status codes. An existing but
// forbidden record is 403, never 404; the tradeoff is discussed in the
// service docs.
func recordError(err error) error {
	var denied *AccessDeniedError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	case errors.As(err, &denied):
		return echo.NewHTTPError(http.StatusForbidden, denied.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
