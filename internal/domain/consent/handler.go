package consent

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/consents", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	g.POST("", h.Grant)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Revoke)
}

func (h *Handler) Grant(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())

	var req GrantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	grant, err := h.svc.Grant(c.Request().Context(), principal, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		case errors.Is(err, ErrGranteeNotFound), errors.Is(err, ErrInvalidScope):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, grant)
}

func (h *Handler) List(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())
	params := pagination.FromContext(c)

	grants, total, err := h.svc.ListFor(c.Request().Context(), principal, params.Limit, params.Offset)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if grants == nil {
		grants = []*ConsentGrant{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(grants, total, params.Limit, params.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid grant id")
	}
	grant, err := h.svc.GetByID(c.Request().Context(), principal, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, grant)
}

func (h *Handler) Revoke(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid grant id")
	}
	if err := h.svc.Revoke(c.Request().Context(), principal, id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "revoked"})
}
