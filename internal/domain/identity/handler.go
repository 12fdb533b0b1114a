package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medvault/medvault/internal/platform/auth"
)

type Handler struct {
	svc        *Service
	signer     *auth.Signer
	sessionTTL time.Duration
}

func NewHandler(svc *Service, signer *auth.Signer, sessionTTL time.Duration) *Handler {
	return &Handler{svc: svc, signer: signer, sessionTTL: sessionTTL}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	api.GET("/patients/me", h.GetMe, auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	api.PUT("/patients/me", h.UpdateMe, auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	api.GET("/patients/dashboard", h.Dashboard, auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
}

type registerRequest struct {
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Register(c.Request().Context(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"user": p})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	token, err := h.signer.Mint(auth.SessionClaims(p.ID, p.Role), h.sessionTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"token": token, "user": p})
}

func (h *Handler) GetMe(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())
	p, err := h.svc.GetProfile(c.Request().Context(), principal.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"user": p})
}

func (h *Handler) UpdateMe(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())
	var upd ProfileUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdateProfile(c.Request().Context(), principal.ID, upd)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"user": p})
}

func (h *Handler) Dashboard(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())
	d, err := h.svc.Dashboard(c.Request().Context(), principal)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}
