package emergency

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medvault/medvault/internal/platform/auth"
)

type Handler struct {
	svc    *Service
	signer *auth.Signer
}

func NewHandler(svc *Service, signer *auth.Signer) *Handler {
	return &Handler{svc: svc, signer: signer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/me/emergency", h.Enable, auth.RequireRole(auth.RolePatient))
	api.DELETE("/patients/me/emergency", h.Disable, auth.RequireRole(auth.RolePatient))

	// Break-glass entry point. No session: the caller presents the secret
	// the patient shared out of band.
	api.POST("/patients/:id/emergency-access", h.Access)
}

// Enable issues a fresh secret for the calling patient. The secret appears
// in this response and nowhere else, ever.
func (h *Handler) Enable(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())

	secret, cred, err := h.svc.Enable(c.Request().Context(), principal.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"secret":     secret,
		"expires_at": cred.ExpiresAt,
	})
}

func (h *Handler) Disable(c echo.Context) error {
	principal, _ := auth.PrincipalFromContext(c.Request().Context())
	if err := h.svc.Disable(c.Request().Context(), principal.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "disabled"})
}

type accessRequest struct {
	Secret string `json:"secret"`
}

// Access verifies a presented break-glass secret and, on success, mints a
// short-lived read-only token scoped to the one patient.
func (h *Handler) Access(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req accessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Secret == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "secret is required")
	}

	if err := h.svc.Verify(c.Request().Context(), patientID, req.Secret); err != nil {
		if errors.Is(err, ErrInvalidSecret) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	token, err := h.signer.Mint(auth.EmergencyClaims(patientID), SessionTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"token":      token,
		"patient_id": patientID,
	})
}
