package tenantadmin

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole("admin"))
	admin.POST("/tenants", h.Create)
	admin.GET("/tenants", h.List)
	admin.GET("/tenants/:name", h.Get)
	admin.DELETE("/tenants/:name", h.Deactivate)
}

type createRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

type tenantResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func toResponse(t *db.Tenant) tenantResponse {
	return tenantResponse{
		ID:          t.ID.String(),
		Name:        t.Name.String(),
		DisplayName: t.DisplayName,
		Active:      t.Active,
		CreatedAt:   t.CreatedAt,
	}
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	t, err := h.svc.Provision(c.Request().Context(), req.Name, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrTenantExists):
			return echo.NewHTTPError(http.StatusConflict, "tenant already exists")
		case errors.Is(err, db.ErrEmptyTenantID),
			errors.Is(err, db.ErrInvalidTenantID),
			errors.Is(err, db.ErrReservedTenantID),
			errors.Is(err, db.ErrTenantIDTooLong):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, toResponse(t))
}

func (h *Handler) Get(c echo.Context) error {
	t, err := h.svc.Get(c.Request().Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, db.ErrTenantNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, toResponse(t))
}

func (h *Handler) List(c echo.Context) error {
	tenants, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, toResponse(t))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Deactivate(c echo.Context) error {
	err := h.svc.Deactivate(c.Request().Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, db.ErrTenantNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
