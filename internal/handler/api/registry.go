package api

import (
	"context"
	"net/http"

	"ModelHub/internal/domain/models"
	"ModelHub/internal/usecase"
	xhttp "ModelHub/pkg/http"
	applogger "ModelHub/pkg/logger"

	"github.com/labstack/echo/v4"
)

type Registry interface {
	Create(ctx context.Context, req *models.CreateRegistryHTTPRequest) (*models.RegistryEntry, error)
	Get(ctx context.Context, id string) (*models.RegistryEntry, error)
	List(ctx context.Context, f models.RegistryFilter) ([]*models.RegistryEntry, int64, error)
	Update(ctx context.Context, id string, patch models.RegistryPatch) (*models.RegistryEntry, error)
	Delete(ctx context.Context, id string) error
}

var _ Registry = (*usecase.RegistryUseCase)(nil)

// RegistryHandler serves generic model metadata under /api/v1/models.
type RegistryHandler struct {
	logger   *applogger.Logger
	registry Registry
}

func NewRegistryHandler(logger *applogger.Logger, registry Registry) *RegistryHandler {
	return &RegistryHandler{logger: logger, registry: registry}
}

func (h *RegistryHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/models")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

func (h *RegistryHandler) Create(c echo.Context) error {
	req := &models.CreateRegistryHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	e, err := h.registry.Create(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.CreatedResponse(c, e)
}

func (h *RegistryHandler) List(c echo.Context) error {
	req := &models.ListRegistryHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, total, err := h.registry.List(c.Request().Context(), req.Filter())
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.ListResponse(c, rows, total)
}

func (h *RegistryHandler) Get(c echo.Context) error {
	e, err := h.registry.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, e)
}

func (h *RegistryHandler) Update(c echo.Context) error {
	req := &models.UpdateRegistryHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	e, err := h.registry.Update(c.Request().Context(), req.ID, req.Patch())
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, e)
}

func (h *RegistryHandler) Delete(c echo.Context) error {
	if err := h.registry.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *RegistryHandler) fail(c echo.Context, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("registry request failed", applogger.String("route", c.Path()), applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}
