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

// Trainer is the training surface the handlers depend on.
type Trainer interface {
	Train(ctx context.Context, cmd usecase.TrainCommand) (*usecase.TrainResult, error)
	TrainBatch(ctx context.Context, cmds []usecase.TrainCommand) []usecase.BatchItem
	Forecast(ctx context.Context, id string, horizon int) (*usecase.ForecastResult, error)
	Get(ctx context.Context, id string) (*models.ModelRecord, error)
	List(ctx context.Context, family string, limit, offset int) ([]*models.ModelRecord, int64, error)
	Delete(ctx context.Context, id string) error
}

var _ Trainer = (*usecase.TrainingUseCase)(nil)

type batchItemResponse struct {
	Index  int                  `json:"index"`
	Result *usecase.TrainResult `json:"result,omitempty"`
	Error  *xhttp.AppError      `json:"error,omitempty"`
}

// TimeSeriesHandler serves training, upload and forecast endpoints.
type TimeSeriesHandler struct {
	logger     *applogger.Logger
	training   Trainer
	maxUpload  int64
	maxRows    int
	trainGuard []echo.MiddlewareFunc
}

func NewTimeSeriesHandler(logger *applogger.Logger, training Trainer, maxUpload int64, maxRows int, trainGuard ...echo.MiddlewareFunc) *TimeSeriesHandler {
	return &TimeSeriesHandler{
		logger:     logger,
		training:   training,
		maxUpload:  maxUpload,
		maxRows:    maxRows,
		trainGuard: trainGuard,
	}
}

func (h *TimeSeriesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/timeseries")
	g.POST("/train", h.Train, h.trainGuard...)
	g.POST("/train/batch", h.TrainBatch, h.trainGuard...)
	g.POST("/upload", h.Upload)
	g.GET("/models", h.ListModels)
	g.GET("/models/:id", h.GetModel)
	g.DELETE("/models/:id", h.DeleteModel)
	g.POST("/models/:id/forecast", h.Forecast)
}

func (h *TimeSeriesHandler) Train(c echo.Context) error {
	req := &models.TrainHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.training.Train(c.Request().Context(), usecase.CommandFromRequest(req))
	if err != nil {
		return h.fail(c, "train", err)
	}
	return xhttp.CreatedResponse(c, res)
}

func (h *TimeSeriesHandler) TrainBatch(c echo.Context) error {
	req := &models.TrainBatchHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cmds := make([]usecase.TrainCommand, len(req.Requests))
	for i := range req.Requests {
		cmds[i] = usecase.CommandFromRequest(&req.Requests[i])
	}
	items := h.training.TrainBatch(c.Request().Context(), cmds)

	out := make([]batchItemResponse, len(items))
	for i, it := range items {
		out[i] = batchItemResponse{Index: it.Index, Result: it.Result}
		if it.Err != nil {
			out[i].Error = toAppError(it.Err)
		}
	}
	return xhttp.SuccessResponse(c, out)
}

// Upload validates a CSV and returns the parsed series, ready to post to /train.
func (h *TimeSeriesHandler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("file is required").WithError(err))
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		return xhttp.AppErrorResponse(c, xhttp.TooLargeError("file", h.maxUpload))
	}
	f, err := fh.Open()
	if err != nil {
		return h.fail(c, "upload", err)
	}
	defer f.Close()

	summary, err := usecase.ReadSeriesCSV(f, c.FormValue("target_column"), c.FormValue("time_column"), h.maxRows)
	if err != nil {
		return h.fail(c, "upload", err)
	}
	return xhttp.SuccessResponse(c, summary)
}

func (h *TimeSeriesHandler) ListModels(c echo.Context) error {
	req := &models.ListModelsHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, total, err := h.training.List(c.Request().Context(), req.Family, req.Limit, req.Offset)
	if err != nil {
		return h.fail(c, "list models", err)
	}
	return xhttp.ListResponse(c, rows, total)
}

func (h *TimeSeriesHandler) GetModel(c echo.Context) error {
	rec, err := h.training.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get model", err)
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *TimeSeriesHandler) DeleteModel(c echo.Context) error {
	if err := h.training.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, "delete model", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *TimeSeriesHandler) Forecast(c echo.Context) error {
	req := &models.ForecastHTTPRequest{}
	// echo binds the query string only for GET, DELETE and HEAD; a JSON horizon overrides it
	if err := echo.QueryParamsBinder(c).Int("horizon", &req.Horizon).BindError(); err != nil {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code: "ERR_BIND", Field: "horizon", Message: "horizon must be an integer",
		}})
	}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.training.Forecast(c.Request().Context(), req.ID, req.Horizon)
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// fail renders err; only server-side failures are logged as errors.
func (h *TimeSeriesHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", applogger.String("route", c.Path()), applogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", applogger.String("route", c.Path()), applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}
