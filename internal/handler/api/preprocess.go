package api

import (
	"ModelHub/internal/domain/models"
	"ModelHub/internal/services/preprocess"
	xhttp "ModelHub/pkg/http"
	applogger "ModelHub/pkg/logger"

	"github.com/labstack/echo/v4"
)

type textPreprocessResponse struct {
	Processed  []string            `json:"processed"`
	Vocabulary []string            `json:"vocabulary"`
	State      preprocess.State    `json:"state"`
	Snapshot   preprocess.Snapshot `json:"snapshot"`
}

// PreprocessHandler exposes the stateless text pipeline over HTTP.
type PreprocessHandler struct {
	logger *applogger.Logger
}

func NewPreprocessHandler(logger *applogger.Logger) *PreprocessHandler {
	return &PreprocessHandler{logger: logger}
}

func (h *PreprocessHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/preprocess/text", h.Text)
}

// Text fits a fresh pipeline on the batch and returns the cleaned documents
// with the snapshot needed to replay the same cleaning later.
func (h *PreprocessHandler) Text(c echo.Context) error {
	req := &models.TextPreprocessHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	cfg := preprocess.DefaultTextConfig()
	if req.RemoveStopwords != nil {
		cfg.RemoveStopwords = *req.RemoveStopwords
	}
	if req.Lemmatize != nil {
		cfg.Lemmatize = *req.Lemmatize
	}
	cfg.ExtraStopwords = req.ExtraStopwords

	p := preprocess.NewTextPreprocessor(cfg)
	out, err := preprocess.FitTransform[[]string, []string](p, req.Texts)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	snap, err := p.Snapshot()
	if err != nil {
		h.logger.Error("text snapshot failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, textPreprocessResponse{
		Processed:  out,
		Vocabulary: p.Vocabulary(),
		State:      p.State(),
		Snapshot:   snap,
	})
}
