package api

import (
	"context"
	"net/http"
	"time"

	"ModelHub/internal/domain/models"
	"ModelHub/internal/usecase"
	applogger "ModelHub/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// RunsHandler streams run state transitions over a websocket.
// ?run_id= or ?model_id= narrows the stream to one run or model.
type RunsHandler struct {
	logger   *applogger.Logger
	hub      *usecase.RunHub
	upgrader websocket.Upgrader
	buffer   int
}

func NewRunsHandler(logger *applogger.Logger, hub *usecase.RunHub) *RunsHandler {
	return &RunsHandler{
		logger: logger,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		buffer: 64,
	}
}

func (h *RunsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/runs/ws", h.Stream)
}

func (h *RunsHandler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Debug("websocket upgrade failed", applogger.Error(err))
		return nil
	}
	defer conn.Close()

	runID, modelID := c.QueryParam("run_id"), c.QueryParam("model_id")
	events, cancel := h.hub.Subscribe(h.buffer)
	defer cancel()

	ctx, stop := context.WithCancel(c.Request().Context())
	defer stop()

	// read loop: only control frames are expected; any error ends the stream
	go func() {
		defer stop()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !matches(ev, runID, modelID) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", applogger.Error(err))
				return nil
			}
		}
	}
}

func matches(ev models.RunEvent, runID, modelID string) bool {
	if runID != "" && ev.RunID != runID {
		return false
	}
	if modelID != "" && ev.ModelID != modelID {
		return false
	}
	return true
}
