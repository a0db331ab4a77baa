package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ModelHub/internal/domain/models"
	"ModelHub/internal/usecase"
	applogger "ModelHub/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsStreamFiltersByModel(t *testing.T) {
	hub := usecase.NewRunHub()
	e := echo.New()
	NewRunsHandler(applogger.NewNop(), hub).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/runs/ws?model_id=m-2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(models.RunEvent{RunID: "r-1", ModelID: "m-1", State: models.RunFitting})
	hub.Broadcast(models.RunEvent{RunID: "r-2", ModelID: "m-2", State: models.RunEvaluated})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.RunEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "m-2", got.ModelID)
	assert.Equal(t, models.RunEvaluated, got.State)
}

func TestRunsStreamUnsubscribesOnClose(t *testing.T) {
	hub := usecase.NewRunHub()
	e := echo.New()
	NewRunsHandler(applogger.NewNop(), hub).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/runs/ws", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
