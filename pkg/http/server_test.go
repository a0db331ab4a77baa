package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routeFunc func(e *echo.Echo)

func (f routeFunc) RegisterRoutes(e *echo.Echo) { f(e) }

type pingRequest struct {
	Name  string `json:"name" validate:"required,max=8"`
	Count int    `json:"count" default:"3" validate:"gte=1"`
}

func testServer(opts ...ServerOption) *Server {
	routes := routeFunc(func(e *echo.Echo) {
		e.POST("/ping", func(c echo.Context) error {
			req := &pingRequest{}
			if verr := ReadAndValidateRequest(c, req); verr != nil {
				return BadRequestResponse(c, verr)
			}
			return CreatedResponse(c, req)
		})
		e.GET("/missing", func(c echo.Context) error {
			return AppErrorResponse(c, NotFoundError("model x").WithParam("id", "x"))
		})
		e.GET("/wrapped", func(c echo.Context) error {
			return AppErrorResponse(c, fmt.Errorf("lookup: %w", BadRequestError("bad id")))
		})
		e.GET("/plain", func(c echo.Context) error {
			return AppErrorResponse(c, errors.New("boom"))
		})
		e.GET("/panic", func(c echo.Context) error {
			panic("kaboom")
		})
	})
	return NewServer([]Handler{routes, nil}, opts...)
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestReadAndValidateRequest(t *testing.T) {
	s := testServer()

	rec := serve(s, http.MethodPost, "/ping", `{"name":"abc"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.EqualValues(t, 3, resp.Data.(map[string]interface{})["count"], "default applied")

	rec = serve(s, http.MethodPost, "/ping", `{"name":"far-too-long"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var bad ValidationErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bad))
	require.Len(t, bad.Data, 1)
	assert.Equal(t, "ERR_MAX", bad.Data[0].Code)
	assert.Equal(t, "name", bad.Data[0].Field)
	assert.Equal(t, "8", bad.Data[0].Params["max"])
}

func TestAppErrorResponse(t *testing.T) {
	s := testServer()

	rec := serve(s, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"ERR_NOT_FOUND"`)
	assert.Contains(t, rec.Body.String(), `"message":"model x"`)

	rec = serve(s, http.MethodGet, "/wrapped", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(s, http.MethodGet, "/plain", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestRecoverMiddleware(t *testing.T) {
	rec := serve(testServer(), http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthz(t *testing.T) {
	ok := testServer(WithHealthCheck("store", func(context.Context) error { return nil }))
	rec := serve(ok, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"ok"`)

	down := testServer(
		WithHealthCheck("store", func(context.Context) error { return nil }),
		WithHealthCheck("cache", func(context.Context) error { return errors.New("redis unreachable") }),
	)
	rec = serve(down, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis unreachable")
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer()
	serve(s, http.MethodGet, "/missing", "")

	rec := serve(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "modelhub_http_requests_total")

	rec = serve(testServer(WithMetricsPath("")), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartBindsBeforeReturning(t *testing.T) {
	s := testServer(WithListen("127.0.0.1", 0))
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	busy := testServer(WithListen("127.0.0.1", portOf(t, s.Addr())))
	assert.Error(t, busy.Start(), "port already bound")
}

func portOf(t *testing.T, addr string) int {
	t.Helper()
	_, p, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	n, err := strconv.Atoi(p)
	require.NoError(t, err)
	return n
}

func TestServerOptions(t *testing.T) {
	s := testServer(WithListen("127.0.0.1", 9099), WithTimeouts(0, 0, 0))
	assert.Equal(t, 9099, s.config.port)
	assert.Empty(t, s.Addr(), "not started")
	assert.Equal(t, 10*time.Second, s.ShutdownTimeout(), "zero keeps the default")
}
