package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowRefills(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(2, 1)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, wait := l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)
	ok, _ = l.Allow("b")
	assert.True(t, ok, "buckets are per key")

	now = now.Add(1500 * time.Millisecond)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, wait = l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 500*time.Millisecond, wait)
	assert.Equal(t, 2, l.Len())
}

func TestSweepDropsRefilledBuckets(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(1, 1)
	l.now = func() time.Time { return now }
	for i := 0; i < maxIdleKeys; i++ {
		l.Allow(strconv.Itoa(i))
	}
	require.Equal(t, maxIdleKeys, l.Len())

	now = now.Add(time.Minute)
	l.Allow("fresh")
	assert.Equal(t, 1, l.Len())
}

func TestMiddlewareReturns429(t *testing.T) {
	e := echo.New()
	l := New(1, 0.5)
	l.now = func() time.Time { return time.Unix(0, 0) }
	e.POST("/train", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, Middleware(l, nil))

	codes := make([]int, 0, 2)
	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		last = httptest.NewRecorder()
		e.ServeHTTP(last, httptest.NewRequest(http.MethodPost, "/train", nil))
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "2", last.Header().Get("Retry-After"))
	assert.Contains(t, last.Body.String(), `"code":"ERR_RATE_LIMITED"`)
}
