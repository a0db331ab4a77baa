package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"ModelHub/pkg/config"
	xhttp "ModelHub/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	name  string
	order *[]string
	err   error
}

func (c closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestRunContextClosesInOrder(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Driver = "sqlite"

	var order []string
	srv := xhttp.NewServer(nil, xhttp.WithListen("127.0.0.1", 0), xhttp.WithTimeouts(0, 0, time.Second))
	app := New(cfg, nil, srv,
		WithConsumer(nil, nil),
		WithClosers(
			closeRecorder{name: "events", order: &order},
			nil,
			closeRecorder{name: "cache", order: &order, err: errors.New("already closed")},
			closeRecorder{name: "store", order: &order},
		),
	)
	assert.Nil(t, app.consumer, "nil consumer is ignored")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.RunContext(ctx))
	assert.Equal(t, []string{"events", "cache", "store"}, order, "close errors do not stop later closers")
}
