package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"ModelHub/pkg/config"
	xhttp "ModelHub/pkg/http"
	pkgkafka "ModelHub/pkg/kafka"
	applogger "ModelHub/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	closers    []io.Closer
}

// Option configures optional App components.
type Option func(*App)

// WithConsumer runs consumer with kh registered. A nil consumer is ignored.
func WithConsumer(consumer *pkgkafka.Consumer, kh pkgkafka.MessageHandler) Option {
	return func(a *App) {
		if consumer != nil && kh != nil {
			a.consumer, a.kh = consumer, kh
		}
	}
}

// WithClosers registers resources released in order after the servers stop.
func WithClosers(closers ...io.Closer) Option {
	return func(a *App) {
		a.closers = append(a.closers, closers...)
	}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	a := &App{cfg: cfg, log: l, httpServer: httpServer}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the servers and blocks until ctx is done, then shuts down.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.start(); err != nil {
		a.shutdown()
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) start() error {
	if a.consumer != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start failed", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("modelhub started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("store", a.cfg.Store.Driver),
		applogger.Bool("kafka", a.cfg.Kafka.Enabled),
	)
	return nil
}

// shutdown stops intake first so nothing is mid-write when the store closes:
// HTTP, then the consumer, then the log collector, then the registered closers.
func (a *App) shutdown() error {
	a.log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer cancel()

	var firstErr error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		firstErr = err
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	// flushes aggregated logs while the producer is still open
	a.log.RemoveCollector()

	for _, c := range a.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return firstErr
}
