package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"SetupScan/internal/service/alerthub"
	"SetupScan/internal/usecase"
	"SetupScan/pkg/config"
	xhttp "SetupScan/pkg/http"
	pkgkafka "SetupScan/pkg/kafka"
	applogger "SetupScan/pkg/logger"
)

type namedCloser struct {
	name string
	c    io.Closer
}

// Option customizes App.
type Option func(*App)

// WithRelay feeds the alert hub from Kafka through consumer.
func WithRelay(consumer *pkgkafka.Consumer, relay *usecase.AlertRelay) Option {
	return func(a *App) {
		a.consumer = consumer
		a.relay = relay
	}
}

// WithCloser registers an infrastructure client closed on shutdown, in reverse order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		a.closers = append(a.closers, namedCloser{name: name, c: c})
	}
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	scanner     *usecase.Scanner
	hub         *alerthub.Hub
	consumer    *pkgkafka.Consumer
	relay       *usecase.AlertRelay
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	closers     []namedCloser
	wg          sync.WaitGroup
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, scanner *usecase.Scanner, h xhttp.Handler,
	hub *alerthub.Hub, opts ...Option) *App {
	a := &App{cfg: cfg, l: l, scanner: scanner, hub: hub, httpHandler: h}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the scanner, the alert feed and the HTTP API, and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext is Run with an explicit lifetime.
func (a *App) RunContext(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.goRun(func() { a.hub.Run(ctx) })

	if a.consumer != nil && a.relay != nil {
		a.consumer.RegisterHandler(a.relay)
		if err := a.consumer.Start(ctx); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			cancel()
			return a.shutdown(err)
		}
		a.l.Info("alert relay started", applogger.String("topic", a.relay.Topic()))
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORS),
		xhttp.WithSlowRequest(a.cfg.Server.SlowRequest),
		xhttp.WithLogger(a.l),
	)
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		cancel()
		return a.shutdown(err)
	}

	a.goRun(func() {
		if err := a.scanner.Run(ctx); err != nil {
			a.l.Error("scanner error", applogger.Error(err))
		}
	})
	a.l.Info("setupscan started",
		applogger.Strings("pairs", a.cfg.Scanner.Pairs),
		applogger.Int("port", a.cfg.Server.Port))

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	cancel()
	return a.shutdown(nil)
}

// ScanOnce performs a single scan tick and releases every client.
func (a *App) ScanOnce(ctx context.Context) (usecase.TickReport, error) {
	rep, err := a.scanner.RunTick(ctx)
	return rep, a.shutdown(err)
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// shutdown gracefully stops all services. cause is returned joined with any close errors.
func (a *App) shutdown(cause error) error {
	a.l.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	errs := []error{cause}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.l.Warn("background workers did not stop in time")
	}

	a.l.RemoveCollector()
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("client", nc.name), applogger.Error(err))
		}
	}
	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
