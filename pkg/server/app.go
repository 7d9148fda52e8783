package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignalHub/internal/hub"
	"SignalHub/internal/usecase"
	xhttp "SignalHub/pkg/http"
	pkgkafka "SignalHub/pkg/kafka"
	applogger "SignalHub/pkg/logger"
)

// Closer is a resource released at shutdown, in registration order.
type Closer struct {
	Name string
	io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	log        *applogger.Logger
	httpServer *xhttp.Server
	hub        *hub.Hub
	refresher  *usecase.CandleRefresher
	relay      *usecase.PriceRelay
	consumer   *pkgkafka.Consumer
	handler    pkgkafka.MessageHandler
	closers    []Closer
}

// Option attaches an optional background component.
type Option func(*App)

func WithRefresher(r *usecase.CandleRefresher) Option {
	return func(a *App) { a.refresher = r }
}

func WithPriceRelay(r *usecase.PriceRelay) Option {
	return func(a *App) { a.relay = r }
}

// WithConsumer registers h on c and runs c with the app.
func WithConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.handler = h
	}
}

// WithClosers appends resources released after every component stopped.
func WithClosers(cs ...Closer) Option {
	return func(a *App) { a.closers = append(a.closers, cs...) }
}

// New creates a new App instance with all dependencies.
func New(log *applogger.Logger, httpServer *xhttp.Server, h *hub.Hub, opts ...Option) *App {
	a := &App{log: log, httpServer: httpServer, hub: h}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx ends, then shuts
// down in reverse start order.
func (a *App) RunContext(ctx context.Context) error {
	bg, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.hub.Run(bg)

	if a.refresher != nil {
		if err := a.refresher.Start(bg); err != nil {
			return err
		}
	}
	if a.relay != nil {
		a.relay.Start(bg)
	}
	if a.consumer != nil && a.handler != nil {
		a.consumer.RegisterHandler(a.handler)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start", applogger.Error(err))
		} else {
			a.log.Info("kafka consumer started", applogger.String("topic", a.handler.Topic()))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	shutdownCtx, done := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer done()
	a.shutdown(shutdownCtx, cancel)
	return nil
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context, cancel context.CancelFunc) {
	start := time.Now()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.relay != nil {
		if err := a.relay.Shutdown(ctx); err != nil {
			a.log.Warn("price relay stop error", applogger.Error(err))
		}
	}
	if a.refresher != nil {
		a.refresher.Stop()
	}

	if err := a.hub.Close(); err != nil {
		a.log.Warn("hub close error", applogger.Error(err))
	}
	cancel()

	for _, c := range a.closers {
		if c.Closer == nil {
			continue
		}
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete", applogger.Duration("took_ms", time.Since(start)))
}
