package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"NeuralTrade/internal/middleware"
	"NeuralTrade/internal/service/stream"
	"NeuralTrade/pkg/config"
	xhttp "NeuralTrade/pkg/http"
	pkgkafka "NeuralTrade/pkg/kafka"
	applogger "NeuralTrade/pkg/logger"
	"NeuralTrade/pkg/queue"
)

// Components are the long-running parts the App starts and stops.
// Anything other than HTTP may be nil when its backend is disabled.
type Components struct {
	HTTP          *xhttp.Server
	Consumer      *pkgkafka.Consumer
	CandleHandler pkgkafka.MessageHandler
	OutcomeQueue  *queue.RedisQueue
	Dispatcher    *middleware.SignalDispatcher
	Hub           *stream.Hub
	// Closers release infrastructure clients after everything else stopped.
	Closers []io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg    *config.Config
	logger *applogger.Logger
	c      Components
}

func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{cfg: cfg, logger: l, c: c}
}

// Run starts the application and blocks until interrupted or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}

	a.logger.Info("neuraltrade started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("version", a.cfg.Version),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Bool("kafka", a.c.Consumer != nil),
		applogger.Bool("outcome_queue", a.c.OutcomeQueue != nil),
	)

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) start(ctx context.Context) error {
	if a.c.Dispatcher != nil {
		a.c.Dispatcher.Start(ctx)
	}

	if a.c.OutcomeQueue != nil {
		if err := a.c.OutcomeQueue.Start(); err != nil {
			return fmt.Errorf("outcome queue: %w", err)
		}
	}

	if a.c.Consumer != nil && a.c.CandleHandler != nil {
		a.c.Consumer.WithConsumerHook(pkgkafka.TraceHook())
		a.c.Consumer.RegisterHandler(a.c.CandleHandler)
		if err := a.c.Consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.logger.Info("candle consumer started", applogger.String("topic", a.c.CandleHandler.Topic()))
	}

	if err := a.c.HTTP.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// shutdown stops intake first (HTTP, Kafka), then background work, then clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	var errs []error
	if a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if a.c.OutcomeQueue != nil {
		if err := a.c.OutcomeQueue.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("outcome queue: %w", err))
		}
	}
	if a.c.Dispatcher != nil {
		a.c.Dispatcher.Flush(ctx)
		a.c.Dispatcher.Stop()
		if left := a.c.Dispatcher.Buffered(); left > 0 {
			a.logger.Warn("signals dropped at shutdown", applogger.Int("count", left))
		}
	}
	if a.c.Hub != nil {
		_ = a.c.Hub.Close()
	}
	for _, c := range a.c.Closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		a.logger.Error("shutdown finished with errors", applogger.Error(err))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
