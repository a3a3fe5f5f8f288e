package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/nlud/internal/logger"
)

const defaultShutdownTimeout = 30 * time.Second

// Scheduler runs periodic tasks between Start and Stop.
type Scheduler interface {
	Start() error
	Stop() error
}

// Listener runs until its context is canceled, e.g. the Telegram admin bot.
type Listener interface {
	Start(ctx context.Context)
}

// Runner runs the daemon around an initialized Application.
type Runner struct {
	logger          *slog.Logger
	app             *Application
	scheduler       Scheduler
	listener        Listener
	shutdownTimeout time.Duration
}

// NewRunner creates a Runner. listener may be nil.
func NewRunner(log *slog.Logger, app *Application, scheduler Scheduler, listener Listener) *Runner {
	if log == nil {
		log = logger.Discard()
	}
	return &Runner{
		logger:          log.With("component", "runner"),
		app:             app,
		scheduler:       scheduler,
		listener:        listener,
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// Run starts the scheduler and the listener and blocks until ctx is canceled
// or one of them fails. The application is torn down before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Starting daemon...")

	g, gCtx := errgroup.WithContext(ctx)

	if r.listener != nil {
		g.Go(func() error {
			r.logger.Info("Starting Telegram admin listener...")

			r.listener.Start(gCtx)
			r.logger.Info("Telegram admin listener stopped.")

			if gCtx.Err() == nil {
				r.logger.Warn("Telegram admin listener stopped unexpectedly without context cancellation.")
				return fmt.Errorf("telegram listener stopped unexpectedly")
			}
			return nil
		})
	}

	g.Go(func() error {
		r.logger.Info("Starting scheduler...")
		if err := r.scheduler.Start(); err != nil {
			r.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		r.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := r.scheduler.Stop(); err != nil {
			r.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	r.logger.Info("Daemon running. Waiting for shutdown signal or error...")
	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()
	if teardownErr := r.app.Teardown(shutdownCtx); teardownErr != nil {
		r.logger.Error("Application teardown failed", "error", teardownErr)
		if err == nil {
			err = teardownErr
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("Daemon stopped due to error", "error", err)
		return err
	}

	r.logger.Info("Daemon stopped gracefully.")
	return nil
}
