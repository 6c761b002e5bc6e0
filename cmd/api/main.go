package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/app"
	"github.com/imrishuroy/marketplace-orderflow/internal/config"
	"github.com/imrishuroy/marketplace-orderflow/internal/handlers"
	"github.com/imrishuroy/marketplace-orderflow/internal/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to build app", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	if cfg.App.RunLocal {
		if err := runLocal(ctx, a); err != nil {
			zl.Error("local server stopped with error", zap.Error(err))
		}
		return
	}

	if a.Publisher == nil {
		zl.Fatal("aws.queue_url is required in lambda mode")
	}
	adapter := ginadapter.New(a.Engine(handlers.NewQueueEnqueuer(a.Publisher)))

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

// runLocal serves the webhook over HTTP with an in-process worker pool until ctx is cancelled.
func runLocal(ctx context.Context, a *app.App) error {
	pool := a.NewPool()
	pool.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + a.Config.App.Port,
		Handler:           a.Engine(pool),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("running local server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("http shutdown", zap.Error(err))
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		a.Logger.Warn("worker pool shutdown", zap.Error(err))
	}
	a.Logger.Info("shutdown complete")
	return serveErr
}
