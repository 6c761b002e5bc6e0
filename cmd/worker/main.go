package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/app"
	"github.com/imrishuroy/marketplace-orderflow/internal/config"
	"github.com/imrishuroy/marketplace-orderflow/internal/logger"
)

const defaultLocalBody = `{"topic":"orders_v2","resource":"/orders/2000000000000001"}`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	defer func() { _ = zl.Sync() }()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to build app", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	processor := NewProcessor(a.Runner, a.Validator, cfg.Worker.Concurrency, a.Metrics, zl)

	// Local mode simulates a single SQS record.
	if cfg.App.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = defaultLocalBody
		}
		event := events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local-1", Body: body}}}
		resp, err := processor.Handle(ctx, event)
		if err != nil || len(resp.BatchItemFailures) > 0 {
			zl.Fatal("local record failed", zap.Error(err))
		}
		return
	}

	lambda.Start(processor.Handle)
}
