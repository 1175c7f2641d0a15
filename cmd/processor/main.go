package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/config"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/lockers"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/logging"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/orders"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/processor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.MustNew(logging.Options{Service: "processor"}).Fatal("invalid configuration", zap.Error(err))
	}
	logger := logging.MustNew(logging.Options{Service: cfg.ServiceName, Environment: cfg.Environment, Level: cfg.LogLevel})
	defer logger.Sync()

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion, cfg.EndpointOverride)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	requeueURL, err := cfg.ReenqueueQueueURL()
	if err != nil {
		logger.Fatal("invalid re-enqueue queue", zap.Error(err))
	}

	// Without a reservations table lockers are drawn at random, as in the demo deployment.
	var allocator lockers.Allocator = lockers.NewRandomPool(cfg.LockerPoolSize)
	if cfg.LockersTable != "" {
		allocator = lockers.NewTableAllocator(clients.DynamoDB, cfg.LockersTable, cfg.LockerPoolSize)
	}
	var deadLetter processor.Sender
	if cfg.DeadLetterQueueURL != "" {
		deadLetter = aws.NewPublisher(clients.SQS, cfg.DeadLetterQueueURL)
	}

	p := processor.New(
		orders.NewStore(clients.DynamoDB, cfg.OrdersTable),
		allocator,
		aws.NewPublisher(clients.SQS, requeueURL),
		deadLetter,
		aws.NewMetrics(clients.CloudWatch, cfg.Namespace, cfg.ServiceName, logger),
		logger,
		processor.Options{Strategy: cfg.Strategy, Location: cfg.Location()},
	)

	// RUN_LOCAL=true processes the event in LOCAL_EVENT (or runs the sweep) and exits.
	if cfg.RunLocal {
		out, err := p.Invoke(context.Background(), json.RawMessage(os.Getenv("LOCAL_EVENT")))
		if err != nil {
			logger.Fatal("local handler error", zap.Error(err))
		}
		logger.Info("local run finished", zap.Any("result", out))
		return
	}

	lambda.Start(p.Invoke)
}
