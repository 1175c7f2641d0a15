package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/config"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/generator"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/logging"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/orders"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.MustNew(logging.Options{Service: "generator"}).Fatal("invalid configuration", zap.Error(err))
	}
	logger := logging.MustNew(logging.Options{Service: cfg.ServiceName, Environment: cfg.Environment, Level: cfg.LogLevel})
	defer logger.Sync()

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion, cfg.EndpointOverride)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	gen := generator.New(
		orders.NewStore(clients.DynamoDB, cfg.OrdersTable),
		aws.NewPublisher(clients.SQS, cfg.QueueURL),
		aws.NewMetrics(clients.CloudWatch, cfg.Namespace, cfg.ServiceName, logger),
		logger,
		generator.Options{
			BatchSize:          cfg.BatchSize,
			Sources:            cfg.Sources,
			DeliveryOffsetDays: cfg.DeliveryOffsetDays,
			Location:           cfg.Location(),
		},
	)

	// RUN_LOCAL=true generates a single batch and exits.
	if cfg.RunLocal {
		res := gen.Generate(context.Background())
		logger.Info("local run finished", zap.Int("statusCode", res.StatusCode))
		if res.StatusCode != response.OK().StatusCode {
			os.Exit(1)
		}
		return
	}

	lambda.Start(func(ctx context.Context) (response.Response, error) {
		return gen.Generate(ctx), nil
	})
}
