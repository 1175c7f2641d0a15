package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/config"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/logging"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.MustNew(logging.Options{Service: "relay"}).Fatal("invalid configuration", zap.Error(err))
	}
	logger := logging.MustNew(logging.Options{Service: cfg.ServiceName, Environment: cfg.Environment, Level: cfg.LogLevel})
	defer logger.Sync()

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion, cfg.EndpointOverride)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	r := relay.New(
		aws.NewEventBus(clients.EventBridge, cfg.EventBusName),
		cfg.EventSource,
		aws.NewMetrics(clients.CloudWatch, cfg.Namespace, cfg.ServiceName, logger),
		logger,
	)
	handler := func(ctx context.Context, ev events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
		return r.Handle(ctx, ev), nil
	}

	// RUN_LOCAL=true relays the stream event in LOCAL_EVENT and exits.
	if cfg.RunLocal {
		var ev events.DynamoDBEvent
		if err := json.Unmarshal([]byte(os.Getenv("LOCAL_EVENT")), &ev); err != nil {
			logger.Fatal("invalid LOCAL_EVENT", zap.Error(err))
		}
		resp, _ := handler(context.Background(), ev)
		logger.Info("local run finished", zap.Int("failures", len(resp.BatchItemFailures)))
		return
	}

	lambda.Start(handler)
}
