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
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/consumer"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/logging"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/response"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/routing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.MustNew(logging.Options{Service: "consumer"}).Fatal("invalid configuration", zap.Error(err))
	}
	logger := logging.MustNew(logging.Options{Service: cfg.ServiceName, Environment: cfg.Environment, Level: cfg.LogLevel})
	defer logger.Sync()

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion, cfg.EndpointOverride)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	rule := routing.AcceptedOrderRule(cfg.EventSource, cfg.ConsumerSourcePrefix)
	if pattern, err := rule.EventPattern.JSON(); err == nil {
		logger.Debug("consumer rule", zap.String("rule", rule.Name), zap.String("eventPattern", pattern))
	}
	c := consumer.New(rule, aws.NewMetrics(clients.CloudWatch, cfg.Namespace, cfg.ServiceName, logger), logger)
	handler := func(ctx context.Context, ev events.EventBridgeEvent) (response.Response, error) {
		return c.Handle(ctx, ev), nil
	}

	// RUN_LOCAL=true handles the bus event in LOCAL_EVENT and exits.
	if cfg.RunLocal {
		var ev events.EventBridgeEvent
		if err := json.Unmarshal([]byte(os.Getenv("LOCAL_EVENT")), &ev); err != nil {
			logger.Fatal("invalid LOCAL_EVENT", zap.Error(err))
		}
		res, _ := handler(context.Background(), ev)
		logger.Info("local run finished", zap.Int("statusCode", res.StatusCode))
		return
	}

	lambda.Start(handler)
}
