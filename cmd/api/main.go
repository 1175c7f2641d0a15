package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/config"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/handlers"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/logging"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(cfg.Logger))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.MustNew(logging.Options{Service: "api"}).Fatal("invalid configuration", zap.Error(err))
	}
	logger := logging.MustNew(logging.Options{Service: cfg.ServiceName, Environment: cfg.Environment, Level: cfg.LogLevel})
	defer logger.Sync()

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion, cfg.EndpointOverride)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	r := setupRouter(handlers.HandlerConfig{
		DynamoDBClient:     clients.DynamoDB,
		SQSClient:          clients.SQS,
		IdempotencyTable:   cfg.IdempotencyTable,
		OrdersTable:        cfg.OrdersTable,
		QueueURL:           cfg.QueueURL,
		TTLWindow:          cfg.IdempotencyTTL,
		Sources:            cfg.Sources,
		BatchSize:          cfg.BatchSize,
		DeliveryOffsetDays: cfg.DeliveryOffsetDays,
		Location:           cfg.Location(),
		Logger:             logger,
		Metrics:            aws.NewMetrics(clients.CloudWatch, cfg.Namespace, cfg.ServiceName, logger),
	})

	// RUN_LOCAL=true serves HTTP on :8080 for development.
	if cfg.RunLocal {
		addr := ":8080"
		logger.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
