package aws

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Counter records count metrics. Implementations never fail the caller.
type Counter interface {
	Count(ctx context.Context, name string, value float64)
}

// Metrics publishes count metrics to CloudWatch under a namespace with a service dimension.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	service   string
	logger    *zap.Logger
	nowFunc   func() time.Time
}

// NewMetrics returns a CloudWatch backed Counter.
func NewMetrics(client CloudWatchAPI, namespace, service string, logger *zap.Logger) *Metrics {
	return &Metrics{
		client:    client,
		namespace: namespace,
		service:   service,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// Count publishes a single datum. Publish errors are logged and dropped.
func (m *Metrics) Count(ctx context.Context, name string, value float64) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: sdkaws.String(name),
				Value:      sdkaws.Float64(value),
				Unit:       cwtypes.StandardUnitCount,
				Timestamp:  sdkaws.Time(m.nowFunc()),
				Dimensions: []cwtypes.Dimension{
					{Name: sdkaws.String("service"), Value: sdkaws.String(m.service)},
				},
			},
		},
	})
	if err != nil {
		m.logger.Warn("failed to publish metric",
			zap.String("metric", name),
			zap.Float64("value", value),
			zap.Error(err))
	}
}

// NopCounter discards every metric.
type NopCounter struct{}

func (NopCounter) Count(context.Context, string, float64) {}
