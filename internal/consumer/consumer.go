// Package consumer acknowledges accepted orders delivered by the partner's bus rule.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/logging"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/orders"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/response"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/routing"
)

// Metric names.
const (
	MetricAcknowledged = "acceptedOrdersAcknowledged"
	MetricUndecodable  = "undecodableOrderEvents"
)

// Consumer handles events routed by one rule.
type Consumer struct {
	rule    routing.Rule
	metrics aws.Counter
	logger  *zap.Logger
}

// New returns a Consumer for events matching rule.
func New(rule routing.Rule, metrics aws.Counter, logger *zap.Logger) *Consumer {
	return &Consumer{rule: rule, metrics: metrics, logger: logger}
}

type changeDetail struct {
	EventName string `json:"eventName"`
	DynamoDB  struct {
		NewImage map[string]events.DynamoDBAttributeValue `json:"NewImage"`
	} `json:"dynamodb"`
}

// Handle acknowledges an accepted order. Events outside the rule are acknowledged without
// action; events whose detail is not an order change fail with a 500.
func (c *Consumer) Handle(ctx context.Context, ev events.EventBridgeEvent) response.Response {
	log := logging.FromLambda(ctx, c.logger).With(
		zap.String("eventId", ev.ID),
		zap.String("eventSource", ev.Source),
		zap.String("rule", c.rule.Name))

	raw, err := json.Marshal(ev)
	if err != nil {
		log.Error("failed to encode event", zap.Error(err))
		return response.Failed()
	}
	matched, err := c.rule.EventPattern.Matches(raw)
	if err != nil {
		log.Error("failed to evaluate rule", zap.Error(err))
		return response.Failed()
	}
	if !matched {
		log.Info("event does not match rule, ignoring")
		return response.OK()
	}

	o, err := Decode(ev)
	if err != nil {
		log.Error("failed to decode order event", zap.Error(err))
		c.metrics.Count(ctx, MetricUndecodable, 1)
		return response.Failed()
	}

	fields := []zap.Field{
		zap.Int64("orderId", o.OrderID),
		zap.String("partner", o.Source),
		zap.String("orderStatus", o.OrderStatus),
		zap.String("deliveryDate", o.DeliveryDate),
	}
	if o.LockerID != nil {
		fields = append(fields, zap.Int("lockerId", *o.LockerID))
	}
	log.Info("accepted order acknowledged", fields...)
	c.metrics.Count(ctx, MetricAcknowledged, 1)
	return response.OK()
}

// Decode extracts the order carried in the new image of a relayed change.
func Decode(ev events.EventBridgeEvent) (*orders.Order, error) {
	if len(ev.Detail) == 0 {
		return nil, errors.New("event has no detail")
	}
	var d changeDetail
	if err := json.Unmarshal(ev.Detail, &d); err != nil {
		return nil, fmt.Errorf("decode detail: %w", err)
	}
	return orders.FromStreamImage(d.DynamoDB.NewImage)
}
