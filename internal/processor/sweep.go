package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/logging"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/orders"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/response"
)

// Sweep accepts every submitted order due today that is still without a locker.
// It is the target of the daily schedule and catches orders whose delayed message drifted.
func (p *Processor) Sweep(ctx context.Context) response.Response {
	log := logging.FromLambda(ctx, p.logger)
	now := p.nowFunc()
	today := orders.DateOf(now, p.opts.Location)

	pending, err := p.store.ListPending(ctx, today)
	if err != nil {
		log.Error("failed to list pending orders", zap.String("deliveryDate", today), zap.Error(err))
		p.metrics.Count(ctx, MetricSweepFailures, 1)
		return response.Failed()
	}

	failed := 0
	for _, o := range pending {
		orderLog := log.With(zap.Int64("orderId", o.OrderID), zap.String("deliveryDate", o.DeliveryDate))
		if err := p.acceptOrder(ctx, orderLog, o, now); err != nil {
			failed++
			orderLog.Error("sweep failed to accept order", zap.Error(err))
			p.metrics.Count(ctx, MetricSweepFailures, 1)
		}
	}

	log.Info("sweep finished",
		zap.String("deliveryDate", today),
		zap.Int("pending", len(pending)),
		zap.Int("failed", failed))
	return response.Of(failed == 0)
}

// Invoke is the lambda entry point. Payloads carrying SQS records go to HandleSQS;
// anything else (the scheduler's invocation) runs the sweep.
func (p *Processor) Invoke(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var envelope struct {
		Records []json.RawMessage `json:"Records"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &envelope); err != nil {
			// scalar or array payloads are not SQS batches; treat as a scheduled trigger
			envelope.Records = nil
		}
	}
	if len(envelope.Records) == 0 {
		return p.Sweep(ctx), nil
	}

	var ev events.SQSEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode sqs event: %w", err)
	}
	return p.HandleSQS(ctx, ev), nil
}
