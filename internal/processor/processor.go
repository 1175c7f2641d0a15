// Package processor triages ordering queue messages into same-day acceptance or a delayed retry.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/config"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/lockers"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/logging"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/orders"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/response"
)

// Metric names.
const (
	MetricBatchItemFailures = "batchItemFailuresForOrderProcessing"
	MetricAccepted          = "ordersAccepted"
	MetricAlreadyAccepted   = "orderAlreadyAccepted"
	MetricRescheduled       = "ordersRescheduled"
	MetricStaleDeliveries   = "staleOrderDeliveries"
	MetricDeadLettered      = "deadLetteredMessages"
	MetricSweepFailures     = "sweepFailures"
)

// requeueGroupID matches the generator's ordering group.
const requeueGroupID = "1"

// ErrInvalidMessage marks messages that can never be processed successfully.
var ErrInvalidMessage = errors.New("invalid order message")

// Store is the part of the order store the processor needs.
type Store interface {
	Get(ctx context.Context, orderID int64) (*orders.Order, error)
	Accept(ctx context.Context, orderID int64, lockerID int, at time.Time) (*orders.Order, error)
	FindDue(ctx context.Context, orderID int64, deliveryDate string) (*orders.Order, error)
	ListPending(ctx context.Context, deliveryDate string) ([]orders.Order, error)
}

// Sender puts messages on a queue.
type Sender interface {
	Send(ctx context.Context, msg aws.Message) error
}

// Options configure a Processor.
type Options struct {
	Strategy  string
	Location  *time.Location
	Threshold time.Duration
}

// Response is the processor's reply to an SQS invocation. BatchItemFailures lists the
// messages the poller should redeliver; everything else is deleted from the queue.
type Response struct {
	StatusCode        int                          `json:"statusCode"`
	BatchItemFailures []events.SQSBatchItemFailure `json:"batchItemFailures"`
}

// Processor handles ordering queue messages and the daily sweep.
type Processor struct {
	store      Store
	allocator  lockers.Allocator
	requeue    Sender
	deadLetter Sender
	metrics    aws.Counter
	logger     *zap.Logger
	opts       Options
	nowFunc    func() time.Time
}

// New returns a Processor. deadLetter may be nil, in which case invalid messages are
// reported as batch item failures and left to the queue's redrive policy.
func New(store Store, allocator lockers.Allocator, requeue, deadLetter Sender, metrics aws.Counter, logger *zap.Logger, opts Options) *Processor {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Strategy == "" {
		opts.Strategy = config.StrategyConditional
	}
	return &Processor{
		store:      store,
		allocator:  allocator,
		requeue:    requeue,
		deadLetter: deadLetter,
		metrics:    metrics,
		logger:     logger,
		opts:       opts,
		nowFunc:    time.Now,
	}
}

// HandleSQS processes every record of the batch. A failed record is added to the
// batch item failures; the envelope itself always reports success.
func (p *Processor) HandleSQS(ctx context.Context, ev events.SQSEvent) Response {
	log := logging.FromLambda(ctx, p.logger)
	now := p.nowFunc()

	res := Response{StatusCode: response.OK().StatusCode, BatchItemFailures: []events.SQSBatchItemFailure{}}
	for _, rec := range ev.Records {
		msgLog := log.With(zap.String("messageId", rec.MessageId))
		err := p.processMessage(ctx, msgLog, rec, now)
		if err == nil {
			continue
		}

		if errors.Is(err, ErrInvalidMessage) && p.deadLetter != nil {
			dlErr := p.sendToDeadLetter(ctx, rec, err)
			if dlErr == nil {
				msgLog.Warn("message dead-lettered", zap.Error(err))
				p.metrics.Count(ctx, MetricDeadLettered, 1)
				continue
			}
			msgLog.Error("failed to dead-letter message", zap.Error(dlErr))
		}

		msgLog.Error("order processing failed", zap.Error(err))
		res.BatchItemFailures = append(res.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		p.metrics.Count(ctx, MetricBatchItemFailures, 1)
	}
	return res
}

func (p *Processor) processMessage(ctx context.Context, log *zap.Logger, rec events.SQSMessage, now time.Time) error {
	var o orders.Order
	if err := json.Unmarshal([]byte(rec.Body), &o); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrInvalidMessage, err)
	}
	if o.OrderID < 0 {
		return fmt.Errorf("%w: negative orderId %d", ErrInvalidMessage, o.OrderID)
	}

	decision, err := Classify(o.DeliveryDate, now, p.opts.Location)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	log = log.With(zap.Int64("orderId", o.OrderID), zap.String("deliveryDate", o.DeliveryDate), zap.Stringer("decision", decision))
	log.Info("processing order")

	switch decision {
	case SameDay:
		return p.acceptOrder(ctx, log, o, now)
	case Future:
		return p.reschedule(ctx, log, o, rec.MessageId, now)
	default:
		return fmt.Errorf("%w: delivery date %s already passed", ErrInvalidMessage, o.DeliveryDate)
	}
}

// acceptOrder reserves a locker and applies the guarded accept. Duplicate deliveries
// end as a logged no-op.
func (p *Processor) acceptOrder(ctx context.Context, log *zap.Logger, o orders.Order, now time.Time) error {
	today := orders.DateOf(now, p.opts.Location)

	if p.opts.Strategy == config.StrategyQueryThenUpdate {
		due, err := p.store.FindDue(ctx, o.OrderID, today)
		if err != nil {
			return fmt.Errorf("find due order: %w", err)
		}
		if due == nil {
			log.Warn("no order due today in store, skipping delivery")
			p.metrics.Count(ctx, MetricStaleDeliveries, 1)
			return nil
		}
		if due.Accepted() {
			log.Info("order already accepted")
			p.metrics.Count(ctx, MetricAlreadyAccepted, 1)
			return nil
		}
	}

	lockerID, err := p.allocator.Reserve(ctx, today, o.OrderID)
	if err != nil {
		return fmt.Errorf("reserve locker: %w", err)
	}

	accepted, err := p.store.Accept(ctx, o.OrderID, lockerID, now)
	if errors.Is(err, orders.ErrAlreadyAccepted) {
		p.releaseUnlessAssigned(ctx, log, o.OrderID, today, lockerID)
		log.Info("order already accepted")
		p.metrics.Count(ctx, MetricAlreadyAccepted, 1)
		return nil
	}
	if err != nil {
		p.release(ctx, log, o.OrderID, today, lockerID)
		return fmt.Errorf("accept order: %w", err)
	}

	log.Info("order accepted", zap.Int("lockerId", *accepted.LockerID), zap.String("updatedTimestamp", accepted.UpdatedTimestamp))
	p.metrics.Count(ctx, MetricAccepted, 1)
	return nil
}

// reschedule puts the order back on the queue so it is seen again once inside the threshold window.
// The dedup id is derived from the incoming message, so a redelivered message is sent once
// and every later pass gets a fresh id.
func (p *Processor) reschedule(ctx context.Context, log *zap.Logger, o orders.Order, sourceMessageID string, now time.Time) error {
	delivery, err := o.Delivery(p.opts.Location)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	delay := RequeueDelay(delivery, now, p.opts.Threshold)

	body, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	err = p.requeue.Send(ctx, aws.Message{
		Body:            string(body),
		GroupID:         requeueGroupID,
		DeduplicationID: strconv.FormatInt(o.OrderID, 10) + "-" + sourceMessageID,
		Delay:           delay,
		Attributes: map[string]string{
			"source": o.Source,
		},
	})
	if err != nil {
		return fmt.Errorf("re-enqueue order: %w", err)
	}

	log.Info("order rescheduled",
		zap.Duration("delay", delay),
		zap.Int32("delaySeconds", aws.DelaySeconds(delay)))
	p.metrics.Count(ctx, MetricRescheduled, 1)
	return nil
}

func (p *Processor) sendToDeadLetter(ctx context.Context, rec events.SQSMessage, cause error) error {
	return p.deadLetter.Send(ctx, aws.Message{
		Body:            rec.Body,
		GroupID:         "dead-letter",
		DeduplicationID: rec.MessageId,
		Attributes: map[string]string{
			"error":           cause.Error(),
			"sourceMessageId": rec.MessageId,
		},
	})
}

func (p *Processor) releaseUnlessAssigned(ctx context.Context, log *zap.Logger, orderID int64, date string, lockerID int) {
	current, err := p.store.Get(ctx, orderID)
	if err != nil {
		log.Warn("could not read accepted order, keeping reservation", zap.Error(err))
		return
	}
	if current != nil && current.LockerID != nil && *current.LockerID == lockerID {
		return
	}
	p.release(ctx, log, orderID, date, lockerID)
}

func (p *Processor) release(ctx context.Context, log *zap.Logger, orderID int64, date string, lockerID int) {
	if err := p.allocator.Release(ctx, date, lockerID, orderID); err != nil {
		log.Warn("failed to release locker", zap.Int("lockerId", lockerID), zap.Error(err))
	}
}
