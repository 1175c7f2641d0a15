// Package generator produces synthetic donut orders, mimicking partner order intake.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/orders"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/response"
)

// OrderingGroupID is the single FIFO group all orders share, giving a total order on the queue.
const OrderingGroupID = "1"

// MetricGenerationFailures counts failed enqueues and store writes.
const MetricGenerationFailures = "orderGenerationFailures"

const (
	maxBaseOrderID = 10000
	productVariety = 10
	customerName   = "Mark Smith"
	customerEmail  = "mark@abc.com"
)

// OrderWriter persists new orders.
type OrderWriter interface {
	Put(ctx context.Context, o orders.Order) error
}

// Sender enqueues messages on the ordering queue.
type Sender interface {
	Send(ctx context.Context, msg aws.Message) error
}

// Options tune the generated batch.
type Options struct {
	BatchSize          int
	Sources            []string
	DeliveryOffsetDays int
	Location           *time.Location
}

// Generator builds batches of orders and hands each one to the queue and the store.
type Generator struct {
	store   OrderWriter
	queue   Sender
	metrics aws.Counter
	logger  *zap.Logger
	opts    Options
	nowFunc func() time.Time
	randN   func(n int) int
}

// New returns a Generator.
func New(store OrderWriter, queue Sender, metrics aws.Counter, logger *zap.Logger, opts Options) *Generator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Generator{
		store:   store,
		queue:   queue,
		metrics: metrics,
		logger:  logger,
		opts:    opts,
		nowFunc: time.Now,
		randN:   rand.IntN,
	}
}

// Build returns batchSize orders with consecutive ids starting from a random base.
func (g *Generator) Build(batchSize int) []orders.Order {
	now := g.nowFunc()
	delivery := orders.DateOf(now.In(g.opts.Location).AddDate(0, 0, g.opts.DeliveryOffsetDays), g.opts.Location)

	orderID := int64(g.randN(maxBaseOrderID))
	out := make([]orders.Order, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		out = append(out, orders.Order{
			OrderID:       orderID,
			Product:       fmt.Sprintf("donut-%d", g.randN(productVariety)),
			Timestamp:     now.UTC().Format(orders.TimestampLayout),
			Source:        g.opts.Sources[g.randN(len(g.opts.Sources))],
			CustomerName:  customerName,
			CustomerEmail: customerEmail,
			DeliveryDate:  delivery,
			OrderStatus:   orders.StatusSubmitted,
		})
		orderID++
	}
	return out
}

// Generate creates a batch of the configured size.
func (g *Generator) Generate(ctx context.Context) response.Response {
	return g.GenerateN(ctx, g.opts.BatchSize)
}

// GenerateN creates batchSize orders, enqueueing and storing each one concurrently.
// Partial writes are not rolled back; any failure makes the result a 500.
func (g *Generator) GenerateN(ctx context.Context, batchSize int) response.Response {
	if batchSize <= 0 {
		g.logger.Error("invalid batch size", zap.Int("batchSize", batchSize))
		return response.Failed()
	}
	batch := g.Build(batchSize)

	var failures atomic.Int64
	var eg errgroup.Group
	for _, o := range batch {
		eg.Go(func() error {
			if err := g.enqueue(ctx, o); err != nil {
				failures.Add(1)
				g.logger.Error("failed to enqueue order", zap.Int64("orderId", o.OrderID), zap.Error(err))
				return err
			}
			return nil
		})
		eg.Go(func() error {
			if err := g.store.Put(ctx, o); err != nil {
				failures.Add(1)
				g.logger.Error("failed to store order", zap.Int64("orderId", o.OrderID), zap.Error(err))
				return err
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		n := failures.Load()
		g.metrics.Count(ctx, MetricGenerationFailures, float64(n))
		g.logger.Error("order generation incomplete",
			zap.Int("batchSize", len(batch)),
			zap.Int64("failures", n),
			zap.Error(err))
		return response.Failed()
	}

	g.logger.Info("orders generated",
		zap.Int("batchSize", len(batch)),
		zap.Int64("firstOrderId", batch[0].OrderID))
	return response.OK()
}

func (g *Generator) enqueue(ctx context.Context, o orders.Order) error {
	body, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	return g.queue.Send(ctx, aws.Message{
		Body:            string(body),
		GroupID:         OrderingGroupID,
		DeduplicationID: strconv.FormatInt(o.OrderID, 10),
		Attributes: map[string]string{
			"source": o.Source,
		},
	})
}
