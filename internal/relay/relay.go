// Package relay republishes order table changes onto the event bus.
package relay

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/logging"
)

// DetailType is the detail type of every relayed change.
const DetailType = "Event from aws:dynamodb"

// MetricPublishFailures counts stream records that did not reach the bus.
const MetricPublishFailures = "relayPublishFailures"

// Publisher puts a batch of events on the bus and returns the indexes it rejected.
type Publisher interface {
	Put(ctx context.Context, evs []aws.BusEvent) ([]int, error)
}

// Relay turns stream records into bus events.
type Relay struct {
	bus     Publisher
	source  string
	metrics aws.Counter
	logger  *zap.Logger
}

// New returns a Relay tagging every event with source.
func New(bus Publisher, source string, metrics aws.Counter, logger *zap.Logger) *Relay {
	return &Relay{bus: bus, source: source, metrics: metrics, logger: logger}
}

// Publishable reports whether a stream record is relayed. Deletes never are.
func Publishable(rec events.DynamoDBEventRecord) bool {
	switch events.DynamoDBOperationType(rec.EventName) {
	case events.DynamoDBOperationTypeInsert, events.DynamoDBOperationTypeModify:
		return true
	}
	return false
}

type pending struct {
	seq string
	ev  aws.BusEvent
}

// Handle publishes inserts and modifications. Records that could not be published are
// returned as batch item failures so the stream redelivers them.
func (r *Relay) Handle(ctx context.Context, ev events.DynamoDBEvent) events.DynamoDBEventResponse {
	log := logging.FromLambda(ctx, r.logger)
	resp := events.DynamoDBEventResponse{BatchItemFailures: []events.DynamoDBBatchItemFailure{}}
	fail := func(seq string) {
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{ItemIdentifier: seq})
		r.metrics.Count(ctx, MetricPublishFailures, 1)
	}

	var batch []pending
	for _, rec := range ev.Records {
		seq := rec.Change.SequenceNumber
		if !Publishable(rec) {
			log.Debug("skipping stream record", zap.String("eventName", rec.EventName), zap.String("sequenceNumber", seq))
			continue
		}
		detail, err := json.Marshal(rec)
		if err != nil {
			log.Error("failed to encode stream record", zap.String("sequenceNumber", seq), zap.Error(err))
			fail(seq)
			continue
		}
		var resources []string
		if rec.EventSourceArn != "" {
			resources = []string{rec.EventSourceArn}
		}
		batch = append(batch, pending{seq: seq, ev: aws.BusEvent{
			Source:     r.source,
			DetailType: DetailType,
			Detail:     string(detail),
			Resources:  resources,
		}})
	}

	published := 0
	for start := 0; start < len(batch); start += aws.MaxEntriesPerPut {
		end := min(start+aws.MaxEntriesPerPut, len(batch))
		chunk := batch[start:end]

		evs := make([]aws.BusEvent, len(chunk))
		for i, p := range chunk {
			evs[i] = p.ev
		}
		failed, err := r.bus.Put(ctx, evs)
		if err != nil {
			log.Error("failed to publish changes", zap.Int("entries", len(chunk)), zap.Error(err))
			for _, p := range chunk {
				fail(p.seq)
			}
			continue
		}
		for _, i := range failed {
			log.Error("event bus rejected change", zap.String("sequenceNumber", chunk[i].seq))
			fail(chunk[i].seq)
		}
		published += len(chunk) - len(failed)
	}

	log.Info("relayed stream batch",
		zap.Int("records", len(ev.Records)),
		zap.Int("published", published),
		zap.Int("failed", len(resp.BatchItemFailures)))
	return resp
}
